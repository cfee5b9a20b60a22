package main

import "github.com/camden-git/faceattendance/cmd"

func main() {
	cmd.Execute()
}
