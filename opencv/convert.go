package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// toMat converts an RGB image into the BGR Mat OpenCV expects. The caller
// must Close the result.
func toMat(img image.Image) (gocv.Mat, error) {
	if img == nil {
		return gocv.Mat{}, fmt.Errorf("nil image")
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert image to mat: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("converted mat is empty")
	}
	return mat, nil
}

// fromMat converts a BGR Mat back into an RGB image.
func fromMat(mat gocv.Mat) (image.Image, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("empty mat")
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert mat to image: %w", err)
	}
	return img, nil
}
