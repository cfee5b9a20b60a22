package opencv

import (
	"fmt"
	"log"
	"os"

	"gocv.io/x/gocv"
)

// loadNet reads a DNN model and prefers CUDA, falling back to the CPU.
func loadNet(tag, modelPath, configPath string) (gocv.Net, error) {
	if modelPath == "" {
		return gocv.Net{}, fmt.Errorf("%s: model path is empty", tag)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return gocv.Net{}, fmt.Errorf("%s: model file %s: %w", tag, modelPath, err)
	}

	log.Printf("%s: loading model %s", tag, modelPath)
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return gocv.Net{}, fmt.Errorf("%s: ReadNet returned an empty network for %s", tag, modelPath)
	}

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Printf("%s: set backend/target to CUDA", tag)
		return net, nil
	}

	if cudaBackendErr != nil {
		log.Printf("%s: CUDA backend not available: %v. Using default backend.", tag, cudaBackendErr)
	}
	if cudaTargetErr != nil {
		log.Printf("%s: CUDA target not available: %v. Using default target.", tag, cudaTargetErr)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	log.Printf("%s: set backend/target to CPU (Default)", tag)

	return net, nil
}
