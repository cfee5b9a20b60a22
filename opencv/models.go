package opencv

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/camden-git/faceattendance/media"
)

// ModelConfig locates the pretrained networks on disk.
type ModelConfig struct {
	RetinaFacePath  string
	SSDConfigPath   string
	SSDModelPath    string
	RecognitionPath string
	RecognitionName string
	// DetectorThreshold is the network-internal score cut-off. The extractor
	// applies its own minimum confidence on top.
	DetectorThreshold float32
	PoolSize          int
}

// LoadModels builds the detector and embedder pools once at startup.
// RetinaFace is preferred; the SSD model is used when no RetinaFace path is
// set. The returned closer releases every network.
func LoadModels(cfg ModelConfig) (media.Models, io.Closer, error) {
	var build func() (NetDetector, error)
	switch {
	case cfg.RetinaFacePath != "":
		build = func() (NetDetector, error) {
			return NewRetinaFaceDetector(cfg.RetinaFacePath, cfg.DetectorThreshold)
		}
	case cfg.SSDModelPath != "":
		build = func() (NetDetector, error) {
			return NewSSDFaceDetector(cfg.SSDConfigPath, cfg.SSDModelPath, cfg.DetectorThreshold)
		}
	default:
		return media.Models{}, nil, errors.New("no face detection model configured")
	}

	detectors, err := NewDetectorPool(cfg.PoolSize, build)
	if err != nil {
		return media.Models{}, nil, fmt.Errorf("failed to load detector: %w", err)
	}

	embedders, err := NewEmbedderPool(cfg.PoolSize, cfg.RecognitionPath, cfg.RecognitionName)
	if err != nil {
		detectors.Close()
		return media.Models{}, nil, fmt.Errorf("failed to load recognition model: %w", err)
	}

	log.Printf("models: loaded %d detector(s) and %d %s embedder(s)", max(cfg.PoolSize, 1), max(cfg.PoolSize, 1), cfg.RecognitionName)
	return media.Models{Detector: detectors, Embedder: embedders}, closers{detectors, embedders}, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for _, cl := range c {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
