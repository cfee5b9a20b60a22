package media

import "image"

// Detector locates faces in an RGB image. Implementations may apply their own
// internal score cut-off; the extractor applies the configured minimum on top.
type Detector interface {
	DetectFaces(img image.Image) ([]DetectionResult, error)
}

// EmbeddingModel turns an already-cropped face into a raw embedding. It must not
// run face detection again.
type EmbeddingModel interface {
	Name() string
	Embed(face image.Image) ([]float32, error)
}

// Models is the set of pretrained models built once at startup and injected
// into the extractor and encoder.
type Models struct {
	Detector Detector
	Embedder EmbeddingModel
}
