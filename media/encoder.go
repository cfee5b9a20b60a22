package media

import (
	"fmt"
	"math"
)

// EmbeddingEncoder turns face crops into unit-length embeddings using the
// injected model. It never runs detection; the crop is taken as-is.
type EmbeddingEncoder struct {
	model     EmbeddingModel
	dimension int
}

// NewEmbeddingEncoder wraps model. dimension is the expected output length;
// 0 accepts whatever length the model produces.
func NewEmbeddingEncoder(model EmbeddingModel, dimension int) *EmbeddingEncoder {
	return &EmbeddingEncoder{model: model, dimension: dimension}
}

// ModelName is stored alongside every embedding.
func (e *EmbeddingEncoder) ModelName() string {
	return e.model.Name()
}

func (e *EmbeddingEncoder) Dimension() int {
	return e.dimension
}

// Encode returns the L2-normalised embedding of crop. All failures are
// *EncodingError.
func (e *EmbeddingEncoder) Encode(crop FaceCrop) ([]float32, error) {
	if crop.Image == nil || crop.Image.Bounds().Empty() {
		return nil, &EncodingError{Reason: "empty face crop"}
	}

	raw, err := e.model.Embed(crop.Image)
	if err != nil {
		return nil, &EncodingError{Reason: "model inference failed", Err: err}
	}
	if len(raw) == 0 {
		return nil, &EncodingError{Reason: "degenerate embedding: model returned no values"}
	}
	if e.dimension > 0 && len(raw) != e.dimension {
		return nil, &EncodingError{Reason: fmt.Sprintf("dimension mismatch: got %d, want %d", len(raw), e.dimension)}
	}

	allZero := true
	for i, v := range raw {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &EncodingError{Reason: fmt.Sprintf("degenerate embedding: non-finite value at %d", i)}
		}
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return nil, &EncodingError{Reason: "degenerate embedding: all values are zero"}
	}

	return Normalize(raw), nil
}
