package media

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// CosineDistance returns 1 - cos(a, b). Vectors of different length, empty
// vectors or zero-norm vectors are not comparable and yield +Inf.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	x, y := toFloat64(a), toFloat64(b)
	na, nb := floats.Norm(x, 2), floats.Norm(y, 2)
	if na == 0 || nb == 0 {
		return math.Inf(1)
	}
	return 1 - floats.Dot(x, y)/(na*nb)
}

// Normalize scales v to unit L2 length. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	x := toFloat64(v)
	norm := floats.Norm(x, 2)
	if norm == 0 {
		return v
	}
	floats.Scale(1/norm, x)

	out := make([]float32, len(x))
	for i, val := range x {
		out[i] = float32(val)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, val := range v {
		out[i] = float64(val)
	}
	return out
}
