package media

import (
	"math"
	"sort"
)

// RetinaFace prior box generation and box decoding utilities. They are kept
// free of OpenCV so the geometry can be tested on its own.

// PriorBox defines an anchor box (center_x, center_y, width, height)
type PriorBox struct {
	Cx, Cy, W, H float32
}

// GenerateRetinaFacePriors generates priors for the given network input size.
func GenerateRetinaFacePriors(imgW, imgH int) []PriorBox {
	minSizes := [][]int{{16, 32}, {64, 128}, {256, 512}}
	steps := []int{8, 16, 32}

	var priors []PriorBox
	for k, step := range steps {
		fmH := int(math.Ceil(float64(imgH) / float64(step)))
		fmW := int(math.Ceil(float64(imgW) / float64(step)))
		for i := 0; i < fmH; i++ {
			for j := 0; j < fmW; j++ {
				for _, minSize := range minSizes[k] {
					priors = append(priors, PriorBox{
						Cx: (float32(j) + 0.5) * float32(step) / float32(imgW),
						Cy: (float32(i) + 0.5) * float32(step) / float32(imgH),
						W:  float32(minSize) / float32(imgW),
						H:  float32(minSize) / float32(imgH),
					})
				}
			}
		}
	}
	return priors
}

// DecodeBox decodes a single [dx, dy, dw, dh] prediction into relative corner
// coordinates [x1, y1, x2, y2].
func DecodeBox(rawBox [4]float32, prior PriorBox, variances [2]float32) [4]float32 {
	cx := prior.Cx + rawBox[0]*variances[0]*prior.W
	cy := prior.Cy + rawBox[1]*variances[0]*prior.H
	w := prior.W * float32(math.Exp(float64(rawBox[2]*variances[1])))
	h := prior.H * float32(math.Exp(float64(rawBox[3]*variances[1])))
	return [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
}

// IoU is the intersection over union of two boxes.
func IoU(a, b BoundingBox) float32 {
	inter := a.Rect().Intersect(b.Rect())
	if inter.Empty() {
		return 0
	}
	intersection := float32(inter.Dx() * inter.Dy())
	union := float32(a.W*a.H+b.W*b.H) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// NonMaxSuppression keeps the most confident detection of every group whose
// overlap exceeds threshold. The result is ordered by confidence, highest first.
func NonMaxSuppression(detections []DetectionResult, threshold float32) []DetectionResult {
	if len(detections) == 0 {
		return detections
	}

	sorted := append([]DetectionResult(nil), detections...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var result []DetectionResult
	used := make([]bool, len(sorted))
	for i := range sorted {
		if used[i] {
			continue
		}
		result = append(result, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if !used[j] && IoU(sorted[i].Box, sorted[j].Box) > threshold {
				used[j] = true
			}
		}
	}
	return result
}
