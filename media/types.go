// media/types.go
package media

import (
	"fmt"
	"image"
)

// ExtractMode selects how many faces an image may contain.
type ExtractMode int

const (
	// ModeSingleFace is used for enrollment photos: exactly one face is required.
	ModeSingleFace ExtractMode = iota
	// ModeMultiFace is used for live frames: every confident face is returned.
	ModeMultiFace
)

func (m ExtractMode) String() string {
	switch m {
	case ModeSingleFace:
		return "single-face"
	case ModeMultiFace:
		return "multi-face"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// BoundingBox is a face region in source-image pixel coordinates.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the box to an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

func boxFromRect(r image.Rectangle) BoundingBox {
	return BoundingBox{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Point2D is a facial landmark position.
type Point2D struct {
	X, Y float32
}

// DetectionResult is one raw detector output. Coordinates are relative to the
// top-left corner of the image handed to the detector.
type DetectionResult struct {
	Box        BoundingBox
	Confidence float32
	Landmarks  []Point2D
}

// FaceCrop is a detector-cropped face. It is never persisted.
type FaceCrop struct {
	Image      image.Image
	Box        BoundingBox
	Confidence float32
}

// ExtractResult is what the extractor returns for a single image. Faces is
// empty whenever Diagnostic is not OK.
type ExtractResult struct {
	Faces      []FaceCrop
	Diagnostic Diagnostic
}

// PhotoRejection ties a diagnostic to the position of the photo it concerns.
type PhotoRejection struct {
	Index      int        `json:"index"`
	Diagnostic Diagnostic `json:"diagnostic"`
}

func (r PhotoRejection) String() string {
	return fmt.Sprintf("photo %d: %s", r.Index+1, r.Diagnostic)
}
