package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
)

type stubDetector struct {
	detections []DetectionResult
	err        error
	calls      atomic.Int32
}

func (d *stubDetector) DetectFaces(img image.Image) ([]DetectionResult, error) {
	d.calls.Add(1)
	return d.detections, d.err
}

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 80, B: 40, A: 255})
		}
	}
	return img
}

func face(x, y, w, h int, conf float32) DetectionResult {
	return DetectionResult{Box: BoundingBox{X: x, Y: y, W: w, H: h}, Confidence: conf}
}

func TestExtractSingleFace(t *testing.T) {
	tests := []struct {
		name       string
		img        image.Image
		detections []DetectionResult
		detErr     error
		wantReason Reason
		wantFaces  int
	}{
		{name: "nil image", img: nil, wantReason: ReasonInvalidImage},
		{name: "zero sized", img: image.NewRGBA(image.Rect(0, 0, 0, 0)), wantReason: ReasonInvalidImage},
		{name: "too small", img: solidImage(50, 200), wantReason: ReasonLowResolution},
		{name: "no face", img: solidImage(200, 200), wantReason: ReasonNoFace},
		{
			name:       "two faces",
			img:        solidImage(200, 200),
			detections: []DetectionResult{face(10, 10, 50, 50, 0.9), face(100, 100, 50, 50, 0.95)},
			wantReason: ReasonMultipleFaces,
		},
		{
			name:       "low confidence",
			img:        solidImage(200, 200),
			detections: []DetectionResult{face(10, 10, 50, 50, 0.3)},
			wantReason: ReasonLowConfidence,
		},
		{
			name:       "detector failure",
			img:        solidImage(200, 200),
			detErr:     errors.New("forward pass failed"),
			wantReason: ReasonDetectorFailure,
		},
		{
			name:       "one confident face",
			img:        solidImage(200, 200),
			detections: []DetectionResult{face(10, 20, 60, 70, 0.9)},
			wantFaces:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &stubDetector{detections: tt.detections, err: tt.detErr}
			ex := NewFaceExtractor(det, DefaultExtractorOptions())

			res := ex.Extract(tt.img, ModeSingleFace)
			if res.Diagnostic.Reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q", res.Diagnostic.Reason, tt.wantReason)
			}
			if len(res.Faces) != tt.wantFaces {
				t.Fatalf("got %d faces, want %d", len(res.Faces), tt.wantFaces)
			}
		})
	}
}

func TestExtractSkipsDetectorOnBadInput(t *testing.T) {
	det := &stubDetector{}
	ex := NewFaceExtractor(det, DefaultExtractorOptions())

	ex.Extract(solidImage(20, 20), ModeSingleFace)
	if n := det.calls.Load(); n != 0 {
		t.Fatalf("detector called %d times for a low resolution image", n)
	}
}

func TestExtractCropsAndClamps(t *testing.T) {
	det := &stubDetector{detections: []DetectionResult{face(150, 150, 100, 100, 0.99)}}
	ex := NewFaceExtractor(det, DefaultExtractorOptions())

	res := ex.Extract(solidImage(200, 200), ModeSingleFace)
	if !res.Diagnostic.OK() {
		t.Fatalf("unexpected diagnostic: %s", res.Diagnostic)
	}
	got := res.Faces[0]
	want := BoundingBox{X: 150, Y: 150, W: 50, H: 50}
	if got.Box != want {
		t.Fatalf("box = %+v, want %+v", got.Box, want)
	}
	if b := got.Image.Bounds(); b.Dx() != 50 || b.Dy() != 50 {
		t.Fatalf("crop size = %dx%d, want 50x50", b.Dx(), b.Dy())
	}
}

func TestExtractResizesToCropSize(t *testing.T) {
	opts := DefaultExtractorOptions()
	opts.CropSize = 112
	det := &stubDetector{detections: []DetectionResult{face(10, 10, 60, 80, 0.99)}}
	ex := NewFaceExtractor(det, opts)

	res := ex.Extract(solidImage(200, 200), ModeSingleFace)
	if len(res.Faces) != 1 {
		t.Fatalf("expected one face, got %s", res.Diagnostic)
	}
	if b := res.Faces[0].Image.Bounds(); b.Dx() != 112 || b.Dy() != 112 {
		t.Fatalf("crop size = %dx%d, want 112x112", b.Dx(), b.Dy())
	}
}

func TestExtractMultiFace(t *testing.T) {
	det := &stubDetector{detections: []DetectionResult{
		face(0, 0, 40, 40, 0.9),
		face(50, 50, 40, 40, 0.2),
		face(300, 300, 40, 40, 0.95), // outside the image
		face(100, 100, 40, 40, 0.7),
	}}
	ex := NewFaceExtractor(det, DefaultExtractorOptions())

	res := ex.Extract(solidImage(200, 200), ModeMultiFace)
	if !res.Diagnostic.OK() {
		t.Fatalf("multi-face mode should not fail: %s", res.Diagnostic)
	}
	if len(res.Faces) != 2 {
		t.Fatalf("got %d faces, want 2", len(res.Faces))
	}
	if res.Diagnostic.Detail == "" {
		t.Fatal("expected dropped detections to be noted in the diagnostic")
	}
}

func TestExtractMultiFaceEmptyFrame(t *testing.T) {
	ex := NewFaceExtractor(&stubDetector{}, DefaultExtractorOptions())

	res := ex.Extract(solidImage(200, 200), ModeMultiFace)
	if !res.Diagnostic.OK() || len(res.Faces) != 0 {
		t.Fatalf("empty frame: faces=%d diagnostic=%s", len(res.Faces), res.Diagnostic)
	}
}

// orderDetector reports a face only for images wider than 150px.
type orderDetector struct{}

func (orderDetector) DetectFaces(img image.Image) ([]DetectionResult, error) {
	if img.Bounds().Dx() > 150 {
		return []DetectionResult{face(0, 0, 100, 100, 0.9)}, nil
	}
	return nil, nil
}

func TestExtractManyPreservesOrder(t *testing.T) {
	opts := DefaultExtractorOptions()
	opts.Workers = 3
	ex := NewFaceExtractor(orderDetector{}, opts)

	imgs := make([]image.Image, 20)
	for i := range imgs {
		if i%2 == 0 {
			imgs[i] = solidImage(200, 120)
		} else {
			imgs[i] = solidImage(120, 120)
		}
	}

	results := ex.ExtractMany(context.Background(), imgs, ModeSingleFace)
	if len(results) != len(imgs) {
		t.Fatalf("got %d results, want %d", len(results), len(imgs))
	}
	for i, res := range results {
		wantOK := i%2 == 0
		if res.Diagnostic.OK() != wantOK {
			t.Errorf("result %d: ok=%v, want %v (%s)", i, res.Diagnostic.OK(), wantOK, res.Diagnostic)
		}
	}
}

func TestExtractManyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	det := &stubDetector{detections: []DetectionResult{face(0, 0, 100, 100, 0.9)}}
	ex := NewFaceExtractor(det, DefaultExtractorOptions())

	results := ex.ExtractMany(ctx, []image.Image{solidImage(200, 200), solidImage(200, 200)}, ModeSingleFace)
	for i, res := range results {
		if res.Diagnostic.Reason != ReasonCancelled {
			t.Errorf("result %d: reason = %q, want %q", i, res.Diagnostic.Reason, ReasonCancelled)
		}
	}
}

func TestDiagnosticErr(t *testing.T) {
	var ve *ValidationError
	if err := (Diagnostic{Reason: ReasonLowResolution}).Err(); !errors.As(err, &ve) {
		t.Fatalf("low resolution should be a ValidationError, got %T", err)
	}
	var de *DetectionError
	if err := (Diagnostic{Reason: ReasonMultipleFaces}).Err(); !errors.As(err, &de) {
		t.Fatalf("multiple faces should be a DetectionError, got %T", err)
	}
	if err := (Diagnostic{}).Err(); err != nil {
		t.Fatalf("ok diagnostic returned %v", err)
	}
}
