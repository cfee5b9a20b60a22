package media

import (
	"context"
	"fmt"
	"image"
	"log"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMinImageWidth  = 100
	DefaultMinImageHeight = 100
	DefaultMinConfidence  = 0.6
	DefaultFaceCropSize   = 0 // keep the detector's crop size
)

// ExtractorOptions holds the quality gates applied to every image.
type ExtractorOptions struct {
	MinWidth      int
	MinHeight     int
	MinConfidence float32
	CropSize      int // when > 0 crops are resized to CropSize x CropSize
	Workers       int // ExtractMany pool size
}

// DefaultExtractorOptions returns the gates used when nothing is configured.
func DefaultExtractorOptions() ExtractorOptions {
	return ExtractorOptions{
		MinWidth:      DefaultMinImageWidth,
		MinHeight:     DefaultMinImageHeight,
		MinConfidence: DefaultMinConfidence,
		CropSize:      DefaultFaceCropSize,
		Workers:       runtime.NumCPU(),
	}
}

// FaceExtractor locates, validates and crops faces. It performs no I/O.
type FaceExtractor struct {
	detector Detector
	opts     ExtractorOptions
}

// NewFaceExtractor builds an extractor around the given detector.
func NewFaceExtractor(detector Detector, opts ExtractorOptions) *FaceExtractor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &FaceExtractor{detector: detector, opts: opts}
}

// Options returns the gates the extractor was built with.
func (e *FaceExtractor) Options() ExtractorOptions {
	return e.opts
}

// Extract runs detection on one RGB image. Expected failures (no face, low
// confidence, ...) are reported through the result's Diagnostic.
func (e *FaceExtractor) Extract(img image.Image, mode ExtractMode) ExtractResult {
	if img == nil {
		return rejected(ReasonInvalidImage, "image is nil")
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return rejected(ReasonInvalidImage, "image has no pixels")
	}
	if bounds.Dx() < e.opts.MinWidth || bounds.Dy() < e.opts.MinHeight {
		return rejected(ReasonLowResolution, fmt.Sprintf("%dx%d is below the %dx%d minimum",
			bounds.Dx(), bounds.Dy(), e.opts.MinWidth, e.opts.MinHeight))
	}

	detections, err := e.detector.DetectFaces(img)
	if err != nil {
		log.Printf("extractor: detector failed on %dx%d image: %v", bounds.Dx(), bounds.Dy(), err)
		return rejected(ReasonDetectorFailure, err.Error())
	}

	if mode == ModeSingleFace {
		return e.extractSingle(img, detections)
	}
	return e.extractMulti(img, detections)
}

func (e *FaceExtractor) extractSingle(img image.Image, detections []DetectionResult) ExtractResult {
	switch len(detections) {
	case 0:
		return rejected(ReasonNoFace, "")
	case 1:
	default:
		return rejected(ReasonMultipleFaces, fmt.Sprintf("expected one face, found %d", len(detections)))
	}

	det := detections[0]
	if det.Confidence < e.opts.MinConfidence {
		return rejected(ReasonLowConfidence, fmt.Sprintf("%.2f < %.2f", det.Confidence, e.opts.MinConfidence))
	}
	crop, ok := e.crop(img, det)
	if !ok {
		return rejected(ReasonNoFace, "face box lies outside the image")
	}
	return ExtractResult{Faces: []FaceCrop{crop}}
}

func (e *FaceExtractor) extractMulti(img image.Image, detections []DetectionResult) ExtractResult {
	var result ExtractResult
	dropped := 0
	for _, det := range detections {
		if det.Confidence < e.opts.MinConfidence {
			dropped++
			continue
		}
		crop, ok := e.crop(img, det)
		if !ok {
			dropped++
			continue
		}
		result.Faces = append(result.Faces, crop)
	}
	if dropped > 0 {
		result.Diagnostic.Detail = fmt.Sprintf("dropped %d of %d detections", dropped, len(detections))
	}
	return result
}

// crop clamps the detection to the image and cuts it out.
func (e *FaceExtractor) crop(img image.Image, det DetectionResult) (FaceCrop, bool) {
	bounds := img.Bounds()
	rect := det.Box.Rect().Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return FaceCrop{}, false
	}

	var face image.Image = imaging.Crop(img, rect)
	if e.opts.CropSize > 0 {
		face = imaging.Resize(face, e.opts.CropSize, e.opts.CropSize, imaging.Lanczos)
	}

	return FaceCrop{
		Image:      face,
		Box:        boxFromRect(rect.Sub(bounds.Min)),
		Confidence: det.Confidence,
	}, true
}

// ExtractMany runs Extract over independent images on a pool bounded by
// Options().Workers. Results are returned in input order. Images not yet
// started when ctx is cancelled are reported with ReasonCancelled.
func (e *FaceExtractor) ExtractMany(ctx context.Context, imgs []image.Image, mode ExtractMode) []ExtractResult {
	results := make([]ExtractResult, len(imgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, img := range imgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = rejected(ReasonCancelled, err.Error())
				return nil
			}
			results[i] = e.Extract(img, mode)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; per-image failures live in the results

	return results
}
