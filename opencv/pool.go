package opencv

import (
	"errors"
	"image"
	"io"

	"github.com/camden-git/faceattendance/media"
)

// netPool hands out exclusive access to one of several identical networks.
// gocv.Net is not safe for concurrent use, so every goroutine borrows its own.
type netPool[T io.Closer] struct {
	items chan T
	all   []T
}

func newNetPool[T io.Closer](size int, build func() (T, error)) (*netPool[T], error) {
	if size <= 0 {
		size = 1
	}
	p := &netPool[T]{items: make(chan T, size)}
	for i := 0; i < size; i++ {
		item, err := build()
		if err != nil {
			p.Close()
			return nil, err
		}
		p.all = append(p.all, item)
		p.items <- item
	}
	return p, nil
}

func (p *netPool[T]) with(fn func(T)) {
	item := <-p.items
	defer func() { p.items <- item }()
	fn(item)
}

func (p *netPool[T]) Close() error {
	var errs []error
	for _, item := range p.all {
		if err := item.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.all = nil
	return errors.Join(errs...)
}

// NetDetector is a detector backed by an OpenCV network.
type NetDetector interface {
	media.Detector
	io.Closer
}

// DetectorPool is a media.Detector safe for concurrent use.
type DetectorPool struct {
	pool *netPool[NetDetector]
}

var _ media.Detector = (*DetectorPool)(nil)

// NewDetectorPool builds size detectors with build.
func NewDetectorPool(size int, build func() (NetDetector, error)) (*DetectorPool, error) {
	p, err := newNetPool(size, build)
	if err != nil {
		return nil, err
	}
	return &DetectorPool{pool: p}, nil
}

func (d *DetectorPool) DetectFaces(img image.Image) (dets []media.DetectionResult, err error) {
	d.pool.with(func(det NetDetector) {
		dets, err = det.DetectFaces(img)
	})
	return dets, err
}

func (d *DetectorPool) Close() error {
	return d.pool.Close()
}

// EmbedderPool is a media.EmbeddingModel safe for concurrent use.
type EmbedderPool struct {
	name string
	pool *netPool[*RecognitionModel]
}

var _ media.EmbeddingModel = (*EmbedderPool)(nil)

// NewEmbedderPool loads size copies of the recognition model.
func NewEmbedderPool(size int, modelPath, modelName string) (*EmbedderPool, error) {
	p, err := newNetPool(size, func() (*RecognitionModel, error) {
		return NewRecognitionModel(modelPath, modelName)
	})
	if err != nil {
		return nil, err
	}
	return &EmbedderPool{name: modelName, pool: p}, nil
}

func (e *EmbedderPool) Name() string {
	return e.name
}

func (e *EmbedderPool) Embed(face image.Image) (vec []float32, err error) {
	e.pool.with(func(m *RecognitionModel) {
		vec, err = m.Embed(face)
	})
	return vec, err
}

func (e *EmbedderPool) Close() error {
	return e.pool.Close()
}
