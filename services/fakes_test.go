package services

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/camden-git/faceattendance/media"
	"github.com/camden-git/faceattendance/models"
)

// memStore is an in-memory EmbeddingStore.
type memStore struct {
	mu      sync.Mutex
	data    map[models.StudentIdentity][][]float32
	saves   int
	saveErr error
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[models.StudentIdentity][][]float32)}
}

func (s *memStore) Save(ctx context.Context, owner models.StudentIdentity, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data[owner] = vectors
	return nil
}

func (s *memStore) Load(ctx context.Context, owners []models.StudentIdentity) (map[models.StudentIdentity][][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(map[models.StudentIdentity][][]float32, len(owners))
	for _, o := range owners {
		out[o] = append([][]float32{}, s.data[o]...)
	}
	return out, nil
}

func (s *memStore) Count(ctx context.Context, owner models.StudentIdentity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.data[owner])), nil
}

// colorModel embeds a crop as its top-left pixel color. Green value 7 yields
// a NaN so tests can provoke encoding failures.
type colorModel struct{}

func (colorModel) Name() string { return "color" }

func (colorModel) Embed(face image.Image) ([]float32, error) {
	b := face.Bounds()
	r, g, bl, _ := face.At(b.Min.X, b.Min.Y).RGBA()
	if g>>8 == 7 {
		return []float32{float32(math.NaN()), 0, 0}, nil
	}
	return []float32{float32(r >> 8), float32(g >> 8), float32(bl >> 8)}, nil
}

func colorVector(c color.RGBA) []float32 {
	return media.Normalize([]float32{float32(c.R), float32(c.G), float32(c.B)})
}

// photoDetector drives enrollment: the red channel of the top-left pixel
// decides what the "detector" sees.
//
//	255: one confident face, 128: no face, anything else: a low confidence face
type photoDetector struct{}

func (photoDetector) DetectFaces(img image.Image) ([]media.DetectionResult, error) {
	b := img.Bounds()
	r, _, _, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	box := media.BoundingBox{X: 0, Y: 0, W: 120, H: 120}
	switch r >> 8 {
	case 255:
		return []media.DetectionResult{{Box: box, Confidence: 0.95}}, nil
	case 128:
		return nil, nil
	default:
		return []media.DetectionResult{{Box: box, Confidence: 0.3}}, nil
	}
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// frameDetector returns the faces registered for each frame.
type frameDetector struct {
	mu    sync.Mutex
	faces map[image.Image][]media.DetectionResult
}

func newFrameDetector() *frameDetector {
	return &frameDetector{faces: make(map[image.Image][]media.DetectionResult)}
}

func (d *frameDetector) DetectFaces(img image.Image) ([]media.DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.faces[img], nil
}

type paintedFace struct {
	box   media.BoundingBox
	color color.RGBA
}

// frame paints each face's box in its color on a grey background.
func (d *frameDetector) frame(faces ...paintedFace) image.Image {
	img := solid(400, 200, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	var dets []media.DetectionResult
	for _, f := range faces {
		for y := f.box.Y; y < f.box.Y+f.box.H; y++ {
			for x := f.box.X; x < f.box.X+f.box.W; x++ {
				img.SetRGBA(x, y, f.color)
			}
		}
		dets = append(dets, media.DetectionResult{Box: f.box, Confidence: 0.9})
	}
	d.mu.Lock()
	d.faces[img] = dets
	d.mu.Unlock()
	return img
}

// fakeCamera replays frames, then reports io.EOF. failFirst reads fail
// before the first frame; with endless set the last frame repeats forever.
type fakeCamera struct {
	mu        sync.Mutex
	frames    []image.Image
	failFirst int
	failAll   bool
	endless   bool
	pos       int
	closed    atomic.Bool
}

func (c *fakeCamera) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return nil, errors.New("device unplugged")
	}
	if c.failFirst > 0 {
		c.failFirst--
		return nil, errors.New("dropped frame")
	}
	if c.pos >= len(c.frames) {
		if c.endless && len(c.frames) > 0 {
			return c.frames[len(c.frames)-1], nil
		}
		return nil, io.EOF
	}
	f := c.frames[c.pos]
	c.pos++
	return f, nil
}

func (c *fakeCamera) Close() error {
	c.closed.Store(true)
	return nil
}

// opener counts how often the camera was opened.
type opener struct {
	cam   *fakeCamera
	err   error
	calls atomic.Int32
}

func (o *opener) open(source string) (FrameSource, error) {
	o.calls.Add(1)
	if o.err != nil {
		return nil, o.err
	}
	return o.cam, nil
}
