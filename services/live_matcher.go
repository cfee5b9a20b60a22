package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camden-git/faceattendance/media"
	"github.com/camden-git/faceattendance/models"
	"github.com/camden-git/faceattendance/repository"
)

const (
	DefaultMaxConsecutiveReadFailures = 5
	DefaultReadRetryDelay             = 100 * time.Millisecond
)

// FrameSource yields frames in capture order. Read returns io.EOF when the
// source is exhausted; any other error is treated as transient.
type FrameSource interface {
	Read() (image.Image, error)
	Close() error
}

// CameraOpener opens a frame source such as a device index, stream URL or file.
type CameraOpener func(source string) (FrameSource, error)

// MatcherState is the lifecycle position of a LiveMatcher.
type MatcherState int32

const (
	StateIdle MatcherState = iota
	StateStreaming
	StateDetecting
	StateMatching
	StateReporting
	StateStopped
)

func (s MatcherState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDetecting:
		return "detecting"
	case StateMatching:
		return "matching"
	case StateReporting:
		return "reporting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MatchResult is the outcome for one detected face in one frame.
type MatchResult struct {
	Candidate          *models.StudentIdentity `json:"candidate"`
	Distance           float64                 `json:"distance"`
	IsMatch            bool                    `json:"is_match"`
	Box                media.BoundingBox       `json:"box"`
	FrameIndex         int                     `json:"frame_index"`
	DetectorConfidence float32                 `json:"detector_confidence"`
	At                 time.Time               `json:"at"`
}

// MatcherConfig tunes a LiveMatcher.
type MatcherConfig struct {
	// Threshold is the maximum cosine distance that counts as a match.
	Threshold                  float64
	MaxConsecutiveReadFailures int
	ReadRetryDelay             time.Duration
}

// MatcherStats are counters exposed while a session runs.
type MatcherStats struct {
	FramesRead   int64 `json:"frames_read"`
	FacesSeen    int64 `json:"faces_seen"`
	Matches      int64 `json:"matches"`
	ReadFailures int64 `json:"read_failures"`
}

// LiveMatcher identifies roster students in a camera stream. It is single
// use: once stopped it cannot be restarted.
type LiveMatcher struct {
	extractor  *media.FaceExtractor
	encoder    *media.EmbeddingEncoder
	store      repository.EmbeddingStore
	openCamera CameraOpener
	cfg        MatcherConfig

	state    atomic.Int32
	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error

	framesRead   atomic.Int64
	facesSeen    atomic.Int64
	matches      atomic.Int64
	readFailures atomic.Int64
}

func NewLiveMatcher(extractor *media.FaceExtractor, encoder *media.EmbeddingEncoder, store repository.EmbeddingStore, openCamera CameraOpener, cfg MatcherConfig) *LiveMatcher {
	if cfg.MaxConsecutiveReadFailures <= 0 {
		cfg.MaxConsecutiveReadFailures = DefaultMaxConsecutiveReadFailures
	}
	if cfg.ReadRetryDelay < 0 {
		cfg.ReadRetryDelay = 0
	}
	return &LiveMatcher{
		extractor:  extractor,
		encoder:    encoder,
		store:      store,
		openCamera: openCamera,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (m *LiveMatcher) State() MatcherState {
	return MatcherState(m.state.Load())
}

func (m *LiveMatcher) Stats() MatcherStats {
	return MatcherStats{
		FramesRead:   m.framesRead.Load(),
		FacesSeen:    m.facesSeen.Load(),
		Matches:      m.matches.Load(),
		ReadFailures: m.readFailures.Load(),
	}
}

// Start loads the roster's embeddings, opens the camera and launches the
// streaming loop. The camera is not opened when no roster member has any
// stored embedding. onResult is called from the loop goroutine, once per
// detected face, in frame order.
func (m *LiveMatcher) Start(ctx context.Context, roster models.Roster, cameraSource string, onResult func(MatchResult)) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrMatcherNotIdle
	}

	embeddings, err := m.store.Load(ctx, roster)
	if err != nil {
		err = fmt.Errorf("failed to load roster embeddings: %w", err)
		m.finish(err)
		return err
	}

	gallery := NewGallery(roster, embeddings)
	if gallery.Len() == 0 {
		err := &RosterEmptyError{RosterSize: len(roster)}
		m.finish(err)
		return err
	}

	select {
	case <-m.stopCh:
		m.finish(nil)
		return nil
	default:
	}

	cam, err := m.openCamera(cameraSource)
	if err != nil {
		camErr := &CameraError{Source: cameraSource, Err: err}
		m.finish(camErr)
		return camErr
	}

	log.Printf("matcher: streaming %q against %d embeddings of %d students", cameraSource, gallery.Len(), len(roster))
	m.setState(StateStreaming)
	go m.loop(ctx, cam, cameraSource, gallery, onResult)
	return nil
}

// Run is Start followed by Wait.
func (m *LiveMatcher) Run(ctx context.Context, roster models.Roster, cameraSource string, onResult func(MatchResult)) error {
	if err := m.Start(ctx, roster, cameraSource, onResult); err != nil {
		return err
	}
	return m.Wait()
}

// Stop asks the loop to end after the current frame. It never blocks and may
// be called any number of times from any goroutine.
func (m *LiveMatcher) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	// never started: nothing else will move it to Stopped
	if m.started.CompareAndSwap(false, true) {
		m.finish(nil)
	}
}

// Wait blocks until the matcher is stopped and returns the error that ended
// it: a *CameraError, a Start failure, or nil.
func (m *LiveMatcher) Wait() error {
	<-m.done
	return m.err
}

// Done is closed once the matcher reaches StateStopped.
func (m *LiveMatcher) Done() <-chan struct{} {
	return m.done
}

func (m *LiveMatcher) setState(s MatcherState) {
	m.state.Store(int32(s))
}

func (m *LiveMatcher) finish(err error) {
	m.err = err
	m.setState(StateStopped)
	close(m.done)
}

func (m *LiveMatcher) loop(ctx context.Context, cam FrameSource, source string, gallery *Gallery, onResult func(MatchResult)) {
	var loopErr error
	defer func() {
		if err := cam.Close(); err != nil {
			log.Printf("matcher: failed to close camera %q: %v", source, err)
		}
		log.Printf("matcher: stopped %q after %d frames", source, m.framesRead.Load())
		m.finish(loopErr)
	}()

	failures := 0
	frameIndex := 0
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		m.setState(StateStreaming)
		frame, err := cam.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("matcher: source %q exhausted", source)
				return
			}
			failures++
			m.readFailures.Add(1)
			log.Printf("matcher: frame read failed (%d/%d): %v", failures, m.cfg.MaxConsecutiveReadFailures, err)
			if failures >= m.cfg.MaxConsecutiveReadFailures {
				loopErr = &CameraError{Source: source, Err: fmt.Errorf("%d consecutive read failures: %w", failures, err)}
				return
			}
			if !m.sleep(ctx, m.cfg.ReadRetryDelay) {
				return
			}
			continue
		}

		failures = 0
		m.framesRead.Add(1)
		m.processFrame(frameIndex, frame, gallery, onResult)
		frameIndex++
	}
}

// sleep waits d unless the matcher is stopped first.
func (m *LiveMatcher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-m.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (m *LiveMatcher) processFrame(frameIndex int, frame image.Image, gallery *Gallery, onResult func(MatchResult)) {
	m.setState(StateDetecting)
	res := m.extractor.Extract(frame, media.ModeMultiFace)
	if !res.Diagnostic.OK() {
		log.Printf("matcher: frame %d skipped: %s", frameIndex, res.Diagnostic)
		return
	}
	if len(res.Faces) == 0 {
		return
	}

	m.setState(StateMatching)
	now := time.Now()
	results := make([]MatchResult, 0, len(res.Faces))
	for _, face := range res.Faces {
		m.facesSeen.Add(1)
		vec, err := m.encoder.Encode(face)
		if err != nil {
			log.Printf("matcher: frame %d face at %+v: %v", frameIndex, face.Box, err)
			continue
		}
		candidate, distance, ok := gallery.BestMatch(vec, m.cfg.Threshold)
		if ok {
			m.matches.Add(1)
		}
		results = append(results, MatchResult{
			Candidate:          candidate,
			Distance:           distance,
			IsMatch:            ok,
			Box:                face.Box,
			FrameIndex:         frameIndex,
			DetectorConfidence: face.Confidence,
			At:                 now,
		})
	}

	m.setState(StateReporting)
	for _, r := range results {
		onResult(r)
	}
}
