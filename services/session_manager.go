package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/camden-git/faceattendance/repository"
)

// Event types published by the session manager.
const (
	EventMatch      = "match"
	EventAttendance = "attendance"
	EventSession    = "session"
)

// EventPublisher receives session, match and attendance notifications.
type EventPublisher interface {
	Publish(eventType string, payload map[string]interface{})
}

// MatcherFactory builds a fresh single-use matcher for each session.
type MatcherFactory func() *LiveMatcher

// SessionStatus is the externally visible state of a matching session.
type SessionStatus struct {
	ID              string       `json:"id"`
	CourseSessionID uint         `json:"course_session_id"`
	CameraSource    string       `json:"camera_source"`
	State           string       `json:"state"`
	RosterSize      int          `json:"roster_size"`
	StartedAt       time.Time    `json:"started_at"`
	StoppedAt       *time.Time   `json:"stopped_at,omitempty"`
	Recorded        int64        `json:"recorded"`
	Stats           MatcherStats `json:"stats"`
	Error           string       `json:"error,omitempty"`
}

type matchingSession struct {
	id              string
	courseSessionID uint
	cameraSource    string
	rosterSize      int
	startedAt       time.Time
	matcher         *LiveMatcher
	cancel          context.CancelFunc

	mu        sync.Mutex
	stoppedAt *time.Time
	recorded  int64
	err       error
}

func (s *matchingSession) status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SessionStatus{
		ID:              s.id,
		CourseSessionID: s.courseSessionID,
		CameraSource:    s.cameraSource,
		State:           s.matcher.State().String(),
		RosterSize:      s.rosterSize,
		StartedAt:       s.startedAt,
		StoppedAt:       s.stoppedAt,
		Recorded:        s.recorded,
		Stats:           s.matcher.Stats(),
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}

// SessionManager runs live matchers in the background for the HTTP layer and
// fans their results out to attendance recording and the event feed.
type SessionManager struct {
	newMatcher MatcherFactory
	roster     repository.RosterProvider
	recorder   *AttendanceRecorder
	events     EventPublisher

	mu       sync.RWMutex
	sessions map[string]*matchingSession
	wg       sync.WaitGroup
}

func NewSessionManager(newMatcher MatcherFactory, roster repository.RosterProvider, recorder *AttendanceRecorder, events EventPublisher) *SessionManager {
	return &SessionManager{
		newMatcher: newMatcher,
		roster:     roster,
		recorder:   recorder,
		events:     events,
		sessions:   make(map[string]*matchingSession),
	}
}

// Start resolves the roster of courseSessionID and starts matching on
// cameraSource. The session outlives ctx; use Stop to end it.
func (m *SessionManager) Start(ctx context.Context, courseSessionID uint, cameraSource string) (SessionStatus, error) {
	roster, err := m.roster.GetRoster(ctx, courseSessionID)
	if err != nil {
		return SessionStatus{}, fmt.Errorf("failed to resolve roster for course session %d: %w", courseSessionID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sess := &matchingSession{
		id:              uuid.NewString(),
		courseSessionID: courseSessionID,
		cameraSource:    cameraSource,
		rosterSize:      len(roster),
		startedAt:       time.Now(),
		matcher:         m.newMatcher(),
		cancel:          cancel,
	}

	if err := sess.matcher.Start(runCtx, roster, cameraSource, m.resultHandler(runCtx, sess)); err != nil {
		cancel()
		return SessionStatus{}, err
	}

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	log.Printf("sessions: started %s for course session %d on %q", sess.id, courseSessionID, cameraSource)
	m.publish(EventSession, map[string]interface{}{
		"session_id":        sess.id,
		"course_session_id": courseSessionID,
		"status":            "started",
	})

	m.wg.Add(1)
	go m.watch(sess)

	return sess.status(), nil
}

func (m *SessionManager) watch(sess *matchingSession) {
	defer m.wg.Done()
	err := sess.matcher.Wait()
	sess.cancel()

	now := time.Now()
	sess.mu.Lock()
	sess.stoppedAt = &now
	sess.err = err
	sess.mu.Unlock()

	payload := map[string]interface{}{
		"session_id":        sess.id,
		"course_session_id": sess.courseSessionID,
		"status":            "stopped",
	}
	if err != nil {
		log.Printf("sessions: %s ended with error: %v", sess.id, err)
		payload["error"] = err.Error()
	} else {
		log.Printf("sessions: %s stopped", sess.id)
	}
	m.publish(EventSession, payload)
}

func (m *SessionManager) resultHandler(ctx context.Context, sess *matchingSession) func(MatchResult) {
	return func(res MatchResult) {
		payload := map[string]interface{}{
			"session_id":          sess.id,
			"course_session_id":   sess.courseSessionID,
			"frame_index":         res.FrameIndex,
			"box":                 res.Box,
			"is_match":            res.IsMatch,
			"detector_confidence": res.DetectorConfidence,
		}
		if !math.IsInf(res.Distance, 0) && !math.IsNaN(res.Distance) {
			payload["distance"] = res.Distance
		}
		if res.Candidate != nil {
			payload["roll_number"] = res.Candidate.RollNumber
		}
		m.publish(EventMatch, payload)

		if m.recorder == nil || !res.IsMatch {
			return
		}
		created, err := m.recorder.Record(ctx, sess.id, sess.courseSessionID, res)
		if err != nil {
			log.Printf("sessions: %s: failed to record attendance for %s: %v", sess.id, res.Candidate, err)
			return
		}
		if !created {
			return
		}
		sess.mu.Lock()
		sess.recorded++
		sess.mu.Unlock()
		m.publish(EventAttendance, map[string]interface{}{
			"session_id":        sess.id,
			"course_session_id": sess.courseSessionID,
			"roll_number":       res.Candidate.RollNumber,
			"distance":          res.Distance,
		})
	}
}

func (m *SessionManager) publish(eventType string, payload map[string]interface{}) {
	if m.events != nil {
		m.events.Publish(eventType, payload)
	}
}

// Stop signals the session to end. It returns immediately.
func (m *SessionManager) Stop(id string) (SessionStatus, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return SessionStatus{}, err
	}
	sess.matcher.Stop()
	return sess.status(), nil
}

func (m *SessionManager) Get(id string) (SessionStatus, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return SessionStatus{}, err
	}
	return sess.status(), nil
}

// List returns every session, newest first.
func (m *SessionManager) List() []SessionStatus {
	m.mu.RLock()
	out := make([]SessionStatus, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.status())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Shutdown stops every session and waits for their loops to exit.
func (m *SessionManager) Shutdown() {
	m.mu.RLock()
	for _, sess := range m.sessions {
		sess.matcher.Stop()
	}
	m.mu.RUnlock()
	m.wg.Wait()
}

func (m *SessionManager) lookup(id string) (*matchingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}
