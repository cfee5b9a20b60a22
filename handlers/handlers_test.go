package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/faceattendance/database"
	"github.com/camden-git/faceattendance/models"
	"github.com/camden-git/faceattendance/repository"
	"github.com/camden-git/faceattendance/services"
	"github.com/camden-git/faceattendance/workers"
)

type fakeQueue struct {
	mu     sync.Mutex
	queued map[string][][]byte
	err    error
}

func (q *fakeQueue) QueueJob(owner models.StudentIdentity, photos [][]byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	if q.queued == nil {
		q.queued = make(map[string][][]byte)
	}
	id := "job-" + owner.RollNumber
	q.queued[id] = photos
	return id, nil
}

func (q *fakeQueue) Job(id string) (workers.JobInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	photos, ok := q.queued[id]
	if !ok {
		return workers.JobInfo{}, false
	}
	return workers.JobInfo{ID: id, Status: workers.JobQueued, Photos: len(photos)}, true
}

type fakeSessions struct {
	startErr error
	started  []uint
}

func (f *fakeSessions) Start(ctx context.Context, courseSessionID uint, cameraSource string) (services.SessionStatus, error) {
	if f.startErr != nil {
		return services.SessionStatus{}, f.startErr
	}
	f.started = append(f.started, courseSessionID)
	return services.SessionStatus{ID: "sess-1", CourseSessionID: courseSessionID, CameraSource: cameraSource, State: "streaming"}, nil
}

func (f *fakeSessions) Stop(id string) (services.SessionStatus, error) {
	if id != "sess-1" {
		return services.SessionStatus{}, services.ErrSessionNotFound
	}
	return services.SessionStatus{ID: id, State: "stopped"}, nil
}

func (f *fakeSessions) Get(id string) (services.SessionStatus, error) {
	if id != "sess-1" {
		return services.SessionStatus{}, services.ErrSessionNotFound
	}
	return services.SessionStatus{ID: id, State: "streaming"}, nil
}

func (f *fakeSessions) List() []services.SessionStatus {
	return []services.SessionStatus{{ID: "sess-1"}}
}

type testServer struct {
	db       *gorm.DB
	queue    *fakeQueue
	sessions *fakeSessions
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.InitGormDB(database.DriverSQLite, ":memory:", logger.Silent)
	if err != nil {
		t.Fatalf("InitGormDB: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("AutoMigrateModels: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	ts := &testServer{db: db, queue: &fakeQueue{}, sessions: &fakeSessions{}}
	students := repository.NewStudentRepository(db)
	routes := &Routes{
		Students: &StudentHandler{
			Students:       students,
			Embeddings:     repository.NewFaceEmbeddingRepository(db, "test"),
			Queue:          ts.queue,
			MaxUploadBytes: 1 << 20,
		},
		Courses: &CourseHandler{
			Courses:    repository.NewCourseRepository(db),
			Students:   students,
			Attendance: repository.NewAttendanceRepository(db),
			Summary:    repository.NewRosterRepository(db),
		},
		Matching: &MatchingHandler{Sessions: ts.sessions},
	}
	ts.handler = routes.NewRouter()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || len(resp.Errors) != 1 {
		t.Fatalf("not an API error body (%v): %s", err, rec.Body.String())
	}
	return resp.Errors[0]
}

func TestCreateAndListStudents(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/students", `{"roll_number":"CS-10","full_name":"Ada"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	ts.do(t, http.MethodPost, "/api/students", `{"roll_number":"CS-2","full_name":"Bob"}`)

	rec = ts.do(t, http.MethodPost, "/api/students", `{"roll_number":"CS-10","full_name":"Again"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/students", `{"roll_number":"CS-11"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name: %d", rec.Code)
	}
	if detail := decodeAPIError(t, rec).Detail; !strings.Contains(detail, "full_name") {
		t.Fatalf("detail %q should name the field", detail)
	}

	rec = ts.do(t, http.MethodGet, "/api/students", "")
	var students []models.Student
	if err := json.NewDecoder(rec.Body).Decode(&students); err != nil {
		t.Fatal(err)
	}
	if len(students) != 2 {
		t.Fatalf("got %d students", len(students))
	}
}

func multipartPhotos(t *testing.T, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		fw, err := mw.CreateFormFile("photos", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("data of " + name))
	}
	mw.WriteField("note", "ignored")
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadEnrollment(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/students", `{"roll_number":"CS-1","full_name":"Ada"}`)

	body, ctype := multipartPhotos(t, "a.jpg", "b.png", "notes.txt")
	req := httptest.NewRequest(http.MethodPost, "/api/students/CS-1/enrollment", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		JobID  string `json:"job_id"`
		Photos int    `json:"photos"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.JobID != "job-CS-1" || resp.Photos != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = ts.do(t, http.MethodGet, "/api/enrollment/jobs/job-CS-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("job: %d", rec.Code)
	}
	if rec = ts.do(t, http.MethodGet, "/api/enrollment/jobs/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job: %d", rec.Code)
	}
}

func TestUploadEnrollmentErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/students", `{"roll_number":"CS-1","full_name":"Ada"}`)

	tests := []struct {
		name     string
		roll     string
		files    []string
		queueErr error
		want     int
	}{
		{name: "unknown student", roll: "CS-9", files: []string{"a.jpg"}, want: http.StatusNotFound},
		{name: "no photos", roll: "CS-1", files: []string{"readme.md"}, want: http.StatusBadRequest},
		{name: "already pending", roll: "CS-1", files: []string{"a.jpg"}, queueErr: workers.ErrAlreadyPending, want: http.StatusConflict},
		{name: "queue full", roll: "CS-1", files: []string{"a.jpg"}, queueErr: workers.ErrQueueFull, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts.queue.err = tt.queueErr
			body, ctype := multipartPhotos(t, tt.files...)
			req := httptest.NewRequest(http.MethodPost, "/api/students/"+tt.roll+"/enrollment", body)
			req.Header.Set("Content-Type", ctype)
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestEmbeddingCount(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/students", `{"roll_number":"CS-1","full_name":"Ada"}`)

	student, err := repository.NewStudentRepository(ts.db).GetByRollNumber(context.Background(), "CS-1")
	if err != nil {
		t.Fatal(err)
	}
	store := repository.NewFaceEmbeddingRepository(ts.db, "test")
	if err := store.Save(context.Background(), student.Identity(), [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodGet, "/api/students/CS-1/embeddings", "")
	var resp struct {
		RollNumber string `json:"roll_number"`
		Count      int64  `json:"count"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusOK || resp.Count != 2 || resp.RollNumber != "CS-1" {
		t.Fatalf("got %d %+v", rec.Code, resp)
	}
}

func TestCourseSessionAttendance(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/students", `{"roll_number":"CS-1","full_name":"Ada"}`)

	rec := ts.do(t, http.MethodPost, "/api/course-sessions", `{"code":"CS101-A","title":"Intro"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rec.Code, rec.Body.String())
	}
	var session models.CourseSession
	json.NewDecoder(rec.Body).Decode(&session)

	path := "/api/course-sessions/" + itoa(session.ID)
	if rec = ts.do(t, http.MethodPost, path+"/students", `{"roll_number":"CS-1"}`); rec.Code != http.StatusOK {
		t.Fatalf("enroll: %d %s", rec.Code, rec.Body.String())
	}
	if rec = ts.do(t, http.MethodPost, path+"/students", `{"roll_number":"CS-404"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("enroll unknown: %d", rec.Code)
	}

	student, _ := repository.NewStudentRepository(ts.db).GetByRollNumber(context.Background(), "CS-1")
	_, err := repository.NewAttendanceRepository(ts.db).Record(context.Background(), &models.AttendanceRecord{
		CourseSessionID: session.ID,
		StudentID:       student.ID,
		MatchSessionID:  "m1",
		RollNumber:      "CS-1",
		Distance:        0.2,
		MarkedAt:        time.Now().Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}

	rec = ts.do(t, http.MethodGet, path+"/attendance", "")
	var records []models.AttendanceRecord
	json.NewDecoder(rec.Body).Decode(&records)
	if rec.Code != http.StatusOK || len(records) != 1 {
		t.Fatalf("attendance: %d %+v", rec.Code, records)
	}

	rec = ts.do(t, http.MethodGet, path+"/attendance?view=summary", "")
	var summary []database.AttendanceSummary
	json.NewDecoder(rec.Body).Decode(&summary)
	if rec.Code != http.StatusOK || len(summary) != 1 || summary[0].Sessions != 1 {
		t.Fatalf("summary: %d %+v", rec.Code, summary)
	}

	if rec = ts.do(t, http.MethodGet, "/api/course-sessions/999/attendance", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: %d", rec.Code)
	}
	if rec = ts.do(t, http.MethodGet, "/api/course-sessions/abc/attendance", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
}

func TestStartMatchingErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{name: "started", want: http.StatusCreated},
		{name: "roster empty", err: &services.RosterEmptyError{RosterSize: 3}, want: http.StatusUnprocessableEntity, code: "roster_empty"},
		{name: "camera", err: &services.CameraError{Source: "0", Err: errors.New("busy")}, want: http.StatusBadGateway, code: "camera_unavailable"},
		{name: "storage", err: fmtWrap(&repository.StorageError{Op: "load", Err: errors.New("down")}), want: http.StatusServiceUnavailable, code: "storage_unavailable"},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError, code: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.sessions.startErr = tt.err

			rec := ts.do(t, http.MethodPost, "/api/course-sessions/4/matching", `{"camera_source":"0"}`)
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.err != nil {
				if got := decodeAPIError(t, rec).Code; got != tt.code {
					t.Fatalf("code %q, want %q", got, tt.code)
				}
				return
			}
			if len(ts.sessions.started) != 1 || ts.sessions.started[0] != 4 {
				t.Fatalf("started %v", ts.sessions.started)
			}
		})
	}
}

func TestMatchingLookup(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodPost, "/api/course-sessions/4/matching", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing camera: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/matching", ""); rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/matching/sess-1", ""); rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/api/matching/sess-1", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("stop: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/api/matching/other", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("stop unknown: %d", rec.Code)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func fmtWrap(err error) error {
	return fmt.Errorf("failed to load roster embeddings: %w", err)
}
