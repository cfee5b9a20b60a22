package handlers

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/camden-git/faceattendance/database"
	"github.com/camden-git/faceattendance/models"
	"github.com/camden-git/faceattendance/repository"
)

// AttendanceSummarizer aggregates attendance per roster member.
type AttendanceSummarizer interface {
	AttendanceSummary(ctx context.Context, courseSessionID uint) ([]database.AttendanceSummary, error)
}

type CourseHandler struct {
	Courses    repository.CourseRepositoryInterface
	Students   repository.StudentRepositoryInterface
	Attendance repository.AttendanceRepositoryInterface
	Summary    AttendanceSummarizer
}

type createCourseSessionRequest struct {
	Code  string `json:"code" validate:"required,max=64"`
	Title string `json:"title" validate:"required,max=255"`
}

type enrollStudentRequest struct {
	RollNumber string `json:"roll_number" validate:"required"`
}

func (h *CourseHandler) CreateCourseSession(w http.ResponseWriter, r *http.Request) {
	var req createCourseSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session := &models.CourseSession{Code: req.Code, Title: req.Title}
	if err := h.Courses.CreateSession(r.Context(), session); err != nil {
		writeError(w, "creating course session", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *CourseHandler) ListCourseSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Courses.ListSessions(r.Context())
	if err != nil {
		writeError(w, "listing course sessions", err)
		return
	}
	if sessions == nil {
		sessions = []models.CourseSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// EnrollStudent adds a student to the roster of a course session.
func (h *CourseHandler) EnrollStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "course_session_id")
	if !ok {
		return
	}
	var req enrollStudentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if _, err := h.Courses.GetSession(r.Context(), id); err != nil {
		writeError(w, "fetching course session", err)
		return
	}
	student, err := h.Students.GetByRollNumber(r.Context(), req.RollNumber)
	if err != nil {
		writeError(w, "fetching student", err)
		return
	}
	if err := h.Courses.Enroll(r.Context(), id, student.ID); err != nil {
		writeError(w, "enrolling student", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"course_session_id": id,
		"roll_number":       student.RollNumber,
		"status":            models.EnrollmentStatusEnrolled,
	})
}

// GetAttendance returns the raw records, or the per-student summary when
// ?view=summary is given.
func (h *CourseHandler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "course_session_id")
	if !ok {
		return
	}
	if _, err := h.Courses.GetSession(r.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "Course session not found")
			return
		}
		writeError(w, "fetching course session", err)
		return
	}

	if r.URL.Query().Get("view") == "summary" && h.Summary != nil {
		summary, err := h.Summary.AttendanceSummary(r.Context(), id)
		if err != nil {
			writeError(w, "summarizing attendance", err)
			return
		}
		if summary == nil {
			summary = []database.AttendanceSummary{}
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	records, err := h.Attendance.ListByCourseSession(r.Context(), id)
	if err != nil {
		writeError(w, "listing attendance", err)
		return
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
