package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/camden-git/faceattendance/media"
	"github.com/camden-git/faceattendance/models"
	"github.com/camden-git/faceattendance/repository"
	"github.com/camden-git/faceattendance/workers"
)

// EnrollmentQueue accepts asynchronous enrollment jobs.
type EnrollmentQueue interface {
	QueueJob(owner models.StudentIdentity, photos [][]byte) (string, error)
	Job(id string) (workers.JobInfo, bool)
}

// EmbeddingCounter reports how many embeddings a student has stored.
type EmbeddingCounter interface {
	Count(ctx context.Context, owner models.StudentIdentity) (int64, error)
}

type StudentHandler struct {
	Students       repository.StudentRepositoryInterface
	Embeddings     EmbeddingCounter
	Queue          EnrollmentQueue
	MaxUploadBytes int64
}

type createStudentRequest struct {
	RollNumber string `json:"roll_number" validate:"required,max=64"`
	FullName   string `json:"full_name" validate:"required,max=255"`
}

func (h *StudentHandler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	student := &models.Student{
		RollNumber: strings.TrimSpace(req.RollNumber),
		FullName:   strings.TrimSpace(req.FullName),
	}
	if _, err := h.Students.GetByRollNumber(r.Context(), student.RollNumber); err == nil {
		WriteAPIError(w, http.StatusConflict, "duplicate_roll_number", "Roll number already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, "checking roll number", err)
		return
	}

	if err := h.Students.Create(r.Context(), student); err != nil {
		writeError(w, "creating student", err)
		return
	}
	writeJSON(w, http.StatusCreated, student)
}

func (h *StudentHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Students.ListAll(r.Context())
	if err != nil {
		writeError(w, "listing students", err)
		return
	}
	if students == nil {
		students = []models.Student{}
	}
	writeJSON(w, http.StatusOK, students)
}

// UploadEnrollment reads every photo of a multipart upload and queues an
// enrollment job for the student.
func (h *StudentHandler) UploadEnrollment(w http.ResponseWriter, r *http.Request) {
	student, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_multipart", "Invalid multipart form: "+err.Error())
		return
	}

	var photos [][]byte
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteAPIError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "Upload exceeds the size limit")
				return
			}
			log.Printf("UploadEnrollment: error reading part: %v", err)
			WriteAPIError(w, http.StatusBadRequest, "invalid_multipart", "Malformed upload data")
			return
		}

		if field := part.FormName(); field != "photos" && field != "photos[]" {
			// ignore unknown fields
			continue
		}
		if !media.IsRasterImage(part.FileName()) {
			log.Printf("UploadEnrollment: skipping %q for %s: not a supported image", part.FileName(), student.RollNumber)
			continue
		}
		data, err := io.ReadAll(part)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteAPIError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "Upload exceeds the size limit")
				return
			}
			WriteAPIError(w, http.StatusBadRequest, "invalid_multipart", "Failed to read photo: "+err.Error())
			return
		}
		photos = append(photos, data)
	}

	if len(photos) == 0 {
		WriteAPIError(w, http.StatusBadRequest, "no_photos", "No photos uploaded")
		return
	}

	jobID, err := h.Queue.QueueJob(student.Identity(), photos)
	if err != nil {
		writeError(w, "queueing enrollment", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": jobID, "photos": len(photos)})
}

func (h *StudentHandler) GetEnrollmentJob(w http.ResponseWriter, r *http.Request) {
	info, ok := h.Queue.Job(chi.URLParam(r, "job_id"))
	if !ok {
		WriteAPIError(w, http.StatusNotFound, "not_found", "Enrollment job not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *StudentHandler) GetEmbeddingCount(w http.ResponseWriter, r *http.Request) {
	student, ok := h.lookup(w, r)
	if !ok {
		return
	}
	n, err := h.Embeddings.Count(r.Context(), student.Identity())
	if err != nil {
		writeError(w, "counting embeddings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roll_number": student.RollNumber, "count": n})
}

func (h *StudentHandler) lookup(w http.ResponseWriter, r *http.Request) (*models.Student, bool) {
	roll := chi.URLParam(r, "roll_number")
	student, err := h.Students.GetByRollNumber(r.Context(), roll)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "Student not found")
		} else {
			writeError(w, "fetching student", err)
		}
		return nil, false
	}
	return student, true
}
