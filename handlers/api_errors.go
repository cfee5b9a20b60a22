package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/camden-git/faceattendance/repository"
	"github.com/camden-git/faceattendance/services"
	"github.com/camden-git/faceattendance/workers"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// statusForError maps the error taxonomy onto an HTTP status and error code.
func statusForError(err error) (int, string) {
	var (
		rosterEmpty *services.RosterEmptyError
		camera      *services.CameraError
		storage     *repository.StorageError
		enrollment  *services.EnrollmentError
	)
	switch {
	case errors.As(err, &rosterEmpty):
		return http.StatusUnprocessableEntity, "roster_empty"
	case errors.As(err, &camera):
		return http.StatusBadGateway, "camera_unavailable"
	case errors.As(err, &storage):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.As(err, &enrollment):
		return http.StatusUnprocessableEntity, "enrollment_failed"
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, workers.ErrAlreadyPending):
		return http.StatusConflict, "enrollment_pending"
	case errors.Is(err, workers.ErrQueueFull):
		return http.StatusServiceUnavailable, "queue_full"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError logs server-side failures and answers with the mapped status.
func writeError(w http.ResponseWriter, what string, err error) {
	status, code := statusForError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("Error %s: %v", what, err)
	}
	WriteAPIError(w, status, code, err.Error())
}
