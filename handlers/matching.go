package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/faceattendance/services"
)

// SessionController starts and stops live matching sessions.
type SessionController interface {
	Start(ctx context.Context, courseSessionID uint, cameraSource string) (services.SessionStatus, error)
	Stop(id string) (services.SessionStatus, error)
	Get(id string) (services.SessionStatus, error)
	List() []services.SessionStatus
}

type MatchingHandler struct {
	Sessions SessionController
}

type startMatchingRequest struct {
	CameraSource string `json:"camera_source" validate:"required"`
}

func (h *MatchingHandler) StartMatching(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "course_session_id")
	if !ok {
		return
	}
	var req startMatchingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	status, err := h.Sessions.Start(r.Context(), id, req.CameraSource)
	if err != nil {
		writeError(w, "starting matching session", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"session_id": status.ID, "session": status})
}

func (h *MatchingHandler) ListMatching(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Sessions.List())
}

func (h *MatchingHandler) GetMatching(w http.ResponseWriter, r *http.Request) {
	status, err := h.Sessions.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, "fetching matching session", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// StopMatching asks the session to stop and returns without waiting.
func (h *MatchingHandler) StopMatching(w http.ResponseWriter, r *http.Request) {
	status, err := h.Sessions.Stop(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, "stopping matching session", err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}
