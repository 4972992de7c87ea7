package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/session"
)

// StudentsHandler registers unknown faces as students.
type StudentsHandler struct {
	svc AttendanceService
}

func NewStudentsHandler(svc AttendanceService) *StudentsHandler {
	return &StudentsHandler{svc: svc}
}

type registerRequest struct {
	Roll *string `json:"roll"`
	Name *string `json:"name"`
}

// Register handles POST /register_student.
func (h *StudentsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondStatus(w, http.StatusBadRequest, statusError, "Missing required data")
		return
	}
	if req.Roll == nil || req.Name == nil {
		respondStatus(w, http.StatusBadRequest, statusError, "Missing required data")
		return
	}

	err := h.svc.Register(r.Context(), *req.Roll, *req.Name)
	switch {
	case err == nil:
		respondStatus(w, http.StatusOK, statusSuccess, "Student added successfully")
	case errors.Is(err, session.ErrInvalidInput):
		respondStatus(w, http.StatusBadRequest, statusError, err.Error())
	case errors.Is(err, session.ErrNoPendingFace):
		respondStatus(w, http.StatusOK, statusError, "No unknown face available")
	case errors.Is(err, session.ErrDuplicateRoll):
		respondStatus(w, http.StatusOK, statusError, "Roll number already exists (duplicate)")
	case errors.Is(err, session.ErrFaceNotEncoded):
		respondStatus(w, http.StatusOK, statusError, "Failed to encode face")
	default:
		slog.Error("registration failed", "roll", sanitizeForLog(*req.Roll), "error", err)
		respondStatus(w, http.StatusInternalServerError, statusError, "Failed to save student: "+err.Error())
	}
}

// PendingFace handles GET /pending_face and returns the face awaiting registration as PNG.
func (h *StudentsHandler) PendingFace(w http.ResponseWriter, _ *http.Request) {
	pending, ok := h.svc.PendingFace()
	if !ok {
		respondError(w, http.StatusNotFound, "no unknown face available")
		return
	}

	data, err := imaging.EncodePNG(pending.Face)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode face")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
