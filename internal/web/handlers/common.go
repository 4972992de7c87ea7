package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/session"
)

// Statuses used in {status, message} responses.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// AttendanceService is the live attendance state the handlers drive.
// *session.Session implements it.
type AttendanceService interface {
	ProcessFrame(ctx context.Context, frame string) session.FrameResult
	Register(ctx context.Context, roll, name string) error
	Attendance() []attendance.Entry
	ClearAttendance(ctx context.Context) (attendance.Snapshot, error)
	SaveAttendance(ctx context.Context) (attendance.Snapshot, error)
	History(ctx context.Context, limit int) ([]attendance.ArchivedSnapshot, error)
	PendingFace() (*session.PendingFace, bool)
	Stats() session.Stats
}

// statusResponse is the {status, message} body of the mutating endpoints.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStatus sends a {status, message} response.
func respondStatus(w http.ResponseWriter, code int, status, message string) {
	respondJSON(w, code, statusResponse{Status: status, Message: message})
}

// isBodyTooLarge reports whether err came from a request body size limit.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// HealthHandler reports liveness plus the size of the loaded state.
type HealthHandler struct {
	svc AttendanceService
}

func NewHealthHandler(svc AttendanceService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Get handles GET /api/v1/health.
func (h *HealthHandler) Get(w http.ResponseWriter, _ *http.Request) {
	st := h.svc.Stats()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"known_faces":  st.KnownFaces,
		"roster_size":  st.RosterSize,
		"present":      st.Present,
		"pending_face": st.PendingFace,
	})
}
