package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/session"
)

// maxHistoryLimit caps the history page size.
const maxHistoryLimit = 500

// AttendanceHandler lists, clears, saves and archives attendance.
type AttendanceHandler struct {
	svc AttendanceService
}

func NewAttendanceHandler(svc AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{svc: svc}
}

// List handles GET /attendance_data.
func (h *AttendanceHandler) List(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]attendance.Entry{
		"attendance": h.svc.Attendance(),
	})
}

// Clear handles POST /clear_attendance.
func (h *AttendanceHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.ClearAttendance(r.Context()); err != nil {
		slog.Error("failed to clear attendance", "error", err)
		respondStatus(w, http.StatusInternalServerError, statusError, "Failed to save attendance: "+err.Error())
		return
	}
	respondStatus(w, http.StatusOK, statusSuccess, "Attendance cleared successfully")
}

// Save handles POST /save_attendance.
func (h *AttendanceHandler) Save(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.SaveAttendance(r.Context())
	if err != nil {
		slog.Error("failed to save attendance", "error", err)
		respondStatus(w, http.StatusInternalServerError, statusError, "Failed to save attendance: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  statusSuccess,
		"message": "Attendance saved",
		"date":    snap.Date,
		"time":    snap.Time,
		"present": snap.Present,
	})
}

// History handles GET /api/v1/attendance/history?limit=N.
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	history, err := h.svc.History(r.Context(), limit)
	if errors.Is(err, session.ErrArchiveDisabled) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to load attendance history", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load attendance history")
		return
	}
	if history == nil {
		history = []attendance.ArchivedSnapshot{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"snapshots": history,
		"count":     len(history),
	})
}
