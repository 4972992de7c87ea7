package handlers

import (
	"encoding/json"
	"net/http"
)

// FramesHandler accepts webcam frames.
type FramesHandler struct {
	svc AttendanceService
}

func NewFramesHandler(svc AttendanceService) *FramesHandler {
	return &FramesHandler{svc: svc}
}

type processFrameRequest struct {
	Image string `json:"image"`
}

// Process handles POST /process_frame. Processing failures are reported as
// {"error": ...} with status 200 so the page keeps polling.
func (h *FramesHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isBodyTooLarge(err) {
			respondError(w, http.StatusRequestEntityTooLarge, "frame too large")
			return
		}
		respondError(w, http.StatusBadRequest, "No image data received")
		return
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, "No image data received")
		return
	}

	result := h.svc.ProcessFrame(r.Context(), req.Image)
	if result.Error != "" {
		respondError(w, http.StatusOK, result.Error)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
