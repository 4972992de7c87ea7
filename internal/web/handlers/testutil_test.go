package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/session"
)

// fakeService is an AttendanceService with canned results.
type fakeService struct {
	frameResult session.FrameResult
	lastFrame   string

	registerErr  error
	registered   [][2]string
	entries      []attendance.Entry
	clearErr     error
	cleared      int
	saveSnapshot attendance.Snapshot
	saveErr      error
	history      []attendance.ArchivedSnapshot
	historyErr   error
	historyLimit int
	pending      *session.PendingFace
	stats        session.Stats
}

func (f *fakeService) ProcessFrame(_ context.Context, frame string) session.FrameResult {
	f.lastFrame = frame
	return f.frameResult
}

func (f *fakeService) Register(_ context.Context, roll, name string) error {
	f.registered = append(f.registered, [2]string{roll, name})
	return f.registerErr
}

func (f *fakeService) Attendance() []attendance.Entry {
	return f.entries
}

func (f *fakeService) ClearAttendance(context.Context) (attendance.Snapshot, error) {
	f.cleared++
	return attendance.Snapshot{Present: []attendance.Entry{}}, f.clearErr
}

func (f *fakeService) SaveAttendance(context.Context) (attendance.Snapshot, error) {
	return f.saveSnapshot, f.saveErr
}

func (f *fakeService) History(_ context.Context, limit int) ([]attendance.ArchivedSnapshot, error) {
	f.historyLimit = limit
	return f.history, f.historyErr
}

func (f *fakeService) PendingFace() (*session.PendingFace, bool) {
	return f.pending, f.pending != nil
}

func (f *fakeService) Stats() session.Stats {
	return f.stats
}

// pendingFace returns a pending capture with a w x h face.
func pendingFace(w, h int) *session.PendingFace {
	return &session.PendingFace{Face: image.NewRGBA(image.Rect(0, 0, w, h))}
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// assertStatusMessage checks a {status, message} response.
func assertStatusMessage(t *testing.T, recorder *httptest.ResponseRecorder, status, message string) {
	t.Helper()
	var result statusResponse
	parseJSONResponse(t, recorder, &result)
	if result.Status != status {
		t.Errorf("expected status '%s', got '%s'", status, result.Status)
	}
	if result.Message != message {
		t.Errorf("expected message '%s', got '%s'", message, result.Message)
	}
}
