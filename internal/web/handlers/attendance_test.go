package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/session"
)

func TestAttendanceHandler_List(t *testing.T) {
	svc := &fakeService{entries: []attendance.Entry{
		{Roll: "101", Name: "Alice"},
		{Roll: "205", Name: "Unknown"},
	}}
	recorder := httptest.NewRecorder()

	NewAttendanceHandler(svc).List(recorder, httptest.NewRequest(http.MethodGet, "/attendance_data", nil))

	assertStatusCode(t, recorder, http.StatusOK)

	var result map[string][]attendance.Entry
	parseJSONResponse(t, recorder, &result)
	if len(result["attendance"]) != 2 || result["attendance"][1].Name != "Unknown" {
		t.Errorf("unexpected attendance %v", result)
	}
}

func TestAttendanceHandler_ListEmpty(t *testing.T) {
	svc := &fakeService{entries: []attendance.Entry{}}
	recorder := httptest.NewRecorder()

	NewAttendanceHandler(svc).List(recorder, httptest.NewRequest(http.MethodGet, "/attendance_data", nil))

	if recorder.Body.String() != "{\"attendance\":[]}\n" {
		t.Errorf("expected empty list, got '%s'", recorder.Body.String())
	}
}

func TestAttendanceHandler_Clear(t *testing.T) {
	svc := &fakeService{}
	handler := NewAttendanceHandler(svc)

	for range 2 {
		recorder := httptest.NewRecorder()
		handler.Clear(recorder, httptest.NewRequest(http.MethodPost, "/clear_attendance", nil))

		assertStatusCode(t, recorder, http.StatusOK)
		assertStatusMessage(t, recorder, statusSuccess, "Attendance cleared successfully")
	}
	if svc.cleared != 2 {
		t.Errorf("expected 2 clear calls, got %d", svc.cleared)
	}
}

func TestAttendanceHandler_ClearFailure(t *testing.T) {
	svc := &fakeService{clearErr: fmt.Errorf("%w: read-only file system", session.ErrPersist)}
	recorder := httptest.NewRecorder()

	NewAttendanceHandler(svc).Clear(recorder, httptest.NewRequest(http.MethodPost, "/clear_attendance", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)

	var result statusResponse
	parseJSONResponse(t, recorder, &result)
	if result.Status != statusError {
		t.Errorf("expected status 'error', got '%s'", result.Status)
	}
}

func TestAttendanceHandler_Save(t *testing.T) {
	svc := &fakeService{saveSnapshot: attendance.Snapshot{
		Date:    "2024-03-05",
		Time:    "09:00:00",
		Present: []attendance.Entry{{Roll: "101", Name: "Alice"}},
	}}
	recorder := httptest.NewRecorder()

	NewAttendanceHandler(svc).Save(recorder, httptest.NewRequest(http.MethodPost, "/save_attendance", nil))

	assertStatusCode(t, recorder, http.StatusOK)

	var result struct {
		Status  string             `json:"status"`
		Date    string             `json:"date"`
		Present []attendance.Entry `json:"present"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.Status != statusSuccess || result.Date != "2024-03-05" || len(result.Present) != 1 {
		t.Errorf("unexpected response %+v", result)
	}
}

func TestAttendanceHandler_SaveFailure(t *testing.T) {
	svc := &fakeService{saveErr: errors.New("disk full")}
	recorder := httptest.NewRecorder()

	NewAttendanceHandler(svc).Save(recorder, httptest.NewRequest(http.MethodPost, "/save_attendance", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
}

func TestAttendanceHandler_History(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		expectedCode  int
		expectedLimit int
	}{
		{"default limit", "", http.StatusOK, constants.DefaultHistoryLimit},
		{"explicit limit", "?limit=5", http.StatusOK, 5},
		{"capped limit", "?limit=100000", http.StatusOK, maxHistoryLimit},
		{"invalid limit", "?limit=abc", http.StatusBadRequest, 0},
		{"negative limit", "?limit=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{history: []attendance.ArchivedSnapshot{{ID: "a", Reason: attendance.ReasonClear}}}
			recorder := httptest.NewRecorder()

			NewAttendanceHandler(svc).History(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/history"+tt.query, nil))

			assertStatusCode(t, recorder, tt.expectedCode)
			if svc.historyLimit != tt.expectedLimit {
				t.Errorf("expected limit %d, got %d", tt.expectedLimit, svc.historyLimit)
			}
		})
	}
}

func TestAttendanceHandler_HistoryDisabled(t *testing.T) {
	svc := &fakeService{historyErr: session.ErrArchiveDisabled}
	recorder := httptest.NewRecorder()

	NewAttendanceHandler(svc).History(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/history", nil))

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, session.ErrArchiveDisabled.Error())
}

func TestAttendanceHandler_HistoryEmpty(t *testing.T) {
	recorder := httptest.NewRecorder()

	NewAttendanceHandler(&fakeService{}).History(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/history", nil))

	var result struct {
		Snapshots []attendance.ArchivedSnapshot `json:"snapshots"`
		Count     int                           `json:"count"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.Snapshots == nil || result.Count != 0 {
		t.Errorf("expected empty snapshot list, got %+v", result)
	}
}
