package session

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/encodings"
	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/roster"
)

// fakeRecognizer returns queued results in order, then no faces.
type fakeRecognizer struct {
	mu      sync.Mutex
	results [][]recognition.Face
	errs    []error
	calls   int
}

func (f *fakeRecognizer) queue(faces ...recognition.Face) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, faces)
	f.errs = append(f.errs, nil)
}

func (f *fakeRecognizer) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, nil)
	f.errs = append(f.errs, err)
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ image.Image) ([]recognition.Face, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return nil, nil
	}
	faces, err := f.results[0], f.errs[0]
	f.results, f.errs = f.results[1:], f.errs[1:]
	return faces, err
}

func (f *fakeRecognizer) Close() error { return nil }

func face(x int, desc ...float32) recognition.Face {
	return recognition.Face{Box: image.Rect(x, 10, x+20, 30), Descriptor: desc}
}

type fixture struct {
	dir        string
	session    *Session
	recognizer *fakeRecognizer
	roster     *roster.Store
	encodings  *encodings.Store
	archive    *memoryArchive
}

func (f *fixture) rosterContent(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.roster.Path())
	if err != nil {
		t.Fatalf("failed to read roster: %v", err)
	}
	return string(data)
}

// newFixture creates a session whose roster holds 101,Alice and whose known
// faces hold roll 101 at the origin.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	rosterStore := roster.New(filepath.Join(dir, "students.csv"))
	if _, err := rosterStore.Append("101", "Alice"); err != nil {
		t.Fatalf("failed to seed roster: %v", err)
	}

	encStore := encodings.New(filepath.Join(dir, "face_encodings.gob"), filepath.Join(dir, "images"))
	known := &encodings.KnownFaces{}
	known.Add("101", []float32{0, 0})
	if err := encStore.Save(known); err != nil {
		t.Fatalf("failed to seed encodings: %v", err)
	}

	rec := &fakeRecognizer{}
	archive := &memoryArchive{}
	s, _, err := New(context.Background(), Options{
		Roster:     rosterStore,
		Encodings:  encStore,
		Attendance: attendance.NewWriter(filepath.Join(dir, "attendance.json")),
		ImagesDir:  filepath.Join(dir, "images"),
		Recognizer: rec,
		Tolerance:  0.6,
		Archive:    archive,
		Now:        func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return &fixture{dir: dir, session: s, recognizer: rec, roster: rosterStore, encodings: encStore, archive: archive}
}

func testFrame(t *testing.T) string {
	t.Helper()
	data, err := imaging.EncodePNG(image.NewRGBA(image.Rect(0, 0, 80, 60)))
	if err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// memoryArchive records archived snapshots.
type memoryArchive struct {
	snapshots []attendance.ArchivedSnapshot
	err       error
}

func (a *memoryArchive) Archive(_ context.Context, reason string, snap attendance.Snapshot) (*attendance.ArchivedSnapshot, error) {
	if a.err != nil {
		return nil, a.err
	}
	archived := attendance.ArchivedSnapshot{ID: reason, Reason: reason, Snapshot: snap}
	a.snapshots = append(a.snapshots, archived)
	return &archived, nil
}

func (a *memoryArchive) History(_ context.Context, limit int) ([]attendance.ArchivedSnapshot, error) {
	if len(a.snapshots) > limit {
		return a.snapshots[:limit], nil
	}
	return a.snapshots, nil
}

func TestProcessFrame_KnownFace(t *testing.T) {
	f := newFixture(t)
	f.recognizer.queue(face(5, 0.1, 0))

	res := f.session.ProcessFrame(context.Background(), testFrame(t))

	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if len(res.Faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(res.Faces))
	}
	got := res.Faces[0]
	if got.Status != StatusKnown || got.Roll != "101" || got.Name != "Alice" {
		t.Errorf("unexpected face %+v", got)
	}
	if got.Box != [4]int{5, 10, 25, 30} {
		t.Errorf("unexpected box %v", got.Box)
	}
	if res.AttendanceCount != 1 || res.UnknownDetected {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestProcessFrame_UnknownFace(t *testing.T) {
	f := newFixture(t)
	f.recognizer.queue(face(5, 3, 3))

	res := f.session.ProcessFrame(context.Background(), testFrame(t))

	if len(res.Faces) != 1 || res.Faces[0].Status != StatusUnknown || res.Faces[0].Name != "Unknown" {
		t.Fatalf("expected one unknown face, got %+v", res.Faces)
	}
	if res.Faces[0].Roll != "" {
		t.Errorf("unknown face must not carry a roll, got '%s'", res.Faces[0].Roll)
	}
	if !res.UnknownDetected || res.AttendanceCount != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	pending, ok := f.session.PendingFace()
	if !ok {
		t.Fatal("expected a pending face")
	}
	if pending.Face.Bounds().Dx() != 20 || pending.Face.Bounds().Dy() != 20 {
		t.Errorf("expected 20x20 crop, got %v", pending.Face.Bounds())
	}
}

func TestProcessFrame_LastUnknownWins(t *testing.T) {
	f := newFixture(t)
	f.recognizer.queue(face(0, 3, 3), face(40, 4, 4))

	res := f.session.ProcessFrame(context.Background(), testFrame(t))
	if len(res.Faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(res.Faces))
	}

	pending, ok := f.session.PendingFace()
	if !ok {
		t.Fatal("expected a pending face")
	}
	if pending.Box != image.Rect(40, 10, 60, 30) {
		t.Errorf("expected the second face to be pending, got box %v", pending.Box)
	}
}

func TestProcessFrame_MissingRosterNameFallsBackToRoll(t *testing.T) {
	f := newFixture(t)
	f.session.known.Add("205", []float32{10, 10})
	f.session.matcher.Add([]float32{10, 10})
	f.recognizer.queue(face(0, 10, 10.2))

	res := f.session.ProcessFrame(context.Background(), testFrame(t))
	if len(res.Faces) != 1 || res.Faces[0].Name != "205" {
		t.Fatalf("expected name to fall back to roll, got %+v", res.Faces)
	}

	entries := f.session.Attendance()
	if len(entries) != 1 || entries[0].Name != "Unknown" {
		t.Errorf("expected listing to show Unknown, got %+v", entries)
	}
}

func TestProcessFrame_Errors(t *testing.T) {
	f := newFixture(t)

	res := f.session.ProcessFrame(context.Background(), "data:image/jpeg;base64,!!!")
	if res.Error == "" {
		t.Error("expected error for invalid base64")
	}

	res = f.session.ProcessFrame(context.Background(), base64.StdEncoding.EncodeToString([]byte("not an image")))
	if res.Error == "" {
		t.Error("expected error for undecodable image")
	}

	f.recognizer.fail(errors.New("detector crashed"))
	res = f.session.ProcessFrame(context.Background(), testFrame(t))
	if !strings.Contains(res.Error, "detector crashed") {
		t.Errorf("expected recognizer error, got '%s'", res.Error)
	}

	if st := f.session.Stats(); st.Present != 0 || st.PendingFace {
		t.Errorf("expected no state change after errors, got %+v", st)
	}
}

func TestRegister_NoPendingFace(t *testing.T) {
	f := newFixture(t)
	before := f.rosterContent(t)

	err := f.session.Register(context.Background(), "102", "Bob")
	if !errors.Is(err, ErrNoPendingFace) {
		t.Fatalf("expected ErrNoPendingFace, got %v", err)
	}
	if f.rosterContent(t) != before {
		t.Error("roster must not change")
	}
	if _, statErr := os.Stat(filepath.Join(f.dir, "images", "102.png")); !os.IsNotExist(statErr) {
		t.Error("no reference image must be written")
	}
	if f.recognizer.calls != 0 {
		t.Errorf("expected no recognizer calls, got %d", f.recognizer.calls)
	}
}

func TestRegister_DuplicateRoll(t *testing.T) {
	f := newFixture(t)
	f.recognizer.queue(face(5, 3, 3))
	f.session.ProcessFrame(context.Background(), testFrame(t))
	before := f.rosterContent(t)

	err := f.session.Register(context.Background(), "101", "Carol")
	if !errors.Is(err, ErrDuplicateRoll) {
		t.Fatalf("expected ErrDuplicateRoll, got %v", err)
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected message to mention duplicate, got '%s'", err)
	}
	if f.rosterContent(t) != before {
		t.Error("roster must not change")
	}
	if _, ok := f.session.PendingFace(); !ok {
		t.Error("pending face must survive a rejected registration")
	}
}

func TestRegister_InvalidInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		roll string
		nm   string
	}{
		{"empty roll", "  ", "Bob"},
		{"empty name", "102", " "},
		{"path traversal", "../102", "Bob"},
		{"separator", "a/b", "Bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.session.Register(context.Background(), tt.roll, tt.nm); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)
	f.recognizer.queue(face(5, 3, 3))
	f.session.ProcessFrame(context.Background(), testFrame(t))

	f.recognizer.queue(face(0, 3, 3.1))
	if err := f.session.Register(context.Background(), "102", "Bob"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(f.dir, "images", "102.png")); err != nil {
		t.Errorf("expected reference image: %v", err)
	}
	if got := f.rosterContent(t); got != "101,Alice\n102,Bob\n" {
		t.Errorf("unexpected roster %q", got)
	}
	saved, err := f.encodings.Read()
	if err != nil {
		t.Fatalf("failed to read encodings: %v", err)
	}
	if saved.Len() != 2 || saved.IDs[1] != "102" {
		t.Errorf("unexpected saved encodings %v", saved.IDs)
	}

	st := f.session.Stats()
	if st.KnownFaces != 2 || st.RosterSize != 2 || st.Present != 1 || st.PendingFace {
		t.Errorf("unexpected stats %+v", st)
	}

	// The new student is recognized from now on.
	f.recognizer.queue(face(5, 3, 3))
	res := f.session.ProcessFrame(context.Background(), testFrame(t))
	if len(res.Faces) != 1 || res.Faces[0].Roll != "102" || res.Faces[0].Name != "Bob" {
		t.Errorf("expected Bob to be recognized, got %+v", res.Faces)
	}
}

func TestRegister_FaceNotEncoded(t *testing.T) {
	f := newFixture(t)
	f.recognizer.queue(face(5, 3, 3))
	f.session.ProcessFrame(context.Background(), testFrame(t))

	f.recognizer.queue()
	err := f.session.Register(context.Background(), "102", "Bob")
	if !errors.Is(err, ErrFaceNotEncoded) {
		t.Fatalf("expected ErrFaceNotEncoded, got %v", err)
	}
	if got := f.rosterContent(t); got != "101,Alice\n" {
		t.Errorf("roster must not change, got %q", got)
	}
}

func TestRegister_RollbackOnBlobFailure(t *testing.T) {
	f := newFixture(t)
	f.recognizer.queue(face(5, 3, 3))
	f.session.ProcessFrame(context.Background(), testFrame(t))

	// A directory in place of the blob makes the final write fail.
	if err := os.Remove(f.encodings.Path()); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(f.encodings.Path(), "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}

	f.recognizer.queue(face(0, 3, 3))
	err := f.session.Register(context.Background(), "102", "Bob")
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}

	if got := f.rosterContent(t); got != "101,Alice\n" {
		t.Errorf("expected roster rolled back, got %q", got)
	}
	if _, statErr := os.Stat(filepath.Join(f.dir, "images", "102.png")); !os.IsNotExist(statErr) {
		t.Error("expected reference image removed")
	}

	st := f.session.Stats()
	if st.KnownFaces != 1 || st.RosterSize != 1 || st.Present != 0 || !st.PendingFace {
		t.Errorf("expected memory untouched, got %+v", st)
	}
}

func TestClearAttendance_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.recognizer.queue(face(5, 0, 0))
	f.session.ProcessFrame(context.Background(), testFrame(t))

	for i := range 2 {
		snap, err := f.session.ClearAttendance(context.Background())
		if err != nil {
			t.Fatalf("clear %d failed: %v", i, err)
		}
		if len(snap.Present) != 0 {
			t.Errorf("clear %d: expected empty snapshot, got %v", i, snap.Present)
		}
		data, err := os.ReadFile(filepath.Join(f.dir, "attendance.json"))
		if err != nil {
			t.Fatalf("failed to read attendance file: %v", err)
		}
		if !strings.Contains(string(data), `"present": []`) {
			t.Errorf("clear %d: expected empty present list, got:\n%s", i, data)
		}
	}

	// Only the first clear had something to archive.
	if len(f.archive.snapshots) != 1 {
		t.Fatalf("expected 1 archived snapshot, got %d", len(f.archive.snapshots))
	}
	if p := f.archive.snapshots[0].Snapshot.Present; len(p) != 1 || p[0].Roll != "101" {
		t.Errorf("expected pre-clear state archived, got %v", p)
	}
}

func TestSaveAttendance(t *testing.T) {
	f := newFixture(t)
	f.recognizer.queue(face(5, 0, 0))
	f.session.ProcessFrame(context.Background(), testFrame(t))

	snap, err := f.session.SaveAttendance(context.Background())
	if err != nil {
		t.Fatalf("SaveAttendance failed: %v", err)
	}
	if snap.Date != "2024-03-05" || snap.Time != "09:00:00" {
		t.Errorf("unexpected timestamp %s %s", snap.Date, snap.Time)
	}
	if len(snap.Present) != 1 || snap.Present[0].Name != "Alice" {
		t.Errorf("unexpected present list %v", snap.Present)
	}
	if f.session.Stats().Present != 1 {
		t.Error("save must not clear attendance")
	}
}

func TestSaveAttendance_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.archive.err = errors.New("database down")

	if _, err := f.session.SaveAttendance(context.Background()); err != nil {
		t.Errorf("expected archive failure to be logged only, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	if _, err := f.session.SaveAttendance(context.Background()); err != nil {
		t.Fatal(err)
	}

	history, err := f.session.History(context.Background(), 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Reason != attendance.ReasonSave {
		t.Errorf("unexpected history %+v", history)
	}

	f.session.archive = nil
	if _, err := f.session.History(context.Background(), 5); !errors.Is(err, ErrArchiveDisabled) {
		t.Errorf("expected ErrArchiveDisabled, got %v", err)
	}
}
