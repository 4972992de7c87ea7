// Package session owns the live attendance state: roster, known faces,
// present set and the last unknown face. All operations are serialized.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/encodings"
	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/roster"
)

// Face statuses.
const (
	StatusKnown   = "known"
	StatusUnknown = "unknown"
)

// rollPattern keeps rolls usable as file names.
var rollPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Options configures a Session.
type Options struct {
	Roster     *roster.Store
	Encodings  *encodings.Store
	Attendance *attendance.Writer
	ImagesDir  string
	Recognizer recognition.Recognizer

	MatchPolicy string
	Tolerance   float64
	CropMargin  float64

	Archive attendance.Archive // optional
	Metrics *metrics.Manager   // optional
	Logger  *slog.Logger
	Now     func() time.Time
}

// FaceResult is one face found in a frame.
type FaceResult struct {
	Name   string `json:"name"`
	Roll   string `json:"roll,omitempty"`
	Status string `json:"status"`
	Box    [4]int `json:"box"`
}

// FrameResult is the outcome of ProcessFrame. Error is set instead of the
// other fields when the frame could not be processed.
type FrameResult struct {
	Faces           []FaceResult `json:"faces"`
	UnknownDetected bool         `json:"unknown_detected"`
	AttendanceCount int          `json:"attendance_count"`
	Error           string       `json:"error,omitempty"`
}

// PendingFace is the last face that matched nobody.
type PendingFace struct {
	Face       image.Image
	Frame      image.Image
	Box        image.Rectangle
	CapturedAt time.Time
}

// Stats summarizes the session state.
type Stats struct {
	KnownFaces  int  `json:"known_faces"`
	RosterSize  int  `json:"roster_size"`
	Present     int  `json:"present"`
	PendingFace bool `json:"pending_face"`
}

// Session is the single owner of the attendance state.
type Session struct {
	mu sync.Mutex

	roster     *roster.Store
	encodings  *encodings.Store
	writer     *attendance.Writer
	imagesDir  string
	recognizer recognition.Recognizer
	cropMargin float64
	archive    attendance.Archive
	metrics    *metrics.Manager
	logger     *slog.Logger
	now        func() time.Time

	students map[string]string
	known    *encodings.KnownFaces
	matcher  recognition.Matcher
	tracker  *attendance.Tracker
	pending  *PendingFace
}

// New loads the roster and known faces and returns a ready session.
// Reference images skipped during a cold load are returned as warnings.
func New(ctx context.Context, opts Options) (*Session, []encodings.Warning, error) {
	if opts.Roster == nil || opts.Encodings == nil || opts.Attendance == nil || opts.Recognizer == nil {
		return nil, nil, errors.New("session requires roster, encodings, attendance writer and recognizer")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	students, err := opts.Roster.Load()
	if err != nil {
		return nil, nil, err
	}

	known, warnings, err := opts.Encodings.Load(ctx, opts.Recognizer)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		opts.Logger.Warn("skipped reference image", "file", w.File, "reason", w.Reason)
	}

	matcher := recognition.NewMatcher(opts.MatchPolicy, opts.Tolerance)
	matcher.Reset(known.Embeddings)

	s := &Session{
		roster:     opts.Roster,
		encodings:  opts.Encodings,
		writer:     opts.Attendance,
		imagesDir:  opts.ImagesDir,
		recognizer: opts.Recognizer,
		cropMargin: opts.CropMargin,
		archive:    opts.Archive,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        opts.Now,
		students:   students,
		known:      known,
		matcher:    matcher,
		tracker:    attendance.NewTracker(),
	}

	s.metrics.SetKnownFaces(known.Len())
	s.metrics.SetAttendance(0)
	s.logger.Info("session ready", "known_faces", known.Len(), "roster_size", len(students))

	return s, warnings, nil
}

// ProcessFrame recognizes the faces in a base64 frame, marks known students
// present and keeps the last unknown face for registration.
// State is only changed when the whole frame was processed.
func (s *Session) ProcessFrame(ctx context.Context, frame string) FrameResult {
	start := time.Now()

	img, err := imaging.DecodeFrame(frame)
	if err != nil {
		return s.frameError(err, start)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	faces, err := s.recognizer.Recognize(ctx, img)
	if err != nil {
		return s.frameError(err, start)
	}

	result := FrameResult{Faces: make([]FaceResult, 0, len(faces))}
	var present []string
	var pending *PendingFace

	for _, f := range faces {
		box := imaging.Box(f.Box)
		idx, dist, ok := s.matcher.Match(f.Descriptor)
		if ok {
			roll := s.known.IDs[idx]
			present = append(present, roll)
			result.Faces = append(result.Faces, FaceResult{
				Name:   roster.Name(s.students, roll, roll),
				Roll:   roll,
				Status: StatusKnown,
				Box:    box,
			})
			s.logger.Debug("face matched", "roll", roll, "distance", dist)
			s.metrics.RecordFace(StatusKnown)
			continue
		}

		result.UnknownDetected = true
		pending = &PendingFace{
			Face:       imaging.Crop(img, f.Box, s.cropMargin),
			Frame:      img,
			Box:        f.Box,
			CapturedAt: s.now(),
		}
		result.Faces = append(result.Faces, FaceResult{
			Name:   constants.UnknownName,
			Status: StatusUnknown,
			Box:    box,
		})
		s.metrics.RecordFace(StatusUnknown)
	}

	for _, roll := range present {
		if !s.tracker.Contains(roll) {
			s.logger.Info("student marked present", "roll", roll)
		}
		s.tracker.Add(roll)
	}
	if pending != nil {
		s.pending = pending
	}

	result.AttendanceCount = s.tracker.Count()
	s.metrics.SetAttendance(result.AttendanceCount)
	s.metrics.RecordFrame(metrics.ResultOK, time.Since(start))
	return result
}

func (s *Session) frameError(err error, start time.Time) FrameResult {
	s.logger.Warn("failed to process frame", "error", err)
	s.metrics.RecordFrame(metrics.ResultError, time.Since(start))
	return FrameResult{Error: err.Error()}
}

// ValidateRoll reports whether roll can be used as an identifier and file name.
func ValidateRoll(roll string) error {
	if !rollPattern.MatchString(roll) {
		return fmt.Errorf("%w: roll number %q must be 1-64 letters, digits, dots, dashes or underscores", ErrInvalidInput, roll)
	}
	return nil
}

// Register turns the pending unknown face into a known student.
// The reference image, roster row and encodings blob are written in that
// order; a failure undoes the earlier writes. Memory is updated last.
func (s *Session) Register(ctx context.Context, roll, name string) error {
	roll = strings.TrimSpace(roll)
	name = roster.NormalizeName(name)
	if roll == "" || name == "" {
		s.metrics.RecordRegistration(metrics.ResultRejected)
		return fmt.Errorf("%w: roll number and name are required", ErrInvalidInput)
	}
	if err := ValidateRoll(roll); err != nil {
		s.metrics.RecordRegistration(metrics.ResultRejected)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		s.metrics.RecordRegistration(metrics.ResultRejected)
		return ErrNoPendingFace
	}
	if s.known.Contains(roll) {
		s.metrics.RecordRegistration(metrics.ResultRejected)
		return fmt.Errorf("%w: %s is already registered", ErrDuplicateRoll, roll)
	}

	faces, err := s.recognizer.Recognize(ctx, s.pending.Face)
	if err != nil {
		s.metrics.RecordRegistration(metrics.ResultRejected)
		return fmt.Errorf("%w: %w", ErrFaceNotEncoded, err)
	}
	if len(faces) == 0 || len(faces[0].Descriptor) == 0 {
		s.metrics.RecordRegistration(metrics.ResultRejected)
		return ErrFaceNotEncoded
	}
	embedding := faces[0].Descriptor

	next, err := s.commit(roll, name, embedding)
	if err != nil {
		s.metrics.RecordRegistration(metrics.ResultError)
		s.logger.Error("registration rolled back", "roll", roll, "error", err)
		return err
	}

	s.students[roll] = name
	s.known = next
	s.matcher.Add(embedding)
	s.tracker.Add(roll)
	s.pending = nil

	s.metrics.RecordRegistration(metrics.ResultOK)
	s.metrics.SetKnownFaces(next.Len())
	s.metrics.SetAttendance(s.tracker.Count())
	s.logger.Info("student registered", "roll", roll, "name", name)
	return nil
}

// commit writes the three stores and returns the new known faces.
func (s *Session) commit(roll, name string, embedding []float32) (*encodings.KnownFaces, error) {
	pngData, err := imaging.EncodePNG(s.pending.Face)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	undoImage, err := s.writeReferenceImage(roll, pngData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	undoRoster, err := s.roster.Append(roll, name)
	if err != nil {
		s.undo("reference image", undoImage)
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	next := s.known.Clone()
	next.Add(roll, embedding)
	if err := s.encodings.Save(next); err != nil {
		s.undo("roster row", undoRoster)
		s.undo("reference image", undoImage)
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return next, nil
}

// writeReferenceImage atomically writes images/<roll>.png. The returned undo
// restores a previous file of the same name or removes the new one.
func (s *Session) writeReferenceImage(roll string, data []byte) (func() error, error) {
	if err := os.MkdirAll(s.imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}
	path := filepath.Join(s.imagesDir, roll+constants.ReferenceImageExt)

	previous, readErr := os.ReadFile(path) //nolint:gosec // roll is validated
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write reference image: %w", err)
	}

	return func() error {
		if readErr == nil {
			return renameio.WriteFile(path, previous, 0o644)
		}
		return os.Remove(path)
	}, nil
}

func (s *Session) undo(what string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Error("failed to roll back", "what", what, "error", err)
	}
}

// Attendance lists the present students sorted by roll.
func (s *Session) Attendance() []attendance.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Entries(s.students)
}

// ClearAttendance empties the present set and writes the empty snapshot.
// With an archive configured the state before clearing is archived first.
func (s *Session) ClearAttendance(ctx context.Context) (attendance.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tracker.Count() > 0 {
		s.archiveSnapshot(ctx, attendance.ReasonClear, s.tracker.Snapshot(s.students, s.now()))
	}

	s.tracker.Clear()
	s.metrics.SetAttendance(0)

	snap := s.tracker.Snapshot(s.students, s.now())
	if err := s.writer.Write(snap); err != nil {
		return snap, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.logger.Info("attendance cleared")
	return snap, nil
}

// SaveAttendance writes the current snapshot without clearing it.
func (s *Session) SaveAttendance(ctx context.Context) (attendance.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.tracker.Snapshot(s.students, s.now())
	if err := s.writer.Write(snap); err != nil {
		return snap, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.archiveSnapshot(ctx, attendance.ReasonSave, snap)
	s.logger.Info("attendance saved", "path", s.writer.Path(), "present", len(snap.Present))
	return snap, nil
}

// archiveSnapshot stores snap in the archive. Archive failures are logged
// and do not fail the calling operation.
func (s *Session) archiveSnapshot(ctx context.Context, reason string, snap attendance.Snapshot) {
	if s.archive == nil {
		return
	}
	archived, err := s.archive.Archive(ctx, reason, snap)
	if err != nil {
		s.logger.Error("failed to archive attendance", "reason", reason, "error", err)
		return
	}
	s.logger.Debug("attendance archived", "id", archived.ID, "reason", reason)
}

// History returns the most recent archived snapshots.
func (s *Session) History(ctx context.Context, limit int) ([]attendance.ArchivedSnapshot, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	return s.archive.History(ctx, limit)
}

// PendingFace returns the last unknown face, if any.
func (s *Session) PendingFace() (*PendingFace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil, false
	}
	p := *s.pending
	return &p, true
}

// Stats returns counters for the health endpoint.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		KnownFaces:  s.known.Len(),
		RosterSize:  len(s.students),
		Present:     s.tracker.Count(),
		PendingFace: s.pending != nil,
	}
}
