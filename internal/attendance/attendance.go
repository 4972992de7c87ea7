// Package attendance tracks which students were seen during a run and writes
// attendance snapshots.
package attendance

import (
	"context"
	"slices"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/roster"
)

// Tracker is the set of rolls marked present. It is not safe for concurrent
// use; the session serializes access.
type Tracker struct {
	present map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{present: make(map[string]struct{})}
}

// Add marks roll present. Adding a roll twice has no effect.
func (t *Tracker) Add(roll string) {
	t.present[roll] = struct{}{}
}

func (t *Tracker) Contains(roll string) bool {
	_, ok := t.present[roll]
	return ok
}

func (t *Tracker) Count() int {
	return len(t.present)
}

// Rolls returns the present rolls sorted.
func (t *Tracker) Rolls() []string {
	rolls := make([]string, 0, len(t.present))
	for roll := range t.present {
		rolls = append(rolls, roll)
	}
	slices.Sort(rolls)
	return rolls
}

// Clear empties the set.
func (t *Tracker) Clear() {
	clear(t.present)
}

// Entries resolves the present rolls to names. Rolls missing from the roster
// are listed as Unknown.
func (t *Tracker) Entries(students map[string]string) []Entry {
	return Entries(t.Rolls(), students)
}

// Snapshot captures the current set at now.
func (t *Tracker) Snapshot(students map[string]string, now time.Time) Snapshot {
	return Snapshot{
		Date:    now.Format(constants.SnapshotDateLayout),
		Time:    now.Format(constants.SnapshotTimeLayout),
		Present: t.Entries(students),
	}
}

// Entry is one present student.
type Entry struct {
	Roll string `json:"roll"`
	Name string `json:"name"`
}

// Entries builds entries for sorted rolls.
func Entries(rolls []string, students map[string]string) []Entry {
	entries := make([]Entry, 0, len(rolls))
	for _, roll := range rolls {
		entries = append(entries, Entry{Roll: roll, Name: roster.Name(students, roll, constants.UnknownName)})
	}
	return entries
}

// Snapshot is the persisted attendance state.
type Snapshot struct {
	Date    string  `json:"date"`
	Time    string  `json:"time"`
	Present []Entry `json:"present"`
}

// ArchivedSnapshot is a snapshot kept in the history archive.
type ArchivedSnapshot struct {
	ID         string    `json:"id"`
	Reason     string    `json:"reason"`
	Snapshot   Snapshot  `json:"snapshot"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Archive reasons.
const (
	ReasonClear = "clear"
	ReasonSave  = "save"
)

// Archive stores snapshots beyond the single overwritten JSON file.
type Archive interface {
	Archive(ctx context.Context, reason string, snap Snapshot) (*ArchivedSnapshot, error)
	History(ctx context.Context, limit int) ([]ArchivedSnapshot, error)
}
