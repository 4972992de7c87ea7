package attendance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// Writer overwrites the attendance JSON file.
type Writer struct {
	path string
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) Path() string {
	return w.path
}

// Write replaces the file with snap, indented by four spaces.
func (w *Writer) Write(snap Snapshot) error {
	if snap.Present == nil {
		snap.Present = []Entry{}
	}
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal attendance: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create attendance directory: %w", err)
	}
	if err := renameio.WriteFile(w.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write attendance: %w", err)
	}
	return nil
}

// Read returns the last written snapshot.
func (w *Writer) Read() (*Snapshot, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attendance: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse attendance %s: %w", w.path, err)
	}
	return &snap, nil
}
