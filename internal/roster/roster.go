// Package roster stores the roll number to student name mapping in a CSV file.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Store reads and appends roll,name rows.
type Store struct {
	path string
}

// New returns a store backed by the CSV file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the CSV file location.
func (s *Store) Path() string {
	return s.path
}

// NormalizeName trims a name and converts it to Unicode NFC so that the same
// name typed with combining marks or precomposed characters is stored identically.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Load reads every row into a roll -> name map. Rows with fewer than two
// fields are skipped and later rows win over earlier ones for the same roll.
// A missing file is created empty.
func (s *Store) Load() (map[string]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.create(); err != nil {
			return nil, err
		}
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	students := make(map[string]string)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read roster %s: %w", s.path, err)
		}
		if len(record) < 2 {
			continue
		}
		roll := strings.TrimSpace(record[0])
		if roll == "" {
			continue
		}
		students[roll] = NormalizeName(record[1])
	}
	return students, nil
}

func (s *Store) create() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create roster directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create roster: %w", err)
	}
	return f.Close()
}

// Append writes one roll,name row at the end of the file without rewriting it.
// The returned rollback truncates the file back to its previous length.
func (s *Store) Append(roll, name string) (rollback func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create roster directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat roster: %w", err)
	}
	size := info.Size()

	// A hand edited file may lack the final newline.
	var prefix string
	if size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			return nil, fmt.Errorf("failed to read roster: %w", err)
		}
		if last[0] != '\n' {
			prefix = "\n"
		}
	}

	if _, err := f.Seek(size, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek roster: %w", err)
	}

	rollback = func() error {
		return os.Truncate(s.path, size)
	}

	if prefix != "" {
		if _, err := f.WriteString(prefix); err != nil {
			_ = rollback()
			return nil, fmt.Errorf("failed to append to roster: %w", err)
		}
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{strings.TrimSpace(roll), NormalizeName(name)}); err != nil {
		_ = rollback()
		return nil, fmt.Errorf("failed to append to roster: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = rollback()
		return nil, fmt.Errorf("failed to append to roster: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = rollback()
		return nil, fmt.Errorf("failed to sync roster: %w", err)
	}

	return rollback, nil
}

// Name returns the name for roll, or fallback when the roll is not listed.
func Name(students map[string]string, roll, fallback string) string {
	if name, ok := students[roll]; ok && name != "" {
		return name
	}
	return fallback
}
