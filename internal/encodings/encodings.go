// Package encodings persists the known-face embeddings and bootstraps them from
// reference images when no saved blob exists.
package encodings

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/renameio"

	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// blobVersion is bumped when the on-disk layout changes.
const blobVersion = 1

var (
	// ErrCorruptBlob is returned when the saved identifiers and embeddings are not aligned.
	ErrCorruptBlob = errors.New("corrupt encodings blob")
	// ErrIncompatibleBlob is returned for blobs written by another layout version.
	ErrIncompatibleBlob = errors.New("incompatible encodings blob version")
)

// imageExts are the reference image extensions picked up by a cold load.
var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Encoder computes face embeddings for an image.
type Encoder interface {
	Recognize(ctx context.Context, img image.Image) ([]recognition.Face, error)
}

// Warning describes a reference image that was skipped during a cold load.
type Warning struct {
	File   string
	Reason string
}

func (w Warning) String() string {
	return w.File + ": " + w.Reason
}

// ProgressFunc is called after each reference image is processed.
type ProgressFunc func(file string)

// blob is the gob payload.
type blob struct {
	Version    int
	IDs        []string
	Embeddings [][]float32
}

// Store reads and writes the encodings blob and scans the reference image directory.
type Store struct {
	path      string
	imagesDir string
}

// New returns a store for the blob at path, cold-loading from imagesDir.
func New(path, imagesDir string) *Store {
	return &Store{path: path, imagesDir: imagesDir}
}

// Path returns the blob location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a blob has been written.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns the saved known faces. Without a saved blob it encodes every
// reference image and writes the blob before returning.
func (s *Store) Load(ctx context.Context, enc Encoder) (*KnownFaces, []Warning, error) {
	known, err := s.Read()
	if err == nil {
		return known, nil, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}
	return s.Rebuild(ctx, enc, nil)
}

// Read decodes the saved blob without falling back to the image directory.
func (s *Store) Read() (*KnownFaces, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encodings: %w", err)
	}

	var b blob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode encodings %s: %w", s.path, err)
	}
	if b.Version != blobVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleBlob, b.Version, blobVersion)
	}
	if len(b.IDs) != len(b.Embeddings) {
		return nil, fmt.Errorf("%w: %d ids, %d embeddings", ErrCorruptBlob, len(b.IDs), len(b.Embeddings))
	}
	return &KnownFaces{IDs: b.IDs, Embeddings: b.Embeddings}, nil
}

// Save atomically replaces the blob with known.
func (s *Store) Save(known *KnownFaces) error {
	b := blob{Version: blobVersion}
	if known != nil {
		b.IDs = known.IDs
		b.Embeddings = known.Embeddings
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return fmt.Errorf("failed to encode encodings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create encodings directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write encodings: %w", err)
	}
	return nil
}

// ReferenceImages lists the reference images in name order.
func (s *Store) ReferenceImages() ([]string, error) {
	entries, err := os.ReadDir(s.imagesDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list reference images: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, e.Name())
	}
	slices.Sort(files)
	return files, nil
}

// Rebuild encodes every reference image, ignoring any saved blob, and saves the result.
// The first face of each image is kept under the file name without extension.
// Images without a usable face are skipped and reported as warnings.
func (s *Store) Rebuild(ctx context.Context, enc Encoder, progress ProgressFunc) (*KnownFaces, []Warning, error) {
	if enc == nil {
		return nil, nil, errors.New("no encoder available for reference images")
	}
	if err := os.MkdirAll(s.imagesDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create images directory: %w", err)
	}

	files, err := s.ReferenceImages()
	if err != nil {
		return nil, nil, err
	}

	known := &KnownFaces{}
	var warnings []Warning
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		id := strings.TrimSuffix(name, filepath.Ext(name))
		embedding, reason := s.encodeFile(ctx, enc, filepath.Join(s.imagesDir, name))
		switch {
		case reason != "":
			warnings = append(warnings, Warning{File: name, Reason: reason})
		case known.Contains(id):
			warnings = append(warnings, Warning{File: name, Reason: "duplicate identifier " + id})
		default:
			known.Add(id, embedding)
		}

		if progress != nil {
			progress(name)
		}
	}

	if err := s.Save(known); err != nil {
		return nil, warnings, err
	}
	return known, warnings, nil
}

// encodeFile returns the first embedding in the file, or a reason it has none.
func (s *Store) encodeFile(ctx context.Context, enc Encoder, path string) ([]float32, string) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the images directory listing
	if err != nil {
		return nil, err.Error()
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, err.Error()
	}
	faces, err := enc.Recognize(ctx, img)
	if err != nil {
		return nil, err.Error()
	}
	if len(faces) == 0 || len(faces[0].Descriptor) == 0 {
		return nil, "no face found"
	}
	return faces[0].Descriptor, ""
}
