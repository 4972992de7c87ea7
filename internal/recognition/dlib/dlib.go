// Package dlib implements recognition.Recognizer on top of github.com/Kagami/go-face.
// It needs cgo and the dlib libraries, which is why it lives apart from the
// pure Go recognition package.
package dlib

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/Kagami/go-face"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Detectors.
const (
	DetectorHOG = "hog"
	DetectorCNN = "cnn"
)

// Recognizer runs dlib's detector and ResNet descriptor through go-face.
// go-face recognizers are not safe for concurrent use, so calls are serialized.
type Recognizer struct {
	mu       sync.Mutex
	rec      *face.Recognizer
	detector string
}

// New loads the dlib models from modelsDir. Detector is hog or cnn; anything
// else falls back to hog.
func New(modelsDir, detector string) (*Recognizer, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load recognizer models from %s: %w", modelsDir, err)
	}
	if detector != DetectorCNN {
		detector = DetectorHOG
	}
	return &Recognizer{rec: rec, detector: detector}, nil
}

// Recognize returns every face in img with its 128-d descriptor.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) ([]recognition.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// go-face only accepts JPEG bytes.
	data, err := imaging.EncodeJPEG(img, constants.JPEGQuality)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec == nil {
		return nil, recognition.ErrRecognizerClosed
	}

	var found []face.Face
	if r.detector == DetectorCNN {
		found, err = r.rec.RecognizeCNN(data)
	} else {
		found, err = r.rec.Recognize(data)
	}
	if err != nil {
		return nil, fmt.Errorf("face recognition failed: %w", err)
	}

	origin := img.Bounds().Min
	faces := make([]recognition.Face, 0, len(found))
	for _, f := range found {
		desc := make([]float32, len(f.Descriptor))
		copy(desc, f.Descriptor[:])
		faces = append(faces, recognition.Face{
			Box:        f.Rectangle.Add(origin),
			Descriptor: desc,
		})
	}
	return faces, nil
}

// Close frees the dlib models.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		r.rec.Close()
		r.rec = nil
	}
	return nil
}

var _ recognition.Recognizer = (*Recognizer)(nil)
