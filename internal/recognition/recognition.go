// Package recognition wraps the external face detection and embedding backends
// and implements the distance-threshold matching used to identify known faces.
package recognition

import (
	"context"
	"errors"
	"image"
)

// DescriptorSize is the length of a dlib face descriptor.
const DescriptorSize = 128

// ErrRecognizerClosed is returned when a recognizer is used after Close.
var ErrRecognizerClosed = errors.New("recognizer is closed")

// Face is one detected face: its bounding box in frame pixels and its embedding.
type Face struct {
	Box        image.Rectangle
	Descriptor []float32
}

// Recognizer detects faces in an image and computes one embedding per face.
// Faces are returned in detection order.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]Face, error)
	Close() error
}
