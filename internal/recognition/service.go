package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/imaging"
)

const (
	defaultServiceURL     = "http://localhost:8000"
	defaultServiceTimeout = 30 * time.Second
)

// ServiceRecognizer delegates detection and embedding to a face embedding server
// exposing POST /embed/face.
type ServiceRecognizer struct {
	baseURL string

	mu     sync.RWMutex
	client *http.Client
}

// NewServiceRecognizer creates a recognizer talking to the embedding server at baseURL.
func NewServiceRecognizer(baseURL string) *ServiceRecognizer {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	return &ServiceRecognizer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultServiceTimeout},
	}
}

// faceDetection represents a single detected face
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postImage posts the JPEG as the "file" part of a multipart form.
func (s *ServiceRecognizer) postImage(ctx context.Context, client *http.Client, endpoint string, jpegData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(jpegData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// httpClient returns the client, or nil once closed. Requests already in
// flight keep their client after Close.
func (s *ServiceRecognizer) httpClient() *http.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Recognize detects faces and computes their embeddings.
func (s *ServiceRecognizer) Recognize(ctx context.Context, img image.Image) ([]Face, error) {
	client := s.httpClient()
	if client == nil {
		return nil, ErrRecognizerClosed
	}

	data, err := imaging.EncodeJPEG(img, constants.JPEGQuality)
	if err != nil {
		return nil, err
	}

	body, err := s.postImage(ctx, client, "/embed/face", data)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// The server reports boxes relative to the image it received, which is
	// img re-encoded, so offset them back into img's coordinate space.
	origin := img.Bounds().Min
	faces := make([]Face, 0, len(faceResp.Faces))
	for _, det := range faceResp.Faces {
		if len(det.BBox) != 4 {
			return nil, fmt.Errorf("face %d: malformed bbox %v", det.FaceIndex, det.BBox)
		}
		if len(det.Embedding) == 0 {
			return nil, errors.New("empty embedding returned")
		}
		box := image.Rect(
			int(math.Round(det.BBox[0])), int(math.Round(det.BBox[1])),
			int(math.Round(det.BBox[2])), int(math.Round(det.BBox[3])),
		).Add(origin)
		faces = append(faces, Face{Box: box, Descriptor: det.Embedding})
	}
	return faces, nil
}

// Close releases idle connections. The recognizer is unusable afterwards.
func (s *ServiceRecognizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.CloseIdleConnections()
		s.client = nil
	}
	return nil
}
