// Package imaging decodes browser frames and cuts face regions out of them.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned when a frame carries no image bytes.
var ErrEmptyImage = errors.New("empty image data")

// DecodeDataURL strips an optional "data:<mime>;base64," prefix and decodes the payload.
func DecodeDataURL(s string) ([]byte, error) {
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyImage
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some canvas encoders drop the padding.
		raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if rawErr != nil {
			return nil, fmt.Errorf("failed to decode base64 image: %w", err)
		}
		data = raw
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}

// Decode decodes JPEG, PNG, GIF, BMP or WebP bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DecodeFrame turns a data URL or bare base64 string into an image.
func DecodeFrame(frame string) (image.Image, error) {
	data, err := DecodeDataURL(frame)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Crop copies the region r of img into a new image whose origin is (0,0).
// margin widens the region by that fraction of the box size on every side.
// The region is clamped to the image bounds.
func Crop(img image.Image, r image.Rectangle, margin float64) image.Image {
	if margin > 0 {
		dx := int(float64(r.Dx()) * margin)
		dy := int(float64(r.Dy()) * margin)
		r = image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy)
	}
	r = r.Intersect(img.Bounds())

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, img, r, draw.Src, nil)
	return dst
}

// EncodeJPEG encodes img as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Box converts a rectangle to the [left, top, right, bottom] form used by the UI.
func Box(r image.Rectangle) [4]int {
	return [4]int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}
