//go:build nodlib

package cmd

import (
	"errors"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

func newDlibRecognizer(string, string) (recognition.Recognizer, error) {
	return nil, errors.New("built without dlib support (nodlib tag), set RECOGNIZER=service")
}
