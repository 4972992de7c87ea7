//go:build !nodlib

package cmd

import (
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/recognition/dlib"
)

func newDlibRecognizer(modelsDir, detector string) (recognition.Recognizer, error) {
	return dlib.New(modelsDir, detector)
}
