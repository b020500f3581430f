//go:build dlib

package cmd

import (
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/recognizer/dlib"
)

func newDlibDetector(modelsDir string) (facematch.Detector, func(), error) {
	rec, err := dlib.New(modelsDir)
	if err != nil {
		return nil, nil, err
	}
	return rec, rec.Close, nil
}
