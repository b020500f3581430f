//go:build !dlib

package cmd

import (
	"errors"

	"github.com/kozaktomas/face-id/internal/facematch"
)

func newDlibDetector(string) (facematch.Detector, func(), error) {
	return nil, nil, errors.New("dlib backend not available: rebuild with -tags dlib")
}
