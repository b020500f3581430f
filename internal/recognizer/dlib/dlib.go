//go:build dlib

// Package dlib runs face detection and embedding in-process with dlib models.
//
// Building it requires the dlib C++ libraries and the "dlib" build tag. The models
// directory must contain shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat.
package dlib

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"

	"github.com/Kagami/go-face"

	"github.com/kozaktomas/face-id/internal/facematch"
)

// Recognizer implements facematch.Detector with go-face.
type Recognizer struct {
	rec *face.Recognizer
}

// New loads the dlib models from modelsDir.
func New(modelsDir string) (*Recognizer, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelsDir, err)
	}
	return &Recognizer{rec: rec}, nil
}

// Close frees the native recognizer.
func (r *Recognizer) Close() {
	r.rec.Close()
}

// Detect implements facematch.Detector. go-face only reads JPEG, so other formats are
// re-encoded from their decoded pixels.
func (r *Recognizer) Detect(_ context.Context, img *facematch.Image) ([]facematch.Face, error) {
	data := img.Data
	if img.Format != "jpeg" {
		if img.Pixels == nil {
			return nil, fmt.Errorf("image %s has no decoded pixels", img.Path)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img.Pixels, &jpeg.Options{Quality: 95}); err != nil {
			return nil, fmt.Errorf("failed to encode %s as jpeg: %w", img.Path, err)
		}
		data = buf.Bytes()
	}

	found, err := r.rec.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("dlib recognition failed: %w", err)
	}

	faces := make([]facematch.Face, len(found))
	for i, f := range found {
		emb := make(facematch.Embedding, len(f.Descriptor))
		for j, v := range f.Descriptor {
			emb[j] = float64(v)
		}
		faces[i] = facematch.Face{
			Box: facematch.BBox{
				X1: float64(f.Rectangle.Min.X),
				Y1: float64(f.Rectangle.Min.Y),
				X2: float64(f.Rectangle.Max.X),
				Y2: float64(f.Rectangle.Max.Y),
			},
			Embedding: emb,
		}
	}
	return faces, nil
}
