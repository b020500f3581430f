// Package facematch identifies faces in probe images against a gallery of known identities.
// It holds the shared face types, the collaborator interfaces implemented by the
// recognizer backends and the matcher itself.
package facematch

import (
	"context"
	"image"
)

// UnknownLabel is assigned to faces that do not match any known identity.
const UnknownLabel = "Unknown"

// Embedding is a face descriptor produced by a recognizer backend.
type Embedding []float64

// Clone returns a copy that does not share the backing array.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Face is a single detection in an image.
type Face struct {
	Box       BBox
	Embedding Embedding
	Score     float64 // detector confidence, 0 when the backend does not report one
}

// Image is a decoded image together with the bytes it was decoded from.
// Backends that talk to a remote model send Data; native backends may use Pixels.
type Image struct {
	Path   string
	Data   []byte
	Format string // "jpeg", "png", ...
	Pixels image.Image
	Width  int
	Height int
}

// MatchResult is the outcome of matching one detected face.
type MatchResult struct {
	Label    string
	Box      BBox
	Distance float64 // distance to the nearest known identity, +Inf when none exist
}

// Detector finds faces in an image and computes one embedding per face.
// Faces are returned in the backend's detection order.
type Detector interface {
	Detect(ctx context.Context, img *Image) ([]Face, error)
}

// Comparer decides, per known embedding, whether probe shows the same person.
// The returned slice is parallel to known.
type Comparer interface {
	Compare(known []Embedding, probe Embedding) []bool
}

// ImageLoader decodes the image stored at path.
type ImageLoader interface {
	LoadImage(path string) (*Image, error)
}

// Gallery is an ordered set of known identities. Names and Embeddings are parallel
// and share the gallery's insertion order.
type Gallery interface {
	Names() []string
	Embeddings() []Embedding
}
