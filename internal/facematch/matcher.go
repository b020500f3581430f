package facematch

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Matcher labels the faces of a probe image with the nearest known identity.
type Matcher struct {
	detector Detector
	comparer Comparer
	logger   *zap.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithComparer replaces the default tolerance-based match test.
func WithComparer(c Comparer) MatcherOption {
	return func(m *Matcher) {
		if c != nil {
			m.comparer = c
		}
	}
}

// WithLogger sets the logger receiving one diagnostic record per matched face.
func WithLogger(l *zap.Logger) MatcherOption {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMatcher creates a matcher that detects probe faces with detector.
func NewMatcher(detector Detector, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		detector: detector,
		comparer: ToleranceComparer{Tolerance: DefaultTolerance},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Identify detects every face in img and matches it against known.
// Results follow the detector's face order.
func (m *Matcher) Identify(ctx context.Context, img *Image, known Gallery) ([]MatchResult, error) {
	faces, err := m.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to detect faces in %s: %w", img.Path, err)
	}
	return m.MatchFaces(faces, known), nil
}

// Match is Identify returning labels and boxes as two parallel slices.
func (m *Matcher) Match(ctx context.Context, img *Image, known Gallery) ([]string, []BBox, error) {
	results, err := m.Identify(ctx, img, known)
	if err != nil {
		return nil, nil, err
	}
	labels := make([]string, len(results))
	boxes := make([]BBox, len(results))
	for i, r := range results {
		labels[i] = r.Label
		boxes[i] = r.Box
	}
	return labels, boxes, nil
}

// MatchFaces labels already detected faces.
//
// The match test and the distance ranking are separate passes: the nearest identity
// is picked by Euclidean distance (earliest gallery entry wins ties) and is only
// accepted when the comparer also accepts it. Otherwise the face is UnknownLabel.
// An empty gallery yields UnknownLabel for every face.
func (m *Matcher) MatchFaces(faces []Face, known Gallery) []MatchResult {
	names := known.Names()
	embeddings := known.Embeddings()

	results := make([]MatchResult, 0, len(faces))
	for i, face := range faces {
		result := MatchResult{Label: UnknownLabel, Box: face.Box, Distance: math.Inf(1)}

		if len(embeddings) > 0 {
			matches := m.comparer.Compare(embeddings, face.Embedding)
			distances := Distances(embeddings, face.Embedding)

			best := argmin(distances)
			result.Distance = distances[best]
			if best < len(matches) && matches[best] {
				result.Label = names[best]
			}
		}

		m.logger.Info("face identified",
			zap.Int("face", i),
			zap.String("label", result.Label),
			zap.Float64("distance", result.Distance),
			zap.Stringer("box", face.Box),
		)
		results = append(results, result)
	}
	return results
}
