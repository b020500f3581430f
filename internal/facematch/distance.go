package facematch

import "math"

// EuclideanDistance returns the L2 distance between a and b.
// Embeddings of different length are infinitely far apart.
func EuclideanDistance(a, b Embedding) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Distances returns the distance from probe to every known embedding, in order.
func Distances(known []Embedding, probe Embedding) []float64 {
	out := make([]float64, len(known))
	for i, k := range known {
		out[i] = EuclideanDistance(k, probe)
	}
	return out
}

// argmin returns the index of the smallest value; the earliest index wins ties.
// Returns -1 for an empty slice.
func argmin(values []float64) int {
	best := -1
	for i, v := range values {
		if best < 0 || v < values[best] {
			best = i
		}
	}
	return best
}
