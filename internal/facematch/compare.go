package facematch

// DefaultTolerance is the distance at or below which two 128-d dlib embeddings
// are considered the same person.
const DefaultTolerance = 0.6

// ToleranceComparer accepts every known embedding within Tolerance of the probe.
type ToleranceComparer struct {
	Tolerance float64
}

// Compare implements Comparer.
func (c ToleranceComparer) Compare(known []Embedding, probe Embedding) []bool {
	matches := make([]bool, len(known))
	for i, d := range Distances(known, probe) {
		matches[i] = d <= c.Tolerance
	}
	return matches
}
