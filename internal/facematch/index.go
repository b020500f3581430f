package facematch

import (
	"sort"

	"github.com/coder/hnsw"
)

// HNSW parameters for small identity galleries.
const (
	// candidateMaxNeighbors (M) is the maximum number of neighbors per node.
	candidateMaxNeighbors = 16

	// candidateEfSearch is the search candidate pool size.
	candidateEfSearch = 64
)

// Candidate is a known identity close to a probe embedding.
type Candidate struct {
	Name     string
	Distance float64
}

// CandidateIndex answers "which identities are closest to this face" queries over a gallery.
// It is an approximate index used for reporting runner-up identities; labelling decisions
// are made by Matcher.
type CandidateIndex struct {
	graph      *hnsw.Graph[int]
	names      []string
	embeddings []Embedding
	dims       int
}

// NewCandidateIndex indexes every gallery embedding whose length matches the first one.
func NewCandidateIndex(known Gallery) *CandidateIndex {
	idx := &CandidateIndex{
		names:      known.Names(),
		embeddings: known.Embeddings(),
	}
	if len(idx.embeddings) == 0 {
		return idx
	}

	g := hnsw.NewGraph[int]()
	g.M = candidateMaxNeighbors
	g.Ml = 1.0 / float64(candidateMaxNeighbors)
	g.EfSearch = candidateEfSearch
	g.Distance = hnsw.EuclideanDistance

	idx.dims = len(idx.embeddings[0])
	for i, e := range idx.embeddings {
		if len(e) != idx.dims || len(e) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(i, toVector(e)))
	}
	idx.graph = g
	return idx
}

// Len returns the number of indexed identities.
func (c *CandidateIndex) Len() int {
	if c.graph == nil {
		return 0
	}
	return c.graph.Len()
}

// Nearest returns up to k identities closest to probe, nearest first.
// Distances are recomputed exactly; equal distances keep gallery order.
func (c *CandidateIndex) Nearest(probe Embedding, k int) []Candidate {
	if k <= 0 || c.Len() == 0 || len(probe) != c.dims {
		return nil
	}

	nodes := c.graph.Search(toVector(probe), k)
	keys := make([]int, 0, len(nodes))
	for _, n := range nodes {
		keys = append(keys, n.Key)
	}
	sort.Ints(keys)

	out := make([]Candidate, 0, len(keys))
	for _, key := range keys {
		out = append(out, Candidate{
			Name:     c.names[key],
			Distance: EuclideanDistance(c.embeddings[key], probe),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

func toVector(e Embedding) []float32 {
	v := make([]float32, len(e))
	for i, x := range e {
		v[i] = float32(x)
	}
	return v
}
