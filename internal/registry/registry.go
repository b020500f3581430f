// Package registry holds the known identities and loads them from reference images.
package registry

import "github.com/kozaktomas/face-id/internal/facematch"

// Record is one known identity.
type Record struct {
	Name      string
	Embedding facematch.Embedding
}

// Registry maps identity names to embeddings and remembers insertion order.
// Replacing an existing name keeps its original position, so the first-inserted
// identity keeps winning distance ties.
type Registry struct {
	order   []string
	entries map[string]facematch.Embedding
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]facematch.Embedding)}
}

// Set stores a copy of emb under name. It reports whether an existing entry was replaced.
func (r *Registry) Set(name string, emb facematch.Embedding) bool {
	_, exists := r.entries[name]
	if !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = emb.Clone()
	return exists
}

// Get returns a copy of the embedding stored for name.
func (r *Registry) Get(name string) (facematch.Embedding, bool) {
	emb, ok := r.entries[name]
	return emb.Clone(), ok
}

// Len returns the number of identities.
func (r *Registry) Len() int { return len(r.order) }

// Names returns identity names in insertion order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Embeddings returns copies of the embeddings in insertion order, parallel to Names.
func (r *Registry) Embeddings() []facematch.Embedding {
	out := make([]facematch.Embedding, len(r.order))
	for i, name := range r.order {
		out[i] = r.entries[name].Clone()
	}
	return out
}

// Entries returns copies of all records in insertion order.
func (r *Registry) Entries() []Record {
	out := make([]Record, len(r.order))
	for i, name := range r.order {
		out[i] = Record{Name: name, Embedding: r.entries[name].Clone()}
	}
	return out
}
