// Package index holds reference-icon embeddings and answers nearest-neighbour
// queries over them.
package index

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
)

// Embedder computes a fixed-length vector for an image.
//
// Implementations must be deterministic and safe for concurrent use.
// ModelID identifies the model for cache keys.
type Embedder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	ModelID() string
}

// ReferenceItem is one indexed reference icon. Vector is L2-normalized.
type ReferenceItem struct {
	ID         int       `json:"id"`
	SourcePath string    `json:"source_path"`
	RawLabel   string    `json:"raw_label"`
	Category   string    `json:"category,omitempty"`
	Size       int       `json:"size,omitempty"`
	Vector     []float32 `json:"-"`
}

// Hit is one search result. Similarity is the cosine similarity in [-1, 1].
type Hit struct {
	ID         int     `json:"id"`
	Path       string  `json:"path"`
	Label      string  `json:"label"`
	Similarity float64 `json:"similarity"`
}

// Index is an immutable brute-force cosine index over reference icons.
// It is safe for concurrent use.
type Index struct {
	items   []ReferenceItem
	dim     int
	modelID string
}

// New builds an index from items, assigning IDs in order and L2-normalizing
// copies of their vectors.
//
// It fails with apperr.ErrConfiguration when items is empty, a vector is
// empty or all zeros, or vector lengths differ.
func New(items []ReferenceItem, modelID string) (*Index, error) {
	if len(items) == 0 {
		return nil, apperr.Configf("reference index is empty")
	}

	ix := &Index{
		items:   make([]ReferenceItem, len(items)),
		dim:     len(items[0].Vector),
		modelID: modelID,
	}
	for i, it := range items {
		if len(it.Vector) != ix.dim {
			return nil, apperr.Configf("reference %s has dimension %d, want %d", it.SourcePath, len(it.Vector), ix.dim)
		}
		vec, ok := Normalize(it.Vector)
		if !ok {
			return nil, apperr.Configf("reference %s has a zero or empty vector", it.SourcePath)
		}
		it.ID = i
		it.Vector = vec
		ix.items[i] = it
	}
	return ix, nil
}

// Search returns up to k items most similar to vec, highest similarity
// first. Equal similarities keep index order.
//
// A query of the wrong dimension or with zero norm returns no hits.
func (ix *Index) Search(vec []float32, k int) []Hit {
	if ix == nil || k <= 0 || len(vec) != ix.dim {
		return nil
	}
	q, ok := Normalize(vec)
	if !ok {
		return nil
	}

	hits := make([]Hit, len(ix.items))
	for i, it := range ix.items {
		hits[i] = Hit{
			ID:         it.ID,
			Path:       it.SourcePath,
			Label:      it.RawLabel,
			Similarity: clampSimilarity(dot(q, it.Vector)),
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Item returns the reference with the given ID.
func (ix *Index) Item(id int) (ReferenceItem, bool) {
	if id < 0 || id >= len(ix.items) {
		return ReferenceItem{}, false
	}
	it := ix.items[id]
	it.Vector = cloneVector(it.Vector)
	return it, true
}

// Items returns copies of all references in ID order.
func (ix *Index) Items() []ReferenceItem {
	out := make([]ReferenceItem, len(ix.items))
	for i, it := range ix.items {
		it.Vector = cloneVector(it.Vector)
		out[i] = it
	}
	return out
}

// Len returns the number of references.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.items)
}

// Dim returns the vector dimension.
func (ix *Index) Dim() int { return ix.dim }

// ModelID returns the embedding model the vectors came from.
func (ix *Index) ModelID() string { return ix.modelID }

// String implements fmt.Stringer.
func (ix *Index) String() string {
	return fmt.Sprintf("index(%d items, dim %d, model %q)", len(ix.items), ix.dim, ix.modelID)
}

// Normalize returns an L2-normalized copy of v. It reports false for empty,
// zero-norm or non-finite vectors.
func Normalize(v []float32) ([]float32, bool) {
	if len(v) == 0 {
		return nil, false
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// clampSimilarity absorbs float32 rounding that pushes a cosine past ±1.
func clampSimilarity(s float64) float64 {
	return math.Max(-1, math.Min(1, s))
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
