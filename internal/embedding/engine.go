// Package embedding provides vector embedding generation for policy retrieval.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// normEpsilon guards normalization against zero-length vectors.
const normEpsilon = 1e-9

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// =============================================================================
// SIMILARITY UTILITIES
// =============================================================================

// Normalize returns v scaled to unit length. The zero vector stays zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + normEpsilon

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// SimilarityResult represents a similarity search result.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK scores unit-length corpus vectors against a unit-length query and
// returns the best k, most similar first. Ties keep corpus order.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	if k <= 0 || len(corpus) == 0 {
		return nil, nil
	}

	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		if len(vec) != len(query) {
			return nil, fmt.Errorf("corpus vector %d has dimension %d, query has %d", i, len(vec), len(query))
		}
		results = append(results, SimilarityResult{Index: i, Similarity: Dot(query, vec)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
