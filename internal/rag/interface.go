// Package rag defines the retrieval contracts for the documentation
// assistant: text embedding and similarity search over a vector index.
// Concrete implementations (Qdrant, the HTTP embedders) satisfy these
// interfaces so the assistant layer never depends on a specific backend.
package rag

import (
	"context"
	"errors"
)

// Fragment is a single documentation excerpt returned by a similarity search.
type Fragment struct {
	// ID is the vector index point identifier for this fragment.
	ID string `json:"id"`

	// Text is the raw documentation text stored in the index payload.
	Text string `json:"text"`

	// Score is the similarity score assigned during retrieval (0.0–1.0).
	// Always at or above the search threshold.
	Score float32 `json:"score"`
}

// Failure sentinels for the two retrieval-side error kinds. Implementations
// wrap their errors with these so the assistant boundary can tell which
// pipeline stage failed without inspecting error strings.
var (
	// ErrEmbedding marks a failure to convert text into a vector.
	ErrEmbedding = errors.New("embedding failed")

	// ErrSearch marks a failure to query the vector index.
	ErrSearch = errors.New("vector search failed")
)

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher performs a similarity search over a pre-populated vector index.
// The index is written by a separate offline ingestion process; this module
// only reads from it. Implementations must be safe to call from multiple
// goroutines.
type Searcher interface {
	// Search returns at most topK fragments whose similarity score is at or
	// above scoreThreshold, ordered by descending score. The result may be
	// empty; an empty result is not an error.
	Search(ctx context.Context, vector []float32, topK int, scoreThreshold float32) ([]Fragment, error)
}
