package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection holding the documentation embeddings.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Searcher backed by a Qdrant collection.
// The collection is expected to exist already — documents are embedded and
// upserted by a separate offline process.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a QdrantIndex for the configured collection.
// It does not create the collection: an ingestion pipeline owns the schema.
func NewQdrantIndex(cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantIndex{client: client, cfg: cfg}, nil
}

// Search performs a cosine similarity query and returns the matching
// fragments ordered by descending score. The score threshold is applied by
// Qdrant itself, so callers never see a fragment below it and the
// "no context" case is a plain emptiness check downstream.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, topK int, scoreThreshold float32) ([]Fragment, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		ScoreThreshold: &scoreThreshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: %w", ErrSearch, err)
	}

	fragments := make([]Fragment, 0, len(results))
	for _, r := range results {
		frag := Fragment{
			ID:    pointIDString(r.Id),
			Score: r.Score,
		}
		if p := r.Payload; p != nil {
			if v, ok := p["text"]; ok {
				frag.Text = v.GetStringValue()
			}
		}
		fragments = append(fragments, frag)
	}

	return fragments, nil
}

// Client exposes the underlying gRPC client for health probing.
func (s *QdrantIndex) Client() *qdrant.Client {
	return s.client
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// pointIDString renders a Qdrant point ID (UUID or numeric) as a string.
func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}
