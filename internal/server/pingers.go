package server

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// PostgresPinger probes the conversation database via a connection pool ping.
// It satisfies the Pinger interface and is used by GET /api/ready.
type PostgresPinger struct {
	// pool is the pgx connection pool to probe.
	pool *pgxpool.Pool
}

// NewPostgresPinger constructs a PostgresPinger for the given connection pool.
func NewPostgresPinger(pool *pgxpool.Pool) *PostgresPinger {
	return &PostgresPinger{pool: pool}
}

// Name returns the dependency label used in readiness responses.
func (p *PostgresPinger) Name() string { return "postgres" }

// Ping checks the database connection.
// Returns nil if Postgres is reachable, or a descriptive error otherwise.
func (p *PostgresPinger) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
