package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/safemobile/docbot/internal/assistant"
	"github.com/safemobile/docbot/internal/embedder"
	"github.com/safemobile/docbot/internal/provider"
	"github.com/safemobile/docbot/internal/rag"
	"github.com/safemobile/docbot/internal/store"
)

// buildAssistant wires the full answering pipeline from environment
// configuration: embedder, Qdrant index, chat model, and orchestrator.
// The returned close function releases the Qdrant gRPC connection.
func buildAssistant(ctx context.Context, log *slog.Logger) (*assistant.Assistant, *rag.QdrantIndex, func(), error) {
	// Pre-flight: surface obvious embedder misconfiguration (missing keys,
	// chat model where an embedding model belongs) before wiring anything.
	if err := embedder.Validate(log); err != nil {
		return nil, nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("embedder: %w", err)
	}

	index, err := rag.NewQdrantIndex(&rag.QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Port:       getEnvInt("QDRANT_PORT", 0),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "safemobile_docs"),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, nil, err
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		_ = index.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "openrouter")))

	gen, err := assistant.NewModelGenerator(&assistant.GeneratorConfig{
		ChatModel: chatModel,
	})
	if err != nil {
		_ = index.Close()
		return nil, nil, nil, err
	}

	asst, err := assistant.New(&assistant.Config{
		Embedder:       emb,
		Searcher:       index,
		Generator:      gen,
		TopK:           getEnvInt("RAG_TOP_K", 0),
		ScoreThreshold: getEnvFloat32("RAG_SCORE_THRESHOLD", 0),
	})
	if err != nil {
		_ = index.Close()
		return nil, nil, nil, err
	}

	closeFn := func() { _ = index.Close() }
	return asst, index, closeFn, nil
}

// openStore opens the conversation store from environment configuration.
//
// DATABASE_URL selects Postgres; otherwise DOCBOT_SQLITE_DB selects a SQLite
// path ("disabled" turns persistence off, empty falls back to
// ~/.docbot/conversations.db). Open failures disable persistence with a
// warning rather than aborting — answering works without history.
func openStore(ctx context.Context, log *slog.Logger) (store.ConversationStore, func()) {
	noop := func() {}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		st, err := store.OpenPostgres(ctx, dsn)
		if err != nil {
			log.Warn("conversations: failed to open postgres store, disabling", slog.Any("error", err))
			return nil, noop
		}
		log.Info("conversations: postgres store opened")
		return st, func() { _ = st.Close() }
	}

	path := os.Getenv("DOCBOT_SQLITE_DB")
	if path == "disabled" {
		log.Info("conversations: disabled via DOCBOT_SQLITE_DB=disabled")
		return nil, noop
	}
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("conversations: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, noop
		}
	}

	st, err := store.OpenSQLite(path)
	if err != nil {
		log.Warn("conversations: failed to open sqlite store, disabling", slog.Any("error", err))
		return nil, noop
	}
	log.Info("conversations: sqlite store opened", slog.String("path", path))
	return st, func() { _ = st.Close() }
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
