package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/safemobile/docbot/internal/logging"
	"github.com/safemobile/docbot/internal/rag"
)

// User-facing fallback texts. The two insufficient-context messages are
// deliberately distinct so users can tell an honest content miss from an
// infrastructure failure.
const (
	// noContextMessage is shown when the index returned no relevant fragments.
	noContextMessage = "К сожалению, я не нашел релевантной информации в документации для ответа на ваш вопрос."
	// failureMessage is shown when any pipeline stage failed outright.
	failureMessage = "⚠️ Извините, произошла ошибка при обработке вашего вопроса. Попробуйте позже."
	// noAnswerBanner prefixes the display text when the model judged the
	// retrieved context insufficient.
	noAnswerBanner = "❌ **Не удалось найти ответ в документации**\n\n"
	// noAnswerExplanation is appended after the banner when the model gave
	// no explanatory text of its own.
	noAnswerExplanation = "_Предоставленные фрагменты документации не содержат информации для ответа на ваш вопрос._"
)

// Retrieval parameter bounds and defaults.
const (
	minTopK            = 1
	maxTopK            = 50
	defaultTopK        = 15
	defaultScoreThresh = 0.3
)

// Config holds the dependencies and retrieval parameters for constructing
// an Assistant.
type Config struct {
	// Embedder converts the question into a query vector.
	Embedder rag.Embedder
	// Searcher retrieves relevant fragments from the vector index.
	Searcher rag.Searcher
	// Generator produces the structured answer from question and fragments.
	Generator Generator

	// TopK is the maximum number of fragments to retrieve per question.
	// Zero selects the default of 15; other values are clamped to [1, 50].
	// There is no way to request zero fragments — an Assistant that never
	// retrieves is not a valid configuration.
	TopK int
	// ScoreThreshold is the minimum relevance score for retrieved fragments.
	// Zero selects the default of 0.3; values above 1 clamp to 1. To accept
	// every fragment regardless of score, pass a negative value, which
	// clamps to an effective threshold of 0.
	ScoreThreshold float32
}

// Assistant is the answering orchestrator. It holds no mutable state and is
// safe for concurrent use given concurrency-safe clients. Construct once at
// startup and share across request handlers.
type Assistant struct {
	embedder  rag.Embedder
	searcher  rag.Searcher
	generator Generator

	topK           int
	scoreThreshold float32
}

// New constructs an Assistant from the provided Config, clamping the
// retrieval parameters into their valid ranges.
func New(cfg *Config) (*Assistant, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("assistant: Embedder must not be nil")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("assistant: Searcher must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("assistant: Generator must not be nil")
	}

	topK := cfg.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < minTopK {
		topK = minTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	thresh := cfg.ScoreThreshold
	if thresh == 0 {
		thresh = defaultScoreThresh
	}
	if thresh < 0 {
		thresh = 0
	}
	if thresh > 1 {
		thresh = 1
	}

	return &Assistant{
		embedder:       cfg.Embedder,
		searcher:       cfg.Searcher,
		generator:      cfg.Generator,
		topK:           topK,
		scoreThreshold: thresh,
	}, nil
}

// Answer runs the full pipeline for one question and always returns a
// well-formed Outcome: embed → search → short-circuit on empty context →
// generate → confidence fallback. It is the single recovery boundary — no
// embedding, search, or generation error ever propagates to the caller.
func (a *Assistant) Answer(ctx context.Context, question string) Outcome {
	log := logging.FromContext(ctx)

	vectors, err := a.embedder.Embed(ctx, []string{question})
	if err != nil {
		log.Error("question embedding failed", slog.Any("error", err))
		return failedOutcome()
	}
	if len(vectors) != 1 {
		log.Error("embedder returned unexpected vector count", slog.Int("count", len(vectors)))
		return failedOutcome()
	}

	fragments, err := a.searcher.Search(ctx, vectors[0], a.topK, a.scoreThreshold)
	if err != nil {
		log.Error("context search failed", slog.Any("error", err))
		return failedOutcome()
	}

	if len(fragments) == 0 {
		log.Info("no relevant fragments above threshold",
			slog.Int("top_k", a.topK),
			slog.Float64("score_threshold", float64(a.scoreThreshold)),
		)
		return Outcome{
			DisplayText: noContextMessage,
			Verdict:     VerdictNoContext,
			Success:     false,
			Contexts:    []rag.Fragment{},
			Prompt:      EmptyContextPrompt(question),
			AvgScore:    0.0,
		}
	}

	avgScore := averageScore(fragments)
	log.Info("retrieved context fragments",
		slog.Int("count", len(fragments)),
		slog.Float64("avg_score", avgScore),
	)

	result, err := a.generator.Generate(ctx, question, fragments)
	if err != nil {
		log.Error("answer generation failed", slog.Any("error", err))
		return failedOutcome()
	}

	if !result.Success {
		display := noAnswerBanner
		if result.Answer != "" {
			display += "_" + result.Answer + "_"
		} else {
			display += noAnswerExplanation
		}
		return Outcome{
			DisplayText:    display,
			Verdict:        VerdictNoAnswer,
			Success:        false,
			Contexts:       fragments,
			Prompt:         result.Prompt,
			RawModelOutput: result.RawOutput,
			AvgScore:       avgScore,
		}
	}

	return Outcome{
		DisplayText:    result.Answer,
		Verdict:        VerdictAnswered,
		Success:        true,
		Contexts:       fragments,
		Prompt:         result.Prompt,
		RawModelOutput: result.RawOutput,
		AvgScore:       avgScore,
	}
}

// failedOutcome is the uniform degraded result for any hard pipeline failure.
func failedOutcome() Outcome {
	return Outcome{
		DisplayText: failureMessage,
		Verdict:     VerdictFailed,
		Success:     false,
		Contexts:    []rag.Fragment{},
		AvgScore:    0.0,
	}
}

// averageScore returns the arithmetic mean of the fragment scores, or 0.0
// for an empty set.
func averageScore(fragments []rag.Fragment) float64 {
	if len(fragments) == 0 {
		return 0.0
	}
	var sum float64
	for _, f := range fragments {
		sum += float64(f.Score)
	}
	return sum / float64(len(fragments))
}
