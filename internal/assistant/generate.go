package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/safemobile/docbot/internal/budget"
	"github.com/safemobile/docbot/internal/logging"
	"github.com/safemobile/docbot/internal/rag"
)

// DefaultGenerationTimeout bounds a single chat completion request.
const DefaultGenerationTimeout = 30 * time.Second

// Generator produces a structured answer for a question grounded in the
// supplied fragments. Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, question string, fragments []rag.Fragment) (GenerationResult, error)
}

// GeneratorConfig holds the dependencies for constructing a ModelGenerator.
type GeneratorConfig struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel
	// Timeout bounds each completion request. Defaults to
	// DefaultGenerationTimeout if zero.
	Timeout time.Duration
	// MaxContextTokens is the estimated token budget for the full prompt.
	// Lowest-scored fragments are dropped to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// ModelGenerator implements Generator on an eino chat model. Each call is a
// single-turn user message; there is no conversation history.
type ModelGenerator struct {
	model            model.BaseChatModel
	timeout          time.Duration
	maxContextTokens int
}

// NewModelGenerator constructs a ModelGenerator from the provided config.
func NewModelGenerator(cfg *GeneratorConfig) (*ModelGenerator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("assistant: ChatModel must not be nil")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &ModelGenerator{
		model:            cfg.ChatModel,
		timeout:          timeout,
		maxContextTokens: maxCtx,
	}, nil
}

// Generate builds the grounded prompt, sends it as a single-turn completion
// request with a bounded timeout, and defensively parses the response.
// Transport errors are wrapped with ErrGeneration and propagate; a model
// that ignores the format contract does not produce an error.
func (g *ModelGenerator) Generate(ctx context.Context, question string, fragments []rag.Fragment) (GenerationResult, error) {
	log := logging.FromContext(ctx)

	// Trim lowest-relevance fragments to fit the model context window. The
	// caller still reports the full retrieved set; only the prompt shrinks.
	fixed := BuildPrompt(question, nil)
	kept := budget.TrimFragments(fixed, fragments, g.maxContextTokens)
	if dropped := len(fragments) - len(kept); dropped > 0 {
		log.Warn("budget: dropped context fragments to fit model window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(kept)),
			slog.Int("max_tokens", g.maxContextTokens),
		)
	}

	prompt := BuildPrompt(question, kept)

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msg, err := g.model.Generate(reqCtx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return GenerationResult{Prompt: prompt}, fmt.Errorf("assistant: %w: %w", ErrGeneration, err)
	}

	raw := msg.Content
	answer, success, state := parseModelOutput(raw)
	log.Debug("model output parsed",
		slog.String("parse", state.String()),
		slog.Bool("success", success),
		slog.Int("answer_len", len(answer)),
	)

	return GenerationResult{
		Answer:    answer,
		Success:   success,
		Prompt:    prompt,
		RawOutput: raw,
	}, nil
}
