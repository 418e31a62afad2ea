package assistant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/safemobile/docbot/internal/rag"
)

// embedderFunc adapts a function to the rag.Embedder interface.
type embedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f embedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// searcherFunc adapts a function to the rag.Searcher interface.
type searcherFunc func(ctx context.Context, vector []float32, topK int, scoreThreshold float32) ([]rag.Fragment, error)

func (f searcherFunc) Search(ctx context.Context, vector []float32, topK int, scoreThreshold float32) ([]rag.Fragment, error) {
	return f(ctx, vector, topK, scoreThreshold)
}

// countingGenerator records how many times Generate was invoked.
type countingGenerator struct {
	calls  atomic.Int64
	result GenerationResult
	err    error
}

func (g *countingGenerator) Generate(ctx context.Context, question string, fragments []rag.Fragment) (GenerationResult, error) {
	g.calls.Add(1)
	return g.result, g.err
}

func okEmbedder() rag.Embedder {
	return embedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		vecs := make([][]float32, len(texts))
		for i := range texts {
			vecs[i] = []float32{0.1, 0.2, 0.3}
		}
		return vecs, nil
	})
}

func fixedSearcher(fragments []rag.Fragment) rag.Searcher {
	return searcherFunc(func(ctx context.Context, vector []float32, topK int, scoreThreshold float32) ([]rag.Fragment, error) {
		return fragments, nil
	})
}

func newTestAssistant(t *testing.T, cfg *Config) *Assistant {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return a
}

func TestNewRejectsNilDependencies(t *testing.T) {
	t.Parallel()

	gen := &countingGenerator{}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"nil embedder", Config{Searcher: fixedSearcher(nil), Generator: gen}},
		{"nil searcher", Config{Embedder: okEmbedder(), Generator: gen}},
		{"nil generator", Config{Embedder: okEmbedder(), Searcher: fixedSearcher(nil)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(&tc.cfg); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}

func TestNewClampsRetrievalParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		topK       int
		threshold  float32
		wantTopK   int
		wantThresh float32
	}{
		{"defaults", 0, 0, 15, 0.3},
		{"in range", 5, 0.5, 5, 0.5},
		{"topK above max", 500, 0.5, 50, 0.5},
		{"topK below min", -3, 0.5, 1, 0.5},
		{"threshold above one", 10, 2.0, 10, 1.0},
		{"negative threshold disables filtering", 10, -0.5, 10, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := newTestAssistant(t, &Config{
				Embedder:       okEmbedder(),
				Searcher:       fixedSearcher(nil),
				Generator:      &countingGenerator{},
				TopK:           tc.topK,
				ScoreThreshold: tc.threshold,
			})
			if a.topK != tc.wantTopK {
				t.Errorf("topK = %d, want %d", a.topK, tc.wantTopK)
			}
			if a.scoreThreshold != tc.wantThresh {
				t.Errorf("scoreThreshold = %v, want %v", a.scoreThreshold, tc.wantThresh)
			}
		})
	}
}

func TestAnswerIsTotal(t *testing.T) {
	t.Parallel()

	// Whatever fails, Answer must return a well-formed outcome with a
	// non-empty display text and never propagate a fault.
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "embedding failure",
			cfg: Config{
				Embedder: embedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
					return nil, fmt.Errorf("boom: %w", rag.ErrEmbedding)
				}),
				Searcher:  fixedSearcher(nil),
				Generator: &countingGenerator{},
			},
		},
		{
			name: "embedder returns wrong vector count",
			cfg: Config{
				Embedder: embedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
					return nil, nil
				}),
				Searcher:  fixedSearcher(nil),
				Generator: &countingGenerator{},
			},
		},
		{
			name: "search failure",
			cfg: Config{
				Embedder: okEmbedder(),
				Searcher: searcherFunc(func(ctx context.Context, vector []float32, topK int, scoreThreshold float32) ([]rag.Fragment, error) {
					return nil, fmt.Errorf("boom: %w", rag.ErrSearch)
				}),
				Generator: &countingGenerator{},
			},
		},
		{
			name: "generation failure",
			cfg: Config{
				Embedder:  okEmbedder(),
				Searcher:  fixedSearcher([]rag.Fragment{{ID: "1", Text: "t", Score: 0.9}}),
				Generator: &countingGenerator{err: fmt.Errorf("boom: %w", ErrGeneration)},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := newTestAssistant(t, &tc.cfg)
			out := a.Answer(context.Background(), "q")

			if out.DisplayText == "" {
				t.Error("DisplayText must be non-empty on failure")
			}
			if out.DisplayText != failureMessage {
				t.Errorf("DisplayText = %q, want the fixed failure message", out.DisplayText)
			}
			if out.Success {
				t.Error("Success must be false on failure")
			}
			if out.Verdict != VerdictFailed {
				t.Errorf("Verdict = %v, want VerdictFailed", out.Verdict)
			}
			if len(out.Contexts) != 0 {
				t.Errorf("Contexts must be empty on failure, got %d", len(out.Contexts))
			}
			if out.AvgScore != 0.0 {
				t.Errorf("AvgScore = %v, want 0.0", out.AvgScore)
			}
		})
	}
}

func TestAnswerEmptyContextShortCircuit(t *testing.T) {
	t.Parallel()

	gen := &countingGenerator{}
	a := newTestAssistant(t, &Config{
		Embedder:  okEmbedder(),
		Searcher:  fixedSearcher(nil),
		Generator: gen,
	})

	out := a.Answer(context.Background(), "What database is needed?")

	if got := gen.calls.Load(); got != 0 {
		t.Errorf("generator invoked %d times on empty context, want 0", got)
	}
	if out.Success {
		t.Error("Success must be false on empty context")
	}
	if out.Verdict != VerdictNoContext {
		t.Errorf("Verdict = %v, want VerdictNoContext", out.Verdict)
	}
	if len(out.Contexts) != 0 {
		t.Errorf("Contexts = %d fragments, want 0", len(out.Contexts))
	}
	if out.DisplayText != noContextMessage {
		t.Errorf("DisplayText = %q, want the fixed no-context message", out.DisplayText)
	}
	if !strings.Contains(out.Prompt, "What database is needed?") {
		t.Errorf("placeholder prompt missing question: %q", out.Prompt)
	}
	if out.RawModelOutput != "" {
		t.Errorf("RawModelOutput = %q, want empty", out.RawModelOutput)
	}
	if out.AvgScore != 0.0 {
		t.Errorf("AvgScore = %v, want exactly 0.0", out.AvgScore)
	}
}

func TestAnswerAvgScore(t *testing.T) {
	t.Parallel()

	fragments := []rag.Fragment{
		{ID: "1", Text: "a", Score: 0.9},
		{ID: "2", Text: "b", Score: 0.6},
		{ID: "3", Text: "c", Score: 0.3},
	}
	a := newTestAssistant(t, &Config{
		Embedder:  okEmbedder(),
		Searcher:  fixedSearcher(fragments),
		Generator: &countingGenerator{result: GenerationResult{Answer: "ok", Success: true}},
	})

	out := a.Answer(context.Background(), "q")

	want := (0.9 + 0.6 + 0.3) / 3.0
	if math.Abs(out.AvgScore-want) > 1e-6 {
		t.Errorf("AvgScore = %v, want %v", out.AvgScore, want)
	}
}

func TestAnswerNoAnswerFallback(t *testing.T) {
	t.Parallel()

	fragments := []rag.Fragment{{ID: "1", Text: "t", Score: 0.4}}

	t.Run("empty model answer appends explanation", func(t *testing.T) {
		t.Parallel()
		a := newTestAssistant(t, &Config{
			Embedder: okEmbedder(),
			Searcher: fixedSearcher(fragments),
			Generator: &countingGenerator{result: GenerationResult{
				Answer: "", Success: false, Prompt: "p", RawOutput: "r",
			}},
		})

		out := a.Answer(context.Background(), "q")

		if out.Verdict != VerdictNoAnswer {
			t.Errorf("Verdict = %v, want VerdictNoAnswer", out.Verdict)
		}
		if !strings.HasPrefix(out.DisplayText, noAnswerBanner) {
			t.Errorf("DisplayText missing banner: %q", out.DisplayText)
		}
		if !strings.Contains(out.DisplayText, noAnswerExplanation) {
			t.Errorf("DisplayText missing fixed explanation: %q", out.DisplayText)
		}
	})

	t.Run("model answer rendered in italics", func(t *testing.T) {
		t.Parallel()
		a := newTestAssistant(t, &Config{
			Embedder: okEmbedder(),
			Searcher: fixedSearcher(fragments),
			Generator: &countingGenerator{result: GenerationResult{
				Answer: "no version info", Success: false, Prompt: "p", RawOutput: "r",
			}},
		})

		out := a.Answer(context.Background(), "q")

		want := noAnswerBanner + "_no version info_"
		if out.DisplayText != want {
			t.Errorf("DisplayText = %q, want %q", out.DisplayText, want)
		}
		// Unlike the empty-context short-circuit, the real pipeline payload
		// is retained for audit.
		if len(out.Contexts) != 1 {
			t.Errorf("Contexts = %d fragments, want 1", len(out.Contexts))
		}
		if out.Prompt != "p" || out.RawModelOutput != "r" {
			t.Errorf("audit payload dropped: prompt=%q raw=%q", out.Prompt, out.RawModelOutput)
		}
		if out.AvgScore == 0.0 {
			t.Error("AvgScore must be retained on a no-answer verdict")
		}
	})
}

func TestAnswerSuccessScenario(t *testing.T) {
	t.Parallel()

	fragments := []rag.Fragment{
		{ID: "doc-1", Text: "UEM requires PostgreSQL 12+", Score: 0.81},
	}
	a := newTestAssistant(t, &Config{
		Embedder: okEmbedder(),
		Searcher: fixedSearcher(fragments),
		Generator: &countingGenerator{result: GenerationResult{
			Answer:    "PostgreSQL 12+ is required.",
			Success:   true,
			Prompt:    "full prompt",
			RawOutput: `{"success": true, "answer": "PostgreSQL 12+ is required."}`,
		}},
	})

	out := a.Answer(context.Background(), "What database is needed?")

	if out.DisplayText != "PostgreSQL 12+ is required." {
		t.Errorf("DisplayText = %q", out.DisplayText)
	}
	if !out.Success {
		t.Error("Success = false, want true")
	}
	if out.Verdict != VerdictAnswered {
		t.Errorf("Verdict = %v, want VerdictAnswered", out.Verdict)
	}
	if math.Abs(out.AvgScore-0.81) > 1e-6 {
		t.Errorf("AvgScore = %v, want 0.81", out.AvgScore)
	}
}

func TestAnswerConcurrentInvocations(t *testing.T) {
	t.Parallel()

	// Two assistants sharing nothing must not interfere; and a single
	// assistant must be safe to call concurrently.
	fragments := []rag.Fragment{{ID: "1", Text: "t", Score: 0.5}}
	a := newTestAssistant(t, &Config{
		Embedder: okEmbedder(),
		Searcher: fixedSearcher(fragments),
		Generator: generatorFunc(func(ctx context.Context, question string, frags []rag.Fragment) (GenerationResult, error) {
			// Echo the question so each call's outcome is distinguishable.
			return GenerationResult{Answer: "answer to " + question, Success: true}, nil
		}),
	})

	const callers = 16
	var wg sync.WaitGroup
	outs := make([]Outcome, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i] = a.Answer(context.Background(), fmt.Sprintf("q%d", i))
		}()
	}
	wg.Wait()

	for i, out := range outs {
		want := fmt.Sprintf("answer to q%d", i)
		if out.DisplayText != want {
			t.Errorf("caller %d got %q, want %q", i, out.DisplayText, want)
		}
	}
}

// generatorFunc adapts a function to the Generator interface.
type generatorFunc func(ctx context.Context, question string, fragments []rag.Fragment) (GenerationResult, error)

func (f generatorFunc) Generate(ctx context.Context, question string, fragments []rag.Fragment) (GenerationResult, error) {
	return f(ctx, question, fragments)
}

func TestVerdictString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v    Verdict
		want string
	}{
		{VerdictAnswered, "answered"},
		{VerdictNoContext, "no_context"},
		{VerdictNoAnswer, "no_answer"},
		{VerdictFailed, "failed"},
		{Verdict(42), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("Verdict(%d).String() = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestErrGenerationSentinel(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("assistant: %w: %w", ErrGeneration, context.DeadlineExceeded)
	if !errors.Is(wrapped, ErrGeneration) {
		t.Error("wrapped error must match ErrGeneration")
	}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("wrapped error must retain the cause")
	}
}
