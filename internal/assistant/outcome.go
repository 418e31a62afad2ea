// Package assistant implements the retrieval-augmented answering pipeline:
// embed the question, search the documentation index, build a grounded
// prompt, call the chat model, and classify whether the retrieved context
// supported a confident answer. The Assistant is the sole entry point; it
// returns a uniform Outcome for every question, including total failure.
package assistant

import (
	"errors"
	"fmt"

	"github.com/safemobile/docbot/internal/rag"
)

// ErrGeneration marks chat-completion transport failures (timeout, non-2xx,
// unreachable endpoint). Malformed model output is NOT a generation error —
// the defensive parser handles it locally.
var ErrGeneration = errors.New("answer generation failed")

// Verdict classifies how the pipeline arrived at its outcome. The Success
// boolean alone cannot distinguish "nothing retrieved" from "retrieved but
// the model judged it insufficient" from "infrastructure failure" — the
// verdict makes that three-way split explicit for audit consumers.
type Verdict int

const (
	// VerdictAnswered means the model produced a confident answer from the
	// retrieved context.
	VerdictAnswered Verdict = iota
	// VerdictNoContext means the index returned no fragments above the
	// relevance threshold; the model was never invoked.
	VerdictNoContext
	// VerdictNoAnswer means fragments were retrieved but the model judged
	// them insufficient to answer the question.
	VerdictNoAnswer
	// VerdictFailed means an embedding, search, or generation call failed
	// and the outcome is the fixed degraded fallback.
	VerdictFailed
)

// String returns the verdict label used in logs, metrics, and stored records.
func (v Verdict) String() string {
	switch v {
	case VerdictAnswered:
		return "answered"
	case VerdictNoContext:
		return "no_context"
	case VerdictNoAnswer:
		return "no_answer"
	case VerdictFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the verdict as its string label so API consumers see
// "answered" rather than an opaque integer.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON decodes a verdict label back into its enum value.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"answered"`:
		*v = VerdictAnswered
	case `"no_context"`:
		*v = VerdictNoContext
	case `"no_answer"`:
		*v = VerdictNoAnswer
	case `"failed"`:
		*v = VerdictFailed
	default:
		return fmt.Errorf("assistant: unknown verdict %s", data)
	}
	return nil
}

// Outcome is the uniform result of answering one question. DisplayText is
// always non-empty and safe to present to the end user; the remaining fields
// exist for the delivery and persistence collaborators.
type Outcome struct {
	// DisplayText is the user-facing answer text (markdown).
	DisplayText string `json:"display_text"`
	// Verdict classifies the outcome; see the Verdict constants.
	Verdict Verdict `json:"verdict"`
	// Success is true only for VerdictAnswered. Kept alongside the verdict
	// because the delivery and persistence contracts are boolean.
	Success bool `json:"success"`
	// Contexts is the full retrieved context set, ordered by descending
	// score. Empty for VerdictNoContext and VerdictFailed.
	Contexts []rag.Fragment `json:"contexts"`
	// Prompt is the full prompt sent to the model (or the minimal
	// placeholder when no context was found). Empty on failure.
	Prompt string `json:"prompt"`
	// RawModelOutput is the model's unmodified completion text. Empty when
	// the model was not invoked.
	RawModelOutput string `json:"raw_model_output"`
	// AvgScore is the arithmetic mean of the fragment scores; exactly 0.0
	// when Contexts is empty.
	AvgScore float64 `json:"avg_score"`
}

// GenerationResult is the structured product of one chat completion: the
// parsed answer plus the model's own verdict on whether the supplied context
// was sufficient. Success=false is a content judgement, not an error.
type GenerationResult struct {
	// Answer is the parsed answer text (may be empty on a no-answer verdict).
	Answer string
	// Success is the model's self-reported verdict from the JSON contract.
	Success bool
	// Prompt is the full prompt that was sent.
	Prompt string
	// RawOutput is the model's unmodified completion text.
	RawOutput string
}
