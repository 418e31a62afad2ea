// Package budget provides token budget estimation and context trimming for
// the documentation assistant. Because the assistant supports multiple LLM
// backends with different tokenizers, this package uses a conservative
// character-based heuristic: 1 token ≈ 4 characters (English prose and code).
// This deliberately under-estimates token counts to leave headroom for
// model-specific overhead.
package budget

import (
	"github.com/safemobile/docbot/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models while leaving room
	// for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// TrimFragments drops fragments from the tail of the slice until the
// estimated token count of fixed (question + instruction block) plus the
// remaining fragment texts fits within maxTokens. Fragments arrive ordered
// by descending relevance, so trimming the tail removes the least relevant
// context first.
//
// At least one fragment is always retained: answering from the single best
// fragment beats answering from nothing, even over budget. Callers that need
// a hard cap should enforce it at the model side.
func TrimFragments(fixed string, fragments []rag.Fragment, maxTokens int) []rag.Fragment {
	if len(fragments) == 0 {
		return fragments
	}

	total := Estimate(fixed)
	// Per-fragment overhead covers the "Fragment i (relevance: …)" header.
	const fragmentOverhead = 12

	kept := 0
	for _, f := range fragments {
		cost := Estimate(f.Text) + fragmentOverhead
		if kept > 0 && total+cost > maxTokens {
			break
		}
		total += cost
		kept++
	}

	return fragments[:kept]
}
