package assistant

import (
	"encoding/json"
	"strings"
)

// parseState identifies which branch of the defensive parsing chain
// produced the result. Models frequently wrap the mandated JSON object in a
// markdown code fence or ignore the contract entirely; each case is a
// distinct, independently testable state rather than nested error handling.
type parseState int

const (
	// parsedClean means the raw text was valid JSON as-is.
	parsedClean parseState = iota
	// parsedFenced means the JSON was unwrapped from a markdown code fence.
	parsedFenced
	// parsedVerbatim means JSON parsing failed and the raw text was taken
	// as the answer verbatim with success forced to false.
	parsedVerbatim
)

// String returns the parse-state label used in logs.
func (s parseState) String() string {
	switch s {
	case parsedClean:
		return "clean"
	case parsedFenced:
		return "fenced"
	case parsedVerbatim:
		return "verbatim"
	default:
		return "unknown"
	}
}

// modelReply is the JSON object the prompt contract mandates.
type modelReply struct {
	Success bool   `json:"success"`
	Answer  string `json:"answer"`
}

// parseModelOutput extracts the {success, answer} pair from the raw
// completion text. The model's output is never lost: when it fails to honor
// the format contract, the entire raw text becomes the answer with
// success=false.
func parseModelOutput(raw string) (string, bool, parseState) {
	candidate := strings.TrimSpace(raw)
	state := parsedClean

	if strings.HasPrefix(candidate, "```") {
		candidate = stripFence(candidate)
		state = parsedFenced
	}

	var reply modelReply
	if err := json.Unmarshal([]byte(candidate), &reply); err != nil {
		return raw, false, parsedVerbatim
	}
	return reply.Answer, reply.Success, state
}

// stripFence unwraps the content of the first markdown code fence, dropping
// an optional "json" language tag. s must start with "```".
func stripFence(s string) string {
	inner := strings.TrimPrefix(s, "```")
	if i := strings.Index(inner, "```"); i >= 0 {
		inner = inner[:i]
	}
	inner = strings.TrimPrefix(inner, "json")
	return strings.TrimSpace(inner)
}
