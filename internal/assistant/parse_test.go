package assistant

import (
	"testing"
)

func TestParseModelOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		wantAnswer  string
		wantSuccess bool
		wantState   parseState
	}{
		{
			name:        "clean JSON",
			raw:         `{"success": true, "answer": "PostgreSQL 12+ is required."}`,
			wantAnswer:  "PostgreSQL 12+ is required.",
			wantSuccess: true,
			wantState:   parsedClean,
		},
		{
			name:        "clean JSON with surrounding whitespace",
			raw:         "\n  {\"success\": false, \"answer\": \"nope\"}  \n",
			wantAnswer:  "nope",
			wantSuccess: false,
			wantState:   parsedClean,
		},
		{
			name:        "fenced JSON with language tag",
			raw:         "```json\n{\"success\": true, \"answer\": \"X\"}\n```",
			wantAnswer:  "X",
			wantSuccess: true,
			wantState:   parsedFenced,
		},
		{
			name:        "fenced JSON without language tag",
			raw:         "```\n{\"success\": true, \"answer\": \"Y\"}\n```",
			wantAnswer:  "Y",
			wantSuccess: true,
			wantState:   parsedFenced,
		},
		{
			name:        "fenced JSON without closing fence",
			raw:         "```json\n{\"success\": true, \"answer\": \"Z\"}",
			wantAnswer:  "Z",
			wantSuccess: true,
			wantState:   parsedFenced,
		},
		{
			name:        "missing keys default to false and empty",
			raw:         `{}`,
			wantAnswer:  "",
			wantSuccess: false,
			wantState:   parsedClean,
		},
		{
			name:        "not JSON at all falls back verbatim",
			raw:         "Sorry, I cannot help.",
			wantAnswer:  "Sorry, I cannot help.",
			wantSuccess: false,
			wantState:   parsedVerbatim,
		},
		{
			name:        "fenced non-JSON falls back to the full raw text",
			raw:         "```\nplain prose, not json\n```",
			wantAnswer:  "```\nplain prose, not json\n```",
			wantSuccess: false,
			wantState:   parsedVerbatim,
		},
		{
			name:        "empty output falls back verbatim",
			raw:         "",
			wantAnswer:  "",
			wantSuccess: false,
			wantState:   parsedVerbatim,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			answer, success, state := parseModelOutput(tc.raw)
			if answer != tc.wantAnswer {
				t.Errorf("answer = %q, want %q", answer, tc.wantAnswer)
			}
			if success != tc.wantSuccess {
				t.Errorf("success = %v, want %v", success, tc.wantSuccess)
			}
			if state != tc.wantState {
				t.Errorf("state = %v, want %v", state, tc.wantState)
			}
		})
	}
}

func TestParseStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state parseState
		want  string
	}{
		{parsedClean, "clean"},
		{parsedFenced, "fenced"},
		{parsedVerbatim, "verbatim"},
		{parseState(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("parseState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
