package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/safemobile/docbot/internal/assistant"
	"github.com/safemobile/docbot/internal/rag"
	"github.com/safemobile/docbot/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes for handler tests
// ---------------------------------------------------------------------------

// fakeAnswerer implements the answerer interface for tests.
// It returns a fixed outcome and records the last question asked.
type fakeAnswerer struct {
	// outcome is returned from every Answer call.
	outcome assistant.Outcome
	// lastQuestion records the question passed to the most recent call.
	lastQuestion string
}

func (f *fakeAnswerer) Answer(_ context.Context, question string) assistant.Outcome {
	f.lastQuestion = question
	return f.outcome
}

// fakeStore implements store.ConversationStore for tests.
type fakeStore struct {
	// saved collects every record passed to SaveConversation.
	saved []*store.ConversationRecord
	// nextID is returned from SaveConversation.
	nextID int64
	// saveErr, when non-nil, is returned from SaveConversation.
	saveErr error
	// updated is returned from the feedback update methods.
	updated bool
	// updateErr, when non-nil, is returned from the feedback update methods.
	updateErr error
}

func (f *fakeStore) SaveConversation(_ context.Context, rec *store.ConversationRecord) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.saved = append(f.saved, rec)
	return f.nextID, nil
}

func (f *fakeStore) UpdateFeedback(_ context.Context, _ int64, _ bool) (bool, error) {
	return f.updated, f.updateErr
}

func (f *fakeStore) UpdateFeedbackByID(_ context.Context, _ int64, _ bool) (bool, error) {
	return f.updated, f.updateErr
}

func (f *fakeStore) Close() error { return nil }

// newTestServer builds a minimal *Server with a fresh metrics registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newTestServer() *Server {
	return &Server{
		answerer: &fakeAnswerer{},
		cfg:      &Config{Port: 8080},
		log:      slog.Default(),
		metrics:  newServerMetrics(prometheus.NewRegistry()),
	}
}

// newAskTestServer builds a *Server wired with the given answerer and store fakes.
func newAskTestServer(a answerer, st store.ConversationStore) *Server {
	s := newTestServer()
	if a != nil {
		s.answerer = a
	}
	s.store = st
	return s
}

// ---------------------------------------------------------------------------
// POST /api/ask — validation error paths
// ---------------------------------------------------------------------------

func TestHandleAsk_MissingQuestion(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"user_name":"ivan"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAsk_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAsk_WhitespaceQuestion(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/ask — happy path
// ---------------------------------------------------------------------------

// TestHandleAsk_Success verifies that a valid request returns the full
// outcome as JSON together with the stored conversation id.
func TestHandleAsk_Success(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{outcome: assistant.Outcome{
		DisplayText: "Сервер устанавливается через пакет deb.",
		Verdict:     assistant.VerdictAnswered,
		Success:     true,
		Contexts: []rag.Fragment{
			{ID: "1", Text: "Установка сервера", Score: 0.9},
		},
		Prompt:         "prompt text",
		RawModelOutput: `{"success": true, "answer": "..."}`,
		AvgScore:       0.9,
	}}
	st := &fakeStore{nextID: 42}
	s := newAskTestServer(a, st)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"как установить сервер?","user_name":"ivan"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID != 42 {
		t.Errorf("conversation_id: expected 42, got %d", resp.ConversationID)
	}
	if resp.DisplayText != a.outcome.DisplayText {
		t.Errorf("display_text: expected %q, got %q", a.outcome.DisplayText, resp.DisplayText)
	}
	if resp.Verdict != assistant.VerdictAnswered {
		t.Errorf("verdict: expected answered, got %s", resp.Verdict)
	}
	if !resp.Success {
		t.Error("expected success:true")
	}

	if a.lastQuestion != "как установить сервер?" {
		t.Errorf("answerer received %q", a.lastQuestion)
	}

	if len(st.saved) != 1 {
		t.Fatalf("expected 1 saved conversation, got %d", len(st.saved))
	}
	rec := st.saved[0]
	if rec.UserName != "ivan" || rec.Question != "как установить сервер?" {
		t.Errorf("saved record mismatch: %+v", rec)
	}
	if !rec.Success || rec.AvgScore != 0.9 {
		t.Errorf("saved record outcome fields mismatch: %+v", rec)
	}
}

// TestHandleAsk_NoStore verifies that the endpoint works without a store:
// the answer is returned and conversation_id is omitted.
func TestHandleAsk_NoStore(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{outcome: assistant.Outcome{
		DisplayText: "answer",
		Verdict:     assistant.VerdictAnswered,
		Success:     true,
	}}
	s := newAskTestServer(a, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"q"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID != 0 {
		t.Errorf("expected no conversation_id, got %d", resp.ConversationID)
	}
}

// TestHandleAsk_SaveFailureStillAnswers verifies that a persistence failure
// does not break the answer path.
func TestHandleAsk_SaveFailureStillAnswers(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{outcome: assistant.Outcome{
		DisplayText: "answer",
		Verdict:     assistant.VerdictAnswered,
		Success:     true,
	}}
	st := &fakeStore{saveErr: errors.New("db down")}
	s := newAskTestServer(a, st)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"q"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite save failure, got %d", w.Code)
	}
	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID != 0 {
		t.Errorf("expected conversation_id 0 on save failure, got %d", resp.ConversationID)
	}
	if resp.DisplayText != "answer" {
		t.Errorf("display_text: got %q", resp.DisplayText)
	}
}

// TestHandleAsk_FailedVerdictIs200 verifies that a degraded pipeline outcome
// is still a 200 response — failures are reported in-band, not via HTTP status.
func TestHandleAsk_FailedVerdictIs200(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{outcome: assistant.Outcome{
		DisplayText: "⚠️ Извините, произошла ошибка при обработке вашего вопроса. Попробуйте позже.",
		Verdict:     assistant.VerdictFailed,
	}}
	s := newAskTestServer(a, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"q"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Verdict != assistant.VerdictFailed {
		t.Errorf("verdict: expected failed, got %s", resp.Verdict)
	}
	if resp.Success {
		t.Error("expected success:false")
	}
}

// ---------------------------------------------------------------------------
// POST /api/feedback
// ---------------------------------------------------------------------------

func TestHandleFeedback_NoStore(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"conversation_id":1,"helpful":true}`))
	w := httptest.NewRecorder()

	s.handleFeedback(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without store, got %d", w.Code)
	}
}

func TestHandleFeedback_MissingID(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(nil, &fakeStore{})
	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"helpful":true}`))
	w := httptest.NewRecorder()

	s.handleFeedback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleFeedback_Updated(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(nil, &fakeStore{updated: true})
	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"conversation_id":42,"helpful":true}`))
	w := httptest.NewRecorder()

	s.handleFeedback(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp feedbackResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Updated {
		t.Error("expected updated:true")
	}
}

// TestHandleFeedback_AlreadyVoted verifies that a second vote reports
// updated:false with a 200 status (first vote wins).
func TestHandleFeedback_AlreadyVoted(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(nil, &fakeStore{updated: false})
	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"conversation_id":42,"helpful":false}`))
	w := httptest.NewRecorder()

	s.handleFeedback(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp feedbackResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Updated {
		t.Error("expected updated:false for repeated vote")
	}
}

func TestHandleFeedback_StoreError(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(nil, &fakeStore{updateErr: errors.New("db down")})
	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"conversation_id":42,"helpful":true}`))
	w := httptest.NewRecorder()

	s.handleFeedback(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// New — construction
// ---------------------------------------------------------------------------

func TestNew_NilAssistant(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, &Config{MetricsRegistry: prometheus.NewRegistry()}); err == nil {
		t.Fatal("expected error for nil assistant")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s, err := New(&fakeAnswerer{}, nil, &Config{
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.stopRL()

	if s.cfg.Host != "127.0.0.1" || s.cfg.Port != 8080 {
		t.Errorf("defaults: got %s:%d", s.cfg.Host, s.cfg.Port)
	}
	if s.cfg.RateLimit != defaultRateLimit || s.cfg.RateBurst != defaultRateBurst {
		t.Errorf("rate defaults: got %v/%d", s.cfg.RateLimit, s.cfg.RateBurst)
	}
}
