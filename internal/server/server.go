// Package server implements the HTTP server that exposes the documentation
// assistant via a small REST API. The server is started by the
// `docbot serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safemobile/docbot/internal/logging"
	"github.com/safemobile/docbot/internal/store"
)

// New constructs a Server from the provided assistant, conversation store,
// and config. conv may be nil to disable persistence.
func New(asst answerer, conv store.ConversationStore, cfg *Config) (*Server, error) {
	if asst == nil {
		return nil, fmt.Errorf("server: assistant must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must outlast the model generation timeout.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		answerer: asst,
		store:    conv,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("api authentication disabled: DOCBOT_API_KEY is not set")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	// Rate limiting and auth apply only to the answer endpoints. Probes and
	// metrics stay open for orchestrators and scrapers.
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(s.instrument(name, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", protected("ask", s.handleAsk))
	mux.Handle("POST /api/feedback", protected("feedback", s.handleFeedback))
	mux.Handle("GET /api/health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /api/ready", s.instrument("ready", s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask requests. It runs the full retrieval and
// generation pipeline and returns the answer outcome as JSON. The pipeline
// is total: internal failures surface as an apology outcome, not a 5xx.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	outcome := s.answerer.Answer(r.Context(), req.Question)
	elapsed := time.Since(start)

	s.metrics.askRequestsTotal.WithLabelValues(outcome.Verdict.String()).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome.Verdict.String()).Observe(elapsed.Seconds())

	resp := askResponse{Outcome: outcome}
	if s.store != nil {
		id, err := s.store.SaveConversation(r.Context(), &store.ConversationRecord{
			UserName:    req.UserName,
			Question:    req.Question,
			Contexts:    outcome.Contexts,
			Prompt:      outcome.Prompt,
			LLMResponse: outcome.RawModelOutput,
			Success:     outcome.Success,
			AvgScore:    outcome.AvgScore,
		})
		if err != nil {
			// Persistence is best-effort; the answer still goes out.
			log.Warn("ask: failed to save conversation", slog.Any("error", err))
		} else {
			resp.ConversationID = id
		}
	}

	log.Info("ask completed",
		slog.String("verdict", outcome.Verdict.String()),
		slog.Duration("duration", elapsed),
	)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("ask encode error", slog.Any("error", err))
	}
}

// handleFeedback handles POST /api/feedback. It records a helpful/unhelpful
// vote against a previously returned conversation id. The first vote wins;
// repeated votes and unknown ids report updated:false.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.store == nil {
		http.Error(w, "feedback store not configured", http.StatusServiceUnavailable)
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID <= 0 {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	updated, err := s.store.UpdateFeedbackByID(r.Context(), req.ConversationID, req.Helpful)
	if err != nil {
		log.Error("feedback update failed", slog.Any("error", err))
		http.Error(w, "feedback update failed", http.StatusInternalServerError)
		return
	}

	if updated {
		vote := "no"
		if req.Helpful {
			vote = "yes"
		}
		s.metrics.feedbackTotal.WithLabelValues(vote).Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(feedbackResponse{Updated: updated}); err != nil {
		log.Error("feedback encode error", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
