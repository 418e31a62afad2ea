package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/safemobile/docbot/internal/assistant"
	"github.com/safemobile/docbot/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must exceed the answer generation timeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 2 if zero: each ask request
	// drives a paid chat completion, so the limit is deliberately tight.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 5 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all /api/ask and /api/feedback
	// requests. If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all server metrics. Defaults to
	// prometheus.DefaultRegisterer; tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface handleAsk calls to answer a question.
// *assistant.Assistant satisfies it; tests inject a fake.
type answerer interface {
	// Answer runs the full retrieval and generation pipeline for question.
	Answer(ctx context.Context, question string) assistant.Outcome
}

// Server is the HTTP server that exposes the documentation assistant.
type Server struct {
	// answerer handles all /api/ask questions; set to the assistant in
	// production, overridden by a fake in tests.
	answerer answerer
	// store persists conversations and feedback. May be nil, in which case
	// /api/feedback returns 503 and conversations are not recorded.
	store store.ConversationStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus metrics owned by this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question about the product.
	Question string `json:"question"`
	// UserName is an optional caller label stored with the conversation.
	UserName string `json:"user_name,omitempty"`
}

// askResponse is the JSON response for POST /api/ask. It carries the full
// answer outcome plus the persisted conversation id (0 when the store is
// disabled or the save failed).
type askResponse struct {
	assistant.Outcome
	// ConversationID references the saved conversation for later feedback.
	ConversationID int64 `json:"conversation_id,omitempty"`
}

// feedbackRequest is the JSON body for POST /api/feedback.
type feedbackRequest struct {
	// ConversationID is the id returned by a previous /api/ask call.
	ConversationID int64 `json:"conversation_id"`
	// Helpful is the user's verdict on the answer.
	Helpful bool `json:"helpful"`
}

// feedbackResponse is the JSON response for POST /api/feedback.
type feedbackResponse struct {
	// Updated is false when the conversation does not exist or feedback
	// was already recorded (first vote wins).
	Updated bool `json:"updated"`
}
