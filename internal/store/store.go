// Package store persists conversation audit records: every answered
// question together with its retrieved context, full prompt, raw model
// response, and the eventual user feedback vote. The store is an audit
// sink — the answering pipeline never depends on persistence succeeding.
//
// Two backends are provided: PostgreSQL for production deployments and
// SQLite for single-host or development use.
package store

import (
	"context"
	"time"

	"github.com/safemobile/docbot/internal/rag"
)

// ConversationRecord is one answered question with its full pipeline payload.
type ConversationRecord struct {
	// ID is the database-assigned record id (populated on save).
	ID int64
	// UserID identifies the asking user in the delivery platform.
	UserID int64
	// UserName is the display name of the asking user, if known.
	UserName string
	// Question is the user's question verbatim.
	Question string
	// Contexts is the retrieved context set, stored as JSON.
	Contexts []rag.Fragment
	// Prompt is the full prompt sent to the model.
	Prompt string
	// LLMResponse is the model's unmodified completion text.
	LLMResponse string
	// Success is the outcome's success flag.
	Success bool
	// MessageID is the delivery-layer message id of the bot's reply, used to
	// key feedback votes. Zero when the answer was not delivered via chat.
	MessageID int64
	// Feedback is the user's vote: nil until voted, then helpful yes/no.
	Feedback *bool
	// FeedbackAt is when the vote was recorded.
	FeedbackAt *time.Time
	// AvgScore is the average relevance score of the retrieved context.
	AvgScore float64
	// CreatedAt is when the record was persisted.
	CreatedAt time.Time
}

// ConversationStore persists conversation records and feedback votes.
// Implementations must be safe for concurrent use.
type ConversationStore interface {
	// SaveConversation persists a record and returns its database id.
	SaveConversation(ctx context.Context, rec *ConversationRecord) (int64, error)
	// UpdateFeedback records a vote for the conversation whose delivery
	// message id matches. The first vote wins: a record that already has
	// feedback is not updated. Returns true if a row was updated.
	UpdateFeedback(ctx context.Context, messageID int64, helpful bool) (bool, error)
	// UpdateFeedbackByID records a vote keyed by the record id instead of
	// the delivery message id. First vote wins. Returns true if a row was
	// updated.
	UpdateFeedbackByID(ctx context.Context, id int64, helpful bool) (bool, error)
	// Close releases any resources held by the store.
	Close() error
}
