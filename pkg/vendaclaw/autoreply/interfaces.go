// Package autoreply – interfaces.go defines the contracts the pipeline
// consumes from its collaborators: chat transport, reply generator,
// conversation memory and the draft/statistics store.
package autoreply

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by pipeline components. Race losses are reported
// through these values, never through panics.
var (
	// ErrDraftNotFound is returned when a draft id no longer exists
	// (discarded, approved or expired by a concurrent actor).
	ErrDraftNotFound = errors.New("draft not found")

	// ErrTransportDisconnected is returned by transport operations when the
	// underlying connection is down.
	ErrTransportDisconnected = errors.New("transport disconnected")

	// ErrPaymentRequired marks generator failures caused by licensing,
	// billing or exhausted quota, so the UI can surface actionable messaging.
	ErrPaymentRequired = errors.New("payment or licensing required")
)

// Conversation is an opaque handle for one resolved conversation.
type Conversation interface {
	// ID returns the raw transport conversation identifier.
	ID() string

	// Contact returns the contact capability for this conversation.
	Contact() ContactInfo
}

// Transport is the minimal outbound surface of the chat transport.
type Transport interface {
	// Conversation resolves a handle for the given conversation id.
	Conversation(ctx context.Context, id string) (Conversation, error)

	// Send transmits a plain text message.
	Send(ctx context.Context, conv Conversation, text string) error

	// Reply transmits a text message quoting the original message, anchoring
	// the reply to the thread.
	Reply(ctx context.Context, conv Conversation, originalMessageID, text string) error

	// SetTyping emits a "composing" presence signal.
	SetTyping(ctx context.Context, conv Conversation) error
}

// Turn is one prior conversational exchange retrieved from memory.
type Turn struct {
	// Role is "user" or "assistant".
	Role string

	// Text is the turn content.
	Text string

	// MediaContext carries media annotation text attached to the turn.
	MediaContext string
}

// Memory is the long-term conversation memory collaborator. Recall and
// RecentHistory failures degrade the pipeline (empty context) but never
// abort it; Embed is fire-and-forget.
type Memory interface {
	// Recall returns up to limit semantically relevant prior turns.
	Recall(ctx context.Context, conversationID, query string, limit int) ([]Turn, error)

	// RecentHistory returns up to limit most recent prior turns, oldest first.
	RecentHistory(ctx context.Context, conversationID string, limit int) ([]Turn, error)

	// Embed persists one turn for future recall.
	Embed(ctx context.Context, conversationID, role, text, mediaContext string) error
}

// GenerateRequest carries everything the reply generator needs for one run.
type GenerateRequest struct {
	// Query is the aggregated user text, newline-joined in arrival order.
	Query string

	// SystemPrompt is the configured assistant instruction text.
	SystemPrompt string

	// MediaContext is the aggregated media annotation text, if any.
	MediaContext string

	// History is the merged conversational context (semantic + recent).
	History []Turn
}

// GenerateResult is a successful generator outcome. An empty Text is a valid
// result and maps to the skipped disposition.
type GenerateResult struct {
	Text      string
	Sentiment string
}

// ReplyGenerator produces a reply for an aggregated query. There is no
// mid-generation cancellation beyond ctx; timeouts are the generator's
// responsibility.
type ReplyGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// DraftStore persists drafts awaiting approval. Delete is the single source
// of truth for "does this draft still exist": it must be atomic and report
// whether the row was actually removed, so concurrent approve/discard races
// resolve to exactly one winner.
type DraftStore interface {
	SaveDraft(d *Draft) error
	GetDraft(id string) (*Draft, error)
	ListDrafts() ([]*Draft, error)

	// DeleteDraft removes the draft and reports whether it still existed.
	DeleteDraft(id string) (bool, error)

	// UpdateDraftReply overwrites only the proposed reply text and reports
	// whether the draft still existed.
	UpdateDraftReply(id, reply string) (bool, error)
}

// StatsStore accumulates usage statistics.
type StatsStore interface {
	// RecordReply records one delivered reply that aggregated the given
	// number of inbound messages.
	RecordReply(messagesAggregated int, saved time.Duration) error
}

// Store is the combined persistence surface the pipeline consumes.
type Store interface {
	DraftStore
	StatsStore
}
