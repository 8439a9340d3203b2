// Package autoreply – events.go carries the outward notifications the
// pipeline broadcasts to observers (web UI, CLI). Delivery is fire-and-forget
// and at-least-once; consumers must tolerate duplicates.
package autoreply

import (
	"sync"
	"time"
)

// BufferItem is a point-in-time projection of one live conversation buffer.
type BufferItem struct {
	ConversationID string    `json:"conversation_id"`
	DisplayName    string    `json:"display_name"`
	MessageCount   int       `json:"message_count"`
	StartedAt      time.Time `json:"started_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastPreview    string    `json:"last_preview"`
}

// ProcessedEvent describes one completed pipeline run.
type ProcessedEvent struct {
	ConversationID string      `json:"conversation_id"`
	DisplayName    string      `json:"display_name"`
	MessageCount   int         `json:"message_count"`
	Query          string      `json:"query"`
	CostSaved      float64     `json:"cost_saved"`
	Timestamp      time.Time   `json:"timestamp"`
	Disposition    Disposition `json:"disposition"`
	ErrorReason    string      `json:"error_reason,omitempty"`
}

// ActivityEvent is emitted for sent replies only.
type ActivityEvent struct {
	ConversationID string    `json:"conversation_id"`
	DisplayName    string    `json:"display_name"`
	TimeLabel      string    `json:"time_label"`
	Query          string    `json:"query"`
	Reply          string    `json:"reply"`
	Timestamp      time.Time `json:"timestamp"`
}

// Event is one outward notification. Exactly one payload field is set,
// matching Type.
type Event struct {
	// Type is "queue", "processed", "draft" or "activity".
	Type string `json:"type"`

	// Queue is the full current buffer list (Type == "queue").
	Queue []BufferItem `json:"queue,omitempty"`

	// Processed is a completed run (Type == "processed").
	Processed *ProcessedEvent `json:"processed,omitempty"`

	// Draft is a newly created draft (Type == "draft").
	Draft *Draft `json:"draft,omitempty"`

	// Activity is a sent-reply record (Type == "activity").
	Activity *ActivityEvent `json:"activity,omitempty"`
}

// Broadcaster fans events out to subscribers. Slow subscribers are skipped,
// never blocked on.
type Broadcaster struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers a new observer channel. Returns the channel and an
// unsubscribe function.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// Publish delivers an event to all subscribers without blocking.
func (b *Broadcaster) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Observer too slow, skip.
		}
	}
}
