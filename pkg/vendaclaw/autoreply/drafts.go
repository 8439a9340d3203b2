// Package autoreply – drafts.go implements the draft lifecycle: replies
// awaiting operator approval can be approved (optionally with edited text),
// edited in place, or discarded. All three operations are safe to invoke
// concurrently on the same id; the store's atomic delete decides the winner
// and the loser observes ErrDraftNotFound, never a crash.
package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DraftManager exposes the approve/edit/discard operations over the draft
// store.
type DraftManager struct {
	store     Store
	transport Transport
	memory    Memory
	pacer     *Pacer
	cfg       *Config
	events    *Broadcaster
	logger    *slog.Logger

	// inflight guards against two concurrent approvals of the same draft
	// both reaching the transport.
	mu       sync.Mutex
	inflight map[string]bool
}

// NewDraftManager wires a draft manager from its collaborators.
func NewDraftManager(store Store, transport Transport, memory Memory, pacer *Pacer, cfg *Config, events *Broadcaster, logger *slog.Logger) *DraftManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &DraftManager{
		store:     store,
		transport: transport,
		memory:    memory,
		pacer:     pacer,
		cfg:       cfg,
		events:    events,
		logger:    logger.With("component", "drafts"),
		inflight:  make(map[string]bool),
	}
}

// List returns all pending drafts.
func (m *DraftManager) List() ([]*Draft, error) {
	return m.store.ListDrafts()
}

// Approve sends the draft's reply (or overrideText when non-empty) and
// removes the draft. A draft whose conversation can no longer be resolved is
// garbage-collected on touch rather than retried.
func (m *DraftManager) Approve(ctx context.Context, id, overrideText string) error {
	if !m.claim(id) {
		return ErrDraftNotFound
	}
	defer m.release(id)

	draft, err := m.store.GetDraft(id)
	if err != nil {
		return fmt.Errorf("loading draft: %w", err)
	}
	if draft == nil {
		return ErrDraftNotFound
	}

	conv, err := m.transport.Conversation(ctx, draft.ConversationID)
	if err != nil {
		// Dead conversation: the draft is unsendable, drop it.
		if _, delErr := m.store.DeleteDraft(id); delErr != nil {
			m.logger.Warn("drafts: failed to remove stale draft", "id", id, "error", delErr)
		}
		return fmt.Errorf("resolving conversation %s: %w", draft.ConversationID, err)
	}

	text := draft.Reply
	if overrideText != "" {
		text = overrideText
	}

	bubbles := SplitBubbles(text, m.cfg.MaxBubbleLength, m.cfg.MaxBubbles)
	err = m.pacer.SendPaced(ctx, conv, draft.MessageID, bubbles,
		m.cfg.SafeMode,
		time.Duration(m.cfg.SafeModeMinDelaySeconds)*time.Second,
		time.Duration(m.cfg.SafeModeMaxDelaySeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("sending approved reply: %w", err)
	}

	// Best-effort memory write; never blocks the approval.
	go func() {
		embedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.memory.Embed(embedCtx, draft.ConversationID, "assistant", text, ""); err != nil {
			m.logger.Warn("drafts: memory embed failed", "error", err)
		}
	}()

	// Re-check existence: a concurrent discard may have won while we were
	// sending. Already gone is not an error; the reply was delivered.
	existed, err := m.store.DeleteDraft(id)
	if err != nil {
		m.logger.Warn("drafts: failed to delete approved draft", "id", id, "error", err)
	} else if !existed {
		m.logger.Info("drafts: draft already removed by concurrent actor", "id", id)
	}

	saved := time.Duration(m.cfg.SecondsSavedPerReply) * time.Second
	if err := m.store.RecordReply(draft.MessageCount, saved); err != nil {
		m.logger.Warn("drafts: failed to record usage stats", "error", err)
	}

	count := draft.MessageCount
	if count < 1 {
		count = 1
	}
	m.events.Publish(Event{Type: "processed", Processed: &ProcessedEvent{
		ConversationID: draft.ConversationID,
		DisplayName:    draft.ContactName,
		MessageCount:   count,
		Query:          draft.Query,
		CostSaved:      float64(count-1) * m.cfg.CostPerMessage,
		Timestamp:      time.Now(),
		Disposition:    DispositionSent,
	}})

	m.logger.Info("drafts: draft approved and sent",
		"id", id,
		"conversation", draft.ConversationID,
		"bubbles", len(bubbles))
	return nil
}

// Discard removes the draft without sending. Returns ErrDraftNotFound when a
// concurrent actor already removed it.
func (m *DraftManager) Discard(id string) error {
	existed, err := m.store.DeleteDraft(id)
	if err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	if !existed {
		return ErrDraftNotFound
	}
	m.logger.Info("drafts: draft discarded", "id", id)
	return nil
}

// Edit overwrites only the proposed reply text, leaving every other
// attribute untouched.
func (m *DraftManager) Edit(id, newText string) error {
	existed, err := m.store.UpdateDraftReply(id, newText)
	if err != nil {
		return fmt.Errorf("updating draft: %w", err)
	}
	if !existed {
		return ErrDraftNotFound
	}
	m.logger.Info("drafts: draft edited", "id", id)
	return nil
}

// claim marks a draft as being approved; a second concurrent approval of the
// same id is turned away.
func (m *DraftManager) claim(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[id] {
		return false
	}
	m.inflight[id] = true
	return true
}

func (m *DraftManager) release(id string) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}
