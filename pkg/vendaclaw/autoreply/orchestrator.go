// Package autoreply – orchestrator.go runs one flushed buffer to its
// terminal disposition: sent, drafted, skipped or failed. Every run produces
// exactly one processed-event notification.
package autoreply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Orchestrator turns a flushed buffer into a reply.
type Orchestrator struct {
	cfg       *Config
	transport Transport
	generator ReplyGenerator
	memory    Memory
	store     Store
	pacer     *Pacer
	events    *Broadcaster
	logger    *slog.Logger
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(cfg *Config, transport Transport, generator ReplyGenerator, memory Memory, store Store, pacer *Pacer, events *Broadcaster, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		transport: transport,
		generator: generator,
		memory:    memory,
		store:     store,
		pacer:     pacer,
		events:    events,
		logger:    logger.With("component", "orchestrator"),
	}
}

// Process handles one flushed buffer. It is invoked once per flush, never
// with zero messages, and runs to completion. The only cancellation point
// in the pipeline is pre-flush revocation. The returned disposition is also
// broadcast as a processed event.
func (o *Orchestrator) Process(ctx context.Context, conversationID string, msgs []*Message) Disposition {
	if len(msgs) == 0 {
		// Guaranteed not to happen by the debouncer; belt and braces.
		return DispositionSkipped
	}

	displayName := msgs[len(msgs)-1].PushName
	if displayName == "" {
		displayName = BareNumber(conversationID)
	}
	query := aggregateBodies(msgs)
	mediaContext := aggregateMediaNotes(msgs)

	finish := func(d Disposition, reason string) Disposition {
		o.events.Publish(Event{Type: "processed", Processed: &ProcessedEvent{
			ConversationID: conversationID,
			DisplayName:    displayName,
			MessageCount:   len(msgs),
			Query:          query,
			CostSaved:      float64(len(msgs)-1) * o.cfg.CostPerMessage,
			Timestamp:      time.Now(),
			Disposition:    d,
			ErrorReason:    reason,
		}})
		return d
	}

	// 1. Resolve the conversation handle. Not retried on failure.
	conv, err := o.transport.Conversation(ctx, conversationID)
	if err != nil {
		o.logger.Warn("orchestrator: conversation unavailable",
			"conversation", conversationID, "error", err)
		return finish(DispositionFailed, "context unavailable")
	}
	if name := conv.Contact().DisplayName(); name != "" {
		displayName = name
	}

	// 2. Persist the aggregated query (detached, best-effort).
	o.embedDetached(conversationID, "user", query, mediaContext)

	// 3. Retrieve conversational context; degraded on failure, never fatal.
	history := o.retrieveContext(ctx, conversationID, query)

	// 4. Generate the reply.
	result, err := o.generator.Generate(ctx, GenerateRequest{
		Query:        query,
		SystemPrompt: o.cfg.SystemPrompt,
		MediaContext: mediaContext,
		History:      history,
	})
	if err != nil {
		reason := fmt.Sprintf("generation failed: %v", err)
		if errors.Is(err, ErrPaymentRequired) {
			reason = "payment required: " + err.Error()
		}
		o.logger.Error("orchestrator: generation failed",
			"conversation", conversationID, "error", err)
		return finish(DispositionFailed, reason)
	}

	reply := strings.TrimSpace(result.Text)
	if reply == "" {
		// Expected outcome: the model chose not to answer.
		o.logger.Info("orchestrator: empty reply, skipping",
			"conversation", conversationID)
		return finish(DispositionSkipped, "empty response")
	}

	// 5. Handover trigger overrides autonomous mode for safety.
	handover := o.cfg.HandoverEnabled && containsHandoverKeyword(msgs, o.cfg.HandoverKeywords)

	if o.cfg.DraftMode || handover {
		draft := &Draft{
			ID:             uuid.New().String(),
			ConversationID: conversationID,
			MessageID:      msgs[len(msgs)-1].ID,
			ContactName:    displayName,
			ContactNumber:  conv.Contact().Number(),
			Query:          query,
			Reply:          reply,
			MessageCount:   len(msgs),
			Sentiment:      result.Sentiment,
			Handover:       handover,
			CreatedAt:      time.Now(),
		}
		if err := o.store.SaveDraft(draft); err != nil {
			o.logger.Error("orchestrator: failed to persist draft",
				"conversation", conversationID, "error", err)
			return finish(DispositionFailed, fmt.Sprintf("draft store: %v", err))
		}
		o.events.Publish(Event{Type: "draft", Draft: draft})
		o.logger.Info("orchestrator: reply drafted",
			"conversation", conversationID,
			"draft", draft.ID,
			"handover", handover)
		return finish(DispositionDrafted, "")
	}

	// 6. Autonomous send through the pacer.
	bubbles := SplitBubbles(reply, o.cfg.MaxBubbleLength, o.cfg.MaxBubbles)
	err = o.pacer.SendPaced(ctx, conv, msgs[len(msgs)-1].ID, bubbles,
		o.cfg.SafeMode,
		time.Duration(o.cfg.SafeModeMinDelaySeconds)*time.Second,
		time.Duration(o.cfg.SafeModeMaxDelaySeconds)*time.Second)
	if err != nil {
		o.logger.Error("orchestrator: send failed",
			"conversation", conversationID, "error", err)
		return finish(DispositionFailed, fmt.Sprintf("send failed: %v", err))
	}

	// 7. On sent: remember the assistant reply, record stats, notify.
	o.embedDetached(conversationID, "assistant", reply, "")

	saved := time.Duration(o.cfg.SecondsSavedPerReply) * time.Second
	if err := o.store.RecordReply(len(msgs), saved); err != nil {
		o.logger.Warn("orchestrator: failed to record usage stats", "error", err)
	}

	now := time.Now()
	o.events.Publish(Event{Type: "activity", Activity: &ActivityEvent{
		ConversationID: conversationID,
		DisplayName:    displayName,
		TimeLabel:      now.Format("15:04"),
		Query:          query,
		Reply:          reply,
		Timestamp:      now,
	}})

	o.logger.Info("orchestrator: reply sent",
		"conversation", conversationID,
		"messages", len(msgs),
		"bubbles", len(bubbles))
	return finish(DispositionSent, "")
}

// retrieveContext merges semantically relevant turns with the most recent
// ones, semantic matches first, de-duplicated by exact text. The current
// query is excluded: its detached embed may already have landed, and the
// question being answered must not appear in its own context. Retrieval
// failures degrade to empty context.
func (o *Orchestrator) retrieveContext(ctx context.Context, conversationID, query string) []Turn {
	var merged []Turn
	seen := map[string]bool{query: true}

	relevant, err := o.memory.Recall(ctx, conversationID, query, o.cfg.RecallLimit)
	if err != nil {
		o.logger.Warn("orchestrator: recall failed, proceeding without",
			"conversation", conversationID, "error", err)
	}
	for _, t := range relevant {
		if seen[t.Text] {
			continue
		}
		seen[t.Text] = true
		merged = append(merged, t)
	}

	recent, err := o.memory.RecentHistory(ctx, conversationID, o.cfg.HistoryLimit)
	if err != nil {
		o.logger.Warn("orchestrator: history retrieval failed, proceeding without",
			"conversation", conversationID, "error", err)
	}
	for _, t := range recent {
		if seen[t.Text] {
			continue
		}
		seen[t.Text] = true
		merged = append(merged, t)
	}

	return merged
}

// embedDetached persists a turn on a detached goroutine; errors are logged
// and never awaited by the pipeline.
func (o *Orchestrator) embedDetached(conversationID, role, text, mediaContext string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.memory.Embed(ctx, conversationID, role, text, mediaContext); err != nil {
			o.logger.Warn("orchestrator: memory embed failed",
				"conversation", conversationID, "role", role, "error", err)
		}
	}()
}

// aggregateBodies joins the buffered message bodies, newline-separated, in
// arrival order.
func aggregateBodies(msgs []*Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Body != "" {
			parts = append(parts, m.Body)
		}
	}
	return strings.Join(parts, "\n")
}

// aggregateMediaNotes joins media annotation scratch text the same way,
// independently of the bodies.
func aggregateMediaNotes(msgs []*Message) string {
	var parts []string
	for _, m := range msgs {
		if m.MediaNote != "" {
			parts = append(parts, m.MediaNote)
		}
	}
	return strings.Join(parts, "\n")
}

// containsHandoverKeyword scans every buffered body for a handover phrase.
func containsHandoverKeyword(msgs []*Message, keywords []string) bool {
	for _, m := range msgs {
		body := strings.ToLower(m.Body)
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(body, kw) {
				return true
			}
		}
	}
	return false
}
