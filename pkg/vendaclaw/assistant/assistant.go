package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/generator"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/memory"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/store"
)

// MessageTransport is the full transport surface the assistant drives:
// the outbound operations the pipeline uses plus lifecycle and the inbound
// message stream.
type MessageTransport interface {
	autoreply.Transport

	Connect(ctx context.Context) error
	Disconnect() error
	Receive() <-chan autoreply.Message
}

// Assistant composes the pipeline and owns the receive loop.
type Assistant struct {
	cfg    *Config
	logger *slog.Logger

	transport MessageTransport
	store     *store.Store
	memory    *memory.SQLStore

	events       *autoreply.Broadcaster
	debouncer    *autoreply.Debouncer
	orchestrator *autoreply.Orchestrator
	drafts       *autoreply.DraftManager
	sweeper      *autoreply.Sweeper
}

// New opens the persistence layers and wires the pipeline. The transport is
// injected so the chat REPL can run the same pipeline over an in-memory
// transport. A nil gen builds the OpenAI-compatible generator from config.
func New(cfg *Config, transport MessageTransport, gen autoreply.ReplyGenerator, logger *slog.Logger) (*Assistant, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	mem, err := memory.Open(cfg.MemoryPath, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("opening memory: %w", err)
	}

	if gen == nil {
		gen = generator.New(cfg.Generator, logger)
	}

	events := autoreply.NewBroadcaster()
	pacer := autoreply.NewPacer(transport, logger)

	a := &Assistant{
		cfg:       cfg,
		logger:    logger.With("component", "assistant"),
		transport: transport,
		store:     st,
		memory:    mem,
		events:    events,
	}

	a.orchestrator = autoreply.NewOrchestrator(
		&cfg.AutoReply, transport, gen, mem, st, pacer, events, logger)

	a.debouncer = autoreply.NewDebouncer(
		cfg.AutoReply.DebounceWindow(),
		func(conversationID string, msgs []*autoreply.Message) {
			a.orchestrator.Process(context.Background(), conversationID, msgs)
		},
		a.publishQueue,
		logger)

	a.drafts = autoreply.NewDraftManager(
		st, transport, mem, pacer, &cfg.AutoReply, events, logger)

	a.sweeper = autoreply.NewSweeper(a.drafts, cfg.AutoReply.DraftExpiry, logger)

	return a, nil
}

// Events returns the pipeline event broadcaster.
func (a *Assistant) Events() *autoreply.Broadcaster { return a.events }

// Drafts returns the draft manager.
func (a *Assistant) Drafts() *autoreply.DraftManager { return a.drafts }

// Queue returns the current buffer snapshot.
func (a *Assistant) Queue() []autoreply.BufferItem { return a.debouncer.Snapshot() }

// Stats returns accumulated usage statistics.
func (a *Assistant) Stats() (*store.UsageStats, error) { return a.store.Stats() }

// Transport returns the underlying transport.
func (a *Assistant) Transport() MessageTransport { return a.transport }

// Run connects the transport and drives the receive loop until ctx is
// cancelled or the transport's message stream closes.
func (a *Assistant) Run(ctx context.Context) error {
	if err := a.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connecting transport: %w", err)
	}

	if err := a.sweeper.Start(); err != nil {
		return fmt.Errorf("starting draft sweeper: %w", err)
	}

	a.logger.Info("assistant running",
		"draft_mode", a.cfg.AutoReply.DraftMode,
		"safe_mode", a.cfg.AutoReply.SafeMode,
		"debounce", a.cfg.AutoReply.DebounceWindow())

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return ctx.Err()

		case msg, ok := <-a.transport.Receive():
			if !ok {
				a.shutdown()
				return nil
			}
			a.handleMessage(ctx, msg)
		}
	}
}

// handleMessage routes one inbound message: revocations evict from
// buffers, non-chat kinds are dropped, the rest pass the intake filter
// before entering the debounce buffer.
func (a *Assistant) handleMessage(ctx context.Context, msg autoreply.Message) {
	if msg.Kind == autoreply.KindRevoked {
		a.debouncer.RemoveMessage(msg.ChatID, msg.ID)
		a.logger.Debug("revoked message evicted", "chat", msg.ChatID, "id", msg.ID)
		return
	}

	if !msg.Kind.Processable() {
		a.logger.Debug("non-chat message dropped", "kind", msg.Kind, "chat", msg.ChatID)
		return
	}

	var contact autoreply.ContactInfo
	if a.cfg.AutoReply.UnsavedOnly {
		// Contact resolution is only needed for the unsaved-only rule.
		if conv, err := a.transport.Conversation(ctx, msg.ChatID); err == nil {
			contact = conv.Contact()
		}
	}

	if !autoreply.ShouldAccept(&msg, &a.cfg.AutoReply, contact) {
		a.logger.Debug("message filtered", "chat", msg.ChatID)
		return
	}

	a.debouncer.Enqueue(msg.ChatID, &msg)
}

// publishQueue broadcasts the current buffer snapshot.
func (a *Assistant) publishQueue() {
	a.events.Publish(autoreply.Event{
		Type:  "queue",
		Queue: a.debouncer.Snapshot(),
	})
}

// shutdown flushes pending buffers and closes resources.
func (a *Assistant) shutdown() {
	a.logger.Info("shutting down")

	// Pending buffers are flushed synchronously so replies to customers who
	// already wrote are not lost.
	a.debouncer.Stop()
	a.sweeper.Stop()

	if err := a.transport.Disconnect(); err != nil {
		a.logger.Warn("transport disconnect", "error", err)
	}
	if err := a.memory.Close(); err != nil {
		a.logger.Warn("closing memory", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}
