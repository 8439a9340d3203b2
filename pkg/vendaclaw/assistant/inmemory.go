package assistant

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"
)

// LocalMessage is one outbound message recorded by the in-memory transport.
type LocalMessage struct {
	ConversationID string
	Text           string
	ReplyTo        string
	Timestamp      time.Time
}

// LocalTransport is an in-memory MessageTransport used by the chat REPL
// and tests. Inbound messages are injected with Inject; outbound sends are
// recorded and mirrored to an optional callback.
type LocalTransport struct {
	mu       sync.Mutex
	sent     []LocalMessage
	onSend   func(LocalMessage)
	contacts map[string]localContact

	inbound chan autoreply.Message
	closed  atomic.Bool
}

type localContact struct {
	name  string
	saved bool
}

// NewLocalTransport creates an in-memory transport. onSend may be nil.
func NewLocalTransport(onSend func(LocalMessage)) *LocalTransport {
	return &LocalTransport{
		onSend:   onSend,
		contacts: make(map[string]localContact),
		inbound:  make(chan autoreply.Message, 64),
	}
}

// SetContact registers a phonebook entry for a conversation id.
func (t *LocalTransport) SetContact(conversationID, name string, saved bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.contacts[conversationID] = localContact{name: name, saved: saved}
}

// Inject delivers one inbound text message to the pipeline and returns its
// generated message id.
func (t *LocalTransport) Inject(conversationID, text string) string {
	id := uuid.NewString()
	t.inbound <- autoreply.Message{
		ID:        id,
		ChatID:    conversationID,
		Sender:    conversationID,
		Kind:      autoreply.KindText,
		Body:      text,
		Timestamp: time.Now(),
	}
	return id
}

// Sent returns a copy of all recorded outbound messages.
func (t *LocalTransport) Sent() []LocalMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LocalMessage, len(t.sent))
	copy(out, t.sent)
	return out
}

// ---------- MessageTransport ----------

func (t *LocalTransport) Connect(ctx context.Context) error { return nil }

func (t *LocalTransport) Disconnect() error {
	if t.closed.CompareAndSwap(false, true) {
		close(t.inbound)
	}
	return nil
}

func (t *LocalTransport) Receive() <-chan autoreply.Message { return t.inbound }

func (t *LocalTransport) Conversation(_ context.Context, id string) (autoreply.Conversation, error) {
	t.mu.Lock()
	c, ok := t.contacts[id]
	t.mu.Unlock()

	name := c.name
	if !ok || name == "" {
		name = autoreply.BareNumber(id)
		if name == "" {
			name = id
		}
	}
	return localConversation{
		id:      id,
		contact: localContactInfo{name: name, number: autoreply.BareNumber(id), saved: c.saved},
	}, nil
}

func (t *LocalTransport) Send(_ context.Context, conv autoreply.Conversation, text string) error {
	t.record(LocalMessage{ConversationID: conv.ID(), Text: text, Timestamp: time.Now()})
	return nil
}

func (t *LocalTransport) Reply(_ context.Context, conv autoreply.Conversation, originalMessageID, text string) error {
	t.record(LocalMessage{
		ConversationID: conv.ID(),
		Text:           text,
		ReplyTo:        originalMessageID,
		Timestamp:      time.Now(),
	})
	return nil
}

func (t *LocalTransport) SetTyping(context.Context, autoreply.Conversation) error { return nil }

func (t *LocalTransport) record(msg LocalMessage) {
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	cb := t.onSend
	t.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

type localConversation struct {
	id      string
	contact localContactInfo
}

func (c localConversation) ID() string                     { return c.id }
func (c localConversation) Contact() autoreply.ContactInfo { return c.contact }

type localContactInfo struct {
	name   string
	number string
	saved  bool
}

func (c localContactInfo) DisplayName() string { return c.name }
func (c localContactInfo) Number() string      { return c.number }
func (c localContactInfo) Saved() bool         { return c.saved }
