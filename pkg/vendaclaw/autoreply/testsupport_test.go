package autoreply

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeContact implements ContactInfo.
type fakeContact struct {
	name   string
	number string
	saved  bool
}

func (c *fakeContact) DisplayName() string { return c.name }
func (c *fakeContact) Number() string      { return c.number }
func (c *fakeContact) Saved() bool         { return c.saved }

// fakeConversation implements Conversation.
type fakeConversation struct {
	id      string
	contact *fakeContact
}

func (c *fakeConversation) ID() string           { return c.id }
func (c *fakeConversation) Contact() ContactInfo { return c.contact }

// sentMessage records one transmitted bubble.
type sentMessage struct {
	Text    string
	ReplyTo string
}

// fakeTransport implements Transport, recording sends and optionally failing.
type fakeTransport struct {
	mu          sync.Mutex
	sent        []sentMessage
	typing      int
	resolveErr  error
	failAtSend  int // 1-based index of the send that fails; 0 = never
	sendErr     error
	contactName string
}

func (t *fakeTransport) Conversation(_ context.Context, id string) (Conversation, error) {
	if t.resolveErr != nil {
		return nil, t.resolveErr
	}
	return &fakeConversation{id: id, contact: &fakeContact{
		name:   t.contactName,
		number: BareNumber(id),
	}}, nil
}

func (t *fakeTransport) Send(_ context.Context, _ Conversation, text string) error {
	return t.record(text, "")
}

func (t *fakeTransport) Reply(_ context.Context, _ Conversation, originalMessageID, text string) error {
	return t.record(text, originalMessageID)
}

func (t *fakeTransport) SetTyping(_ context.Context, _ Conversation) error {
	t.mu.Lock()
	t.typing++
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) record(text, replyTo string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAtSend > 0 && len(t.sent)+1 == t.failAtSend {
		if t.sendErr != nil {
			return t.sendErr
		}
		return errors.New("transport send failed")
	}
	t.sent = append(t.sent, sentMessage{Text: text, ReplyTo: replyTo})
	return nil
}

func (t *fakeTransport) sentMessages() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sentMessage, len(t.sent))
	copy(out, t.sent)
	return out
}

// fakeGenerator implements ReplyGenerator.
type fakeGenerator struct {
	reply     string
	sentiment string
	err       error
	lastReq   GenerateRequest
	mu        sync.Mutex
}

func (g *fakeGenerator) Generate(_ context.Context, req GenerateRequest) (*GenerateResult, error) {
	g.mu.Lock()
	g.lastReq = req
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &GenerateResult{Text: g.reply, Sentiment: g.sentiment}, nil
}

func (g *fakeGenerator) request() GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastReq
}

// fakeMemory implements Memory.
type fakeMemory struct {
	mu        sync.Mutex
	recall    []Turn
	recent    []Turn
	recallErr error
	recentErr error
	embedded  []Turn
}

func (m *fakeMemory) Recall(_ context.Context, _, _ string, _ int) ([]Turn, error) {
	if m.recallErr != nil {
		return nil, m.recallErr
	}
	return m.recall, nil
}

func (m *fakeMemory) RecentHistory(_ context.Context, _ string, _ int) ([]Turn, error) {
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	return m.recent, nil
}

func (m *fakeMemory) Embed(_ context.Context, _, role, text, mediaContext string) error {
	m.mu.Lock()
	m.embedded = append(m.embedded, Turn{Role: role, Text: text, MediaContext: mediaContext})
	m.mu.Unlock()
	return nil
}

// memStore is an in-memory Store.
type memStore struct {
	mu         sync.Mutex
	drafts     map[string]*Draft
	replies    int
	aggregated int
	saveErr    error
}

func newMemStore() *memStore {
	return &memStore{drafts: make(map[string]*Draft)}
}

func (s *memStore) SaveDraft(d *Draft) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	copied := *d
	s.drafts[d.ID] = &copied
	s.mu.Unlock()
	return nil
}

func (s *memStore) GetDraft(id string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (s *memStore) ListDrafts() ([]*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		copied := *d
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memStore) DeleteDraft(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[id]; !ok {
		return false, nil
	}
	delete(s.drafts, id)
	return true, nil
}

func (s *memStore) UpdateDraftReply(id, reply string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return false, nil
	}
	d.Reply = reply
	return true, nil
}

func (s *memStore) RecordReply(messagesAggregated int, _ time.Duration) error {
	s.mu.Lock()
	s.replies++
	s.aggregated += messagesAggregated
	s.mu.Unlock()
	return nil
}

func (s *memStore) draftCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

// collectEvents drains matching events from a subscription until timeout.
func collectEvents(ch <-chan Event, eventType string, want int, timeout time.Duration) []Event {
	var got []Event
	deadline := time.After(timeout)
	for len(got) < want {
		select {
		case evt := <-ch:
			if evt.Type == eventType {
				got = append(got, evt)
			}
		case <-deadline:
			return got
		}
	}
	return got
}

func textMessage(id, chatID, body string) *Message {
	return &Message{
		ID:        id,
		ChatID:    chatID,
		Sender:    chatID,
		Kind:      KindText,
		Body:      body,
		Timestamp: time.Now(),
	}
}
