package autoreply

import (
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

// flushRecorder captures flushes for assertions.
type flushRecorder struct {
	mu      sync.Mutex
	flushes [][]*Message
	ids     []string
	done    chan struct{}
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{done: make(chan struct{}, 16)}
}

func (r *flushRecorder) flush(conversationID string, msgs []*Message) {
	r.mu.Lock()
	r.ids = append(r.ids, conversationID)
	r.flushes = append(r.flushes, msgs)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flushes)
}

func (r *flushRecorder) wait(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for flush")
	}
}

func TestDebouncerSingleFlush(t *testing.T) {
	rec := newFlushRecorder()
	d := NewDebouncer(80*time.Millisecond, rec.flush, nil, nil)

	// Three messages closer together than the window aggregate into one
	// flush in arrival order.
	d.Enqueue("5511@s.whatsapp.net", textMessage("m1", "5511@s.whatsapp.net", "Hi"))
	time.Sleep(20 * time.Millisecond)
	d.Enqueue("5511@s.whatsapp.net", textMessage("m2", "5511@s.whatsapp.net", "Is the blue shirt in stock?"))
	time.Sleep(20 * time.Millisecond)
	d.Enqueue("5511@s.whatsapp.net", textMessage("m3", "5511@s.whatsapp.net", "price?"))

	rec.wait(t, time.Second)
	time.Sleep(150 * time.Millisecond) // no second flush may follow

	if got := rec.count(); got != 1 {
		t.Fatalf("expected exactly 1 flush, got %d", got)
	}
	msgs := rec.flushes[0]
	if len(msgs) != 3 {
		t.Fatalf("expected 3 buffered messages, got %d", len(msgs))
	}
	bodies := []string{msgs[0].Body, msgs[1].Body, msgs[2].Body}
	joined := strings.Join(bodies, "\n")
	if joined != "Hi\nIs the blue shirt in stock?\nprice?" {
		t.Errorf("unexpected aggregation order: %q", joined)
	}
}

func TestDebouncerEpochs(t *testing.T) {
	rec := newFlushRecorder()
	d := NewDebouncer(60*time.Millisecond, rec.flush, nil, nil)

	d.Enqueue("chat", textMessage("a1", "chat", "first"))
	rec.wait(t, time.Second)

	d.Enqueue("chat", textMessage("b1", "chat", "second"))
	d.Enqueue("chat", textMessage("b2", "chat", "third"))
	rec.wait(t, time.Second)

	if got := rec.count(); got != 2 {
		t.Fatalf("expected 2 flush epochs, got %d", got)
	}

	// No message appears in two epochs.
	seen := make(map[string]int)
	for _, flush := range rec.flushes {
		for _, m := range flush {
			seen[m.ID]++
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("message %s appeared in %d epochs", id, n)
		}
	}
	if len(rec.flushes[0]) != 1 || len(rec.flushes[1]) != 2 {
		t.Errorf("unexpected epoch sizes: %d and %d",
			len(rec.flushes[0]), len(rec.flushes[1]))
	}
}

func TestDebouncerIndependentConversations(t *testing.T) {
	rec := newFlushRecorder()
	d := NewDebouncer(50*time.Millisecond, rec.flush, nil, nil)

	d.Enqueue("alice", textMessage("a", "alice", "hello"))
	d.Enqueue("bob", textMessage("b", "bob", "oi"))

	rec.wait(t, time.Second)
	rec.wait(t, time.Second)

	if got := rec.count(); got != 2 {
		t.Fatalf("expected one flush per conversation, got %d", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	ids := map[string]bool{rec.ids[0]: true, rec.ids[1]: true}
	if !ids["alice"] || !ids["bob"] {
		t.Errorf("expected flushes for alice and bob, got %v", rec.ids)
	}
}

func TestDebouncerRemoveMessage(t *testing.T) {
	t.Run("removing the only message cancels the buffer", func(t *testing.T) {
		rec := newFlushRecorder()
		changes := 0
		d := NewDebouncer(60*time.Millisecond, rec.flush, func() { changes++ }, nil)

		d.Enqueue("chat", textMessage("m1", "chat", "oops"))
		d.RemoveMessage("chat", "m1")

		if items := d.Snapshot(); len(items) != 0 {
			t.Errorf("expected empty live set, got %d buffers", len(items))
		}
		time.Sleep(120 * time.Millisecond)
		if got := rec.count(); got != 0 {
			t.Errorf("expected no flush after revocation, got %d", got)
		}
		if changes < 2 {
			t.Errorf("expected buffer-changed notifications, got %d", changes)
		}
	})

	t.Run("removing one of several keeps the rest", func(t *testing.T) {
		rec := newFlushRecorder()
		d := NewDebouncer(60*time.Millisecond, rec.flush, nil, nil)

		d.Enqueue("chat", textMessage("m1", "chat", "keep"))
		d.Enqueue("chat", textMessage("m2", "chat", "revoke"))
		d.RemoveMessage("chat", "m2")

		rec.wait(t, time.Second)
		if len(rec.flushes[0]) != 1 || rec.flushes[0][0].ID != "m1" {
			t.Errorf("expected only m1 to flush, got %v", rec.flushes[0])
		}
	})

	t.Run("removing from an unknown buffer is a no-op", func(t *testing.T) {
		d := NewDebouncer(60*time.Millisecond, func(string, []*Message) {}, nil, nil)
		d.RemoveMessage("nobody", "m1")
	})
}

func TestDebouncerSnapshot(t *testing.T) {
	d := NewDebouncer(time.Minute, func(string, []*Message) {}, nil, nil)

	before := time.Now()
	msg := textMessage("m1", "5511999999999@s.whatsapp.net", "hello there")
	msg.PushName = "Maria"
	d.Enqueue("5511999999999@s.whatsapp.net", msg)

	items := d.Snapshot()
	if len(items) != 1 {
		t.Fatalf("expected 1 buffer, got %d", len(items))
	}
	item := items[0]
	if item.DisplayName != "Maria" {
		t.Errorf("expected display name Maria, got %q", item.DisplayName)
	}
	if item.MessageCount != 1 {
		t.Errorf("expected 1 message, got %d", item.MessageCount)
	}
	if item.StartedAt.Before(before.Add(-time.Second)) {
		t.Errorf("startedAt too old: %v", item.StartedAt)
	}
	if !item.ExpiresAt.After(item.StartedAt) {
		t.Errorf("expiresAt %v not after startedAt %v", item.ExpiresAt, item.StartedAt)
	}
	if item.LastPreview != "hello there" {
		t.Errorf("unexpected preview %q", item.LastPreview)
	}
}

func TestPreviewRuneBoundary(t *testing.T) {
	long := strings.Repeat("promoção é ótima ", 10)
	got := preview(long, 80)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncated preview, got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("preview cut mid-rune: %q", got)
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "...")); n != 80 {
		t.Errorf("expected 80 runes before ellipsis, got %d", n)
	}

	short := "olá"
	if got := preview(short, 80); got != short {
		t.Errorf("short text should pass through, got %q", got)
	}
}

func TestDebouncerSlidingWindow(t *testing.T) {
	rec := newFlushRecorder()
	d := NewDebouncer(90*time.Millisecond, rec.flush, nil, nil)

	// A steady stream with gaps below the window defers flushing until the
	// sender pauses.
	for i := 0; i < 4; i++ {
		d.Enqueue("chat", textMessage(string(rune('a'+i)), "chat", "msg"))
		time.Sleep(40 * time.Millisecond)
	}
	if got := rec.count(); got != 0 {
		t.Fatalf("flush fired while stream was active (%d)", got)
	}

	rec.wait(t, time.Second)
	if len(rec.flushes[0]) != 4 {
		t.Errorf("expected 4 messages in the single flush, got %d", len(rec.flushes[0]))
	}
}

func TestDebouncerStopFlushesPending(t *testing.T) {
	rec := newFlushRecorder()
	d := NewDebouncer(time.Minute, rec.flush, nil, nil)

	d.Enqueue("chat", textMessage("m1", "chat", "pending"))
	d.Stop()

	if got := rec.count(); got != 1 {
		t.Fatalf("expected pending buffer flushed on stop, got %d", got)
	}
	if items := d.Snapshot(); len(items) != 0 {
		t.Errorf("expected empty live set after stop")
	}
}

func TestDebouncerFlushPanicContained(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, func(string, []*Message) {
		panic("callback exploded")
	}, nil, nil)

	d.Enqueue("chat", textMessage("m1", "chat", "boom"))
	time.Sleep(100 * time.Millisecond)

	// The debouncer survives and keeps accepting work.
	d.Enqueue("chat", textMessage("m2", "chat", "still alive"))
	if items := d.Snapshot(); len(items) != 1 {
		t.Errorf("expected a fresh live buffer, got %d", len(items))
	}
}
