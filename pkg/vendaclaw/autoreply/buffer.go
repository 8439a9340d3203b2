// Package autoreply – buffer.go implements the per-conversation debounce
// buffer. Rapid consecutive messages from the same conversation are absorbed
// into one buffer; a sliding-window timer flushes it after the sender pauses.
package autoreply

import (
	"log/slog"
	"sync"
	"time"
)

// FlushFunc receives one flushed buffer: the conversation id and the ordered
// message snapshot. It runs on its own goroutine, one per flush, and must
// handle its own failures (the debouncer only guards against panics).
type FlushFunc func(conversationID string, msgs []*Message)

// Debouncer owns one timer-backed buffer per conversation. A steady stream
// of messages closer together than the window defers flushing until the
// sender pauses.
type Debouncer struct {
	window  time.Duration
	flushFn FlushFunc

	mu      sync.Mutex
	buffers map[string]*conversationBuffer

	// onChange is invoked (outside the lock) whenever the live buffer set
	// changes, so observers can re-render the queue.
	onChange func()

	logger *slog.Logger
}

// conversationBuffer holds buffered messages and the live timer for one
// conversation. The generation counter invalidates timers that were already
// scheduled when a newer message reset the window.
type conversationBuffer struct {
	msgs      []*Message
	startedAt time.Time
	expiresAt time.Time
	timer     *time.Timer
	gen       uint64
}

// NewDebouncer creates a debouncer with the given quiet window and flush
// callback. onChange may be nil.
func NewDebouncer(window time.Duration, flushFn FlushFunc, onChange func(), logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		window:   window,
		flushFn:  flushFn,
		buffers:  make(map[string]*conversationBuffer),
		onChange: onChange,
		logger:   logger.With("component", "debouncer"),
	}
}

// Enqueue adds a message to the conversation's buffer, creating the buffer on
// first message, and re-arms the window timer. Inserting always cancels and
// replaces the prior timer, so at most one live timer exists per buffer.
func (d *Debouncer) Enqueue(conversationID string, msg *Message) {
	now := time.Now()

	d.mu.Lock()
	buf, ok := d.buffers[conversationID]
	if !ok {
		buf = &conversationBuffer{startedAt: now}
		d.buffers[conversationID] = buf
	}
	buf.msgs = append(buf.msgs, msg)
	buf.expiresAt = now.Add(d.window)

	buf.gen++
	gen := buf.gen
	if buf.timer != nil {
		// Stop may report false if the timer already fired; the generation
		// check in fire discards that stale callback.
		buf.timer.Stop()
	}
	buf.timer = time.AfterFunc(d.window, func() {
		d.fire(conversationID, gen)
	})
	count := len(buf.msgs)
	d.mu.Unlock()

	d.logger.Debug("debounce: message buffered",
		"conversation", conversationID,
		"buffered", count,
		"window", d.window)

	d.notifyChange()
}

// fire is the timer callback. It removes the buffer from the live set before
// processing begins, so a racing Enqueue either lands in a fresh buffer or
// resets the window and invalidates this callback.
func (d *Debouncer) fire(conversationID string, gen uint64) {
	d.mu.Lock()
	buf, ok := d.buffers[conversationID]
	if !ok || buf.gen != gen {
		// Stale timer: the buffer flushed or the window was re-armed.
		d.mu.Unlock()
		return
	}
	msgs := buf.msgs
	delete(d.buffers, conversationID)
	d.mu.Unlock()

	d.notifyChange()

	if len(msgs) == 0 {
		return
	}

	d.logger.Info("debounce: flushing buffer",
		"conversation", conversationID,
		"messages", len(msgs))

	go d.invokeFlush(conversationID, msgs)
}

// invokeFlush calls the flush callback, containing panics so a misbehaving
// callback can never crash the debouncer.
func (d *Debouncer) invokeFlush(conversationID string, msgs []*Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("debounce: flush callback panic",
				"conversation", conversationID, "error", r)
		}
	}()
	d.flushFn(conversationID, msgs)
}

// RemoveMessage drops a specific buffered message, used when the sender
// revokes it before the buffer flushes. Draining the buffer to empty cancels
// its timer and deletes it, so no flush ever fires for it.
func (d *Debouncer) RemoveMessage(conversationID, messageID string) {
	d.mu.Lock()
	buf, ok := d.buffers[conversationID]
	if !ok {
		d.mu.Unlock()
		return
	}

	kept := buf.msgs[:0]
	removed := false
	for _, m := range buf.msgs {
		if m.ID == messageID {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	buf.msgs = kept

	emptied := false
	if removed && len(buf.msgs) == 0 {
		buf.gen++ // invalidate any in-flight timer callback
		if buf.timer != nil {
			buf.timer.Stop()
		}
		delete(d.buffers, conversationID)
		emptied = true
	}
	d.mu.Unlock()

	if removed {
		d.logger.Info("debounce: buffered message revoked",
			"conversation", conversationID,
			"message", messageID,
			"buffer_deleted", emptied)
	}

	// Observers reflect the reduced/removed state immediately.
	d.notifyChange()
}

// Snapshot returns a point-in-time projection of every live buffer.
func (d *Debouncer) Snapshot() []BufferItem {
	d.mu.Lock()
	defer d.mu.Unlock()

	items := make([]BufferItem, 0, len(d.buffers))
	for id, buf := range d.buffers {
		if len(buf.msgs) == 0 {
			continue
		}
		last := buf.msgs[len(buf.msgs)-1]
		name := last.PushName
		if name == "" {
			name = BareNumber(id)
		}
		items = append(items, BufferItem{
			ConversationID: id,
			DisplayName:    name,
			MessageCount:   len(buf.msgs),
			StartedAt:      buf.startedAt,
			ExpiresAt:      buf.expiresAt,
			LastPreview:    preview(last.Body, 80),
		})
	}
	return items
}

// Stop flushes all pending buffers immediately (graceful shutdown).
func (d *Debouncer) Stop() {
	d.mu.Lock()
	flushes := make(map[string][]*Message, len(d.buffers))
	for id, buf := range d.buffers {
		buf.gen++
		if buf.timer != nil {
			buf.timer.Stop()
		}
		if len(buf.msgs) > 0 {
			flushes[id] = buf.msgs
		}
		delete(d.buffers, id)
	}
	d.mu.Unlock()

	for id, msgs := range flushes {
		d.invokeFlush(id, msgs)
	}
	d.notifyChange()
}

func (d *Debouncer) notifyChange() {
	if d.onChange != nil {
		d.onChange()
	}
}

// preview truncates s for display in queue projections. Counts runes so
// accented text is never cut mid-character.
func preview(s string, maxLen int) string {
	rs := []rune(s)
	if len(rs) <= maxLen {
		return s
	}
	return string(rs[:maxLen]) + "..."
}
