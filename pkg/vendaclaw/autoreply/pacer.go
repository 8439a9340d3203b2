// Package autoreply – pacer.go implements the safe-send pacer: long replies
// are split into bounded bubbles on sentence boundaries and transmitted
// sequentially with randomized, human-like pacing.
package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
	"unicode"
)

// typingPerChar is the simulated composition time per character of the
// outgoing bubble; typingCap bounds the total composition delay.
const (
	typingPerChar = 30 * time.Millisecond
	typingCap     = 5 * time.Second
)

// sentence is one sentence plus the whitespace run that followed it in the
// original text. The separator is preserved inside a bubble and dropped only
// where a bubble boundary replaces it.
type sentence struct {
	text string
	sep  string
}

// SplitBubbles splits text into at most maxBubbles chunks of up to maxLen
// characters, breaking on sentence boundaries. Sentences are accumulated
// greedily, keeping the original whitespace between them (newlines included),
// so concatenating the bubbles with the whitespace dropped at each boundary
// reproduces the input. Once the final bubble is reached it absorbs all
// remaining sentences regardless of length; text is never dropped.
func SplitBubbles(text string, maxLen, maxBubbles int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}
	if maxBubbles <= 0 {
		maxBubbles = 3
	}

	sentences := splitSentences(text)
	var bubbles []string
	var cur strings.Builder
	var sep string // pending separator between cur and the next sentence

	for _, s := range sentences {
		if cur.Len() == 0 {
			cur.WriteString(s.text)
			sep = s.sep
			continue
		}
		// Final bubble: absorb everything that remains.
		if len(bubbles) == maxBubbles-1 {
			cur.WriteString(sep)
			cur.WriteString(s.text)
			sep = s.sep
			continue
		}
		if cur.Len()+len(sep)+len(s.text) > maxLen {
			bubbles = append(bubbles, cur.String())
			cur.Reset()
			cur.WriteString(s.text)
		} else {
			cur.WriteString(sep)
			cur.WriteString(s.text)
		}
		sep = s.sep
	}
	if cur.Len() > 0 {
		// Whitespace trailing the last sentence belongs to the text, not to
		// any boundary.
		cur.WriteString(sep)
		bubbles = append(bubbles, cur.String())
	}
	return bubbles
}

// splitSentences splits text after terminal punctuation followed by
// whitespace, keeping the whitespace run as each sentence's separator.
// Embedded decimals ("R$ 3.99") never split because the dot is not followed
// by whitespace; a digit guard additionally protects spaced decimals.
func splitSentences(text string) []sentence {
	rs := []rune(text)
	var parts []sentence
	start := 0

	for i := 0; i < len(rs); i++ {
		if !isTerminator(rs[i]) {
			continue
		}
		// Absorb runs of terminators ("?!", "...").
		j := i
		for j+1 < len(rs) && isTerminator(rs[j+1]) {
			j++
		}
		if j+1 >= len(rs) || !unicode.IsSpace(rs[j+1]) {
			i = j
			continue
		}
		k := j + 1
		for k < len(rs) && unicode.IsSpace(rs[k]) {
			k++
		}
		// Digit guard: "3. 99" stays together.
		if rs[j] == '.' && i > 0 && unicode.IsDigit(rs[i-1]) && k < len(rs) && unicode.IsDigit(rs[k]) {
			i = j
			continue
		}
		parts = append(parts, sentence{
			text: string(rs[start : j+1]),
			sep:  string(rs[j+1 : k]),
		})
		start = k
		i = k - 1
	}
	if start < len(rs) {
		parts = append(parts, sentence{text: string(rs[start:])})
	}
	return parts
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

// Pacer transmits reply bubbles sequentially with human-like pacing.
type Pacer struct {
	transport Transport
	logger    *slog.Logger
}

// NewPacer creates a pacer over the given transport.
func NewPacer(transport Transport, logger *slog.Logger) *Pacer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pacer{
		transport: transport,
		logger:    logger.With("component", "pacer"),
	}
}

// SendPaced sends the bubbles strictly in order. The first bubble is sent as
// a reply quoting originalMessageID (anchoring the thread); the rest are
// plain sends. With safe mode on, each bubble is preceded by a uniformly
// random delay in [minDelay, maxDelay], a typing presence signal, and a
// composition delay proportional to the bubble length.
//
// A mid-sequence failure is reported as a single error; already-sent bubbles
// are not retried or rolled back (the transport has no rollback primitive).
func (p *Pacer) SendPaced(ctx context.Context, conv Conversation, originalMessageID string, bubbles []string, safeMode bool, minDelay, maxDelay time.Duration) error {
	for i, bubble := range bubbles {
		if safeMode {
			if err := p.humanDelay(ctx, conv, bubble, minDelay, maxDelay); err != nil {
				return err
			}
		}

		var err error
		if i == 0 && originalMessageID != "" {
			err = p.transport.Reply(ctx, conv, originalMessageID, bubble)
		} else {
			err = p.transport.Send(ctx, conv, bubble)
		}
		if err != nil {
			return fmt.Errorf("sending bubble %d/%d: %w", i+1, len(bubbles), err)
		}

		p.logger.Debug("pacer: bubble sent",
			"conversation", conv.ID(),
			"bubble", i+1,
			"of", len(bubbles),
			"chars", len(bubble))
	}
	return nil
}

// humanDelay sleeps the randomized pre-send delay, signals typing, then
// sleeps the simulated composition time for the bubble.
func (p *Pacer) humanDelay(ctx context.Context, conv Conversation, bubble string, minDelay, maxDelay time.Duration) error {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	wait := minDelay
	if span := maxDelay - minDelay; span > 0 {
		wait += time.Duration(rand.Int63n(int64(span)))
	}
	if err := sleepCtx(ctx, wait); err != nil {
		return err
	}

	if err := p.transport.SetTyping(ctx, conv); err != nil {
		// Presence is cosmetic; a failure must not block the send.
		p.logger.Debug("pacer: typing signal failed", "error", err)
	}

	compose := min(time.Duration(len(bubble))*typingPerChar, typingCap)
	return sleepCtx(ctx, compose)
}

// sleepCtx sleeps for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
