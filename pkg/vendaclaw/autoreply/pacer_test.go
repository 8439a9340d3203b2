package autoreply

import (
	"context"
	"strings"
	"testing"
)

func TestSplitBubbles(t *testing.T) {
	t.Run("short text stays whole", func(t *testing.T) {
		got := SplitBubbles("Hello there.", 500, 3)
		if len(got) != 1 || got[0] != "Hello there." {
			t.Errorf("expected single bubble, got %v", got)
		}
	})

	t.Run("splits on sentence boundaries", func(t *testing.T) {
		text := strings.Repeat("One short sentence here. ", 10)
		text = strings.TrimSpace(text)
		got := SplitBubbles(text, 100, 3)
		if len(got) < 2 {
			t.Fatalf("expected multiple bubbles, got %d", len(got))
		}
		for i, b := range got[:len(got)-1] {
			if len(b) > 100 {
				t.Errorf("bubble %d exceeds limit: %d chars", i, len(b))
			}
			if !strings.HasSuffix(b, ".") {
				t.Errorf("bubble %d does not end on a sentence boundary: %q", i, b)
			}
		}
	})

	t.Run("never exceeds three bubbles", func(t *testing.T) {
		text := strings.TrimSpace(strings.Repeat("Sentence number n goes right here. ", 60))
		got := SplitBubbles(text, 100, 3)
		if len(got) != 3 {
			t.Fatalf("expected exactly 3 bubbles, got %d", len(got))
		}
		// Overflow is absorbed by the final bubble, never dropped.
		if len(got[2]) <= 100 {
			t.Errorf("expected final bubble to absorb overflow, got %d chars", len(got[2]))
		}
	})

	t.Run("rejoining reproduces the original", func(t *testing.T) {
		text := strings.TrimSpace(strings.Repeat("Some words make a sentence. ", 40))
		got := SplitBubbles(text, 120, 3)
		if rejoined := strings.Join(got, " "); rejoined != text {
			t.Errorf("rejoined text differs from original\nwant: %q\ngot:  %q", text, rejoined)
		}
	})

	t.Run("newline separators survive inside bubbles", func(t *testing.T) {
		// List-shaped reply: one sentence per line.
		line := "Temos essa camisa em azul, branco e verde agora."
		text := strings.TrimSuffix(strings.Repeat(line+"\n", 14), "\n")
		got := SplitBubbles(text, 500, 3)
		if len(got) < 2 {
			t.Fatalf("expected multiple bubbles, got %d", len(got))
		}
		for i, b := range got {
			if i < len(got)-1 && strings.Contains(b, line+" ") {
				t.Errorf("bubble %d flattened a newline to a space: %q", i, b)
			}
		}
		if rejoined := strings.Join(got, "\n"); rejoined != text {
			t.Errorf("rejoined text differs from original\nwant: %q\ngot:  %q", text, rejoined)
		}
	})

	t.Run("decimals do not split", func(t *testing.T) {
		filler := strings.TrimSpace(strings.Repeat("More filler text in this sentence. ", 8))
		text := "The shirt costs R$ 49.90 in blue. " + filler
		got := SplitBubbles(text, 60, 3)
		for _, b := range got {
			if strings.HasSuffix(b, "49.") {
				t.Errorf("bubble split inside a decimal: %q", b)
			}
		}
		if rejoined := strings.Join(got, " "); rejoined != text {
			t.Errorf("rejoined text differs from original")
		}
	})

	t.Run("three clean boundaries give three bounded bubbles", func(t *testing.T) {
		// ~1200 chars with sentence boundaries near 480 and 960.
		s1 := strings.TrimSpace(strings.Repeat("Forty eight chars of sentence padding here ok. ", 10)) // ~480
		text := s1 + " " + s1 + " " + s1
		got := SplitBubbles(text, 500, 3)
		if len(got) != 3 {
			t.Fatalf("expected 3 bubbles, got %d", len(got))
		}
		for i, b := range got[:2] {
			if len(b) > 500 {
				t.Errorf("bubble %d exceeds 500 chars: %d", i, len(b))
			}
		}
	})
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []sentence
	}{
		{"Hello. World.", []sentence{{"Hello.", " "}, {"World.", ""}}},
		{"Really?! Yes.", []sentence{{"Really?!", " "}, {"Yes.", ""}}},
		{"Price is 3.99 each. Deal.", []sentence{{"Price is 3.99 each.", " "}, {"Deal.", ""}}},
		{"No terminator at all", []sentence{{"No terminator at all", ""}}},
		{"Trailing dot.", []sentence{{"Trailing dot.", ""}}},
		{"First line.\nSecond line.", []sentence{{"First line.", "\n"}, {"Second line.", ""}}},
		{"Spaced out.  Next.", []sentence{{"Spaced out.", "  "}, {"Next.", ""}}},
	}
	for _, tt := range tests {
		got := splitSentences(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitSentences(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitSentences(%q)[%d] = %+v, want %+v", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestSendPaced(t *testing.T) {
	t.Run("first bubble replies, rest are plain sends", func(t *testing.T) {
		tr := &fakeTransport{}
		p := NewPacer(tr, nil)
		conv, _ := tr.Conversation(context.Background(), "chat")

		err := p.SendPaced(context.Background(), conv, "orig-123",
			[]string{"one", "two", "three"}, false, 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		sent := tr.sentMessages()
		if len(sent) != 3 {
			t.Fatalf("expected 3 sends, got %d", len(sent))
		}
		if sent[0].ReplyTo != "orig-123" {
			t.Errorf("first bubble should quote the original, got %q", sent[0].ReplyTo)
		}
		for i, s := range sent[1:] {
			if s.ReplyTo != "" {
				t.Errorf("bubble %d should be a plain send", i+2)
			}
		}
		// Strict transmission order.
		if sent[0].Text != "one" || sent[1].Text != "two" || sent[2].Text != "three" {
			t.Errorf("bubbles sent out of order: %v", sent)
		}
	})

	t.Run("mid-sequence failure reported once, no rollback", func(t *testing.T) {
		tr := &fakeTransport{failAtSend: 2}
		p := NewPacer(tr, nil)
		conv, _ := tr.Conversation(context.Background(), "chat")

		err := p.SendPaced(context.Background(), conv, "orig",
			[]string{"one", "two", "three"}, false, 0, 0)
		if err == nil {
			t.Fatal("expected error from failing bubble")
		}
		if !strings.Contains(err.Error(), "bubble 2/3") {
			t.Errorf("error should identify the failing bubble: %v", err)
		}
		// Bubble one stays delivered; bubble three is never attempted.
		if got := tr.sentMessages(); len(got) != 1 {
			t.Errorf("expected exactly the first bubble delivered, got %d", len(got))
		}
	})

	t.Run("safe mode signals typing per bubble", func(t *testing.T) {
		tr := &fakeTransport{}
		p := NewPacer(tr, nil)
		conv, _ := tr.Conversation(context.Background(), "chat")

		err := p.SendPaced(context.Background(), conv, "",
			[]string{"a", "b"}, true, 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tr.typing != 2 {
			t.Errorf("expected 2 typing signals, got %d", tr.typing)
		}
	})

	t.Run("cancelled context stops the sequence", func(t *testing.T) {
		tr := &fakeTransport{}
		p := NewPacer(tr, nil)
		conv, _ := tr.Conversation(context.Background(), "chat")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := p.SendPaced(ctx, conv, "", []string{"a", "b"}, true, 1, 2)
		if err == nil {
			t.Fatal("expected context error")
		}
	})
}
