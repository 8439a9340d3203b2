package whatsapp

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestNew(t *testing.T) {
	t.Run("creates instance with defaults", func(t *testing.T) {
		c := New(DefaultConfig(), testLogger())
		if c == nil {
			t.Fatal("expected non-nil client")
		}
		if c.IsConnected() {
			t.Error("expected not connected initially")
		}
	})

	t.Run("uses default logger if nil", func(t *testing.T) {
		c := New(DefaultConfig(), nil)
		if c.logger == nil {
			t.Error("expected logger to be set")
		}
	})

	t.Run("applies reconnect backoff default", func(t *testing.T) {
		c := New(Config{DatabasePath: "./data/vendaclaw.db"}, testLogger())
		if c.cfg.ReconnectBackoff != 5*time.Second {
			t.Errorf("expected default backoff 5s, got %v", c.cfg.ReconnectBackoff)
		}
	})
}

func TestParseJID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare phone number", "5511999999999", "5511999999999@s.whatsapp.net", false},
		{"formatted phone number", "+55 (11) 99999-9999", "5511999999999@s.whatsapp.net", false},
		{"full JID", "5511999999999@s.whatsapp.net", "5511999999999@s.whatsapp.net", false},
		{"group JID", "123456789012345678@g.us", "123456789012345678@g.us", false},
		{"empty", "", "", true},
		{"too short", "123", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jid, err := parseJID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseJID(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseJID(%q): %v", tt.input, err)
			}
			if jid.String() != tt.want {
				t.Errorf("parseJID(%q) = %q, want %q", tt.input, jid.String(), tt.want)
			}
		})
	}
}

func TestExtractContent(t *testing.T) {
	base := func() autoreply.Message { return autoreply.Message{ID: "m1"} }

	t.Run("conversation text", func(t *testing.T) {
		msg := base()
		extractContent(&waE2E.Message{Conversation: proto.String("hello")}, &msg)
		if msg.Kind != autoreply.KindText || msg.Body != "hello" {
			t.Errorf("got kind=%s body=%q", msg.Kind, msg.Body)
		}
	})

	t.Run("extended text", func(t *testing.T) {
		msg := base()
		extractContent(&waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked text")},
		}, &msg)
		if msg.Kind != autoreply.KindText || msg.Body != "linked text" {
			t.Errorf("got kind=%s body=%q", msg.Kind, msg.Body)
		}
	})

	t.Run("image with caption", func(t *testing.T) {
		msg := base()
		extractContent(&waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{Caption: proto.String("look at this")},
		}, &msg)
		if msg.Kind != autoreply.KindImage || msg.Body != "look at this" || msg.MediaNote != "[image]" {
			t.Errorf("got kind=%s body=%q note=%q", msg.Kind, msg.Body, msg.MediaNote)
		}
	})

	t.Run("voice note", func(t *testing.T) {
		msg := base()
		extractContent(&waE2E.Message{
			AudioMessage: &waE2E.AudioMessage{PTT: proto.Bool(true)},
		}, &msg)
		if msg.Kind != autoreply.KindAudio || msg.MediaNote != "[voice note]" {
			t.Errorf("got kind=%s note=%q", msg.Kind, msg.MediaNote)
		}
	})

	t.Run("document", func(t *testing.T) {
		msg := base()
		extractContent(&waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{FileName: proto.String("invoice.pdf")},
		}, &msg)
		if msg.Kind != autoreply.KindDocument || msg.MediaNote != "[document: invoice.pdf]" {
			t.Errorf("got kind=%s note=%q", msg.Kind, msg.MediaNote)
		}
	})

	t.Run("reaction is not processable", func(t *testing.T) {
		msg := base()
		extractContent(&waE2E.Message{
			ReactionMessage: &waE2E.ReactionMessage{Text: proto.String("👍")},
		}, &msg)
		if msg.Kind != autoreply.KindReaction {
			t.Errorf("got kind=%s", msg.Kind)
		}
		if msg.Kind.Processable() {
			t.Error("reaction should not be processable")
		}
	})

	t.Run("nil message falls back to system", func(t *testing.T) {
		msg := base()
		extractContent(nil, &msg)
		if msg.Kind != autoreply.KindSystem {
			t.Errorf("got kind=%s", msg.Kind)
		}
	})
}

func TestQRSubscription(t *testing.T) {
	c := New(DefaultConfig(), testLogger())

	t.Run("subscribe receives events", func(t *testing.T) {
		ch, unsubscribe := c.SubscribeQR()
		defer unsubscribe()

		c.notifyQR(QREvent{Type: "code", Code: "test-qr-code"})

		select {
		case evt := <-ch:
			if evt.Type != "code" || evt.Code != "test-qr-code" {
				t.Errorf("got %+v", evt)
			}
		case <-time.After(1 * time.Second):
			t.Error("timeout waiting for QR event")
		}
	})

	t.Run("unsubscribe closes channel", func(t *testing.T) {
		c.lastQR = nil
		ch, unsubscribe := c.SubscribeQR()
		unsubscribe()

		c.notifyQR(QREvent{Type: "code", Code: "should-not-receive"})

		select {
		case _, ok := <-ch:
			if ok {
				t.Error("expected channel to be closed after unsubscribe")
			}
		default:
		}
	})

	t.Run("multiple observers receive same event", func(t *testing.T) {
		c.lastQR = nil
		ch1, unsub1 := c.SubscribeQR()
		ch2, unsub2 := c.SubscribeQR()
		defer unsub1()
		defer unsub2()

		c.notifyQR(QREvent{Type: "success", Message: "Connected!"})

		var wg sync.WaitGroup
		for _, ch := range []chan QREvent{ch1, ch2} {
			wg.Add(1)
			go func(ch chan QREvent) {
				defer wg.Done()
				select {
				case evt := <-ch:
					if evt.Type != "success" {
						t.Errorf("expected 'success', got %s", evt.Type)
					}
				case <-time.After(1 * time.Second):
					t.Error("timeout")
				}
			}(ch)
		}
		wg.Wait()
	})

	t.Run("late observer receives cached QR", func(t *testing.T) {
		c.notifyQR(QREvent{Type: "code", Code: "cached-qr"})

		ch, unsubscribe := c.SubscribeQR()
		defer unsubscribe()

		select {
		case evt := <-ch:
			if evt.Code != "cached-qr" {
				t.Errorf("expected cached QR, got %s", evt.Code)
			}
		case <-time.After(1 * time.Second):
			t.Error("expected to receive cached QR")
		}
	})

	t.Run("success clears QR cache", func(t *testing.T) {
		c.notifyQR(QREvent{Type: "code", Code: "to-be-cleared"})
		c.notifyQR(QREvent{Type: "success"})
		if c.lastQR != nil {
			t.Error("expected lastQR to be cleared on success")
		}
	})
}

func TestTransportWhenDisconnected(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	ctx := context.Background()
	conv := conversation{jid: types.NewJID("5511999999999", types.DefaultUserServer)}

	if _, err := c.Conversation(ctx, "5511999999999"); !errors.Is(err, autoreply.ErrTransportDisconnected) {
		t.Errorf("Conversation err = %v, want ErrTransportDisconnected", err)
	}
	if err := c.Send(ctx, conv, "hi"); !errors.Is(err, autoreply.ErrTransportDisconnected) {
		t.Errorf("Send err = %v, want ErrTransportDisconnected", err)
	}
	if err := c.Reply(ctx, conv, "m1", "hi"); !errors.Is(err, autoreply.ErrTransportDisconnected) {
		t.Errorf("Reply err = %v, want ErrTransportDisconnected", err)
	}
	if err := c.SetTyping(ctx, conv); !errors.Is(err, autoreply.ErrTransportDisconnected) {
		t.Errorf("SetTyping err = %v, want ErrTransportDisconnected", err)
	}
}

func TestRequestNewQR(t *testing.T) {
	c := New(DefaultConfig(), testLogger())

	t.Run("fails when already connected", func(t *testing.T) {
		c.connected.Store(true)
		if err := c.RequestNewQR(context.Background()); err == nil {
			t.Error("expected error when already connected")
		}
		c.connected.Store(false)
	})

	t.Run("fails when client not initialized", func(t *testing.T) {
		if err := c.RequestNewQR(context.Background()); err == nil {
			t.Error("expected error when client not initialized")
		}
	})
}

func TestEmitMessageAfterClose(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.connected.Store(true)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	// Must not panic on a closed channel.
	c.emitMessage(autoreply.Message{ID: "late"})
}
