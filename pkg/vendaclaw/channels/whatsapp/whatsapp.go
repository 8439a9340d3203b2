// Package whatsapp implements the WhatsApp transport for VendaClaw using
// whatsmeow, a native Go WhatsApp Web API library. No Node.js, no Baileys.
//
// Features:
//   - QR code login with persistent session
//   - Receive text, media, location and contact messages
//   - Send with reply quoting and typing indicators
//   - Message revocation detection ("delete for everyone")
//   - Contact name resolution from the synced phonebook
//   - Automatic reconnection with backoff
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for session store.
)

// Config holds WhatsApp transport configuration.
type Config struct {
	// DatabasePath is the SQLite database file for session storage. The
	// whatsmeow session tables (prefixed whatsmeow_) live in this file.
	DatabasePath string `yaml:"database_path"`

	// ReconnectBackoff is the initial backoff duration for reconnection.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// MaxReconnectAttempts is the maximum number of reconnection attempts
	// (0 = unlimited).
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath:         "./data/whatsapp.db",
		ReconnectBackoff:     5 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// QREvent represents a QR code event sent to observers.
type QREvent struct {
	// Type is "code", "success", "timeout", "error", or "refresh".
	Type string `json:"type"`
	// Code is the raw QR code string (only for Type == "code").
	Code string `json:"code,omitempty"`
	// Message is a human-readable description.
	Message string `json:"message,omitempty"`
}

// Client implements autoreply.Transport over a WhatsApp Web session.
type Client struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	// messages is the channel for incoming converted messages.
	messages chan autoreply.Message

	connected atomic.Bool

	// reconnectAttempts tracks reconnection tries.
	reconnectAttempts atomic.Int32

	// reconnectGuard prevents multiple concurrent reconnection attempts.
	reconnectGuard atomic.Bool

	// messagesClosed prevents sending to the closed messages channel.
	messagesClosed atomic.Bool

	// qrObservers receives QR events (for the web UI).
	qrObservers   []chan QREvent
	qrObserversMu sync.Mutex
	// lastQR caches the most recent QR code so late-joining observers get it.
	lastQR *QREvent

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new WhatsApp transport.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	return &Client{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		messages: make(chan autoreply.Message, 256),
	}
}

// Connect establishes the WhatsApp Web connection via whatsmeow. If no
// existing session is found, the QR login process runs in the background
// (non-blocking) and the code is streamed to observers for scanning.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.logger.Info("initializing connection", "db", c.cfg.DatabasePath)

	container, err := sqlstore.New(c.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", c.cfg.DatabasePath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := c.getDevice(c.ctx, container)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	// Device name shown in the WhatsApp linked devices list.
	store.SetOSInfo("VendaClaw", [3]uint32{1, 0, 0})

	c.client = whatsmeow.NewClient(device, waLog.Noop)
	c.client.AddEventHandler(c.handleEvent)
	c.client.EnableAutoReconnect = true
	c.client.InitialAutoReconnect = true

	if c.client.Store.ID == nil {
		// First login. QR flow runs in the background so the server can
		// start immediately.
		c.logger.Info("no existing session, QR code required")
		go func() {
			if err := c.loginWithQR(c.ctx); err != nil {
				c.logger.Warn("QR login pending", "error", err)
			}
		}()
		return nil
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	c.connected.Store(true)
	c.logger.Info("connected (existing session)", "jid", c.clientJID())
	return nil
}

// Disconnect gracefully closes the WhatsApp connection.
func (c *Client) Disconnect() error {
	c.connected.Store(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.client != nil {
		c.client.Disconnect()
	}
	if c.messagesClosed.CompareAndSwap(false, true) {
		close(c.messages)
	}
	c.logger.Info("disconnected")
	return nil
}

// Logout logs out and clears the session.
func (c *Client) Logout() error {
	if c.client == nil {
		return nil
	}
	c.connected.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.client.Logout(ctx); err != nil {
		c.logger.Warn("logout error, forcing cleanup", "error", err)
		c.client.Disconnect()
		if c.client.Store != nil {
			if delErr := c.client.Store.Delete(ctx); delErr != nil {
				c.logger.Warn("failed to delete store", "error", delErr)
			}
		}
	}

	c.qrObserversMu.Lock()
	c.lastQR = nil
	c.qrObserversMu.Unlock()

	c.logger.Info("logged out, session cleared")
	return nil
}

// Receive returns the incoming messages channel.
func (c *Client) Receive() <-chan autoreply.Message {
	return c.messages
}

// IsConnected reports whether the session is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// NeedsQR reports whether the session is not linked yet.
func (c *Client) NeedsQR() bool {
	return c.client != nil && c.client.Store.ID == nil && !c.connected.Load()
}

// ---------- autoreply.Transport ----------

// conversation is the resolved handle for one chat.
type conversation struct {
	jid     types.JID
	contact waContact
}

func (c conversation) ID() string                    { return c.jid.String() }
func (c conversation) Contact() autoreply.ContactInfo { return c.contact }

// waContact adapts the synced phonebook entry to autoreply.ContactInfo.
type waContact struct {
	name   string
	number string
	saved  bool
}

func (c waContact) DisplayName() string { return c.name }
func (c waContact) Number() string      { return c.number }
func (c waContact) Saved() bool         { return c.saved }

// Conversation resolves a conversation handle, looking up the contact in
// the synced phonebook. Name fallback order: phonebook name, then push
// name, then the bare number.
func (c *Client) Conversation(ctx context.Context, id string) (autoreply.Conversation, error) {
	if !c.connected.Load() {
		return nil, autoreply.ErrTransportDisconnected
	}

	jid, err := parseJID(id)
	if err != nil {
		return nil, fmt.Errorf("invalid JID %q: %w", id, err)
	}

	contact := waContact{number: autoreply.BareNumber(id)}
	if info, err := c.client.Store.Contacts.GetContact(ctx, jid); err == nil && info.Found {
		contact.saved = info.FullName != "" || info.FirstName != ""
		switch {
		case info.FullName != "":
			contact.name = info.FullName
		case info.FirstName != "":
			contact.name = info.FirstName
		case info.PushName != "":
			contact.name = info.PushName
		}
	}
	if contact.name == "" {
		contact.name = contact.number
	}

	return conversation{jid: jid, contact: contact}, nil
}

// Send transmits a plain text message.
func (c *Client) Send(ctx context.Context, conv autoreply.Conversation, text string) error {
	if !c.connected.Load() {
		return autoreply.ErrTransportDisconnected
	}
	jid, err := parseJID(conv.ID())
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", conv.ID(), err)
	}
	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Reply transmits a text message quoting the original message.
func (c *Client) Reply(ctx context.Context, conv autoreply.Conversation, originalMessageID, text string) error {
	if !c.connected.Load() {
		return autoreply.ErrTransportDisconnected
	}
	if originalMessageID == "" {
		return c.Send(ctx, conv, text)
	}
	jid, err := parseJID(conv.ID())
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", conv.ID(), err)
	}
	msg := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String(originalMessageID),
				Participant:   proto.String(jid.String()),
				QuotedMessage: &waE2E.Message{Conversation: proto.String("")},
			},
		},
	}
	if _, err := c.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

// SetTyping emits a "composing" presence signal.
func (c *Client) SetTyping(ctx context.Context, conv autoreply.Conversation) error {
	if !c.connected.Load() {
		return autoreply.ErrTransportDisconnected
	}
	jid, err := parseJID(conv.ID())
	if err != nil {
		return err
	}
	return c.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// ---------- QR Code Subscription ----------

// SubscribeQR registers a channel to receive QR code events. Returns an
// unsubscribe function.
func (c *Client) SubscribeQR() (chan QREvent, func()) {
	ch := make(chan QREvent, 8)
	c.qrObserversMu.Lock()
	c.qrObservers = append(c.qrObservers, ch)
	// Replay the last QR code so the new observer doesn't miss it.
	if c.lastQR != nil {
		select {
		case ch <- *c.lastQR:
		default:
		}
	}
	c.qrObserversMu.Unlock()

	return ch, func() {
		c.qrObserversMu.Lock()
		defer c.qrObserversMu.Unlock()
		for i, obs := range c.qrObservers {
			if obs == ch {
				c.qrObservers = append(c.qrObservers[:i], c.qrObservers[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// notifyQR sends a QR event to all observers.
func (c *Client) notifyQR(evt QREvent) {
	c.qrObserversMu.Lock()
	defer c.qrObserversMu.Unlock()

	if evt.Type == "code" {
		c.lastQR = &evt
	} else {
		// Success/timeout/error invalidates the cached code.
		c.lastQR = nil
	}

	for _, ch := range c.qrObservers {
		select {
		case ch <- evt:
		default:
			// Observer too slow, skip.
		}
	}
}

// ---------- Internal ----------

func (c *Client) clientJID() string {
	if c.client != nil && c.client.Store.ID != nil {
		return c.client.Store.ID.String()
	}
	return ""
}

// getDevice retrieves an existing device or creates a new one.
func (c *Client) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR handles the QR code login flow. Codes are delivered to
// observers (web UI); nothing is printed to the terminal.
func (c *Client) loginWithQR(ctx context.Context) error {
	qrChan, err := c.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	c.logger.Info("waiting for QR code scan")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed unexpectedly")
			}

			switch evt.Event {
			case "code":
				c.logger.Info("QR code ready")
				c.notifyQR(QREvent{
					Type:    "code",
					Code:    evt.Code,
					Message: "Scan the QR code with WhatsApp to link your device",
				})

			case "success":
				c.connected.Store(true)
				c.reconnectAttempts.Store(0)
				c.logger.Info("login successful")
				c.notifyQR(QREvent{
					Type:    "success",
					Message: "WhatsApp linked successfully!",
				})
				return nil

			case "timeout":
				c.logger.Warn("QR code expired")
				c.notifyQR(QREvent{
					Type:    "timeout",
					Message: "QR code expired, request a new one to try again",
				})
				return fmt.Errorf("QR code timeout")

			default:
				if evt.Error != nil {
					c.logger.Error("QR login error", "error", evt.Error)
					c.notifyQR(QREvent{
						Type:    "error",
						Message: fmt.Sprintf("Error: %s", evt.Error.Error()),
					})
					return fmt.Errorf("QR login error: %v", evt.Error)
				}
			}
		}
	}
}

// RequestNewQR disconnects and reconnects to generate a fresh QR code.
func (c *Client) RequestNewQR(ctx context.Context) error {
	if c.connected.Load() {
		return fmt.Errorf("already connected")
	}
	if c.client == nil {
		return fmt.Errorf("client not initialized")
	}

	c.client.Disconnect()
	c.qrObserversMu.Lock()
	c.lastQR = nil
	c.qrObserversMu.Unlock()

	c.notifyQR(QREvent{Type: "refresh", Message: "Generating new QR code..."})

	go func() {
		qrCtx := ctx
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			qrCtx, cancel = context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
		}
		if err := c.loginWithQR(qrCtx); err != nil {
			c.logger.Error("QR re-login failed", "error", err)
		}
	}()

	return nil
}

// attemptReconnect tries to reconnect with linear backoff. A guard
// prevents concurrent reconnection loops.
func (c *Client) attemptReconnect() {
	if !c.reconnectGuard.CompareAndSwap(false, true) {
		return
	}
	defer c.reconnectGuard.Store(false)

	for {
		if c.ctx.Err() != nil {
			return
		}

		attempts := c.reconnectAttempts.Add(1)
		if c.cfg.MaxReconnectAttempts > 0 && attempts > int32(c.cfg.MaxReconnectAttempts) {
			c.logger.Error("max reconnect attempts reached", "attempts", attempts)
			return
		}

		backoff := min(c.cfg.ReconnectBackoff*time.Duration(attempts), 5*time.Minute)
		c.logger.Info("attempting reconnect", "attempt", attempts, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-c.ctx.Done():
			return
		}

		if c.client == nil {
			return
		}

		// Clear any stale websocket state before reconnecting.
		if c.client.IsConnected() {
			c.client.Disconnect()
			time.Sleep(100 * time.Millisecond)
		}

		if err := c.client.Connect(); err != nil {
			c.logger.Warn("reconnect attempt failed, will retry",
				"attempt", attempts, "error", err)
			continue
		}

		// The Connected event confirms and resets state.
		return
	}
}

// emitMessage delivers a converted message to the consumer channel.
func (c *Client) emitMessage(msg autoreply.Message) {
	if c.messagesClosed.Load() {
		return
	}
	select {
	case c.messages <- msg:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("message channel full, dropping message",
			"chat", msg.ChatID, "kind", msg.Kind)
	}
}

// parseJID converts a string JID to types.JID. Accepts "5511999999999",
// "5511999999999@s.whatsapp.net" or group IDs like "123456789@g.us".
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	// Bare phone number, strip any non-digit characters.
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)

	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}

	return types.NewJID(digits, types.DefaultUserServer), nil
}
