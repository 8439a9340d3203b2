// Package autoreply implements the VendaClaw auto-reply pipeline: it buffers
// bursts of inbound WhatsApp messages per conversation, aggregates them into a
// single query, asks the reply generator for an answer and either sends it
// with human-like pacing or parks it as a draft for operator approval.
//
// Pipeline: intake filter → debounce buffer → orchestrator → pacer/drafts.
// Each conversation is an independent unit of concurrency; the only shared
// state is the draft store and the event broadcaster.
package autoreply

import (
	"strings"
	"time"
)

// MessageKind identifies the kind of inbound message content.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindAudio    MessageKind = "audio"
	KindVideo    MessageKind = "video"
	KindDocument MessageKind = "document"
	KindSticker  MessageKind = "sticker"
	KindLocation MessageKind = "location"
	KindContact  MessageKind = "contact"

	// Non-chat kinds. These never enter the pipeline.
	KindReaction   MessageKind = "reaction"
	KindSystem     MessageKind = "system"
	KindProtocol   MessageKind = "protocol"
	KindCall       MessageKind = "call"
	KindCiphertext MessageKind = "ciphertext"
	KindRevoked    MessageKind = "revoked"
)

// Processable reports whether a message kind may enter the pipeline at all.
// Non-chat kinds (system, protocol, call logs, undecryptable, revocations)
// are rejected before the intake filter is even consulted.
func (k MessageKind) Processable() bool {
	switch k {
	case KindText, KindImage, KindAudio, KindVideo, KindDocument,
		KindSticker, KindLocation, KindContact:
		return true
	}
	return false
}

// Message is one inbound message as seen by the pipeline. It wraps the
// transport's message handle plus a scratch field for media annotation text
// produced before enqueueing (voice transcript, image caption).
type Message struct {
	// ID is the transport message identifier.
	ID string

	// ChatID is the raw conversation identifier (JID for WhatsApp).
	ChatID string

	// Sender is the raw sender identifier.
	Sender string

	// PushName is the sender's self-reported display name.
	PushName string

	// Kind is the message content type.
	Kind MessageKind

	// Body is the text content (or caption for media).
	Body string

	// MediaNote holds out-of-band media annotation text (transcription,
	// image description) filled in by the media collaborator before the
	// message is enqueued. Mutable until flush.
	MediaNote string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// FromSelf is true for messages authored by the operator's own account.
	FromSelf bool

	// IsGroup is true for group chats.
	IsGroup bool

	// IsBroadcast is true for broadcast/status conversations.
	IsBroadcast bool

	// IsNewsletter is true for channel/newsletter conversations, which are
	// rejected unconditionally.
	IsNewsletter bool
}

// ContactInfo is the narrow contact capability the pipeline needs from the
// transport. DisplayName falls back in order: phonebook name → push name →
// bare number.
type ContactInfo interface {
	// DisplayName returns the best human-readable name for the contact.
	DisplayName() string

	// Number returns the bare phone number (digits only, no server suffix).
	Number() string

	// Saved reports whether the contact has a phonebook entry
	// distinguishable from its raw number.
	Saved() bool
}

// Disposition is the terminal outcome of one pipeline run.
type Disposition string

const (
	// DispositionSent means the reply was generated and transmitted.
	DispositionSent Disposition = "sent"

	// DispositionDrafted means the reply awaits operator approval.
	DispositionDrafted Disposition = "drafted"

	// DispositionSkipped means the generator intentionally produced no
	// reply. Expected outcome, not an error.
	DispositionSkipped Disposition = "skipped"

	// DispositionFailed means a configuration or service error stopped the
	// run. Never retried automatically.
	DispositionFailed Disposition = "failed"
)

// Draft is a generated reply awaiting operator approval.
type Draft struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	ContactName    string    `json:"contact_name"`
	ContactNumber  string    `json:"contact_number"`
	Query          string    `json:"query"`
	Reply          string    `json:"reply"`
	MessageCount   int       `json:"message_count"`
	Sentiment      string    `json:"sentiment"`
	Handover       bool      `json:"handover"`
	CreatedAt      time.Time `json:"created_at"`
}

// BareNumber strips the JID server suffix and every non-digit character,
// reducing "5511999999999@s.whatsapp.net" to "5511999999999".
func BareNumber(id string) string {
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	var b strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
