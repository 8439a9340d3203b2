// Package whatsapp – events.go processes incoming whatsmeow events and
// converts them into autoreply.Message values for the pipeline.
package whatsapp

import (
	"fmt"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// handleEvent is the main whatsmeow event dispatcher.
func (c *Client) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		c.handleMessageEvt(evt)

	case *events.UndecryptableMessage:
		c.handleUndecryptable(evt)

	case *events.Connected:
		c.connected.Store(true)
		c.reconnectAttempts.Store(0)
		c.logger.Info("connected", "jid", c.clientJID())
		c.notifyQR(QREvent{Type: "success", Message: "WhatsApp connected successfully!"})

	case *events.Disconnected:
		wasConnected := c.connected.Swap(false)
		c.logger.Warn("disconnected", "was_connected", wasConnected)
		if wasConnected && c.ctx.Err() == nil {
			go c.attemptReconnect()
		}

	case *events.StreamReplaced:
		c.connected.Store(false)
		c.logger.Error("stream replaced, another device connected")

	case *events.LoggedOut:
		c.connected.Store(false)
		c.logger.Error("logged out", "reason", evt.Reason.String())
		c.qrObserversMu.Lock()
		c.lastQR = nil
		c.qrObserversMu.Unlock()
		go func() {
			if err := c.loginWithQR(c.ctx); err != nil {
				c.logger.Warn("QR re-login failed", "error", err)
			}
		}()

	case *events.TemporaryBan:
		c.connected.Store(false)
		c.logger.Error("temporary ban", "code", evt.Code, "expire", evt.Expire)

	case *events.KeepAliveTimeout:
		c.logger.Warn("keep-alive timeout",
			"error_count", evt.ErrorCount, "last_success", evt.LastSuccess)
		// Half-open connection: socket looks up but is dead.
		if evt.ErrorCount >= 3 && c.connected.Load() {
			c.connected.Store(false)
			go c.attemptReconnect()
		}

	case *events.ConnectFailure:
		c.connected.Store(false)
		permanent := evt.PermanentDisconnectDescription()
		c.logger.Error("connect failure",
			"reason", evt.Reason.String(), "permanent", permanent)
		if permanent == "" && c.ctx.Err() == nil {
			go c.attemptReconnect()
		}

	case *events.PairSuccess:
		c.logger.Info("device paired", "jid", evt.ID, "platform", evt.Platform)
		c.notifyQR(QREvent{
			Type:    "success",
			Message: fmt.Sprintf("Paired with %s successfully!", evt.ID.String()),
		})

	case *events.PushName:
		c.logger.Debug("push name update", "jid", evt.JID, "name", evt.NewPushName)

	case *events.CallOffer:
		c.logger.Debug("incoming call ignored", "from", evt.From)
	}
}

// handleMessageEvt converts one incoming message event.
func (c *Client) handleMessageEvt(evt *events.Message) {
	msg := autoreply.Message{
		ID:           string(evt.Info.ID),
		ChatID:       c.resolveJID(evt.Info.Chat),
		Sender:       c.resolveJID(evt.Info.Sender),
		PushName:     evt.Info.PushName,
		Timestamp:    evt.Info.Timestamp,
		FromSelf:     evt.Info.IsFromMe,
		IsGroup:      evt.Info.IsGroup,
		IsBroadcast:  evt.Info.Chat.Server == types.BroadcastServer,
		IsNewsletter: evt.Info.Chat.Server == types.NewsletterServer,
	}

	// Revocation ("delete for everyone") carries the id of the withdrawn
	// message. That id is what the pipeline needs to evict from buffers.
	if pm := evt.Message.GetProtocolMessage(); pm != nil {
		if pm.GetType() == waE2E.ProtocolMessage_REVOKE {
			msg.Kind = autoreply.KindRevoked
			msg.ID = pm.GetKey().GetID()
			c.emitMessage(msg)
			return
		}
		msg.Kind = autoreply.KindProtocol
		c.emitMessage(msg)
		return
	}

	extractContent(evt.Message, &msg)
	c.emitMessage(msg)
}

// handleUndecryptable surfaces ciphertext messages so the pipeline can
// count them without ever processing them.
func (c *Client) handleUndecryptable(evt *events.UndecryptableMessage) {
	c.emitMessage(autoreply.Message{
		ID:        string(evt.Info.ID),
		ChatID:    c.resolveJID(evt.Info.Chat),
		Sender:    c.resolveJID(evt.Info.Sender),
		PushName:  evt.Info.PushName,
		Kind:      autoreply.KindCiphertext,
		Timestamp: evt.Info.Timestamp,
		FromSelf:  evt.Info.IsFromMe,
		IsGroup:   evt.Info.IsGroup,
	})
}

// resolveJID maps LID (Linked Identity) JIDs back to phone JIDs so the
// pipeline's allow/deny lists match on numbers.
func (c *Client) resolveJID(jid types.JID) string {
	if jid.Server != "lid" || c.client == nil || c.client.Store == nil {
		return jid.String()
	}
	if alt, err := c.client.Store.GetAltJID(c.ctx, jid); err == nil && !alt.IsEmpty() {
		return alt.String()
	}
	return jid.String()
}

// extractContent fills kind, body and media note from the wire message.
func extractContent(waMsg *waE2E.Message, msg *autoreply.Message) {
	if waMsg == nil {
		msg.Kind = autoreply.KindSystem
		return
	}

	switch {
	case waMsg.Conversation != nil:
		msg.Kind = autoreply.KindText
		msg.Body = waMsg.GetConversation()

	case waMsg.ExtendedTextMessage != nil:
		msg.Kind = autoreply.KindText
		msg.Body = waMsg.ExtendedTextMessage.GetText()

	case waMsg.ImageMessage != nil:
		msg.Kind = autoreply.KindImage
		msg.Body = waMsg.ImageMessage.GetCaption()
		msg.MediaNote = "[image]"

	case waMsg.AudioMessage != nil:
		msg.Kind = autoreply.KindAudio
		if waMsg.AudioMessage.GetPTT() {
			msg.MediaNote = "[voice note]"
		} else {
			msg.MediaNote = "[audio]"
		}

	case waMsg.VideoMessage != nil:
		msg.Kind = autoreply.KindVideo
		msg.Body = waMsg.VideoMessage.GetCaption()
		msg.MediaNote = "[video]"

	case waMsg.DocumentMessage != nil:
		msg.Kind = autoreply.KindDocument
		msg.Body = waMsg.DocumentMessage.GetCaption()
		msg.MediaNote = fmt.Sprintf("[document: %s]", waMsg.DocumentMessage.GetFileName())

	case waMsg.StickerMessage != nil:
		msg.Kind = autoreply.KindSticker
		msg.MediaNote = "[sticker]"

	case waMsg.LocationMessage != nil:
		loc := waMsg.LocationMessage
		msg.Kind = autoreply.KindLocation
		msg.Body = fmt.Sprintf("[location: %.6f, %.6f]",
			loc.GetDegreesLatitude(), loc.GetDegreesLongitude())

	case waMsg.LiveLocationMessage != nil:
		loc := waMsg.LiveLocationMessage
		msg.Kind = autoreply.KindLocation
		msg.Body = fmt.Sprintf("[live location: %.6f, %.6f]",
			loc.GetDegreesLatitude(), loc.GetDegreesLongitude())

	case waMsg.ContactMessage != nil:
		msg.Kind = autoreply.KindContact
		msg.Body = fmt.Sprintf("[contact: %s]", waMsg.ContactMessage.GetDisplayName())

	case waMsg.ReactionMessage != nil:
		msg.Kind = autoreply.KindReaction
		msg.Body = waMsg.ReactionMessage.GetText()

	case waMsg.Call != nil:
		msg.Kind = autoreply.KindCall

	default:
		msg.Kind = autoreply.KindSystem
	}
}
