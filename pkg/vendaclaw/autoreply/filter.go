// Package autoreply – filter.go implements the intake filter: a stateless
// predicate deciding whether an inbound message enters the debounce buffer.
package autoreply

import "strings"

// ShouldAccept evaluates the intake rules in fixed priority order, first
// match wins:
//
//  1. operator's own messages are never processed
//  2. channel/newsletter conversations are never processed
//  3. blacklisted conversations are always rejected
//  4. whitelisted conversations are always accepted (bypasses 5–7)
//  5. group suppression
//  6. broadcast/status suppression
//  7. unsaved-contacts-only suppression
//  8. accept
//
// The caller must have gated non-chat message kinds already (Processable).
func ShouldAccept(msg *Message, cfg *Config, contact ContactInfo) bool {
	if msg.FromSelf {
		return false
	}

	// Channels/newsletters are one-to-many feeds, never conversations.
	// Rejected regardless of any setting, whitelist included.
	if msg.IsNewsletter {
		return false
	}

	if idInList(msg.ChatID, cfg.Blacklist) {
		return false
	}

	if idInList(msg.ChatID, cfg.Whitelist) {
		return true
	}

	if cfg.IgnoreGroups && msg.IsGroup {
		return false
	}

	if cfg.IgnoreBroadcast && msg.IsBroadcast {
		return false
	}

	if cfg.UnsavedOnly && contact != nil && contact.Saved() {
		return false
	}

	return true
}

// idInList checks a conversation id against a list, matching either the raw
// transport id or the normalized bare number.
func idInList(id string, list []string) bool {
	if len(list) == 0 {
		return false
	}
	bare := BareNumber(id)
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == id {
			return true
		}
		if bare != "" && BareNumber(entry) == bare {
			return true
		}
	}
	return false
}
