// Package autoreply – config.go defines the pipeline configuration.
package autoreply

import "time"

// Config holds all auto-reply pipeline options.
type Config struct {
	// DebounceSeconds is the quiet period after the last inbound message
	// before the buffer flushes. Sliding window: every new message re-arms it.
	DebounceSeconds int `yaml:"debounce_seconds"`

	// MaxBubbleLength is the maximum characters per outbound bubble before
	// long replies are split.
	MaxBubbleLength int `yaml:"max_bubble_length"`

	// MaxBubbles caps how many bubbles one reply may be split into. Overflow
	// is absorbed into the final bubble, never dropped.
	MaxBubbles int `yaml:"max_bubbles"`

	// SafeMode paces outbound sends with randomized delays and typing
	// signals to mimic human composition.
	SafeMode bool `yaml:"safe_mode"`

	// SafeModeMinDelaySeconds is the lower bound of the random pre-send delay.
	SafeModeMinDelaySeconds int `yaml:"safe_mode_min_delay_seconds"`

	// SafeModeMaxDelaySeconds is the upper bound of the random pre-send delay.
	SafeModeMaxDelaySeconds int `yaml:"safe_mode_max_delay_seconds"`

	// DraftMode parks every generated reply for operator approval instead of
	// sending it.
	DraftMode bool `yaml:"draft_mode"`

	// HandoverEnabled scans buffered messages for handover keywords; a match
	// forces the reply into a draft regardless of DraftMode.
	HandoverEnabled bool `yaml:"handover_enabled"`

	// HandoverKeywords are the phrases that trigger a handover.
	HandoverKeywords []string `yaml:"handover_keywords"`

	// Blacklist rejects conversations by raw id or bare number.
	Blacklist []string `yaml:"blacklist"`

	// Whitelist accepts conversations unconditionally, bypassing the
	// group/broadcast/unsaved suppressions.
	Whitelist []string `yaml:"whitelist"`

	// IgnoreGroups suppresses group chats.
	IgnoreGroups bool `yaml:"ignore_groups"`

	// IgnoreBroadcast suppresses broadcast/status conversations.
	// Channels/newsletters are rejected regardless of this flag.
	IgnoreBroadcast bool `yaml:"ignore_broadcast"`

	// UnsavedOnly restricts replies to contacts without a phonebook entry.
	UnsavedOnly bool `yaml:"unsaved_only"`

	// SystemPrompt is the assistant instruction text passed to the generator.
	SystemPrompt string `yaml:"system_prompt"`

	// RecallLimit is how many semantically relevant prior turns to retrieve.
	RecallLimit int `yaml:"recall_limit"`

	// HistoryLimit is how many most-recent prior turns to retrieve.
	HistoryLimit int `yaml:"history_limit"`

	// CostPerMessage is the estimated cost saved per aggregated message
	// beyond the first, carried on processed events.
	CostPerMessage float64 `yaml:"cost_per_message"`

	// SecondsSavedPerReply feeds the time-saved usage statistic.
	SecondsSavedPerReply int `yaml:"seconds_saved_per_reply"`

	// DraftExpiry discards unapproved drafts after this duration.
	// Zero disables expiry.
	DraftExpiry time.Duration `yaml:"draft_expiry"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceSeconds:         10,
		MaxBubbleLength:         500,
		MaxBubbles:              3,
		SafeMode:                true,
		SafeModeMinDelaySeconds: 2,
		SafeModeMaxDelaySeconds: 6,
		HandoverEnabled:         true,
		HandoverKeywords: []string{
			"falar com atendente",
			"falar com humano",
			"quero um atendente",
			"talk to a human",
			"human agent",
			"real person",
		},
		RecallLimit:          4,
		HistoryLimit:         6,
		CostPerMessage:       0.10,
		SecondsSavedPerReply: 90,
	}
}

// DebounceWindow returns the debounce window as a duration.
func (c *Config) DebounceWindow() time.Duration {
	if c.DebounceSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.DebounceSeconds) * time.Second
}
