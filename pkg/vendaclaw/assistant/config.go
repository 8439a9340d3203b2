// Package assistant wires the VendaClaw components together: WhatsApp
// transport, debounce pipeline, reply generator, draft manager, store and
// web UI. It owns the top-level configuration and the receive loop.
package assistant

import (
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/channels/whatsapp"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/generator"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/webui"
)

// Config is the top-level VendaClaw configuration.
type Config struct {
	// DatabasePath is the main SQLite database (drafts, usage stats).
	DatabasePath string `yaml:"database_path"`

	// MemoryPath is the conversation memory database.
	MemoryPath string `yaml:"memory_path"`

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `yaml:"log_level"`

	// WhatsApp configures the transport.
	WhatsApp whatsapp.Config `yaml:"whatsapp"`

	// AutoReply configures the pipeline.
	AutoReply autoreply.Config `yaml:"auto_reply"`

	// Generator configures the reply model.
	Generator generator.Config `yaml:"generator"`

	// WebUI configures the dashboard server.
	WebUI webui.Config `yaml:"webui"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "./data/vendaclaw.db",
		MemoryPath:   "./data/memory.db",
		LogLevel:     "info",
		WhatsApp:     whatsapp.DefaultConfig(),
		AutoReply:    autoreply.DefaultConfig(),
		Generator:    generator.DefaultConfig(),
		WebUI:        webui.DefaultConfig(),
	}
}
