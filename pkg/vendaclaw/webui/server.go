// Package webui implements the VendaClaw operator dashboard backend: a JSON
// API over the pipeline (queue, drafts, stats) with live updates delivered
// via Server-Sent Events (SSE).
package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/channels/whatsapp"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/store"
)

// Config holds web UI configuration.
type Config struct {
	// Enabled turns the web UI on/off.
	Enabled bool `yaml:"enabled"`

	// Address is the listen address (default: ":8977").
	Address string `yaml:"address"`

	// PasswordHash is the bcrypt hash of the dashboard password
	// (empty = no auth). Generate with: vendaclaw config set-password.
	PasswordHash string `yaml:"password_hash"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Address: ":8977",
	}
}

// AssistantAPI is the narrow surface the dashboard reads from the running
// assistant. *assistant.Assistant satisfies it.
type AssistantAPI interface {
	// Queue returns the current debounce buffer snapshot.
	Queue() []autoreply.BufferItem

	// Drafts returns the draft manager.
	Drafts() *autoreply.DraftManager

	// Events returns the pipeline event broadcaster.
	Events() *autoreply.Broadcaster

	// Stats returns accumulated usage statistics.
	Stats() (*store.UsageStats, error)
}

// QRProvider streams WhatsApp pairing QR codes to the dashboard.
type QRProvider interface {
	SubscribeQR() (chan whatsapp.QREvent, func())
	RequestNewQR(ctx context.Context) error
	IsConnected() bool
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg    Config
	api    AssistantAPI
	logger *slog.Logger
	server *http.Server

	// sessionToken authenticates browser sessions after login. Regenerated
	// on every process start.
	sessionToken string

	// qr is optional; nil when running over the in-memory transport.
	qr QRProvider
}

// New creates a new dashboard server.
func New(cfg Config, api AssistantAPI, logger *slog.Logger) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8977"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		api:          api,
		logger:       logger.With("component", "webui"),
		sessionToken: uuid.NewString(),
	}
}

// SetQRProvider wires the WhatsApp QR stream into the dashboard.
func (s *Server) SetQRProvider(qr QRProvider) { s.qr = qr }

// Start begins serving the dashboard API.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Public routes.
	mux.HandleFunc("/api/auth/login", s.handleAuthLogin)
	mux.HandleFunc("/api/auth/logout", s.handleAuthLogout)
	mux.HandleFunc("/api/auth/status", s.handleAuthStatus)

	// Protected routes.
	mux.HandleFunc("/api/dashboard", s.authMiddleware(s.handleDashboard))
	mux.HandleFunc("/api/queue", s.authMiddleware(s.handleQueue))
	mux.HandleFunc("/api/drafts", s.authMiddleware(s.handleDrafts))
	mux.HandleFunc("/api/drafts/", s.authMiddleware(s.handleDraftByID))
	mux.HandleFunc("/api/events", s.authMiddleware(s.handleEvents))
	mux.HandleFunc("/api/whatsapp/qr", s.authMiddleware(s.handleWhatsAppQR))

	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled for SSE streams (long-lived connections).
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("web UI starting", "address", s.cfg.Address)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("web UI server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the dashboard server.
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
		s.logger.Info("web UI stopped")
	}
}

// ── Middleware ──

// authMiddleware validates the session token if a password is configured.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.PasswordHash == "" {
			next(w, r)
			return
		}
		if !compareTokens(extractToken(r), s.sessionToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// corsMiddleware adds CORS headers for development (Vite dev server).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ── JSON helpers ──

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSSE writes a named SSE event to the response writer.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(b))
	flusher.Flush()
}
