package webui

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"
)

// handleDashboard returns the one-screen summary: usage stats, queue depth
// and pending draft count.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := s.api.Stats()
	if err != nil {
		s.logger.Error("reading stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}

	drafts, err := s.api.Drafts().List()
	if err != nil {
		s.logger.Error("listing drafts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "drafts unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":          stats,
		"queue_depth":    len(s.api.Queue()),
		"pending_drafts": len(drafts),
	})
}

// handleQueue returns the current debounce buffer snapshot.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	queue := s.api.Queue()
	if queue == nil {
		queue = []autoreply.BufferItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": queue})
}

// handleDrafts lists pending drafts.
func (s *Server) handleDrafts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	drafts, err := s.api.Drafts().List()
	if err != nil {
		s.logger.Error("listing drafts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "drafts unavailable"})
		return
	}
	if drafts == nil {
		drafts = []*autoreply.Draft{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
}

// handleDraftByID routes draft actions:
//
//	POST /api/drafts/{id}/approve  (optional body {"reply": "..."} to edit-and-send)
//	POST /api/drafts/{id}/discard
//	PUT  /api/drafts/{id}          (body {"reply": "..."})
func (s *Server) handleDraftByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/drafts/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "draft id required"})
		return
	}

	switch {
	case r.Method == http.MethodPost && action == "approve":
		var body struct {
			Reply string `json:"reply"`
		}
		// Body is optional; an empty reply approves the stored text.
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.finishDraftAction(w, id, "approved",
			s.api.Drafts().Approve(r.Context(), id, body.Reply))

	case r.Method == http.MethodPost && action == "discard":
		s.finishDraftAction(w, id, "discarded", s.api.Drafts().Discard(id))

	case r.Method == http.MethodPut && action == "":
		var body struct {
			Reply string `json:"reply"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Reply) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reply text required"})
			return
		}
		s.finishDraftAction(w, id, "updated", s.api.Drafts().Edit(id, body.Reply))

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// finishDraftAction maps draft manager errors onto HTTP statuses.
func (s *Server) finishDraftAction(w http.ResponseWriter, id, verb string, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": verb, "id": id})
	case errors.Is(err, autoreply.ErrDraftNotFound):
		// Lost race against a concurrent approve/discard or the expiry
		// sweeper. Not a server fault.
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "draft not found"})
	case errors.Is(err, autoreply.ErrPaymentRequired):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("draft action failed", "id", id, "action", verb, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// handleEvents streams pipeline events (queue, processed, draft, activity)
// over SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.api.Events().Subscribe()
	defer unsubscribe()

	// Initial queue snapshot so the UI renders without waiting for churn.
	writeSSE(w, flusher, "queue", map[string]any{"queue": s.api.Queue()})

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, flusher, evt.Type, evt)
		}
	}
}

// handleWhatsAppQR streams pairing QR codes (GET) or requests a fresh one
// (POST).
func (s *Server) handleWhatsAppQR(w http.ResponseWriter, r *http.Request) {
	if s.qr == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "whatsapp transport not active"})
		return
	}

	switch r.Method {
	case http.MethodPost:
		if err := s.qr.RequestNewQR(r.Context()); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "refreshing"})

	case http.MethodGet:
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		if s.qr.IsConnected() {
			writeSSE(w, flusher, "success", map[string]string{"message": "already connected"})
			return
		}

		ch, unsubscribe := s.qr.SubscribeQR()
		defer unsubscribe()

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				writeSSE(w, flusher, evt.Type, evt)
				if evt.Type == "success" {
					return
				}
			}
		}

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}
