package generator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"
)

// completionServer fakes the chat completions endpoint and captures the
// last request body.
func completionServer(t *testing.T, reply string, status int) (*httptest.Server, *openai.ChatCompletionRequest) {
	t.Helper()
	var last openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"denied","type":"invalid_request_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func newTestClient(srv *httptest.Server) *Client {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	return New(cfg, slog.Default())
}

func TestGenerateBuildsTranscript(t *testing.T) {
	srv, last := completionServer(t, "  Sim, temos em estoque!  ", http.StatusOK)
	c := newTestClient(srv)

	res, err := c.Generate(context.Background(), autoreply.GenerateRequest{
		Query:        "tem a camisa azul?",
		SystemPrompt: "You are a shop assistant.",
		MediaContext: "image: product photo",
		History: []autoreply.Turn{
			{Role: "user", Text: "oi"},
			{Role: "assistant", Text: "Olá! Como posso ajudar?"},
		},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text != "Sim, temos em estoque!" {
		t.Errorf("text = %q, not trimmed", res.Text)
	}

	msgs := last.Messages
	if len(msgs) != 4 {
		t.Fatalf("message count = %d, want 4", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("first message role = %q", msgs[0].Role)
	}
	if msgs[2].Role != openai.ChatMessageRoleAssistant {
		t.Errorf("history assistant role = %q", msgs[2].Role)
	}
	final := msgs[3]
	if final.Role != openai.ChatMessageRoleUser {
		t.Errorf("final role = %q", final.Role)
	}
	if final.Content != "tem a camisa azul?\n[image: product photo]" {
		t.Errorf("final content = %q, media context not appended", final.Content)
	}
}

func TestGenerateOmitsEmptySystemPrompt(t *testing.T) {
	srv, last := completionServer(t, "ok", http.StatusOK)
	c := newTestClient(srv)

	if _, err := c.Generate(context.Background(), autoreply.GenerateRequest{Query: "oi"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(last.Messages) != 1 || last.Messages[0].Role != openai.ChatMessageRoleUser {
		t.Fatalf("unexpected messages: %+v", last.Messages)
	}
}

func TestGeneratePaymentRequired(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusPaymentRequired} {
		srv, _ := completionServer(t, "", status)
		c := newTestClient(srv)

		_, err := c.Generate(context.Background(), autoreply.GenerateRequest{Query: "oi"})
		if !errors.Is(err, autoreply.ErrPaymentRequired) {
			t.Errorf("status %d: err = %v, want ErrPaymentRequired", status, err)
		}
	}
}

func TestGenerateGenericAPIError(t *testing.T) {
	srv, _ := completionServer(t, "", http.StatusInternalServerError)
	c := newTestClient(srv)

	_, err := c.Generate(context.Background(), autoreply.GenerateRequest{Query: "oi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, autoreply.ErrPaymentRequired) {
		t.Fatal("server error misclassified as payment failure")
	}
}

func TestIsPaymentErrorQuotaCode(t *testing.T) {
	err := &openai.APIError{HTTPStatusCode: 429, Code: "insufficient_quota"}
	if !isPaymentError(err) {
		t.Error("insufficient_quota not treated as payment failure")
	}
	if isPaymentError(errors.New("dial tcp: refused")) {
		t.Error("plain error treated as payment failure")
	}
}

func TestClassifySentiment(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"quero cancelar meu pedido, absurdo a demora", "negative"},
		{"obrigado, adorei o produto!", "positive"},
		{"tem a camisa azul em estoque?", "neutral"},
		{"I want a refund NOW", "negative"},
	}
	for _, tt := range tests {
		if got := ClassifySentiment(tt.query); got != tt.want {
			t.Errorf("ClassifySentiment(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}
