// Package generator produces reply text through any OpenAI-compatible
// chat completion endpoint.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"
)

// Config holds the chat completion settings.
type Config struct {
	// APIKey authenticates against the completion endpoint.
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the OpenAI endpoint, for compatible providers.
	BaseURL string `yaml:"base_url"`
	// Model is the chat model name.
	Model string `yaml:"model"`
	// Temperature controls sampling randomness.
	Temperature float32 `yaml:"temperature"`
	// MaxTokens caps the reply length in tokens.
	MaxTokens int `yaml:"max_tokens"`
}

// DefaultConfig returns generation defaults suited to short sales replies.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		Temperature: 0.6,
		MaxTokens:   600,
	}
}

// Client implements autoreply.ReplyGenerator on top of go-openai.
type Client struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a generator client from the given config.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(apiCfg),
		cfg:    cfg,
		logger: logger.With("component", "generator"),
	}
}

// Generate builds the chat transcript and requests one completion.
func (c *Client) Generate(ctx context.Context, req autoreply.GenerateRequest) (*autoreply.GenerateResult, error) {
	messages := buildMessages(req)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		if isPaymentError(err) {
			return nil, autoreply.ErrPaymentRequired
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("reply generated",
		"model", c.cfg.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return &autoreply.GenerateResult{
		Text:      text,
		Sentiment: ClassifySentiment(req.Query),
	}, nil
}

// buildMessages assembles system prompt, prior turns and the current query.
func buildMessages(req autoreply.GenerateRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)

	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		content := turn.Text
		if turn.MediaContext != "" {
			content = fmt.Sprintf("%s\n[%s]", turn.Text, turn.MediaContext)
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
	}

	query := req.Query
	if req.MediaContext != "" {
		query = fmt.Sprintf("%s\n[%s]", query, req.MediaContext)
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: query,
	})

	return messages
}

// isPaymentError reports whether the API rejected the call for billing or
// credential reasons. These are surfaced as a distinct failure so the
// operator can see "add credits" instead of a generic error.
func isPaymentError(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 402 {
		return true
	}
	if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
		return true
	}
	return false
}

var negativeMarkers = []string{
	"não gostei", "péssimo", "horrível", "reclamação", "reclamar",
	"cancelar", "reembolso", "devolver", "absurdo", "demora", "nunca chegou",
	"terrible", "awful", "refund", "cancel", "complaint", "never arrived",
}

var positiveMarkers = []string{
	"obrigado", "obrigada", "ótimo", "excelente", "perfeito", "adorei", "amei",
	"thanks", "thank you", "great", "perfect", "awesome", "love it",
}

// ClassifySentiment gives a coarse tone label for the customer query.
// It is a marker scan, not a model call: good enough to flag angry
// customers on the drafts screen.
func ClassifySentiment(query string) string {
	q := strings.ToLower(query)
	for _, m := range negativeMarkers {
		if strings.Contains(q, m) {
			return "negative"
		}
	}
	for _, m := range positiveMarkers {
		if strings.Contains(q, m) {
			return "positive"
		}
	}
	return "neutral"
}
