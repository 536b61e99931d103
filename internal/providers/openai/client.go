package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"travel-agent-api/internal/narrative"
)

// Config holds the chat-completions provider settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client generates text through an OpenAI-compatible chat-completions API.
type Client struct {
	api   *goopenai.Client
	model string
}

// NewClient creates a new Client. An empty BaseURL targets api.openai.com.
func NewClient(cfg Config) *Client {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		api:   goopenai.NewClientWithConfig(clientCfg),
		model: cfg.Model,
	}
}

// Complete sends a single chat-completion request and returns the first
// choice's text.
func (c *Client) Complete(ctx context.Context, req narrative.CompletionRequest) (string, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    role(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai returned status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", narrative.ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}

func role(r string) string {
	switch r {
	case narrative.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	default:
		return goopenai.ChatMessageRoleUser
	}
}
