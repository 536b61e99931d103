package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-agent-api/internal/narrative"
)

func TestComplete_SendsRequestAndReadsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model       string  `json:"model"`
			Temperature float32 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4-turbo-preview", body.Model)
		assert.InDelta(t, 0.7, body.Temperature, 1e-6)
		assert.Equal(t, 800, body.MaxTokens)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "user", body.Messages[1].Role)
		assert.Equal(t, "hello", body.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","choices":[
			{"index":0,"message":{"role":"assistant","content":"Book the Tuesday flight."},"finish_reason":"stop"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "sk-test", Model: "gpt-4-turbo-preview", BaseURL: srv.URL, Timeout: 5 * time.Second})

	text, err := client.Complete(context.Background(), narrative.CompletionRequest{
		Messages: []narrative.Message{
			{Role: narrative.RoleSystem, Content: "be brief"},
			{Role: narrative.RoleUser, Content: "hello"},
		},
		Temperature: 0.7,
		MaxTokens:   800,
	})
	require.NoError(t, err)
	assert.Equal(t, "Book the Tuesday flight.", text)
}

func TestComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "bad", Model: "gpt-4-turbo-preview", BaseURL: srv.URL})

	_, err := client.Complete(context.Background(), narrative.CompletionRequest{
		Messages: []narrative.Message{{Role: narrative.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-2","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "sk-test", Model: "gpt-4-turbo-preview", BaseURL: srv.URL})

	_, err := client.Complete(context.Background(), narrative.CompletionRequest{
		Messages: []narrative.Message{{Role: narrative.RoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, narrative.ErrEmptyCompletion)
}
