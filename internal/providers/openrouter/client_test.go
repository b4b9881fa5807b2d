package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	billingdomain "github.com/coverview/creditd/internal/billing/domain"
	"github.com/coverview/creditd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, url string) billingdomain.Completer {
	t.Helper()
	return NewClient(config.Config{
		OpenRouterBaseURL: url,
		OpenRouterAPIKey:  "test-key",
		OpenRouterReferer: "https://coverview.app",
		OpenRouterTitle:   "CoverView",
		LLMTimeout:        5 * time.Second,
	}, zaptest.NewLogger(t))
}

func TestCompleteSendsHeadersAndMessages(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://coverview.app", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "CoverView", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "1. First\n2. Second"}},
			},
		})
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).Complete(context.Background(), billingdomain.CompletionRequest{
		Model:       "anthropic/claude-3-haiku",
		System:      "You optimize titles.",
		Prompt:      "My Blog Post",
		Temperature: 0.7,
		MaxTokens:   500,
	})
	require.NoError(t, err)
	assert.Equal(t, "1. First\n2. Second", out)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "anthropic/claude-3-haiku", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
}

func TestCompleteNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), billingdomain.CompletionRequest{
		Model:  "anthropic/claude-3-haiku",
		Prompt: "hi",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestCompleteEmbeddedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model not found", "code": 404},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), billingdomain.CompletionRequest{
		Model:  "missing/model",
		Prompt: "hi",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), billingdomain.CompletionRequest{
		Model:  "anthropic/claude-3-haiku",
		Prompt: "hi",
	})
	require.Error(t, err)
}

func TestCompleteMissingAPIKey(t *testing.T) {
	c := NewClient(config.Config{
		OpenRouterBaseURL: "http://localhost:1",
		LLMTimeout:        time.Second,
	}, zaptest.NewLogger(t))

	_, err := c.Complete(context.Background(), billingdomain.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
}
