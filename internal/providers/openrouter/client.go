// Package openrouter implements the LLM provider contract against the
// OpenRouter chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	billingdomain "github.com/coverview/creditd/internal/billing/domain"
	"github.com/coverview/creditd/internal/config"
	"go.uber.org/zap"
)

type Client struct {
	log     *zap.Logger
	http    *http.Client
	baseURL string
	apiKey  string
	referer string
	title   string
}

func NewClient(cfg config.Config, log *zap.Logger) billingdomain.Completer {
	return &Client{
		log:     log.Named("openrouter"),
		http:    &http.Client{Timeout: cfg.LLMTimeout},
		baseURL: strings.TrimSuffix(cfg.OpenRouterBaseURL, "/"),
		apiKey:  cfg.OpenRouterAPIKey,
		referer: cfg.OpenRouterReferer,
		title:   cfg.OpenRouterTitle,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *Client) Complete(ctx context.Context, req billingdomain.CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openrouter api key not configured")
	}

	messages := make([]message, 0, 2)
	if req.System != "" {
		messages = append(messages, message{Role: "system", Content: req.System})
	}
	messages = append(messages, message{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(completionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openrouter request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("openrouter response: %w", err)
	}

	c.log.Debug("completion returned",
		zap.String("model", req.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var out completionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("openrouter decode: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("openrouter error %d: %s", out.Error.Code, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openrouter returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
