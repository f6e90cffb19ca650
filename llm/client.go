// Package llm is a small client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/discord-voice-assistant/internal/logging"
)

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type ChatResponse struct {
	Model   string
	Content string
}

type Client struct {
	BaseURL string
	APIKey  string
	// Model is used when a request names none. FallbackModel is tried once
	// after a transient failure of the primary model.
	Model         string
	FallbackModel string
	MaxTokens     int
	HTTP          *http.Client
}

func NewClient(baseURL, apiKey, model, fallback string, maxTokens int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		APIKey:        apiKey,
		Model:         model,
		FallbackModel: fallback,
		MaxTokens:     maxTokens,
		HTTP:          &http.Client{Timeout: timeout},
	}
}

// CreateChatCompletion returns the first choice's content. Errors wrap
// ErrTransient (network, 429, 5xx, bad body) or ErrPermanent (other 4xx).
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.Model
	}
	if req.Model == "" {
		req.Model = "local"
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 512
	}
	if c.MaxTokens > 0 && req.MaxTokens > c.MaxTokens {
		req.MaxTokens = c.MaxTokens
	}

	resp, err := c.do(ctx, req)
	if err == nil || !errors.Is(err, ErrTransient) {
		return resp, err
	}
	fallback := c.FallbackModel
	if fallback == "" || fallback == req.Model {
		return resp, err
	}
	logging.Warnw("llm primary model failed; trying fallback", "model", req.Model, "fallback", fallback, "err", err)
	select {
	case <-ctx.Done():
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
	case <-time.After(250 * time.Millisecond):
	}
	req.Model = fallback
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: encode request: %v", ErrPermanent, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ChatResponse{}, fmt.Errorf("%w: model %s status %d", ErrTransient, req.Model, resp.StatusCode)
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ChatResponse{}, fmt.Errorf("%w: model %s status %d", ErrPermanent, req.Model, resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChatResponse{}, fmt.Errorf("%w: decode response: %v", ErrTransient, err)
	}
	content := ""
	if len(out.Choices) > 0 {
		content = strings.TrimSpace(out.Choices[0].Message.Content)
	}
	logging.Debugw("llm completion", "model", req.Model, "latency_ms", time.Since(start).Milliseconds(), "chars", len(content))
	return ChatResponse{Model: req.Model, Content: content}, nil
}
