// Package llm is a thin HTTP client for an OpenAI-compatible chat
// completion service (LM Studio, llama.cpp server, and friends).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kindred-platform/kindred/internal/engine"
)

// Config holds the client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the completion service. It implements engine.Completer.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client. A zero timeout falls back to five minutes,
// matching slow local models.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Model       string           `json:"model"`
	Messages    []engine.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Stream      bool             `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message engine.Message `json:"message"`
	} `json:"choices"`
}

// Complete sends the conversation to /chat/completions and returns the first
// choice. Errors cover transport failures, non-2xx statuses, and responses
// with no choices; callers are expected to degrade, not crash.
func (c *Client) Complete(ctx context.Context, messages []engine.Message, opts engine.GenerationOptions) (engine.Message, error) {
	payload := completionRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	var resp completionResponse
	if err := c.post(ctx, "/chat/completions", payload, &resp); err != nil {
		return engine.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return engine.Message{}, fmt.Errorf("completion response has no choices")
	}
	return resp.Choices[0].Message, nil
}

// ModelList is the /models payload.
type ModelList struct {
	Data []ModelInfo `json:"data"`
}

// ModelInfo describes one available model.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// Models lists the models the service currently serves.
func (c *Client) Models(ctx context.Context) (*ModelList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("building models request: %w", err)
	}
	c.setHeaders(req)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching models: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("models request returned %d: %s", res.StatusCode, body)
	}

	var list ModelList
	if err := json.NewDecoder(res.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models response: %w", err)
	}
	return &list, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, res.StatusCode, detail)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
