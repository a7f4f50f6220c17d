// Package llm implements Titan's inference clients. The primary client
// speaks the OpenAI-compatible chat completions protocol over HTTP; a
// Gemini-backed Completer serves the cheap single-shot paths (intent
// escalation, title generation).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"titan/internal/logging"
	"titan/internal/types"
)

// OpenAIClient implements types.LLMClient against an OpenAI-compatible API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	models     ModelMap
	httpClient *http.Client
	maxRetries int
}

// ModelMap maps tiers to concrete model names.
type ModelMap struct {
	Fast    string
	Default string
	Strong  string
}

// Model returns the model for the given tier.
func (m ModelMap) Model(tier types.ModelTier) string {
	switch tier {
	case types.TierFast:
		return m.Fast
	case types.TierStrong:
		return m.Strong
	default:
		return m.Default
	}
}

// OpenAIConfig holds client construction parameters.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Models     ModelMap
	Timeout    time.Duration
	MaxRetries int
}

// NewOpenAIClient creates a client with the given config.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		models:     cfg.Models,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}
}

// Invoke sends the working message list and returns the parsed response.
func (c *OpenAIClient) Invoke(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	// Auto-apply timeout if context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	body := wireRequest{
		Model:       c.models.Model(req.Tier),
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		Tools:       toWireTools(req.Tools),
		ToolChoice:  toWireToolChoice(req.ToolChoice),
	}
	logging.LLMDebug("Invoke: model=%s messages=%d tools=%d tool_choice=%q",
		body.Model, len(body.Messages), len(body.Tools), req.ToolChoice)

	wire, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := fromWireResponse(wire)
	if err != nil {
		return nil, err
	}
	logging.LLM("Invoke: model=%s completed in %v choices=%d tokens=%d",
		body.Model, time.Since(start), len(resp.Choices), resp.Usage.TotalTokens)
	return resp, nil
}

// post performs the HTTP request with 429-aware retry and backoff.
func (c *OpenAIClient) post(ctx context.Context, body wireRequest) (*wireResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(respBody)))
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
		}

		var wire wireResponse
		if err := json.Unmarshal(respBody, &wire); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if wire.Error != nil {
			return nil, fmt.Errorf("API error: %s", wire.Error.Message)
		}
		return &wire, nil
	}

	logging.Get(logging.CategoryLLM).Error("max retries exceeded: %v", lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
