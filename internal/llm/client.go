// Package llm provides the language-model capability consumed by the
// extraction strategies. The client takes a prompt plus an output format
// hint and returns structured or free-text output; every failure mode
// (network, rate limit, malformed output) is recoverable at the task level.
package llm

import (
	"context"
	"time"
)

// Request describes one model invocation.
type Request struct {
	System      string  `json:"system,omitempty"`
	Content     string  `json:"content"`
	Format      string  `json:"format,omitempty"` // "json" requests a JSON object response
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Response carries the model output and token accounting.
type Response struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

// Client is the opaque language-model capability.
type Client interface {
	// Invoke sends the request and returns the model response.
	Invoke(ctx context.Context, req Request) (*Response, error)

	// Available returns true if the client is configured and ready.
	// It must be side-effect free and cheap to call before dispatch.
	Available() bool
}

// Config holds provider-specific configuration.
type Config struct {
	Provider  string `json:"provider"` // "disabled", "anthropic", "openai"
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Timeout   int    `json:"timeout,omitempty"` // seconds
}

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 2048
	defaultTimeout          = 60 * time.Second
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute for both APIs.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// retryableError marks errors worth retrying (network, 429, 5xx).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	_, ok := err.(*retryableError)
	return ok
}
