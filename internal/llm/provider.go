package llm

import (
	"context"
	"fmt"
	"strings"
)

// NewClient creates a client based on configuration. A "disabled" or empty
// provider yields a client that reports itself unavailable, so strategy
// selection can fall through to rule-based extraction.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "disabled":
		return &NoOpClient{}, nil
	case "anthropic":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// NoOpClient is an unavailable client used when no provider is configured.
type NoOpClient struct{}

// Invoke always fails; callers should check Available first.
func (n *NoOpClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	return nil, fmt.Errorf("llm provider disabled")
}

// Available returns false for NoOpClient.
func (n *NoOpClient) Available() bool { return false }

// appendJSONInstruction amends a system prompt so the model returns a
// single JSON object without prose or code fences.
func appendJSONInstruction(system string) string {
	const instruction = "Respond with a single JSON object only. No preamble, no explanation, no markdown fences."
	if system == "" {
		return instruction
	}
	return system + "\n\n" + instruction
}

// ExtractJSON strips markdown code fences and surrounding prose from a
// model response, returning the first top-level JSON object. Models
// occasionally wrap JSON output despite instructions.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	start := strings.Index(content, "{")
	if start < 0 {
		return content
	}
	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return content[start:]
}

var _ Client = (*NoOpClient)(nil)
