package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Disabled(t *testing.T) {
	for _, provider := range []string{"", "disabled"} {
		client, err := NewClient(Config{Provider: provider})
		require.NoError(t, err)
		assert.False(t, client.Available())

		_, err = client.Invoke(context.Background(), Request{Content: "hi"})
		assert.Error(t, err)
	}
}

func TestNewClient_Anthropic(t *testing.T) {
	client, err := NewClient(Config{Provider: "anthropic", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.True(t, client.Available())
}

func TestNewClient_AnthropicRequiresKey(t *testing.T) {
	_, err := NewClient(Config{Provider: "anthropic"})
	require.Error(t, err)
}

func TestNewClient_OpenAI(t *testing.T) {
	client, err := NewClient(Config{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.True(t, client.Available())
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(Config{Provider: "bedrock"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare object",
			content: `{"a": 1}`,
			want:    `{"a": 1}`,
		},
		{
			name:    "code fence",
			content: "```json\n{\"a\": 1}\n```",
			want:    `{"a": 1}`,
		},
		{
			name:    "surrounding prose",
			content: `Here is the result: {"a": {"b": 2}} hope that helps`,
			want:    `{"a": {"b": 2}}`,
		},
		{
			name:    "unterminated object",
			content: `{"a": 1`,
			want:    `{"a": 1`,
		},
		{
			name:    "no object",
			content: "nothing here",
			want:    "nothing here",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.content))
		})
	}
}

func TestAppendJSONInstruction(t *testing.T) {
	assert.NotEmpty(t, appendJSONInstruction(""))
	combined := appendJSONInstruction("You extract fields.")
	assert.Contains(t, combined, "You extract fields.")
	assert.Contains(t, combined, "JSON object")
}
