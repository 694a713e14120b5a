package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anthropicTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		Provider: "anthropic",
		APIKey:   "sk-test",
		BaseURL:  srv.URL,
	})
	require.NoError(t, err)
	return client
}

func TestAnthropicInvoke_Success(t *testing.T) {
	client := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("X-API-Key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "{\"ok\": true}"}],
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	})

	resp, err := client.Invoke(context.Background(), Request{Content: "extract", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Content)
	assert.Equal(t, 15, resp.TokensUsed)
}

func TestAnthropicInvoke_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	client := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "ok"}],
			"usage": {"input_tokens": 1, "output_tokens": 1}
		}`))
	})

	resp, err := client.Invoke(context.Background(), Request{Content: "extract"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicInvoke_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "bad prompt"}}`))
	})

	_, err := client.Invoke(context.Background(), Request{Content: "extract"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad prompt")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnthropicInvoke_ContextCancelled(t *testing.T) {
	client := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Invoke(ctx, Request{Content: "extract"})
	require.Error(t, err)
}
