package fulfillment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnthropicClientRequiresKey(t *testing.T) {
	_, err := NewAnthropicClient(AnthropicConfig{})
	assert.Error(t, err)

	_, err = NewAnthropicClient(AnthropicConfig{APIKey: "   "})
	assert.Error(t, err)
}

func TestCompleteSendsInstructionAndPayload(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "the summary"},
			},
		})
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), "Summarize:", "some payload")
	require.NoError(t, err)
	assert.Equal(t, "the summary", text)

	assert.Equal(t, "claude-3-5-haiku-20241022", gotBody["model"])
	assert.Equal(t, float64(512), gotBody["max_tokens"])
	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Summarize:\n\nsome payload", msgs[0].(map[string]any)["content"])
}

func TestCompleteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "Summarize:", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestCompleteSkipsNonTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "thinking", "text": ""},
				{"type": "text", "text": "actual answer"},
			},
		})
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), "Q", "P")
	require.NoError(t, err)
	assert.Equal(t, "actual answer", text)
}

func TestCannedCompleterDeterministic(t *testing.T) {
	c := NewCannedCompleter()

	a, err := c.Complete(context.Background(), "You are a concise summarization agent.", "payload text")
	require.NoError(t, err)
	b, err := c.Complete(context.Background(), "You are a concise summarization agent.", "payload text")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Contains(t, a, "[canned]")
}
