package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gmsas95/kipbot/internal/config"
	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, provider string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.LLMConfig{
		Provider:    provider,
		Model:       "gpt-4o-mini",
		APIKey:      "sk-test",
		BaseURL:     srv.URL,
		Temperature: 0.7,
		MaxTokens:   256,
		Timeout:     5,
	}, zap.NewNop())
}

func TestModelString(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", ModelString("openai", "gpt-4o-mini"))
	assert.Equal(t, "gpt-4o-mini", ModelString("", "gpt-4o-mini"))
	assert.Equal(t, "openrouter/meta-llama", ModelString("openrouter", "meta-llama"))
}

func TestComplete_Text(t *testing.T) {
	var got ChatRequest
	client := newTestClient(t, "openai", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}]}`))
	})

	reply, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hello"},
	}, nil)
	require.NoError(t, err)

	assert.False(t, reply.WantsTools())
	assert.Equal(t, "hi there", reply.Text)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Len(t, got.Messages, 2)
	assert.Empty(t, got.Tools)
	assert.Equal(t, 256, got.MaxTokens)
}

func TestComplete_ToolCalls(t *testing.T) {
	var raw map[string]any
	client := newTestClient(t, "openrouter", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"c1","type":"function","function":{"name":"get_datetime","arguments":"{\"timezone\":\"UTC\"}"}}
		]}}]}`))
	})

	tools := []Tool{{Type: "function", Function: ToolFunction{
		Name:        "get_datetime",
		Description: "now",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}}}

	reply, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "time?"}}, tools)
	require.NoError(t, err)

	require.True(t, reply.WantsTools())
	assert.Equal(t, "c1", reply.ToolCalls[0].ID)
	assert.Equal(t, "get_datetime", reply.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"timezone":"UTC"}`, reply.ToolCalls[0].Function.Arguments)

	assert.Equal(t, "openrouter/gpt-4o-mini", raw["model"])
	assert.Len(t, raw["tools"], 1)
}

func TestComplete_APIError(t *testing.T) {
	client := newTestClient(t, "openai", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	})

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "bad key")
	assert.False(t, IsTransient(err))
}

func TestComplete_NoChoices(t *testing.T) {
	client := newTestClient(t, "openai", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil)
	assert.ErrorIs(t, err, apperrors.ErrEmptyCompletion)
}

func TestMessageJSON_ToolResult(t *testing.T) {
	data, err := json.Marshal(Message{Role: RoleTool, Content: "", ToolCallID: "c1", Name: "calculator"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"tool","content":"","tool_call_id":"c1","name":"calculator"}`, string(data))
}
