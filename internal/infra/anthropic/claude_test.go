package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-bridge/internal/application"
	"voice-bridge/internal/infra/anthropic"
)

func TestClaudeClient_ParsesToolUse(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_1", "name": "get_state", "input": {"entity_id": "sensor.pool_temperature"}}
			]
		}`))
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("test-key", "", server.URL)
	resp, err := client.Next(context.Background(), application.ChatRequest{
		System: "You control a house.",
		Tools: []application.ToolSpec{{
			Name:        "get_state",
			Description: "Read an entity",
			Params:      map[string]application.ParamSpec{"entity_id": {Type: "string", Description: "Entity id"}},
			Required:    []string{"entity_id"},
		}},
		Messages: []application.ChatMessage{{Role: application.RoleUser, Text: "how warm is the pool"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Let me check.", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, application.ToolCall{
		ID:    "toolu_1",
		Name:  "get_state",
		Input: map[string]any{"entity_id": "sensor.pool_temperature"},
	}, resp.ToolCalls[0])

	assert.Equal(t, anthropic.DefaultModel, got["model"])
	assert.Equal(t, "You control a house.", got["system"])
	tools := got["tools"].([]any)
	require.Len(t, tools, 1)
	schema := tools[0].(map[string]any)["input_schema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"entity_id"}, schema["required"])
}

func TestClaudeClient_SendsToolResults(t *testing.T) {
	var got struct {
		Messages []struct {
			Role    string           `json:"role"`
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "The pool is 82 degrees."}]}`))
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("k", "claude-test", server.URL+"/")
	resp, err := client.Next(context.Background(), application.ChatRequest{
		Messages: []application.ChatMessage{
			{Role: application.RoleUser, Text: "pool temp"},
			{Role: application.RoleAssistant, ToolCalls: []application.ToolCall{{ID: "toolu_1", Name: "get_state", Input: map[string]any{"entity_id": "sensor.pool"}}}},
			{Role: application.RoleUser, ToolResults: []application.ToolResult{{CallID: "toolu_1", Name: "get_state", Content: `{"state":"82"}`}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "The pool is 82 degrees.", resp.Text)
	assert.Empty(t, resp.ToolCalls)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, "tool_use", got.Messages[1].Content[0]["type"])
	assert.Equal(t, "toolu_1", got.Messages[1].Content[0]["id"])

	result := got.Messages[2].Content[0]
	assert.Equal(t, "user", got.Messages[2].Role)
	assert.Equal(t, "tool_result", result["type"])
	assert.Equal(t, "toolu_1", result["tool_use_id"])
	assert.Equal(t, `{"state":"82"}`, result["content"])
}

func TestClaudeClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"type":"invalid_request_error"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("k", "", server.URL)
	_, err := client.Next(context.Background(), application.ChatRequest{
		Messages: []application.ChatMessage{{Role: application.RoleUser, Text: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.EqualValues(t, 1, calls.Load())
}

func TestClaudeClient_RetriesOverload(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "Done."}]}`))
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("k", "", server.URL)
	resp, err := client.Next(context.Background(), application.ChatRequest{
		Messages: []application.ChatMessage{{Role: application.RoleUser, Text: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", resp.Text)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClaudeClient_EmptyContentIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content": []}`))
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("k", "", server.URL)
	_, err := client.Next(context.Background(), application.ChatRequest{
		Messages: []application.ChatMessage{{Role: application.RoleUser, Text: "hi"}},
	})
	assert.Error(t, err)
}
