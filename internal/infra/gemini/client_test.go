package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-bridge/internal/application"
	"voice-bridge/internal/infra/gemini"
)

func TestClient_Next(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": [
			{"functionCall": {"name": "find_entities", "args": {"category": "switch", "search": "pool"}}}
		]}}]}`))
	}))
	defer server.Close()

	client, err := gemini.NewClient(context.Background(), "test-key", "gemini-test", server.URL)
	require.NoError(t, err)

	resp, err := client.Next(context.Background(), application.ChatRequest{
		System:   "You control a house.",
		Tools:    []application.ToolSpec{{Name: "find_entities", Params: map[string]application.ParamSpec{"category": {Type: "string"}}}},
		Messages: []application.ChatMessage{{Role: application.RoleUser, Text: "turn on the pool pump"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "find_entities", resp.ToolCalls[0].Name)
	assert.Equal(t, "call_0", resp.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"category": "switch", "search": "pool"}, resp.ToolCalls[0].Input)

	assert.Contains(t, body, "systemInstruction")
	assert.Contains(t, body, "tools")
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "bad schema", "status": "INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	client, err := gemini.NewClient(context.Background(), "test-key", "gemini-test", server.URL)
	require.NoError(t, err)

	_, err = client.Next(context.Background(), application.ChatRequest{
		Messages: []application.ChatMessage{{Role: application.RoleUser, Text: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.EqualValues(t, 1, calls.Load())
}
