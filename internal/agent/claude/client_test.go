// internal/agent/claude/client_test.go
package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-workflows/internal/agent"
	"signal-workflows/internal/common/config"
)

func TestToSDKMessages(t *testing.T) {
	msgs := []agent.Message{
		{Role: "user", Content: []agent.ContentBlock{{Type: "text", Text: "hello"}}},
		{Role: "assistant", Content: []agent.ContentBlock{
			{Type: "text", Text: "let me check"},
			{Type: "tool_use", ID: "tu-1", Name: "fetch_issue_details", Input: json.RawMessage(`{"number":7}`)},
		}},
		{Role: "user", Content: []agent.ContentBlock{
			{Type: "tool_result", ToolUseID: "tu-1", Content: "tool error: not found", IsError: true},
		}},
	}

	result := toSDKMessages(msgs)

	require.Len(t, result, 3)
	assert.Equal(t, anthropic.MessageParamRole("user"), result[0].Role)
	require.NotNil(t, result[0].Content[0].OfText)
	assert.Equal(t, "hello", result[0].Content[0].OfText.Text)

	require.Len(t, result[1].Content, 2)
	require.NotNil(t, result[1].Content[1].OfToolUse)
	assert.Equal(t, "tu-1", result[1].Content[1].OfToolUse.ID)
	assert.Equal(t, "fetch_issue_details", result[1].Content[1].OfToolUse.Name)

	toolResult := result[2].Content[0].OfToolResult
	require.NotNil(t, toolResult)
	assert.Equal(t, "tu-1", toolResult.ToolUseID)
	assert.True(t, toolResult.IsError.Valid() && toolResult.IsError.Value)
}

func TestToSDKTools(t *testing.T) {
	defs := []agent.ToolDef{
		{
			Name:        "find_subreddits",
			Description: "Find subreddits matching a query.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
		},
		{Name: "no_args", Description: "takes nothing"},
	}

	result := toSDKTools(defs)

	require.Len(t, result, 2)
	require.NotNil(t, result[0].OfTool)
	assert.Equal(t, "find_subreddits", result[0].OfTool.Name)
	assert.Equal(t, "Find subreddits matching a query.", result[0].OfTool.Description.Value)
	assert.Equal(t, []string{"query"}, result[0].OfTool.InputSchema.Required)
	assert.NotNil(t, result[1].OfTool.InputSchema.Properties)
}

func TestFromSDKResponse(t *testing.T) {
	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "checking"},
			{Type: "tool_use", ID: "tu-9", Name: "get_latest_posts", Input: json.RawMessage(`{"subreddit":"espresso"}`)},
		},
		StopReason: anthropic.StopReasonToolUse,
		Usage:      anthropic.Usage{InputTokens: 120, OutputTokens: 30},
	}

	result := fromSDKResponse(msg)

	assert.Equal(t, agent.StopToolUse, result.StopReason)
	assert.Equal(t, agent.Usage{InputTokens: 120, OutputTokens: 30}, result.Usage)
	require.Len(t, result.Content, 2)
	assert.Equal(t, "checking", result.Content[0].Text)
	assert.Equal(t, "tu-9", result.Content[1].ID)
	assert.JSONEq(t, `{"subreddit":"espresso"}`, string(result.Content[1].Input))
}

func TestClient_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])
		assert.NotEmpty(t, body["system"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "Verdict: strong demand"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	client := New(config.AgentConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "claude-test", Timeout: 5})

	resp, err := client.Send(context.Background(), &agent.Request{
		MaxTokens: 256,
		System:    "You are a reporter.",
		Messages:  []agent.Message{{Role: "user", Content: []agent.ContentBlock{{Type: "text", Text: "go"}}}},
	})

	require.NoError(t, err)
	assert.Equal(t, agent.StopEnd, resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "Verdict: strong demand", resp.Content[0].Text)
	assert.Equal(t, 10, resp.Usage.InputTokens)
}
