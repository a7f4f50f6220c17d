package llm

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titan/internal/types"
)

func TestToWireMessagesToolCallArguments(t *testing.T) {
	msgs := []types.ChatMessage{
		{
			Role: types.RoleAssistant,
			ToolCalls: []types.ToolCall{
				{ID: "call_1", Name: "read_file", Args: map[string]any{"path": "a.go"}},
			},
		},
		{Role: types.RoleTool, Content: `{"success":true}`, ToolCallID: "call_1", Name: "read_file"},
	}

	wire := toWireMessages(msgs)

	require.Len(t, wire, 2)
	require.Len(t, wire[0].ToolCalls, 1)
	assert.Equal(t, "function", wire[0].ToolCalls[0].Type)
	assert.JSONEq(t, `{"path":"a.go"}`, wire[0].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "call_1", wire[1].ToolCallID)
}

func TestToWireMessagesImageParts(t *testing.T) {
	msgs := []types.ChatMessage{{
		Role: types.RoleUser,
		Parts: []types.ContentPart{
			{Type: "text", Text: "look at this"},
			{Type: "image_url", ImageURL: "https://example.com/x.png"},
		},
	}}

	wire := toWireMessages(msgs)

	require.Len(t, wire, 1)
	parts, ok := wire[0].Content.([]wireContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	require.NotNil(t, parts[1].ImageURL)
	assert.Equal(t, "https://example.com/x.png", parts[1].ImageURL.URL)
}

func TestToWireToolChoice(t *testing.T) {
	assert.Nil(t, toWireToolChoice(""))
	assert.Equal(t, "auto", toWireToolChoice(types.ToolChoiceAuto))
	assert.Equal(t, "none", toWireToolChoice(types.ToolChoiceNone))

	forced := toWireToolChoice("list_files")
	want := map[string]any{
		"type":     "function",
		"function": map[string]any{"name": "list_files"},
	}
	if diff := cmp.Diff(want, forced); diff != "" {
		t.Errorf("forced tool choice mismatch (-want +got):\n%s", diff)
	}
}

func TestFromWireResponseParsesToolCalls(t *testing.T) {
	raw := `{
		"choices": [{
			"index": 0,
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{
					"id": "call_9",
					"type": "function",
					"function": {"name": "web_search", "arguments": "{\"query\":\"go\"}"}
				}]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`
	var wire wireResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &wire))

	resp, err := fromWireResponse(&wire)
	require.NoError(t, err)

	choice := resp.First()
	require.NotNil(t, choice)
	assert.Equal(t, "tool_calls", choice.FinishReason)
	require.Len(t, choice.Message.ToolCalls, 1)
	assert.Equal(t, "web_search", choice.Message.ToolCalls[0].Name)
	assert.Equal(t, "go", choice.Message.ToolCalls[0].Args["query"])
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestFromWireResponseRejectsMalformedArguments(t *testing.T) {
	raw := `{
		"choices": [{
			"index": 0,
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{
					"id": "call_1",
					"type": "function",
					"function": {"name": "read_file", "arguments": "{not json"}
				}]
			},
			"finish_reason": "tool_calls"
		}]
	}`
	var wire wireResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &wire))

	_, err := fromWireResponse(&wire)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal arguments")
}

func TestResponseFirstOnEmpty(t *testing.T) {
	var resp *types.ChatResponse
	assert.Nil(t, resp.First())
	assert.Nil(t, (&types.ChatResponse{}).First())
}
