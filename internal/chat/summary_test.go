package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"titan/internal/types"
)

func TestSummarizeAction(t *testing.T) {
	tests := []struct {
		name   string
		call   types.ToolCall
		result types.ToolResult
		want   string
	}{
		{
			"read file",
			types.ToolCall{Name: "read_file"},
			types.ToolResult{Success: true, Data: map[string]any{"path": "main.go"}},
			"Read main.go",
		},
		{
			"staged modify",
			types.ToolCall{Name: "modify_file"},
			types.ToolResult{Success: true, Data: map[string]any{"path": "a.go", "staged": true}},
			"Staged changes to a.go",
		},
		{
			"direct modify",
			types.ToolCall{Name: "modify_file"},
			types.ToolResult{Success: true, Data: map[string]any{"path": "a.go", "staged": false}},
			"Modified a.go",
		},
		{
			"list credentials",
			types.ToolCall{Name: "list_credentials"},
			types.ToolResult{Success: true, Data: map[string]any{"count": 2}},
			"Listed 2 credentials",
		},
		{
			"failure uses first line of error",
			types.ToolCall{Name: "read_file"},
			types.ToolResult{Success: false, Error: "file not found: x\nextra detail"},
			"read_file failed: file not found: x",
		},
		{
			"unknown tool falls back",
			types.ToolCall{Name: "navigate"},
			types.ToolResult{Success: true},
			"Executed navigate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarizeAction(tt.call, tt.result))
		})
	}
}

func TestPhaseLabelVariesByRoundAndIntent(t *testing.T) {
	assert.Equal(t, "Reading the codebase...", phaseLabel(2, types.IntentSelfBuild))
	assert.Equal(t, "Thinking...", phaseLabel(1, types.IntentGeneral))
	assert.NotEqual(t, phaseLabel(1, types.IntentExternalBuild), phaseLabel(9, types.IntentExternalBuild))
}
