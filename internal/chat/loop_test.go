package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titan/internal/config"
	"titan/internal/events"
	"titan/internal/types"
)

func newTestLoop(llm *scriptedLLM, exec *mockExecutor) (*loop, *AbortRegistry, *events.Emitter) {
	aborts := NewAbortRegistry()
	emitter := events.NewEmitter()
	l := &loop{
		llm:         llm,
		executor:    exec,
		emitter:     emitter,
		aborts:      aborts,
		cfg:         config.Default().Chat,
		temperature: 0.7,
	}
	return l, aborts, emitter
}

func newTurn(intent types.Intent) *turnState {
	st := &turnState{
		conversationID: "conv-1",
		caller:         types.Caller{UserID: "u1"},
		intent:         intent,
		working:        systemMessages(intent),
	}
	st.working = append(st.working, types.TextMessage(types.RoleUser, "hello"))
	return st
}

func TestLoopRunsCannedScript(t *testing.T) {
	// Two tool rounds then a final answer: three inference calls, three
	// tool executions total.
	llm := &scriptedLLM{responses: []*types.ChatResponse{
		toolResponse(
			types.ToolCall{ID: "a", Name: "list_files", Args: map[string]any{}},
			types.ToolCall{ID: "b", Name: "read_file", Args: map[string]any{"path": "main.go"}},
		),
		toolResponse(
			types.ToolCall{ID: "c", Name: "read_file", Args: map[string]any{"path": "go.mod"}},
		),
		textResponse("All done."),
	}}
	exec := newMockExecutor()
	l, _, _ := newTestLoop(llm, exec)

	result := l.run(context.Background(), newTurn(types.IntentGeneral))

	assert.Equal(t, "All done.", result.Text)
	assert.Equal(t, 3, llm.callCount())
	assert.Equal(t, []string{"list_files", "read_file", "read_file"}, exec.executedTools())
	assert.Len(t, result.Actions, 3)
	assert.False(t, result.Aborted)
}

func TestLoopToolResultOrderMatchesStartOrder(t *testing.T) {
	llm := &scriptedLLM{responses: []*types.ChatResponse{
		toolResponse(
			types.ToolCall{ID: "1", Name: "list_files", Args: map[string]any{}},
			types.ToolCall{ID: "2", Name: "web_search", Args: map[string]any{"query": "x"}},
			types.ToolCall{ID: "3", Name: "read_file", Args: map[string]any{"path": "a"}},
		),
		textResponse("done"),
	}}
	exec := newMockExecutor()
	l, _, emitter := newTestLoop(llm, exec)

	ch, cancel := emitter.Subscribe("conv-1")
	defer cancel()

	l.run(context.Background(), newTurn(types.IntentGeneral))

	var starts, results []string
	for len(ch) > 0 {
		ev := <-ch
		switch ev.Type {
		case events.TypeToolStart:
			starts = append(starts, ev.Data["tool"].(string))
		case events.TypeToolResult:
			results = append(results, ev.Data["tool"].(string))
		}
	}
	require.Equal(t, []string{"list_files", "web_search", "read_file"}, starts)
	assert.Equal(t, starts, results)
}

func TestLoopRoundCapReturnsNonEmptyText(t *testing.T) {
	// Every scripted response requests another tool call; the loop must
	// still terminate with real text via the final tool-free call.
	var responses []*types.ChatResponse
	for i := 0; i < 20; i++ {
		responses = append(responses, toolResponse(
			types.ToolCall{ID: "x", Name: "list_files", Args: map[string]any{}},
		))
	}
	llm := &scriptedLLM{responses: responses}
	exec := newMockExecutor()
	l, _, _ := newTestLoop(llm, exec)

	result := l.run(context.Background(), newTurn(types.IntentGeneral))

	assert.NotEmpty(t, result.Text)
	// MaxRounds inference calls plus the final tool-free one.
	assert.Equal(t, l.cfg.MaxRounds+1, llm.callCount())
	assert.Len(t, exec.executedTools(), l.cfg.MaxRounds)
}

func TestLoopAbortBetweenToolCalls(t *testing.T) {
	llm := &scriptedLLM{responses: []*types.ChatResponse{
		toolResponse(
			types.ToolCall{ID: "1", Name: "list_files", Args: map[string]any{}},
			types.ToolCall{ID: "2", Name: "read_file", Args: map[string]any{"path": "a"}},
			types.ToolCall{ID: "3", Name: "read_file", Args: map[string]any{"path": "b"}},
		),
	}}
	exec := newMockExecutor()
	l, aborts, _ := newTestLoop(llm, exec)

	// Abort lands after the first execution: call 2 and 3 never run.
	exec.onExecute = func(name string) {
		if name == "list_files" {
			aborts.Abort("conv-1")
		}
	}

	result := l.run(context.Background(), newTurn(types.IntentGeneral))

	assert.True(t, result.Aborted)
	assert.Equal(t, abortedText, result.Text)
	assert.Equal(t, []string{"list_files"}, exec.executedTools())
	// Call 1's record is kept.
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "list_files", result.Actions[0].Tool)
}

func TestLoopRefusalRetriedWithForcedListTool(t *testing.T) {
	llm := &scriptedLLM{responses: []*types.ChatResponse{
		textResponse("I'm sorry, but I don't have access to your files."),
		toolResponse(types.ToolCall{ID: "1", Name: "list_files", Args: map[string]any{}}),
		textResponse("Here is what I found."),
	}}
	exec := newMockExecutor()
	l, _, _ := newTestLoop(llm, exec)

	result := l.run(context.Background(), newTurn(types.IntentGeneral))

	assert.Equal(t, "Here is what I found.", result.Text)
	require.Equal(t, 3, llm.callCount())
	// The retry after the lockout refusal forces the listing tool.
	assert.Equal(t, "list_files", llm.calls[1].ToolChoice)
	assert.Equal(t, []string{"list_files"}, exec.executedTools())
}

func TestLoopRefusalRetriesAreCapped(t *testing.T) {
	refusal := "I cannot help with that request."
	llm := &scriptedLLM{responses: []*types.ChatResponse{
		textResponse(refusal),
		textResponse(refusal),
		textResponse(refusal),
		textResponse(refusal),
	}}
	exec := newMockExecutor()
	l, _, _ := newTestLoop(llm, exec)

	result := l.run(context.Background(), newTurn(types.IntentGeneral))

	// After the retry budget, the still-refusing text is accepted.
	assert.Equal(t, refusal, result.Text)
	assert.Equal(t, l.cfg.MaxRefusalRetries+1, llm.callCount())
}

func TestLoopPrivilegedToolDeniedWithoutExecution(t *testing.T) {
	llm := &scriptedLLM{responses: []*types.ChatResponse{
		toolResponse(types.ToolCall{ID: "1", Name: "delete_credential", Args: map[string]any{"name": "k"}}),
		textResponse("done"),
	}}
	exec := newMockExecutor()
	exec.privileged["delete_credential"] = true
	l, _, _ := newTestLoop(llm, exec)

	result := l.run(context.Background(), newTurn(types.IntentGeneral))

	assert.Empty(t, exec.executedTools())
	require.Len(t, result.Actions, 1)
	assert.False(t, result.Actions[0].Success)
	assert.Contains(t, result.Actions[0].Summary, "permission denied")
}

func TestLoopEmptyResponsesFallBackToApology(t *testing.T) {
	empty := &types.ChatResponse{}
	llm := &scriptedLLM{responses: []*types.ChatResponse{
		empty, empty, empty, empty, // initial try + 3 trimmed retries
		empty, // final tool-free call
	}}
	exec := newMockExecutor()
	l, _, _ := newTestLoop(llm, exec)

	result := l.run(context.Background(), newTurn(types.IntentGeneral))

	assert.Equal(t, apologyText, result.Text)
}

func TestLoopBuildIntentForcesFirstReadAndStrongTier(t *testing.T) {
	llm := &scriptedLLM{responses: []*types.ChatResponse{
		toolResponse(types.ToolCall{ID: "1", Name: "list_files", Args: map[string]any{}}),
		textResponse("scaffolded"),
	}}
	exec := newMockExecutor()
	l, _, _ := newTestLoop(llm, exec)

	l.run(context.Background(), newTurn(types.IntentExternalBuild))

	require.GreaterOrEqual(t, llm.callCount(), 2)
	assert.Equal(t, "list_files", llm.calls[0].ToolChoice)
	assert.Equal(t, types.TierStrong, llm.calls[0].Tier)
	// The override is one-shot.
	assert.Equal(t, types.ToolChoiceAuto, llm.calls[1].ToolChoice)
}

func TestSanitizeToolCallID(t *testing.T) {
	assert.Equal(t, "call_abc-123", sanitizeToolCallID("call_abc-123"))
	assert.Equal(t, "call_a_b_c_", sanitizeToolCallID("call/a:b c!"))
}
