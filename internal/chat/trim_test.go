package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titan/internal/types"
)

func TestTruncateResult(t *testing.T) {
	assert.Equal(t, "short", truncateResult("short", 100))
	assert.Equal(t, "exact", truncateResult("exact", 5))

	long := strings.Repeat("x", 500)
	got := truncateResult(long, 100)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("x", 100)))
	assert.Contains(t, got, "truncated, 100 of 500 bytes")
}

func TestTrimForRetryFirstAttemptTruncatesToolResults(t *testing.T) {
	msgs := []types.ChatMessage{
		types.TextMessage(types.RoleSystem, "sys"),
		types.TextMessage(types.RoleUser, "hi"),
		{Role: types.RoleTool, Content: strings.Repeat("y", 5_000), ToolCallID: "1"},
	}

	out := trimForRetry(msgs, 1)

	require.Len(t, out, 3)
	assert.Less(t, len(out[2].Content), 1_200)
	// The input is untouched.
	assert.Len(t, msgs[2].Content, 5_000)
}

func TestTrimForRetrySecondAttemptKeepsSystemAndTail(t *testing.T) {
	msgs := []types.ChatMessage{
		types.TextMessage(types.RoleSystem, "sys"),
	}
	for i := 0; i < 20; i++ {
		msgs = append(msgs, types.TextMessage(types.RoleUser, "turn"))
		msgs = append(msgs, types.TextMessage(types.RoleAssistant, "reply"))
	}

	out := trimForRetry(msgs, 2)

	require.NotEmpty(t, out)
	assert.Equal(t, types.RoleSystem, out[0].Role)
	assert.LessOrEqual(t, len(out), 1+retryKeepTail)
}

func TestTrimForRetryDropsDanglingToolResults(t *testing.T) {
	msgs := []types.ChatMessage{
		types.TextMessage(types.RoleSystem, "sys"),
	}
	for i := 0; i < 10; i++ {
		msgs = append(msgs, types.TextMessage(types.RoleUser, "u"))
	}
	// A tool result whose assistant tool-call message falls outside the
	// kept tail must not lead the trimmed list.
	tail := []types.ChatMessage{
		{Role: types.RoleTool, Content: "result", ToolCallID: "1"},
		types.TextMessage(types.RoleAssistant, "a"),
		types.TextMessage(types.RoleUser, "u"),
		types.TextMessage(types.RoleAssistant, "a"),
		types.TextMessage(types.RoleUser, "u"),
		types.TextMessage(types.RoleAssistant, "a"),
	}
	msgs = append(msgs, tail...)

	out := trimForRetry(msgs, 2)

	require.NotEmpty(t, out)
	for _, m := range out {
		if m.Role != types.RoleSystem {
			assert.NotEqual(t, types.RoleTool, m.Role)
			break
		}
	}
}

func TestCompressOldToolResults(t *testing.T) {
	big := strings.Repeat("z", 2_000)
	var msgs []types.ChatMessage
	for i := 0; i < 12; i++ {
		msgs = append(msgs, types.ChatMessage{Role: types.RoleTool, Content: big, ToolCallID: "x"})
	}

	out := compressOldToolResults(msgs)

	// Older entries shrink to previews; the recent tail keeps full detail.
	for i := 0; i < len(out)-compressKeepRecent; i++ {
		assert.Contains(t, out[i].Content, "older result compressed")
	}
	for i := len(out) - compressKeepRecent; i < len(out); i++ {
		assert.Equal(t, big, out[i].Content)
	}
	// Pure function: input untouched.
	assert.Equal(t, big, msgs[0].Content)
}
