package chat

import (
	"fmt"

	"titan/internal/types"
)

// Context budget policy. All functions here are pure: they take a working
// message list and return a new one, so the policy is testable in isolation.

// truncateResult caps a tool result payload, appending a marker so the
// model knows content was cut.
func truncateResult(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + fmt.Sprintf("\n...[truncated, %d of %d bytes shown]", limit, len(text))
}

// retryTrimToolResultLimit is the harder cap applied to tool results on the
// first empty-response retry.
const retryTrimToolResultLimit = 1_000

// retryKeepTail is how many trailing messages survive the aggressive trim.
const retryKeepTail = 6

// trimForRetry shrinks the working list before an empty-response retry.
// Attempt 1 truncates long tool results; attempt 2+ drops everything but
// the system prompt(s) and the last few turns.
func trimForRetry(msgs []types.ChatMessage, attempt int) []types.ChatMessage {
	if attempt <= 1 {
		out := make([]types.ChatMessage, len(msgs))
		copy(out, msgs)
		for i := range out {
			if out[i].Role == types.RoleTool {
				out[i].Content = truncateResult(out[i].Content, retryTrimToolResultLimit)
			}
		}
		return out
	}

	var system []types.ChatMessage
	var rest []types.ChatMessage
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	if len(rest) > retryKeepTail {
		rest = rest[len(rest)-retryKeepTail:]
	}
	// A dangling tool message without its assistant tool-call message makes
	// the request incoherent; drop leading tool results.
	for len(rest) > 0 && rest[0].Role == types.RoleTool {
		rest = rest[1:]
	}
	out := make([]types.ChatMessage, 0, len(system)+len(rest))
	out = append(out, system...)
	out = append(out, rest...)
	return out
}

// compressPreviewLimit is the preview size older tool results shrink to.
const compressPreviewLimit = 200

// compressKeepRecent is how many trailing messages keep full tool results.
const compressKeepRecent = 8

// compressOldToolResults shrinks tool results outside the recent tail to
// short previews. Applied deep into build turns, where context budget
// matters more than retained detail.
func compressOldToolResults(msgs []types.ChatMessage) []types.ChatMessage {
	out := make([]types.ChatMessage, len(msgs))
	copy(out, msgs)
	cutoff := len(out) - compressKeepRecent
	for i := 0; i < cutoff; i++ {
		if out[i].Role != types.RoleTool {
			continue
		}
		if len(out[i].Content) <= compressPreviewLimit {
			continue
		}
		out[i].Content = out[i].Content[:compressPreviewLimit] + "\n...[older result compressed]"
	}
	return out
}
