package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"titan/internal/config"
	"titan/internal/events"
	"titan/internal/logging"
	"titan/internal/types"
)

// loop drives the rounds of one turn: inference, tool execution, recovery.
// One loop value per Service; per-turn state lives in turnState.
type loop struct {
	llm      types.LLMClient
	executor types.ToolExecutor
	emitter  *events.Emitter
	aborts   *AbortRegistry
	cfg      config.ChatConfig

	temperature float64
}

// turnState is the in-flight state of one send call. Never persisted.
type turnState struct {
	conversationID string
	caller         types.Caller
	intent         types.Intent

	working []types.ChatMessage
	actions []types.ActionRecord

	// forcedTool is a one-shot tool choice override for the next inference
	// call, cleared after use.
	forcedTool string

	refusalRetries int
}

// turnResult is what the loop hands back to the service.
type turnResult struct {
	Text      string
	ToolCalls []types.ToolCall
	Actions   []types.ActionRecord
	Aborted   bool
}

var toolCallIDPattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeToolCallID restricts call IDs to [A-Za-z0-9_-]. Some providers
// emit IDs that downstream proxies reject.
func sanitizeToolCallID(id string) string {
	return toolCallIDPattern.ReplaceAllString(id, "_")
}

// run executes rounds until a terminal condition. The returned text is
// always non-empty.
func (l *loop) run(ctx context.Context, st *turnState) turnResult {
	tools := l.executor.Definitions(st.intent)

	// The first action of a build turn is always a context-gathering read.
	if st.intent.IsBuild() {
		st.forcedTool = "list_files"
	}

	var allCalls []types.ToolCall

	for round := 1; round <= l.cfg.MaxRounds; round++ {
		l.emitter.Publish(st.conversationID, events.TypeThinking, map[string]any{
			"label": phaseLabel(round, st.intent),
			"round": round,
		})
		logging.Chat("round %d: conversation=%s intent=%s", round, st.conversationID, st.intent)

		choice, err := l.invokeWithRecovery(ctx, st, tools)
		if err != nil {
			// Recovery already exhausted every option, including the final
			// tool-free call.
			logging.Chat("round %d: unrecoverable inference failure: %v", round, err)
			return turnResult{Text: apologyText, Actions: st.actions, ToolCalls: allCalls}
		}
		if choice == nil {
			// Malformed tool invocation: corrective note injected, spend a
			// round on the retry.
			continue
		}

		if len(choice.Message.ToolCalls) == 0 {
			text := strings.TrimSpace(choice.Message.Content)
			if kind := detectRefusal(text); kind != refusalNone && st.refusalRetries < l.cfg.MaxRefusalRetries {
				st.refusalRetries++
				logging.Chat("round %d: refusal detected (kind=%d), retry %d/%d",
					round, kind, st.refusalRetries, l.cfg.MaxRefusalRetries)
				st.working = append(st.working, types.TextMessage(types.RoleSystem, correctionFor(kind)))
				if kind == refusalLockout {
					st.forcedTool = "list_files"
				}
				continue
			}
			if text == "" {
				text = apologyText
			}
			return turnResult{Text: text, Actions: st.actions, ToolCalls: allCalls}
		}

		// Tool round: sanitize IDs, append the assistant message, execute
		// in emitted order.
		calls := make([]types.ToolCall, len(choice.Message.ToolCalls))
		copy(calls, choice.Message.ToolCalls)
		for i := range calls {
			calls[i].ID = sanitizeToolCallID(calls[i].ID)
		}
		assistantMsg := choice.Message
		assistantMsg.ToolCalls = calls
		st.working = append(st.working, assistantMsg)
		allCalls = append(allCalls, calls...)

		if aborted := l.executeCalls(ctx, st, calls); aborted {
			return turnResult{Text: abortedText, Actions: st.actions, ToolCalls: allCalls, Aborted: true}
		}

		if st.intent.IsBuild() && round >= l.cfg.CompressAfterRound {
			st.working = compressOldToolResults(st.working)
		}
	}

	// Round budget exhausted: one final tool-free call so the user still
	// gets a real answer.
	logging.Chat("round budget exhausted: conversation=%s, final tool-free call", st.conversationID)
	text := l.finalToolFreeCall(ctx, st)
	return turnResult{Text: text, Actions: st.actions, ToolCalls: allCalls}
}

// invokeWithRecovery performs one inference call with the empty-response
// retry ladder. Returns (nil, nil) when a malformed tool invocation was
// handled by injecting a corrective note.
func (l *loop) invokeWithRecovery(ctx context.Context, st *turnState, tools []types.ToolDefinition) (*types.Choice, error) {
	req := types.ChatRequest{
		Messages:    st.working,
		Tools:       tools,
		ToolChoice:  types.ToolChoiceAuto,
		Temperature: l.temperature,
		Tier:        l.tierFor(st.intent, tools),
	}
	if st.forcedTool != "" {
		req.ToolChoice = st.forcedTool
		st.forcedTool = ""
	}

	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxEmptyRetries; attempt++ {
		if attempt > 0 {
			req.Messages = trimForRetry(st.working, attempt)
			logging.Chat("empty-response retry %d/%d with trimmed context (%d messages)",
				attempt, l.cfg.MaxEmptyRetries, len(req.Messages))
		}

		resp, err := l.llm.Invoke(ctx, req)
		if err != nil {
			if isMalformedToolCall(err) {
				st.working = append(st.working, types.TextMessage(types.RoleSystem, malformedToolNote))
				return nil, nil
			}
			lastErr = err
			continue
		}
		choice := resp.First()
		if choice == nil {
			lastErr = ErrEmptyResponse
			continue
		}
		if choice.Message.Content == "" && len(choice.Message.ToolCalls) == 0 {
			if choice.FinishReason == "tool_calls" {
				st.working = append(st.working, types.TextMessage(types.RoleSystem, malformedToolNote))
				return nil, nil
			}
			lastErr = ErrEmptyResponse
			continue
		}
		return choice, nil
	}

	// Retries exhausted: one last tool-free attempt before giving up.
	text := l.finalToolFreeCall(ctx, st)
	if text == apologyText {
		return nil, fmt.Errorf("inference recovery exhausted: %w", lastErr)
	}
	return &types.Choice{Message: types.TextMessage(types.RoleAssistant, text), FinishReason: "stop"}, nil
}

// finalToolFreeCall asks for a plain answer with no tools and a tightly
// trimmed context. Falls back to the synthesized apology.
func (l *loop) finalToolFreeCall(ctx context.Context, st *turnState) string {
	req := types.ChatRequest{
		Messages:    trimForRetry(st.working, 2),
		ToolChoice:  types.ToolChoiceNone,
		Temperature: l.temperature,
		Tier:        l.tierFor(st.intent, nil),
	}
	resp, err := l.llm.Invoke(ctx, req)
	if err == nil {
		if choice := resp.First(); choice != nil {
			if text := strings.TrimSpace(choice.Message.Content); text != "" {
				return text
			}
		}
	}
	if err != nil {
		logging.Chat("final tool-free call failed: %v", err)
	}
	return apologyText
}

// executeCalls runs the round's tool calls sequentially in emitted order.
// Returns true when an abort was observed; calls after the abort point are
// never executed.
func (l *loop) executeCalls(ctx context.Context, st *turnState, calls []types.ToolCall) (aborted bool) {
	for _, call := range calls {
		if l.aborts.Aborted(st.conversationID) {
			logging.Chat("abort observed before tool %s: conversation=%s", call.Name, st.conversationID)
			l.emitter.Publish(st.conversationID, events.TypeAborted, map[string]any{
				"tool": call.Name,
			})
			return true
		}

		l.emitter.Publish(st.conversationID, events.TypeToolStart, map[string]any{
			"tool": call.Name,
			"id":   call.ID,
		})

		var result types.ToolResult
		if l.executor.IsPrivileged(call.Name) && !st.caller.Privileged {
			// Synthetic denial: the tool is never invoked. Deterministic,
			// never retried.
			result = types.ToolResult{
				Success: false,
				Error:   fmt.Sprintf("permission denied: %s requires elevated access", call.Name),
			}
			logging.Chat("privileged tool %s denied for user=%s", call.Name, st.caller.UserID)
		} else {
			result = l.executor.Execute(ctx, call.Name, call.Args, st.caller)
		}

		summary := summarizeAction(call, result)
		st.actions = append(st.actions, types.ActionRecord{
			Tool:    call.Name,
			Success: result.Success,
			Summary: summary,
		})
		l.emitter.Publish(st.conversationID, events.TypeToolResult, map[string]any{
			"tool":    call.Name,
			"id":      call.ID,
			"success": result.Success,
			"summary": summary,
		})

		limit := l.cfg.ToolResultLimit
		if l.executor.IsContentTool(call.Name) {
			limit = l.cfg.ContentResultLimit
		}
		st.working = append(st.working, types.ChatMessage{
			Role:       types.RoleTool,
			Content:    truncateResult(encodeResult(result), limit),
			ToolCallID: call.ID,
			Name:       call.Name,
		})

		if !result.Success {
			if hint := hintFor(call.Name, result.Error); hint != "" {
				st.working = append(st.working, types.TextMessage(types.RoleSystem, hint))
			}
		}
	}
	return false
}

// tierFor picks the model tier: build turns always get the strong tier
// because code-quality regressions cost more than the price delta; chat
// with no tools runs on the fast tier.
func (l *loop) tierFor(intent types.Intent, tools []types.ToolDefinition) types.ModelTier {
	if intent.IsBuild() {
		return types.TierStrong
	}
	if len(tools) == 0 {
		return types.TierFast
	}
	return types.TierDefault
}

// encodeResult serializes a tool result for the model.
func encodeResult(result types.ToolResult) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"unserializable result: %v"}`, err)
	}
	return string(data)
}

// isMalformedToolCall reports whether an invoke error came from unparseable
// tool-call arguments rather than a transport fault.
func isMalformedToolCall(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unmarshal arguments")
}
