package llm

import (
	"encoding/json"
	"fmt"

	"titan/internal/types"
)

// Wire structs for the OpenAI-compatible chat completions protocol.

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"` // string or []wireContentPart
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string         `json:"role"`
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func toWireMessages(msgs []types.ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       m.Role,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		if len(m.Parts) > 0 {
			parts := make([]wireContentPart, 0, len(m.Parts))
			for _, p := range m.Parts {
				switch p.Type {
				case "image_url":
					parts = append(parts, wireContentPart{Type: "image_url", ImageURL: &wireImageURL{URL: p.ImageURL}})
				default:
					parts = append(parts, wireContentPart{Type: "text", Text: p.Text})
				}
			}
			wm.Content = parts
		} else {
			wm.Content = m.Content
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Args)
			if err != nil {
				args = []byte("{}")
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []types.ToolDefinition) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

// toWireToolChoice maps the generic tool choice to the provider encoding:
// "auto"/"none" pass through, a tool name becomes a forced function choice.
func toWireToolChoice(choice string) any {
	switch choice {
	case "":
		return nil
	case types.ToolChoiceAuto, types.ToolChoiceNone:
		return choice
	default:
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": choice},
		}
	}
}

func fromWireResponse(wire *wireResponse) (*types.ChatResponse, error) {
	resp := &types.ChatResponse{
		Usage: types.Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		},
	}
	for _, wc := range wire.Choices {
		msg := types.ChatMessage{
			Role:    wc.Message.Role,
			Content: wc.Message.Content,
		}
		for _, tc := range wc.Message.ToolCalls {
			if tc.Type != "" && tc.Type != "function" {
				continue
			}
			var args map[string]any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return nil, fmt.Errorf("failed to unmarshal arguments for tool %s: %w", tc.Function.Name, err)
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: args,
			})
		}
		resp.Choices = append(resp.Choices, types.Choice{
			Message:      msg,
			FinishReason: wc.FinishReason,
		})
	}
	return resp, nil
}
