// Package types holds the shared wire types and interfaces for the Titan
// conversation core. Interfaces live here rather than in their implementing
// packages to break import cycles between the loop, the tool registry, and
// the LLM clients.
package types

import (
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Intent classifies the purpose of a turn. It selects the tool manifest
// and the system-prompt variant for every round of that turn.
type Intent string

const (
	// IntentSelfBuild means the user wants the platform's own code changed.
	IntentSelfBuild Intent = "self_build"

	// IntentExternalBuild means the user wants a new artifact built.
	IntentExternalBuild Intent = "external_build"

	// IntentGeneral is everything else.
	IntentGeneral Intent = "general"
)

// IsBuild reports whether the intent is either build variant.
func (i Intent) IsBuild() bool {
	return i == IntentSelfBuild || i == IntentExternalBuild
}

// ModelTier selects a model quality/cost class for an inference call.
// The tier-to-model mapping lives in config, not here.
type ModelTier string

const (
	// TierFast is the cheap tier: classification, titles, pure chat.
	TierFast ModelTier = "fast"

	// TierDefault is the cost-balanced tier for tool-enabled general chat.
	TierDefault ModelTier = "default"

	// TierStrong is the capable tier, always used for build intents.
	TierStrong ModelTier = "strong"
)

// ContentPart is one piece of a multimodal user message.
type ContentPart struct {
	Type     string `json:"type"` // "text" or "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ToolCall is a structured request from the model to invoke a named tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ChatMessage is one entry in the working message list for an inference call.
type ChatMessage struct {
	Role    string        `json:"role"`
	Content string        `json:"content"`
	Parts   []ContentPart `json:"parts,omitempty"` // user messages with attachments

	// Assistant messages that request tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// TextMessage builds a plain text message with the given role.
func TextMessage(role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content}
}

// ToolDefinition describes a tool the model may invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Tool choice values for ChatRequest. Anything else is taken as the name
// of a tool the model is forced to call.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)

// ChatRequest is the provider-independent inference request.
type ChatRequest struct {
	Messages    []ChatMessage
	Tools       []ToolDefinition
	ToolChoice  string
	Temperature float64
	Tier        ModelTier
}

// Choice is one completion candidate.
type Choice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage captures token accounting from the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the provider-independent inference response.
type ChatResponse struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// First returns the first choice, or nil if the response carries none.
func (r *ChatResponse) First() *Choice {
	if r == nil || len(r.Choices) == 0 {
		return nil
	}
	return &r.Choices[0]
}

// Caller identifies who initiated a turn, for gating and auditing.
type Caller struct {
	UserID     string
	Privileged bool
}

// ToolResult is the structured outcome of one tool execution.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ActionRecord summarizes one executed tool call for the persisted
// assistant message and the Send result.
type ActionRecord struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Summary string `json:"summary"`
}

// Conversation is the persisted conversation aggregate.
type Conversation struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Pinned        bool      `json:"pinned"`
	Archived      bool      `json:"archived"`
	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message is the persisted message row. Tool results are folded into the
// assistant row's Actions, never stored as standalone rows.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Parts          []ContentPart  `json:"parts,omitempty"`
	ToolCalls      []ToolCall     `json:"tool_calls,omitempty"`
	Actions        []ActionRecord `json:"actions,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
