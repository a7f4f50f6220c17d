package types

import "context"

// LLMClient is the inference contract the conversation loop depends on.
type LLMClient interface {
	// Invoke sends the full working message list with tool definitions and
	// returns the provider response. The loop never sees provider wire
	// formats, only this shape.
	Invoke(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Completer is the cheap single-shot completion contract used by the
// intent classifier escalation and title generation.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ToolExecutor performs a named side-effecting action. Implementations must
// never panic across this boundary; failures come back as Result.Success
// false with Error set.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any, caller Caller) ToolResult

	// Definitions returns the tool manifest for the given intent.
	Definitions(intent Intent) []ToolDefinition

	// IsPrivileged reports whether the named tool requires a privileged caller.
	IsPrivileged(name string) bool

	// IsContentTool reports whether the tool's purpose is returning file or
	// page content. Content tools get a larger result truncation budget.
	IsContentTool(name string) bool
}

// MessageStore persists conversations and messages.
type MessageStore interface {
	CreateConversation(ctx context.Context, userID, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	UpdateTitle(ctx context.Context, id, title string) error
	SetPinned(ctx context.Context, id string, pinned bool) error
	SetArchived(ctx context.Context, id string, archived bool) error

	// AppendMessage writes the row and bumps the conversation's message
	// count and last-message timestamp in the same transaction.
	AppendMessage(ctx context.Context, msg *Message) error

	// RecentMessages returns up to n rows newest-first. Callers reverse to
	// chronological order before building prompts.
	RecentMessages(ctx context.Context, conversationID string, n int) ([]Message, error)
}
