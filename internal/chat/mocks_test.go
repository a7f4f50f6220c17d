package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"titan/internal/types"
)

// scriptedLLM replays a fixed sequence of responses and records every
// request it receives.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*types.ChatResponse
	errs      []error
	calls     []types.ChatRequest
	index     int
}

func (s *scriptedLLM) Invoke(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	i := s.index
	s.index++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return textResponse("I've run out of things to say."), nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func textResponse(text string) *types.ChatResponse {
	return &types.ChatResponse{Choices: []types.Choice{{
		Message:      types.TextMessage(types.RoleAssistant, text),
		FinishReason: "stop",
	}}}
}

func toolResponse(calls ...types.ToolCall) *types.ChatResponse {
	return &types.ChatResponse{Choices: []types.Choice{{
		Message:      types.ChatMessage{Role: types.RoleAssistant, ToolCalls: calls},
		FinishReason: "tool_calls",
	}}}
}

// mockExecutor returns canned results per tool name and records execution
// order.
type mockExecutor struct {
	mu       sync.Mutex
	results  map[string]types.ToolResult
	executed []string

	privileged map[string]bool
	content    map[string]bool
	defs       []types.ToolDefinition

	// onExecute runs after each execution, outside the lock. Tests use it
	// to trigger aborts mid-batch.
	onExecute func(name string)
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		results:    make(map[string]types.ToolResult),
		privileged: make(map[string]bool),
		content:    make(map[string]bool),
		defs: []types.ToolDefinition{
			{Name: "list_files", InputSchema: map[string]any{"type": "object"}},
		},
	}
}

func (m *mockExecutor) Execute(ctx context.Context, name string, args map[string]any, caller types.Caller) types.ToolResult {
	m.mu.Lock()
	m.executed = append(m.executed, name)
	result, ok := m.results[name]
	m.mu.Unlock()

	if m.onExecute != nil {
		m.onExecute(name)
	}
	if ok {
		return result
	}
	return types.ToolResult{Success: true, Data: map[string]any{"ok": true}}
}

func (m *mockExecutor) Definitions(intent types.Intent) []types.ToolDefinition { return m.defs }
func (m *mockExecutor) IsPrivileged(name string) bool                          { return m.privileged[name] }
func (m *mockExecutor) IsContentTool(name string) bool                         { return m.content[name] }

func (m *mockExecutor) executedTools() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.executed))
	copy(out, m.executed)
	return out
}

// memoryStore is an in-memory types.MessageStore.
type memoryStore struct {
	mu            sync.Mutex
	conversations map[string]*types.Conversation
	messages      map[string][]types.Message
	nextID        int

	failAppend bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		conversations: make(map[string]*types.Conversation),
		messages:      make(map[string][]types.Message),
	}
}

func (m *memoryStore) CreateConversation(ctx context.Context, userID, title string) (*types.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	conv := &types.Conversation{
		ID:        fmt.Sprintf("conv-%d", m.nextID),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now(),
	}
	m.conversations[conv.ID] = conv
	return conv, nil
}

func (m *memoryStore) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return conv, nil
}

func (m *memoryStore) ListConversations(ctx context.Context, userID string) ([]types.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Conversation
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *memoryStore) UpdateTitle(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[id]; ok {
		c.Title = title
	}
	return nil
}

func (m *memoryStore) SetPinned(ctx context.Context, id string, pinned bool) error     { return nil }
func (m *memoryStore) SetArchived(ctx context.Context, id string, archived bool) error { return nil }

func (m *memoryStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend {
		return fmt.Errorf("store unavailable")
	}
	m.nextID++
	msg.ID = fmt.Sprintf("msg-%d", m.nextID)
	msg.CreatedAt = time.Now()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	if c, ok := m.conversations[msg.ConversationID]; ok {
		c.MessageCount++
		c.LastMessageAt = msg.CreatedAt
	}
	return nil
}

func (m *memoryStore) RecentMessages(ctx context.Context, conversationID string, n int) ([]types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[conversationID]
	var visible []types.Message
	for _, msg := range all {
		if msg.Role == types.RoleUser || msg.Role == types.RoleAssistant {
			visible = append(visible, msg)
		}
	}
	// Newest first, like the real store.
	var out []types.Message
	for i := len(visible) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, visible[i])
	}
	return out, nil
}

func (m *memoryStore) messagesByRole(conversationID, role string) []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Message
	for _, msg := range m.messages[conversationID] {
		if msg.Role == role {
			out = append(out, msg)
		}
	}
	return out
}
