package chat

import (
	"sync"

	"titan/internal/logging"
)

// AbortRegistry holds per-conversation abort flags. The loop polls the flag
// immediately before each tool execution; cancellation is forward-only and
// never rolls back already-executed side effects.
type AbortRegistry struct {
	mu    sync.Mutex
	flags map[string]bool
}

// NewAbortRegistry creates an empty registry.
func NewAbortRegistry() *AbortRegistry {
	return &AbortRegistry{flags: make(map[string]bool)}
}

// Abort marks the conversation's in-flight turn for cancellation.
func (a *AbortRegistry) Abort(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flags[conversationID] = true
	logging.Chat("abort requested: conversation=%s", conversationID)
}

// Aborted reports whether an abort is pending for the conversation.
func (a *AbortRegistry) Aborted(conversationID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flags[conversationID]
}

// Clear resets the flag. Called at the start and end of every turn so a
// stale abort never cancels the next send.
func (a *AbortRegistry) Clear(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.flags, conversationID)
}
