// Package events implements the per-conversation progress stream. The
// conversation loop publishes round-level events; live consumers (SSE
// handlers, CLIs) subscribe by conversation id. Delivery is best-effort:
// a slow subscriber drops events rather than stalling the turn.
package events

import (
	"sync"
	"time"

	"titan/internal/logging"
)

// Type enumerates the progress event kinds.
type Type string

const (
	TypeThinking   Type = "thinking"
	TypeToolStart  Type = "tool_start"
	TypeToolResult Type = "tool_result"
	TypeDone       Type = "done"
	TypeError      Type = "error"
	TypeAborted    Type = "aborted"
)

// Event is one progress notification. Events are timestamped so consumers
// can render them out-of-order safely.
type Event struct {
	Type      Type           `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const subscriberBuffer = 64

// Emitter fans events out to subscribers keyed by conversation id.
type Emitter struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers a listener for the conversation. The returned cancel
// function must be called to release the channel; after cancel the channel
// is closed.
func (e *Emitter) Subscribe(conversationID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	e.mu.Lock()
	if e.subs[conversationID] == nil {
		e.subs[conversationID] = make(map[int]chan Event)
	}
	id := e.nextID
	e.nextID++
	e.subs[conversationID][id] = ch
	e.mu.Unlock()

	logging.Events("subscribe: conversation=%s id=%d", conversationID, id)

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m, ok := e.subs[conversationID]; ok {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
			if len(m) == 0 {
				delete(e.subs, conversationID)
			}
		}
	}
	return ch, cancel
}

// Publish sends an event to every subscriber of the conversation without
// blocking. Subscribers with full buffers miss the event; consumers must
// tolerate gaps.
func (e *Emitter) Publish(conversationID string, typ Type, data map[string]any) {
	ev := Event{Type: typ, Data: data, Timestamp: time.Now()}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subs[conversationID] {
		select {
		case ch <- ev:
		default:
			logging.Events("dropped event %s for conversation=%s (slow subscriber)", typ, conversationID)
		}
	}
}

// SubscriberCount returns how many listeners a conversation has.
func (e *Emitter) SubscriberCount(conversationID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs[conversationID])
}
