// Package chat implements the conversation core: the Send entry point, the
// round-bounded inference+tool loop, and the recovery heuristics around it.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"titan/internal/config"
	"titan/internal/deferred"
	"titan/internal/events"
	"titan/internal/intent"
	"titan/internal/logging"
	"titan/internal/safety"
	"titan/internal/types"
)

// SendRequest is one incoming user turn.
type SendRequest struct {
	// ConversationID is optional; empty creates a new conversation.
	ConversationID string
	UserID         string
	Text           string
	Images         []string // image URLs attached to the user message
	Privileged     bool
}

// SendResult is the outcome of a completed turn.
type SendResult struct {
	ConversationID string
	Text           string
	Actions        []types.ActionRecord
}

// Service drives turns end to end: safety gates, context loading, the
// round loop, deferred flush, redaction, persistence, events.
type Service struct {
	store      types.MessageStore
	llm        types.LLMClient
	completer  types.Completer // optional; titles
	classifier *intent.Classifier
	gate       *safety.Gate
	emitter    *events.Emitter
	aborts     *AbortRegistry
	stage      *deferred.Stage
	cfg        config.ChatConfig

	loop *loop

	// sendMu serializes concurrent sends on the same conversation so one
	// turn never reads another's half-committed history.
	sendMu   sync.Mutex
	sendLock map[string]*sync.Mutex
}

// NewService wires the conversation core together. completer may be nil.
func NewService(
	store types.MessageStore,
	llmClient types.LLMClient,
	completer types.Completer,
	executor types.ToolExecutor,
	gate *safety.Gate,
	emitter *events.Emitter,
	aborts *AbortRegistry,
	stage *deferred.Stage,
	cfg config.ChatConfig,
	temperature float64,
) *Service {
	return &Service{
		store:      store,
		llm:        llmClient,
		completer:  completer,
		classifier: intent.NewClassifier(completer),
		gate:       gate,
		emitter:    emitter,
		aborts:     aborts,
		stage:      stage,
		cfg:        cfg,
		loop: &loop{
			llm:         llmClient,
			executor:    executor,
			emitter:     emitter,
			aborts:      aborts,
			cfg:         cfg,
			temperature: temperature,
		},
		sendLock: make(map[string]*sync.Mutex),
	}
}

// Emitter exposes the progress stream for transports.
func (s *Service) Emitter() *events.Emitter { return s.emitter }

// Abort requests cancellation of the conversation's in-flight turn.
func (s *Service) Abort(conversationID string) {
	s.aborts.Abort(conversationID)
}

// Send runs one complete turn. Exactly one assistant message is persisted
// per call; internal failures come back as friendly text, never raw errors.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	caller := types.Caller{UserID: req.UserID, Privileged: req.Privileged}

	// Gates run before any LLM call or persistence.
	text, err := s.gate.Check(caller, req.Text)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("empty message")
	}

	conv, created, err := s.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	unlock := s.lockConversation(conv.ID)
	defer unlock()

	s.aborts.Clear(conv.ID)
	defer s.aborts.Clear(conv.ID)

	history, err := s.loadHistory(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	userMsg := &types.Message{
		ConversationID: conv.ID,
		UserID:         req.UserID,
		Role:           types.RoleUser,
		Content:        text,
		Parts:          imageParts(text, req.Images),
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	turnIntent := s.classifier.Classify(ctx, text, history)

	selfBuild := turnIntent == types.IntentSelfBuild
	if selfBuild {
		if err := s.stage.Enable(conv.ID); err != nil {
			// Another self-modification turn holds the stage; run this one
			// as an external build so writes land directly.
			logging.Chat("deferred stage unavailable, downgrading intent: %v", err)
			turnIntent = types.IntentExternalBuild
			selfBuild = false
		} else {
			// Disable on every exit path; Flush below also disables, and
			// Disable after Flush is a no-op.
			defer s.stage.Disable()
		}
	}

	st := &turnState{
		conversationID: conv.ID,
		caller:         caller,
		intent:         turnIntent,
		working:        s.buildWorking(turnIntent, history, userMsg),
	}

	result := s.loop.run(ctx, st)
	finalText := safety.Redact(result.Text)

	if selfBuild {
		if result.Aborted {
			s.stage.Disable()
		} else {
			report := s.stage.Flush()
			logging.Chat("deferred flush: conversation=%s files=%d errors=%d",
				conv.ID, report.FileCount, len(report.Errors))
			if report.FileCount > 0 {
				finalText += fmt.Sprintf("\n\nApplied %d file change(s).", report.FileCount)
			}
			for _, ferr := range report.Errors {
				st.actions = append(st.actions, types.ActionRecord{
					Tool:    "modify_file",
					Success: false,
					Summary: fmt.Sprintf("flush failed: %v", ferr),
				})
			}
			result.Actions = st.actions
		}
	}

	assistantMsg := &types.Message{
		ConversationID: conv.ID,
		UserID:         req.UserID,
		Role:           types.RoleAssistant,
		Content:        finalText,
		ToolCalls:      result.ToolCalls,
		Actions:        result.Actions,
	}
	if err := s.store.AppendMessage(ctx, assistantMsg); err != nil {
		// The conversation must not be left silently broken: try once to
		// save a user-visible error row instead.
		logging.Get(logging.CategoryChat).Error("failed to persist assistant message: %v", err)
		fallback := &types.Message{
			ConversationID: conv.ID,
			UserID:         req.UserID,
			Role:           types.RoleAssistant,
			Content:        apologyText,
		}
		if ferr := s.store.AppendMessage(ctx, fallback); ferr != nil {
			s.emitter.Publish(conv.ID, events.TypeError, map[string]any{"message": "failed to save response"})
			return nil, fmt.Errorf("failed to persist assistant message: %w", err)
		}
		finalText = apologyText
		result.Actions = nil
	}

	if result.Aborted {
		s.emitter.Publish(conv.ID, events.TypeAborted, map[string]any{"final": true})
	} else {
		s.emitter.Publish(conv.ID, events.TypeDone, map[string]any{
			"actions": len(result.Actions),
		})
	}

	if created {
		go s.generateTitle(conv.ID, text)
	}

	return &SendResult{
		ConversationID: conv.ID,
		Text:           finalText,
		Actions:        result.Actions,
	}, nil
}

// resolveConversation loads the existing conversation or creates one.
func (s *Service) resolveConversation(ctx context.Context, req SendRequest) (*types.Conversation, bool, error) {
	if req.ConversationID != "" {
		conv, err := s.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load conversation: %w", err)
		}
		return conv, false, nil
	}
	conv, err := s.store.CreateConversation(ctx, req.UserID, fallbackTitle(req.Text))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, true, nil
}

// lockConversation serializes sends per conversation id.
func (s *Service) lockConversation(id string) func() {
	s.sendMu.Lock()
	mu, ok := s.sendLock[id]
	if !ok {
		mu = &sync.Mutex{}
		s.sendLock[id] = mu
	}
	s.sendMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// loadHistory reads the recent window, newest-first from the store, and
// reverses it to chronological order.
func (s *Service) loadHistory(ctx context.Context, conversationID string) ([]types.Message, error) {
	msgs, err := s.store.RecentMessages(ctx, conversationID, s.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// buildWorking assembles the initial working message list: system prompts,
// chronological history, then the new user turn.
func (s *Service) buildWorking(turnIntent types.Intent, history []types.Message, userMsg *types.Message) []types.ChatMessage {
	working := systemMessages(turnIntent)
	for _, m := range history {
		working = append(working, types.ChatMessage{
			Role:    m.Role,
			Content: m.Content,
			Parts:   m.Parts,
		})
	}
	working = append(working, types.ChatMessage{
		Role:    types.RoleUser,
		Content: userMsg.Content,
		Parts:   userMsg.Parts,
	})
	return working
}

// generateTitle asks the cheap completion tier to name a new conversation.
// Best effort and async; the fallback title is already in place.
func (s *Service) generateTitle(conversationID, firstMessage string) {
	if s.completer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	prompt := fmt.Sprintf(
		"Write a title of at most five words for a conversation that starts with this message. Reply with only the title.\n\nMessage: %s",
		firstLine(firstMessage))
	title, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		logging.Chat("title generation failed: %v", err)
		return
	}
	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if title == "" {
		return
	}
	if err := s.store.UpdateTitle(ctx, conversationID, title); err != nil {
		logging.Chat("title update failed: %v", err)
	}
}

// fallbackTitle derives an immediate title from the first message.
func fallbackTitle(text string) string {
	line := firstLine(strings.TrimSpace(text))
	if len(line) > 48 {
		line = line[:48] + "..."
	}
	if line == "" {
		return "New conversation"
	}
	return line
}

// imageParts builds the multimodal parts for a user message with
// attachments. Text-only messages carry no parts.
func imageParts(text string, images []string) []types.ContentPart {
	if len(images) == 0 {
		return nil
	}
	parts := []types.ContentPart{{Type: "text", Text: text}}
	for _, u := range images {
		parts = append(parts, types.ContentPart{Type: "image_url", ImageURL: u})
	}
	return parts
}
