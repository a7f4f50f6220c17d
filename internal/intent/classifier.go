// Package intent classifies the purpose of a turn. The result selects the
// tool manifest and system-prompt variant for every round of that turn.
package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"titan/internal/logging"
	"titan/internal/types"
)

// selfBuildMarkers indicate the user wants the platform's own code changed.
var selfBuildMarkers = []string{
	"your own code", "your codebase", "your source", "modify yourself",
	"improve yourself", "update your", "fix your", "change your code",
	"self-modify", "titan's code", "the platform's code", "this codebase",
}

// externalBuildMarkers indicate a new artifact or project.
var externalBuildMarkers = []string{
	"build me", "build a", "build an", "create a", "create an", "make me",
	"make a", "write me a", "write a script", "write an app", "scaffold",
	"generate a project", "new project", "set up a", "implement a",
	"landing page", "website for", "app that", "tool that", "bot that",
}

// generalMarkers indicate ordinary chat with strong confidence.
var generalMarkers = []string{
	"what is", "what are", "who is", "explain", "how does", "why does",
	"list my", "show my", "tell me about", "thanks", "thank you", "hello",
	"summarize", "translate",
}

// buildVerbs are weak build signals that need escalation when they appear
// without a stronger marker.
var buildVerbs = []string{"build", "create", "make", "code", "develop", "deploy", "fix", "add", "change", "modify", "refactor"}

// Classifier resolves a turn's intent. The Completer is optional; without
// it, ambiguous messages go straight to the default.
type Classifier struct {
	completer types.Completer
}

// NewClassifier builds a classifier. completer may be nil.
func NewClassifier(completer types.Completer) *Classifier {
	return &Classifier{completer: completer}
}

// Classify inspects the latest user message and recent history. Never blocks
// indefinitely and never asks for clarification: ambiguity resolves to
// external build, because acting on a guess beats stalling the turn.
func (c *Classifier) Classify(ctx context.Context, text string, history []types.Message) types.Intent {
	lower := strings.ToLower(text)

	for _, m := range selfBuildMarkers {
		if strings.Contains(lower, m) {
			logging.Intent("classified self_build by marker %q", m)
			return types.IntentSelfBuild
		}
	}
	for _, m := range externalBuildMarkers {
		if strings.Contains(lower, m) {
			logging.Intent("classified external_build by marker %q", m)
			return types.IntentExternalBuild
		}
	}

	hasBuildVerb := false
	for _, v := range buildVerbs {
		if containsWord(lower, v) {
			hasBuildVerb = true
			break
		}
	}
	if !hasBuildVerb {
		for _, m := range generalMarkers {
			if strings.HasPrefix(lower, m) || strings.Contains(lower, m) {
				logging.Intent("classified general by marker %q", m)
				return types.IntentGeneral
			}
		}
		if len(strings.Fields(lower)) <= 6 {
			// Short messages without build verbs are chat.
			logging.Intent("classified general: short message, no build verb")
			return types.IntentGeneral
		}
	}

	if c.completer != nil {
		if intent, ok := c.escalate(ctx, text, history); ok {
			return intent
		}
	}

	logging.Intent("ambiguous message, defaulting to external_build")
	return types.IntentExternalBuild
}

const escalationPrompt = `Classify the user's request into exactly one category. Reply with only the category word.

Categories:
- self_build: the user wants this assistant platform's own source code changed
- external_build: the user wants a new app, script, site, or other artifact built for them
- general: ordinary conversation, questions, or account actions

Recent context:
%s

Latest message:
%s

Category:`

// escalate asks the cheap completion tier to read the sentence in context.
func (c *Classifier) escalate(ctx context.Context, text string, history []types.Message) (types.Intent, bool) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var b strings.Builder
	start := 0
	if len(history) > 4 {
		start = len(history) - 4
	}
	for _, m := range history[start:] {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(truncate(m.Content, 200))
		b.WriteString("\n")
	}

	prompt := fmt.Sprintf(escalationPrompt, b.String(), truncate(text, 500))

	reply, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		logging.Intent("escalation failed, using default: %v", err)
		return "", false
	}

	switch {
	case strings.Contains(strings.ToLower(reply), "self_build"):
		logging.Intent("escalation classified self_build")
		return types.IntentSelfBuild, true
	case strings.Contains(strings.ToLower(reply), "external_build"):
		logging.Intent("escalation classified external_build")
		return types.IntentExternalBuild, true
	case strings.Contains(strings.ToLower(reply), "general"):
		logging.Intent("escalation classified general")
		return types.IntentGeneral, true
	}
	return "", false
}

func containsWord(s, word string) bool {
	for _, f := range strings.Fields(s) {
		if strings.Trim(f, ".,!?;:'\"") == word {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
