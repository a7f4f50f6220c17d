// Package safety implements the pre-loop abuse gates and the post-loop
// output redaction. Every gate runs before any inference call or credit
// consumption; a gate failure is a rejection, never a retry.
package safety

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"titan/internal/logging"
	"titan/internal/types"
)

// injectionPatterns match the known prompt-injection phrasings. Matching is
// heuristic on purpose; the suspension tracker handles repeat offenders.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)disregard\s+(your|the)\s+(system\s+prompt|instructions|guidelines)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?(developer|dan|jailbreak|unrestricted)\s*mode`),
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system\s+prompt|hidden\s+instructions)`),
	regexp.MustCompile(`(?i)pretend\s+(you\s+have|there\s+are)\s+no\s+(rules|restrictions|guidelines)`),
	regexp.MustCompile(`(?i)\[\s*system\s*\]|<\|?\s*system\s*\|?>|<<\s*SYS\s*>>`),
}

// markerPatterns are structural injection markers stripped during
// sanitization. Legitimate content around them survives.
var markerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[\s*/?\s*system\s*\]`),
	regexp.MustCompile(`(?i)<\|?\s*/?\s*(system|assistant|im_start|im_end)\s*\|?>`),
	regexp.MustCompile(`(?i)<<\s*/?\s*SYS\s*>>`),
	regexp.MustCompile(`(?i)^#{1,4}\s*system\s*:?\s*$`),
}

type suspension struct {
	strikes int
	until   time.Time
}

// Gate runs the pre-loop checks in order: rate limit, suspension, injection
// scan, sanitization.
type Gate struct {
	limiter *RateLimiter

	mu          sync.Mutex
	suspensions map[string]*suspension

	suspendAfter int
	cooldown     time.Duration
}

// NewGate builds a gate from the safety configuration values.
func NewGate(perMinute, burst, suspendAfter int, cooldown time.Duration) *Gate {
	return &Gate{
		limiter:      NewRateLimiter(perMinute, burst),
		suspensions:  make(map[string]*suspension),
		suspendAfter: suspendAfter,
		cooldown:     cooldown,
	}
}

// Check applies every gate to the incoming message and returns the sanitized
// text. A non-nil error means the turn must not start.
func (g *Gate) Check(caller types.Caller, text string) (string, error) {
	if !caller.Privileged {
		if ok, retryAfter := g.limiter.Allow(caller.UserID); !ok {
			logging.Safety("rate limited: user=%s retry_after=%s", caller.UserID, retryAfter)
			return "", &RateLimitError{RetryAfter: retryAfter}
		}
	}

	if remaining := g.suspendedFor(caller.UserID); remaining > 0 {
		logging.Safety("suspended: user=%s remaining=%s", caller.UserID, remaining)
		return "", &SuspensionError{Remaining: remaining}
	}

	if !caller.Privileged && ScanInjection(text) {
		g.recordStrike(caller.UserID)
		logging.Safety("injection blocked: user=%s", caller.UserID)
		return "", ErrInjectionBlocked
	}

	return Sanitize(text, caller.Privileged), nil
}

// suspendedFor returns the remaining cooldown, clearing expired entries.
func (g *Gate) suspendedFor(userID string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.suspensions[userID]
	if !ok {
		return 0
	}
	if s.until.IsZero() {
		return 0
	}
	remaining := time.Until(s.until)
	if remaining <= 0 {
		delete(g.suspensions, userID)
		return 0
	}
	return remaining
}

// recordStrike counts an injection attempt; enough strikes start a cooldown.
func (g *Gate) recordStrike(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.suspensions[userID]
	if !ok {
		s = &suspension{}
		g.suspensions[userID] = s
	}
	s.strikes++
	if s.strikes >= g.suspendAfter {
		s.until = time.Now().Add(g.cooldown)
		s.strikes = 0
		logging.Safety("suspension started: user=%s cooldown=%s", userID, g.cooldown)
	}
}

// ScanInjection reports whether the text matches a known injection pattern.
func ScanInjection(text string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Sanitize strips structural injection markers. Privileged callers keep
// everything except role-fencing tokens that would corrupt the prompt.
func Sanitize(text string, privileged bool) string {
	out := text
	patterns := markerPatterns
	if privileged {
		// Only the fencing tokens; privileged users may legitimately paste
		// prompt material.
		patterns = markerPatterns[1:2]
	}
	for _, p := range patterns {
		out = p.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}
