package safety

import (
	"regexp"

	"titan/internal/logging"
)

// secretPatterns match credential shapes that must never appear in a
// persisted assistant message. Order matters: more specific shapes first.
var secretPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"openai_key", regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`)},
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"github_token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{20,}`)},
	{"private_key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`)},
	{"password_assignment", regexp.MustCompile(`(?i)(password|passwd|secret)\s*[:=]\s*["']?[^\s"']{8,}["']?`)},
}

// systemPromptMarkers are fragments that only appear when the model leaks
// its own instructions.
var systemPromptMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)my system prompt (is|says|reads)[:\s]`),
	regexp.MustCompile(`(?i)here (is|are) my (hidden |system )?instructions?[:\s]`),
}

// Redact replaces leaked secrets and system-prompt fragments in the final
// assistant text. Non-fatal: the redacted text is what gets persisted.
func Redact(text string) string {
	out := text
	hits := 0
	for _, sp := range secretPatterns {
		if sp.re.MatchString(out) {
			out = sp.re.ReplaceAllString(out, "[REDACTED]")
			hits++
			logging.Safety("redacted %s from assistant output", sp.name)
		}
	}
	for _, re := range systemPromptMarkers {
		if re.MatchString(out) {
			out = re.ReplaceAllString(out, "[REDACTED] ")
			hits++
		}
	}
	if hits > 0 {
		logging.Safety("output redaction applied: %d pattern(s)", hits)
	}
	return out
}
