package chat

import "strings"

// recoveryHint is one pattern-matched suggestion injected after a failed
// tool call so the next round has actionable guidance instead of a bare
// error.
type recoveryHint struct {
	// tool restricts the hint to one tool; empty matches any.
	tool string
	// substrings must all appear in the lowercased error text.
	substrings []string
	hint       string
}

// recoveryHints is ordered; the first match wins. Extend here when new
// tools grow known failure modes.
var recoveryHints = []recoveryHint{
	{
		substrings: []string{"file not found"},
		hint:       "The file does not exist at that path. Use list_files on the parent directory first to find the correct path, then retry.",
	},
	{
		substrings: []string{"directory not found"},
		hint:       "That directory does not exist. Use list_files on the workspace root to see the actual layout before retrying.",
	},
	{
		tool:       "modify_file",
		substrings: []string{"validation failed"},
		hint:       "The multi-file edit failed validation. Switch to smaller patch-style edits: modify one file per call with its complete new content.",
	},
	{
		substrings: []string{"path escapes the workspace"},
		hint:       "Paths must stay inside the workspace. Use a relative path without .. segments.",
	},
	{
		substrings: []string{"missing required argument"},
		hint:       "A required argument was missing. Re-read the tool's parameter list and call it again with every required field set.",
	},
	{
		tool:       "run_snippet",
		substrings: []string{"not allowed in snippets"},
		hint:       "Snippets may only import safe standard library packages. Rewrite the snippet without filesystem, network, or exec imports.",
	},
	{
		tool:       "web_page_read",
		substrings: []string{"did not finish loading"},
		hint:       "The page timed out. Try web_search for the same information instead, or read a different URL.",
	},
	{
		substrings: []string{"timed out"},
		hint:       "The operation timed out. Try a smaller or simpler variant of the same call.",
	},
	{
		tool:       "create_credential",
		substrings: []string{"unique"},
		hint:       "A credential with that name already exists. Use list_credentials to see existing names and pick a different one.",
	},
}

// hintFor returns the recovery hint for a failed tool call, or "" when no
// known pattern matches.
func hintFor(tool, errText string) string {
	lower := strings.ToLower(errText)
	for _, h := range recoveryHints {
		if h.tool != "" && h.tool != tool {
			continue
		}
		matched := true
		for _, s := range h.substrings {
			if !strings.Contains(lower, s) {
				matched = false
				break
			}
		}
		if matched {
			return h.hint
		}
	}
	return ""
}
