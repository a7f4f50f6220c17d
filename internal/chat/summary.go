package chat

import (
	"fmt"

	"titan/internal/types"
)

// summarizeAction derives the human-readable summary for one executed tool
// call. Keyed by tool name and result shape; extend the switch when new
// tools are registered.
func summarizeAction(call types.ToolCall, result types.ToolResult) string {
	if !result.Success {
		return fmt.Sprintf("%s failed: %s", call.Name, firstLine(result.Error))
	}

	data, _ := result.Data.(map[string]any)

	switch call.Name {
	case "read_file":
		if p, ok := data["path"].(string); ok {
			return fmt.Sprintf("Read %s", p)
		}
	case "list_files":
		if c, ok := data["count"]; ok {
			return fmt.Sprintf("Listed %v entries in %v", c, data["path"])
		}
	case "modify_file":
		if p, ok := data["path"].(string); ok {
			if staged, _ := data["staged"].(bool); staged {
				return fmt.Sprintf("Staged changes to %s", p)
			}
			return fmt.Sprintf("Modified %s", p)
		}
	case "run_snippet":
		return "Ran a code snippet"
	case "run_tests":
		return "Ran the test suite"
	case "web_search":
		if c, ok := data["count"]; ok {
			return fmt.Sprintf("Searched the web (%v results)", c)
		}
	case "web_page_read":
		if u, ok := data["url"].(string); ok {
			return fmt.Sprintf("Read page %s", u)
		}
	case "list_credentials":
		if c, ok := data["count"]; ok {
			return fmt.Sprintf("Listed %v credentials", c)
		}
	case "create_credential":
		if n, ok := data["name"].(string); ok {
			return fmt.Sprintf("Stored credential %q", n)
		}
	case "delete_credential":
		if n, ok := data["name"].(string); ok {
			return fmt.Sprintf("Deleted credential %q", n)
		}
	case "security_scan":
		if u, ok := data["url"].(string); ok {
			return fmt.Sprintf("Scanned %s", u)
		}
	}
	return fmt.Sprintf("Executed %s", call.Name)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	if len(s) > 160 {
		return s[:160]
	}
	return s
}
