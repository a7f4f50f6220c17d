package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"titan/internal/deferred"
	"titan/internal/types"
)

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

// resolveWorkspacePath joins the path under root and rejects escapes.
func resolveWorkspacePath(root, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", path)
	}
	full := filepath.Join(root, path)
	rel, err := filepath.Rel(root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path escapes the workspace: %s", path)
	}
	return full, nil
}

const maxFileReadBytes = 256 * 1024

// RegisterFileTools adds read_file, list_files, and modify_file over the
// workspace root. modify_file routes through the deferred stage when a
// self-modification turn has it enabled.
func RegisterFileTools(r *Registry, root string, stage *deferred.Stage) {
	r.MustRegister(&Tool{
		Name:        "read_file",
		Description: "Read the contents of a file in the workspace. Use before modifying anything.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Path relative to the workspace root"},
			},
			"required": []string{"path"},
		},
		ContentTool: true,
		SelfBuild:   true,
		General:     true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			path, err := stringArg(args, "path")
			if err != nil {
				return nil, err
			}
			full, err := resolveWorkspacePath(root, path)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(full)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("file not found: %s", path)
				}
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			if len(data) > maxFileReadBytes {
				data = data[:maxFileReadBytes]
			}
			return map[string]any{"path": path, "content": string(data)}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "list_files",
		Description: "List files and directories under a workspace path.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Directory path relative to the workspace root; defaults to the root"},
			},
		},
		SelfBuild: true,
		General:   true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			path := "."
			if v, ok := args["path"].(string); ok && v != "" {
				path = v
			}
			full, err := resolveWorkspacePath(root, path)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(full)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("directory not found: %s", path)
				}
				return nil, fmt.Errorf("failed to list %s: %w", path, err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if strings.HasPrefix(name, ".") {
					continue
				}
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return map[string]any{"path": path, "entries": names, "count": len(names)}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "modify_file",
		Description: "Write new content to a file in the workspace, creating it if needed.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "Path relative to the workspace root"},
				"content": map[string]any{"type": "string", "description": "Full new file content"},
			},
			"required": []string{"path", "content"},
		},
		Privileged: true,
		SelfBuild:  true,
		General:    true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			path, err := stringArg(args, "path")
			if err != nil {
				return nil, err
			}
			content, ok := args["content"].(string)
			if !ok {
				return nil, fmt.Errorf("argument %q must be a string", "content")
			}
			if _, err := resolveWorkspacePath(root, path); err != nil {
				return nil, err
			}

			if stage != nil && stage.Stage(path, content) {
				return map[string]any{"path": path, "staged": true, "bytes": len(content)}, nil
			}

			full, err := resolveWorkspacePath(root, path)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
			}
			if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", path, err)
			}
			return map[string]any{"path": path, "staged": false, "bytes": len(content)}, nil
		},
	})
}
