// Package tools implements the tool registry and the built-in tools the
// conversation loop can dispatch to. The loop treats every tool uniformly
// through the executor contract; tool-specific behavior lives only in the
// Execute functions and the summary/hint tables in the chat package.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"titan/internal/logging"
	"titan/internal/types"
)

// Registration errors.
var (
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrInvalidTool           = errors.New("invalid tool")
)

// ExecuteFunc performs the tool's side effect. Returned data is serialized
// into the result the model sees.
type ExecuteFunc func(ctx context.Context, args map[string]any, caller types.Caller) (any, error)

// Tool is one registered action the model may invoke.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any

	// Privileged tools are never executed for unprivileged callers; the
	// loop synthesizes a denial result instead.
	Privileged bool

	// ContentTool marks tools whose purpose is returning file or page
	// content. They get the larger result truncation budget.
	ContentTool bool

	// SelfBuild and General control manifest membership per intent.
	SelfBuild bool
	General   bool

	Execute ExecuteFunc
}

// Validate checks the tool is well-formed for registration.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTool)
	}
	if t.Execute == nil {
		return fmt.Errorf("%w: %s has no execute function", ErrInvalidTool, t.Name)
	}
	if !t.SelfBuild && !t.General {
		return fmt.Errorf("%w: %s belongs to no manifest", ErrInvalidTool, t.Name)
	}
	return nil
}

// Registry holds the available tools. Thread-safe; implements
// types.ToolExecutor.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	executeTimeout time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:          make(map[string]*Tool),
		executeTimeout: 2 * time.Minute,
	}
}

// Register adds a tool. Duplicate names are an error.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	logging.ToolsDebug("registered tool: %s (privileged=%v content=%v)", tool.Name, tool.Privileged, tool.ContentTool)
	return nil
}

// MustRegister registers a tool and panics on error. For static
// registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Execute runs the named tool. Panics and errors are converted to failed
// results; nothing propagates past this boundary.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, caller types.Caller) (result types.ToolResult) {
	tool := r.Get(name)
	if tool == nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}
	if tool.Privileged && !caller.Privileged {
		// Defense in depth; the loop gates this before dispatch too.
		return types.ToolResult{Success: false, Error: "permission denied: this action requires elevated access"}
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.Tools("tool %s panicked: %v", name, rec)
			result = types.ToolResult{Success: false, Error: fmt.Sprintf("tool %s failed unexpectedly", name)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.executeTimeout)
	defer cancel()

	start := time.Now()
	data, err := tool.Execute(ctx, args, caller)
	elapsed := time.Since(start)

	if err != nil {
		logging.Tools("tool %s failed in %s: %v", name, elapsed.Round(time.Millisecond), err)
		return types.ToolResult{Success: false, Error: err.Error()}
	}
	logging.Tools("tool %s succeeded in %s", name, elapsed.Round(time.Millisecond))
	return types.ToolResult{Success: true, Data: data}
}

// Definitions returns the manifest for the intent. Self-build turns get the
// file tools routed through the deferred stage and no sandboxed execution;
// everything else gets the general set.
func (r *Registry) Definitions(intent types.Intent) []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	selfBuild := intent == types.IntentSelfBuild
	var out []types.ToolDefinition
	for _, t := range r.tools {
		if selfBuild && !t.SelfBuild {
			continue
		}
		if !selfBuild && !t.General {
			continue
		}
		out = append(out, types.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsPrivileged reports whether the named tool is privileged-only.
func (r *Registry) IsPrivileged(name string) bool {
	t := r.Get(name)
	return t != nil && t.Privileged
}

// IsContentTool reports whether the named tool returns file/page content.
func (r *Registry) IsContentTool(name string) bool {
	t := r.Get(name)
	return t != nil && t.ContentTool
}
