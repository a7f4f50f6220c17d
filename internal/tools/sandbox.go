package tools

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"titan/internal/types"
)

// allowedSnippetPackages whitelists the stdlib imports a snippet may use.
// Filesystem, network, exec, and unsafe packages stay blocked.
var allowedSnippetPackages = map[string]bool{
	"fmt":             true,
	"strings":         true,
	"strconv":         true,
	"math":            true,
	"math/rand":       true,
	"regexp":          true,
	"encoding/json":   true,
	"encoding/base64": true,
	"time":            true,
	"sort":            true,
	"bytes":           true,
	"errors":          true,
	"unicode":         true,
}

var importLineRe = regexp.MustCompile(`(?m)^\s*(?:import\s+)?"([^"]+)"`)

func validateSnippetImports(code string) error {
	inImport := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import (") {
			inImport = true
			continue
		}
		if inImport && trimmed == ")" {
			inImport = false
			continue
		}
		if !inImport && !strings.HasPrefix(trimmed, "import") {
			continue
		}
		for _, m := range importLineRe.FindAllStringSubmatch(line, -1) {
			if !allowedSnippetPackages[m[1]] {
				return fmt.Errorf("import %q is not allowed in snippets", m[1])
			}
		}
	}
	return nil
}

const snippetTimeout = 15 * time.Second

// RegisterSandboxTools adds run_snippet (interpreted Go, no filesystem or
// network) and run_tests. Excluded from the self-build manifest: interpreted
// execution inside the platform's own process during a self-modification
// turn risks touching half-staged state.
func RegisterSandboxTools(r *Registry) {
	r.MustRegister(&Tool{
		Name:        "run_snippet",
		Description: "Run a short Go snippet in a sandboxed interpreter and return its printed output. Stdlib only; no filesystem, network, or exec.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{"type": "string", "description": "Go source with a main function, or bare statements"},
			},
			"required": []string{"code"},
		},
		General: true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			code, err := stringArg(args, "code")
			if err != nil {
				return nil, err
			}
			if err := validateSnippetImports(code); err != nil {
				return nil, err
			}

			out, err := evalSnippet(ctx, code)
			if err != nil {
				return nil, err
			}
			return map[string]any{"output": out}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "run_tests",
		Description: "Run the project's test suite and report the outcome.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		SelfBuild: true,
		General:   true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			// Test orchestration is delegated to the host environment; the
			// conversation core only relays the request.
			return nil, fmt.Errorf("test runner is not available in this deployment")
		},
	})
}

// evalSnippet interprets the code with yaegi, capturing stdout. Runs in a
// goroutine so the context timeout is honored even if the snippet spins.
func evalSnippet(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, snippetTimeout)
	defer cancel()

	var stdout bytes.Buffer
	i := interp.New(interp.Options{Stdout: &stdout, Stderr: &stdout})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", fmt.Errorf("failed to load interpreter symbols: %w", err)
	}

	src := code
	if !strings.Contains(code, "package ") {
		src = "package main\n" + code
	}

	done := make(chan error, 1)
	go func() {
		_, err := i.EvalWithContext(ctx, src)
		if err == nil && strings.Contains(src, "func main(") {
			_, err = i.EvalWithContext(ctx, "main.main()")
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return stdout.String(), fmt.Errorf("snippet failed: %w", err)
		}
		return stdout.String(), nil
	case <-ctx.Done():
		return stdout.String(), fmt.Errorf("snippet timed out after %s", snippetTimeout)
	}
}
