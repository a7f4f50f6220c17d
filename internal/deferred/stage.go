// Package deferred implements the staged-write buffer for self-modification
// turns. The host environment restarts the watched process on file change;
// writing mid-turn would kill the in-flight inference loop, so file-mutation
// tools stage content here and the loop flushes once after the final
// response text is ready.
package deferred

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"titan/internal/logging"
)

// Stage buffers file mutations while enabled. It is process-global in
// practice: at most one self-modification turn uses it at a time (the
// service serializes sends per conversation, and the enable call fails
// when another turn holds the stage).
type Stage struct {
	mu      sync.Mutex
	enabled bool
	owner   string // conversation id that enabled the stage
	staged  map[string]string
	root    string
}

// FlushReport describes the outcome of a flush.
type FlushReport struct {
	FileCount int
	Files     []string
	Errors    []error
}

// NewStage creates a stage that writes flushed files under root.
func NewStage(root string) *Stage {
	return &Stage{
		staged: make(map[string]string),
		root:   root,
	}
}

// Enable switches staging on for the given conversation. Returns an error
// if another conversation currently holds the stage.
func (s *Stage) Enable(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled && s.owner != conversationID {
		return fmt.Errorf("deferred stage already in use by conversation %s", s.owner)
	}
	s.enabled = true
	s.owner = conversationID
	logging.Deferred("stage enabled: conversation=%s", conversationID)
	return nil
}

// Disable switches staging off and discards anything still staged.
// Idempotent; called on every exit path of a self-modification turn.
func (s *Stage) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled && len(s.staged) == 0 {
		return
	}
	if len(s.staged) > 0 {
		logging.Deferred("stage disabled: discarding %d staged change(s)", len(s.staged))
	}
	s.enabled = false
	s.owner = ""
	s.staged = make(map[string]string)
}

// Enabled reports whether the stage is currently accepting writes.
func (s *Stage) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Stage records the intended content for path. Returns false when staging
// is disabled, in which case the caller writes directly.
func (s *Stage) Stage(path, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return false
	}
	s.staged[path] = content
	logging.Deferred("staged change: path=%s bytes=%d total_staged=%d", path, len(content), len(s.staged))
	return true
}

// StagedCount returns the number of pending changes.
func (s *Stage) StagedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

// Flush writes every staged change to disk and disables the stage. Called
// exactly once per self-modification turn, after the response text is
// finalized, so any watcher-triggered restart happens only after the
// user-visible answer is ready.
func (s *Stage) Flush() FlushReport {
	s.mu.Lock()
	staged := s.staged
	s.staged = make(map[string]string)
	s.enabled = false
	s.owner = ""
	s.mu.Unlock()

	report := FlushReport{}

	paths := make([]string, 0, len(staged))
	for p := range staged {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		target := path
		if !filepath.IsAbs(target) {
			target = filepath.Join(s.root, target)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("mkdir for %s: %w", path, err))
			continue
		}
		if err := os.WriteFile(target, []byte(staged[path]), 0o644); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("write %s: %w", path, err))
			continue
		}
		report.Files = append(report.Files, path)
		report.FileCount++
	}

	logging.Deferred("flush complete: files=%d errors=%d", report.FileCount, len(report.Errors))
	return report
}
