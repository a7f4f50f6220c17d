// Package devwatch implements the development-mode restart watcher. It is
// the reason the deferred write stage exists: when the watched workspace
// changes on disk, the supervisor restarts the process. Self-modification
// turns stage their writes and flush after the response is finalized so the
// restart lands between turns, not inside one.
package devwatch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"titan/internal/logging"
)

// Watcher monitors the workspace and invokes onChange after a quiet period.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	debounce    time.Duration
	onChange    func(paths []string)
	pending     map[string]struct{}
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// New creates a watcher over dir. onChange receives the batch of changed
// paths once events settle.
func New(dir string, onChange func(paths []string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		dir:      dir,
		debounce: 500 * time.Millisecond, // coalesce rapid saves
		onChange: onChange,
		pending:  make(map[string]struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; events are handled in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	logging.Get(logging.CategoryBoot).Info("devwatch: watching %s", w.dir)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			w.mu.Lock()
			w.pending[ev.Name] = struct{}{}
			w.mu.Unlock()
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Warn("devwatch: %v", err)
		case <-timer.C:
			w.mu.Lock()
			paths := make([]string, 0, len(w.pending))
			for p := range w.pending {
				paths = append(paths, p)
			}
			w.pending = make(map[string]struct{})
			w.mu.Unlock()
			if len(paths) > 0 && w.onChange != nil {
				w.onChange(paths)
			}
		}
	}
}

// relevant filters out editor temp files and non-mutating events.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}
	return true
}
