// Package watch re-runs grading when submission inputs change on disk.
// Editors fire several filesystem events per save, so changes are
// debounced: the pipeline runs once per quiet period, never concurrently.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docenthq/docent/internal/logbook"
	"github.com/docenthq/docent/internal/pipeline"
)

const defaultDebounce = 750 * time.Millisecond

// Runner triggers one grading pass. *pipeline.Pipeline satisfies it.
type Runner interface {
	ExecutePending(ctx context.Context) (*pipeline.RunReport, error)
}

// Watcher drives a Runner from filesystem events and manual triggers.
type Watcher struct {
	paths    []string
	runner   Runner
	book     *logbook.Logbook
	debounce time.Duration
	filter   func(string) bool
	triggers chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period after the last event before a run.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogbook routes run reports and watcher errors to book.
func WithWatchLogbook(book *logbook.Logbook) WatcherOption {
	return func(w *Watcher) {
		w.book = book
	}
}

// WithFilter replaces the default event filter. The filter receives the
// changed path and reports whether it should count as a change.
func WithFilter(filter func(path string) bool) WatcherOption {
	return func(w *Watcher) {
		if filter != nil {
			w.filter = filter
		}
	}
}

// New builds a watcher over the given directories.
func New(runner Runner, paths []string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		paths:    paths,
		runner:   runner,
		debounce: defaultDebounce,
		filter:   defaultFilter,
		triggers: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// defaultFilter drops editor droppings and docent's own state writes, which
// would otherwise re-trigger the run that produced them.
func defaultFilter(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}
	clean := filepath.ToSlash(path)
	return !strings.Contains(clean, "/.docent/")
}

// Trigger requests a run outside of any filesystem event, e.g. when a
// webhook delivery arrives. Requests collapse into the same debounce
// window as file changes.
func (w *Watcher) Trigger() {
	select {
	case w.triggers <- struct{}{}:
	default:
	}
}

// Run grades the current state once, then blocks re-running after each
// debounced change until ctx is canceled. Run failures are logged, not
// fatal; only watcher breakage and cancellation end the loop.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	for _, path := range w.paths {
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		w.book.Info("watching %s", path)
	}

	w.runOnce(ctx)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	arm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
	}

	const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watch: event channel closed")
			}
			if event.Op&changeOps == 0 || !w.filter(event.Name) {
				continue
			}
			w.book.Info("change: %s", event.Name)
			arm()
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watch: error channel closed")
			}
			w.book.Error("watch: %v", err)
		case <-w.triggers:
			arm()
		case <-timer.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) {
	rep, err := w.runner.ExecutePending(ctx)
	if err != nil {
		w.book.Error("watch run: %v", err)
		return
	}
	w.book.Info("watch run %s: %d recorded, %d skipped, %d failures",
		rep.RunID, rep.Executed, rep.Skipped, len(rep.Failures))
}
