// Package watch turns file system events under a project root into the
// reload changes the reconciler consumes.
//
// Events are coalesced per path until no event has arrived for the debounce
// delay; the batch is then classified against the disk and delivered as one
// reconcile.Change with paths relative to the root.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/modelsync/internal/reconcile"
)

// ErrClosed is returned by operations on a closed watcher.
var ErrClosed = errors.New("watcher closed")

// DefaultDelay is the debounce delay used when none is configured.
const DefaultDelay = 200 * time.Millisecond

// Watcher watches a directory tree recursively.
type Watcher struct {
	root   string
	delay  time.Duration
	filter func(rel string) bool
	ignore []string
	logger *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending *batch
	timer   *time.Timer
	closed  bool

	changes chan reconcile.Change
	errors  chan error
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the debounce delay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) { w.delay = d }
}

// WithFilter keeps only the relative paths fn accepts. Directories are
// always walked.
func WithFilter(fn func(rel string) bool) Option {
	return func(w *Watcher) { w.filter = fn }
}

// WithIgnoreDirs skips directories with the given base names.
func WithIgnoreDirs(names ...string) Option {
	return func(w *Watcher) { w.ignore = append(w.ignore, names...) }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New starts watching every directory under root.
func New(root string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:    abs,
		delay:   DefaultDelay,
		filter:  func(string) bool { return true },
		ignore:  []string{".git"},
		logger:  slog.Default(),
		fsw:     fsw,
		pending: newBatch(),
		changes: make(chan reconcile.Change, 16),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if _, err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// Changes delivers one change per quiet period.
func (w *Watcher) Changes() <-chan reconcile.Change { return w.changes }

// Errors delivers watch errors. Errors are dropped when nobody reads them.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher and closes both channels. Pending events are
// discarded.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil && w.timer.Stop() {
		w.wg.Done()
	}
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	close(w.changes)
	close(w.errors)
	return err
}

// Run calls fn for every change until ctx ends or the watcher is closed.
// An error from fn is logged and does not stop the loop.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context, reconcile.Change) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-w.changes:
			if !ok {
				return ErrClosed
			}
			if err := fn(ctx, c); err != nil {
				w.logger.Error("apply change", "component", "watch", "count", len(c.Files()), "error", err)
			}
		case err, ok := <-w.errors:
			if !ok {
				return ErrClosed
			}
			w.logger.Warn("watch error", "component", "watch", "error", err)
		}
	}
}

// addTree watches dir and its subdirectories and returns the files found.
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p != dir && w.ignored(d.Name()) {
				return filepath.SkipDir
			}
			return w.fsw.Add(p)
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

func (w *Watcher) ignored(base string) bool {
	for _, name := range w.ignore {
		if name == base {
			return true
		}
	}
	return false
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.ignored(filepath.Base(ev.Name)) {
				return
			}
			// Files may land in a new directory before its watch is added.
			files, err := w.addTree(ev.Name)
			if err != nil {
				w.sendError(err)
			}
			for _, f := range files {
				w.record(f, opCreate)
			}
			return
		}
	}
	op := convertOp(ev.Op)
	if op == 0 {
		return
	}
	w.record(ev.Name, op)
}

func (w *Watcher) record(abs string, op opMask) {
	rel, ok := w.relative(abs)
	if !ok || !w.filter(rel) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending.add(rel, op)
	if w.timer != nil && w.timer.Stop() {
		w.timer.Reset(w.delay)
		return
	}
	// Each armed timer runs flush exactly once.
	w.wg.Add(1)
	w.timer = time.AfterFunc(w.delay, w.flush)
}

func (w *Watcher) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) flush() {
	defer w.wg.Done()
	w.mu.Lock()
	if w.closed || w.pending.empty() {
		w.mu.Unlock()
		return
	}
	b := w.pending
	w.pending = newBatch()
	w.mu.Unlock()

	c := b.classify(func(rel string) bool {
		info, err := os.Stat(filepath.Join(w.root, filepath.FromSlash(rel)))
		return err == nil && !info.IsDir()
	})
	if c.Empty() {
		return
	}
	w.logger.Debug("files changed", "component", "watch", "count", len(c.Files()))
	select {
	case w.changes <- c:
	case <-w.closeCh:
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}
