// Package watcher watches an import spool directory with fsnotify and hands
// settled export files to a processing callback.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 400 * time.Millisecond

	// ProcessedDir and FailedDir are created under the spool directory.
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// ProcessFunc handles one spool file. A nil error moves the file into
// ProcessedDir, anything else into FailedDir.
type ProcessFunc func(ctx context.Context, path string) error

// Watcher watches a single spool directory.
type Watcher struct {
	dir        string
	extensions []string
	process    ProcessFunc
	debounce   time.Duration
	logger     *zap.Logger

	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	procMu      sync.Mutex
	debounceMap map[string]*time.Timer
	ctx         context.Context
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watcher events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides how long a file must stay quiet before it is processed.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for dir. extensions filter which files are
// picked up (empty = all).
func NewWatcher(dir string, extensions []string, process ProcessFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:         dir,
		extensions:  extensions,
		process:     process,
		debounce:    defaultDebounce,
		logger:      zap.NewNop(),
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched spool directory.
func (w *Watcher) Dir() string { return w.dir }

// Start creates the spool directory if needed, processes files already in
// it and then watches for new ones until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	for _, d := range []string{w.dir, filepath.Join(w.dir, ProcessedDir), filepath.Join(w.dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			w.mu.Unlock()
			return fmt.Errorf("create spool directory: %w", err)
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		w.mu.Unlock()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watcher = fw
	w.ctx = ctx
	w.started = true
	w.mu.Unlock()

	w.logger.Info("spool watcher started", zap.String("dir", w.dir), zap.Strings("extensions", w.extensions))

	if err := w.SyncExistingFiles(ctx); err != nil {
		w.logger.Warn("spool sync failed", zap.Error(err))
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("spool watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.logger.Debug("spool event", zap.String("op", ev.Op.String()), zap.String("path", path))

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.cancelPending(path)
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if !w.matchExtension(path) {
		return
	}
	w.schedule(path)
}

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		ctx := w.ctx
		w.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		w.processFile(ctx, path)
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// processFile runs the callback and moves the file out of the spool.
// Files are processed one at a time.
func (w *Watcher) processFile(ctx context.Context, path string) {
	w.procMu.Lock()
	defer w.procMu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return
	}
	target := ProcessedDir
	if err := w.process(ctx, path); err != nil {
		w.logger.Error("spool file failed", zap.String("path", path), zap.Error(err))
		target = FailedDir
	} else {
		w.logger.Info("spool file processed", zap.String("path", path))
	}
	dest := filepath.Join(w.dir, target, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.logger.Warn("spool file move failed", zap.String("path", path), zap.String("dest", dest), zap.Error(err))
	}
}

// SyncExistingFiles processes every matching file already in the spool,
// in name order.
func (w *Watcher) SyncExistingFiles(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if w.matchExtension(path) {
			names = append(names, path)
		}
	}
	sort.Strings(names)
	for _, path := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.processFile(ctx, path)
	}
	return nil
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Stop stops the watcher and cancels pending debounced files.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		for p, t := range w.debounceMap {
			t.Stop()
			delete(w.debounceMap, p)
		}
		fw := w.watcher
		w.mu.Unlock()
		if fw != nil {
			if err := fw.Close(); err != nil && !errors.Is(err, fsnotify.ErrClosed) {
				w.logger.Debug("spool watcher close", zap.Error(err))
			}
		}
	})
}
