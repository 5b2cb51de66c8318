// Package watch reports batches of changed module files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"jobmono/internal/meta"
	"jobmono/internal/trace"
)

// DefaultDebounce is the quiet period that closes a batch.
const DefaultDebounce = 200 * time.Millisecond

// Options selects what is watched.
type Options struct {
	// Dirs are watched recursively; every module or symbol file below them is
	// reported.
	Dirs []string
	// Files are watched through their directory. Only the file and its symbol
	// sidecar are reported.
	Files []string
	// Ignore lists files never reported, such as an emit target.
	Ignore []string
	// Debounce closes a batch after this long without events.
	Debounce time.Duration
}

// Handler receives one sorted batch of changed paths. A non-nil error stops
// Run.
type Handler func(ctx context.Context, changed []string) error

// Watcher wraps an fsnotify watcher with module filtering and debouncing.
type Watcher struct {
	fs       *fsnotify.Watcher
	roots    []string
	files    map[string]struct{}
	ignore   map[string]struct{}
	debounce time.Duration
}

// New registers every directory named by opts.
func New(opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		files:    make(map[string]struct{}),
		ignore:   make(map[string]struct{}),
		debounce: opts.Debounce,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if err := w.register(opts); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) register(opts Options) error {
	for _, p := range opts.Ignore {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		w.ignore[abs] = struct{}{}
		w.ignore[meta.SymbolsPath(abs)] = struct{}{}
	}
	for _, d := range opts.Dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		if err := w.addTree(abs); err != nil {
			return err
		}
		w.roots = append(w.roots, abs)
	}
	for _, f := range opts.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		w.files[abs] = struct{}{}
		w.files[meta.SymbolsPath(abs)] = struct{}{}
		if err := w.fs.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
		}
	}
	if len(w.fs.WatchList()) == 0 {
		return errors.New("watch: nothing to watch")
	}
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Watching lists the registered directories.
func (w *Watcher) Watching() []string {
	list := w.fs.WatchList()
	slices.Sort(list)
	return list
}

func (w *Watcher) relevant(path string) bool {
	if !strings.HasSuffix(path, meta.Ext) && !strings.HasSuffix(path, meta.SymExt) {
		return false
	}
	if _, skip := w.ignore[path]; skip {
		return false
	}
	if _, ok := w.files[path]; ok {
		return true
	}
	return w.underRoot(path)
}

// Run delivers batches to h until ctx is done, h fails or the watcher is
// closed. It returns ctx.Err() on cancellation.
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	tracer := trace.FromContext(ctx)
	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) && w.underRoot(ev.Name) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						trace.Point(tracer, trace.ScopeDriver, "watch.add", err.Error(), 0)
					}
					continue
				}
			}
			if !w.relevant(ev.Name) {
				continue
			}
			trace.Point(tracer, trace.ScopeModule, "watch.event", ev.String(), 0)
			pending[ev.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			trace.Point(tracer, trace.ScopeDriver, "watch.error", err.Error(), 0)

		case <-fire:
			fire = nil
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			clear(pending)
			slices.Sort(batch)
			if err := h(ctx, batch); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) underRoot(path string) bool {
	for _, root := range w.roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
