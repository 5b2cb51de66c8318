// Package store opens module files and keeps them available for one request.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"jobmono/internal/meta"
	"jobmono/internal/trace"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
	// ErrDuplicateName reports a second module file declaring an already open
	// module name.
	ErrDuplicateName = errors.New("module name already open")
)

// LoadError reports a module file that could not be opened.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return "load " + e.Path + ": " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// Options selects the modules a store opens.
type Options struct {
	// Paths are module files opened unconditionally.
	Paths []string
	// Search lists directories scanned (recursively) for module files.
	Search []string
	// Hints filter search candidates by substring of the module name. With no
	// hints every search candidate is selected.
	Hints []string
	// Exclude inverts the hint filter: matching modules are left out.
	Exclude bool
	// ResolveReferences also opens referenced modules found in Search.
	ResolveReferences bool
	// Jobs bounds parallel decoding; <= 0 means GOMAXPROCS.
	Jobs int
}

// Store holds the open modules of one request. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	mods   []*meta.Module
	byPath map[string]*meta.Module
	byName map[string]*meta.Module
	closed bool
	tracer trace.Tracer
}

func newStore(tracer trace.Tracer) *Store {
	return &Store{
		byPath: make(map[string]*meta.Module),
		byName: make(map[string]*meta.Module),
		tracer: tracer,
	}
}

type loaded struct {
	path string
	mod  *meta.Module
	err  error
}

// Open selects candidates from opt, decodes them in parallel and registers them
// in candidate order. A candidate that fails to load is skipped unless it is the
// only one, in which case Open returns its *LoadError.
func Open(ctx context.Context, opt Options) (*Store, error) {
	tracer := trace.FromContext(ctx)
	ctx, span := trace.Start(ctx, trace.ScopePass, "store.open")
	s := newStore(tracer)

	available, err := listModules(opt.Search)
	if err != nil {
		span.End("error")
		return nil, fmt.Errorf("store: %w", err)
	}
	candidates := selectCandidates(opt, available)

	results, err := loadAll(ctx, candidates, opt.Jobs)
	if err != nil {
		span.End("canceled")
		return nil, fmt.Errorf("store: %w", err)
	}
	for _, r := range results {
		if r.err != nil {
			lerr := &LoadError{Path: r.path, Err: r.err}
			if len(candidates) == 1 {
				span.End("error")
				return nil, lerr
			}
			trace.Point(tracer, trace.ScopeModule, "store.skip", lerr.Error(), span.ID())
			continue
		}
		if err := s.register(r.path, r.mod); err != nil {
			trace.Point(tracer, trace.ScopeModule, "store.skip", err.Error(), span.ID())
		}
	}

	if opt.ResolveReferences {
		if err := s.resolveReferences(ctx, available, span.ID()); err != nil {
			span.End("canceled")
			return nil, fmt.Errorf("store: %w", err)
		}
	}
	span.WithExtra("modules", fmt.Sprint(len(s.mods))).End("")
	return s, nil
}

// Add opens the module at path, or returns it when it is already open.
func (s *Store) Add(ctx context.Context, path string) (*meta.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := canonicalPath(path)
	s.mu.RLock()
	closed := s.closed
	m, ok := s.byPath[key]
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return m, nil
	}
	m, err := meta.Read(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if err := s.register(key, m); err != nil {
		return nil, err
	}
	return s.lookupPath(key), nil
}

// Lookup returns the open module named name.
func (s *Store) Lookup(name string) (*meta.Module, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byName[name]
	return m, ok
}

// Modules returns the open modules in load order.
func (s *Store) Modules() []*meta.Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.mods)
}

// Write persists m to m.Path. m must be open in s.
func (s *Store) Write(m *meta.Module, opts meta.WriteOptions) error {
	s.mu.RLock()
	closed := s.closed
	owned := s.byPath[canonicalPath(m.Path)] == m
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !owned {
		return fmt.Errorf("store: write %s: module is not open", m.Path)
	}
	return meta.Write(m, opts)
}

// Close releases every module. Calling Close again is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.mods = nil
	clear(s.byPath)
	clear(s.byName)
	return nil
}

func (s *Store) lookupPath(key string) *meta.Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byPath[key]
}

// register adds m under its canonical path. A path opened twice keeps the
// first module; a second file with the same module name is rejected.
func (s *Store) register(path string, m *meta.Module) error {
	key := canonicalPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.byPath[key]; ok {
		return nil
	}
	if prev, ok := s.byName[m.Name]; ok {
		return &LoadError{Path: path, Err: fmt.Errorf("%w: %s (first opened from %s)", ErrDuplicateName, m.Name, prev.Path)}
	}
	s.byPath[key] = m
	s.byName[m.Name] = m
	s.mods = append(s.mods, m)
	return nil
}

// resolveReferences opens, level by level, every referenced module that can be
// found among available. Unknown references are left alone.
func (s *Store) resolveReferences(ctx context.Context, available []string, parent uint64) error {
	byName := make(map[string]string, len(available))
	for _, p := range available {
		name := meta.NameFromPath(p)
		if _, ok := byName[name]; !ok {
			byName[name] = p
		}
	}
	frontier := s.Modules()
	for len(frontier) > 0 {
		var next []string
		queued := make(map[string]struct{})
		for _, m := range frontier {
			for _, ref := range m.References {
				if _, open := s.Lookup(ref); open {
					continue
				}
				p, ok := byName[ref]
				if !ok {
					continue
				}
				if _, dup := queued[ref]; dup {
					continue
				}
				queued[ref] = struct{}{}
				next = append(next, p)
			}
		}
		if len(next) == 0 {
			return nil
		}
		results, err := loadAll(ctx, next, 0)
		if err != nil {
			return err
		}
		frontier = frontier[:0]
		for _, r := range results {
			if r.err == nil {
				r.err = s.register(r.path, r.mod)
			}
			if r.err != nil {
				trace.Point(s.tracer, trace.ScopeModule, "store.skip", r.err.Error(), parent)
				continue
			}
			frontier = append(frontier, r.mod)
		}
	}
	return nil
}

// selectCandidates returns explicit paths first, then the search results that
// pass the hint filter, without duplicates.
func selectCandidates(opt Options, available []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		key := canonicalPath(p)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	for _, p := range opt.Paths {
		add(p)
	}
	for _, p := range available {
		if matchesHints(meta.NameFromPath(p), opt.Hints) != opt.Exclude || len(opt.Hints) == 0 {
			add(p)
		}
	}
	return out
}

func matchesHints(name string, hints []string) bool {
	for _, h := range hints {
		if h != "" && strings.Contains(name, h) {
			return true
		}
	}
	return false
}

func listModules(dirs []string) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, meta.Ext) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", dir, err)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// loadAll decodes paths in parallel. Per-file failures are reported in the
// results; only cancellation fails the whole call.
func loadAll(ctx context.Context, paths []string, jobs int) ([]loaded, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]loaded, len(paths))
	if len(paths) == 0 {
		return results, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := meta.Read(path)
			results[i] = loaded{path: path, mod: m, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
