// Package driver runs one generic job resolution request: index the open
// modules, scan for open job calls, resolve them to concrete instantiations and
// optionally inject the result into a target module.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"jobmono/internal/index"
	"jobmono/internal/meta"
	"jobmono/internal/mono"
	"jobmono/internal/observ"
	"jobmono/internal/scan"
	"jobmono/internal/synth"
	"jobmono/internal/trace"
)

// DefaultMarker is the attribute that marks job producer interfaces.
const DefaultMarker = "Unity.Jobs.LowLevel.Unsafe.JobProducerTypeAttribute"

// ErrClosed is returned by a Resolver after Close.
var ErrClosed = errors.New("resolver is closed")

// ModuleStore is the module store a Resolver works on.
type ModuleStore interface {
	Modules() []*meta.Module
	Add(ctx context.Context, path string) (*meta.Module, error)
	Write(m *meta.Module, opts meta.WriteOptions) error
	Close() error
}

// Options configures a Resolver.
type Options struct {
	// Marker is the job producer attribute; empty means DefaultMarker.
	Marker   string
	MaxDepth int
	Jobs     int
	Timer    *observ.Timer
	Observer PhaseObserver
}

// Resolver answers generic job questions about the modules of one store. It
// owns the store and releases it on Close.
type Resolver struct {
	store  ModuleStore
	opt    Options
	ix     *index.Index
	phases phases

	mu     sync.Mutex
	scan   *scan.Result
	closed bool
}

// New indexes the modules of st.
func New(ctx context.Context, st ModuleStore, opt Options) (*Resolver, error) {
	if st == nil {
		return nil, errors.New("driver: nil module store")
	}
	if opt.Marker == "" {
		opt.Marker = DefaultMarker
	}
	r := &Resolver{store: st, opt: opt, phases: phases{timer: opt.Timer, observer: opt.Observer}}

	_, span := trace.Start(ctx, trace.ScopePass, "index")
	ph := r.phases.begin("index")
	mods := st.Modules()
	r.ix = index.Build(mods)
	note := fmt.Sprintf("modules=%d", len(mods))
	ph.end(note)
	span.End(note)
	return r, nil
}


func (r *Resolver) capability() scan.Capability {
	return scan.Capability{Marker: r.opt.Marker}
}

// GenericJobCalls returns every job instantiated with open arguments, one per
// (type, method) pair per module. The scan runs once per Resolver.
func (r *Resolver) GenericJobCalls(ctx context.Context) ([]scan.CallReference, error) {
	res, err := r.scanned(ctx)
	if err != nil {
		return nil, err
	}
	return res.Calls, nil
}

func (r *Resolver) scanned(ctx context.Context) (*scan.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.scan != nil {
		return r.scan, nil
	}
	ph := r.phases.begin("scan")
	res, err := scan.Scan(ctx, r.ix, r.store.Modules(), scan.Options{Capability: r.capability(), Jobs: r.opt.Jobs})
	if err != nil {
		ph.end("failed")
		return nil, err
	}
	ph.end(fmt.Sprintf("calls=%d skipped=%d", res.Stats.Calls, res.Stats.Skipped))
	r.scan = res
	return res, nil
}

// ScanStats returns the statistics of the scan, running it if needed.
func (r *Resolver) ScanStats(ctx context.Context) (scan.Stats, error) {
	res, err := r.scanned(ctx)
	if err != nil {
		return scan.Stats{}, err
	}
	return res.Stats, nil
}

// ResolveGenericJobs resolves every open job call to the concrete
// instantiations reachable through the call graph.
func (r *Resolver) ResolveGenericJobs(ctx context.Context) (*mono.Result, error) {
	sc, err := r.scanned(ctx)
	if err != nil {
		return nil, err
	}
	ph := r.phases.begin("resolve")
	res, err := mono.Resolve(ctx, r.ix, sc.Graph, sc.Calls, mono.Options{MaxDepth: r.opt.MaxDepth})
	if err != nil {
		ph.end("failed")
		return nil, err
	}
	ph.end(fmt.Sprintf("instances=%d dead_ends=%d", len(res.Instances), res.Stats.DeadEnds))
	return res, nil
}

// MethodDefinition finds a method of typeName. method is either a bare name,
// which must be unambiguous, or "Name(signature)".
func (r *Resolver) MethodDefinition(typeName, method string) (*index.MethodDescriptor, error) {
	td, ok := r.ix.Type(typeName)
	if !ok {
		return nil, fmt.Errorf("type %s: %w", typeName, index.ErrNotFound)
	}
	name, sig := method, ""
	if open := strings.IndexByte(method, '('); open >= 0 && strings.HasSuffix(method, ")") {
		name, sig = method[:open], method[open+1:len(method)-1]
	}
	return r.ix.Method(td, name, sig)
}

// AddTypes injects one synthesized type per instance into the module at path
// and writes it back.
func (r *Resolver) AddTypes(ctx context.Context, path, group string, instances []mono.Instance) (*synth.Report, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	ph := r.phases.begin("emit")
	rep, err := synth.Emit(ctx, r.store, r.ix, path, group, instances)
	if err != nil {
		ph.end("failed")
		return nil, err
	}
	ph.end(fmt.Sprintf("types=%d replaced=%d", len(rep.Types), rep.Replaced))
	return rep, nil
}

// Close releases the store. Calling Close again is a no-op.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.scan = nil
	return r.store.Close()
}
