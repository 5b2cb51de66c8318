package mono

import (
	"context"
	"fmt"
	"strconv"

	"jobmono/internal/index"
	"jobmono/internal/meta"
	"jobmono/internal/scan"
	"jobmono/internal/trace"
	"jobmono/internal/types"
)

// DefaultMaxDepth bounds how many call levels a single open argument is traced.
const DefaultMaxDepth = 64

// Options configures the resolver.
type Options struct {
	// MaxDepth bounds the call chain explored from one open job call. Branches
	// that exceed it (polymorphic recursion) are dropped.
	MaxDepth int
	// Recorder additionally receives every concrete instantiation.
	Recorder InstantiationRecorder
}

// Instance is one closed job instantiation, independent of the interner.
type Instance struct {
	Entity   string
	Args     []meta.TypeRef
	Type     meta.TypeRef
	Name     string
	UseSites []UseSite
}

// Key returns the deduplication key (entity, concrete arguments).
func (i Instance) Key() string { return i.Type.Identity() }

// Stats counts what the walk did.
type Stats struct {
	Seeds        int
	States       int
	Revisits     int
	DeadEnds     int
	DepthLimited int
	Instances    int
}

// Result is the output of Resolve.
type Result struct {
	Instances []Instance
	Map       *InstantiationMap
	Types     *types.Interner
	Stats     Stats
}

type state struct {
	method meta.MethodKey
	typ    types.TypeID
}

type work struct {
	state
	depth int
	root  *scan.CallReference
}

type resolver struct {
	ix     *index.Index
	graph  *scan.CallGraph
	types  *types.Interner
	opt    Options
	rec    InstantiationRecorder
	tracer trace.Tracer
	parent uint64

	visited map[state]struct{}
	queue   []work
	stats   Stats
}

// Resolve reduces every call reference to the concrete instantiations reachable
// through the call graph. Open arguments are traced to the callers of the
// enclosing method, substituting the arguments each caller supplies, until the
// type is closed. Branches with no callers, repeated states and branches deeper
// than MaxDepth contribute nothing; none of these is an error.
func Resolve(ctx context.Context, ix *index.Index, graph *scan.CallGraph, calls []scan.CallReference, opt Options) (*Result, error) {
	if opt.MaxDepth <= 0 {
		opt.MaxDepth = DefaultMaxDepth
	}
	ctx, span := trace.Start(ctx, trace.ScopePass, "resolve")

	in := types.NewInterner()
	instMap := NewInstantiationMap()
	var rec InstantiationRecorder = NewInstantiationMapRecorder(instMap)
	if opt.Recorder != nil {
		rec = fanout{rec, opt.Recorder}
	}
	r := &resolver{
		ix:      ix,
		graph:   graph,
		types:   in,
		opt:     opt,
		tracer:  trace.FromContext(ctx),
		parent:  span.ID(),
		visited: make(map[state]struct{}),
	}
	r.rec = rec
	if r.tracer.Enabled() {
		r.rec = &tracingRecorder{next: rec, tracer: r.tracer, types: in, parent: r.parent}
	}

	for i := range calls {
		c := &calls[i]
		r.queue = append(r.queue, work{
			state: state{method: c.Entry, typ: in.FromRef(c.Type)},
			root:  c,
		})
		r.stats.Seeds++
	}

	if err := r.run(ctx); err != nil {
		span.End("canceled")
		return nil, fmt.Errorf("resolve: %w", err)
	}

	res := &Result{Map: instMap, Types: in}
	for _, e := range instMap.Sorted(in) {
		args := make([]meta.TypeRef, len(e.TypeArgs))
		for i, a := range e.TypeArgs {
			args[i] = in.Ref(a)
		}
		res.Instances = append(res.Instances, Instance{
			Entity:   e.Key.Entity,
			Args:     args,
			Type:     in.Ref(e.Type),
			Name:     in.Format(e.Type),
			UseSites: e.UseSites,
		})
	}
	r.stats.Instances = len(res.Instances)
	res.Stats = r.stats

	span.WithExtra("instances", strconv.Itoa(r.stats.Instances)).
		WithExtra("dead_ends", strconv.Itoa(r.stats.DeadEnds)).
		End("")
	return res, nil
}

// run drains the queue breadth first, so every state is expanded at the
// smallest depth it can be reached.
func (r *resolver) run(ctx context.Context) error {
	for len(r.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.queue[0]
		r.queue = r.queue[1:]
		r.step(w)
	}
	return nil
}

func (r *resolver) step(w work) {
	if !r.types.ContainsParam(w.typ) {
		r.record(w)
		return
	}
	if _, seen := r.visited[w.state]; seen {
		r.stats.Revisits++
		return
	}
	r.visited[w.state] = struct{}{}
	r.stats.States++

	if w.depth >= r.opt.MaxDepth {
		r.stats.DepthLimited++
		trace.Point(r.tracer, trace.ScopeNode, "resolve.depth", r.describe(w), r.parent)
		return
	}

	md, ok := r.ix.MethodByKey(w.method)
	if !ok {
		r.deadEnd(w, "unknown method")
		return
	}
	callers := r.graph.Callers(w.method)
	if len(callers) == 0 {
		r.deadEnd(w, "no callers")
		return
	}

	expanded := false
	for _, site := range callers {
		sub := r.substFor(md, site.Ref)
		if !sub.Covers(w.typ) {
			continue
		}
		expanded = true
		r.queue = append(r.queue, work{
			state: state{method: site.Caller, typ: sub.Type(w.typ)},
			depth: w.depth + 1,
			root:  w.root,
		})
	}
	if !expanded {
		r.deadEnd(w, "no caller supplies the open arguments")
	}
}

// substFor binds the parameters of md to the arguments site passes.
func (r *resolver) substFor(md *index.MethodDescriptor, ref meta.MethodRef) *Subst {
	sub := &Subst{Types: r.types, Method: md.Key, Owner: md.Type.Name}
	if len(ref.GenericArgs) > 0 {
		sub.MethodArgs = make([]types.TypeID, len(ref.GenericArgs))
		for i, a := range ref.GenericArgs {
			sub.MethodArgs[i] = r.types.FromRef(a)
		}
	}
	if ref.DeclaringType.Kind == meta.RefInst {
		sub.TypeArgs = make([]types.TypeID, len(ref.DeclaringType.Args))
		for i, a := range ref.DeclaringType.Args {
			sub.TypeArgs[i] = r.types.FromRef(a)
		}
	}
	return sub
}

func (r *resolver) record(w work) {
	tt, ok := r.types.Lookup(w.typ)
	if !ok {
		return
	}
	var site UseSite
	site.Caller = w.method
	site.Depth = w.depth
	if w.root != nil {
		site.Root = w.root.Entry
		site.Offset = w.root.Offset
	}
	r.rec.RecordInstantiation(index.Canonical(tt.Name), w.typ, r.types.Args(w.typ), site)
}

func (r *resolver) deadEnd(w work, why string) {
	r.stats.DeadEnds++
	trace.Point(r.tracer, trace.ScopeNode, "resolve.dead_end", r.describe(w)+": "+why, r.parent)
}

func (r *resolver) describe(w work) string {
	return r.types.Format(w.typ) + " in " + string(w.method)
}

type fanout []InstantiationRecorder

func (f fanout) RecordInstantiation(entity string, typ types.TypeID, typeArgs []types.TypeID, site UseSite) {
	for _, r := range f {
		r.RecordInstantiation(entity, typ, typeArgs, site)
	}
}
