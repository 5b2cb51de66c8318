// Package scan walks method bodies and extracts generic job call references
// together with the call graph the resolver walks backwards.
package scan

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"jobmono/internal/index"
	"jobmono/internal/meta"
	"jobmono/internal/trace"
)

// CallReference is one call site that instantiates a generic job with
// arguments that are still open in the enclosing method.
type CallReference struct {
	// Entry is the method whose body contains the call.
	Entry meta.MethodKey
	// Module is the name of the module declaring Entry.
	Module string
	// Type is the instantiated job type as written at the call site.
	Type meta.TypeRef
	// Entity is the generic job definition Type instantiates.
	Entity string
	Op     meta.Opcode
	Offset uint32
}

func (c CallReference) dedupKey() string {
	return c.Type.Identity() + "|" + string(c.Entry)
}

func (c CallReference) String() string {
	return fmt.Sprintf("%s in %s @%04x", c.Type, c.Entry, c.Offset)
}

// CallSite is one instruction in Caller that targets a known method definition.
type CallSite struct {
	Caller meta.MethodKey
	Ref    meta.MethodRef
	Op     meta.Opcode
	Offset uint32
}

// CallGraph maps each method definition to the sites that call it.
// Read-only after Scan returns.
type CallGraph struct {
	callers map[meta.MethodKey][]CallSite
}

// Callers returns every site calling target, in scan order.
func (g *CallGraph) Callers(target meta.MethodKey) []CallSite {
	if g == nil {
		return nil
	}
	return g.callers[target]
}

// Targets returns the number of distinct called methods.
func (g *CallGraph) Targets() int {
	if g == nil {
		return 0
	}
	return len(g.callers)
}

// Options configures a scan.
type Options struct {
	Capability Capability
	// Jobs bounds scanning parallelism; <= 0 means GOMAXPROCS.
	Jobs int
}

// Stats summarizes a scan.
type Stats struct {
	Modules int
	Types   int
	Methods int
	Skipped int
	Calls   int
	Sites   int
}

// Result is the output of Scan.
type Result struct {
	Calls []CallReference
	Graph *CallGraph
	Stats Stats
}

type slot struct {
	module *meta.Module
	td     *index.TypeDescriptor
}

type slotResult struct {
	calls   []CallReference
	sites   []siteAt
	methods int
	skipped []string
}

type siteAt struct {
	target meta.MethodKey
	site   CallSite
}

// Scan inspects every method of every type of mods. Types are scanned in
// parallel; results are merged in (module, type, method, instruction) order so
// the output does not depend on scheduling.
func Scan(ctx context.Context, ix *index.Index, mods []*meta.Module, opt Options) (*Result, error) {
	tr := trace.FromContext(ctx)
	ctx, span := trace.Start(ctx, trace.ScopePass, "scan")

	var slots []slot
	for _, m := range mods {
		for _, td := range ix.Types(m) {
			slots = append(slots, slot{module: m, td: td})
		}
	}

	jobs := opt.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]slotResult, len(slots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(slots))))
	for i := range slots {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = scanType(ix, slots[i].td, opt.Capability)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.End("canceled")
		return nil, fmt.Errorf("scan: %w", err)
	}

	res := &Result{Graph: &CallGraph{callers: make(map[meta.MethodKey][]CallSite)}}
	var (
		current *meta.Module
		seen    map[string]struct{}
	)
	for i, r := range results {
		if slots[i].module != current {
			current = slots[i].module
			seen = make(map[string]struct{})
			res.Stats.Modules++
		}
		res.Stats.Types++
		res.Stats.Methods += r.methods
		res.Stats.Skipped += len(r.skipped)
		for _, m := range r.skipped {
			trace.Point(tr, trace.ScopeNode, "scan.skip", m, span.ID())
		}
		for _, c := range r.calls {
			key := c.dedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			res.Calls = append(res.Calls, c)
		}
		for _, s := range r.sites {
			res.Graph.callers[s.target] = append(res.Graph.callers[s.target], s.site)
			res.Stats.Sites++
		}
	}
	res.Stats.Calls = len(res.Calls)

	span.WithExtra("calls", strconv.Itoa(res.Stats.Calls)).
		WithExtra("skipped", strconv.Itoa(res.Stats.Skipped)).
		End("")
	return res, nil
}

func scanType(ix *index.Index, td *index.TypeDescriptor, c Capability) slotResult {
	var out slotResult
	for i := range td.Def.Methods {
		def := &td.Def.Methods[i]
		if !def.HasBody() {
			continue
		}
		out.methods++
		entry := meta.KeyOf(td.Name, index.Canonical(def.Name), index.Canonical(def.Signature))
		body, err := def.DecodeBody()
		if err != nil {
			out.skipped = append(out.skipped, string(entry)+": "+err.Error())
			continue
		}
		for _, in := range body.Instrs {
			for _, ref := range targets(in) {
				if !c.IsGenericJobCall(ix, ref) {
					continue
				}
				out.calls = append(out.calls, CallReference{
					Entry:  entry,
					Module: td.Module.Name,
					Type:   ref,
					Entity: index.Canonical(ref.DefName()),
					Op:     in.Op,
					Offset: in.Offset,
				})
			}
			if in.Method == nil {
				continue
			}
			md, err := ix.ResolveMethodRef(*in.Method)
			if err != nil {
				// Calls into modules outside the corpus.
				continue
			}
			out.sites = append(out.sites, siteAt{
				target: md.Key,
				site:   CallSite{Caller: entry, Ref: *in.Method, Op: in.Op, Offset: in.Offset},
			})
		}
	}
	return out
}

// targets lists the instantiated types an instruction mentions.
func targets(in meta.Instr) []meta.TypeRef {
	switch in.Op {
	case meta.OpCall, meta.OpCallVirt, meta.OpNewObj:
		if in.Method == nil {
			return nil
		}
		var out []meta.TypeRef
		if in.Method.DeclaringType.Kind == meta.RefInst {
			out = append(out, in.Method.DeclaringType)
		}
		return append(out, in.Method.GenericArgs...)
	case meta.OpInitObj, meta.OpLdToken:
		if in.Type == nil {
			return nil
		}
		return []meta.TypeRef{*in.Type}
	}
	return nil
}
