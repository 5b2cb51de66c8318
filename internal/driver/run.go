package driver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"jobmono/internal/meta"
	"jobmono/internal/mono"
	"jobmono/internal/observ"
	"jobmono/internal/scan"
	"jobmono/internal/store"
	"jobmono/internal/synth"
	"jobmono/internal/trace"
)

// OpenFunc opens the module store of a request.
type OpenFunc func(ctx context.Context, opt store.Options) (ModuleStore, error)

// OpenStore opens a *store.Store.
func OpenStore(ctx context.Context, opt store.Options) (ModuleStore, error) {
	return store.Open(ctx, opt)
}

// Request describes one full pipeline run.
type Request struct {
	Store store.Options
	// Open replaces OpenStore, mainly in tests.
	Open     OpenFunc
	Analysis Options
	// Target, when set, receives the synthesized types.
	Target string
	Group  string
	// CallsOnly stops after scanning.
	CallsOnly bool
	// RunID tags the run in traces and the outcome. Empty means a fresh UUID.
	RunID string
}

// Outcome is what a pipeline run produced.
type Outcome struct {
	RunID string
	// Inputs digests the content of every module the run read.
	Inputs    meta.Digest
	Calls     []scan.CallReference
	ScanStats scan.Stats
	Resolved  *mono.Result
	Report    *synth.Report
	Timings   observ.Report
}

// Run opens the store, resolves every generic job call and, when a target is
// set, writes the synthesized types. The store is closed on every path out of
// Run; errors name the stage that failed.
func Run(ctx context.Context, req Request) (out *Outcome, err error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	ctx, span := trace.Start(ctx, trace.ScopeDriver, "run")
	span.WithExtra("run", req.RunID)
	defer func() {
		if err != nil {
			span.End("error")
			return
		}
		span.End("")
	}()

	open := req.Open
	if open == nil {
		open = OpenStore
	}
	timer := req.Analysis.Timer
	if timer == nil {
		timer = observ.NewTimer()
		req.Analysis.Timer = timer
	}

	idx := timer.Begin("open")
	st, err := open(ctx, req.Store)
	timer.End(idx, "")
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	r, err := New(ctx, st, req.Analysis)
	if err != nil {
		if cerr := st.Close(); cerr != nil {
			trace.Point(trace.FromContext(ctx), trace.ScopeDriver, "close", cerr.Error(), span.ID())
		}
		return nil, fmt.Errorf("index: %w", err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()

	out = &Outcome{RunID: req.RunID, Inputs: inputsDigest(st.Modules())}
	// Scan, resolve and synthesis errors already carry their stage.
	if out.Calls, err = r.GenericJobCalls(ctx); err != nil {
		return nil, err
	}
	if out.ScanStats, err = r.ScanStats(ctx); err != nil {
		return nil, err
	}
	if !req.CallsOnly {
		if out.Resolved, err = r.ResolveGenericJobs(ctx); err != nil {
			return nil, err
		}
		if req.Target != "" {
			if out.Report, err = r.AddTypes(ctx, req.Target, req.Group, out.Resolved.Instances); err != nil {
				return nil, err
			}
		}
	}
	out.Timings = timer.Report()
	return out, nil
}

// inputsDigest combines the module digests in name order.
func inputsDigest(mods []*meta.Module) meta.Digest {
	if len(mods) == 0 {
		return meta.Digest{}
	}
	sorted := slices.Clone(mods)
	slices.SortFunc(sorted, func(a, b *meta.Module) int {
		return strings.Compare(a.Name, b.Name)
	})
	rest := make([]meta.Digest, 0, len(sorted)-1)
	for _, m := range sorted[1:] {
		rest = append(rest, m.Digest)
	}
	return meta.Combine(sorted[0].Digest, rest...)
}
