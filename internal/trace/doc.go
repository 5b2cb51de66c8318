// Package trace provides the tracing subsystem of jobmono.
//
// Tracing follows a resolution request through its stages (load, index, scan,
// resolve, synthesize) and records skipped method bodies, dead-end
// instantiations and module load failures, which are otherwise silent.
//
// # Usage
//
// Enable tracing via command-line flags:
//
//	jobmono resolve --trace=- --trace-level=detail Game.mod.mp
//
// # Levels
//
//   - LevelOff: No tracing
//   - LevelError: Only crash dumps
//   - LevelPhase: Driver and stage boundaries
//   - LevelDetail: Module-level events
//   - LevelDebug: Everything including per-method and per-call events
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePass, "scan", parentID)
//	defer span.End("")
package trace
