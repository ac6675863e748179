// Package trace records what the arcc pipeline is doing: which stage runs,
// on which function, and for how long.
//
// Tracing is off by default and enabled from the command line:
//
//	arcc opt --trace=- --trace-level=detail prog.tir.yaml
//
// Tracers:
//
//   - Nop: the disabled tracer
//   - StreamTracer: writes each event as it happens
//   - RingTracer: keeps the last N events for a dump after a failure
//   - MultiTracer: fans out to several tracers
//
// Scopes, from coarse to fine: ScopeDriver (CLI command), ScopePass
// (pipeline stage over the module), ScopeFunc (one function in one stage)
// and ScopeBlock. LevelPhase shows driver and pass events, LevelDetail adds
// functions and LevelDebug shows everything.
//
// A tracer travels in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "rcelim", 0)
//	defer span.End("")
package trace
