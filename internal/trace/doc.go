// Package trace records what the build pipeline is doing.
//
// A Tracer receives Events (span begin/end and instant points) tagged with a
// Scope. The configured Level decides which scopes are kept: "phase" keeps the
// driver and stage spans, "detail" adds per-unit spans, "debug" adds
// per-function detail. Tracers travel through context.Context; stages call
// StartSpan and defer End.
//
// Storage: StreamTracer writes immediately (text or NDJSON), RingTracer keeps
// the last N events for post-mortem dumps, MultiTracer fans out to both.
package trace
