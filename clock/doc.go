// Package clock provides the millisecond time primitives used by the rest of
// this module: a monotonic timestamp, and a blocking sleep.
//
// Timestamps are relative to process start, and are intended only for
// measuring elapsed time, e.g. in diagnostics. They carry no relationship to
// wall-clock time.
package clock
