// Package periodic runs a callback repeatedly, on a dedicated OS thread,
// until asked to stop.
//
// A [Worker] calls [Runnable.RunOnce] in a tight loop, with no pacing, and
// checks for a stop request between calls. Cancellation is therefore
// cooperative, at the granularity of one call. [Worker.Close] joins the
// thread by polling its running flag, which guarantees that no call to
// RunOnce is in progress, or will start, once Close returns.
//
// A panic (or [runtime.Goexit]) from RunOnce terminates the worker
// permanently. The fault is logged, captured, and returned by Close. It is
// never re-raised, and the worker is never restarted.
package periodic
