// Package nativethread wraps the creation of a single OS thread, running a
// single entry function with a single opaque argument.
//
// Each [Thread] is backed by a goroutine locked to its own OS thread, via
// [runtime.LockOSThread]. The goroutine never unlocks, which causes the Go
// runtime to terminate the OS thread once the entry function returns, rather
// than returning it to the scheduler with any applied hints still in effect.
//
// Handles do not provide a join primitive, and [Thread.Close] never blocks on
// the thread. Owners that require join semantics must implement them, e.g. by
// polling a completion flag set by the entry function.
package nativethread
