// Package goroutineid exposes the runtime's identifier for the calling
// goroutine.
//
// The identifier is parsed from the header of [runtime.Stack], which is
// stable across supported Go releases, but is not free: expect on the order of
// a microsecond per call. It is intended for ownership checks, e.g. reentrant
// locking, and not as a general purpose goroutine-local storage key.
package goroutineid
