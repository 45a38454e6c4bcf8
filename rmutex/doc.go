// Package rmutex implements a reentrant mutual exclusion lock, and a scoped
// guard, for use with any [sync.Locker].
//
// Reentrancy is keyed on the calling goroutine, see
// [github.com/joeycumines/go-osal/goroutineid]. A goroutine already holding a
// [Mutex] may lock it again without blocking, and must unlock it the same
// number of times before any other goroutine may acquire it. This supports
// call stacks that re-enter a guarded region, e.g. a callback invoked while
// the lock is held during setup.
//
// The [Tracker] type provides opt-in lock order checking, for named locks.
package rmutex
