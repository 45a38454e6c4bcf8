package rmutex

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-osal/goroutineid"
)

// Mutex is a reentrant mutual exclusion lock. The zero value is an unlocked
// mutex. A Mutex must not be copied after first use.
type Mutex struct {
	mu    sync.Mutex
	owner atomic.Uint64 // goroutine ID, or 0
	depth int           // only accessed by the owner

	// set for named mutexes, see Tracker
	name    string
	tracker *Tracker
}

var _ sync.Locker = (*Mutex)(nil)

// for testing purposes
var goroutineID = goroutineid.Get

// caller returns the ID of the calling goroutine, which must be non-zero, as
// 0 marks an unowned Mutex.
func caller() uint64 {
	id := goroutineID()
	if id == 0 {
		panic(`rmutex: unable to identify goroutine`)
	}
	return id
}

// Lock blocks until the calling goroutine holds m. If the calling goroutine
// already holds m, Lock increments the hold count, and returns immediately.
func (m *Mutex) Lock() {
	id := caller()
	if m.owner.Load() == id {
		m.depth++
		return
	}
	if m.tracker != nil {
		m.tracker.check(id, m.name)
	}
	m.mu.Lock()
	m.acquired(id)
}

// TryLock attempts to lock m without blocking, reporting whether it succeeded.
// It always succeeds if the calling goroutine already holds m.
func (m *Mutex) TryLock() bool {
	id := caller()
	if m.owner.Load() == id {
		m.depth++
		return true
	}
	if m.tracker != nil {
		m.tracker.check(id, m.name)
	}
	if !m.mu.TryLock() {
		return false
	}
	m.acquired(id)
	return true
}

// Unlock decrements the hold count, releasing m once it reaches zero. It
// panics if the calling goroutine does not hold m.
func (m *Mutex) Unlock() {
	id := caller()
	if m.owner.Load() != id {
		panic(`rmutex: unlock of unowned mutex`)
	}
	m.depth--
	if m.depth > 0 {
		return
	}
	if m.tracker != nil {
		m.tracker.release(id, m.name)
	}
	m.owner.Store(0)
	m.mu.Unlock()
}

// HoldCount returns the number of times the calling goroutine has locked m,
// without a corresponding unlock. It returns 0 if the caller does not hold m.
func (m *Mutex) HoldCount() int {
	if id := goroutineID(); id == 0 || m.owner.Load() != id {
		return 0
	}
	return m.depth
}

// Name returns the name of m, which is only set for mutexes created via
// [Tracker.Mutex].
func (m *Mutex) Name() string {
	return m.name
}

func (m *Mutex) acquired(id uint64) {
	m.owner.Store(id)
	m.depth = 1
	if m.tracker != nil {
		m.tracker.hold(id, m.name)
	}
}
