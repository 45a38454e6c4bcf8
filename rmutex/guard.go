package rmutex

import (
	"sync"
)

// Guard holds a borrowed lock, from Acquire until Release. It must not
// outlive the lock, and is intended for use by a single goroutine.
type Guard struct {
	locker   sync.Locker
	released bool
}

// Acquire locks locker, returning a Guard which must be released, typically
// via defer:
//
//	g := rmutex.Acquire(&mu)
//	defer g.Release()
//
// A panic will occur if locker is nil.
func Acquire(locker sync.Locker) *Guard {
	if locker == nil {
		panic(`rmutex: nil locker`)
	}
	locker.Lock()
	return &Guard{locker: locker}
}

// Release unlocks the guarded lock. Only the first call has any effect, so it
// is safe to release early, while also deferring Release.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.locker.Unlock()
}

// Do calls fn with locker held, releasing it once fn returns, including if fn
// panics.
func Do(locker sync.Locker, fn func()) {
	g := Acquire(locker)
	defer g.Release()
	fn()
}
