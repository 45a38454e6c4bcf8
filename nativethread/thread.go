package nativethread

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

type (
	// Func is the entry point of a thread. The return value is a status code,
	// by convention 0 for success.
	Func func(arg any) int

	// Config models optional configuration, for New.
	Config struct {
		// Budget limits the number of concurrently running threads, if
		// non-nil. It may be shared by any number of threads.
		Budget *Budget

		// Name is used for diagnostics, only.
		Name string

		// Priority is a hint, applied to the thread before the entry
		// function is called, if non-zero. On Linux, it is the nice value
		// of the thread (-20 to 19, lower is higher priority), and values
		// that the process is not permitted to set will cause Start to
		// fail. It is ignored on other platforms.
		Priority int

		// StackSize is a hint, which is recorded but ignored, as goroutine
		// stacks grow on demand.
		StackSize int
	}

	// Thread is a handle for a single OS thread, and must be initialized
	// using New.
	Thread struct {
		fn        Func
		budget    *Budget
		name      string
		priority  int
		stackSize int
		mu        sync.Mutex
		release   sync.Once
		started   bool
		closed    bool
	}
)

var (
	// ErrAlreadyStarted is returned by Thread.Start, if called more than once.
	ErrAlreadyStarted = errors.New(`nativethread: already started`)

	// ErrClosed is returned by Thread.Start, if the handle has been closed.
	ErrClosed = errors.New(`nativethread: handle closed`)

	// ErrResourceExhausted is returned by Thread.Start, if the thread could
	// not be created, due to the configured Budget.
	ErrResourceExhausted = errors.New(`nativethread: resource exhausted`)
)

// for testing purposes
var applyHintsFunc = applyHints

// New records fn and the hints from config, which may be nil. The thread is
// not started until Start is called. A panic will occur if fn is nil.
func New(fn Func, config *Config) *Thread {
	if fn == nil {
		panic(`nativethread: nil function`)
	}
	t := Thread{fn: fn}
	if config != nil {
		t.budget = config.Budget
		t.name = config.Name
		t.priority = config.Priority
		t.stackSize = config.StackSize
	}
	return &t
}

// Start spawns the OS thread, which calls the entry function with arg. It
// blocks only until the thread has been created, and the hints applied, and
// returns an error if either failed. Once Start returns nil, the entry
// function may already be running.
func (t *Thread) Start(arg any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.started {
		return ErrAlreadyStarted
	}

	if t.budget != nil && !t.budget.tryAcquire() {
		return fmt.Errorf(`%w: %q: limit of %d threads reached`, ErrResourceExhausted, t.name, t.budget.Limit())
	}

	ready := make(chan error, 1)
	go t.trampoline(arg, ready)
	if err := <-ready; err != nil {
		return err
	}

	t.started = true
	return nil
}

// IsReady reports whether the handle is valid, which is the case from
// construction until Close. It does not reflect the liveness of the thread.
func (t *Thread) IsReady() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Name returns the name from the Config, if any.
func (t *Thread) Name() string {
	return t.name
}

// StackSize returns the (ignored) stack size hint.
func (t *Thread) StackSize() int {
	return t.stackSize
}

// ReleaseBudget frees the thread's Budget slot, if any, ahead of the entry
// function returning, e.g. just before signalling completion to an owner that
// may immediately start a replacement. It must only be called from the
// thread itself. Only the first call has any effect.
func (t *Thread) ReleaseBudget() {
	t.release.Do(func() {
		if t.budget != nil {
			t.budget.release()
		}
	})
}

// Close releases the handle. It does not wait for, or otherwise affect, a
// running thread. Subsequent calls to Start will fail with ErrClosed.
func (t *Thread) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Thread) trampoline(arg any, ready chan<- error) {
	// never unlocked, see the package docs
	runtime.LockOSThread()

	if err := applyHintsFunc(t.priority); err != nil {
		// the handle remains unstarted, and may be started again
		if t.budget != nil {
			t.budget.release()
		}
		ready <- fmt.Errorf(`nativethread: %q: apply hints: %w`, t.name, err)
		return
	}
	defer t.ReleaseBudget()
	ready <- nil

	t.fn(arg)
}
