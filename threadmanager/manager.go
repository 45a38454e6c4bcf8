package threadmanager

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-osal/diag"
	"github.com/joeycumines/go-osal/nativethread"
	"github.com/joeycumines/go-osal/periodic"
)

type (
	// Thread is a periodic thread, as created by a Manager.
	Thread interface {
		// Name returns the name the thread was created with.
		Name() string

		// Stop requests the thread exit, without waiting.
		Stop()

		// IsRunning reports whether the thread is still running its loop.
		IsRunning() bool

		// Close stops the thread, and waits for it to exit, returning any
		// fault that caused the thread to exit early.
		Close() error
	}

	// Manager creates periodic threads.
	Manager interface {
		// NewBlockingPeriodicThread starts a thread that calls
		// runnable.RunOnce repeatedly, until the thread is stopped.
		NewBlockingPeriodicThread(runnable periodic.Runnable, name string) (Thread, error)
	}

	// ManagerConfig models optional configuration, for NewDefaultManager.
	ManagerConfig struct {
		// Logger receives the manager's events, and is the default logger for
		// the threads.
		// **Defaults to diag.Default(), if nil, or ManagerConfig is nil.**
		// Use diag.Disabled() to opt out.
		Logger *diag.Logger

		// Worker is the configuration template for each thread. The
		// thread's name, and any defaults applied by the manager, override
		// the template's values.
		Worker *periodic.WorkerConfig

		// MaxThreads limits the number of concurrently running threads, if
		// positive. It is ignored if Worker provides a budget.
		MaxThreads int

		// SpawnRates limits the rate at which threads may be created, per
		// name, if non-empty. It is intended to guard against respawn loops
		// of faulting threads. See [catrate.NewLimiter] for the semantics.
		SpawnRates map[time.Duration]int
	}

	// DefaultManager is the standard Manager, and must be initialized using
	// NewDefaultManager.
	DefaultManager struct {
		logger  *diag.Logger
		spawns  *catrate.Limiter
		worker  periodic.WorkerConfig
		thread  nativethread.Config
		threads []*managedThread
		mu      sync.Mutex
		closed  bool
	}

	managedThread struct {
		*periodic.Worker
		manager *DefaultManager
	}
)

var (
	// ErrSpawnLimited is returned by DefaultManager.NewBlockingPeriodicThread,
	// if the spawn rate for the name has been exceeded.
	ErrSpawnLimited = errors.New(`threadmanager: spawn rate limited`)

	// ErrClosed is returned by DefaultManager.NewBlockingPeriodicThread, after
	// DefaultManager.Close.
	ErrClosed = errors.New(`threadmanager: manager closed`)
)

// for testing purposes
var defaultLogger = diag.Default

var (
	// compile time assertions

	_ Manager = (*DefaultManager)(nil)
	_ Thread  = (*managedThread)(nil)
)

// NewDefaultManager initializes a DefaultManager. The config may be nil.
// A panic will occur if the SpawnRates are invalid.
func NewDefaultManager(config *ManagerConfig) *DefaultManager {
	var x DefaultManager
	if config != nil {
		x.logger = config.Logger
		if config.Worker != nil {
			x.worker = *config.Worker
			if config.Worker.Thread != nil {
				x.thread = *config.Worker.Thread
			}
		}
		if x.thread.Budget == nil && config.MaxThreads > 0 {
			x.thread.Budget = nativethread.NewBudget(config.MaxThreads)
		}
		if len(config.SpawnRates) != 0 {
			x.spawns = catrate.NewLimiter(config.SpawnRates)
		}
	}
	if x.logger == nil {
		x.logger = defaultLogger()
	}
	if x.worker.Logger == nil {
		x.worker.Logger = x.logger
	}
	return &x
}

// NewBlockingPeriodicThread starts a periodic.Worker, tracking it until it
// is closed. The name is used for diagnostics, and as the spawn rate limit
// category.
func (x *DefaultManager) NewBlockingPeriodicThread(runnable periodic.Runnable, name string) (Thread, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil, ErrClosed
	}

	if next, ok := x.spawns.Allow(name); !ok {
		x.logger.Warning().
			Limit().
			Str(`task`, name).
			Time(`next`, next).
			Log(`thread spawn rate limited`)
		return nil, fmt.Errorf(`%w: %q: retry after %s`, ErrSpawnLimited, name, next.Format(time.RFC3339Nano))
	}

	worker := x.worker
	thread := x.thread
	thread.Name = name
	worker.Thread = &thread

	w, err := periodic.New(runnable, name, &worker)
	if err != nil {
		return nil, err
	}

	t := &managedThread{Worker: w, manager: x}
	x.threads = append(x.threads, t)

	x.logger.Debug().
		Str(`task`, name).
		Int(`threads`, len(x.threads)).
		Log(`thread created`)

	return t, nil
}

// Threads returns the threads that have not yet been closed, in the order
// they were created.
func (x *DefaultManager) Threads() []Thread {
	x.mu.Lock()
	defer x.mu.Unlock()
	threads := make([]Thread, len(x.threads))
	for i, t := range x.threads {
		threads[i] = t
	}
	return threads
}

// Budget returns the thread budget shared by all threads, or nil.
func (x *DefaultManager) Budget() *nativethread.Budget {
	return x.thread.Budget
}

// Close prevents the creation of new threads, then stops all tracked
// threads, before waiting for each to exit. The faults of all threads are
// joined, and returned.
func (x *DefaultManager) Close() error {
	x.mu.Lock()
	x.closed = true
	threads := slices.Clone(x.threads)
	x.mu.Unlock()

	// stop all first, so they exit concurrently
	for _, t := range threads {
		t.Stop()
	}

	var errs []error
	for _, t := range threads {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf(`%q: %w`, t.Name(), err))
		}
	}

	x.logger.Info().
		Int(`threads`, len(threads)).
		Int(`faults`, len(errs)).
		Log(`thread manager closed`)

	return errors.Join(errs...)
}

func (x *DefaultManager) remove(t *managedThread) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if i := slices.Index(x.threads, t); i >= 0 {
		x.threads = slices.Delete(x.threads, i, i+1)
	}
}

// Close closes the worker, then stops tracking it.
func (x *managedThread) Close() error {
	err := x.Worker.Close()
	x.manager.remove(x)
	return err
}
