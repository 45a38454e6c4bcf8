package periodic

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-osal/clock"
	"github.com/joeycumines/go-osal/diag"
	"github.com/joeycumines/go-osal/goroutineid"
	"github.com/joeycumines/go-osal/nativethread"
)

type (
	// Runnable is the callback invoked by a Worker.
	Runnable interface {
		// RunOnce performs one unit of work. It is called repeatedly, and
		// never concurrently, from the worker thread.
		RunOnce()
	}

	// RunnableFunc adapts a function to Runnable.
	RunnableFunc func()

	// State is the lifecycle state of a Worker.
	State int32

	// WorkerConfig models optional configuration, for New.
	WorkerConfig struct {
		// Logger receives the task lifecycle events.
		// **Defaults to diag.Default(), if nil, or WorkerConfig is nil.**
		// Use diag.Disabled() to opt out.
		Logger *diag.Logger

		// Thread configures the underlying thread. The name defaults to the
		// worker name.
		Thread *nativethread.Config

		// Clock is used to sleep while polling, in Close.
		// **Defaults to clock.System, if nil.**
		Clock clock.Clock

		// PollInterval is the sleep between checks for thread exit, in
		// Close. Values are rounded down to whole milliseconds, with a minimum
		// of 1ms.
		// **Defaults to 1ms, if 0, or WorkerConfig is nil.**
		PollInterval time.Duration
	}

	// Worker repeatedly invokes a Runnable on a dedicated thread, and must be
	// initialized using New.
	Worker struct {
		runnable   Runnable
		logger     *diag.Logger
		clock      clock.Clock
		thread     *nativethread.Thread
		fault      atomic.Pointer[error]
		name       string
		pollMillis int64
		closeOnce  sync.Once
		iterations atomic.Uint64
		goroutine  atomic.Uint64 // id of the worker thread, once entered
		exitCode   atomic.Int32
		run        atomic.Bool
		running    atomic.Bool
	}
)

const (
	// Starting indicates the thread has not yet entered the loop.
	Starting State = iota
	// Running indicates the loop is active.
	Running
	// StopRequested indicates Stop was called, but the thread has not yet
	// exited.
	StopRequested
	// Exited indicates the thread has left the loop, permanently.
	Exited
)

const (
	// ExitNormal is the exit code after a stop request was observed.
	ExitNormal = 0
	// ExitFault is the exit code after a fault in the Runnable.
	ExitFault = 1
)

const (
	defaultPollInterval = time.Millisecond
)

// for testing purposes
var defaultLogger = diag.Default

var (
	// compile time assertions

	_ Runnable = RunnableFunc(nil)
)

func (f RunnableFunc) RunOnce() { f() }

func (s State) String() string {
	switch s {
	case Starting:
		return `starting`
	case Running:
		return `running`
	case StopRequested:
		return `stop requested`
	case Exited:
		return `exited`
	default:
		return fmt.Sprintf(`State(%d)`, int32(s))
	}
}

// New starts a thread that calls runnable.RunOnce until the Worker is
// stopped. The runnable is not owned by the Worker, and must outlive it. The
// name is used for diagnostics. The config may be nil.
//
// An error is returned if the thread could not be started, in which case
// runnable will never be called.
func New(runnable Runnable, name string, config *WorkerConfig) (*Worker, error) {
	if runnable == nil {
		panic(`periodic: nil runnable`)
	}

	x := Worker{
		runnable:   runnable,
		name:       name,
		clock:      clock.System,
		pollMillis: defaultPollInterval.Milliseconds(),
	}
	var threadConfig nativethread.Config
	if config != nil {
		x.logger = config.Logger
		if config.Clock != nil {
			x.clock = config.Clock
		}
		if config.PollInterval != 0 {
			x.pollMillis = max(config.PollInterval.Milliseconds(), 1)
		}
		if config.Thread != nil {
			threadConfig = *config.Thread
		}
	}
	if threadConfig.Name == `` {
		threadConfig.Name = name
	}
	if x.logger == nil {
		x.logger = defaultLogger()
	}

	x.run.Store(true)
	x.running.Store(true)
	x.thread = nativethread.New(taskMain, &threadConfig)

	x.logger.Info().
		Str(`task`, name).
		Log(`starting task`)

	if err := x.thread.Start(&x); err != nil {
		_ = x.thread.Close()
		x.run.Store(false)
		x.running.Store(false)
		x.logger.Err().
			Str(`task`, name).
			Err(err).
			Log(`task failed to start`)
		return nil, fmt.Errorf(`periodic: start task %q: %w`, name, err)
	}

	return &x, nil
}

// Name returns the diagnostic name of the worker.
func (x *Worker) Name() string {
	return x.name
}

// Stop requests that the loop exit. It does not wait. A call to RunOnce that
// is in progress will complete, but no further calls will be started.
func (x *Worker) Stop() {
	x.run.Store(false)
}

// IsRunning reports whether the thread is still inside the loop. Once it
// returns false, it will never return true again.
func (x *Worker) IsRunning() bool {
	return x.running.Load()
}

// State returns the current lifecycle state.
func (x *Worker) State() State {
	switch {
	case !x.running.Load():
		return Exited
	case !x.run.Load():
		return StopRequested
	case x.goroutine.Load() == 0:
		return Starting
	default:
		return Running
	}
}

// Err returns the captured fault, which will be either a *PanicError or
// ErrGoexit, or nil if the worker has not faulted.
func (x *Worker) Err() error {
	if err := x.fault.Load(); err != nil {
		return *err
	}
	return nil
}

// ExitCode returns ExitNormal or ExitFault, and is only meaningful after
// IsRunning returns false.
func (x *Worker) ExitCode() int {
	return int(x.exitCode.Load())
}

// Iterations returns the number of calls to RunOnce that have returned.
func (x *Worker) Iterations() uint64 {
	return x.iterations.Load()
}

// Close stops the worker, then blocks until the thread has exited the loop,
// polling at the configured interval, before releasing the thread. It returns
// the captured fault, if any. It is safe to call Close multiple times,
// including concurrently, though it must not be called from the Runnable.
func (x *Worker) Close() error {
	if id := x.goroutine.Load(); id != 0 && id == goroutineid.Get() {
		panic(`periodic: close called from the worker thread`)
	}
	x.closeOnce.Do(func() {
		x.Stop()
		for x.running.Load() {
			x.clock.SleepMillis(x.pollMillis)
		}
		_ = x.thread.Close()
	})
	return x.Err()
}

// taskMain is the thread entry point, called with the *Worker.
func taskMain(arg any) int {
	return arg.(*Worker).loop()
}

func (x *Worker) loop() (code int) {
	x.goroutine.Store(goroutineid.Get())

	var completed bool
	defer func() {
		if completed {
			return
		}
		// only a panic or runtime.Goexit reach here
		var err error
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		} else {
			err = ErrGoexit
		}
		code = ExitFault
		x.exit(code, err)
	}()

	for x.run.Load() {
		x.runnable.RunOnce()
		x.iterations.Add(1)
	}

	completed = true
	x.exit(ExitNormal, nil)
	return ExitNormal
}

// exit publishes the outcome, and frees the thread's budget slot, then clears
// the running flag, which must be the last write by the worker thread.
func (x *Worker) exit(code int, err error) {
	x.exitCode.Store(int32(code))
	if err != nil {
		x.fault.Store(&err)
		x.logger.Err().
			Limit().
			Str(`task`, x.name).
			Uint64(`iterations`, x.iterations.Load()).
			Err(err).
			Log(`task exited with uncaught fault`)
	} else {
		x.logger.Info().
			Str(`task`, x.name).
			Uint64(`iterations`, x.iterations.Load()).
			Log(`task exited normally`)
	}
	// an owner may start a replacement as soon as Close returns
	x.thread.ReleaseBudget()
	x.running.Store(false)
}
