package soak

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-osal/clock"
	"github.com/joeycumines/go-osal/diag"
	"github.com/joeycumines/go-osal/nativethread"
	"github.com/joeycumines/go-osal/periodic"
	"github.com/joeycumines/go-osal/rmutex"
	"github.com/joeycumines/go-osal/threadmanager"
)

type (
	// sharedLock is a named lock, and the state it guards
	sharedLock struct {
		mu           *rmutex.Mutex
		acquisitions uint64 // guarded by mu
	}

	soakWorker struct {
		name           string
		locks          []*sharedLock
		intervalMillis int64
		faultAfter     uint64
		calls          atomic.Uint64
		completed      atomic.Uint64
	}
)

// Run validates cfg, then runs its workers until the configured duration
// elapses, or ctx is canceled, whichever happens first. Worker faults are
// reported, rather than returned as errors. A nil logger means diag.Default.
func Run(ctx context.Context, cfg *Config, logger *diag.Logger) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	duration, _ := parseDuration(cfg.Duration)
	pollInterval, _ := parseDuration(cfg.PollInterval)

	tracker := rmutex.NewTracker(cfg.orderPolicy())
	locks := make(map[string]*sharedLock, len(cfg.Locks))
	for _, l := range cfg.Locks {
		locks[l.Name] = &sharedLock{mu: tracker.Mutex(l.Name)}
	}

	manager := threadmanager.NewDefaultManager(&threadmanager.ManagerConfig{
		Logger:     logger,
		MaxThreads: cfg.MaxThreads,
		Worker: &periodic.WorkerConfig{
			PollInterval: pollInterval,
			Thread:       &nativethread.Config{Priority: cfg.Priority},
		},
	})

	workers := make([]*soakWorker, len(cfg.Workers))
	threads := make([]threadmanager.Thread, len(cfg.Workers))
	for i, c := range cfg.Workers {
		interval, _ := parseDuration(c.Interval)
		w := &soakWorker{
			name:           c.Name,
			intervalMillis: interval.Milliseconds(),
			faultAfter:     c.FaultAfter,
		}
		for _, name := range c.Locks {
			w.locks = append(w.locks, locks[name])
		}
		t, err := manager.NewBlockingPeriodicThread(w, c.Name)
		if err != nil {
			_ = manager.Close()
			return nil, fmt.Errorf(`soak: start worker %q: %w`, c.Name, err)
		}
		workers[i] = w
		threads[i] = t
	}

	logger.Info().
		Int(`workers`, len(workers)).
		Dur(`duration`, duration).
		Log(`soak started`)

	start := clock.NowMillis()
	timer := time.NewTimer(duration)
	select {
	case <-ctx.Done():
		timer.Stop()
	case <-timer.C:
	}

	// stop all first, so they exit concurrently
	for _, t := range threads {
		t.Stop()
	}

	report := Report{
		Duration: duration.String(),
		Workers:  make([]WorkerReport, len(workers)),
	}
	for i, t := range threads {
		err := t.Close()
		r := WorkerReport{
			Name:       workers[i].name,
			Iterations: workers[i].completed.Load(),
			ExitCode:   periodic.ExitNormal,
		}
		if err != nil {
			r.ExitCode = periodic.ExitFault
			r.Fault = err.Error()
		}
		report.Workers[i] = r
	}
	if err := manager.Close(); err != nil {
		// all threads were already closed
		return nil, err
	}
	report.Elapsed = (time.Duration(clock.Since(start)) * time.Millisecond).String()

	for _, l := range cfg.Locks {
		report.Locks = append(report.Locks, LockReport{
			Name:         l.Name,
			Acquisitions: locks[l.Name].acquisitions,
		})
	}

	logger.Info().
		Int(`faults`, report.Faults()).
		Str(`elapsed`, report.Elapsed).
		Log(`soak finished`)

	return &report, nil
}

func (x *soakWorker) RunOnce() {
	if n := x.calls.Add(1); x.faultAfter > 0 && n > x.faultAfter {
		panic(fmt.Sprintf(`soak: %s: injected fault after %d iterations`, x.name, x.faultAfter))
	}
	x.lockNested(x.locks)
	x.completed.Add(1)
	clock.SleepMillis(x.intervalMillis)
}

// lockNested acquires each lock twice (reentrantly), holding all of them
// while the innermost critical section runs.
func (x *soakWorker) lockNested(locks []*sharedLock) {
	if len(locks) == 0 {
		return
	}
	l := locks[0]
	defer rmutex.Acquire(l.mu).Release()
	rmutex.Do(l.mu, func() {
		if depth := l.mu.HoldCount(); depth != 2 {
			panic(fmt.Sprintf(`soak: %s: lock %q held %d times, expected 2`, x.name, l.mu.Name(), depth))
		}
		l.acquisitions++
		x.lockNested(locks[1:])
	})
}
