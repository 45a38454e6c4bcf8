package nativethread

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Budget limits the number of concurrently running threads, across all the
// threads configured to use it. A slot is held from Thread.Start until the
// entry function returns.
type Budget struct {
	sem   *semaphore.Weighted
	limit int
	live  atomic.Int64
}

// NewBudget initializes a Budget allowing up to limit concurrent threads. A
// limit of 0 prevents any threads from starting. A panic will occur if limit
// is negative.
func NewBudget(limit int) *Budget {
	if limit < 0 {
		panic(`nativethread: negative budget`)
	}
	return &Budget{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
}

// Limit returns the maximum number of concurrent threads.
func (b *Budget) Limit() int {
	return b.limit
}

// Live returns the number of threads currently holding a slot.
func (b *Budget) Live() int {
	return int(b.live.Load())
}

func (b *Budget) tryAcquire() bool {
	if !b.sem.TryAcquire(1) {
		return false
	}
	b.live.Add(1)
	return true
}

func (b *Budget) release() {
	b.live.Add(-1)
	b.sem.Release(1)
}
