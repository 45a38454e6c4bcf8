package clock

import (
	"time"
)

type (
	// Clock models the time primitives, allowing consumers to be provided an
	// alternate implementation, e.g. for testing.
	Clock interface {
		// NowMillis returns a monotonic timestamp, in milliseconds.
		NowMillis() int64

		// SleepMillis blocks the calling goroutine for at least ms
		// milliseconds. Values <= 0 return immediately.
		SleepMillis(ms int64)
	}

	systemClock struct{}
)

var (
	// System is the Clock backed by the Go runtime's monotonic clock.
	System Clock = systemClock{}

	// epoch is captured at init, and carries a monotonic clock reading.
	epoch = time.Now()

	// for testing purposes
	timeSleep = time.Sleep
)

// NowMillis returns the number of milliseconds elapsed since the process
// started. The value is monotonic, and unaffected by wall-clock adjustments.
func NowMillis() int64 {
	return time.Since(epoch).Milliseconds()
}

// SleepMillis blocks the calling goroutine for at least ms milliseconds. There
// is no upper bound on the actual duration. Values <= 0 return immediately.
func SleepMillis(ms int64) {
	if ms <= 0 {
		return
	}
	timeSleep(time.Duration(ms) * time.Millisecond)
}

// Since returns the number of milliseconds elapsed since the timestamp start,
// which must have been obtained from NowMillis.
func Since(start int64) int64 {
	return NowMillis() - start
}

func (systemClock) NowMillis() int64 { return NowMillis() }

func (systemClock) SleepMillis(ms int64) { SleepMillis(ms) }
