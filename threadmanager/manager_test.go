package threadmanager

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-osal/diag"
	"github.com/joeycumines/go-osal/nativethread"
	"github.com/joeycumines/go-osal/periodic"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction(`github.com/joeycumines/go-catrate.(*Limiter).worker`),
	)
}

func counting(n *atomic.Int64) periodic.Runnable {
	return periodic.RunnableFunc(func() {
		n.Add(1)
		time.Sleep(time.Millisecond)
	})
}

func names(threads []Thread) []string {
	out := make([]string, len(threads))
	for i, t := range threads {
		out[i] = t.Name()
	}
	return out
}

func TestDefaultManager_NewBlockingPeriodicThread(t *testing.T) {
	m := NewDefaultManager(nil)
	var n atomic.Int64
	th, err := m.NewBlockingPeriodicThread(counting(&n), `alpha`)
	require.NoError(t, err)
	require.Equal(t, `alpha`, th.Name())
	require.True(t, th.IsRunning())
	require.Eventually(t, func() bool { return n.Load() > 3 }, time.Second*5, time.Millisecond)

	th.Stop()
	require.Eventually(t, func() bool { return !th.IsRunning() }, time.Second*5, time.Millisecond)
	require.NoError(t, th.Close())
	require.Empty(t, m.Threads())
	require.NoError(t, m.Close())
}

func TestDefaultManager_Threads(t *testing.T) {
	m := NewDefaultManager(nil)
	var n atomic.Int64
	a, err := m.NewBlockingPeriodicThread(counting(&n), `a`)
	require.NoError(t, err)
	_, err = m.NewBlockingPeriodicThread(counting(&n), `b`)
	require.NoError(t, err)
	_, err = m.NewBlockingPeriodicThread(counting(&n), `c`)
	require.NoError(t, err)
	require.Equal(t, []string{`a`, `b`, `c`}, names(m.Threads()))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.Equal(t, []string{`b`, `c`}, names(m.Threads()))

	require.NoError(t, m.Close())
	require.Empty(t, m.Threads())
}

func TestDefaultManager_Close_joinsFaults(t *testing.T) {
	var buf bytes.Buffer
	m := NewDefaultManager(&ManagerConfig{Logger: diag.NewJSON(diag.Synchronized(&buf), logiface.LevelInformational)})

	sentinel := errors.New(`sentinel`)
	var n atomic.Int64
	_, err := m.NewBlockingPeriodicThread(periodic.RunnableFunc(func() { panic(sentinel) }), `faulty`)
	require.NoError(t, err)
	healthy, err := m.NewBlockingPeriodicThread(counting(&n), `healthy`)
	require.NoError(t, err)
	_, err = m.NewBlockingPeriodicThread(periodic.RunnableFunc(func() { panic(`second`) }), `also faulty`)
	require.NoError(t, err)

	err = m.Close()
	require.ErrorIs(t, err, sentinel)
	var pe *periodic.PanicError
	require.ErrorAs(t, err, &pe)
	require.Contains(t, err.Error(), `"faulty"`)
	require.Contains(t, err.Error(), `"also faulty"`)
	require.NotContains(t, err.Error(), `"healthy"`)
	require.False(t, healthy.IsRunning())

	_, err = m.NewBlockingPeriodicThread(counting(&n), `late`)
	require.ErrorIs(t, err, ErrClosed)

	var closed bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var fields map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &fields))
		if fields[`msg`] == `thread manager closed` {
			closed = true
			assert.EqualValues(t, 3, fields[`threads`])
			assert.EqualValues(t, 2, fields[`faults`])
		}
	}
	require.True(t, closed)
}

func TestDefaultManager_MaxThreads(t *testing.T) {
	m := NewDefaultManager(&ManagerConfig{MaxThreads: 2})
	require.Equal(t, 2, m.Budget().Limit())
	defer m.Close()

	var n atomic.Int64
	a, err := m.NewBlockingPeriodicThread(counting(&n), `a`)
	require.NoError(t, err)
	_, err = m.NewBlockingPeriodicThread(counting(&n), `b`)
	require.NoError(t, err)

	_, err = m.NewBlockingPeriodicThread(counting(&n), `c`)
	require.ErrorIs(t, err, nativethread.ErrResourceExhausted)
	require.Len(t, m.Threads(), 2)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return m.Budget().Live() == 1 }, time.Second*5, time.Millisecond)

	_, err = m.NewBlockingPeriodicThread(counting(&n), `c`)
	require.NoError(t, err)
}

func TestDefaultManager_workerBudgetTakesPrecedence(t *testing.T) {
	budget := nativethread.NewBudget(1)
	m := NewDefaultManager(&ManagerConfig{
		MaxThreads: 5,
		Worker:     &periodic.WorkerConfig{Thread: &nativethread.Config{Budget: budget, Name: `ignored`}},
	})
	require.Same(t, budget, m.Budget())
	defer m.Close()

	var n atomic.Int64
	th, err := m.NewBlockingPeriodicThread(counting(&n), `only`)
	require.NoError(t, err)
	require.Equal(t, `only`, th.Name())
	_, err = m.NewBlockingPeriodicThread(counting(&n), `another`)
	require.ErrorIs(t, err, nativethread.ErrResourceExhausted)
}

func TestDefaultManager_SpawnRates(t *testing.T) {
	var buf bytes.Buffer
	m := NewDefaultManager(&ManagerConfig{
		Logger:     diag.NewJSON(diag.Synchronized(&buf), logiface.LevelWarning),
		SpawnRates: map[time.Duration]int{time.Minute: 2},
	})
	defer m.Close()

	var n atomic.Int64
	for i := 0; i < 2; i++ {
		th, err := m.NewBlockingPeriodicThread(counting(&n), `respawn`)
		require.NoError(t, err)
		require.NoError(t, th.Close())
	}

	_, err := m.NewBlockingPeriodicThread(counting(&n), `respawn`)
	require.ErrorIs(t, err, ErrSpawnLimited)
	require.Contains(t, err.Error(), `"respawn"`)
	require.Contains(t, buf.String(), `thread spawn rate limited`)

	// separate category
	_, err = m.NewBlockingPeriodicThread(counting(&n), `other`)
	require.NoError(t, err)
}

func TestNewDefaultManager_invalidSpawnRates(t *testing.T) {
	require.Panics(t, func() {
		NewDefaultManager(&ManagerConfig{SpawnRates: map[time.Duration]int{-time.Second: 1}})
	})
}

func TestNewDefaultManager_defaultLogger(t *testing.T) {
	var buf bytes.Buffer
	old := defaultLogger
	defer func() { defaultLogger = old }()
	defaultLogger = func() *diag.Logger {
		return diag.NewJSON(diag.Synchronized(&buf), logiface.LevelInformational)
	}

	m := NewDefaultManager(nil)
	var n atomic.Int64
	_, err := m.NewBlockingPeriodicThread(counting(&n), `implicit`)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	var msgs []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var fields map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &fields))
		msgs = append(msgs, fields[`msg`].(string))
	}
	require.Equal(t, []string{`starting task`, `task exited normally`, `thread manager closed`}, msgs)
}
