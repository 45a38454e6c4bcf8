package diag

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// started lazily by the rate limiter, and stops on its own, once idle
		goleak.IgnoreAnyFunction(`github.com/joeycumines/go-catrate.(*Limiter).worker`),
	)
}

func decodeLines(t *testing.T, s string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line == `` {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSON(&buf, logiface.LevelInformational)

	logger.Info().Str(`name`, `alpha`).Log(`started`)
	logger.Debug().Log(`filtered`)
	logger.Err().Err(errors.New(`boom`)).Log(`failed`)

	lines := decodeLines(t, buf.String())
	require.Len(t, lines, 2)

	assert.Equal(t, `info`, lines[0][`lvl`])
	assert.Equal(t, `started`, lines[0][`msg`])
	assert.Equal(t, `alpha`, lines[0][`name`])
	assert.Contains(t, lines[0], DefaultTimeField)

	assert.Equal(t, `err`, lines[1][`lvl`])
	assert.Equal(t, `boom`, lines[1][`err`])
}

func TestNewJSON_withoutTimeField(t *testing.T) {
	var buf bytes.Buffer
	NewJSON(&buf, logiface.LevelInformational, WithTimeField(``)).Info().Log(`x`)
	lines := decodeLines(t, buf.String())
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], DefaultTimeField)
}

func TestNewJSON_rateLimits(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSON(&buf, logiface.LevelInformational, WithRateLimits(map[time.Duration]int{time.Minute: 1}))
	for i := 0; i < 5; i++ {
		logger.Warning().Limit().Int(`i`, i).Log(`limited`)
	}
	assert.Len(t, decodeLines(t, buf.String()), 1)
}

func TestNewJSON_nilWriter(t *testing.T) {
	assert.PanicsWithValue(t, `diag: nil writer`, func() { NewJSON(nil, logiface.LevelInformational) })
}

func TestSynchronized(t *testing.T) {
	assert.PanicsWithValue(t, `diag: nil writer`, func() { Synchronized(nil) })

	var buf bytes.Buffer
	logger := NewJSON(Synchronized(&buf), logiface.LevelInformational)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Info().Int(`i`, i).Int(`j`, j).Log(`concurrent`)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, decodeLines(t, buf.String()), 400)
}

func TestDisabled(t *testing.T) {
	logger := Disabled()
	require.NotNil(t, logger)
	assert.False(t, logger.Info().Enabled())
	assert.False(t, logger.Err().Enabled())
}

func TestNewSlog(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := NewSlog(handler, logiface.LevelTrace)

	logger.Info().Str(`dropped`, `by handler`).Log(`info`)
	logger.Warning().Str(`worker`, `w1`).Str(`status`, `exited`).Log(`task exited`)

	lines := decodeLines(t, buf.String())
	require.Len(t, lines, 1)
	assert.Equal(t, `WARN`, lines[0][`level`])
	assert.Equal(t, `task exited`, lines[0][`msg`])
	assert.Equal(t, `w1`, lines[0][`worker`])
	assert.Equal(t, `exited`, lines[0][`status`])
	assert.NotContains(t, lines[0], levelField)
}

func TestNewSlog_preservesFieldOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlog(slog.NewTextHandler(&buf, nil), logiface.LevelInformational)
	logger.Info().Str(`b`, `1`).Str(`a`, `2`).Str(`c`, `3`).Log(`ordered`)
	out := buf.String()
	ib, ia, ic := strings.Index(out, `b=1`), strings.Index(out, `a=2`), strings.Index(out, `c=3`)
	require.True(t, ib >= 0 && ia >= 0 && ic >= 0, out)
	assert.Less(t, ib, ia)
	assert.Less(t, ia, ic)
}

func TestNewConsole(t *testing.T) {
	var console, file bytes.Buffer
	logger := NewConsole(&console, logiface.LevelInformational, `soak`, slog.NewJSONHandler(&file, nil))

	logger.Notice().Str(`name`, `counter`).Log(`starting task`)
	logger.Debug().Log(`filtered by level`)

	assert.Contains(t, console.String(), `starting task`)
	assert.NotContains(t, console.String(), `filtered by level`)

	lines := decodeLines(t, file.String())
	require.Len(t, lines, 1)
	assert.Equal(t, `counter`, lines[0][`name`])
}

func TestWarning(t *testing.T) {
	t.Run(`nil logger`, func(t *testing.T) {
		old := stderr
		defer func() { stderr = old }()
		var buf bytes.Buffer
		stderr = &buf
		Warning(nil, `careful`)
		assert.Equal(t, "careful\n", buf.String())
	})
	t.Run(`logger`, func(t *testing.T) {
		var buf bytes.Buffer
		Warning(NewJSON(&buf, logiface.LevelWarning), `careful`)
		lines := decodeLines(t, buf.String())
		require.Len(t, lines, 1)
		assert.Equal(t, `warning`, lines[0][`lvl`])
		assert.Equal(t, `careful`, lines[0][`msg`])
	})
}

func TestDefault(t *testing.T) {
	old := stderr
	defer func() { stderr = old }()
	var buf bytes.Buffer
	stderr = &buf
	logger := Default()
	logger.Debug().Log(`hidden`)
	logger.Info().Log(`shown`)
	lines := decodeLines(t, buf.String())
	require.Len(t, lines, 1)
	assert.Equal(t, `shown`, lines[0][`msg`])
}

func TestParseLevel(t *testing.T) {
	for _, tc := range [...]struct {
		input   string
		want    logiface.Level
		wantErr bool
	}{
		{`trace`, logiface.LevelTrace, false},
		{`DEBUG`, logiface.LevelDebug, false},
		{` info `, logiface.LevelInformational, false},
		{``, logiface.LevelInformational, false},
		{`notice`, logiface.LevelNotice, false},
		{`warn`, logiface.LevelWarning, false},
		{`warning`, logiface.LevelWarning, false},
		{`error`, logiface.LevelError, false},
		{`err`, logiface.LevelError, false},
		{`crit`, logiface.LevelCritical, false},
		{`alert`, logiface.LevelAlert, false},
		{`emerg`, logiface.LevelEmergency, false},
		{`off`, logiface.LevelDisabled, false},
		{`verbose`, logiface.LevelDisabled, true},
	} {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseLevel(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseLevel_roundTrip(t *testing.T) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		got, err := ParseLevel(level.String())
		require.NoError(t, err, level.String())
		assert.Equal(t, level, got)
	}
}

func TestSlogLevel(t *testing.T) {
	for _, tc := range [...]struct {
		level logiface.Level
		want  slog.Level
	}{
		{logiface.LevelTrace, slog.LevelDebug - 4},
		{logiface.LevelDebug, slog.LevelDebug},
		{logiface.LevelInformational, slog.LevelInfo},
		{logiface.LevelNotice, slog.LevelInfo},
		{logiface.LevelWarning, slog.LevelWarn},
		{logiface.LevelError, slog.LevelError},
		{logiface.LevelCritical, slog.LevelError + 4},
		{logiface.LevelEmergency, slog.LevelError + 4},
	} {
		assert.Equal(t, tc.want, SlogLevel(tc.level), tc.level.String())
	}
}

func TestSlogWriter_invalidInput(t *testing.T) {
	w := &slogWriter{handler: slog.NewTextHandler(&bytes.Buffer{}, nil)}
	for _, input := range [...]string{``, `[]`, `{"a":`, `"str"`} {
		_, err := w.Write([]byte(input))
		assert.Error(t, err, input)
	}
}
