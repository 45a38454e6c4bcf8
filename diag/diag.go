package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/encodeous/tint"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	slogmulti "github.com/samber/slog-multi"
)

type (
	// Logger is the logger type accepted by the packages in this module.
	Logger = logiface.Logger[logiface.Event]

	// Option models optional configuration, for the logger factories.
	Option func(c *loggerConfig)

	syncWriter struct {
		w  io.Writer
		mu sync.Mutex
	}

	loggerConfig struct {
		rates     map[time.Duration]int
		timeField *string
	}
)

const (
	// DefaultTimeField is the JSON key used for event timestamps, by NewJSON.
	DefaultTimeField = `time`
)

// for testing purposes
var (
	stderr io.Writer = os.Stderr
)

// WithRateLimits enables category rate limiting, for events that opt in via
// [logiface.Builder.Limit], where the category is the calling code location.
// See [github.com/joeycumines/go-catrate] for the semantics of rates.
func WithRateLimits(rates map[time.Duration]int) Option {
	return func(c *loggerConfig) {
		c.rates = rates
	}
}

// WithTimeField overrides the JSON key used for the event timestamp. An empty
// string disables the timestamp.
func WithTimeField(field string) Option {
	return func(c *loggerConfig) {
		c.timeField = &field
	}
}

// NewJSON returns a logger that writes each event to w, as a single line of
// JSON. Writes are not synchronized, so w must be safe for concurrent use, if
// the logger is shared between goroutines.
func NewJSON(w io.Writer, level logiface.Level, options ...Option) *Logger {
	if w == nil {
		panic(`diag: nil writer`)
	}
	c := loggerConfig{timeField: ptr(DefaultTimeField)}
	for _, o := range options {
		o(&c)
	}
	return c.build(w, level)
}

// NewSlog returns a logger that emits each event via handler, as a
// [slog.Record]. Levels are mapped as per [SlogLevel]. Event fields are
// preserved, in order, as record attributes.
func NewSlog(handler slog.Handler, level logiface.Level, options ...Option) *Logger {
	if handler == nil {
		panic(`diag: nil handler`)
	}
	// the record carries its own timestamp
	c := loggerConfig{timeField: ptr(``)}
	for _, o := range options {
		o(&c)
	}
	return c.build(&slogWriter{handler: handler}, level)
}

// NewConsole returns a logger intended for interactive use, writing colorized
// human-readable lines to w, each prefixed with prefix (if non-empty). Any
// extra handlers will receive every event as well, e.g. to simultaneously
// write to a log file.
func NewConsole(w io.Writer, level logiface.Level, prefix string, extra ...slog.Handler) *Logger {
	if w == nil {
		panic(`diag: nil writer`)
	}
	handlers := make([]slog.Handler, 0, len(extra)+1)
	handlers = append(handlers, tint.NewHandler(w, &tint.Options{
		Level:        SlogLevel(level),
		TimeFormat:   `15:04:05.000`,
		CustomPrefix: prefix,
	}))
	for _, h := range extra {
		if h != nil {
			handlers = append(handlers, h)
		}
	}
	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = slogmulti.Fanout(handlers...)
	}
	return NewSlog(handler, level)
}

// Synchronized wraps w, serializing calls to Write, for use with NewJSON, if
// w is not otherwise safe for concurrent use.
func Synchronized(w io.Writer) io.Writer {
	if w == nil {
		panic(`diag: nil writer`)
	}
	return &syncWriter{w: w}
}

// Default returns a logger writing JSON lines to stderr, at the informational
// level.
func Default() *Logger {
	return NewJSON(stderr, logiface.LevelInformational)
}

// Disabled returns a logger that writes nothing, e.g. to opt out of the
// default logger, where a nil logger means Default.
func Disabled() *Logger {
	return NewJSON(io.Discard, logiface.LevelDisabled)
}

// Warning writes message as a warning. If logger is nil, the message is
// written to stderr, as a plain line of text.
func Warning(logger *Logger, message string) {
	if logger == nil {
		_, _ = fmt.Fprintln(stderr, message)
		return
	}
	logger.Warning().Log(message)
}

// ParseLevel parses the name of a level, accepting the names produced by
// [logiface.Level.String], as well as common aliases, case-insensitively.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case `disabled`, `off`, `none`:
		return logiface.LevelDisabled, nil
	case `emerg`, `emergency`:
		return logiface.LevelEmergency, nil
	case `alert`:
		return logiface.LevelAlert, nil
	case `crit`, `critical`:
		return logiface.LevelCritical, nil
	case `err`, `error`:
		return logiface.LevelError, nil
	case `warning`, `warn`:
		return logiface.LevelWarning, nil
	case `notice`:
		return logiface.LevelNotice, nil
	case `info`, `informational`, ``:
		return logiface.LevelInformational, nil
	case `debug`:
		return logiface.LevelDebug, nil
	case `trace`:
		return logiface.LevelTrace, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf(`diag: unknown level %q`, s)
	}
}

func (x *loggerConfig) build(w io.Writer, level logiface.Level) *Logger {
	stumpyOptions := []stumpy.Option{stumpy.WithWriter(w)}
	if x.timeField != nil {
		stumpyOptions = append(stumpyOptions, stumpy.WithTimeField(*x.timeField))
	}
	options := []logiface.Option[*stumpy.Event]{
		stumpy.L.WithStumpy(stumpyOptions...),
		stumpy.L.WithLevel(level),
	}
	if len(x.rates) != 0 {
		options = append(options, stumpy.L.WithCategoryRateLimits(x.rates))
	}
	return stumpy.L.New(options...).Logger()
}

func (x *syncWriter) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.w.Write(p)
}

func ptr[T any](v T) *T { return &v }
