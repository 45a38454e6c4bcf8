package soak

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joeycumines/go-osal/diag"
	"github.com/joeycumines/logiface"
)

// faultLogRates limits repeated lines from the same call site, e.g. the
// fault of every worker in a large fleet.
var faultLogRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

// NewLogger builds the logger described by cfg, writing to w, and appending
// JSON lines to the log file, if configured. The returned function closes
// the log file, and must be called once the logger is no longer in use.
func NewLogger(cfg LogConfig, w io.Writer, verbose bool) (*diag.Logger, func() error, error) {
	level, err := diag.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if verbose && level < logiface.LevelDebug {
		level = logiface.LevelDebug
	}

	var file *os.File
	closeFile := func() error { return nil }
	if cfg.File != `` {
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf(`soak: open log file: %w`, err)
		}
		closeFile = file.Close
	}

	switch cfg.Format {
	case ``, FormatConsole:
		var extra []slog.Handler
		if file != nil {
			extra = append(extra, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: diag.SlogLevel(level)}))
		}
		return diag.NewConsole(w, level, `soak`, extra...), closeFile, nil

	case FormatJSON:
		out := w
		if file != nil {
			out = io.MultiWriter(w, file)
		}
		return diag.NewJSON(diag.Synchronized(out), level, diag.WithRateLimits(faultLogRates)), closeFile, nil

	default:
		_ = closeFile()
		return nil, nil, fmt.Errorf(`soak: unknown log format %q`, cfg.Format)
	}
}
