package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	levelField   = `lvl`
	messageField = `msg`
)

// slogWriter decodes the JSON lines produced by stumpy, re-emitting them as
// slog records. Each call to Write must contain exactly one event.
type slogWriter struct {
	handler slog.Handler
}

// for testing purposes
var timeNow = time.Now

// SlogLevel maps a logiface level to the closest slog level.
func SlogLevel(level logiface.Level) slog.Level {
	switch {
	case level > logiface.LevelDebug:
		return slog.LevelDebug - 4
	case level == logiface.LevelDebug:
		return slog.LevelDebug
	case level >= logiface.LevelNotice:
		return slog.LevelInfo
	case level == logiface.LevelWarning:
		return slog.LevelWarn
	case level == logiface.LevelError:
		return slog.LevelError
	default:
		// crit, alert, emerg (and disabled, which never reaches a writer)
		return slog.LevelError + 4
	}
}

func (x *slogWriter) Write(p []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()

	if tok, err := dec.Token(); err != nil {
		return 0, err
	} else if tok != json.Delim('{') {
		return 0, fmt.Errorf(`diag: expected json object, got %v`, tok)
	}

	var (
		level   = slog.LevelInfo
		message string
		attrs   []slog.Attr
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return 0, err
		}
		key, ok := tok.(string)
		if !ok {
			return 0, errors.New(`diag: expected json object key`)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return 0, err
		}
		switch key {
		case levelField:
			if s, ok := value.(string); ok {
				if l, err := ParseLevel(s); err == nil {
					level = SlogLevel(l)
				}
			}
		case messageField:
			message, _ = value.(string)
		default:
			attrs = append(attrs, slog.Any(key, normalizeValue(value)))
		}
	}

	ctx := context.Background()
	if !x.handler.Enabled(ctx, level) {
		return len(p), nil
	}

	record := slog.NewRecord(timeNow(), level, message, 0)
	record.AddAttrs(attrs...)
	if err := x.handler.Handle(ctx, record); err != nil {
		return 0, err
	}
	return len(p), nil
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeValue(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalizeValue(e)
		}
		return v
	default:
		return v
	}
}
