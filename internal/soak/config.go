package soak

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joeycumines/go-osal/diag"
	"github.com/joeycumines/go-osal/rmutex"
)

type (
	// Config is the soak run, as loaded from YAML.
	Config struct {
		// Duration is how long the workers run for, e.g. "10s".
		Duration string `yaml:"duration"`

		// PollInterval is the join poll interval, used when closing each
		// worker. Defaults to 1ms, if empty.
		PollInterval string `yaml:"poll_interval,omitempty"`

		// MaxThreads limits the number of concurrently running workers, if
		// positive.
		MaxThreads int `yaml:"max_threads,omitempty"`

		// Priority is the (Linux) nice value applied to every worker thread,
		// if non-zero.
		Priority int `yaml:"priority,omitempty"`

		Log     LogConfig      `yaml:"log"`
		Locks   []LockConfig   `yaml:"locks,omitempty"`
		Workers []WorkerConfig `yaml:"workers"`
	}

	// LogConfig configures the run's logger.
	LogConfig struct {
		// Format is either "console" (the default) or "json".
		Format string `yaml:"format,omitempty"`

		// Level is the minimum level, see diag.ParseLevel.
		Level string `yaml:"level,omitempty"`

		// File is appended to, as JSON lines, if non-empty.
		File string `yaml:"file,omitempty"`
	}

	// LockConfig declares a named recursive lock.
	LockConfig struct {
		Name string `yaml:"name"`

		// MayHold lists the locks that may already be held, when acquiring
		// this one. Acquisitions violating this order fault the worker.
		MayHold []string `yaml:"may_hold,omitempty"`
	}

	// WorkerConfig declares a periodic worker.
	WorkerConfig struct {
		Name string `yaml:"name"`

		// Interval is the sleep at the end of each iteration, e.g. "5ms".
		// Defaults to no sleep, if empty.
		Interval string `yaml:"interval,omitempty"`

		// FaultAfter causes the worker to panic, on the iteration following
		// the given number of successful iterations, if positive.
		FaultAfter uint64 `yaml:"fault_after,omitempty"`

		// Locks are acquired in order, nested, twice each, on every
		// iteration.
		Locks []string `yaml:"locks,omitempty"`
	}
)

const (
	FormatConsole = `console`
	FormatJSON    = `json`
)

// DefaultConfig returns a small, valid Config, with a single faulting
// worker, and a lock order violation.
func DefaultConfig() *Config {
	return &Config{
		Duration:     `5s`,
		PollInterval: `1ms`,
		MaxThreads:   8,
		Log: LogConfig{
			Format: FormatConsole,
			Level:  `info`,
		},
		Locks: []LockConfig{
			{Name: `outer`},
			{Name: `inner`, MayHold: []string{`outer`}},
		},
		Workers: []WorkerConfig{
			{Name: `nested`, Interval: `1ms`, Locks: []string{`outer`, `inner`}},
			{Name: `inner-only`, Interval: `2ms`, Locks: []string{`inner`}},
			{Name: `busy`},
			{Name: `faulty`, Interval: `1ms`, FaultAfter: 100},
			{Name: `out-of-order`, Interval: `1ms`, Locks: []string{`inner`, `outer`}},
		},
	}
}

// LoadConfig reads, parses, and validates the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig parses and validates YAML. Unknown fields are rejected.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalWithOptions(b, &c, yaml.Strict()); err != nil {
		return nil, fmt.Errorf(`soak: parse config: %w`, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate returns an error describing every problem with the Config.
func (x *Config) Validate() error {
	var errs []error

	if d, err := parseDuration(x.Duration); err != nil {
		errs = append(errs, fmt.Errorf(`duration: %w`, err))
	} else if d <= 0 {
		errs = append(errs, errors.New(`duration: must be positive`))
	}
	if d, err := parseDuration(x.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf(`poll_interval: %w`, err))
	} else if d < 0 {
		errs = append(errs, errors.New(`poll_interval: must not be negative`))
	}
	if x.MaxThreads < 0 {
		errs = append(errs, errors.New(`max_threads: must not be negative`))
	}

	switch x.Log.Format {
	case ``, FormatConsole, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf(`log.format: unknown format %q`, x.Log.Format))
	}
	if _, err := diag.ParseLevel(x.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf(`log.level: %w`, err))
	}

	locks := make(map[string]struct{}, len(x.Locks))
	for i, l := range x.Locks {
		if l.Name == `` {
			errs = append(errs, fmt.Errorf(`locks[%d]: missing name`, i))
			continue
		}
		if _, ok := locks[l.Name]; ok {
			errs = append(errs, fmt.Errorf(`locks[%d]: duplicate name %q`, i, l.Name))
		}
		locks[l.Name] = struct{}{}
	}
	lockErrs := len(errs)
	for i, l := range x.Locks {
		for _, name := range l.MayHold {
			if _, ok := locks[name]; !ok {
				errs = append(errs, fmt.Errorf(`locks[%d]: may_hold: unknown lock %q`, i, name))
			}
		}
	}
	if len(errs) == lockErrs {
		if err := x.orderPolicy().Validate(); err != nil {
			errs = append(errs, fmt.Errorf(`locks: %w`, err))
		}
	}

	if len(x.Workers) == 0 {
		errs = append(errs, errors.New(`workers: at least one worker is required`))
	}
	workers := make(map[string]struct{}, len(x.Workers))
	for i, w := range x.Workers {
		if w.Name == `` {
			errs = append(errs, fmt.Errorf(`workers[%d]: missing name`, i))
		} else if _, ok := workers[w.Name]; ok {
			errs = append(errs, fmt.Errorf(`workers[%d]: duplicate name %q`, i, w.Name))
		}
		workers[w.Name] = struct{}{}
		if d, err := parseDuration(w.Interval); err != nil {
			errs = append(errs, fmt.Errorf(`workers[%d]: interval: %w`, i, err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf(`workers[%d]: interval: must not be negative`, i))
		}
		for j, name := range w.Locks {
			if _, ok := locks[name]; !ok {
				errs = append(errs, fmt.Errorf(`workers[%d]: locks: unknown lock %q`, i, name))
			} else if slices.Contains(w.Locks[:j], name) {
				// each lock is taken exactly twice, nested
				errs = append(errs, fmt.Errorf(`workers[%d]: locks: duplicate lock %q`, i, name))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf(`soak: invalid config: %w`, err)
	}
	return nil
}

func (x *Config) orderPolicy() rmutex.OrderPolicy {
	policy := make(rmutex.OrderPolicy, len(x.Locks))
	for _, l := range x.Locks {
		policy[l.Name] = l.MayHold
	}
	return policy
}

// parseDuration treats an empty string as zero
func parseDuration(s string) (time.Duration, error) {
	if s == `` {
		return 0, nil
	}
	return time.ParseDuration(s)
}
