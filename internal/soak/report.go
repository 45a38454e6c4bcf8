package soak

import (
	"github.com/goccy/go-yaml"
)

type (
	// Report summarizes a soak run.
	Report struct {
		Duration string         `yaml:"duration"`
		Elapsed  string         `yaml:"elapsed"`
		Workers  []WorkerReport `yaml:"workers"`
		Locks    []LockReport   `yaml:"locks,omitempty"`
	}

	WorkerReport struct {
		Name       string `yaml:"name"`
		Iterations uint64 `yaml:"iterations"`
		ExitCode   int    `yaml:"exit_code"`
		Fault      string `yaml:"fault,omitempty"`
	}

	LockReport struct {
		Name         string `yaml:"name"`
		Acquisitions uint64 `yaml:"acquisitions"`
	}
)

// Faults returns the number of workers that exited due to a fault.
func (x *Report) Faults() int {
	var n int
	for _, w := range x.Workers {
		if w.Fault != `` {
			n++
		}
	}
	return n
}

// YAML encodes the report.
func (x *Report) YAML() ([]byte, error) {
	return yaml.Marshal(x)
}
