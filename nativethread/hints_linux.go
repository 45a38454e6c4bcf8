//go:build linux

package nativethread

import (
	"golang.org/x/sys/unix"
)

// applyHints must be called on the locked OS thread. On Linux, the "process"
// priority of a thread ID applies to that thread only.
func applyHints(priority int) error {
	if priority == 0 {
		return nil
	}
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), priority)
}
