package goroutineid

import (
	"runtime"
)

const stackPrefix = `goroutine `

// Get returns the ID of the calling goroutine. IDs are positive, and are not
// reused while the goroutine is alive. A return value of 0 indicates that the
// ID could not be determined, which should not happen in practice.
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parse(buf[:n])
}

// parse extracts the ID from a stack header, e.g. "goroutine 18 [running]:".
func parse(b []byte) (id uint64) {
	if len(b) < len(stackPrefix) || string(b[:len(stackPrefix)]) != stackPrefix {
		return 0
	}
	for _, c := range b[len(stackPrefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
