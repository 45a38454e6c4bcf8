// Package soak runs a fleet of periodic workers, sharing recursive locks,
// for a fixed duration, reporting how each worker exited.
package soak
