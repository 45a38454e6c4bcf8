// Package threadmanager provides a factory for blocking periodic threads,
// which tracks the threads it creates, so that they may be torn down
// together.
//
// Components depend on the [Manager] interface, and are provided an instance,
// typically a [DefaultManager], rather than using a process-wide singleton.
package threadmanager
