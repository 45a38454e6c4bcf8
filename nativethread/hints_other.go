//go:build !linux

package nativethread

func applyHints(int) error { return nil }
