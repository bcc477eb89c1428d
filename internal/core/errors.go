package core

import "errors"

var (
	// ErrNotFound: session or connection unknown. Recoverable, the caller
	// may retry a fresh create/join.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRegistered: a producer is already set for the session.
	// The second registration is rejected, never overwritten.
	ErrAlreadyRegistered = errors.New("producer already registered")
	// ErrInjectionUnavailable: no virtual controller backend on this host.
	// The session still proceeds for video, input has no effect.
	ErrInjectionUnavailable = errors.New("input injection unavailable")
	// ErrLaunchFailed: the external emulator process could not start.
	ErrLaunchFailed = errors.New("launch failed")
)
