// Package config holds the engine's compile-time constants (session
// idle timeout, event fan-out sizing, write timeout). Ports and the
// other runtime parameters are command-line flags of cmd/matchd.
package config

import "time"

const (
	// SessionIdleTimeout closes a TCP session that has sent nothing
	// (not even PING) for this long.
	SessionIdleTimeout = 5 * time.Minute

	// MaxEventsPerFlush bounds how many queued async events a
	// session's write pump drains in one pass before yielding, so one
	// very active session can't starve the others' write deadlines.
	MaxEventsPerFlush = 256

	// WriteTimeout bounds a single frame write to a session's socket.
	WriteTimeout = 10 * time.Second
)
