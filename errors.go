package redisserver

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every option or config validation failure
	ErrInvalidConfig = errors.New("redisserver: invalid configuration")

	// ErrAlreadyStarted is returned by a second call to Start
	ErrAlreadyStarted = errors.New("redisserver: already started")

	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("redisserver: closed")
)

// ConnectionError reports an address the server could not use: a listener
// that failed to bind, or a primary address that cannot be dialed.
type ConnectionError struct {
	Op   string // "listen", "metrics" or "replicaof"
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("redisserver: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("redisserver: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
