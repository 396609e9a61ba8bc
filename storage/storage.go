package storage

import (
	"time"
)

// Storage defines the keyspace operations the server relies on
type Storage interface {
	// Get returns the live value stored under key. Expired entries are
	// removed on the way and reported as absent.
	Get(key string) ([]byte, bool)

	// Set stores value with an absolute expiry; nil means no expiry.
	Set(key string, value []byte, expiry *time.Time) error

	// SetWithTTL stores value expiring ttl from now; ttl <= 0 means no expiry.
	SetWithTTL(key string, value []byte, ttl time.Duration) error

	// Del, Exists and FlushAll have no command behind them. They exist for
	// programs embedding the server, through Server.Storage, to seed or
	// reset the keyspace.
	Del(keys ...string) int64
	Exists(keys ...string) int64

	// Keys lists keys matching a glob pattern. The "*" pattern returns every
	// stored key, including ones that expired but were not yet read.
	Keys(pattern string) []string
	KeyCount() int64
	FlushAll() error

	Close() error
}

// Observer receives keyspace events. Callbacks run after the keyspace lock
// has been released and must not block.
type Observer interface {
	OnKeySet(key string)
	OnKeyDeleted(key string)
	OnKeyExpired(key string)
}
