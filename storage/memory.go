package storage

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("storage: closed")

// MemoryStorage is an in-memory keyspace guarded by a single mutex.
//
// Every operation, reads included, takes the exclusive lock: a read may find
// an expired entry and delete it. The lock is never held while calling out to
// observers or doing I/O.
type MemoryStorage struct {
	mu     sync.Mutex
	data   map[string]*Value
	closed bool

	now       func() time.Time
	observers []Observer
}

// MemoryOption is a function that configures a MemoryStorage instance
type MemoryOption func(*MemoryStorage)

// WithClock replaces time.Now, mostly for tests that exercise expiry
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithObserver registers an observer for keyspace events
func WithObserver(o Observer) MemoryOption {
	return func(s *MemoryStorage) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// NewMemory creates an empty keyspace
func NewMemory(opts ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{
		data: make(map[string]*Value),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves a value by key, deleting it first if it has expired
func (s *MemoryStorage) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	value, exists := s.data[key]
	if !exists {
		s.mu.Unlock()
		return nil, false
	}

	if value.IsExpiredAt(s.now()) {
		delete(s.data, key)
		s.mu.Unlock()
		s.notify(func(o Observer) { o.OnKeyExpired(key) })
		return nil, false
	}

	result := make([]byte, len(value.Data))
	copy(result, value.Data)
	s.mu.Unlock()

	return result, true
}

// Set stores a value with optional absolute expiration
func (s *MemoryStorage) Set(key string, value []byte, expiry *time.Time) error {
	v := &Value{Data: append([]byte(nil), value...)}
	if expiry != nil {
		e := *expiry
		v.Expiry = &e
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.data[key] = v
	s.mu.Unlock()

	s.notify(func(o Observer) { o.OnKeySet(key) })
	return nil
}

// SetWithTTL stores a value expiring ttl after the current instant
func (s *MemoryStorage) SetWithTTL(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Set(key, value, nil)
	}
	expiry := s.now().Add(ttl)
	return s.Set(key, value, &expiry)
}

// Del deletes one or more keys and returns how many existed
func (s *MemoryStorage) Del(keys ...string) int64 {
	deleted := make([]string, 0, len(keys))

	s.mu.Lock()
	for _, key := range keys {
		if _, exists := s.data[key]; exists {
			delete(s.data, key)
			deleted = append(deleted, key)
		}
	}
	s.mu.Unlock()

	for _, key := range deleted {
		s.notify(func(o Observer) { o.OnKeyDeleted(key) })
	}
	return int64(len(deleted))
}

// Exists counts how many of keys are live. Expired entries are removed.
func (s *MemoryStorage) Exists(keys ...string) int64 {
	var count int64
	var expired []string

	s.mu.Lock()
	now := s.now()
	for _, key := range keys {
		value, exists := s.data[key]
		if !exists {
			continue
		}
		if value.IsExpiredAt(now) {
			delete(s.data, key)
			expired = append(expired, key)
			continue
		}
		count++
	}
	s.mu.Unlock()

	for _, key := range expired {
		s.notify(func(o Observer) { o.OnKeyExpired(key) })
	}
	return count
}

// Keys returns the stored keys matching a Redis glob pattern, sorted.
//
// Expiry is not consulted: a key whose deadline passed but that no read has
// touched yet is still listed.
func (s *MemoryStorage) Keys(pattern string) []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if pattern == "*" || MatchPattern(key, pattern) {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// KeyCount returns the number of stored entries, expired or not
func (s *MemoryStorage) KeyCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.data))
}

// FlushAll removes every key
func (s *MemoryStorage) FlushAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*Value)
	return nil
}

// Close drops all data; later writes fail with ErrClosed
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = make(map[string]*Value)
	return nil
}

func (s *MemoryStorage) notify(fn func(Observer)) {
	for _, o := range s.observers {
		fn(o)
	}
}
