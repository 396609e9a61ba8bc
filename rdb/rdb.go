package rdb

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// Entry is one string key recovered from a snapshot
type Entry struct {
	DB        int
	Key       []byte
	Value     []byte
	ExpiresAt *time.Time
}

// collector is the Handler behind Decode
type collector struct {
	entries []Entry
	aux     map[string]string
}

func (c *collector) OnDatabase(int) error { return nil }
func (c *collector) OnEnd() error         { return nil }

func (c *collector) OnAux(key, value []byte) error {
	if c.aux == nil {
		c.aux = make(map[string]string)
	}
	c.aux[string(key)] = string(value)
	return nil
}

func (c *collector) OnKey(db int, key, value []byte, expiry *time.Time) error {
	c.entries = append(c.entries, Entry{DB: db, Key: key, Value: value, ExpiresAt: expiry})
	return nil
}

// Decode extracts the string entries of an RDB snapshot.
//
// A bad header yields no entries and ErrInvalidHeader. Any later problem
// stops decoding: the complete records read so far are returned together
// with a *DecodeError describing where and why it stopped. Callers are
// expected to keep the entries and log the error.
func Decode(data []byte) ([]Entry, error) {
	snap, err := DecodeSnapshot(data)
	return snap.Entries, err
}

// Snapshot is the decoded content of an RDB file
type Snapshot struct {
	Version int
	Aux     map[string]string
	Entries []Entry
}

// DecodeSnapshot is Decode plus the header version and aux fields
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	c := &collector{}
	p := NewParser(bytes.NewReader(data), c)
	err := p.Parse()
	return &Snapshot{Version: p.Version(), Aux: c.aux, Entries: c.entries}, err
}

// Load reads and decodes dir/filename.
//
// With either part unset, or when the file does not exist, the result is an
// empty snapshot and no error. Other read failures are returned so they can
// be logged; the server still starts with an empty keyspace.
func Load(dir, filename string) (*Snapshot, error) {
	if dir == "" || filename == "" {
		return &Snapshot{}, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Snapshot{}, nil
		}
		return &Snapshot{}, err
	}

	return DecodeSnapshot(data)
}

// Populate inserts entries that are still live at now into store. Entries
// from every database land in the same keyspace, later ones winning.
func Populate(store storage.Storage, entries []Entry, now time.Time) (loaded, expired int, err error) {
	for _, e := range entries {
		if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
			expired++
			continue
		}
		if err := store.Set(string(e.Key), e.Value, e.ExpiresAt); err != nil {
			return loaded, expired, err
		}
		loaded++
	}
	return loaded, expired, nil
}
