// Package cache is the process-wide page cache. Entries are whole rendered
// responses; they are never updated in place, only replaced or expired.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores opaque values for a bounded time. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Clear drops every entry.
	Clear(ctx context.Context) error
}

type entry struct {
	val     []byte
	expires time.Time
}

// DefaultMaxEntries caps a Memory cache built with a non-positive size.
const DefaultMaxEntries = 10000

// Memory is a Cache held in process memory. It keeps at most size entries,
// evicting the least recently used, and reclaims every entry once maxTTL has
// passed whether or not it is read again. A Set with a longer ttl is capped
// at maxTTL.
type Memory struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

var _ Cache = (*Memory)(nil)

func NewMemory(size int, maxTTL time.Duration) *Memory {
	if size <= 0 {
		size = DefaultMaxEntries
	}
	return &Memory{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		m.lru.Remove(key)
		return nil, false, nil
	}
	return e.val, true, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	m.lru.Add(key, entry{val: cp, expires: m.now().Add(ttl)})
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.lru.Purge()
	return nil
}

// Len is the number of stored entries.
func (m *Memory) Len() int {
	return m.lru.Len()
}
