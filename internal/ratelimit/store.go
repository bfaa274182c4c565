package ratelimit

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultShards = 32

	// MaxShards is the largest shard count a store will allocate.
	MaxShards = 4096
)

// windowEntry is the counter for one key in its current window.
type windowEntry struct {
	count   int
	resetAt time.Time
}

// expired reports whether the window has ended at now.
func (e *windowEntry) expired(now time.Time) bool {
	return !now.Before(e.resetAt)
}

// Entry is a point-in-time copy of a key's window.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Stats are point-in-time key counts for monitoring. They may be stale by
// the time the caller reads them.
type Stats struct {
	TotalKeys   int `json:"total_keys"`
	ActiveKeys  int `json:"active_keys"`
	ExpiredKeys int `json:"expired_keys"`
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
}

// WindowStore is a concurrency-safe map of per-key window counters. Keys
// are spread over independently locked shards so that checks for unrelated
// callers rarely contend, and a sweep never holds more than one shard lock.
type WindowStore struct {
	shards []*shard
	mask   uint64
	clock  Clock
}

type storeOptions struct {
	shards int
	clock  Clock
}

// StoreOption configures a WindowStore.
type StoreOption func(*storeOptions)

// WithClock sets the time source used for window arithmetic.
func WithClock(clock Clock) StoreOption {
	return func(o *storeOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithShards sets the number of lock shards. It is rounded up to a power
// of two and capped at MaxShards; values below one fall back to the default.
func WithShards(n int) StoreOption {
	return func(o *storeOptions) {
		switch {
		case n > MaxShards:
			o.shards = MaxShards
		case n > 0:
			o.shards = n
		}
	}
}

// NewWindowStore creates an empty store.
func NewWindowStore(opts ...StoreOption) *WindowStore {
	o := storeOptions{shards: defaultShards, clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	n := 1
	for n < o.shards {
		n <<= 1
	}

	s := &WindowStore{
		shards: make([]*shard, n),
		mask:   uint64(n - 1),
		clock:  o.clock,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*windowEntry)}
	}
	return s
}

func (s *WindowStore) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)&s.mask]
}

// Touch counts one request for key. A missing or expired entry is replaced
// by a fresh window of length window with a count of one; otherwise the
// count is incremented and the reset time is left alone. It returns the
// post-increment count and the end of the window.
func (s *WindowStore) Touch(key string, window time.Duration) (int, time.Time) {
	now := s.clock()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok || e.expired(now) {
		e = &windowEntry{count: 1, resetAt: now.Add(window)}
		sh.entries[key] = e
		return e.count, e.resetAt
	}

	e.count++
	return e.count, e.resetAt
}

// Peek returns a copy of the entry for key without counting a request.
func (s *WindowStore) Peek(key string) (Entry, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return Entry{}, false
	}
	return Entry{Count: e.count, ResetAt: e.resetAt}, true
}

// Reset drops the entry for key so its next request opens a new window.
// It reports whether an entry was removed.
func (s *WindowStore) Reset(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.entries[key]; !ok {
		return false
	}
	delete(sh.entries, key)
	return true
}

// Sweep removes every entry whose window ended at or before now and
// returns how many were removed. Shards are locked one at a time.
func (s *WindowStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if e.expired(now) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Stats counts the stored keys by window state.
func (s *WindowStore) Stats() Stats {
	now := s.clock()
	var st Stats
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, e := range sh.entries {
			if e.expired(now) {
				st.ExpiredKeys++
			} else {
				st.ActiveKeys++
			}
		}
		sh.mu.Unlock()
	}
	st.TotalKeys = st.ActiveKeys + st.ExpiredKeys
	return st
}

// Now returns the store's current time.
func (s *WindowStore) Now() time.Time {
	return s.clock()
}
