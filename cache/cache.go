// Package cache provides in-memory per-entity-kind stores with TTL-based
// expiration, cooldown-gated purging, and a versioned on-disk representation.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry wraps a cached value with its cache and expiry instants.
type Entry[T any] struct {
	Value     T         `json:"value"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer valid at the given instant.
func (e Entry[T]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// PurgeCooldownError is returned when a purge is attempted before the
// store's cooldown window has elapsed.
type PurgeCooldownError struct {
	Kind      string
	Remaining time.Duration
}

func (e *PurgeCooldownError) Error() string {
	return fmt.Sprintf("too soon since last purge of %s cache: %s remaining", e.Kind, e.Remaining.Round(time.Second))
}

// FetchError is returned when the on-disk representation of a store cannot
// be read. It is advisory: the store degrades to empty and remains usable.
type FetchError struct {
	Kind string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cannot fetch %s cache: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Store holds cached values of one entity kind, keyed by fingerprint.
// All methods are safe for concurrent use.
type Store[T any] struct {
	mu        sync.RWMutex
	kind      string
	ttl       time.Duration
	cooldown  time.Duration
	entries   map[string]Entry[T]
	lastPurge time.Time
	dirty     bool
	gen       uint64

	now func() time.Time
	log zerolog.Logger
}

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithClock overrides the store's time source. Used in tests to simulate
// expiry without sleeping.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(s *Store[T]) { s.now = now }
}

// WithLogger attaches a logger to the store.
func WithLogger[T any](log zerolog.Logger) Option[T] {
	return func(s *Store[T]) { s.log = log }
}

// NewStore creates an empty store for the given entity kind. Entries live
// for ttl; manual purges are limited to one per cooldown window.
func NewStore[T any](kind string, ttl, cooldown time.Duration, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		kind:     kind,
		ttl:      ttl,
		cooldown: cooldown,
		entries:  make(map[string]Entry[T]),
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// markDirty records a mutation. The generation counter lets Save detect
// mutations that land while it is serializing, so they are not lost to the
// dirty-flag clear. Callers must hold the write lock.
func (s *Store[T]) markDirty() {
	s.dirty = true
	s.gen++
}

// Kind returns the entity kind this store caches.
func (s *Store[T]) Kind() string { return s.kind }

// TTL returns the entry lifetime for this store.
func (s *Store[T]) TTL() time.Duration { return s.ttl }

// Get returns the value for key if an entry exists and is unexpired.
// Expired entries are evicted lazily.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}

	if entry.Expired(s.now()) {
		s.mu.Lock()
		// Recheck under the write lock: a concurrent Put may have renewed it.
		if cur, ok := s.entries[key]; ok && cur.Expired(s.now()) {
			delete(s.entries, key)
			s.markDirty()
		}
		s.mu.Unlock()
		var zero T
		return zero, false
	}

	return entry.Value, true
}

// Put inserts or replaces the entry for key with expiry now+TTL.
func (s *Store[T]) Put(key string, value T) {
	now := s.now()
	s.mu.Lock()
	s.entries[key] = Entry[T]{Value: value, CachedAt: now, ExpiresAt: now.Add(s.ttl)}
	s.markDirty()
	s.mu.Unlock()
}

// Delete removes the entry for key regardless of expiry. Deleting a missing
// key is a no-op.
func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.markDirty()
	}
	s.mu.Unlock()
}

// Replace swaps the full contents of the store for the given values, all
// stamped with the same cache time. Used by list refreshes where upstream
// membership may have changed.
func (s *Store[T]) Replace(values map[string]T) {
	now := s.now()
	entries := make(map[string]Entry[T], len(values))
	for k, v := range values {
		entries[k] = Entry[T]{Value: v, CachedAt: now, ExpiresAt: now.Add(s.ttl)}
	}
	s.mu.Lock()
	s.entries = entries
	s.markDirty()
	s.mu.Unlock()
}

// Purge force-removes all entries. Unless force is set, purges are subject
// to the store's cooldown and fail with PurgeCooldownError when attempted
// too soon; a rejected purge leaves the store unmodified.
func (s *Store[T]) Purge(force bool) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && !s.lastPurge.IsZero() {
		allowed := s.lastPurge.Add(s.cooldown)
		if now.Before(allowed) {
			s.log.Warn().Str("cache", s.kind).Msg("purge rejected: cooldown not elapsed")
			return &PurgeCooldownError{Kind: s.kind, Remaining: allowed.Sub(now)}
		}
	}

	s.entries = make(map[string]Entry[T])
	if !force {
		s.lastPurge = now
	}
	s.markDirty()
	s.log.Info().Str("cache", s.kind).Msg("purged")
	return nil
}

// LastPurge returns the time of the last cooldown-gated purge.
func (s *Store[T]) LastPurge() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPurge
}

// Len returns the number of unexpired entries.
func (s *Store[T]) Len() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if !e.Expired(now) {
			n++
		}
	}
	return n
}

// Keys returns the keys of all unexpired entries, in no particular order.
func (s *Store[T]) Keys() []string {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if !e.Expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Snapshot returns a copy of all unexpired entries.
func (s *Store[T]) Snapshot() map[string]Entry[T] {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry[T], len(s.entries))
	for k, e := range s.entries {
		if !e.Expired(now) {
			out[k] = e
		}
	}
	return out
}
