// Package readmodel holds warm, swap-on-refresh values that refresh callbacks
// produce and request paths read.
package readmodel

import (
	"sync/atomic"
	"time"
)

type entry[T any] struct {
	val     T
	version uint64
	at      time.Time
}

// Snapshot is a lock-free holder for the latest value of T. Readers never
// block writers; a Store replaces the whole value.
type Snapshot[T any] struct {
	cur     atomic.Pointer[entry[T]]
	version atomic.Uint64
}

// Store publishes v and returns its version (1 for the first value).
func (s *Snapshot[T]) Store(v T) uint64 {
	ver := s.version.Add(1)
	s.cur.Store(&entry[T]{val: v, version: ver, at: time.Now()})
	return ver
}

// Load returns the latest value. ok is false until the first Store.
func (s *Snapshot[T]) Load() (v T, ok bool) {
	e := s.cur.Load()
	if e == nil {
		return v, false
	}
	return e.val, true
}

// Version is 0 until the first Store.
func (s *Snapshot[T]) Version() uint64 {
	if e := s.cur.Load(); e != nil {
		return e.version
	}
	return 0
}

// UpdatedAt is the time of the last Store.
func (s *Snapshot[T]) UpdatedAt() time.Time {
	if e := s.cur.Load(); e != nil {
		return e.at
	}
	return time.Time{}
}

// Stale reports whether no value was stored within ttl of now.
func (s *Snapshot[T]) Stale(now time.Time, ttl time.Duration) bool {
	e := s.cur.Load()
	if e == nil {
		return true
	}
	return now.Sub(e.at) > ttl
}
