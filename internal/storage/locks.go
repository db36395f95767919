package storage

import "sync"

// LockRegistry hands out one mutex per key so concurrent writers to the same
// sender serialize while different senders proceed in parallel. The registry
// is capped: once it grows past cap, the least-recently-touched idle entry is
// evicted. An entry that is held (or has waiters) is never evicted, so the
// registry may temporarily exceed the cap.
type LockRegistry struct {
	mu      sync.Mutex
	cap     int
	seq     uint64
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu      sync.Mutex
	refs    int
	touched uint64
}

func NewLockRegistry(capacity int) *LockRegistry {
	if capacity <= 0 {
		capacity = 1000
	}
	return &LockRegistry{
		cap:     capacity,
		entries: make(map[string]*lockEntry),
	}
}

// Lock acquires the mutex for key and returns its release func.
func (r *LockRegistry) Lock(key string) func() {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &lockEntry{}
		r.entries[key] = e
	}
	e.refs++
	r.seq++
	e.touched = r.seq
	if len(r.entries) > r.cap {
		r.evictIdle()
	}
	r.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		r.mu.Lock()
		e.refs--
		r.mu.Unlock()
	}
}

// evictIdle drops least-recently-touched entries with no holders or waiters
// until the registry is back within cap. Caller holds r.mu.
func (r *LockRegistry) evictIdle() {
	for len(r.entries) > r.cap {
		var (
			oldestKey string
			oldest    *lockEntry
		)
		for k, e := range r.entries {
			if e.refs > 0 {
				continue
			}
			if oldest == nil || e.touched < oldest.touched {
				oldestKey, oldest = k, e
			}
		}
		if oldest == nil {
			return // everything is in use
		}
		delete(r.entries, oldestKey)
	}
}

// Len reports the current number of registered keys.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
