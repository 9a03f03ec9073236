// Package cache implements the content cache (C6): a reference-counted,
// TTL-evicted concurrent map from request path to artifact, with a
// non-blocking "floating" fallback so request latency stays bounded
// even while another goroutine holds the map's write lock building a
// different entry.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchktools/fastfile/core/task"
)

// Artifact is the minimal contract the cache needs from a cached
// value: something releasable once its last reference drops. Kept
// generic rather than importing core/artifact directly, so this
// package has no dependency on the HTTP-serving concerns layered on
// top of it.
type Artifact interface {
	Close()
}

// entry is one cache slot. refcount is atomic because Unref can race
// with a concurrent GetAndRef on the same key; everything else is only
// mutated under the Cache's lock.
type entry[V Artifact] struct {
	key         string
	value       V
	refcount    atomic.Int64
	ttlDeadline time.Time
	floating    bool
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.ttlDeadline)
}

// Stats are lifetime cache counters, read without blocking lookups.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Creates   uint64
	Floating  uint64
	Destroyed uint64
}

// Cache is a refcounted, TTL-evicted map from key to V, built lazily
// by a caller-supplied constructor.
type Cache[V Artifact] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	ttl     time.Duration
	create  func(key string) (V, error)

	hits      atomic.Uint64
	misses    atomic.Uint64
	creates   atomic.Uint64
	floating  atomic.Uint64
	destroyed atomic.Uint64
}

// New builds a Cache whose entries are produced by create and live for
// ttl past their last (re)creation.
func New[V Artifact](ttl time.Duration, create func(key string) (V, error)) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		ttl:     ttl,
		create:  create,
	}
}

// GetAndRef returns the artifact for key, creating it on miss. The
// caller must call Unref exactly once when done with the returned
// value. err is non-nil only when create itself fails, and is
// whatever create returned.
func (c *Cache[V]) GetAndRef(key string) (value V, err error) {
	if e, found := c.lookupFresh(key); found {
		c.hits.Add(1)
		return e.value, nil
	}

	c.misses.Add(1)
	e, err := c.insertOrReuse(key)
	if err != nil {
		var zero V
		return zero, err
	}
	return e.value, nil
}

// GetAndRefForTask is the task-scoped variant (spec §4.6): on success,
// it registers an Unref with t.Defer so the artifact is released
// automatically when the task is freed, even if the connection is
// torn down mid-request. Under write-lock
// contention it builds a floating copy directly rather than blocking,
// keeping this request's latency bounded at the cost of possibly
// duplicating the build.
func (c *Cache[V]) GetAndRefForTask(t *task.Task, key string) (value V, err error) {
	if e, found := c.lookupFresh(key); found {
		c.hits.Add(1)
		t.Defer(func() { c.unref(e) })
		return e.value, nil
	}

	c.misses.Add(1)

	if !c.mu.TryLock() {
		v, err := c.create(key)
		if err != nil {
			var zero V
			return zero, err
		}
		c.creates.Add(1)
		c.floating.Add(1)
		e := &entry[V]{key: key, value: v, floating: true}
		e.refcount.Store(1)
		t.Defer(func() { c.unref(e) })
		return v, nil
	}

	e, err := c.insertOrReuseLocked(key)
	c.mu.Unlock()
	if err != nil {
		var zero V
		return zero, err
	}
	t.Defer(func() { c.unref(e) })
	return e.value, nil
}

// lookupFresh returns the live, non-expired entry for key, bumping its
// refcount before releasing the shared lock so a concurrent unref
// can't observe refcount 0 and destroy the entry out from under a
// lookup that already decided to serve it (spec §4.6).
func (c *Cache[V]) lookupFresh(key string) (*entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.entries[key]
	if !found || e.expired(time.Now()) {
		return nil, false
	}

	e.refcount.Add(1)
	if e.expired(time.Now()) {
		// Crossed its TTL deadline between the two checks above;
		// undo the bump and report a miss instead of handing back a
		// just-expired entry.
		e.refcount.Add(-1)
		return nil, false
	}
	return e, true
}

// insertOrReuse acquires the exclusive lock and re-checks before
// building, so concurrent callers racing on the same miss converge on
// one inserted entry (spec §8 "single creation under contention").
func (c *Cache[V]) insertOrReuse(key string) (*entry[V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertOrReuseLocked(key)
}

func (c *Cache[V]) insertOrReuseLocked(key string) (*entry[V], error) {
	if e, found := c.entries[key]; found && !e.expired(time.Now()) {
		e.refcount.Add(1)
		return e, nil
	}

	v, err := c.create(key)
	if err != nil {
		return nil, err
	}
	c.creates.Add(1)

	e := &entry[V]{key: key, value: v, ttlDeadline: time.Now().Add(c.ttl)}
	e.refcount.Store(1)
	c.entries[key] = e
	return e, nil
}

// Unref releases one reference to value's owning entry, acquired via
// GetAndRef. Callers that used GetAndRefForTask don't need to call
// this directly; the registered Defer does it for them.
func (c *Cache[V]) Unref(key string, value V) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()
	if !found {
		return
	}
	c.unref(e)
}

func (c *Cache[V]) unref(e *entry[V]) {
	remaining := e.refcount.Add(-1)
	if remaining > 0 {
		return
	}

	if e.floating {
		c.destroy(e)
		return
	}

	if !e.expired(time.Now()) {
		return
	}

	c.mu.Lock()
	// Re-check refcount under the write lock: a concurrent lookupFresh
	// may have been blocked on this same lock and already bumped the
	// refcount back up (it does so before releasing its read lock), in
	// which case this entry is live again and must not be destroyed.
	if e.refcount.Load() > 0 {
		c.mu.Unlock()
		return
	}
	// Only remove if this is still the entry for the key — a newer
	// build may have replaced it since we decided to evict.
	if cur, found := c.entries[e.key]; found && cur == e {
		delete(c.entries, e.key)
	}
	c.mu.Unlock()
	c.destroy(e)
}

func (c *Cache[V]) destroy(e *entry[V]) {
	e.value.Close()
	c.destroyed.Add(1)
}

// DestroyAll drops every live entry, waiting for each to drain to
// refcount 0 first. Used at shutdown.
func (c *Cache[V]) DestroyAll() {
	c.mu.Lock()
	snapshot := make([]*entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		snapshot = append(snapshot, e)
	}
	c.entries = make(map[string]*entry[V])
	c.mu.Unlock()

	for _, e := range snapshot {
		for e.refcount.Load() > 0 {
			time.Sleep(time.Millisecond)
		}
		c.destroy(e)
	}
}

// Stats returns a snapshot of lifetime counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Creates:   c.creates.Load(),
		Floating:  c.floating.Load(),
		Destroyed: c.destroyed.Load(),
	}
}
