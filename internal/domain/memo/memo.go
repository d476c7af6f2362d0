// Package memo provides the concurrent memoization table behind the caches.
package memo

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Key is a comparable memo key. String must be injective over the key's
// fields; it names the in-flight computation.
type Key interface {
	comparable
	String() string
}

// Table maps keys to values computed on first access. It only grows: there is
// no eviction and no invalidation, a new run means a new table.
//
// Readers share an RWMutex. Concurrent first-time callers for one key are
// collapsed onto a single computation; if a value was installed in the
// meantime the freshly computed one is discarded, so exactly one value per
// key is ever observed.
type Table[K Key, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
	group   singleflight.Group
	name    string

	size   atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an empty table.
func New[K Key, V any](opts ...Option) *Table[K, V] {
	s := settings{name: "memo"}
	for _, opt := range opts {
		opt(&s)
	}
	return &Table[K, V]{
		entries: make(map[K]V),
		name:    s.name,
	}
}

// Get returns the stored value for key, if any.
func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[key]
	return v, ok
}

// GetOrCompute returns the value stored for key, computing and installing it
// on first access. Errors from compute are returned and never stored.
func (t *Table[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	if v, ok := t.Get(key); ok {
		t.hits.Add(1)
		metrics.RecordCacheLookup(t.name, true)
		return v, nil
	}
	t.misses.Add(1)
	metrics.RecordCacheLookup(t.name, false)

	res, err, _ := t.group.Do(key.String(), func() (any, error) {
		if v, ok := t.Get(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		return t.install(key, v), nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, ok := res.(V)
	if !ok {
		var zero V
		return zero, fmt.Errorf("memo %s: stored %T for key %s: %w", t.name, res, key.String(), model.ErrInternalInconsistency)
	}
	return v, nil
}

// install stores v unless another value won the race, returning the winner.
func (t *Table[K, V]) install(key K, v V) V {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[key]; ok {
		return existing
	}
	t.entries[key] = v
	t.size.Add(1)
	metrics.RecordCacheEntry(t.name)
	return v
}

// Size returns the number of memoized entries.
func (t *Table[K, V]) Size() int64 {
	return t.size.Load()
}

// Stats returns the hit and miss counters.
func (t *Table[K, V]) Stats() (hits, misses int64) {
	return t.hits.Load(), t.misses.Load()
}

// Name returns the metrics label of the table.
func (t *Table[K, V]) Name() string {
	return t.name
}
