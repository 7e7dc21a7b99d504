// Package cache memoizes judgments by request fingerprint. The cache is a
// correctness mechanism, not a performance optimization: repeated identical
// requests inside (and optionally across) test runs must resolve to the same
// judgment despite the stochastic backend. There is no TTL and no size-based
// eviction; entries leave only via explicit invalidation or a schema bump.
package cache

import (
	"sync"

	"github.com/semtest-ai/semtest/engine/pkg/types"
)

// Store is the persistence boundary for judgments.
type Store interface {
	// Get returns the cached judgment for a fingerprint, if present.
	Get(fingerprint string) (*types.Judgment, bool, error)

	// Put stores a judgment under a fingerprint. Last writer wins; request
	// coalescing upstream prevents divergent concurrent computations of the
	// same key.
	Put(fingerprint string, j *types.Judgment) error

	// Invalidate removes all entries.
	Invalidate() error

	// Close releases any underlying resources.
	Close() error
}

// MemoryStore is a per-run, in-process store. The default persistence scope:
// judgments live for one test run only.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]types.Judgment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]types.Judgment)}
}

func (m *MemoryStore) Get(fingerprint string) (*types.Judgment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.entries[fingerprint]
	if !ok {
		return nil, false, nil
	}
	// Copy out so callers cannot mutate the cached value.
	out := j
	if j.Confidence != nil {
		c := *j.Confidence
		out.Confidence = &c
	}
	return &out, true, nil
}

func (m *MemoryStore) Put(fingerprint string, j *types.Judgment) error {
	in := *j
	if j.Confidence != nil {
		c := *j.Confidence
		in.Confidence = &c
	}
	m.mu.Lock()
	m.entries[fingerprint] = in
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Invalidate() error {
	m.mu.Lock()
	m.entries = make(map[string]types.Judgment)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Len reports the number of cached judgments.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
