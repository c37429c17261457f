// Package cache stores complete validation results by content address.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache: store closed")

// Store is a key-value store of encoded results.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

type keyFields struct {
	Diff      string `json:"diff"`
	Scenario  string `json:"scenario"`
	Intent    string `json:"intent"`
	Tolerance string `json:"tolerance"`
	Seed      uint32 `json:"seed"`
}

// Key derives the cache key from exactly the inputs that determine a result.
// Tolerance is encoded with fixed precision so equal floats hash equally.
func Key(diff, scenario, intent string, tolerance float64, seed uint32) string {
	if math.IsNaN(tolerance) {
		tolerance = 0
	}
	data, _ := json.Marshal(keyFields{
		Diff:      diff,
		Scenario:  scenario,
		Intent:    intent,
		Tolerance: formatTolerance(tolerance),
		Seed:      seed,
	})
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

func formatTolerance(v float64) string {
	b, _ := json.Marshal(math.Round(v*1e6) / 1e6)
	return string(b)
}

// Memory is a concurrency-safe in-process store. Values are copied on the
// way in and out.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
	closed  bool
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}
