package localstore

import (
	"bytes"
	"context"
	"sync"
)

// Backend is the on-device key-value storage the record store serializes into.
// Values are opaque bytes; the store owns their encoding.
type Backend interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases resources held by the backend.
	Close() error
}

// Updater is implemented by backends that can run a read-modify-write of one
// key as a single atomic step. fn receives the current value (ok is false
// when absent) and returns the replacement; an error from fn aborts the
// update without writing.
type Updater interface {
	Update(ctx context.Context, key string, fn func(current []byte, ok bool) ([]byte, error)) error
}

// MemoryBackend keeps values in process memory. Data is lost on restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

// Get implements Backend.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

// Update implements Updater.
func (m *MemoryBackend) Update(ctx context.Context, key string, fn func(current []byte, ok bool) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.values[key]
	next, err := fn(bytes.Clone(current), ok)
	if err != nil {
		return err
	}
	m.values[key] = bytes.Clone(next)
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Updater = (*MemoryBackend)(nil)
)
