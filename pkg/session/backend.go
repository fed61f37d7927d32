package session

import (
	"context"
	"sync"
)

// Backend defines the persistence contract behind a Store.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Load returns the stored values for keys. Missing keys are absent from
	// the result; a missing key is not an error.
	Load(ctx context.Context, keys ...string) (map[string]string, error)

	// Set writes every key in values.
	Set(ctx context.Context, values map[string]string) error

	// Delete removes keys in a single operation.
	// Deleting a key that does not exist is not an error.
	Delete(ctx context.Context, keys ...string) error

	// Close releases any resources held by the backend.
	Close() error
}

// ErrBackendClosed is returned when operations are attempted on a closed backend.
type ErrBackendClosed struct{}

func (e ErrBackendClosed) Error() string {
	return "session backend is closed"
}

// MemoryBackend keeps session values in process memory. Its lifetime is the
// lifetime of the process, which plays the role of the browser tab.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

// Load returns the values stored for keys.
func (m *MemoryBackend) Load(ctx context.Context, keys ...string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrBackendClosed{}
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set stores every key in values under one lock.
func (m *MemoryBackend) Set(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed{}
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

// Delete removes keys under one lock.
func (m *MemoryBackend) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed{}
	}
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Close drops all values.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.values = nil
	return nil
}

// Len returns the number of stored keys.
// This is for monitoring/testing purposes.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
