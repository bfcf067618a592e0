package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-cart/internal/domain/cart"
)

// MockStore is an in-memory cart.Store that records writes.
type MockStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// For tracking calls in tests
	WriteCalls []WriteCall
	ReadErr    error
	WriteErr   error
}

// WriteCall records parameters passed to Write
type WriteCall struct {
	Key   string
	Value []byte
}

func NewMockStore() *MockStore {
	return &MockStore{
		data:       make(map[string][]byte),
		WriteCalls: make([]WriteCall, 0),
	}
}

func (m *MockStore) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	value, ok := m.data[key]
	if !ok {
		return nil, cart.ErrSnapshotNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *MockStore) Write(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCalls = append(m.WriteCalls, WriteCall{Key: key, Value: append([]byte(nil), value...)})
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Seed sets a raw value directly for testing
func (m *MockStore) Seed(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Value returns the stored bytes for key
func (m *MockStore) Value(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}
