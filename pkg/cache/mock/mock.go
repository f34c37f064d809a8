package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"smartwallet/pkg/cache"
)

// MockLayer is a cache.Layer for tests. Hooks override the behavior of
// each method; without a hook the layer stores values in a map like a real
// tier. Calls are counted.
type MockLayer struct {
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	CloseFunc  func() error

	name string

	mu   sync.Mutex
	data map[string][]byte

	// Call tracking (must use atomic operations for race-free access)
	getCalls    atomic.Int64
	setCalls    atomic.Int64
	deleteCalls atomic.Int64
	closeCalls  atomic.Int64
}

// NewMockLayer creates a map-backed mock layer.
func NewMockLayer(name string) *MockLayer {
	return &MockLayer{name: name, data: make(map[string][]byte)}
}

// NewFailingLayer creates a mock layer whose every call fails with err.
func NewFailingLayer(name string, err error) *MockLayer {
	m := NewMockLayer(name)
	m.GetFunc = func(ctx context.Context, key string) ([]byte, error) { return nil, err }
	m.SetFunc = func(ctx context.Context, key string, value []byte, ttl time.Duration) error { return err }
	m.DeleteFunc = func(ctx context.Context, key string) error { return err }
	return m
}

// Get implements cache.Layer.
func (m *MockLayer) Get(ctx context.Context, key string) ([]byte, error) {
	m.getCalls.Add(1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}
	return cache.Clone(v), nil
}

// Set implements cache.Layer.
func (m *MockLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.setCalls.Add(1)
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = cache.Clone(value)
	return nil
}

// Delete implements cache.Layer.
func (m *MockLayer) Delete(ctx context.Context, key string) error {
	m.deleteCalls.Add(1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Name implements cache.Layer.
func (m *MockLayer) Name() string {
	return m.name
}

// Close implements cache.Layer.
func (m *MockLayer) Close() error {
	m.closeCalls.Add(1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Has reports whether key is stored in the backing map.
func (m *MockLayer) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// GetCalls returns the number of Get calls.
func (m *MockLayer) GetCalls() int { return int(m.getCalls.Load()) }

// SetCalls returns the number of Set calls.
func (m *MockLayer) SetCalls() int { return int(m.setCalls.Load()) }

// DeleteCalls returns the number of Delete calls.
func (m *MockLayer) DeleteCalls() int { return int(m.deleteCalls.Load()) }

// CloseCalls returns the number of Close calls.
func (m *MockLayer) CloseCalls() int { return int(m.closeCalls.Load()) }

var _ cache.Layer = (*MockLayer)(nil)
