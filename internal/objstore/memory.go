package objstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Store used in tests and single-binary setups
// without an S3 endpoint.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) EnsureBucket(_ context.Context, _ string) error { return nil }

func (m *Memory) Put(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return fmt.Sprintf("mem://%s/%s", bucket, key), nil
}

func (m *Memory) Remove(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	delete(m.objects, bucket+"/"+key)
	m.mu.Unlock()
	return nil
}

// Get returns a stored object. Test helper.
func (m *Memory) Get(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[bucket+"/"+key]
	return data, ok
}
