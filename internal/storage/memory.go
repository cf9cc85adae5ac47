package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

var ErrObjectNotFound = errors.New("object not found")

// MemoryObject is an object held by MemoryObjectStore.
type MemoryObject struct {
	Data []byte
	Opts PutOptions
}

// MemoryObjectStore keeps objects in process. Used in tests and when no MinIO
// endpoint is configured.
type MemoryObjectStore struct {
	base string

	mu      sync.RWMutex
	objects map[string]MemoryObject
}

// NewMemoryObjectStore returns a store whose URLs are base + "/" + key.
func NewMemoryObjectStore(base string) *MemoryObjectStore {
	return &MemoryObjectStore{base: base, objects: make(map[string]MemoryObject)}
}

func (m *MemoryObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = MemoryObject{Data: data, Opts: opts}
	return int64(len(data)), nil
}

func (m *MemoryObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(o.Data)), nil
}

func (m *MemoryObjectStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryObjectStore) URL(ctx context.Context, key string) (string, error) {
	return m.base + "/" + key, nil
}

// Object returns a stored object for inspection.
func (m *MemoryObjectStore) Object(key string) (MemoryObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o, ok
}
