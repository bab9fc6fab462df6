package blobstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"
)

type memObject struct {
	data    []byte
	modTime time.Time
}

// MemoryMedium keeps objects in a map. It is meant for tests and for running
// the server without any durable storage.
type MemoryMedium struct {
	mu      sync.RWMutex
	objects map[string]memObject
	now     func() time.Time
}

// NewMemoryMedium constructs an empty MemoryMedium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{objects: make(map[string]memObject), now: time.Now}
}

func (m *MemoryMedium) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: bytes.Clone(data), modTime: m.now()}
	return nil
}

func (m *MemoryMedium) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return bytes.Clone(obj.data), nil
}

func (m *MemoryMedium) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Walk visits objects in key order on a snapshot taken under the read lock,
// so fn may call back into the medium.
func (m *MemoryMedium) Walk(ctx context.Context, fn func(ObjectInfo) error) error {
	m.mu.RLock()
	infos := make([]ObjectInfo, 0, len(m.objects))
	for k, obj := range m.objects {
		infos = append(infos, ObjectInfo{Key: k, Size: int64(len(obj.data)), ModTime: obj.modTime})
	}
	m.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

// Tamper flips one byte of a stored object. Tests use it to simulate
// corruption at rest.
func (m *MemoryMedium) Tamper(key string, offset int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok || offset < 0 || offset >= len(obj.data) {
		return false
	}
	obj.data[offset] ^= 0xFF
	return true
}

// SetClock overrides the time source used for ModTime.
func (m *MemoryMedium) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Len reports the number of stored objects.
func (m *MemoryMedium) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
