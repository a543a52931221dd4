package s3

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"io/ioutil"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryClient is an in-process Client used by tests of components that read and write the landing bucket.
type MemoryClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    map[string]int
	// PutErr, if set, is returned by Put and Upload.
	PutErr error
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string][]byte), puts: make(map[string]int)}
}

func (m *MemoryClient) List(ctx context.Context, prefix string) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	retval := make([]Object, 0)
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			retval = append(retval, memoryObject(k, v))
		}
	}
	sort.Slice(retval, func(i, j int) bool { return retval[i].Key < retval[j].Key })
	return retval, nil
}

func (m *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.objects[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryClient) Put(ctx context.Context, key string, data []byte) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.puts[key]++
	return nil
}

func (m *MemoryClient) Head(ctx context.Context, key string) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.objects[key]
	if !ok {
		return Object{}, ErrKeyNotFound
	}
	return memoryObject(key, v), nil
}

func (m *MemoryClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryClient) Upload(ctx context.Context, key string, r io.Reader) (Object, error) {
	if m.PutErr != nil {
		return Object{}, m.PutErr
	}
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return Object{}, err
	}
	if err := m.Put(ctx, key, b); err != nil {
		return Object{}, err
	}
	return m.Head(ctx, key)
}

// Keys returns all stored keys in order.
func (m *MemoryClient) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	retval := make([]string, 0, len(m.objects))
	for k := range m.objects {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

// PutCount returns how many times key was written.
func (m *MemoryClient) PutCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts[key]
}

func memoryObject(key string, data []byte) Object {
	sum := md5.Sum(data)
	return Object{Key: key, ETag: hex.EncodeToString(sum[:]), Size: int64(len(data)), LastModified: time.Time{}}
}
