package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type MapStorageOptions struct{}

// MapStorage 内存存储，进程退出后数据丢失，用于测试和临时数据
type MapStorage struct {
	*KVStorage
}

func NewMapStorageWithOptions(options *MapStorageOptions) (*MapStorage, error) {
	return NewMapStorage(), nil
}

func NewMapStorage() *MapStorage {
	return &MapStorage{KVStorage: newKVStorage(&mapBackend{m: map[string][]byte{}})}
}

type mapBackend struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func (b *mapBackend) get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	val, ok := b.m[key]
	return val, ok, nil
}

func (b *mapBackend) put(ctx context.Context, key string, val []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key] = val
	return nil
}

func (b *mapBackend) del(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range keys {
		delete(b.m, key)
	}
	return nil
}

func (b *mapBackend) scan(ctx context.Context, prefix string, fn func(key string, val []byte) bool) error {
	b.mu.RLock()
	keys := make([]string, 0, len(b.m))
	for key := range b.m {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	vals := make([][]byte, len(keys))
	sort.Strings(keys)
	for i, key := range keys {
		vals[i] = b.m[key]
	}
	b.mu.RUnlock()

	for i, key := range keys {
		if !fn(key, vals[i]) {
			return nil
		}
	}
	return nil
}

func (b *mapBackend) close() error {
	return nil
}
