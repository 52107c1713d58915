package storage

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	"github.com/hatlonely/jsondb/cfg"
	"github.com/hatlonely/jsondb/ref"
	"github.com/pkg/errors"
)

type CachedStorageOptions struct {
	// Storage 被缓存的底层存储
	Storage *ref.TypeOptions `cfg:"storage" validate:"required"`

	// Size 缓存容量（字节），freecache 最小 512KB
	Size int `cfg:"size" def:"33554432"`

	// TTL 缓存过期时间，0 表示不过期
	TTL time.Duration `cfg:"ttl"`
}

// CachedStorage 在 Get 前加一层 freecache 读缓存，写操作穿透到底层存储并同步失效缓存
//
// 超过 freecache 单条上限（容量的 1/1024）的文件不会被缓存
type CachedStorage struct {
	Storage
	cache *freecache.Cache
	ttl   int
}

func NewCachedStorageWithOptions(options *CachedStorageOptions) (*CachedStorage, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.Validate failed")
	}

	inner, err := NewStorageWithOptions(options.Storage)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create underlying storage")
	}
	return NewCachedStorage(inner, options.Size, options.TTL), nil
}

func NewCachedStorage(inner Storage, size int, ttl time.Duration) *CachedStorage {
	return &CachedStorage{
		Storage: inner,
		cache:   freecache.NewCache(size),
		ttl:     int(ttl / time.Second),
	}
}

// Unwrap 底层存储
func (s *CachedStorage) Unwrap() Storage {
	return s.Storage
}

// HitRate 缓存命中率
func (s *CachedStorage) HitRate() float64 {
	return s.cache.HitRate()
}

func (s *CachedStorage) Get(ctx context.Context, key string) ([]byte, error) {
	k := []byte(Clean(key))
	if buf, err := s.cache.Get(k); err == nil {
		return buf, nil
	}
	buf, err := s.Storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(k, buf, s.ttl)
	return buf, nil
}

func (s *CachedStorage) Put(ctx context.Context, key string, data []byte) error {
	k := []byte(Clean(key))
	s.cache.Del(k)
	if err := s.Storage.Put(ctx, key, data); err != nil {
		return err
	}
	_ = s.cache.Set(k, data, s.ttl)
	return nil
}

// invalidate 目录操作会影响目录下所有 key，直接清空
func (s *CachedStorage) invalidate(ctx context.Context, key string) error {
	dir, err := s.Storage.IsDir(ctx, key)
	if err != nil {
		return err
	}
	if dir {
		s.cache.Clear()
		return nil
	}
	s.cache.Del([]byte(Clean(key)))
	return nil
}

func (s *CachedStorage) Del(ctx context.Context, key string) error {
	if err := s.invalidate(ctx, key); err != nil {
		return err
	}
	return s.Storage.Del(ctx, key)
}

func (s *CachedStorage) Rename(ctx context.Context, from string, to string) error {
	if err := s.invalidate(ctx, from); err != nil {
		return err
	}
	s.cache.Del([]byte(Clean(to)))
	return s.Storage.Rename(ctx, from, to)
}

// Watch 底层存储支持监听时，变化的 key 先失效缓存再回调
func (s *CachedStorage) Watch(ctx context.Context, keys []string, fn func(key string)) error {
	watcher, ok := s.Storage.(Watcher)
	if !ok {
		return errors.Wrapf(ErrNotSupported, "%T cannot watch", s.Storage)
	}
	return watcher.Watch(ctx, keys, func(key string) {
		s.cache.Del([]byte(key))
		fn(key)
	})
}
