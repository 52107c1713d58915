package storage

import (
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/hatlonely/jsondb/cfg"
	"github.com/pkg/errors"
)

type PebbleStorageOptions struct {
	// DBPath 数据库目录
	DBPath string `cfg:"dbPath" validate:"required"`

	// CacheSize 块缓存大小，0 使用 pebble 的默认值
	CacheSize    int64 `cfg:"cacheSize" validate:"min=0"`
	MaxOpenFiles int   `cfg:"maxOpenFiles" validate:"min=0"`
	DisableWAL   bool  `cfg:"disableWAL"`
	// NoSync 写入后不等待落盘
	NoSync   bool `cfg:"noSync"`
	ReadOnly bool `cfg:"readOnly"`
}

type PebbleStorage struct {
	*KVStorage
}

func NewPebbleStorageWithOptions(options *PebbleStorageOptions) (*PebbleStorage, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.Validate failed")
	}

	pebbleOptions := &pebble.Options{
		MaxOpenFiles: options.MaxOpenFiles,
		DisableWAL:   options.DisableWAL,
		ReadOnly:     options.ReadOnly,
	}
	if options.CacheSize > 0 {
		cache := pebble.NewCache(options.CacheSize)
		defer cache.Unref()
		pebbleOptions.Cache = cache
	}

	db, err := pebble.Open(options.DBPath, pebbleOptions)
	if err != nil {
		return nil, errors.Wrap(err, "pebble.Open failed")
	}

	writeOptions := pebble.Sync
	if options.NoSync {
		writeOptions = pebble.NoSync
	}

	return &PebbleStorage{KVStorage: newKVStorage(&pebbleBackend{db: db, writeOptions: writeOptions})}, nil
}

type pebbleBackend struct {
	db           *pebble.DB
	writeOptions *pebble.WriteOptions
}

func (b *pebbleBackend) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, closer, err := b.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "pebble.Get failed")
	}
	defer closer.Close()
	return append([]byte{}, val...), true, nil
}

func (b *pebbleBackend) put(ctx context.Context, key string, val []byte) error {
	return errors.Wrap(b.db.Set([]byte(key), val, b.writeOptions), "pebble.Set failed")
}

func (b *pebbleBackend) del(ctx context.Context, keys ...string) error {
	batch := b.db.NewBatch()
	defer batch.Close()
	for _, key := range keys {
		if err := batch.Delete([]byte(key), nil); err != nil {
			return errors.Wrap(err, "batch.Delete failed")
		}
	}
	return errors.Wrap(batch.Commit(b.writeOptions), "batch.Commit failed")
}

// prefixUpperBound 大于所有以 prefix 开头的 key 的最小 key，prefix 为空或全为 0xff 时没有上界
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (b *pebbleBackend) scan(ctx context.Context, prefix string, fn func(key string, val []byte) bool) error {
	iter, err := b.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound([]byte(prefix)),
	})
	if err != nil {
		return errors.Wrap(err, "pebble.NewIter failed")
	}
	for ok := iter.First(); ok; ok = iter.Next() {
		if !fn(string(iter.Key()), append([]byte{}, iter.Value()...)) {
			break
		}
	}
	return errors.Wrap(iter.Close(), "pebble.Iterator.Close failed")
}

func (b *pebbleBackend) close() error {
	return b.db.Close()
}
