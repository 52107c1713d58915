package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hatlonely/jsondb/cfg"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type BoltDBStorageOptions struct {
	// DBPath 数据库文件路径
	DBPath string `cfg:"dbPath" validate:"required"`

	// BucketName 所有 key 都保存在这个桶里
	BucketName string `cfg:"bucketName" def:"jsondb"`

	// Timeout 获取文件锁的超时时间，0 表示一直等待
	Timeout time.Duration `cfg:"timeout" def:"1s"`

	NoGrowSync     bool   `cfg:"noGrowSync"`
	NoFreelistSync bool   `cfg:"noFreelistSync"`
	FreelistType   string `cfg:"freelistType" validate:"omitempty,oneof=array hashmap"`
	NoSync         bool   `cfg:"noSync"`
	PageSize       int    `cfg:"pageSize" validate:"min=0"`
}

// BoltDBStorage 单文件的 bbolt 数据库，整个存储位于一个桶中
type BoltDBStorage struct {
	*KVStorage
}

func NewBoltDBStorageWithOptions(options *BoltDBStorageOptions) (*BoltDBStorage, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.Validate failed")
	}

	if err := os.MkdirAll(filepath.Dir(options.DBPath), 0755); err != nil {
		return nil, errors.Wrapf(err, "os.MkdirAll failed. directory: %s", filepath.Dir(options.DBPath))
	}

	db, err := bolt.Open(options.DBPath, 0600, &bolt.Options{
		Timeout:        options.Timeout,
		NoGrowSync:     options.NoGrowSync,
		NoFreelistSync: options.NoFreelistSync,
		FreelistType:   bolt.FreelistType(options.FreelistType),
		NoSync:         options.NoSync,
		PageSize:       options.PageSize,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt.Open failed. path: %s", options.DBPath)
	}

	bucket := []byte(options.BucketName)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bucket failed")
	}

	return &BoltDBStorage{KVStorage: newKVStorage(&boltBackend{db: db, bucket: bucket})}, nil
}

type boltBackend struct {
	db     *bolt.DB
	bucket []byte
}

func (b *boltBackend) get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		// 返回的切片只在事务内有效
		if v := tx.Bucket(b.bucket).Get([]byte(key)); v != nil {
			val = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "bolt.View failed")
	}
	return val, val != nil, nil
}

func (b *boltBackend) put(ctx context.Context, key string, val []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), val)
	})
	return errors.Wrap(err, "bolt.Update failed")
}

func (b *boltBackend) del(ctx context.Context, keys ...string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		for _, key := range keys {
			if err := bucket.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "bolt.Update failed")
}

func (b *boltBackend) scan(ctx context.Context, prefix string, fn func(key string, val []byte) bool) error {
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(b.bucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if !fn(string(k), append([]byte{}, v...)) {
				return nil
			}
		}
		return nil
	})
	return errors.Wrap(err, "bolt.View failed")
}

func (b *boltBackend) close() error {
	return b.db.Close()
}
