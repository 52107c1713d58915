package storage

import (
	"context"

	"github.com/hatlonely/jsondb/cfg"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDBStorageOptions struct {
	// DBPath 数据库目录
	DBPath string `cfg:"dbPath" validate:"required"`

	BlockCacheCapacity int    `cfg:"blockCacheCapacity" validate:"min=0"`
	WriteBuffer        int    `cfg:"writeBuffer" validate:"min=0"`
	Compression        string `cfg:"compression" def:"snappy" validate:"oneof=default none snappy"`
	NoSync             bool   `cfg:"noSync"`
	ReadOnly           bool   `cfg:"readOnly"`
}

type LevelDBStorage struct {
	*KVStorage
}

func NewLevelDBStorageWithOptions(options *LevelDBStorageOptions) (*LevelDBStorage, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.Validate failed")
	}

	compression := map[string]opt.Compression{
		"default": opt.DefaultCompression,
		"none":    opt.NoCompression,
		"snappy":  opt.SnappyCompression,
	}[options.Compression]

	db, err := leveldb.OpenFile(options.DBPath, &opt.Options{
		BlockCacheCapacity: options.BlockCacheCapacity,
		WriteBuffer:        options.WriteBuffer,
		Compression:        compression,
		NoSync:             options.NoSync,
		ReadOnly:           options.ReadOnly,
	})
	if err != nil {
		return nil, errors.Wrap(err, "leveldb.OpenFile failed. path: "+options.DBPath)
	}

	return &LevelDBStorage{KVStorage: newKVStorage(&leveldbBackend{db: db})}, nil
}

type leveldbBackend struct {
	db *leveldb.DB
}

func (b *leveldbBackend) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "leveldb.Get failed")
	}
	return val, true, nil
}

func (b *leveldbBackend) put(ctx context.Context, key string, val []byte) error {
	return errors.Wrap(b.db.Put([]byte(key), val, nil), "leveldb.Put failed")
}

func (b *leveldbBackend) del(ctx context.Context, keys ...string) error {
	batch := new(leveldb.Batch)
	for _, key := range keys {
		batch.Delete([]byte(key))
	}
	return errors.Wrap(b.db.Write(batch, nil), "leveldb.Write failed")
}

func (b *leveldbBackend) scan(ctx context.Context, prefix string, fn func(key string, val []byte) bool) error {
	iter := b.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if !fn(string(iter.Key()), append([]byte{}, iter.Value()...)) {
			break
		}
	}
	return errors.Wrap(iter.Error(), "leveldb.Iterator failed")
}

func (b *leveldbBackend) close() error {
	return b.db.Close()
}
