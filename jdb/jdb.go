// Package jdb 基于文件的嵌入式 JSON 文档库
//
// 一个 JDB 对应一个存储根目录，根目录下的每个子目录是一个数据库，
// 数据库中的每张表由 <name>.json（JSON 数组）和 <name>.meta.json（rows、current_id 等元数据）组成：
//
//	j, _ := jdb.NewJDBWithOptions(&jdb.Options{Storage: &ref.TypeOptions{Type: "file", Options: &storage.FileStorageOptions{Root: "data"}}})
//	db, _ := j.CreateDatabase(ctx, "shop")
//	_ = db.CreateTable(ctx, "users")
//	users, _ := db.Table(ctx, "users")
//	_, _ = users.InsertMap(map[string]any{"name": "a"})
//	_, _ = users.Save(ctx)
package jdb

import (
	"context"
	"strings"

	"github.com/hatlonely/jsondb/cfg"
	"github.com/hatlonely/jsondb/log"
	"github.com/hatlonely/jsondb/ref"
	"github.com/hatlonely/jsondb/storage"
	"github.com/pkg/errors"
)

type Options struct {
	// Storage 存储后端，为空时使用当前目录下的 file 存储
	Storage *ref.TypeOptions `cfg:"storage"`
	// Logger 日志器，为空时使用默认日志器
	Logger *ref.TypeOptions `cfg:"logger"`
}

type JDB struct {
	storage storage.Storage
	logger  log.Logger
}

func NewJDBWithOptions(options *Options) (*JDB, error) {
	if options == nil {
		options = &Options{}
	}

	s, err := storage.NewStorageWithOptions(options.Storage)
	if err != nil {
		return nil, errors.WithMessage(err, "create storage failed")
	}
	logger, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return NewJDBWithStorage(s, logger), nil
}

// NewJDB 从配置文件构造，支持 json/yaml/toml/ini/env
func NewJDB(configFile string) (*JDB, error) {
	var options Options
	if err := cfg.LoadFile(configFile, &options); err != nil {
		return nil, errors.WithMessage(err, "load config failed")
	}
	return NewJDBWithOptions(&options)
}

// NewJDBWithStorage 使用已有的存储，logger 为空时使用默认日志器
func NewJDBWithStorage(s storage.Storage, logger log.Logger) *JDB {
	if logger == nil {
		logger = log.Default()
	}
	return &JDB{storage: s, logger: logger.WithGroup("jdb")}
}

func (j *JDB) Storage() storage.Storage {
	return j.storage
}

func (j *JDB) DatabaseExists(ctx context.Context, name string) (bool, error) {
	ok, err := j.storage.IsDir(ctx, name)
	if err != nil {
		return false, newError(ErrFileSystem, name, err)
	}
	return ok, nil
}

// CreateDatabase 创建数据库目录，name 可以包含多级路径
func (j *JDB) CreateDatabase(ctx context.Context, name string) (*Database, error) {
	if storage.Clean(name) == "" {
		return nil, newError(ErrFileSystem, name, errors.New("invalid database name"))
	}
	exists, err := j.storage.Exists(ctx, name)
	if err != nil {
		return nil, newError(ErrFileSystem, name, err)
	}
	if exists {
		return nil, newError(ErrAlreadyExists, name, nil)
	}
	if err := j.storage.Mkdir(ctx, name); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, newError(ErrAlreadyExists, name, err)
		}
		return nil, newError(ErrFileSystem, name, err)
	}

	j.logger.InfoContext(ctx, "database created", "database", name)
	return j.Connect(ctx, name)
}

// Connect 打开已经存在的数据库
func (j *JDB) Connect(ctx context.Context, name string) (*Database, error) {
	exists, err := j.DatabaseExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists || storage.Clean(name) == "" {
		return nil, newError(ErrNotFound, name, nil)
	}
	return newDatabase(j.storage, j.logger, name), nil
}

// Databases dir 下的数据库名，dir 为空表示根目录
func (j *JDB) Databases(ctx context.Context, dir ...string) ([]string, error) {
	root := storage.Join(dir...)
	infos, err := j.storage.List(ctx, root)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(ErrNotFound, root, err)
		}
		return nil, newError(ErrFileSystem, root, err)
	}
	var names []string
	for _, info := range infos {
		if info.IsDir && !strings.HasPrefix(info.Name(), ".") {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

func (j *JDB) Close() error {
	return j.storage.Close()
}
