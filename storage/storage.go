// Package storage 表文件的存储位置抽象
//
// key 是以 / 分隔的相对路径，例如 shop/users.json；目录是 key 的前缀，例如 shop。
// 默认的 file 后端直接映射到本地目录，其他后端（bolt/leveldb/pebble/redis/gorm/map）
// 把目录结构模拟在扁平的键空间上，cached/observable 是包装其他后端的装饰器
package storage

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/hatlonely/jsondb/ref"
	"github.com/pkg/errors"
)

// Namespace 存储后端在 ref 中注册的命名空间
const Namespace = "storage"

var (
	ErrNotFound     = errors.New("not found")
	ErrExists       = errors.New("already exists")
	ErrNotSupported = errors.New("not supported")
)

// Info 文件或目录的元信息
type Info struct {
	Key     string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Name key 的最后一段
func (i Info) Name() string {
	return path.Base(i.Key)
}

type Storage interface {
	// Get 读取文件内容，不存在或者是目录时返回 ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Put 整体替换文件内容，父目录不存在时自动创建
	Put(ctx context.Context, key string, data []byte) error
	// Del 删除文件或整个目录，不存在时什么也不做
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Stat(ctx context.Context, key string) (*Info, error)
	// Rename 移动文件或目录，from 不存在返回 ErrNotFound，to 已存在返回 ErrExists
	Rename(ctx context.Context, from string, to string) error
	// Mkdir 创建目录，已存在时返回 ErrExists
	Mkdir(ctx context.Context, dir string) error
	IsDir(ctx context.Context, dir string) (bool, error)
	// List 目录下的直接子项，按 key 排序
	List(ctx context.Context, dir string) ([]*Info, error)
	Close() error
}

// Watcher 能够感知文件被外部修改的存储
type Watcher interface {
	// Watch 在 keys 中任意一个被修改时回调 fn，ctx 结束时停止监听
	Watch(ctx context.Context, keys []string, fn func(key string)) error
}

func init() {
	ref.MustRegister(Namespace, "file", NewFileStorageWithOptions)
	ref.MustRegister(Namespace, "map", NewMapStorageWithOptions)
	ref.MustRegister(Namespace, "bolt", NewBoltDBStorageWithOptions)
	ref.MustRegister(Namespace, "leveldb", NewLevelDBStorageWithOptions)
	ref.MustRegister(Namespace, "pebble", NewPebbleStorageWithOptions)
	ref.MustRegister(Namespace, "redis", NewRedisStorageWithOptions)
	ref.MustRegister(Namespace, "gorm", NewGormStorageWithOptions)
	ref.MustRegister(Namespace, "cached", NewCachedStorageWithOptions)
	ref.MustRegister(Namespace, "observable", NewObservableStorageWithOptions)
}

// NewStorageWithOptions 按配置构造存储，options 为空时使用当前目录下的 file 存储
func NewStorageWithOptions(options *ref.TypeOptions) (Storage, error) {
	if options == nil || options.Type == "" {
		return NewFileStorageWithOptions(&FileStorageOptions{Root: "."})
	}
	s, err := ref.Build[Storage](Namespace, options)
	if err != nil {
		return nil, errors.WithMessage(err, "create storage failed")
	}
	return s, nil
}

// Join 拼接 key，结果不以 / 开头，也不会越过根目录
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}

// Clean 规范化 key，根目录为空字符串
func Clean(key string) string {
	key = path.Clean("/" + key)
	return strings.TrimPrefix(key, "/")
}

// Dir key 所在的目录
func Dir(key string) string {
	dir := path.Dir(Clean(key))
	if dir == "." {
		return ""
	}
	return dir
}

func notFound(key string) error {
	return errors.Wrapf(ErrNotFound, "key [%s]", key)
}

func alreadyExists(key string) error {
	return errors.Wrapf(ErrExists, "key [%s]", key)
}
