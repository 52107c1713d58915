package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hatlonely/jsondb/cfg"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStorageOptions struct {
	// Endpoint 单机地址，例如 localhost:6379
	Endpoint string `cfg:"endpoint"`
	// Endpoints 集群地址，Endpoint 为空时使用
	Endpoints []string `cfg:"endpoints"`

	Username string `cfg:"username"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db" def:"0"`

	// Prefix 所有 key 的前缀，多个存储共用一个 redis 时用来隔离
	Prefix string `cfg:"prefix" def:"jsondb:"`

	// ScanCount 每次 SCAN 的数量提示
	ScanCount int64 `cfg:"scanCount" def:"100"`

	MaxRetries   int           `cfg:"maxRetries" def:"3"`
	DialTimeout  time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`
	PoolSize     int           `cfg:"poolSize" def:"10"`
}

// RedisStorage 每个文件一个 string 类型的 key
type RedisStorage struct {
	*KVStorage
}

func NewRedisStorageWithOptions(options *RedisStorageOptions) (*RedisStorage, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.Validate failed")
	}

	var client redis.UniversalClient
	if options.Endpoint != "" {
		client = redis.NewClient(&redis.Options{
			Addr:         options.Endpoint,
			Username:     options.Username,
			Password:     options.Password,
			DB:           options.DB,
			MaxRetries:   options.MaxRetries,
			DialTimeout:  options.DialTimeout,
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
			PoolSize:     options.PoolSize,
		})
	} else if len(options.Endpoints) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        options.Endpoints,
			Username:     options.Username,
			Password:     options.Password,
			MaxRetries:   options.MaxRetries,
			DialTimeout:  options.DialTimeout,
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
			PoolSize:     options.PoolSize,
		})
	} else {
		return nil, errors.Errorf("Endpoint or Endpoints must be set")
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WithMessage(err, "redis.client.Ping failed")
	}

	return &RedisStorage{KVStorage: newKVStorage(&redisBackend{
		client:    client,
		prefix:    options.Prefix,
		scanCount: options.ScanCount,
	})}, nil
}

type redisBackend struct {
	client    redis.UniversalClient
	prefix    string
	scanCount int64
}

func (b *redisBackend) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "redis.Get failed")
	}
	return val, true, nil
}

func (b *redisBackend) put(ctx context.Context, key string, val []byte) error {
	return errors.Wrap(b.client.Set(ctx, b.prefix+key, val, 0).Err(), "redis.Set failed")
}

func (b *redisBackend) del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	// 集群模式下多个 key 可能不在同一个 slot，逐个删除
	pipe := b.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, b.prefix+key)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "redis.Pipeline.Exec failed")
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// scan 用 SCAN MATCH 找出所有 key，排序后逐个读取
func (b *redisBackend) scan(ctx context.Context, prefix string, fn func(key string, val []byte) bool) error {
	match := globReplacer.Replace(b.prefix+prefix) + "*"

	seen := map[string]struct{}{}
	var mu sync.Mutex
	scanNode := func(ctx context.Context, client redis.Cmdable) error {
		var cursor uint64
		for {
			keys, next, err := client.Scan(ctx, cursor, match, b.scanCount).Result()
			if err != nil {
				return errors.Wrap(err, "redis.Scan failed")
			}
			mu.Lock()
			for _, key := range keys {
				seen[strings.TrimPrefix(key, b.prefix)] = struct{}{}
			}
			mu.Unlock()
			if next == 0 {
				return nil
			}
			cursor = next
		}
	}

	// 集群模式下 SCAN 只作用于单个节点，需要遍历所有主节点
	if cluster, ok := b.client.(*redis.ClusterClient); ok {
		err := cluster.ForEachMaster(ctx, func(ctx context.Context, client *redis.Client) error {
			return scanNode(ctx, client)
		})
		if err != nil {
			return err
		}
	} else if err := scanNode(ctx, b.client); err != nil {
		return err
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val, ok, err := b.get(ctx, key)
		if err != nil {
			return err
		}
		// 扫描之后被删除
		if !ok {
			continue
		}
		if !fn(key, val) {
			return nil
		}
	}
	return nil
}

func (b *redisBackend) close() error {
	return b.client.Close()
}
