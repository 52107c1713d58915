package storage

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// kvBackend 扁平的有序键值存储，KVStorage 在它之上模拟目录
type kvBackend interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	put(ctx context.Context, key string, val []byte) error
	del(ctx context.Context, keys ...string) error
	// scan 按 key 升序遍历以 prefix 开头的键值对，fn 返回 false 时停止
	scan(ctx context.Context, prefix string, fn func(key string, val []byte) bool) error
	close() error
}

// record 键值存储里的一条记录，目录用 key 以 / 结尾的空记录表示
type record struct {
	Data    []byte `msgpack:"d"`
	ModTime int64  `msgpack:"t"`
	Dir     bool   `msgpack:"dir,omitempty"`
}

// KVStorage 用键值存储实现 Storage
//
// 文件 a/b.json 保存在 key a/b.json 下，目录 a 保存一个 key 为 a/ 的标记；
// 有子项的目录即使没有标记也视为存在
type KVStorage struct {
	backend kvBackend
}

func newKVStorage(backend kvBackend) *KVStorage {
	return &KVStorage{backend: backend}
}

func dirKey(dir string) string {
	dir = Clean(dir)
	if dir == "" {
		return ""
	}
	return dir + "/"
}

func (s *KVStorage) load(ctx context.Context, key string) (*record, error) {
	buf, ok, err := s.backend.get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var rec record
	if err := msgpack.Unmarshal(buf, &rec); err != nil {
		return nil, errors.Wrapf(err, "msgpack.Unmarshal failed. key: %s", key)
	}
	return &rec, nil
}

func (s *KVStorage) store(ctx context.Context, key string, rec *record) error {
	buf, err := msgpack.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "msgpack.Marshal failed. key: %s", key)
	}
	return s.backend.put(ctx, key, buf)
}

func (s *KVStorage) Get(ctx context.Context, key string) ([]byte, error) {
	key = Clean(key)
	rec, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil || key == "" {
		return nil, notFound(key)
	}
	return rec.Data, nil
}

func (s *KVStorage) Put(ctx context.Context, key string, data []byte) error {
	key = Clean(key)
	if key == "" {
		return errors.New("key is empty")
	}
	if ok, err := s.IsDir(ctx, key); err != nil {
		return err
	} else if ok {
		return errors.Errorf("key [%s] is a directory", key)
	}
	return s.store(ctx, key, &record{Data: append([]byte(nil), data...), ModTime: time.Now().UnixNano()})
}

func (s *KVStorage) Del(ctx context.Context, key string) error {
	key = Clean(key)
	if key == "" {
		return errors.New("refuse to delete the root directory")
	}
	keys := []string{key}
	err := s.backend.scan(ctx, dirKey(key), func(k string, _ []byte) bool {
		keys = append(keys, k)
		return true
	})
	if err != nil {
		return err
	}
	return s.backend.del(ctx, keys...)
}

func (s *KVStorage) Exists(ctx context.Context, key string) (bool, error) {
	key = Clean(key)
	if _, ok, err := s.backend.get(ctx, key); err != nil || ok {
		return ok, err
	}
	return s.IsDir(ctx, key)
}

func (s *KVStorage) Stat(ctx context.Context, key string) (*Info, error) {
	key = Clean(key)
	if key != "" {
		rec, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return &Info{Key: key, Size: int64(len(rec.Data)), ModTime: time.Unix(0, rec.ModTime)}, nil
		}
	}

	ok, err := s.IsDir(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(key)
	}
	info := &Info{Key: key, IsDir: true}
	if key != "" {
		if marker, err := s.load(ctx, dirKey(key)); err != nil {
			return nil, err
		} else if marker != nil {
			info.ModTime = time.Unix(0, marker.ModTime)
		}
	}
	return info, nil
}

func (s *KVStorage) Rename(ctx context.Context, from string, to string) error {
	from, to = Clean(from), Clean(to)
	if from == "" || to == "" {
		return errors.New("cannot rename the root directory")
	}
	if ok, err := s.Exists(ctx, from); err != nil {
		return err
	} else if !ok {
		return notFound(from)
	}
	if ok, err := s.Exists(ctx, to); err != nil {
		return err
	} else if ok {
		return alreadyExists(to)
	}
	if strings.HasPrefix(to, dirKey(from)) {
		return errors.Errorf("cannot move [%s] into itself", from)
	}

	moves := map[string][]byte{}
	if buf, ok, err := s.backend.get(ctx, from); err != nil {
		return err
	} else if ok {
		moves[from] = buf
	}
	err := s.backend.scan(ctx, dirKey(from), func(k string, v []byte) bool {
		moves[k] = append([]byte(nil), v...)
		return true
	})
	if err != nil {
		return err
	}

	olds := make([]string, 0, len(moves))
	for k, v := range moves {
		if err := s.backend.put(ctx, to+strings.TrimPrefix(k, from), v); err != nil {
			return err
		}
		olds = append(olds, k)
	}
	return s.backend.del(ctx, olds...)
}

func (s *KVStorage) Mkdir(ctx context.Context, dir string) error {
	dir = Clean(dir)
	if ok, err := s.Exists(ctx, dir); err != nil {
		return err
	} else if ok {
		return alreadyExists(dir)
	}
	return s.store(ctx, dirKey(dir), &record{Dir: true, ModTime: time.Now().UnixNano()})
}

func (s *KVStorage) IsDir(ctx context.Context, dir string) (bool, error) {
	dir = Clean(dir)
	if dir == "" {
		return true, nil
	}
	found := false
	err := s.backend.scan(ctx, dirKey(dir), func(string, []byte) bool {
		found = true
		return false
	})
	return found, err
}

func (s *KVStorage) List(ctx context.Context, dir string) ([]*Info, error) {
	dir = Clean(dir)
	if ok, err := s.IsDir(ctx, dir); err != nil {
		return nil, err
	} else if !ok {
		return nil, notFound(dir)
	}

	prefix := dirKey(dir)
	children := map[string]*Info{}
	var scanErr error
	err := s.backend.scan(ctx, prefix, func(k string, v []byte) bool {
		rest := strings.TrimPrefix(k, prefix)
		if rest == "" {
			return true
		}
		name, sub, nested := strings.Cut(rest, "/")
		key := Join(dir, name)
		if nested {
			info, ok := children[key]
			if !ok {
				info = &Info{Key: key, IsDir: true}
				children[key] = info
			}
			// 目录标记带着创建时间
			if sub == "" {
				var rec record
				if err := msgpack.Unmarshal(v, &rec); err != nil {
					scanErr = errors.Wrapf(err, "msgpack.Unmarshal failed. key: %s", k)
					return false
				}
				info.ModTime = time.Unix(0, rec.ModTime)
			}
			return true
		}
		var rec record
		if err := msgpack.Unmarshal(v, &rec); err != nil {
			scanErr = errors.Wrapf(err, "msgpack.Unmarshal failed. key: %s", k)
			return false
		}
		children[key] = &Info{Key: key, Size: int64(len(rec.Data)), ModTime: time.Unix(0, rec.ModTime)}
		return true
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}

	infos := make([]*Info, 0, len(children))
	for _, info := range children {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *KVStorage) Close() error {
	return s.backend.close()
}
