package jdb

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/hatlonely/jsondb/doc"
	"github.com/hatlonely/jsondb/storage"
	"github.com/pkg/errors"
)

const (
	// MetaRows 表中的行数
	MetaRows = "rows"
	// MetaCurrentID 最后分配的 id
	MetaCurrentID = "current_id"
)

// Meta 键值元数据，写入先记在 pending 里，Save 时才落盘
//
// 读取优先 pending，其次是最近一次加载的 snapshot。Save 会先重新读取文件，
// 把 pending 覆盖上去再写回，这样其他进程在这期间写入的 key 不会丢失
type Meta struct {
	storage  storage.Storage
	key      string
	snapshot *doc.Document
	pending  *doc.Document
}

// NewMeta 空的 Meta，不读取存储
func NewMeta(s storage.Storage, key string) *Meta {
	return &Meta{
		storage:  s,
		key:      key,
		snapshot: doc.NewDocument(),
		pending:  doc.NewDocument(),
	}
}

// LoadMeta 读取 key 对应的元数据文件
func LoadMeta(ctx context.Context, s storage.Storage, key string) (*Meta, error) {
	m := NewMeta(s, key)
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Meta) Key() string {
	return m.key
}

// Load 重新读取 snapshot，pending 保持不变
func (m *Meta) Load(ctx context.Context) error {
	snapshot, err := m.read(ctx, m.key)
	if err != nil {
		return newError(ErrFileSystem, m.key, err)
	}
	m.snapshot = snapshot
	return nil
}

func (m *Meta) read(ctx context.Context, key string) (*doc.Document, error) {
	buf, err := m.storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return parseMeta(buf)
}

// parseMeta 空数组也视为空对象
func parseMeta(buf []byte) (*doc.Document, error) {
	trimmed := bytes.TrimSpace(buf)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null")) {
		return doc.NewDocument(), nil
	}
	d, err := doc.Parse(trimmed)
	if err != nil {
		return nil, errors.WithMessage(err, "malformed meta")
	}
	return d, nil
}

// Get pending 优先，两边都没有时返回 ErrLookup
func (m *Meta) Get(key string) (doc.Value, error) {
	if v, ok := m.pending.Get(key); ok {
		return v, nil
	}
	if v, ok := m.snapshot.Get(key); ok {
		return v, nil
	}
	return doc.Value{}, newError(ErrLookup, key, nil)
}

// Int 整数值，值不是整数时同样返回 ErrLookup
func (m *Meta) Int(key string) (int64, error) {
	v, err := m.Get(key)
	if err != nil {
		return 0, err
	}
	i, ok := v.AsInt()
	if !ok {
		return 0, newError(ErrLookup, key, errors.Errorf("%s is not an integer", v.Kind()))
	}
	return i, nil
}

func (m *Meta) Set(key string, v doc.Value) {
	m.pending.Set(key, v)
}

// Incr 整数值加上 delta，key 不存在时从 0 开始
func (m *Meta) Incr(key string, delta int64) (int64, error) {
	cur, err := m.Int(key)
	if err != nil {
		if _, lerr := m.Get(key); lerr == nil {
			return 0, err
		}
		cur = 0
	}
	m.Set(key, doc.Int(cur+delta))
	return cur + delta, nil
}

// Keys snapshot 的 key，再加上只在 pending 中的 key
func (m *Meta) Keys() []string {
	keys := m.snapshot.Keys()
	for _, key := range m.pending.Keys() {
		if !m.snapshot.Has(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// ToMap 合并 pending 之后的视图
func (m *Meta) ToMap() map[string]any {
	merged := m.snapshot.Clone()
	m.pending.Each(func(key string, v doc.Value) {
		merged.Set(key, v)
	})
	return merged.ToMap()
}

func (m *Meta) IsDirty() bool {
	return m.pending.Len() > 0
}

func (m *Meta) Save(ctx context.Context) (SaveResult, error) {
	return m.SaveTo(ctx, m.key)
}

// SaveTo 重新读取 key 对应的文件，覆盖 pending 后写回；文件不存在时以当前 snapshot 为底
//
// 写入失败时 pending 保留，可以重试
func (m *Meta) SaveTo(ctx context.Context, key string) (SaveResult, error) {
	if !m.IsDirty() {
		return SaveSkipped, nil
	}

	merged, err := m.read(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return SaveFailed, newError(ErrFileSystem, key, err)
		}
		merged = m.snapshot.Clone()
	}
	m.pending.Each(func(k string, v doc.Value) {
		merged.Set(k, v)
	})

	buf, err := json.Marshal(merged)
	if err != nil {
		return SaveFailed, newError(ErrFileSystem, key, errors.Wrap(err, "json.Marshal failed"))
	}
	if err := m.storage.Put(ctx, key, buf); err != nil {
		return SaveFailed, newError(ErrFileSystem, key, err)
	}

	m.snapshot = merged
	m.pending = doc.NewDocument()
	return SaveDone, nil
}

// Rollback 丢弃所有未保存的修改
func (m *Meta) Rollback() {
	m.pending = doc.NewDocument()
}

// rekey 表重命名后 Meta 跟随新的文件
func (m *Meta) rekey(key string) {
	m.key = key
}
