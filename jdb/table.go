package jdb

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/hatlonely/jsondb/collection"
	"github.com/hatlonely/jsondb/doc"
	"github.com/hatlonely/jsondb/log"
	"github.com/hatlonely/jsondb/query"
	"github.com/hatlonely/jsondb/serializer"
	"github.com/hatlonely/jsondb/storage"
	"github.com/pkg/errors"
)

const (
	// DataExt 数据文件扩展名
	DataExt = ".json"
	// MetaExt 元数据文件扩展名
	MetaExt = ".meta.json"
)

// DataKey 表数据文件的 key
func DataKey(dir string, name string) string {
	return storage.Join(dir, name+DataExt)
}

// MetaKey 表元数据文件的 key
func MetaKey(dir string, name string) string {
	return storage.Join(dir, name+MetaExt)
}

// Table 一张表：数据文件是一个 JSON 数组，整体加载到内存，Save 时整体写回
//
// 行的修改、插入和删除都会把表标记为已修改，没有修改时 Save 不做任何 IO。
// 表没有关闭操作，未保存的修改在表被丢弃时一起丢失
type Table struct {
	storage storage.Storage
	logger  log.Logger
	dir     string
	name    string

	meta  *Meta
	rows  *collection.Collection[*Row]
	dirty bool
	// maxID 加载和插入过的最大 id，current_id 落后于它时从它继续分配
	maxID int64
}

func loadTable(ctx context.Context, s storage.Storage, logger log.Logger, dir string, name string) (*Table, error) {
	t := &Table{storage: s, logger: logger, dir: dir, name: name}
	if err := t.Reload(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload 重新读取数据和元数据文件，丢弃所有未保存的修改
func (t *Table) Reload(ctx context.Context) error {
	meta, err := LoadMeta(ctx, t.storage, t.MetaKey())
	if err != nil {
		return err
	}

	buf, err := t.storage.Get(ctx, t.DataKey())
	if err != nil {
		return newError(ErrFileSystem, t.DataKey(), err)
	}
	docs, err := doc.ParseArray(buf)
	if err != nil {
		return newError(ErrFileSystem, t.DataKey(), errors.WithMessage(err, "malformed table data"))
	}

	var maxID int64
	rows := collection.New[*Row]()
	for _, d := range docs {
		row := newRow(t, rows, d)
		if id, ok := row.ID(); ok && id > maxID {
			maxID = id
		}
		rows.Push(row)
	}

	t.meta = meta
	t.rows = rows
	t.dirty = false
	t.maxID = maxID
	return nil
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) DataKey() string {
	return DataKey(t.dir, t.name)
}

func (t *Table) MetaKey() string {
	return MetaKey(t.dir, t.name)
}

func (t *Table) Meta() *Meta {
	return t.meta
}

// IsDirty 行或者元数据有未保存的修改
func (t *Table) IsDirty() bool {
	return t.dirty || t.meta.IsDirty()
}

// Insert 为每个文档的副本分配递增的 id 并追加到表中，副本中已有的 id 字段会被覆盖
//
// id 来自元数据中的 current_id，删除行不会让 id 被重新使用；
// current_id 丢失或落后时从表中最大的 id 继续分配
func (t *Table) Insert(docs ...*doc.Document) ([]*Row, error) {
	inserted := make([]*Row, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			d = doc.NewDocument()
		} else {
			d = d.Clone()
		}
		id, err := t.meta.Incr(MetaCurrentID, 1)
		if err != nil {
			return inserted, err
		}
		if id <= t.maxID {
			id = t.maxID + 1
			t.meta.Set(MetaCurrentID, doc.Int(id))
		}
		t.maxID = id
		if _, err := t.meta.Incr(MetaRows, 1); err != nil {
			return inserted, err
		}
		d.Set(IDField, doc.Int(id))

		row := newRow(t, t.rows, d)
		t.rows.Push(row)
		t.dirty = true
		inserted = append(inserted, row)
	}
	return inserted, nil
}

// InsertMap 同 Insert，字段按 key 排序
func (t *Table) InsertMap(maps ...map[string]any) ([]*Row, error) {
	docs := make([]*doc.Document, 0, len(maps))
	for _, m := range maps {
		d, err := doc.FromMap(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return t.Insert(docs...)
}

// Save 有修改时写回数据文件，再保存元数据；元数据没有修改视为成功
func (t *Table) Save(ctx context.Context) (SaveResult, error) {
	if !t.IsDirty() {
		return SaveSkipped, nil
	}

	if t.dirty {
		buf, err := json.Marshal(t.rows)
		if err != nil {
			return SaveFailed, newError(ErrFileSystem, t.DataKey(), errors.Wrap(err, "json.Marshal failed"))
		}
		if err := t.storage.Put(ctx, t.DataKey(), buf); err != nil {
			return SaveFailed, newError(ErrFileSystem, t.DataKey(), err)
		}
	}

	if res, err := t.meta.Save(ctx); res == SaveFailed {
		return SaveFailed, err
	}
	t.dirty = false
	return SaveDone, nil
}

// Rename 同时重命名数据和元数据文件
//
// 新名字已被占用返回 ErrAlreadyExists；数据文件重命名失败返回 ErrFileSystem，
// 元数据文件重命名失败只记录日志
func (t *Table) Rename(ctx context.Context, newName string) error {
	dataKey, metaKey := DataKey(t.dir, newName), MetaKey(t.dir, newName)

	exists, err := t.storage.Exists(ctx, dataKey)
	if err != nil {
		return newError(ErrFileSystem, dataKey, err)
	}
	if exists {
		return newError(ErrAlreadyExists, newName, errors.Errorf("table %s cannot be renamed to %s", t.name, newName))
	}

	if err := t.storage.Rename(ctx, t.DataKey(), dataKey); err != nil {
		return newError(ErrFileSystem, t.DataKey(), err)
	}
	if err := t.storage.Rename(ctx, t.MetaKey(), metaKey); err != nil {
		t.logger.WarnContext(ctx, "rename meta failed", "from", t.MetaKey(), "to", metaKey, "error", err)
	}

	t.logger.InfoContext(ctx, "table renamed", "from", t.name, "to", newName)
	t.name = newName
	t.meta.rekey(metaKey)
	return nil
}

// Size 数据文件的大小
func (t *Table) Size(ctx context.Context) (int64, error) {
	info, err := t.Stat(ctx)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Stat 数据文件的大小和修改时间
func (t *Table) Stat(ctx context.Context) (*storage.Info, error) {
	info, err := t.storage.Stat(ctx, t.DataKey())
	if err != nil {
		return nil, newError(ErrFileSystem, t.DataKey(), err)
	}
	return info, nil
}

// Watch 数据或元数据文件被修改时回调 fn，只有支持监听的存储可用，ctx 结束时停止
//
// 回调在监听的 goroutine 中执行，需要调用方自己与表的其他操作同步
func (t *Table) Watch(ctx context.Context, fn func(key string)) error {
	watcher, ok := t.storage.(storage.Watcher)
	if !ok {
		return errors.Wrapf(storage.ErrNotSupported, "%T cannot watch", t.storage)
	}
	return watcher.Watch(ctx, []string{t.DataKey(), t.MetaKey()}, fn)
}

// Export 用 s 编码表中所有文档
func (t *Table) Export(s serializer.Serializer[[]*doc.Document, []byte]) ([]byte, error) {
	docs := make([]*doc.Document, 0, t.rows.Len())
	for _, row := range t.rows.All() {
		docs = append(docs, row.document)
	}
	return s.Serialize(docs)
}

// Import 解码 data 并作为新行插入，文档会得到新的 id
func (t *Table) Import(s serializer.Serializer[[]*doc.Document, []byte], data []byte) ([]*Row, error) {
	docs, err := s.Deserialize(data)
	if err != nil {
		return nil, errors.WithMessage(err, "deserialize failed")
	}
	return t.Insert(docs...)
}

// Rows 表的行集合
func (t *Table) Rows() *collection.Collection[*Row] {
	return t.rows
}

func (t *Table) All() iter.Seq2[int, *Row] {
	return t.rows.All()
}

func (t *Table) Len() int {
	return t.rows.Len()
}

func (t *Table) IsEmpty() bool {
	return t.rows.IsEmpty()
}

// Push 把已有的行追加到表中，不分配 id，也不修改行数
func (t *Table) Push(rows ...*Row) *Table {
	t.rows.Push(rows...)
	t.dirty = true
	return t
}

func (t *Table) Filter(fn func(row *Row, index int, building *collection.Collection[*Row]) bool) *collection.Collection[*Row] {
	return t.rows.Filter(fn)
}

func (t *Table) Map(fn func(row *Row, index int, c *collection.Collection[*Row]) *Row) *collection.Collection[*Row] {
	return t.rows.Map(fn)
}

func (t *Table) Each(fn func(row *Row, index int, c *collection.Collection[*Row])) *Table {
	t.rows.Each(fn)
	return t
}

// Find 按 id 查找，id 会被转换为整数
func (t *Table) Find(id any) (*Row, bool) {
	return t.rows.Find(id)
}

func (t *Table) First() (*Row, bool) {
	return t.rows.First()
}

func (t *Table) Take(n int) *collection.Collection[*Row] {
	return t.rows.Take(n)
}

func (t *Table) Skip(n int) *collection.Collection[*Row] {
	return t.rows.Skip(n)
}

func (t *Table) Slice(from int, length ...int) *collection.Collection[*Row] {
	return t.rows.Slice(from, length...)
}

func (t *Table) Paginate(perPage int, page int) *collection.Pagination[*Row] {
	return t.rows.Paginate(perPage, page)
}

// Where 满足查询条件的行，逐行匹配
func (t *Table) Where(q query.Query) *collection.Collection[*Row] {
	return t.rows.Filter(func(row *Row, _ int, _ *collection.Collection[*Row]) bool {
		return q.Match(row.document)
	})
}

func (t *Table) ToArray() []any {
	return t.rows.ToArray()
}

func (t *Table) ToJSON() ([]byte, error) {
	return t.rows.ToJSON()
}
