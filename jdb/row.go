package jdb

import (
	"github.com/hatlonely/jsondb/collection"
	"github.com/hatlonely/jsondb/doc"
)

// IDField insert 时写入的标识字段
const IDField = "id"

type membership struct {
	collection collection.Forgetter
	index      int
}

// Row 表中的一行，持有自己的文档，并记录所有收录了它的集合及其位置
//
// Delete 会从这些集合中逐个移除自己。Filter/Map/Slice 等派生集合不会登记，
// 只有 Push 进来的集合才会被级联删除
type Row struct {
	table       *Table
	collection  collection.Forgetter
	document    *doc.Document
	index       int
	memberships []membership
	deleted     bool
}

func newRow(table *Table, c collection.Forgetter, d *doc.Document) *Row {
	if d == nil {
		d = doc.NewDocument()
	}
	return &Row{table: table, collection: c, document: d, index: -1}
}

func (r *Row) Get(field string) (doc.Value, bool) {
	return r.document.Get(field)
}

// Set 设置字段并把表标记为已修改
func (r *Row) Set(field string, v doc.Value) *Row {
	r.document.Set(field, v)
	r.touch()
	return r
}

// SetAny 把任意 Go 值转换为 doc.Value 后设置
func (r *Row) SetAny(field string, v any) error {
	value, err := doc.ValueOf(v)
	if err != nil {
		return err
	}
	r.Set(field, value)
	return nil
}

func (r *Row) Has(field string) bool {
	return r.document.Has(field)
}

// Unset 删除字段并把表标记为已修改
func (r *Row) Unset(field string) {
	r.document.Delete(field)
	r.touch()
}

// Remove 同 Unset，可链式调用
func (r *Row) Remove(field string) *Row {
	r.Unset(field)
	return r
}

// Rename 字段改名，字段不存在时什么也不做
func (r *Row) Rename(oldField string, newField string) *Row {
	v, ok := r.document.Get(oldField)
	if !ok {
		return r
	}
	r.Set(newField, v)
	return r.Remove(oldField)
}

// CollectedBy 登记收录了这一行的集合，同一个位置只登记一次
func (r *Row) CollectedBy(c collection.Forgetter, index int) {
	for _, m := range r.memberships {
		if m.collection == c && m.index == index {
			return
		}
	}
	if c == r.collection && r.index < 0 {
		r.index = index
	}
	r.memberships = append(r.memberships, membership{collection: c, index: index})
}

// Delete 从所有登记过的集合中移除，行数减一，重复调用没有效果
func (r *Row) Delete() *Row {
	if r.deleted {
		return r
	}
	r.deleted = true

	for _, m := range r.memberships {
		m.collection.Forget(m.index)
	}
	if r.table != nil {
		if _, err := r.table.meta.Incr(MetaRows, -1); err != nil {
			r.table.logger.Warn("decrease rows failed", "table", r.table.name, "error", err)
		}
	}
	r.touch()
	return r
}

func (r *Row) Deleted() bool {
	return r.deleted
}

func (r *Row) touch() {
	if r.table != nil {
		r.table.dirty = true
	}
}

// ID insert 时分配的标识
func (r *Row) ID() (int64, bool) {
	v, ok := r.document.Get(IDField)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// Identifier 供 Collection.Find 使用
func (r *Row) Identifier() (int64, bool) {
	return r.ID()
}

// Document 行持有的文档，直接修改不会标记表
func (r *Row) Document() *doc.Document {
	return r.document
}

func (r *Row) ToArray() any {
	return r.document.ToMap()
}

func (r *Row) ToObject() *doc.Document {
	return r.document
}

func (r *Row) MarshalJSON() ([]byte, error) {
	return r.document.MarshalJSON()
}

func (r *Row) ToJSON() ([]byte, error) {
	return r.MarshalJSON()
}

func (r *Row) Table() *Table {
	return r.table
}

// Collection 构造这一行时所在的集合
func (r *Row) Collection() collection.Forgetter {
	return r.collection
}

// Index 在构造集合中的位置，尚未被收录时为 -1
func (r *Row) Index() int {
	return r.index
}
