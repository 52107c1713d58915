package doc

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Document 一条 JSON 对象记录，字段保持写入顺序
type Document struct {
	fields *orderedmap.OrderedMap[string, Value]
}

func NewDocument() *Document {
	return &Document{fields: orderedmap.New[string, Value]()}
}

// FromMap 从 map 构造文档，字段按键名排序
func FromMap(m map[string]any) (*Document, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := NewDocument()
	for _, k := range keys {
		v, err := ValueOf(m[k])
		if err != nil {
			return nil, errors.WithMessagef(err, "field %q", k)
		}
		d.Set(k, v)
	}
	return d, nil
}

// MustFromMap 与 FromMap 相同，失败时 panic
func MustFromMap(m map[string]any) *Document {
	d, err := FromMap(m)
	if err != nil {
		panic(err)
	}
	return d
}

// Parse 解析一个 JSON 对象
func Parse(data []byte) (*Document, error) {
	d := NewDocument()
	if err := d.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseArray 解析 JSON 对象数组
func ParseArray(data []byte) ([]*Document, error) {
	var docs []*Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, errors.Wrap(err, "json.Unmarshal failed")
	}
	for i, d := range docs {
		if d == nil {
			docs[i] = NewDocument()
		}
	}
	return docs, nil
}

func (d *Document) init() {
	if d.fields == nil {
		d.fields = orderedmap.New[string, Value]()
	}
}

func (d *Document) Get(key string) (Value, bool) {
	if d == nil || d.fields == nil {
		return Null(), false
	}
	return d.fields.Get(key)
}

// Set 设置字段，已存在的字段保持原有位置
func (d *Document) Set(key string, v Value) {
	d.init()
	d.fields.Set(key, v)
}

func (d *Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

func (d *Document) Delete(key string) bool {
	if d == nil || d.fields == nil {
		return false
	}
	_, ok := d.fields.Delete(key)
	return ok
}

func (d *Document) Len() int {
	if d == nil || d.fields == nil {
		return 0
	}
	return d.fields.Len()
}

func (d *Document) Keys() []string {
	keys := make([]string, 0, d.Len())
	d.Each(func(key string, _ Value) {
		keys = append(keys, key)
	})
	return keys
}

// Each 按字段顺序遍历
func (d *Document) Each(fn func(key string, v Value)) {
	if d == nil || d.fields == nil {
		return
	}
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

func (d *Document) Clone() *Document {
	c := NewDocument()
	d.Each(func(key string, v Value) {
		c.Set(key, v.Clone())
	})
	return c
}

func (d *Document) ToMap() map[string]any {
	m := make(map[string]any, d.Len())
	d.Each(func(key string, v Value) {
		m[key] = v.Interface()
	})
	return m
}

// Equal 字段集合与字段值相同即相等，不比较字段顺序
func (d *Document) Equal(o *Document) bool {
	if d.Len() != o.Len() {
		return false
	}
	equal := true
	d.Each(func(key string, v Value) {
		if !equal {
			return
		}
		ov, ok := o.Get(key)
		equal = ok && v.Equal(ov)
	})
	return equal
}

func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var err error
	d.Each(func(key string, v Value) {
		if err != nil {
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		k, e := json.Marshal(key)
		if e != nil {
			err = e
			return
		}
		buf.Write(k)
		buf.WriteByte(':')

		b, e := v.MarshalJSON()
		if e != nil {
			err = errors.WithMessagef(e, "field %q", key)
			return
		}
		buf.Write(b)
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	d.fields = orderedmap.New[string, Value]()
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) == 0 || data[0] != '{' {
		return errors.Errorf("document must be a json object, got %.32q", data)
	}
	if err := d.fields.UnmarshalJSON(data); err != nil {
		return errors.Wrap(err, "orderedmap.UnmarshalJSON failed")
	}
	return nil
}

func (d *Document) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(d.Len()); err != nil {
		return err
	}
	var err error
	d.Each(func(key string, v Value) {
		if err != nil {
			return
		}
		if err = enc.EncodeString(key); err != nil {
			return
		}
		err = v.EncodeMsgpack(enc)
	})
	return err
}

func (d *Document) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	d.fields = orderedmap.New[string, Value]()
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		var v Value
		if err := v.DecodeMsgpack(dec); err != nil {
			return errors.WithMessagef(err, "field %q", key)
		}
		d.fields.Set(key, v)
	}
	return nil
}
