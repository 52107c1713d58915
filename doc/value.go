package doc

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Kind JSON 值的类型
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value 文档字段值，取值范围与 JSON 类型一一对应
// 零值为 null
type Value struct {
	kind Kind
	b    bool
	n    json.Number
	s    string
	arr  []Value
	obj  *Document
}

func Null() Value {
	return Value{}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func Int(i int64) Value {
	return Value{kind: KindNumber, n: json.Number(strconv.FormatInt(i, 10))}
}

func Float(f float64) Value {
	return Value{kind: KindNumber, n: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Number 直接使用 json.Number，保留原始文本；文本不是合法的 JSON 数字时返回 null
func Number(n json.Number) Value {
	v, err := ParseNumber(string(n))
	if err != nil {
		return Null()
	}
	return v
}

// ParseNumber 按 JSON 数字语法校验文本，空文本视为 0
func ParseNumber(s string) (Value, error) {
	if s == "" {
		s = "0"
	}
	if !validNumber(s) {
		return Null(), errors.Errorf("invalid number %q", s)
	}
	return Value{kind: KindNumber, n: json.Number(s)}, nil
}

func validNumber(s string) bool {
	first, last := s[0], s[len(s)-1]
	if first != '-' && (first < '0' || first > '9') {
		return false
	}
	if last < '0' || last > '9' {
		return false
	}
	return json.Valid([]byte(s))
}

func String(s string) Value {
	return Value{kind: KindString, s: s}
}

func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

func Object(d *Document) Value {
	if d == nil {
		d = NewDocument()
	}
	return Value{kind: KindObject, obj: d}
}

// ValueOf 将任意 Go 值转换为 Value
// map 的键按字典序排列；无法直接识别的类型（如结构体）经由 JSON 编码转换
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return val, nil
	case *Value:
		if val == nil {
			return Null(), nil
		}
		return *val, nil
	case *Document:
		return Object(val), nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return ParseNumber(string(val))
	case int:
		return Int(int64(val)), nil
	case int8:
		return Int(int64(val)), nil
	case int16:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint:
		return Number(json.Number(strconv.FormatUint(uint64(val), 10))), nil
	case uint8:
		return Int(int64(val)), nil
	case uint16:
		return Int(int64(val)), nil
	case uint32:
		return Int(int64(val)), nil
	case uint64:
		return Number(json.Number(strconv.FormatUint(val, 10))), nil
	case float32:
		return Float(float64(val)), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return Null(), errors.Errorf("unsupported number %v", val)
		}
		return Float(val), nil
	case []Value:
		return Array(val...), nil
	case []any:
		items := make([]Value, 0, len(val))
		for i, item := range val {
			iv, err := ValueOf(item)
			if err != nil {
				return Null(), errors.WithMessagef(err, "index %d", i)
			}
			items = append(items, iv)
		}
		return Array(items...), nil
	case map[string]any:
		d, err := FromMap(val)
		if err != nil {
			return Null(), err
		}
		return Object(d), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		d := NewDocument()
		for _, k := range keys {
			iv, err := ValueOf(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if err != nil {
				return Null(), errors.WithMessagef(err, "key %q", k)
			}
			d.Set(k, iv)
		}
		return Object(d), nil
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		items := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			iv, err := ValueOf(rv.Index(i).Interface())
			if err != nil {
				return Null(), errors.WithMessagef(err, "index %d", i)
			}
			items = append(items, iv)
		}
		return Array(items...), nil
	}

	buf, err := json.Marshal(v)
	if err != nil {
		return Null(), errors.Wrapf(err, "json.Marshal %T failed", v)
	}
	var result Value
	if err := json.Unmarshal(buf, &result); err != nil {
		return Null(), errors.Wrap(err, "json.Unmarshal failed")
	}
	return result, nil
}

// MustValueOf 与 ValueOf 相同，转换失败时 panic
func MustValueOf(v any) Value {
	val, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return val
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsInt 返回整数值，浮点数只有在没有小数部分时才能转换
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if i, err := v.n.Int64(); err == nil {
		return i, true
	}
	f, err := v.n.Float64()
	if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.n.Float64()
	return f, err == nil
}

func (v Value) AsNumber() (json.Number, bool) {
	return v.n, v.kind == KindNumber
}

func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

func (v Value) AsArray() ([]Value, bool) {
	return v.arr, v.kind == KindArray
}

func (v Value) AsObject() (*Document, bool) {
	return v.obj, v.kind == KindObject
}

// Interface 转换为普通的 Go 值
// 整数返回 int64，其他数字返回 float64，对象返回 map[string]any
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if i, err := v.n.Int64(); err == nil {
			return i
		}
		f, _ := v.n.Float64()
		return f
	case KindString:
		return v.s
	case KindArray:
		items := make([]any, len(v.arr))
		for i, item := range v.arr {
			items[i] = item.Interface()
		}
		return items
	case KindObject:
		return v.obj.ToMap()
	}
	return nil
}

// Clone 深拷贝
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.arr))
		for i, item := range v.arr {
			items[i] = item.Clone()
		}
		return Array(items...)
	case KindObject:
		return Object(v.obj.Clone())
	}
	return v
}

// Equal 比较两个值，数字按数值比较
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if v.n == o.n {
			return true
		}
		if a, ok := v.AsInt(); ok {
			if b, ok := o.AsInt(); ok {
				return a == b
			}
		}
		a, errA := v.n.Float64()
		b, errB := o.n.Float64()
		return errA == nil && errB == nil && a == b
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(o.obj)
	}
	return false
}

func (v Value) String() string {
	if v.kind == KindString {
		return v.s
	}
	buf, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(buf)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindNumber:
		if v.n == "" {
			return []byte("0"), nil
		}
		return []byte(v.n), nil
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		return v.obj.MarshalJSON()
	}
	return nil, errors.Errorf("unknown kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty json value")
	}

	switch data[0] {
	case 'n':
		*v = Null()
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return errors.Wrap(err, "json.Unmarshal bool failed")
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "json.Unmarshal string failed")
		}
		*v = String(s)
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return errors.Wrap(err, "json.Unmarshal array failed")
		}
		items := make([]Value, len(raws))
		for i, raw := range raws {
			if err := items[i].UnmarshalJSON(raw); err != nil {
				return errors.WithMessagef(err, "index %d", i)
			}
		}
		*v = Array(items...)
	case '{':
		d := NewDocument()
		if err := d.UnmarshalJSON(data); err != nil {
			return err
		}
		*v = Object(d)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.Wrap(err, "json.Unmarshal number failed")
		}
		*v = Number(n)
	}
	return nil
}

func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindNumber:
		if i, err := v.n.Int64(); err == nil {
			return enc.EncodeInt(i)
		}
		f, err := v.n.Float64()
		if err != nil {
			return errors.Wrapf(err, "invalid number %q", v.n)
		}
		return enc.EncodeFloat64(f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, item := range v.arr {
			if err := item.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindObject:
		return v.obj.EncodeMsgpack(enc)
	}
	return errors.Errorf("unknown kind %d", v.kind)
}

func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	c, err := dec.PeekCode()
	if err != nil {
		return err
	}

	switch {
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		d := NewDocument()
		if err := d.DecodeMsgpack(dec); err != nil {
			return err
		}
		*v = Object(d)
		return nil
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		items := make([]Value, n)
		for i := range items {
			if err := items[i].DecodeMsgpack(dec); err != nil {
				return err
			}
		}
		*v = Array(items...)
		return nil
	}

	raw, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	val, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}
