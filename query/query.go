package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/hatlonely/jsondb/doc"
	"github.com/pkg/errors"
)

// QueryType 查询类型
type QueryType string

const (
	QueryTypeBool     QueryType = "bool"
	QueryTypeTerm     QueryType = "term"
	QueryTypeMatch    QueryType = "match"
	QueryTypeRange    QueryType = "range"
	QueryTypeExists   QueryType = "exists"
	QueryTypeWildcard QueryType = "wildcard"
	QueryTypePrefix   QueryType = "prefix"
	QueryTypeRegexp   QueryType = "regexp"
)

// Query 查询节点接口，对文档逐条求值
type Query interface {
	Type() QueryType
	Match(d *doc.Document) bool
	// ToMap 查询的 map 表示，可以被 FromMap 还原
	ToMap() map[string]any
}

// Parse 从 JSON 解析查询，格式与 ToMap 的输出一致
//
//	{"bool": {"must": [{"term": {"status": "active"}}], "must_not": {"exists": {"field": "deleted_at"}}}}
func Parse(data []byte) (Query, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, "json decode query failed")
	}
	return FromMap(m)
}

// FromMap 从 map 构造查询，map 必须只有一个键，键名为查询类型
func FromMap(m map[string]any) (Query, error) {
	if len(m) != 1 {
		return nil, errors.Errorf("query must have exactly one type key, got %d", len(m))
	}
	for k, v := range m {
		body, ok := v.(map[string]any)
		if !ok {
			return nil, errors.Errorf("%s query body must be an object, got %T", k, v)
		}
		switch QueryType(k) {
		case QueryTypeBool:
			return boolFromMap(body)
		case QueryTypeExists:
			field, ok := body["field"].(string)
			if !ok {
				return nil, errors.New("exists query requires a string field")
			}
			return &ExistsQuery{Field: field}, nil
		case QueryTypeRange:
			return rangeFromMap(body)
		case QueryTypeTerm, QueryTypeMatch, QueryTypePrefix, QueryTypeWildcard, QueryTypeRegexp:
			return leafFromMap(QueryType(k), body)
		default:
			return nil, errors.Errorf("unknown query type %q", k)
		}
	}
	return nil, nil
}

// leafFromMap 解析 {"field": value} 或 {"field": {"value": value}}
func leafFromMap(typ QueryType, body map[string]any) (Query, error) {
	if len(body) != 1 {
		return nil, errors.Errorf("%s query must name exactly one field", typ)
	}
	var field string
	var value any
	for field, value = range body {
	}
	if inner, ok := value.(map[string]any); ok {
		v, ok := inner["value"]
		if !ok {
			return nil, errors.Errorf("%s query on %q missing value", typ, field)
		}
		value = v
	}

	switch typ {
	case QueryTypeTerm:
		return &TermQuery{Field: field, Value: value}, nil
	case QueryTypeMatch:
		return &MatchQuery{Field: field, Value: value}, nil
	}

	s, ok := value.(string)
	if !ok {
		return nil, errors.Errorf("%s query on %q requires a string value, got %T", typ, field, value)
	}
	switch typ {
	case QueryTypePrefix:
		return &PrefixQuery{Field: field, Value: s}, nil
	case QueryTypeWildcard:
		return &WildcardQuery{Field: field, Value: s}, nil
	default:
		if _, err := regexp.Compile(s); err != nil {
			return nil, errors.Wrapf(err, "regexp query on %q", field)
		}
		return &RegexpQuery{Field: field, Value: s}, nil
	}
}

// values 取字段值，数组字段展开为元素，任意元素满足条件即视为匹配
func values(d *doc.Document, field string) []doc.Value {
	v, ok := d.Lookup(field)
	if !ok {
		return nil
	}
	if items, ok := v.AsArray(); ok {
		return items
	}
	return []doc.Value{v}
}

// text 标量值的文本形式，null、数组和对象没有文本形式
func text(v doc.Value) (string, bool) {
	switch v.Kind() {
	case doc.KindString, doc.KindNumber, doc.KindBool:
		return v.String(), true
	}
	return "", false
}

func anyText(d *doc.Document, field string, fn func(s string) bool) bool {
	for _, v := range values(d, field) {
		if s, ok := text(v); ok && fn(s) {
			return true
		}
	}
	return false
}

var regexps sync.Map

// compile 缓存编译后的正则，线性扫描时每条文档都会用到
func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexps.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexps.Store(pattern, re)
	return re, nil
}

func valueOf(v any) (doc.Value, bool) {
	val, err := doc.ValueOf(v)
	return val, err == nil
}

// String 查询的 JSON 文本，用于日志
func String(q Query) string {
	buf, err := json.Marshal(q.ToMap())
	if err != nil {
		return fmt.Sprintf("%s query", q.Type())
	}
	return string(buf)
}
