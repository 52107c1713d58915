package query

import "github.com/hatlonely/jsondb/doc"

// TermQuery 精确匹配查询，数字按数值比较
type TermQuery struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (q *TermQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermQuery) Match(d *doc.Document) bool {
	want, ok := valueOf(q.Value)
	if !ok {
		return false
	}
	v, ok := d.Lookup(q.Field)
	if !ok {
		return false
	}
	if v.Equal(want) {
		return true
	}
	if items, ok := v.AsArray(); ok {
		for _, item := range items {
			if item.Equal(want) {
				return true
			}
		}
	}
	return false
}

func (q *TermQuery) ToMap() map[string]any {
	return map[string]any{
		"term": map[string]any{
			q.Field: q.Value,
		},
	}
}
