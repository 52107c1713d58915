package query

import (
	"strings"

	"github.com/hatlonely/jsondb/doc"
)

// PrefixQuery 前缀查询
type PrefixQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *PrefixQuery) Type() QueryType {
	return QueryTypePrefix
}

func (q *PrefixQuery) Match(d *doc.Document) bool {
	return anyText(d, q.Field, func(s string) bool {
		return strings.HasPrefix(s, q.Value)
	})
}

func (q *PrefixQuery) ToMap() map[string]any {
	return map[string]any{
		"prefix": map[string]any{
			q.Field: q.Value,
		},
	}
}
