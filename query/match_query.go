package query

import (
	"fmt"
	"strings"

	"github.com/hatlonely/jsondb/doc"
)

// MatchQuery 全文搜索查询，忽略大小写的子串匹配
type MatchQuery struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (q *MatchQuery) Type() QueryType {
	return QueryTypeMatch
}

func (q *MatchQuery) Match(d *doc.Document) bool {
	want := strings.ToLower(fmt.Sprintf("%v", q.Value))
	return anyText(d, q.Field, func(s string) bool {
		return strings.Contains(strings.ToLower(s), want)
	})
}

func (q *MatchQuery) ToMap() map[string]any {
	return map[string]any{
		"match": map[string]any{
			q.Field: q.Value,
		},
	}
}
