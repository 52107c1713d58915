package query

import "github.com/hatlonely/jsondb/doc"

// ExistsQuery 字段存在查询，值为 null 视为不存在
type ExistsQuery struct {
	Field string `json:"field"`
}

func (q *ExistsQuery) Type() QueryType {
	return QueryTypeExists
}

func (q *ExistsQuery) Match(d *doc.Document) bool {
	v, ok := d.Lookup(q.Field)
	return ok && !v.IsNull()
}

func (q *ExistsQuery) ToMap() map[string]any {
	return map[string]any{
		"exists": map[string]any{
			"field": q.Field,
		},
	}
}
