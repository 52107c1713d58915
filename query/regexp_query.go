package query

import "github.com/hatlonely/jsondb/doc"

// RegexpQuery 正则表达式查询，语法为 Go regexp，不自动锚定
type RegexpQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *RegexpQuery) Type() QueryType {
	return QueryTypeRegexp
}

func (q *RegexpQuery) Match(d *doc.Document) bool {
	re, err := compile(q.Value)
	if err != nil {
		return false
	}
	return anyText(d, q.Field, re.MatchString)
}

func (q *RegexpQuery) ToMap() map[string]any {
	return map[string]any{
		"regexp": map[string]any{
			q.Field: q.Value,
		},
	}
}
