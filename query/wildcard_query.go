package query

import (
	"regexp"
	"strings"

	"github.com/hatlonely/jsondb/doc"
)

// WildcardQuery 通配符查询，* 匹配任意数量字符，? 匹配单个字符，需要匹配整个值
type WildcardQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *WildcardQuery) Type() QueryType {
	return QueryTypeWildcard
}

func (q *WildcardQuery) Match(d *doc.Document) bool {
	re, err := compile(wildcardPattern(q.Value))
	if err != nil {
		return false
	}
	return anyText(d, q.Field, re.MatchString)
}

func (q *WildcardQuery) ToMap() map[string]any {
	return map[string]any{
		"wildcard": map[string]any{
			q.Field: q.Value,
		},
	}
}

// wildcardPattern 将通配符转换为正则表达式，其他字符按字面量转义
func wildcardPattern(value string) string {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range value {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return sb.String()
}
