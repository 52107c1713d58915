package query

import (
	"github.com/hatlonely/jsondb/collection"
	"github.com/hatlonely/jsondb/doc"
	"github.com/pkg/errors"
)

// BoolQuery 布尔查询
//
// Must 与 Filter 全部满足，MustNot 全部不满足；
// Should 非空时至少满足 MinShouldMatch 个（默认 1 个）
type BoolQuery struct {
	Must           []Query `json:"must,omitempty"`
	Should         []Query `json:"should,omitempty"`
	MustNot        []Query `json:"must_not,omitempty"`
	Filter         []Query `json:"filter,omitempty"`
	MinShouldMatch *int    `json:"minimum_should_match,omitempty"`
}

func (q *BoolQuery) Type() QueryType {
	return QueryTypeBool
}

func (q *BoolQuery) Match(d *doc.Document) bool {
	for _, sub := range q.Must {
		if !sub.Match(d) {
			return false
		}
	}
	for _, sub := range q.Filter {
		if !sub.Match(d) {
			return false
		}
	}
	for _, sub := range q.MustNot {
		if sub.Match(d) {
			return false
		}
	}

	if len(q.Should) == 0 {
		return true
	}
	need := 1
	if q.MinShouldMatch != nil {
		need = *q.MinShouldMatch
	}
	matched := 0
	for _, sub := range q.Should {
		if sub.Match(d) {
			matched++
			if matched >= need {
				return true
			}
		}
	}
	return matched >= need
}

func (q *BoolQuery) ToMap() map[string]any {
	boolQuery := make(map[string]any)

	clauses := []struct {
		key     string
		queries []Query
	}{
		{"must", q.Must},
		{"should", q.Should},
		{"must_not", q.MustNot},
		{"filter", q.Filter},
	}
	for _, clause := range clauses {
		if len(clause.queries) == 0 {
			continue
		}
		items := make([]any, len(clause.queries))
		for i, sub := range clause.queries {
			items[i] = sub.ToMap()
		}
		boolQuery[clause.key] = items
	}

	if q.MinShouldMatch != nil {
		boolQuery["minimum_should_match"] = *q.MinShouldMatch
	}

	return map[string]any{"bool": boolQuery}
}

func boolFromMap(body map[string]any) (Query, error) {
	q := &BoolQuery{}
	for k, v := range body {
		var target *[]Query
		switch k {
		case "must":
			target = &q.Must
		case "should":
			target = &q.Should
		case "must_not":
			target = &q.MustNot
		case "filter":
			target = &q.Filter
		case "minimum_should_match":
			n, ok := collection.ToID(v)
			if !ok {
				return nil, errors.Errorf("minimum_should_match must be a number, got %T", v)
			}
			minShouldMatch := int(n)
			q.MinShouldMatch = &minShouldMatch
			continue
		default:
			return nil, errors.Errorf("bool query: unknown clause %q", k)
		}

		// 单个查询可以不写成数组
		items, ok := v.([]any)
		if !ok {
			items = []any{v}
		}
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, errors.Errorf("bool query %s[%d] must be an object, got %T", k, i, item)
			}
			sub, err := FromMap(m)
			if err != nil {
				return nil, errors.WithMessagef(err, "bool query %s[%d]", k, i)
			}
			*target = append(*target, sub)
		}
	}
	return q, nil
}
