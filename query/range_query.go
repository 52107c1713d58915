package query

import (
	"github.com/hatlonely/jsondb/doc"
	"github.com/pkg/errors"
)

// RangeQuery 范围查询，数字按数值比较，字符串按字典序比较
type RangeQuery struct {
	Field string `json:"field"`
	Gt    any    `json:"gt,omitempty"`
	Gte   any    `json:"gte,omitempty"`
	Lt    any    `json:"lt,omitempty"`
	Lte   any    `json:"lte,omitempty"`
}

func (q *RangeQuery) Type() QueryType {
	return QueryTypeRange
}

type bound struct {
	value  any
	accept func(c int) bool
}

func (q *RangeQuery) bounds() []bound {
	var bounds []bound
	if q.Gt != nil {
		bounds = append(bounds, bound{q.Gt, func(c int) bool { return c > 0 }})
	}
	if q.Gte != nil {
		bounds = append(bounds, bound{q.Gte, func(c int) bool { return c >= 0 }})
	}
	if q.Lt != nil {
		bounds = append(bounds, bound{q.Lt, func(c int) bool { return c < 0 }})
	}
	if q.Lte != nil {
		bounds = append(bounds, bound{q.Lte, func(c int) bool { return c <= 0 }})
	}
	return bounds
}

func (q *RangeQuery) Match(d *doc.Document) bool {
	bounds := q.bounds()
	limits := make([]doc.Value, len(bounds))
	for i, b := range bounds {
		v, ok := valueOf(b.value)
		if !ok {
			return false
		}
		limits[i] = v
	}

	for _, v := range values(d, q.Field) {
		if v.IsNull() {
			continue
		}
		matched := true
		for i, b := range bounds {
			c, ok := doc.Compare(v, limits[i])
			if !ok || !b.accept(c) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func (q *RangeQuery) ToMap() map[string]any {
	rangeQuery := make(map[string]any)
	if q.Gt != nil {
		rangeQuery["gt"] = q.Gt
	}
	if q.Gte != nil {
		rangeQuery["gte"] = q.Gte
	}
	if q.Lt != nil {
		rangeQuery["lt"] = q.Lt
	}
	if q.Lte != nil {
		rangeQuery["lte"] = q.Lte
	}
	return map[string]any{
		"range": map[string]any{
			q.Field: rangeQuery,
		},
	}
}

func rangeFromMap(body map[string]any) (Query, error) {
	if len(body) != 1 {
		return nil, errors.New("range query must name exactly one field")
	}
	for field, v := range body {
		limits, ok := v.(map[string]any)
		if !ok {
			return nil, errors.Errorf("range query on %q requires an object, got %T", field, v)
		}
		q := &RangeQuery{Field: field}
		for k, limit := range limits {
			switch k {
			case "gt":
				q.Gt = limit
			case "gte":
				q.Gte = limit
			case "lt":
				q.Lt = limit
			case "lte":
				q.Lte = limit
			default:
				return nil, errors.Errorf("range query on %q: unknown bound %q", field, k)
			}
		}
		return q, nil
	}
	return nil, nil
}
