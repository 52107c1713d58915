package collection

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultPerPage 每页条数未指定时的默认值
const DefaultPerPage = 10

// Pagination 集合的分页视图
type Pagination[T any] struct {
	CurrentPage int
	PerPage     int
	From        int
	To          int
	Total       int
	LastPage    int
	Data        *Collection[T]

	extra *orderedmap.OrderedMap[string, any]
}

// PageBounds 计算分页边界，from/to 为从 1 开始的位置
//
// page 小于 1 时按第 1 页处理，perPage 小于 1 时使用 DefaultPerPage
func PageBounds(total, perPage, page int) (from, to, lastPage int) {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	page = max(1, page)

	from = perPage*(page-1) + 1
	to = min(total, from+perPage-1)
	lastPage = max(1, (total+perPage-1)/perPage)
	return from, to, lastPage
}

func Paginate[T any](c *Collection[T], perPage int, page int) *Pagination[T] {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	page = max(1, page)

	from, to, lastPage := PageBounds(c.Len(), perPage, page)

	data := &Collection[T]{}
	if to >= from {
		data = c.Slice(from-1, to-from+1)
	}

	return &Pagination[T]{
		CurrentPage: page,
		PerPage:     perPage,
		From:        from,
		To:          to,
		Total:       c.Len(),
		LastPage:    lastPage,
		Data:        data,
		extra:       orderedmap.New[string, any](),
	}
}

// Extend 附加自定义属性，随 ToMap/ToJSON 一起输出
func (p *Pagination[T]) Extend(key string, val any) *Pagination[T] {
	if p.extra == nil {
		p.extra = orderedmap.New[string, any]()
	}
	p.extra.Set(key, val)
	return p
}

// IsEmpty 当前页是否没有数据
func (p *Pagination[T]) IsEmpty() bool {
	return p.Data.IsEmpty()
}

func (p *Pagination[T]) properties() *orderedmap.OrderedMap[string, any] {
	m := orderedmap.New[string, any]()
	m.Set("current_page", p.CurrentPage)
	m.Set("data", p.Data)
	m.Set("from", p.From)
	m.Set("total", p.Total)
	m.Set("last_page", p.LastPage)
	m.Set("per_page", p.PerPage)
	m.Set("to", p.To)
	if p.extra != nil {
		for pair := p.extra.Oldest(); pair != nil; pair = pair.Next() {
			m.Set(pair.Key, pair.Value)
		}
	}
	return m
}

// ToMap 分页属性，data 字段为 ToArray 的结果
func (p *Pagination[T]) ToMap() map[string]any {
	result := map[string]any{}
	for pair := p.properties().Oldest(); pair != nil; pair = pair.Next() {
		result[pair.Key] = pair.Value
	}
	result["data"] = p.Data.ToArray()
	return result
}

func (p *Pagination[T]) MarshalJSON() ([]byte, error) {
	return p.properties().MarshalJSON()
}

func (p *Pagination[T]) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}
