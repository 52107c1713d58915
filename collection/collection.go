package collection

import (
	"encoding/json"
	"iter"
	"math"
	"strconv"
	"strings"
)

// Forgetter 可以按位置移除元素的容器
type Forgetter interface {
	Forget(index int)
}

// Collectable 被集合收录时需要记录自身位置的元素
type Collectable interface {
	CollectedBy(c Forgetter, index int)
}

// Identifiable 拥有整数标识的元素，Find 使用
type Identifiable interface {
	Identifier() (int64, bool)
}

// Arrayable 可以转换为普通数据结构的元素，ToArray 使用
type Arrayable interface {
	ToArray() any
}

type slot[T any] struct {
	item T
	live bool
}

// Collection 有序、稀疏、按位置寻址的容器
//
// 位置（index）在元素加入时分配，之后不会因为其他元素被移除而改变，
// 因此元素持有的位置在集合的整个生命周期内都有效
type Collection[T any] struct {
	slots  []slot[T]
	length int
}

func New[T any](items ...T) *Collection[T] {
	c := &Collection[T]{}
	c.Push(items...)
	return c
}

// Push 追加元素，实现了 Collectable 的元素会收到自身的位置
func (c *Collection[T]) Push(items ...T) *Collection[T] {
	for _, item := range items {
		index := c.add(item)
		if collectable, ok := any(item).(Collectable); ok {
			collectable.CollectedBy(c, index)
		}
	}
	return c
}

// add 追加元素但不通知 Collectable，派生集合使用
func (c *Collection[T]) add(item T) int {
	index := len(c.slots)
	c.slots = append(c.slots, slot[T]{item: item, live: true})
	c.length++
	return index
}

// Forget 移除指定位置的元素，位置不存在或已被移除时什么也不做
func (c *Collection[T]) Forget(index int) {
	if index < 0 || index >= len(c.slots) || !c.slots[index].live {
		return
	}
	c.slots[index] = slot[T]{}
	c.length--
}

// Len 当前存活的元素数量
func (c *Collection[T]) Len() int {
	return c.length
}

func (c *Collection[T]) IsEmpty() bool {
	return c.length == 0
}

// Get 按位置获取元素
func (c *Collection[T]) Get(index int) (T, bool) {
	if index < 0 || index >= len(c.slots) || !c.slots[index].live {
		var zero T
		return zero, false
	}
	return c.slots[index].item, true
}

// Has 位置上是否有元素
func (c *Collection[T]) Has(index int) bool {
	_, ok := c.Get(index)
	return ok
}

// All 按位置顺序遍历存活元素
func (c *Collection[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := range c.slots {
			if !c.slots[i].live {
				continue
			}
			if !yield(i, c.slots[i].item) {
				return
			}
		}
	}
}

// Keys 存活元素的位置
func (c *Collection[T]) Keys() []int {
	keys := make([]int, 0, c.length)
	for i := range c.All() {
		keys = append(keys, i)
	}
	return keys
}

// Items 存活元素，按位置顺序
func (c *Collection[T]) Items() []T {
	items := make([]T, 0, c.length)
	for _, item := range c.All() {
		items = append(items, item)
	}
	return items
}

// First 第一个存活的元素
func (c *Collection[T]) First() (T, bool) {
	for _, item := range c.All() {
		return item, true
	}
	var zero T
	return zero, false
}

// Take 取前 n 个元素（至少 1 个）组成新集合
func (c *Collection[T]) Take(n int) *Collection[T] {
	return c.Slice(0, max(1, n))
}

// Skip 跳过前 n 个元素
func (c *Collection[T]) Skip(n int) *Collection[T] {
	return c.Slice(n)
}

// Slice 从第 from 个元素开始截取 length 个元素组成新集合
//
// from 为负数时从末尾倒数；省略 length 表示截取到末尾，length 为负数表示在距末尾 -length 处停止。
// 返回的集合保留元素在原集合中的位置，是只读快照，其中的元素不会被重新登记
func (c *Collection[T]) Slice(from int, length ...int) *Collection[T] {
	keys := c.Keys()
	n := len(keys)

	if from < 0 {
		from = max(0, n+from)
	}
	if from > n {
		from = n
	}

	end := n
	if len(length) > 0 {
		if length[0] < 0 {
			end = n + length[0]
		} else {
			end = from + length[0]
		}
	}
	end = min(max(end, from), n)

	result := &Collection[T]{}
	for _, index := range keys[from:end] {
		result.place(index, c.slots[index].item)
	}
	return result
}

// place 在指定位置放入元素，中间空出的位置视为已移除
func (c *Collection[T]) place(index int, item T) {
	for len(c.slots) <= index {
		c.slots = append(c.slots, slot[T]{})
	}
	c.slots[index] = slot[T]{item: item, live: true}
	c.length++
}

// Filter 保留 fn 返回 true 的元素，fn 的第三个参数是正在构造的新集合
func (c *Collection[T]) Filter(fn func(item T, index int, building *Collection[T]) bool) *Collection[T] {
	result := &Collection[T]{}
	for i, item := range c.All() {
		if fn(item, i, result) {
			result.add(item)
		}
	}
	return result
}

// Map 对每个元素做变换并返回新集合，原集合不变
func (c *Collection[T]) Map(fn func(item T, index int, c *Collection[T]) T) *Collection[T] {
	return MapTo(c, fn)
}

// MapTo 与 Map 相同，但可以变换成其他类型
func MapTo[T, U any](c *Collection[T], fn func(item T, index int, c *Collection[T]) U) *Collection[U] {
	result := &Collection[U]{}
	for i, item := range c.All() {
		result.add(fn(item, i, c))
	}
	return result
}

// Each 按位置顺序遍历
func (c *Collection[T]) Each(fn func(item T, index int, c *Collection[T])) *Collection[T] {
	for i, item := range c.All() {
		fn(item, i, c)
	}
	return c
}

// Find 返回第一个标识等于 id 的元素，id 会被转换为整数
func (c *Collection[T]) Find(id any) (T, bool) {
	var zero T
	want, ok := ToID(id)
	if !ok {
		return zero, false
	}
	for _, item := range c.All() {
		identifiable, ok := any(item).(Identifiable)
		if !ok {
			continue
		}
		if got, ok := identifiable.Identifier(); ok && got == want {
			return item, true
		}
	}
	return zero, false
}

// ToArray 转换为普通切片，实现了 Arrayable 的元素会被展开
func (c *Collection[T]) ToArray() []any {
	result := make([]any, 0, c.length)
	for _, item := range c.All() {
		if arrayable, ok := any(item).(Arrayable); ok {
			result = append(result, arrayable.ToArray())
			continue
		}
		result = append(result, item)
	}
	return result
}

// MarshalJSON 编码与 ToArray 一致，元素自己实现了 json.Marshaler 时优先使用它，保留字段顺序
func (c *Collection[T]) MarshalJSON() ([]byte, error) {
	result := make([]any, 0, c.length)
	for _, item := range c.All() {
		if _, ok := any(item).(json.Marshaler); ok {
			result = append(result, item)
			continue
		}
		if arrayable, ok := any(item).(Arrayable); ok {
			result = append(result, arrayable.ToArray())
			continue
		}
		result = append(result, item)
	}
	return json.Marshal(result)
}

func (c *Collection[T]) ToJSON() ([]byte, error) {
	return c.MarshalJSON()
}

// Paginate 按页截取，page 从 1 开始
func (c *Collection[T]) Paginate(perPage int, page int) *Pagination[T] {
	return Paginate(c, perPage, page)
}

// ToID 把标识转换为整数，字符串取前缀中的数字部分
func ToID(id any) (int64, bool) {
	switch v := id.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		return ToID(string(v))
	case string:
		s := strings.TrimSpace(v)
		end := 0
		for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
			end++
		}
		i, err := strconv.ParseInt(s[:end], 10, 64)
		if err != nil {
			return 0, true
		}
		return i, true
	}
	return 0, false
}
