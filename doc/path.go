package doc

import (
	"strconv"
	"strings"
)

// Lookup 按点分路径取值，例如 "address.city"、"tags.0"
// 路径中的数字段用于数组下标
func (d *Document) Lookup(path string) (Value, bool) {
	if d == nil {
		return Null(), false
	}
	if v, ok := d.Get(path); ok {
		return v, true
	}

	head, rest, nested := strings.Cut(path, ".")
	v, ok := d.Get(head)
	if !ok || !nested {
		return v, ok
	}
	return v.Lookup(rest)
}

// Lookup 在对象或数组中按点分路径取值
func (v Value) Lookup(path string) (Value, bool) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch cur.kind {
		case KindObject:
			next, ok := cur.obj.Get(seg)
			if !ok {
				return Null(), false
			}
			cur = next
		case KindArray:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(cur.arr) {
				return Null(), false
			}
			cur = cur.arr[i]
		default:
			return Null(), false
		}
	}
	return cur, true
}

// Compare 比较两个同类值的大小，数字按数值、字符串按字典序
// 类型不同或不可比较时 ok 为 false
func Compare(a, b Value) (result int, ok bool) {
	switch {
	case a.kind == KindNumber && b.kind == KindNumber:
		if x, okX := a.AsInt(); okX {
			if y, okY := b.AsInt(); okY {
				return cmp3(x < y, x > y), true
			}
		}
		x, okX := a.AsFloat()
		y, okY := b.AsFloat()
		if !okX || !okY {
			return 0, false
		}
		return cmp3(x < y, x > y), true
	case a.kind == KindString && b.kind == KindString:
		return strings.Compare(a.s, b.s), true
	case a.kind == KindBool && b.kind == KindBool:
		return cmp3(!a.b && b.b, a.b && !b.b), true
	}
	return 0, false
}

func cmp3(less, greater bool) int {
	if less {
		return -1
	}
	if greater {
		return 1
	}
	return 0
}
