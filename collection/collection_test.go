package collection

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type member struct {
	id          int64
	memberships []int
	owners      []Forgetter
}

func (m *member) CollectedBy(c Forgetter, index int) {
	m.owners = append(m.owners, c)
	m.memberships = append(m.memberships, index)
}

func (m *member) Identifier() (int64, bool) {
	return m.id, true
}

func (m *member) ToArray() any {
	return map[string]any{"id": m.id}
}

func TestCollectionPush(t *testing.T) {
	Convey("TestCollectionPush", t, func() {
		Convey("length follows pushes", func() {
			c := New[int]()
			So(c.Len(), ShouldEqual, 0)
			So(c.IsEmpty(), ShouldBeTrue)

			c.Push(1, 2, 3)
			So(c.Len(), ShouldEqual, 3)
			So(c.Keys(), ShouldResemble, []int{0, 1, 2})
		})

		Convey("collectable items receive their index", func() {
			a, b := &member{id: 1}, &member{id: 2}
			c := New[*member](a)
			c.Push(b)

			So(a.memberships, ShouldResemble, []int{0})
			So(b.memberships, ShouldResemble, []int{1})
			So(a.owners[0], ShouldEqual, c)
		})

		Convey("index after a removal still names the new slot", func() {
			a, b, d := &member{id: 1}, &member{id: 2}, &member{id: 3}
			c := New(a, b)
			c.Forget(0)
			c.Push(d)

			So(d.memberships, ShouldResemble, []int{2})
			got, ok := c.Get(2)
			So(ok, ShouldBeTrue)
			So(got, ShouldEqual, d)
		})
	})
}

func TestCollectionForget(t *testing.T) {
	Convey("TestCollectionForget", t, func() {
		c := New(10, 20, 30, 40)

		Convey("forget keeps other indices stable", func() {
			c.Forget(1)
			So(c.Len(), ShouldEqual, 3)
			So(c.Keys(), ShouldResemble, []int{0, 2, 3})

			v, ok := c.Get(2)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 30)

			_, ok = c.Get(1)
			So(ok, ShouldBeFalse)
		})

		Convey("forget twice is idempotent", func() {
			c.Forget(2)
			c.Forget(2)
			So(c.Len(), ShouldEqual, 3)
		})

		Convey("out of range is ignored", func() {
			c.Forget(-1)
			c.Forget(100)
			So(c.Len(), ShouldEqual, 4)
		})

		Convey("length equals pushes minus distinct removals", func() {
			for _, i := range []int{0, 3, 0, 3, 1} {
				c.Forget(i)
			}
			So(c.Len(), ShouldEqual, 1)
			So(c.Items(), ShouldResemble, []int{30})
		})
	})
}

func TestCollectionSlice(t *testing.T) {
	Convey("TestCollectionSlice", t, func() {
		c := New(10, 20, 30, 40, 50)

		So(c.Slice(1, 2).ToArray(), ShouldResemble, []any{20, 30})
		So(c.Skip(2).ToArray(), ShouldResemble, []any{30, 40, 50})
		So(c.Slice(-2).ToArray(), ShouldResemble, []any{40, 50})
		So(c.Slice(1, -1).ToArray(), ShouldResemble, []any{20, 30, 40})
		So(c.Slice(10).ToArray(), ShouldResemble, []any{})
		So(c.Take(2).ToArray(), ShouldResemble, []any{10, 20})
		So(c.Take(0).ToArray(), ShouldResemble, []any{10})

		Convey("positions skip removed slots", func() {
			c.Forget(0)
			So(c.Slice(0, 2).ToArray(), ShouldResemble, []any{20, 30})
			first, ok := c.First()
			So(ok, ShouldBeTrue)
			So(first, ShouldEqual, 20)
		})

		Convey("slices keep the original keys", func() {
			c.Forget(1)
			sliced := c.Slice(1, 2)
			So(sliced.Keys(), ShouldResemble, []int{2, 3})
			So(sliced.Len(), ShouldEqual, 2)
			v, ok := sliced.Get(2)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 30)
			So(sliced.Has(0), ShouldBeFalse)

			var seen []int
			sliced.Each(func(_ int, index int, _ *Collection[int]) {
				seen = append(seen, index)
			})
			So(seen, ShouldResemble, []int{2, 3})
			So(c.Skip(3).Keys(), ShouldResemble, []int{4})
		})
	})
}

func TestCollectionTransform(t *testing.T) {
	Convey("TestCollectionTransform", t, func() {
		c := New(1, 2, 3, 4)

		Convey("filter", func() {
			var sizes []int
			even := c.Filter(func(item int, index int, building *Collection[int]) bool {
				sizes = append(sizes, building.Len())
				return item%2 == 0
			})
			So(even.ToArray(), ShouldResemble, []any{2, 4})
			So(sizes, ShouldResemble, []int{0, 0, 1, 1})
		})

		Convey("map leaves the original untouched", func() {
			doubled := c.Map(func(item int, index int, orig *Collection[int]) int {
				return item * 2
			})
			So(doubled.ToArray(), ShouldResemble, []any{2, 4, 6, 8})
			So(c.ToArray(), ShouldResemble, []any{1, 2, 3, 4})

			strs := MapTo(c, func(item int, index int, orig *Collection[int]) string {
				return string(rune('a' + index))
			})
			So(strs.ToArray(), ShouldResemble, []any{"a", "b", "c", "d"})
		})

		Convey("each visits in index order and returns self", func() {
			var seen []int
			c.Forget(1)
			ret := c.Each(func(item int, index int, self *Collection[int]) {
				seen = append(seen, index)
			})
			So(ret, ShouldEqual, c)
			So(seen, ShouldResemble, []int{0, 2, 3})
		})

		Convey("derived collections do not register membership", func() {
			a := &member{id: 1}
			src := New(a)
			src.Filter(func(*member, int, *Collection[*member]) bool { return true })
			src.Slice(0)
			src.Map(func(m *member, _ int, _ *Collection[*member]) *member { return m })
			So(a.memberships, ShouldResemble, []int{0})
		})
	})
}

func TestCollectionFind(t *testing.T) {
	Convey("TestCollectionFind", t, func() {
		c := New(&member{id: 1}, &member{id: 2}, &member{id: 3})

		m, ok := c.Find(2)
		So(ok, ShouldBeTrue)
		So(m.id, ShouldEqual, 2)

		m, ok = c.Find("3")
		So(ok, ShouldBeTrue)
		So(m.id, ShouldEqual, 3)

		_, ok = c.Find(4)
		So(ok, ShouldBeFalse)

		c.Forget(1)
		_, ok = c.Find(2)
		So(ok, ShouldBeFalse)

		_, ok = New(1, 2).Find(1)
		So(ok, ShouldBeFalse)
	})
}

func TestCollectionToArray(t *testing.T) {
	Convey("TestCollectionToArray", t, func() {
		c := New(&member{id: 7})
		So(c.ToArray(), ShouldResemble, []any{map[string]any{"id": int64(7)}})

		buf, err := c.ToJSON()
		So(err, ShouldBeNil)
		So(string(buf), ShouldEqual, `[{"id":7}]`)

		buf, err = New("a", "b").ToJSON()
		So(err, ShouldBeNil)
		So(string(buf), ShouldEqual, `["a","b"]`)

		buf, err = New[int]().ToJSON()
		So(err, ShouldBeNil)
		So(string(buf), ShouldEqual, `[]`)
	})
}

func TestToID(t *testing.T) {
	Convey("TestToID", t, func() {
		for _, tc := range []struct {
			in   any
			want int64
			ok   bool
		}{
			{1, 1, true},
			{int64(9), 9, true},
			{"12", 12, true},
			{" 12abc", 12, true},
			{"abc", 0, true},
			{json.Number("5"), 5, true},
			{2.9, 2, true},
			{nil, 0, false},
			{[]int{1}, 0, false},
		} {
			got, ok := ToID(tc.in)
			So(ok, ShouldEqual, tc.ok)
			So(got, ShouldEqual, tc.want)
		}
	})
}
