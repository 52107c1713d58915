package jdb

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hatlonely/jsondb/collection"
	"github.com/hatlonely/jsondb/doc"
	"github.com/hatlonely/jsondb/storage"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRowFields(t *testing.T) {
	Convey("TestRowFields", t, func() {
		ctx := context.Background()
		_, users := newTestTable(ctx, storage.NewMapStorage(), "users")
		rows, err := users.InsertMap(map[string]any{"name": "a", "age": 18})
		So(err, ShouldBeNil)
		row := rows[0]
		_, err = users.Save(ctx)
		So(err, ShouldBeNil)
		So(users.IsDirty(), ShouldBeFalse)

		Convey("Set", func() {
			row.Set("age", doc.Int(19))
			So(users.IsDirty(), ShouldBeTrue)
			v, ok := row.Get("age")
			So(ok, ShouldBeTrue)
			So(v.Equal(doc.Int(19)), ShouldBeTrue)
		})

		Convey("非法数字文本不会让保存失败", func() {
			row.Set("score", doc.Number("abc"))
			res, err := users.Save(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldEqual, SaveDone)
			v, _ := row.Get("score")
			So(v.IsNull(), ShouldBeTrue)
			So(row.SetAny("score", json.Number("1x")), ShouldNotBeNil)
		})

		Convey("SetAny", func() {
			So(row.SetAny("tags", []string{"x"}), ShouldBeNil)
			So(users.IsDirty(), ShouldBeTrue)
			So(row.ToArray(), ShouldResemble, map[string]any{"age": int64(18), "name": "a", "id": int64(1), "tags": []any{"x"}})
		})

		Convey("Unset 和 Remove", func() {
			row.Unset("age")
			So(row.Has("age"), ShouldBeFalse)
			So(users.IsDirty(), ShouldBeTrue)
			So(row.Remove("name").Has("name"), ShouldBeFalse)
		})

		Convey("Rename", func() {
			row.Rename("name", "nick")
			So(users.IsDirty(), ShouldBeTrue)
			So(row.Has("name"), ShouldBeFalse)
			v, _ := row.Get("nick")
			So(v.Equal(doc.String("a")), ShouldBeTrue)

			buf, err := row.ToJSON()
			So(err, ShouldBeNil)
			So(string(buf), ShouldEqual, `{"age":18,"id":1,"nick":"a"}`)
		})

		Convey("不存在的字段改名什么也不做", func() {
			row.Rename("none", "other")
			So(users.IsDirty(), ShouldBeFalse)
		})

		Convey("直接修改文档不会标记表", func() {
			row.Document().Set("age", doc.Int(20))
			So(users.IsDirty(), ShouldBeFalse)
		})

		Convey("归属", func() {
			So(row.Table(), ShouldEqual, users)
			So(row.Collection(), ShouldEqual, users.Rows())
			So(row.ToObject(), ShouldEqual, row.Document())
		})
	})
}

func TestRowDelete(t *testing.T) {
	Convey("TestRowDelete", t, func() {
		ctx := context.Background()
		_, users := newTestTable(ctx, storage.NewMapStorage(), "users")
		rows, err := users.InsertMap(map[string]any{"name": "a"}, map[string]any{"name": "b"})
		So(err, ShouldBeNil)

		favorites := collection.New[*Row]()
		favorites.Push(rows[1], rows[0])
		So(rows[0].Index(), ShouldEqual, 0)
		So(favorites.Len(), ShouldEqual, 2)

		Convey("从所有收录它的集合中移除", func() {
			rows[0].Delete()
			So(rows[0].Deleted(), ShouldBeTrue)
			So(users.Len(), ShouldEqual, 1)
			So(favorites.Len(), ShouldEqual, 1)
			So(favorites.Has(1), ShouldBeFalse)
			So(favorites.Has(0), ShouldBeTrue)

			favorites.Forget(1)
			So(favorites.Len(), ShouldEqual, 1)
			So(users.Len(), ShouldEqual, 1)
		})

		Convey("重复删除没有效果", func() {
			rows[0].Delete().Delete()
			So(metaInt(users.Meta(), MetaRows), ShouldEqual, 1)
			So(users.Len(), ShouldEqual, 1)
		})

		Convey("同一个位置只登记一次", func() {
			rows[1].CollectedBy(favorites, 0)
			rows[1].CollectedBy(favorites, 0)
			So(rows[1].memberships, ShouldHaveLength, 2)
		})

		Convey("不属于任何表的行", func() {
			detached := newRow(nil, nil, nil)
			So(detached.Index(), ShouldEqual, -1)
			others := collection.New(detached)
			So(detached.Index(), ShouldEqual, -1)
			detached.Set("name", doc.String("x")).Delete()
			So(others.Len(), ShouldEqual, 0)
			_, ok := detached.ID()
			So(ok, ShouldBeFalse)
		})
	})
}
