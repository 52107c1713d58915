package jdb

import (
	"context"
	"testing"
	"time"

	"github.com/hatlonely/jsondb/collection"
	"github.com/hatlonely/jsondb/doc"
	"github.com/hatlonely/jsondb/query"
	"github.com/hatlonely/jsondb/ref"
	"github.com/hatlonely/jsondb/serializer"
	"github.com/hatlonely/jsondb/storage"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestTable(ctx context.Context, s storage.Storage, name string) (*Database, *Table) {
	db, err := newTestJDB(s).CreateDatabase(ctx, "shop")
	So(err, ShouldBeNil)
	So(db.CreateTable(ctx, name), ShouldBeNil)
	t, err := db.Table(ctx, name)
	So(err, ShouldBeNil)
	return db, t
}

func metaInt(m *Meta, key string) int64 {
	i, err := m.Int(key)
	So(err, ShouldBeNil)
	return i
}

func TestTableInsertDelete(t *testing.T) {
	Convey("TestTableInsertDelete", t, func() {
		ctx := context.Background()
		_, users := newTestTable(ctx, storage.NewMapStorage(), "users")

		So(users.IsEmpty(), ShouldBeTrue)
		So(users.IsDirty(), ShouldBeFalse)

		rows, err := users.InsertMap(map[string]any{"name": "a"}, map[string]any{"name": "b"})
		So(err, ShouldBeNil)
		So(rows, ShouldHaveLength, 2)
		So(users.IsDirty(), ShouldBeTrue)
		So(metaInt(users.Meta(), MetaCurrentID), ShouldEqual, 2)
		So(metaInt(users.Meta(), MetaRows), ShouldEqual, 2)

		id, ok := rows[0].ID()
		So(ok, ShouldBeTrue)
		So(id, ShouldEqual, int64(1))
		id, _ = rows[1].ID()
		So(id, ShouldEqual, int64(2))
		So(rows[0].Document().Keys(), ShouldResemble, []string{"name", "id"})
		So(rows[0].Index(), ShouldEqual, 0)
		So(rows[1].Index(), ShouldEqual, 1)

		Convey("删除第一行", func() {
			rows[0].Delete()
			So(metaInt(users.Meta(), MetaRows), ShouldEqual, 1)
			So(users.Len(), ShouldEqual, 1)

			_, ok := users.Find(1)
			So(ok, ShouldBeFalse)
			row, ok := users.Find("2")
			So(ok, ShouldBeTrue)
			So(row, ShouldEqual, rows[1])
			first, _ := users.First()
			So(first, ShouldEqual, rows[1])
		})

		Convey("删除后 id 不会被重新使用", func() {
			rows[1].Delete()
			more, err := users.InsertMap(map[string]any{"name": "c"})
			So(err, ShouldBeNil)
			id, _ := more[0].ID()
			So(id, ShouldEqual, int64(3))
			So(metaInt(users.Meta(), MetaRows), ShouldEqual, 2)
			So(more[0].Index(), ShouldEqual, 2)
		})

		Convey("已有的 id 字段会被覆盖", func() {
			more, err := users.InsertMap(map[string]any{"id": 100, "name": "c"})
			So(err, ShouldBeNil)
			id, _ := more[0].ID()
			So(id, ShouldEqual, int64(3))
			So(more[0].Document().Keys(), ShouldResemble, []string{"id", "name"})
		})

		Convey("插入空文档", func() {
			more, err := users.Insert(nil)
			So(err, ShouldBeNil)
			So(more[0].Document().Keys(), ShouldResemble, []string{"id"})
		})

		Convey("插入已有行的文档得到独立的副本", func() {
			copied, err := users.Insert(rows[0].Document())
			So(err, ShouldBeNil)
			id, _ := copied[0].ID()
			So(id, ShouldEqual, int64(3))
			id, _ = rows[0].ID()
			So(id, ShouldEqual, int64(1))
			So(copied[0].Document(), ShouldNotPointTo, rows[0].Document())

			row, ok := users.Find(1)
			So(ok, ShouldBeTrue)
			So(row, ShouldEqual, rows[0])
		})

		Convey("同一个文档插入两次", func() {
			d := doc.MustFromMap(map[string]any{"name": "c"})
			more, err := users.Insert(d, d)
			So(err, ShouldBeNil)
			id1, _ := more[0].ID()
			id2, _ := more[1].ID()
			So(id1, ShouldEqual, int64(3))
			So(id2, ShouldEqual, int64(4))
			So(d.Has(IDField), ShouldBeFalse)
		})

		Convey("current_id 落后于已有的 id", func() {
			users.Meta().Set(MetaCurrentID, doc.Int(0))
			more, err := users.InsertMap(map[string]any{"name": "c"})
			So(err, ShouldBeNil)
			id, _ := more[0].ID()
			So(id, ShouldEqual, int64(3))
			So(metaInt(users.Meta(), MetaCurrentID), ShouldEqual, 3)
		})

		Convey("current_id 不是整数时插入失败", func() {
			users.Meta().Set(MetaCurrentID, doc.String("x"))
			_, err := users.InsertMap(map[string]any{"name": "c"})
			So(errors.Is(err, ErrLookup), ShouldBeTrue)
		})
	})
}

func TestTableSave(t *testing.T) {
	Convey("TestTableSave", t, func() {
		ctx := context.Background()
		s := newFaultyStorage()
		db, users := newTestTable(ctx, s, "users")

		Convey("没有修改时跳过", func() {
			res, err := users.Save(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldEqual, SaveSkipped)
			So(res.OK(), ShouldBeTrue)
		})

		Convey("保存后重新加载", func() {
			_, err := users.InsertMap(
				map[string]any{"name": "a", "age": 18},
				map[string]any{"name": "b", "tags": []any{"x", "y"}},
			)
			So(err, ShouldBeNil)
			res, err := users.Save(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldEqual, SaveDone)
			So(users.IsDirty(), ShouldBeFalse)

			buf, err := s.Get(ctx, "shop/users.json")
			So(err, ShouldBeNil)
			So(string(buf), ShouldEqual, `[{"age":18,"name":"a","id":1},{"name":"b","tags":["x","y"],"id":2}]`)
			buf, err = s.Get(ctx, "shop/users.meta.json")
			So(err, ShouldBeNil)
			So(string(buf), ShouldEqual, `{"rows":2,"current_id":2}`)

			reloaded, err := db.Table(ctx, "users")
			So(err, ShouldBeNil)
			So(reloaded.ToArray(), ShouldResemble, users.ToArray())
			So(metaInt(reloaded.Meta(), MetaCurrentID), ShouldEqual, 2)

			res, err = users.Save(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldEqual, SaveSkipped)
		})

		Convey("删除后保存", func() {
			rows, _ := users.InsertMap(map[string]any{"name": "a"}, map[string]any{"name": "b"})
			_, err := users.Save(ctx)
			So(err, ShouldBeNil)

			rows[0].Delete()
			res, err := users.Save(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldEqual, SaveDone)

			buf, _ := s.Get(ctx, "shop/users.json")
			So(string(buf), ShouldEqual, `[{"name":"b","id":2}]`)
			buf, _ = s.Get(ctx, "shop/users.meta.json")
			So(string(buf), ShouldEqual, `{"rows":1,"current_id":2}`)
		})

		Convey("只修改元数据", func() {
			users.Meta().Set("owner", doc.String("alice"))
			So(users.IsDirty(), ShouldBeTrue)
			res, err := users.Save(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldEqual, SaveDone)
			buf, _ := s.Get(ctx, "shop/users.meta.json")
			So(string(buf), ShouldEqual, `{"rows":0,"current_id":0,"owner":"alice"}`)
		})

		Convey("写数据文件失败", func() {
			_, _ = users.InsertMap(map[string]any{"name": "a"})
			s.failPut["shop/users.json"] = true

			res, err := users.Save(ctx)
			So(res, ShouldEqual, SaveFailed)
			So(res.OK(), ShouldBeFalse)
			So(errors.Is(err, ErrFileSystem), ShouldBeTrue)
			So(errors.Is(err, errInjected), ShouldBeTrue)
			So(users.IsDirty(), ShouldBeTrue)

			buf, _ := s.Get(ctx, "shop/users.meta.json")
			So(string(buf), ShouldEqual, `{"rows":0,"current_id":0}`)

			delete(s.failPut, "shop/users.json")
			res, err = users.Save(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldEqual, SaveDone)
		})

		Convey("写元数据文件失败", func() {
			_, _ = users.InsertMap(map[string]any{"name": "a"})
			s.failPut["shop/users.meta.json"] = true

			res, err := users.Save(ctx)
			So(res, ShouldEqual, SaveFailed)
			So(errors.Is(err, ErrFileSystem), ShouldBeTrue)
			So(users.IsDirty(), ShouldBeTrue)
			So(users.Meta().IsDirty(), ShouldBeTrue)

			delete(s.failPut, "shop/users.meta.json")
			res, err = users.Save(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldEqual, SaveDone)
			buf, _ := s.Get(ctx, "shop/users.meta.json")
			So(string(buf), ShouldEqual, `{"rows":1,"current_id":1}`)
		})

		Convey("Reload 丢弃未保存的修改", func() {
			_, _ = users.InsertMap(map[string]any{"name": "a"})
			So(users.Reload(ctx), ShouldBeNil)
			So(users.Len(), ShouldEqual, 0)
			So(users.IsDirty(), ShouldBeFalse)
		})

		Convey("数据文件格式错误", func() {
			So(s.Put(ctx, "shop/users.json", []byte(`{"name":"a"}`)), ShouldBeNil)
			_, err := db.Table(ctx, "users")
			So(errors.Is(err, ErrFileSystem), ShouldBeTrue)

			So(s.Put(ctx, "shop/users.json", []byte(`[1, 2]`)), ShouldBeNil)
			So(errors.Is(users.Reload(ctx), ErrFileSystem), ShouldBeTrue)
		})

		Convey("元数据丢失 current_id 时从数据中最大的 id 继续", func() {
			So(s.Put(ctx, "shop/users.json", []byte(`[{"name":"a","id":7},{"name":"b","id":3}]`)), ShouldBeNil)
			So(s.Put(ctx, "shop/users.meta.json", []byte(`{"rows":2}`)), ShouldBeNil)
			So(users.Reload(ctx), ShouldBeNil)

			more, err := users.InsertMap(map[string]any{"name": "c"})
			So(err, ShouldBeNil)
			id, _ := more[0].ID()
			So(id, ShouldEqual, int64(8))
		})

		Convey("元数据文件格式错误", func() {
			So(s.Put(ctx, "shop/users.meta.json", []byte(`{"rows":`)), ShouldBeNil)
			_, err := db.Table(ctx, "users")
			So(errors.Is(err, ErrFileSystem), ShouldBeTrue)
		})
	})
}

func TestTableRename(t *testing.T) {
	Convey("TestTableRename", t, func() {
		ctx := context.Background()
		s := newFaultyStorage()
		db, users := newTestTable(ctx, s, "users")
		So(db.CreateTable(ctx, "orders"), ShouldBeNil)

		Convey("新名字已被占用", func() {
			err := users.Rename(ctx, "orders")
			So(errors.Is(err, ErrAlreadyExists), ShouldBeTrue)
			So(users.Name(), ShouldEqual, "users")
		})

		Convey("重命名数据和元数据文件", func() {
			_, _ = users.InsertMap(map[string]any{"name": "a"})
			So(users.Rename(ctx, "members"), ShouldBeNil)
			So(users.Name(), ShouldEqual, "members")
			So(users.DataKey(), ShouldEqual, "shop/members.json")
			So(users.Meta().Key(), ShouldEqual, "shop/members.meta.json")

			_, err := users.Save(ctx)
			So(err, ShouldBeNil)
			names, _ := db.Tables(ctx)
			So(names, ShouldResemble, []string{"members", "orders"})

			members, err := db.Table(ctx, "members")
			So(err, ShouldBeNil)
			So(members.Len(), ShouldEqual, 1)
		})

		Convey("数据文件重命名失败", func() {
			s.failRename["shop/users.json"] = true
			err := users.Rename(ctx, "members")
			So(errors.Is(err, ErrFileSystem), ShouldBeTrue)
			So(users.Name(), ShouldEqual, "users")
		})

		Convey("元数据文件重命名失败不影响结果", func() {
			s.failRename["shop/users.meta.json"] = true
			So(users.Rename(ctx, "members"), ShouldBeNil)
			So(users.Name(), ShouldEqual, "members")

			ok, _ := s.Exists(ctx, "shop/members.json")
			So(ok, ShouldBeTrue)
			ok, _ = s.Exists(ctx, "shop/users.meta.json")
			So(ok, ShouldBeTrue)
		})

		Convey("元数据文件重命名失败后 id 仍然递增", func() {
			rows, err := users.InsertMap(map[string]any{"name": "a"}, map[string]any{"name": "b"})
			So(err, ShouldBeNil)
			_, err = users.Save(ctx)
			So(err, ShouldBeNil)

			s.failRename["shop/users.meta.json"] = true
			So(users.Rename(ctx, "members"), ShouldBeNil)

			rows[0].Delete()
			res, err := users.Save(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldEqual, SaveDone)
			buf, _ := s.Get(ctx, "shop/members.meta.json")
			So(string(buf), ShouldEqual, `{"rows":1,"current_id":2}`)

			members, err := db.Table(ctx, "members")
			So(err, ShouldBeNil)
			more, err := members.InsertMap(map[string]any{"name": "c"})
			So(err, ShouldBeNil)
			id, _ := more[0].ID()
			So(id, ShouldEqual, int64(3))
		})
	})
}

func TestTableQuery(t *testing.T) {
	Convey("TestTableQuery", t, func() {
		ctx := context.Background()
		_, users := newTestTable(ctx, storage.NewMapStorage(), "users")
		rows, err := users.InsertMap(
			map[string]any{"name": "alice", "age": 18, "status": "active"},
			map[string]any{"name": "bob", "age": 30, "status": "inactive"},
			map[string]any{"name": "carol", "age": 25, "status": "active"},
		)
		So(err, ShouldBeNil)

		Convey("Where", func() {
			q, err := query.Parse([]byte(`{"bool": {"must": [{"term": {"status": "active"}}, {"range": {"age": {"gte": 20}}}]}}`))
			So(err, ShouldBeNil)
			result := users.Where(q)
			So(result.Len(), ShouldEqual, 1)
			row, _ := result.First()
			So(row, ShouldEqual, rows[2])

			So(users.Where(&query.PrefixQuery{Field: "name", Value: "b"}).Items(), ShouldResemble, []*Row{rows[1]})
		})

		Convey("派生集合不参与级联删除", func() {
			active := users.Filter(func(row *Row, _ int, _ *collection.Collection[*Row]) bool {
				v, _ := row.Get("status")
				s, _ := v.AsString()
				return s == "active"
			})
			So(active.Len(), ShouldEqual, 2)
			rows[0].Delete()
			So(users.Len(), ShouldEqual, 2)
			So(active.Len(), ShouldEqual, 2)
		})

		Convey("分页和切片", func() {
			page := users.Paginate(2, 2)
			So(page.Total, ShouldEqual, 3)
			So(page.LastPage, ShouldEqual, 2)
			So(page.Data.Items(), ShouldResemble, []*Row{rows[2]})

			So(users.Take(2).Items(), ShouldResemble, []*Row{rows[0], rows[1]})
			So(users.Skip(2).Items(), ShouldResemble, []*Row{rows[2]})
			So(users.Slice(-2, 1).Items(), ShouldResemble, []*Row{rows[1]})
		})

		Convey("Each 和 Map", func() {
			var names []string
			users.Each(func(row *Row, _ int, _ *collection.Collection[*Row]) {
				v, _ := row.Get("name")
				s, _ := v.AsString()
				names = append(names, s)
			})
			So(names, ShouldResemble, []string{"alice", "bob", "carol"})

			mapped := users.Map(func(row *Row, _ int, _ *collection.Collection[*Row]) *Row {
				return row.Set("checked", doc.Bool(true))
			})
			So(mapped.Len(), ShouldEqual, 3)
			So(rows[1].Has("checked"), ShouldBeTrue)
		})

		Convey("Push 已有的行", func() {
			res, err := users.Save(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldEqual, SaveDone)

			users.Push(rows[0])
			So(users.IsDirty(), ShouldBeTrue)
			So(users.Len(), ShouldEqual, 4)
			So(metaInt(users.Meta(), MetaRows), ShouldEqual, 3)
		})

		Convey("ToJSON", func() {
			rows[1].Delete()
			buf, err := users.ToJSON()
			So(err, ShouldBeNil)
			So(string(buf), ShouldEqual, `[{"age":18,"name":"alice","status":"active","id":1},{"age":25,"name":"carol","status":"active","id":3}]`)
		})
	})
}

func TestTableExportImport(t *testing.T) {
	Convey("TestTableExportImport", t, func() {
		ctx := context.Background()
		s := storage.NewMapStorage()
		db, users := newTestTable(ctx, s, "users")
		So(db.CreateTable(ctx, "archive"), ShouldBeNil)
		archive, err := db.Table(ctx, "archive")
		So(err, ShouldBeNil)

		_, err = users.InsertMap(map[string]any{"name": "a"}, map[string]any{"name": "b"})
		So(err, ShouldBeNil)
		users.Rows().Items()[0].Delete()

		for _, typ := range []string{"json", "msgpack"} {
			Convey(typ, func() {
				codec, err := serializer.NewByteSerializerWithOptions[[]*doc.Document](&ref.TypeOptions{Type: typ})
				So(err, ShouldBeNil)

				buf, err := users.Export(codec)
				So(err, ShouldBeNil)

				imported, err := archive.Import(codec, buf)
				So(err, ShouldBeNil)
				So(imported, ShouldHaveLength, 1)
				v, _ := imported[0].Get("name")
				So(v.Equal(doc.String("b")), ShouldBeTrue)
				id, _ := imported[0].ID()
				So(id, ShouldEqual, int64(1))

				_, err = archive.Import(codec, []byte("not a payload"))
				So(err, ShouldNotBeNil)
			})
		}
	})
}

func TestTableWatch(t *testing.T) {
	Convey("TestTableWatch", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		Convey("文件存储", func() {
			s, err := storage.NewFileStorageWithOptions(&storage.FileStorageOptions{Root: t.TempDir()})
			So(err, ShouldBeNil)
			_, users := newTestTable(ctx, s, "users")

			changed := make(chan string, 16)
			So(users.Watch(ctx, func(key string) { changed <- key }), ShouldBeNil)

			_, _ = users.InsertMap(map[string]any{"name": "a"})
			_, err = users.Save(ctx)
			So(err, ShouldBeNil)

			select {
			case key := <-changed:
				So(key, ShouldBeIn, []string{"shop/users.json", "shop/users.meta.json"})
			case <-time.After(5 * time.Second):
				So("timeout", ShouldBeEmpty)
			}
		})

		Convey("不支持监听的存储", func() {
			_, users := newTestTable(ctx, storage.NewMapStorage(), "users")
			err := users.Watch(ctx, func(string) {})
			So(errors.Is(err, storage.ErrNotSupported), ShouldBeTrue)
		})

		Convey("大小和状态", func() {
			_, users := newTestTable(ctx, storage.NewMapStorage(), "users")
			size, err := users.Size(ctx)
			So(err, ShouldBeNil)
			So(size, ShouldEqual, int64(2))
			info, err := users.Stat(ctx)
			So(err, ShouldBeNil)
			So(info.IsDir, ShouldBeFalse)
		})
	})
}
