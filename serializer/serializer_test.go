package serializer

import (
	"encoding/json"
	"testing"

	"github.com/hatlonely/jsondb/doc"
	"github.com/hatlonely/jsondb/ref"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSerializer(t *testing.T) {
	Convey("测试 Serializer", t, func() {
		docs, err := doc.ParseArray([]byte(`[{"id":1,"name":"a","tags":["x"]},{"id":2,"score":1.5,"extra":{"z":null,"a":true}}]`))
		So(err, ShouldBeNil)

		for _, options := range []*ref.TypeOptions{
			nil,
			{Type: "json"},
			{Type: "json", Options: &JSONSerializerOptions{Indent: "  "}},
			{Type: "msgpack"},
		} {
			s, err := NewByteSerializerWithOptions[[]*doc.Document](options)
			So(err, ShouldBeNil)

			buf, err := s.Serialize(docs)
			So(err, ShouldBeNil)

			out, err := s.Deserialize(buf)
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 2)
			So(out[1].Keys(), ShouldResemble, []string{"id", "score", "extra"})
			for i := range docs {
				So(out[i].Equal(docs[i]), ShouldBeTrue)
			}
		}

		Convey("未知类型", func() {
			_, err := NewByteSerializerWithOptions[[]*doc.Document](&ref.TypeOptions{Type: "xml"})
			So(err, ShouldNotBeNil)
		})

		Convey("解码失败", func() {
			_, err := NewJSONSerializer[map[string]any]().Deserialize([]byte("{"))
			So(err, ShouldNotBeNil)
			_, err = NewMsgPackSerializer[map[string]any]().Deserialize([]byte{0xc1})
			So(err, ShouldNotBeNil)
		})

		Convey("UseNumber", func() {
			s := NewJSONSerializerWithOptions[map[string]any](&JSONSerializerOptions{UseNumber: true})
			v, err := s.Deserialize([]byte(`{"n": 12345678901234567890}`))
			So(err, ShouldBeNil)
			So(v["n"], ShouldEqual, json.Number("12345678901234567890"))
		})
	})
}
