package ref

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type greeter struct {
	Name string
}

type greeterOptions struct {
	Name string `json:"name"`
}

func newGreeter(options *greeterOptions) (*greeter, error) {
	if options.Name == "" {
		return nil, errors.New("name cannot be empty")
	}
	return &greeter{Name: options.Name}, nil
}

func newDefaultGreeter() *greeter {
	return &greeter{Name: "default"}
}

func newValueGreeter(options greeterOptions) *greeter {
	return &greeter{Name: "value:" + options.Name}
}

// jsonConvertable 用 JSON 模拟配置数据的转换
type jsonConvertable string

func (j jsonConvertable) ConvertTo(object any) error {
	return json.Unmarshal([]byte(j), object)
}

func TestRegistry(t *testing.T) {
	Convey("测试 Registry", t, func() {
		r := NewRegistry()
		So(r.Register("test", "greeter", newGreeter), ShouldBeNil)
		So(r.Register("test", "default", newDefaultGreeter), ShouldBeNil)
		So(r.Register("test", "value", newValueGreeter), ShouldBeNil)

		Convey("使用指针选项构造", func() {
			obj, err := r.New("test", "greeter", &greeterOptions{Name: "a"})
			So(err, ShouldBeNil)
			So(obj.(*greeter).Name, ShouldEqual, "a")
		})

		Convey("值选项会被转换为指针", func() {
			obj, err := r.New("test", "greeter", greeterOptions{Name: "b"})
			So(err, ShouldBeNil)
			So(obj.(*greeter).Name, ShouldEqual, "b")

			obj, err = r.New("test", "value", &greeterOptions{Name: "c"})
			So(err, ShouldBeNil)
			So(obj.(*greeter).Name, ShouldEqual, "value:c")
		})

		Convey("Convertable 选项", func() {
			obj, err := r.New("test", "greeter", jsonConvertable(`{"name":"json"}`))
			So(err, ShouldBeNil)
			So(obj.(*greeter).Name, ShouldEqual, "json")

			_, err = r.New("test", "greeter", jsonConvertable(`not json`))
			So(err, ShouldNotBeNil)
		})

		Convey("nil 选项使用零值", func() {
			_, err := r.New("test", "greeter", nil)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "name cannot be empty")

			obj, err := r.New("test", "value", nil)
			So(err, ShouldBeNil)
			So(obj.(*greeter).Name, ShouldEqual, "value:")
		})

		Convey("无参构造函数忽略选项", func() {
			obj, err := r.New("test", "default", &greeterOptions{Name: "ignored"})
			So(err, ShouldBeNil)
			So(obj.(*greeter).Name, ShouldEqual, "default")
		})

		Convey("未注册的类型", func() {
			_, err := r.New("test", "unknown", nil)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "default, greeter, value")
		})

		Convey("选项类型不匹配", func() {
			_, err := r.New("test", "greeter", 42)
			So(err, ShouldNotBeNil)
		})

		Convey("重复注册", func() {
			So(r.Register("test", "greeter", newGreeter), ShouldBeNil)
			So(r.Register("test", "greeter", newDefaultGreeter), ShouldNotBeNil)
		})

		Convey("非法的构造函数", func() {
			So(r.Register("test", "bad1", 1), ShouldNotBeNil)
			So(r.Register("test", "bad2", func(a, b int) int { return a + b }), ShouldNotBeNil)
			So(r.Register("test", "bad3", func() {}), ShouldNotBeNil)
			So(r.Register("test", "bad4", func() (int, int) { return 1, 2 }), ShouldNotBeNil)
		})

		Convey("Types", func() {
			So(r.Types("test"), ShouldResemble, []string{"default", "greeter", "value"})
			So(r.Types("none"), ShouldBeEmpty)
		})
	})
}

func TestBuild(t *testing.T) {
	Convey("测试 Build", t, func() {
		MustRegister("ref_test", "greeter", newGreeter)

		g, err := Build[*greeter]("ref_test", &TypeOptions{Type: "greeter", Options: &greeterOptions{Name: "x"}})
		So(err, ShouldBeNil)
		So(g.Name, ShouldEqual, "x")

		_, err = Build[string]("ref_test", &TypeOptions{Type: "greeter", Options: &greeterOptions{Name: "x"}})
		So(err, ShouldNotBeNil)

		_, err = Build[*greeter]("ref_test", nil)
		So(err, ShouldNotBeNil)

		_, err = Build[*greeter]("other", &TypeOptions{Namespace: "ref_test", Type: "greeter", Options: &greeterOptions{Name: "y"}})
		So(err, ShouldBeNil)
	})
}
