package serializer

import (
	"reflect"

	"github.com/hatlonely/jsondb/ref"
	"github.com/pkg/errors"
)

// Namespace 序列化器在 ref 中注册的命名空间，类型名带上泛型参数，例如 json[[]*doc.Document]
const Namespace = "serializer"

type Serializer[F, T any] interface {
	Serialize(from F) (T, error)
	Deserialize(to T) (F, error)
}

func typeName[T any](name string) string {
	return name + "[" + reflect.TypeOf((*T)(nil)).Elem().String() + "]"
}

// NewByteSerializerWithOptions 按配置构造序列化器，type 为 json 或 msgpack，默认 json
func NewByteSerializerWithOptions[T any](options *ref.TypeOptions) (Serializer[T, []byte], error) {
	// 每次调用都会注册一遍，已注册时忽略错误
	_ = ref.Register(Namespace, typeName[T]("json"), NewJSONSerializerWithOptions[T])
	_ = ref.Register(Namespace, typeName[T]("msgpack"), NewMsgPackSerializer[T])

	typ, opts := "json", any(nil)
	if options != nil && options.Type != "" {
		typ, opts = options.Type, options.Options
	}

	s, err := ref.New(Namespace, typeName[T](typ), opts)
	if err != nil {
		return nil, errors.WithMessage(err, "create serializer failed")
	}
	serializer, ok := s.(Serializer[T, []byte])
	if !ok {
		return nil, errors.Errorf("%T is not a byte serializer", s)
	}
	return serializer, nil
}
