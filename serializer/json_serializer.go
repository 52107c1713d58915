package serializer

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

type JSONSerializerOptions struct {
	// 非空时输出缩进格式
	Indent string `cfg:"indent"`
	// 数字解码为 json.Number 而不是 float64
	UseNumber bool `cfg:"useNumber"`
}

type JSONSerializer[T any] struct {
	options JSONSerializerOptions
}

func NewJSONSerializer[T any]() *JSONSerializer[T] {
	return &JSONSerializer[T]{}
}

func NewJSONSerializerWithOptions[T any](options *JSONSerializerOptions) *JSONSerializer[T] {
	s := &JSONSerializer[T]{}
	if options != nil {
		s.options = *options
	}
	return s
}

func (s *JSONSerializer[T]) Serialize(from T) ([]byte, error) {
	var buf []byte
	var err error
	if s.options.Indent != "" {
		buf, err = json.MarshalIndent(from, "", s.options.Indent)
	} else {
		buf, err = json.Marshal(from)
	}
	return buf, errors.Wrap(err, "json.Marshal failed")
}

func (s *JSONSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	dec := json.NewDecoder(bytes.NewReader(to))
	if s.options.UseNumber {
		dec.UseNumber()
	}
	if err := dec.Decode(&result); err != nil {
		return result, errors.Wrap(err, "json.Unmarshal failed")
	}
	return result, nil
}
