package cfg

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 按 validate tag 校验结构体，非结构体和 nil 直接通过
func Validate(object any) error {
	rv := reflect.ValueOf(object)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct || rv.Type() == timeType {
		return nil
	}
	if err := validate.Struct(rv.Interface()); err != nil {
		return errors.Wrap(err, "validate failed")
	}
	return nil
}
