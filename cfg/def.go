package cfg

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SetDefaults 为零值字段填充 def tag 中的默认值，递归处理嵌套结构体和结构体切片
// 已经分配的指针字段会被递归处理，nil 指针只有在自身带 def tag 时才会被分配
func SetDefaults(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("SetDefaults requires a non-nil pointer, got %T", object)
	}
	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return setDefaults(rv.Elem())
	case reflect.Slice:
		for i := 0; i < rv.Len(); i++ {
			if err := setDefaults(rv.Index(i)); err != nil {
				return errors.WithMessagef(err, "index %d", i)
			}
		}
		return nil
	case reflect.Struct:
	default:
		return nil
	}
	if rv.Type() == timeType {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}

		def, hasDef := field.Tag.Lookup("def")
		if hasDef && fv.IsZero() {
			target := fv
			if fv.Kind() == reflect.Ptr {
				fv.Set(reflect.New(fv.Type().Elem()))
				target = fv.Elem()
			}
			// 结构体指针的 def tag 只表示需要分配，字段的默认值在下面递归填充
			if target.Kind() != reflect.Struct || target.Type() == timeType {
				if err := setDefaultValue(target, def); err != nil {
					return errors.WithMessagef(err, "field %s", field.Name)
				}
			}
		}

		if err := setDefaults(fv); err != nil {
			return errors.WithMessagef(err, "field %s", field.Name)
		}
	}
	return nil
}

func setDefaultValue(rv reflect.Value, def string) error {
	if rv.Type() == durationType {
		d, err := time.ParseDuration(def)
		if err != nil {
			return errors.Wrapf(err, "invalid duration %q", def)
		}
		rv.SetInt(int64(d))
		return nil
	}
	if rv.Type() == timeType {
		return convertTime(reflect.ValueOf(def), rv, "")
	}

	switch rv.Kind() {
	case reflect.String:
		rv.SetString(def)
	case reflect.Bool:
		b, err := strconv.ParseBool(def)
		if err != nil {
			return errors.Wrapf(err, "invalid bool %q", def)
		}
		rv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(def, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid int %q", def)
		}
		rv.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(def, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid uint %q", def)
		}
		rv.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(def, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid float %q", def)
		}
		rv.SetFloat(f)
	case reflect.Slice:
		parts := strings.Split(def, ",")
		slice := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setDefaultValue(slice.Index(i), strings.TrimSpace(part)); err != nil {
				return errors.WithMessagef(err, "index %d", i)
			}
		}
		rv.Set(slice)
	default:
		return errors.Errorf("unsupported default for type %v", rv.Type())
	}
	return nil
}
