package cfg

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MapStorage 解码后的配置树（map/slice/标量），可以转换为任意结构体
//
// 结构体字段名优先取 cfg tag，其次 json tag，最后是字段名；
// 匹配时忽略大小写以及 '_' 和 '-'，所以 ROOT_DIR、root-dir、rootDir 是同一个键。
// 类型为 any 的结构体字段会得到 *MapStorage，ref 构造对象时再转换为具体的选项类型
type MapStorage struct {
	data any
}

func NewMapStorage(data any) *MapStorage {
	return &MapStorage{data: data}
}

func (ms *MapStorage) Data() any {
	return ms.data
}

// Sub 子配置，key 用点号分隔，数字段用于数组下标，例如 "storage.options" 或 "writers.0"
func (ms *MapStorage) Sub(key string) *MapStorage {
	if key == "" {
		return ms
	}
	current := ms.data
	for _, k := range strings.Split(key, ".") {
		current = child(current, k)
		if current == nil {
			return NewMapStorage(nil)
		}
	}
	return NewMapStorage(current)
}

func child(data any, key string) any {
	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			if normalize(fmt.Sprint(k.Interface())) == normalize(key) {
				return rv.MapIndex(k).Interface()
			}
		}
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(key)
		if err == nil && i >= 0 && i < rv.Len() {
			return rv.Index(i).Interface()
		}
	}
	return nil
}

func (ms *MapStorage) ConvertTo(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("ConvertTo requires a non-nil pointer, got %T", object)
	}
	return convertValue(ms.data, rv.Elem(), "")
}

func normalize(name string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(name))
}

func fieldName(field reflect.StructField) string {
	for _, tag := range []string{"cfg", "json"} {
		if name, _, _ := strings.Cut(field.Tag.Get(tag), ","); name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

func convertValue(src any, dst reflect.Value, path string) error {
	if ms, ok := src.(*MapStorage); ok {
		src = ms.data
	}
	sv := reflect.ValueOf(src)
	if !sv.IsValid() {
		return nil
	}
	for sv.Kind() == reflect.Ptr {
		if sv.IsNil() {
			return nil
		}
		sv = sv.Elem()
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(sv.Interface(), dst.Elem(), path)
	}

	switch dst.Type() {
	case durationType:
		return convertDuration(sv, dst, path)
	case timeType:
		return convertTime(sv, dst, path)
	}

	switch dst.Kind() {
	case reflect.Interface:
		if dst.Type().NumMethod() == 0 {
			dst.Set(sv)
			return nil
		}
	case reflect.Struct:
		return convertStruct(sv, dst, path)
	case reflect.Map:
		return convertMap(sv, dst, path)
	case reflect.Slice:
		return convertSlice(sv, dst, path)
	case reflect.String:
		switch sv.Kind() {
		case reflect.Map, reflect.Slice, reflect.Array:
		default:
			dst.SetString(fmt.Sprint(sv.Interface()))
			return nil
		}
	case reflect.Bool:
		if sv.Kind() == reflect.String {
			b, err := strconv.ParseBool(sv.String())
			if err != nil {
				return errors.Wrapf(err, "%s: parse bool", path)
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if sv.Kind() == reflect.String {
			i, err := strconv.ParseInt(sv.String(), 0, dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "%s: parse int", path)
			}
			dst.SetInt(i)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if sv.Kind() == reflect.String {
			u, err := strconv.ParseUint(sv.String(), 0, dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "%s: parse uint", path)
			}
			dst.SetUint(u)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if sv.Kind() == reflect.String {
			f, err := strconv.ParseFloat(sv.String(), dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "%s: parse float", path)
			}
			dst.SetFloat(f)
			return nil
		}
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	if isScalar(sv.Kind()) && isScalar(dst.Kind()) && sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("%s: cannot convert %v to %v", path, sv.Type(), dst.Type())
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Bool:
		return true
	}
	return false
}

func join(path string, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func convertStruct(sv reflect.Value, dst reflect.Value, path string) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("%s: cannot convert %v to struct %v", path, sv.Type(), dst.Type())
	}

	keys := map[string]reflect.Value{}
	for _, k := range sv.MapKeys() {
		keys[normalize(fmt.Sprint(k.Interface()))] = sv.MapIndex(k)
	}

	rt := dst.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := dst.Field(i)
		if !fv.CanSet() {
			continue
		}

		name := fieldName(field)
		src, ok := keys[normalize(name)]
		if !ok {
			// 匿名嵌入的结构体与外层共享键空间
			if field.Anonymous && fv.Kind() == reflect.Struct {
				if err := convertStruct(sv, fv, path); err != nil {
					return err
				}
			}
			continue
		}

		raw := src.Interface()
		if fv.Kind() == reflect.Interface && fv.Type().NumMethod() == 0 {
			switch reflect.ValueOf(raw).Kind() {
			case reflect.Map, reflect.Slice:
				fv.Set(reflect.ValueOf(NewMapStorage(raw)))
				continue
			}
		}
		if err := convertValue(raw, fv, join(path, name)); err != nil {
			return err
		}
	}
	return nil
}

func convertMap(sv reflect.Value, dst reflect.Value, path string) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("%s: cannot convert %v to map", path, sv.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}
	for _, k := range sv.MapKeys() {
		key := reflect.New(dst.Type().Key()).Elem()
		if err := convertValue(fmt.Sprint(k.Interface()), key, path); err != nil {
			return err
		}
		val := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(sv.MapIndex(k).Interface(), val, join(path, key.String())); err != nil {
			return err
		}
		dst.SetMapIndex(key, val)
	}
	return nil
}

func convertSlice(sv reflect.Value, dst reflect.Value, path string) error {
	// 逗号分隔的字符串也可以转换为切片，.env 和 ini 里常见
	if sv.Kind() == reflect.String && dst.Type().Elem().Kind() != reflect.Uint8 {
		parts := strings.Split(sv.String(), ",")
		items := make([]any, len(parts))
		for i, p := range parts {
			items[i] = strings.TrimSpace(p)
		}
		sv = reflect.ValueOf(items)
	}
	if sv.Kind() != reflect.Slice && sv.Kind() != reflect.Array {
		return errors.Errorf("%s: cannot convert %v to slice", path, sv.Type())
	}
	result := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
	for i := 0; i < sv.Len(); i++ {
		if err := convertValue(sv.Index(i).Interface(), result.Index(i), join(path, strconv.Itoa(i))); err != nil {
			return err
		}
	}
	dst.Set(result)
	return nil
}

// convertDuration 字符串按 time.ParseDuration 解析，整数视为纳秒，浮点数视为秒
func convertDuration(sv reflect.Value, dst reflect.Value, path string) error {
	switch sv.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(sv.String())
		if err != nil {
			return errors.Wrapf(err, "%s: parse duration", path)
		}
		dst.SetInt(int64(d))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(sv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetInt(int64(sv.Uint()))
	case reflect.Float32, reflect.Float64:
		dst.SetInt(int64(sv.Float() * float64(time.Second)))
	default:
		return errors.Errorf("%s: cannot convert %v to time.Duration", path, sv.Type())
	}
	return nil
}

var timeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// convertTime 字符串支持常见格式，数字视为 unix 秒
func convertTime(sv reflect.Value, dst reflect.Value, path string) error {
	if sv.Type() == timeType {
		dst.Set(sv)
		return nil
	}
	switch sv.Kind() {
	case reflect.String:
		for _, layout := range timeFormats {
			if t, err := time.Parse(layout, sv.String()); err == nil {
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return errors.Errorf("%s: cannot parse time %q", path, sv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.Set(reflect.ValueOf(time.Unix(sv.Int(), 0)))
	case reflect.Float32, reflect.Float64:
		sec := sv.Float()
		dst.Set(reflect.ValueOf(time.Unix(int64(sec), int64((sec-float64(int64(sec)))*1e9))))
	default:
		return errors.Errorf("%s: cannot convert %v to time.Time", path, sv.Type())
	}
	return nil
}
