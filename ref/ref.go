// Package ref 按 namespace/type 注册构造函数，通过配置构造对象
//
// 存储后端和日志输出都通过这里构造，配置文件只需要写出类型名和选项：
//
//	storage:
//	  type: bolt
//	  options:
//	    path: data/app.db
package ref

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Convertable 可以把自身转换为任意结构体的配置数据，例如 cfg.MapStorage
type Convertable interface {
	ConvertTo(object any) error
}

// TypeOptions 对象的类型及其构造选项
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

type constructor struct {
	fn           reflect.Value
	optionsType  reflect.Type
	returnsError bool
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// newConstructor 支持以下形式的构造函数
//
//	func() T
//	func() (T, error)
//	func(options O) T
//	func(options O) (T, error)
func newConstructor(fn any) (*constructor, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, errors.Errorf("constructor must be a function, got %T", fn)
	}

	t := v.Type()
	if t.NumIn() > 1 {
		return nil, errors.Errorf("constructor must have 0 or 1 input parameters, got %d", t.NumIn())
	}
	if t.NumOut() != 1 && t.NumOut() != 2 {
		return nil, errors.Errorf("constructor must have 1 or 2 return values, got %d", t.NumOut())
	}
	if t.NumOut() == 2 && !t.Out(1).Implements(errorType) {
		return nil, errors.New("second return value of constructor must be error")
	}

	c := &constructor{fn: v, returnsError: t.NumOut() == 2}
	if t.NumIn() == 1 {
		c.optionsType = t.In(0)
	}
	return c, nil
}

// options 将传入的选项转换为构造函数的参数类型，nil 使用零值
func (c *constructor) options(options any) (reflect.Value, error) {
	typ := c.optionsType
	elem := typ
	if typ.Kind() == reflect.Ptr {
		elem = typ.Elem()
	}

	if options == nil {
		if typ.Kind() == reflect.Ptr {
			return reflect.New(elem), nil
		}
		return reflect.Zero(typ), nil
	}

	if convertable, ok := options.(Convertable); ok {
		target := reflect.New(elem)
		if err := convertable.ConvertTo(target.Interface()); err != nil {
			return reflect.Value{}, errors.WithMessagef(err, "convert options to %v", typ)
		}
		if typ.Kind() == reflect.Ptr {
			return target, nil
		}
		return target.Elem(), nil
	}

	v := reflect.ValueOf(options)
	switch {
	case v.Type().AssignableTo(typ):
		return v, nil
	case typ.Kind() == reflect.Ptr && v.Type().AssignableTo(elem):
		ptr := reflect.New(elem)
		ptr.Elem().Set(v)
		return ptr, nil
	case v.Kind() == reflect.Ptr && v.Type().Elem().AssignableTo(typ):
		if v.IsNil() {
			return reflect.Zero(typ), nil
		}
		return v.Elem(), nil
	}
	return reflect.Value{}, errors.Errorf("options type %T is not assignable to %v", options, typ)
}

func (c *constructor) call(options any) (any, error) {
	var args []reflect.Value
	if c.optionsType != nil {
		arg, err := c.options(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	results := c.fn.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

// Registry 构造函数注册表
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]*constructor
	funcs        map[string]uintptr
}

func NewRegistry() *Registry {
	return &Registry{
		constructors: map[string]*constructor{},
		funcs:        map[string]uintptr{},
	}
}

func key(namespace string, typ string) string {
	return namespace + ":" + typ
}

// Register 注册构造函数，同一个函数重复注册会被忽略，不同函数注册同一个名字返回错误
func (r *Registry) Register(namespace string, typ string, fn any) error {
	c, err := newConstructor(fn)
	if err != nil {
		return errors.WithMessagef(err, "register %s:%s", namespace, typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(namespace, typ)
	ptr := reflect.ValueOf(fn).Pointer()
	if existing, ok := r.funcs[k]; ok {
		if existing == ptr {
			return nil
		}
		return errors.Errorf("constructor for %s already registered with a different function", k)
	}

	r.constructors[k] = c
	r.funcs[k] = ptr
	return nil
}

// New 使用注册的构造函数创建对象
func (r *Registry) New(namespace string, typ string, options any) (any, error) {
	r.mu.RLock()
	c, ok := r.constructors[key(namespace, typ)]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Errorf("unknown type %q in namespace %q, available: [%s]", typ, namespace, strings.Join(r.Types(namespace), ", "))
	}
	obj, err := c.call(options)
	if err != nil {
		return nil, errors.WithMessagef(err, "new %s:%s", namespace, typ)
	}
	return obj, nil
}

// Types 命名空间下已注册的类型，按名字排序
func (r *Registry) Types(namespace string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var types []string
	prefix := namespace + ":"
	for k := range r.constructors {
		if typ, ok := strings.CutPrefix(k, prefix); ok {
			types = append(types, typ)
		}
	}
	sort.Strings(types)
	return types
}

var defaultRegistry = NewRegistry()

func Register(namespace string, typ string, fn any) error {
	return defaultRegistry.Register(namespace, typ, fn)
}

func MustRegister(namespace string, typ string, fn any) {
	if err := Register(namespace, typ, fn); err != nil {
		panic(err)
	}
}

func New(namespace string, typ string, options any) (any, error) {
	return defaultRegistry.New(namespace, typ, options)
}

func Types(namespace string) []string {
	return defaultRegistry.Types(namespace)
}

// Build 按 TypeOptions 构造对象并断言为 T
// Namespace 为空时使用 defaultNamespace
func Build[T any](defaultNamespace string, options *TypeOptions) (T, error) {
	var zero T
	if options == nil {
		return zero, errors.New("type options is nil")
	}
	namespace := options.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	obj, err := New(namespace, options.Type, options.Options)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("%s:%s built %T, not %v", namespace, options.Type, obj, reflect.TypeOf((*T)(nil)).Elem())
	}
	return t, nil
}
