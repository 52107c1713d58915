package jdb

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound 数据库或表不存在
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists 创建或重命名时名字已被占用
	ErrAlreadyExists = errors.New("already exists")
	// ErrFileSystem 读写存储失败或者文件内容无法解析
	ErrFileSystem = errors.New("file system failure")
	// ErrLookup Meta 中没有这个 key
	ErrLookup = errors.New("lookup failure")
)

// Error 携带出错对象名字的错误，errors.Is 可以同时匹配错误类别和底层原因
//
//	if errors.Is(err, jdb.ErrAlreadyExists) { ... }
//	if errors.Is(err, storage.ErrNotFound) { ... }
type Error struct {
	Kind error
	Name string
	Err  error
}

func newError(kind error, name string, err error) *Error {
	return &Error{Kind: kind, Name: name, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Name, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Name, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SaveResult 保存的三种结果，只有 SaveFailed 需要处理
type SaveResult int

const (
	// SaveSkipped 没有改动，什么也没写
	SaveSkipped SaveResult = iota
	SaveDone
	SaveFailed
)

func (r SaveResult) String() string {
	switch r {
	case SaveSkipped:
		return "skipped"
	case SaveDone:
		return "done"
	case SaveFailed:
		return "failed"
	}
	return fmt.Sprintf("SaveResult(%d)", int(r))
}

// OK 结果不是 SaveFailed
func (r SaveResult) OK() bool {
	return r != SaveFailed
}
