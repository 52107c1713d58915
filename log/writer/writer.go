package writer

import (
	"io"

	"github.com/hatlonely/jsondb/ref"
)

// Namespace 输出器在 ref 中注册的命名空间
const Namespace = "log.writer"

// Writer 日志输出器接口
type Writer interface {
	io.Writer
	io.Closer
}

// Colorer 输出目标支持 ANSI 颜色时返回 true
type Colorer interface {
	Colored() bool
}

func init() {
	ref.MustRegister(Namespace, "console", NewConsoleWriterWithOptions)
	ref.MustRegister(Namespace, "file", NewFileWriterWithOptions)
	ref.MustRegister(Namespace, "multi", NewMultiWriterWithOptions)
}
