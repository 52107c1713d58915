// Package log 提供全局默认日志器和按配置构造日志器的入口
package log

import (
	"sync/atomic"

	"github.com/hatlonely/jsondb/log/logger"
	"github.com/hatlonely/jsondb/ref"
	"github.com/pkg/errors"
)

type Logger = logger.Logger

var defaultLogger atomic.Pointer[Logger]

func init() {
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	SetDefault(l)
}

func Default() Logger {
	return *defaultLogger.Load()
}

// SetDefault 替换默认日志器，nil 被忽略
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(&l)
}

// NewLoggerWithOptions 按配置构造日志器，options 为空时返回默认日志器
// Namespace 为空时使用 logger.Namespace，例如 {type: slog, options: {format: json}}
func NewLoggerWithOptions(options *ref.TypeOptions) (Logger, error) {
	if options == nil || options.Type == "" {
		return Default(), nil
	}
	l, err := ref.Build[Logger](logger.Namespace, options)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}
	return l, nil
}
