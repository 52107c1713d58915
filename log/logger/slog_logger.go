package logger

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hatlonely/jsondb/log/writer"
	"github.com/hatlonely/jsondb/ref"
	"github.com/lmittmann/tint"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegister(Namespace, "slog", NewSLogWithOptions)
}

// SLogOptions 日志初始化选项
type SLogOptions struct {
	Level string `cfg:"level" def:"info" validate:"omitempty,oneof=debug info warn warning error"`
	// text, json, tint（彩色的人类可读格式，输出不支持颜色时自动退化为无色）
	Format string `cfg:"format" def:"text" validate:"omitempty,oneof=text json tint"`
	// 输出目标，为空时输出到控制台
	Output *ref.TypeOptions `cfg:"output"`
	// 为空时 text/json 使用 RFC3339，tint 使用 time.StampMilli
	TimeFormat string         `cfg:"timeFormat"`
	AddSource  bool           `cfg:"addSource"`
	Fields     map[string]any `cfg:"fields"`
}

type SLog struct {
	slogger *slog.Logger
	writer  writer.Writer
}

func NewSLogWithOptions(options *SLogOptions) (*SLog, error) {
	if options == nil {
		options = &SLogOptions{}
	}

	level, err := parseLevel(options.Level)
	if err != nil {
		return nil, err
	}

	var w writer.Writer
	if options.Output != nil && options.Output.Type != "" {
		w, err = ref.Build[writer.Writer](writer.Namespace, options.Output)
		if err != nil {
			return nil, errors.WithMessage(err, "create log writer failed")
		}
	} else {
		w, err = writer.NewConsoleWriterWithOptions(&writer.ConsoleWriterOptions{Target: "stdout", Color: "auto"})
		if err != nil {
			return nil, errors.WithMessage(err, "create console writer failed")
		}
	}

	handler, err := newHandler(w, level, options)
	if err != nil {
		return nil, err
	}

	slogger := slog.New(handler)
	if len(options.Fields) > 0 {
		keys := make([]string, 0, len(options.Fields))
		for k := range options.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		args := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			args = append(args, k, options.Fields[k])
		}
		slogger = slogger.With(args...)
	}

	return &SLog{slogger: slogger, writer: w}, nil
}

// NewSLogWithWriter 使用已有的 io.Writer，测试中用来捕获输出
func NewSLogWithWriter(w io.Writer, options *SLogOptions) (*SLog, error) {
	if options == nil {
		options = &SLogOptions{}
	}
	level, err := parseLevel(options.Level)
	if err != nil {
		return nil, err
	}
	handler, err := newHandler(w, level, options)
	if err != nil {
		return nil, err
	}
	return &SLog{slogger: slog.New(handler)}, nil
}

func newHandler(w io.Writer, level slog.Level, options *SLogOptions) (slog.Handler, error) {
	var replaceAttr func(groups []string, a slog.Attr) slog.Attr
	if options.TimeFormat != "" {
		replaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 && a.Value.Kind() == slog.KindTime {
				return slog.String(a.Key, a.Value.Time().Format(options.TimeFormat))
			}
			return a
		}
	}

	switch strings.ToLower(options.Format) {
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: options.AddSource, ReplaceAttr: replaceAttr}), nil
	case "text", "":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, AddSource: options.AddSource, ReplaceAttr: replaceAttr}), nil
	case "tint":
		colored := false
		if c, ok := w.(writer.Colorer); ok {
			colored = c.Colored()
		}
		timeFormat := options.TimeFormat
		if timeFormat == "" {
			timeFormat = time.StampMilli
		}
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  options.AddSource,
			TimeFormat: timeFormat,
			NoColor:    !colored,
		}), nil
	}
	return nil, errors.Errorf("unsupported log format %q", options.Format)
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Errorf("unknown log level %q", level)
}

func (l *SLog) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

func (l *SLog) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

func (l *SLog) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

func (l *SLog) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

func (l *SLog) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, args...)
}

func (l *SLog) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, args...)
}

func (l *SLog) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, args...)
}

func (l *SLog) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, args...)
}

func (l *SLog) With(args ...any) Logger {
	return &SLog{slogger: l.slogger.With(args...), writer: l.writer}
}

func (l *SLog) WithGroup(name string) Logger {
	return &SLog{slogger: l.slogger.WithGroup(name), writer: l.writer}
}

// Close 关闭输出器，使用 NewSLogWithWriter 创建时什么也不做
func (l *SLog) Close() error {
	if l.writer == nil {
		return nil
	}
	return l.writer.Close()
}
