package writer

import (
	"github.com/hatlonely/jsondb/ref"
	"github.com/pkg/errors"
)

// MultiWriterOptions 多输出配置
type MultiWriterOptions struct {
	Writers []ref.TypeOptions `cfg:"writers" validate:"min=1"`
}

// MultiWriter 同时写入多个输出器
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriterWithOptions(options *MultiWriterOptions) (*MultiWriter, error) {
	if options == nil || len(options.Writers) == 0 {
		return nil, errors.New("at least one writer is required")
	}

	writers := make([]Writer, 0, len(options.Writers))
	for i := range options.Writers {
		w, err := ref.Build[Writer](Namespace, &options.Writers[i])
		if err != nil {
			for _, created := range writers {
				_ = created.Close()
			}
			return nil, errors.WithMessagef(err, "writer %d", i)
		}
		writers = append(writers, w)
	}

	return NewMultiWriter(writers...), nil
}

func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write 写入所有输出器，遇到第一个错误时返回
func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for i, w := range m.writers {
		if _, err := w.Write(p); err != nil {
			return 0, errors.WithMessagef(err, "writer %d", i)
		}
	}
	return len(p), nil
}

// Close 关闭所有输出器，返回最后一个错误
func (m *MultiWriter) Close() error {
	var lastErr error
	for i, w := range m.writers {
		if err := w.Close(); err != nil {
			lastErr = errors.WithMessagef(err, "close writer %d", i)
		}
	}
	return lastErr
}

// Colored 所有输出器都支持颜色时才输出颜色
func (m *MultiWriter) Colored() bool {
	for _, w := range m.writers {
		c, ok := w.(Colorer)
		if !ok || !c.Colored() {
			return false
		}
	}
	return len(m.writers) > 0
}
