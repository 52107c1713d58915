package writer

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileWriterOptions 文件输出配置
type FileWriterOptions struct {
	Path string `cfg:"path" validate:"required"`
	// 新建文件和目录的权限
	FileMode os.FileMode `cfg:"fileMode" def:"0644"`
	DirMode  os.FileMode `cfg:"dirMode" def:"0755"`
}

// FileWriter 追加写入文件
type FileWriter struct {
	options *FileWriterOptions
	file    *os.File
	mu      sync.Mutex
}

func NewFileWriterWithOptions(options *FileWriterOptions) (*FileWriter, error) {
	if options == nil || options.Path == "" {
		return nil, errors.New("file path is required")
	}
	fileMode, dirMode := options.FileMode, options.DirMode
	if fileMode == 0 {
		fileMode = 0644
	}
	if dirMode == 0 {
		dirMode = 0755
	}

	dir := filepath.Dir(options.Path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, errors.Wrapf(err, "os.MkdirAll [%s] failed", dir)
	}

	file, err := os.OpenFile(options.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, fileMode)
	if err != nil {
		return nil, errors.Wrapf(err, "os.OpenFile [%s] failed", options.Path)
	}

	return &FileWriter{
		options: options,
		file:    file,
	}, nil
}

func (f *FileWriter) Write(p []byte) (n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, errors.Errorf("file [%s] is closed", f.options.Path)
	}
	return f.file.Write(p)
}

// Close 可以重复调用
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return errors.Wrapf(err, "close [%s] failed", f.options.Path)
}
