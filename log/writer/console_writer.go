package writer

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// ConsoleWriterOptions 控制台输出配置
type ConsoleWriterOptions struct {
	// 输出目标：stdout, stderr
	Target string `cfg:"target" def:"stdout" validate:"omitempty,oneof=stdout stderr"`
	// 彩色输出：auto 在终端上启用，always, never
	Color string `cfg:"color" def:"auto" validate:"omitempty,oneof=auto always never"`
}

// ConsoleWriter 控制台输出器
type ConsoleWriter struct {
	writer  io.Writer
	target  string
	colored bool
}

func NewConsoleWriterWithOptions(options *ConsoleWriterOptions) (*ConsoleWriter, error) {
	if options == nil {
		options = &ConsoleWriterOptions{}
	}

	var file *os.File
	target := options.Target
	switch target {
	case "stderr":
		file = os.Stderr
	case "stdout", "":
		file, target = os.Stdout, "stdout"
	default:
		return nil, errors.Errorf("unknown console target %q", options.Target)
	}

	var colored bool
	switch options.Color {
	case "always":
		colored = true
	case "never":
	case "auto", "":
		colored = isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
	default:
		return nil, errors.Errorf("unknown color mode %q", options.Color)
	}

	// windows 控制台需要转换 ANSI 转义序列，不着色时去掉转义序列
	var w io.Writer
	if colored {
		w = colorable.NewColorable(file)
	} else {
		w = colorable.NewNonColorable(file)
	}

	return &ConsoleWriter{
		writer:  w,
		target:  target,
		colored: colored,
	}, nil
}

func (c *ConsoleWriter) Write(p []byte) (n int, err error) {
	return c.writer.Write(p)
}

// Close 控制台不需要关闭
func (c *ConsoleWriter) Close() error {
	return nil
}

func (c *ConsoleWriter) Colored() bool {
	return c.colored
}

func (c *ConsoleWriter) Target() string {
	return c.target
}
