package log

import (
	"path/filepath"
	"testing"

	"github.com/hatlonely/jsondb/log/logger"
	"github.com/hatlonely/jsondb/log/writer"
	"github.com/hatlonely/jsondb/ref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithOptions(t *testing.T) {
	l, err := NewLoggerWithOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), l)

	l, err = NewLoggerWithOptions(&ref.TypeOptions{
		Type: "slog",
		Options: &logger.SLogOptions{
			Format: "json",
			Output: &ref.TypeOptions{
				Type:    "file",
				Options: &writer.FileWriterOptions{Path: filepath.Join(t.TempDir(), "a.log")},
			},
		},
	})
	require.NoError(t, err)
	l.Info("hello")

	_, err = NewLoggerWithOptions(&ref.TypeOptions{Type: "zap"})
	assert.Error(t, err)
}

func TestSetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	d := logger.Discard()
	SetDefault(d)
	assert.Equal(t, d, Default())

	SetDefault(nil)
	assert.Equal(t, d, Default())
}
