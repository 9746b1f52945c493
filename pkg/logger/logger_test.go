package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Setenv("NEBULA_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "")

	tests := []struct {
		name string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"DEBUG", zapcore.DebugLevel},
		{" error ", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		level, err := ParseLevel(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, level, tt.name)
	}

	_, err := ParseLevel("nonsense")
	assert.Error(t, err)

	t.Setenv("LOG_LEVEL", "warn")
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level)

	t.Setenv("NEBULA_LOG_LEVEL", "debug")
	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	t.Setenv("NEBULA_LOG_LEVEL", "loud")
	_, err = ParseLevel("")
	assert.ErrorContains(t, err, "loud")
}

func TestSetupRejectsBadLevel(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Use(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	err := Setup(dir, "verbose")
	require.Error(t, err)
	assert.Same(t, prev, Log, "logger must stay untouched")
	_, statErr := os.Stat(filepath.Join(dir, LogFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSetupWritesFile(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Use(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, Setup(dir, "info"))

	Sugar.Infof("[Test] hello: k=%d", 42)
	require.NoError(t, Log.Sync())

	data, err := os.ReadFile(filepath.Join(dir, LogFile))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[Test] hello: k=42"))
	assert.True(t, strings.Contains(string(data), "INFO"))
}
