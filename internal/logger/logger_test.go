package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should create console logger", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.InfoLevel, l.GetZerolog().GetLevel())
	})

	t.Run("should fall back to info for unknown level", func(t *testing.T) {
		l, err := New(Config{Level: "verbose", Console: true})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.InfoLevel, l.GetZerolog().GetLevel())
	})

	t.Run("should write to a log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "scout.log")

		l, err := New(Config{Level: "debug", File: path})
		require.NoError(t, err)

		zl := l.GetZerolog()
		zl.Info().Str("key", "value").Msg("file test")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "file test")
		assert.Contains(t, string(data), `"key":"value"`)
	})

	t.Run("should respect the configured level", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scout.log")

		l, err := New(Config{Level: "warn", File: path})
		require.NoError(t, err)

		zl := l.GetZerolog()
		zl.Info().Msg("dropped")
		zl.Warn().Msg("kept")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "dropped")
		assert.Contains(t, string(data), "kept")
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Run("should enable pretty console output at info level", func(t *testing.T) {
		cfg := DefaultConfig()

		assert.Equal(t, "info", cfg.Level)
		assert.True(t, cfg.Console)
		assert.True(t, cfg.Pretty)
	})
}
