package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AI.Profiles = []AIProfile{{ID: "main", Provider: "openai", APIKey: "sk-test"}}
	cfg.Search.APIKey = "tvly-test"
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("should accept a complete config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("should require at least one AI profile", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.Profiles = nil

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "AI profile")
	})

	t.Run("should reject unknown provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.Profiles[0].Provider = "cohere"

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid provider")
	})

	t.Run("should require a search api key", func(t *testing.T) {
		cfg := validConfig()
		cfg.Search.APIKey = ""

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "search api_key")
	})

	t.Run("should reject out of range temperature", func(t *testing.T) {
		cfg := validConfig()
		cfg.Agent.Temperature = 1.2

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "temperature")
	})

	t.Run("should reject non-positive iteration cap", func(t *testing.T) {
		cfg := validConfig()
		cfg.Agent.MaxIterations = 0

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max_iterations")
	})

	t.Run("should require archive path when archiving is enabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sessions.ArchiveOnDrop = true
		cfg.Sessions.ArchivePath = ""

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "archive_path")
	})

	t.Run("should reject invalid port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = 70000

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "port")
	})
}

func TestLoader(t *testing.T) {
	t.Run("should fall back to defaults when file is missing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.json")

		cfg, err := NewLoader(path).Load()

		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "gpt-4o-mini", cfg.Agent.Model)
		assert.Equal(t, 5, cfg.Agent.MaxIterations)
		assert.Equal(t, 50, cfg.Sessions.MaxMessages)
	})

	t.Run("should load values from file over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scout.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"server": {"port": 9090},
			"agent": {"model": "claude-sonnet-4-5", "max_iterations": 3}
		}`), 0644))

		cfg, err := NewLoader(path).Load()

		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "claude-sonnet-4-5", cfg.Agent.Model)
		assert.Equal(t, 3, cfg.Agent.MaxIterations)
		// Untouched values keep their defaults.
		assert.Equal(t, 1000, cfg.Sessions.MaxSessions)
	})

	t.Run("should round trip through save and load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scout.json")
		loader := NewLoader(path)

		cfg := validConfig()
		cfg.Server.Port = 3000
		require.NoError(t, loader.Save(cfg))

		loaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 3000, loaded.Server.Port)
		require.Len(t, loaded.AI.Profiles, 1)
		assert.Equal(t, "openai", loaded.AI.Profiles[0].Provider)
	})

	t.Run("should derive archive path when archiving is enabled", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scout.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"sessions": {"archive_on_drop": true}
		}`), 0644))

		cfg, err := NewLoader(path).Load()

		require.NoError(t, err)
		assert.NotEmpty(t, cfg.Sessions.ArchivePath)
	})
}
