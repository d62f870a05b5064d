package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Run("Defaults are valid", func(t *testing.T) {
		cfg := DefaultConfig()

		require.NoError(t, cfg.Validate())
		assert.Equal(t, 3, cfg.MinTopK)
		assert.Equal(t, 10, cfg.MaxTopK)
		assert.Equal(t, 0.5, cfg.ScoreThreshold)
		assert.Equal(t, 3, cfg.RerankerTopK)
		assert.Equal(t, 0.3, cfg.RerankerScoreThreshold)
		assert.Equal(t, time.Hour, cfg.ResultCacheTTL)
		assert.Equal(t, 30*time.Minute, cfg.ContextCacheTTL)
		assert.Equal(t, 5*time.Minute, cfg.ConfigCacheTTL)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("MaxTopK below MinTopK is rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MinTopK = 5
		cfg.MaxTopK = 3

		assert.Error(t, cfg.Validate())
	})

	t.Run("Threshold outside unit interval is rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ScoreThreshold = 1.5

		assert.Error(t, cfg.Validate())
	})

	t.Run("MinTopK below one is rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MinTopK = 0

		assert.Error(t, cfg.Validate())
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("Missing file returns defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))

		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("File values overlay defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "min_top_k: 2\nmax_top_k: 8\nenable_reranker: false\nresult_cache_ttl_secs: 120\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

		cfg, err := LoadConfig(path)

		require.NoError(t, err)
		assert.Equal(t, 2, cfg.MinTopK)
		assert.Equal(t, 8, cfg.MaxTopK)
		assert.False(t, cfg.EnableReranker)
		assert.Equal(t, 2*time.Minute, cfg.ResultCacheTTL)
		// Untouched fields keep their defaults
		assert.Equal(t, 0.5, cfg.ScoreThreshold)
	})

	t.Run("Invalid file values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("score_threshold: 7.0\n"), 0o644))

		_, err := LoadConfig(path)

		assert.Error(t, err)
	})
}
