package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndexConfigFromSettings(t *testing.T) {
	t.Run("Full HNSW configuration", func(t *testing.T) {
		config, err := VectorIndexConfigFromSettings(map[string]string{
			"type":                 "hnsw",
			"hnsw_m":               "32",
			"hnsw_ef_construction": "128",
		})
		require.NoError(t, err)
		assert.Equal(t, IndexTypeHNSW, config.Type)
		assert.Equal(t, 32, config.M)
		assert.Equal(t, 128, config.EfConstruction)
		assert.Equal(t, 0, config.Lists)
	})

	t.Run("Missing parameters stay at zero", func(t *testing.T) {
		config, err := VectorIndexConfigFromSettings(map[string]string{"type": "ivfflat"})
		require.NoError(t, err)
		assert.Equal(t, IndexTypeIVFFlat, config.Type)
		assert.Equal(t, 0, config.Lists)
	})

	t.Run("Missing type fails", func(t *testing.T) {
		_, err := VectorIndexConfigFromSettings(map[string]string{"ivfflat_lists": "50"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "type is not set")
	})

	t.Run("Non-numeric parameter fails", func(t *testing.T) {
		_, err := VectorIndexConfigFromSettings(map[string]string{"type": "hnsw", "hnsw_m": "many"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hnsw_m")
	})

	t.Run("Non-positive parameter fails", func(t *testing.T) {
		_, err := VectorIndexConfigFromSettings(map[string]string{"type": "ivfflat", "ivfflat_lists": "0"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ivfflat_lists")
	})
}

func TestVectorIndexCreateStatement(t *testing.T) {
	t.Run("HNSW defaults", func(t *testing.T) {
		stmt, err := VectorIndexConfig{Type: IndexTypeHNSW}.createStatement()
		require.NoError(t, err)
		assert.Contains(t, stmt, "USING hnsw")
		assert.Contains(t, stmt, "m = 16, ef_construction = 64")
	})

	t.Run("IVFFlat with explicit lists", func(t *testing.T) {
		stmt, err := VectorIndexConfig{Type: IndexTypeIVFFlat, Lists: 200}.createStatement()
		require.NoError(t, err)
		assert.Contains(t, stmt, "USING ivfflat")
		assert.Contains(t, stmt, "lists = 200")
	})

	t.Run("Unsupported type is rejected before any DDL", func(t *testing.T) {
		_, err := VectorIndexConfig{Type: "gin"}.createStatement()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported index type")
	})
}
