package database

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hmeierhoff/clearsearch/helper"
)

// SettingsCategoryVectorIndex is the settings category holding the ANN index
// configuration for the passages table.
const SettingsCategoryVectorIndex = "vector_index"

// Supported index types on the embedding column.
const (
	IndexTypeHNSW    = "hnsw"
	IndexTypeIVFFlat = "ivfflat"
)

// VectorIndexConfig describes the ANN index on the passages embedding column.
// Parameters left at zero fall back to the pgvector defaults.
type VectorIndexConfig struct {
	Type           string
	M              int // hnsw: graph degree
	EfConstruction int // hnsw: build-time candidate list size
	Lists          int // ivfflat: cluster count
}

// VectorIndexConfigFromSettings builds an index configuration from the
// "vector_index" settings category. Recognized keys: "type", "hnsw_m",
// "hnsw_ef_construction", "ivfflat_lists".
func VectorIndexConfigFromSettings(settings map[string]string) (VectorIndexConfig, error) {
	config := VectorIndexConfig{Type: settings["type"]}
	if config.Type == "" {
		return VectorIndexConfig{}, fmt.Errorf("setting %s.type is not set", SettingsCategoryVectorIndex)
	}

	params := map[string]*int{
		"hnsw_m":               &config.M,
		"hnsw_ef_construction": &config.EfConstruction,
		"ivfflat_lists":        &config.Lists,
	}
	for key, target := range params {
		value, ok := settings[key]
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return VectorIndexConfig{}, fmt.Errorf("setting %s.%s must be a positive integer, got %q", SettingsCategoryVectorIndex, key, value)
		}
		*target = parsed
	}

	return config, nil
}

// createStatement renders the CREATE INDEX statement for the configuration.
func (c VectorIndexConfig) createStatement() (string, error) {
	switch c.Type {
	case IndexTypeHNSW:
		m := c.M
		if m <= 0 {
			m = 16
		}
		efConstruction := c.EfConstruction
		if efConstruction <= 0 {
			efConstruction = 64
		}
		return fmt.Sprintf(
			`CREATE INDEX idx_passages_embedding ON passages USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			m, efConstruction,
		), nil
	case IndexTypeIVFFlat:
		lists := c.Lists
		if lists <= 0 {
			lists = 100
		}
		return fmt.Sprintf(
			`CREATE INDEX idx_passages_embedding ON passages USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			lists,
		), nil
	default:
		return "", fmt.Errorf("unsupported index type: %s (use %q or %q)", c.Type, IndexTypeHNSW, IndexTypeIVFFlat)
	}
}

// ChangeIndexType swaps the vector index on the passages table. The
// configuration is validated before the old index is dropped, so an invalid
// request never leaves the table unindexed.
func (h *PassagesDBHandler) ChangeIndexType(ctx context.Context, config VectorIndexConfig) error {
	createIndexSQL, err := config.createStatement()
	if err != nil {
		return helper.NewError("change index type", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = h.db.Instance.ExecContext(ctx, `DROP INDEX IF EXISTS idx_passages_embedding;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info("Swapped vector index", slog.String("type", config.Type))

	return nil
}
