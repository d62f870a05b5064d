package model

import (
	"errors"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the recognized retrieval and cache options.
type Config struct {
	// Escalation parameters
	MinTopK        int     `yaml:"min_top_k" validate:"gte=1"`
	MaxTopK        int     `yaml:"max_top_k" validate:"gtefield=MinTopK"`
	ScoreThreshold float64 `yaml:"score_threshold" validate:"gte=0,lte=1"`

	// Reranking
	EnableReranker         bool    `yaml:"enable_reranker"`
	RerankerTopK           int     `yaml:"reranker_top_k" validate:"gte=1"`
	RerankerScoreThreshold float64 `yaml:"reranker_score_threshold" validate:"gte=0,lte=1"`

	// Decomposition
	EnableDecomposition bool          `yaml:"enable_decomposition"`
	DecomposeTimeout    time.Duration `yaml:"-" validate:"gt=0"`

	// External call budgets
	ProviderTimeout time.Duration `yaml:"-" validate:"gt=0"`
	OverallTimeout  time.Duration `yaml:"-" validate:"gt=0"`

	// Cache TTLs per tier
	ResultCacheTTL  time.Duration `yaml:"-" validate:"gt=0"`
	ContextCacheTTL time.Duration `yaml:"-" validate:"gt=0"`
	ConfigCacheTTL  time.Duration `yaml:"-" validate:"gt=0"`
}

// fileConfig mirrors Config for yaml files, with durations in seconds.
type fileConfig struct {
	MinTopK                *int     `yaml:"min_top_k"`
	MaxTopK                *int     `yaml:"max_top_k"`
	ScoreThreshold         *float64 `yaml:"score_threshold"`
	EnableReranker         *bool    `yaml:"enable_reranker"`
	RerankerTopK           *int     `yaml:"reranker_top_k"`
	RerankerScoreThreshold *float64 `yaml:"reranker_score_threshold"`
	EnableDecomposition    *bool    `yaml:"enable_decomposition"`
	DecomposeTimeoutSecs   *int     `yaml:"decompose_timeout_secs"`
	ProviderTimeoutSecs    *int     `yaml:"provider_timeout_secs"`
	OverallTimeoutSecs     *int     `yaml:"overall_timeout_secs"`
	ResultCacheTTLSecs     *int     `yaml:"result_cache_ttl_secs"`
	ContextCacheTTLSecs    *int     `yaml:"context_cache_ttl_secs"`
	ConfigCacheTTLSecs     *int     `yaml:"config_cache_ttl_secs"`
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{
		MinTopK:                3,
		MaxTopK:                10,
		ScoreThreshold:         0.5,
		EnableReranker:         true,
		RerankerTopK:           3,
		RerankerScoreThreshold: 0.3,
		EnableDecomposition:    true,
		DecomposeTimeout:       2 * time.Second,
		ProviderTimeout:        10 * time.Second,
		OverallTimeout:         30 * time.Second,
		ResultCacheTTL:         time.Hour,
		ContextCacheTTL:        30 * time.Minute,
		ConfigCacheTTL:         5 * time.Minute,
	}
}

var validate = validator.New()

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// LoadConfig reads a yaml config file and overlays it on the defaults.
// A missing file returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, err
	}

	if fc.MinTopK != nil {
		cfg.MinTopK = *fc.MinTopK
	}
	if fc.MaxTopK != nil {
		cfg.MaxTopK = *fc.MaxTopK
	}
	if fc.ScoreThreshold != nil {
		cfg.ScoreThreshold = *fc.ScoreThreshold
	}
	if fc.EnableReranker != nil {
		cfg.EnableReranker = *fc.EnableReranker
	}
	if fc.RerankerTopK != nil {
		cfg.RerankerTopK = *fc.RerankerTopK
	}
	if fc.RerankerScoreThreshold != nil {
		cfg.RerankerScoreThreshold = *fc.RerankerScoreThreshold
	}
	if fc.EnableDecomposition != nil {
		cfg.EnableDecomposition = *fc.EnableDecomposition
	}
	if fc.DecomposeTimeoutSecs != nil {
		cfg.DecomposeTimeout = time.Duration(*fc.DecomposeTimeoutSecs) * time.Second
	}
	if fc.ProviderTimeoutSecs != nil {
		cfg.ProviderTimeout = time.Duration(*fc.ProviderTimeoutSecs) * time.Second
	}
	if fc.OverallTimeoutSecs != nil {
		cfg.OverallTimeout = time.Duration(*fc.OverallTimeoutSecs) * time.Second
	}
	if fc.ResultCacheTTLSecs != nil {
		cfg.ResultCacheTTL = time.Duration(*fc.ResultCacheTTLSecs) * time.Second
	}
	if fc.ContextCacheTTLSecs != nil {
		cfg.ContextCacheTTL = time.Duration(*fc.ContextCacheTTLSecs) * time.Second
	}
	if fc.ConfigCacheTTLSecs != nil {
		cfg.ConfigCacheTTL = time.Duration(*fc.ConfigCacheTTLSecs) * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
