package clearsearch

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/hmeierhoff/clearsearch/cache"
	"github.com/hmeierhoff/clearsearch/core/retrieval"
	"github.com/hmeierhoff/clearsearch/database"
	"github.com/hmeierhoff/clearsearch/helper"
	"github.com/hmeierhoff/clearsearch/model"
	loadSql "github.com/hmeierhoff/clearsearch/sql"
)

// ClearanceResolver resolves a user's current security attributes. Every
// retrieval resolves through it, so role changes take effect on the next
// query.
type ClearanceResolver interface {
	SelectUserClearance(ctx context.Context, userID uuid.UUID) (*model.UserClearance, error)
}

// Engine provides a unified interface to clearance-aware retrieval: adaptive
// vector search, optional reranking and decomposition, and the three cache
// tiers.
type Engine struct {
	DB         *helper.Database
	Passages   *database.PassagesDBHandler
	Clearances *database.ClearancesDBHandler
	Settings   *database.SettingsDBHandler
	Cache      *cache.Manager

	coordinator *retrieval.Coordinator
	decomposer  retrieval.Decomposer
	resolver    ClearanceResolver
	embedder    retrieval.Embedder
	cfg         model.Config
	log         *slog.Logger
}

// NewEngine creates an engine backed by a pgvector database. The embedder is
// required; a nil reranker disables reranking regardless of configuration.
func NewEngine(dbConfig *helper.DatabaseConfiguration, cfg model.Config, embedder retrieval.Embedder, reranker retrieval.Reranker, embeddingDim int) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, helper.NewError("validate config", err)
	}
	if embedder == nil {
		return nil, helper.NewError("create engine", fmt.Errorf("embedder is required"))
	}

	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("clearsearch", dbConfig, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// force=false to not reload if functions already exist
	passages, err := database.NewPassagesDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create passages handler", err)
	}

	clearances, err := database.NewClearancesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create clearances handler", err)
	}

	settings, err := database.NewSettingsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create settings handler", err)
	}

	engine := newEngine(passages, embedder, reranker, clearances, cfg, logger)
	engine.DB = db
	engine.Passages = passages
	engine.Clearances = clearances
	engine.Settings = settings

	return engine, nil
}

// NewEngineFromProviders wires an engine from explicit provider handles,
// without a database. The database-backed convenience methods (settings,
// passage management, index tuning) are unavailable on such an engine.
func NewEngineFromProviders(searcher retrieval.VectorSearcher, embedder retrieval.Embedder, reranker retrieval.Reranker, resolver ClearanceResolver, cfg model.Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, helper.NewError("validate config", err)
	}
	if searcher == nil || embedder == nil || resolver == nil {
		return nil, helper.NewError("create engine", fmt.Errorf("searcher, embedder and resolver are required"))
	}
	if logger == nil {
		logger = slog.New(helper.NewPrettyHandler(os.Stdout, helper.PrettyHandlerOptions{}))
	}

	return newEngine(searcher, embedder, reranker, resolver, cfg, logger), nil
}

func newEngine(searcher retrieval.VectorSearcher, embedder retrieval.Embedder, reranker retrieval.Reranker, resolver ClearanceResolver, cfg model.Config, logger *slog.Logger) *Engine {
	var decomposer retrieval.Decomposer
	if cfg.EnableDecomposition {
		decomposer = retrieval.NewHeuristicDecomposer()
	} else {
		decomposer = retrieval.PassthroughDecomposer{}
	}

	manager := cache.NewManager(
		cache.NewMemoryStore(cfg.ResultCacheTTL),
		cache.NewMemoryStore(cfg.ContextCacheTTL),
		cache.NewMemoryStore(cfg.ConfigCacheTTL),
		cfg,
		logger,
	)

	return &Engine{
		Cache:       manager,
		coordinator: retrieval.NewCoordinator(searcher, embedder, reranker, cfg, logger),
		decomposer:  decomposer,
		resolver:    resolver,
		embedder:    embedder,
		cfg:         cfg,
		log:         logger,
	}
}

// SetDecomposer replaces the query decomposer, e.g. with an LLM-backed
// implementation.
func (e *Engine) SetDecomposer(decomposer retrieval.Decomposer) {
	if decomposer != nil {
		e.decomposer = decomposer
	}
}

// Retrieve answers a query for a user: resolve the user's clearance, check
// the context cache, decompose the query, run the adaptive retrieval
// algorithm per sub-query, and cache successful passage sets.
//
// A user without a clearance record gets an error, not general-level access.
func (e *Engine) Retrieve(ctx context.Context, query string, userID uuid.UUID) (*model.RetrievalOutcome, error) {
	user, err := e.resolver.SelectUserClearance(ctx, userID)
	if err != nil {
		return nil, helper.NewError("resolve clearance", err)
	}

	if passages, ok := e.Cache.GetContext(query, user); ok {
		e.log.Debug("context cache hit", slog.String("user_id", userID.String()))
		return &model.RetrievalOutcome{
			Status:   model.StatusOK,
			Passages: passages,
		}, nil
	}

	queries, fallbackUsed := e.decompose(ctx, query)

	outcome, err := e.coordinator.RetrieveAll(ctx, queries, user)
	if err != nil {
		return nil, err
	}
	outcome.FallbackUsed = outcome.FallbackUsed || fallbackUsed

	if outcome.Status == model.StatusOK {
		e.Cache.PutContext(query, user, outcome.Passages)
	}

	return outcome, nil
}

// decompose splits the query into sub-queries within the decomposition
// budget. Any failure falls back to the original query as a single unit.
func (e *Engine) decompose(ctx context.Context, query string) ([]string, bool) {
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DecomposeTimeout)
	defer cancel()

	queries, err := e.decomposer.Decompose(dctx, query)
	if err != nil || len(queries) == 0 {
		if err != nil {
			e.log.Warn("query decomposition failed, retrieving undecomposed", slog.String("error", err.Error()))
		}
		return []string{query}, true
	}
	return queries, false
}

// LookupAnswer checks the shared result cache for a generated answer to a
// semantically similar query.
func (e *Engine) LookupAnswer(ctx context.Context, query string) (string, bool, error) {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return "", false, helper.NewError("embed query", err)
	}
	answer, ok := e.Cache.GetAnswer(embedding)
	return answer, ok, nil
}

// StoreAnswer offers a generated answer to the shared result cache. Short
// answers and refusals are dropped by the write gate.
func (e *Engine) StoreAnswer(ctx context.Context, query string, answer string) error {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return helper.NewError("embed query", err)
	}
	e.Cache.PutAnswer(embedding, answer)
	return nil
}

// GetSettings returns a setting category through the config cache tier.
func (e *Engine) GetSettings(ctx context.Context, category string) (map[string]string, error) {
	if e.Settings == nil {
		return nil, helper.NewError("get settings", fmt.Errorf("settings handler not initialized"))
	}
	return e.Cache.GetSettings(ctx, category, e.Settings.SelectSettingsByCategory)
}

// UpdateSetting writes a setting and invalidates its cached category, so the
// next read sees the new value immediately instead of after the cache TTL.
func (e *Engine) UpdateSetting(ctx context.Context, category, key, value string) error {
	if e.Settings == nil {
		return helper.NewError("update setting", fmt.Errorf("settings handler not initialized"))
	}
	if err := e.Settings.UpsertSetting(category, key, value); err != nil {
		return err
	}
	e.Cache.InvalidateConfig(category)
	return nil
}

// ChangeIndexType swaps the vector index on the passages table between HNSW
// and IVFFlat.
func (e *Engine) ChangeIndexType(ctx context.Context, config database.VectorIndexConfig) error {
	if e.Passages == nil {
		return helper.NewError("change index type", fmt.Errorf("passages handler not initialized"))
	}
	return e.Passages.ChangeIndexType(ctx, config)
}

// ApplyIndexSettings rebuilds the vector index from the "vector_index"
// settings category, read through the config cache tier. Admins tune the
// index by updating the category and calling this.
func (e *Engine) ApplyIndexSettings(ctx context.Context) error {
	settings, err := e.GetSettings(ctx, database.SettingsCategoryVectorIndex)
	if err != nil {
		return err
	}
	config, err := database.VectorIndexConfigFromSettings(settings)
	if err != nil {
		return helper.NewError("apply index settings", err)
	}
	return e.ChangeIndexType(ctx, config)
}

// Close drains pending cache writes and closes the database connection.
func (e *Engine) Close() error {
	e.Cache.Close()
	if e.DB != nil && e.DB.Instance != nil {
		return e.DB.Instance.Close()
	}
	return nil
}
