package clearsearch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hmeierhoff/clearsearch/cache"
	"github.com/hmeierhoff/clearsearch/core/retrieval"
	"github.com/hmeierhoff/clearsearch/database"
	"github.com/hmeierhoff/clearsearch/helper"
	"github.com/hmeierhoff/clearsearch/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	mu         sync.Mutex
	calls      int
	candidates []*model.PassageCandidate
}

func (s *fakeSearcher) Search(_ context.Context, _ []float32, k int, _ *retrieval.SearchFilter) ([]*model.PassageCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	out := make([]*model.PassageCandidate, 0, k)
	for _, c := range s.candidates {
		if len(out) == k {
			break
		}
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = append(e.texts, text)
	return []float32{1, 0, 0}, nil
}

func (e *fakeEmbedder) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.texts...)
}

type fakeResolver struct {
	users map[uuid.UUID]*model.UserClearance
}

func (r *fakeResolver) SelectUserClearance(_ context.Context, userID uuid.UUID) (*model.UserClearance, error) {
	user, ok := r.users[userID]
	if !ok {
		return nil, errors.New("no clearance record for user")
	}
	return user, nil
}

type failingDecomposer struct{}

func (failingDecomposer) Decompose(context.Context, string) ([]string, error) {
	return nil, errors.New("decomposition model unavailable")
}

// failingStore rejects all writes.
type failingStore struct{}

func (failingStore) Get(string) (interface{}, bool)               { return nil, false }
func (failingStore) Set(string, interface{}, time.Duration) error { return errors.New("store down") }
func (failingStore) Delete(string)                                {}

func testConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.EnableReranker = false
	cfg.ProviderTimeout = time.Second
	cfg.OverallTimeout = 5 * time.Second
	return cfg
}

func cand(score float64, level model.SecurityLevel) *model.PassageCandidate {
	return &model.PassageCandidate{
		ID:              uuid.New(),
		Content:         "passage content",
		SimilarityScore: score,
		SecurityLevel:   level,
	}
}

func newTestEngine(t *testing.T, searcher *fakeSearcher, resolver *fakeResolver) (*Engine, *fakeEmbedder) {
	t.Helper()
	embedder := &fakeEmbedder{}
	logger := helper.NewLogger(io.Discard, slog.LevelError)

	engine, err := NewEngineFromProviders(searcher, embedder, nil, resolver, testConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine, embedder
}

func TestNewEngineFromProviders(t *testing.T) {
	logger := helper.NewLogger(io.Discard, slog.LevelError)

	t.Run("Missing providers fail", func(t *testing.T) {
		_, err := NewEngineFromProviders(nil, &fakeEmbedder{}, nil, &fakeResolver{}, testConfig(), logger)
		assert.Error(t, err)
	})

	t.Run("Invalid config fails", func(t *testing.T) {
		cfg := testConfig()
		cfg.MinTopK = 0
		_, err := NewEngineFromProviders(&fakeSearcher{}, &fakeEmbedder{}, nil, &fakeResolver{}, cfg, logger)
		assert.Error(t, err)
	})
}

func TestEngineRetrieve(t *testing.T) {
	userID := uuid.New()
	resolver := &fakeResolver{users: map[uuid.UUID]*model.UserClearance{
		userID: {UserID: userID, OrgLevel: model.LevelRestricted},
	}}

	t.Run("Successful retrieval", func(t *testing.T) {
		searcher := &fakeSearcher{candidates: []*model.PassageCandidate{
			cand(0.9, model.LevelGeneral),
			cand(0.2, model.LevelGeneral),
		}}
		engine, _ := newTestEngine(t, searcher, resolver)

		outcome, err := engine.Retrieve(context.Background(), "what is the refund policy", userID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOK, outcome.Status)
		require.Len(t, outcome.Passages, 1)
		assert.InDelta(t, 0.9, outcome.Passages[0].SimilarityScore, 0.0001)
	})

	t.Run("Unknown user is an error, not general access", func(t *testing.T) {
		searcher := &fakeSearcher{candidates: []*model.PassageCandidate{cand(0.9, model.LevelGeneral)}}
		engine, _ := newTestEngine(t, searcher, resolver)

		_, err := engine.Retrieve(context.Background(), "query", uuid.New())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resolve clearance")
		assert.Equal(t, 0, searcher.callCount(), "no search must run without a clearance")
	})

	t.Run("Blank query is rejected", func(t *testing.T) {
		engine, _ := newTestEngine(t, &fakeSearcher{}, resolver)

		_, err := engine.Retrieve(context.Background(), "   ", userID)
		assert.ErrorIs(t, err, retrieval.ErrEmptyQuery)
	})

	t.Run("Restricted corpus reports insufficient clearance", func(t *testing.T) {
		searcher := &fakeSearcher{candidates: []*model.PassageCandidate{
			cand(0.9, model.LevelHighlyConfidential),
		}}
		engine, _ := newTestEngine(t, searcher, resolver)

		outcome, err := engine.Retrieve(context.Background(), "classified topic", userID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusInsufficientClearance, outcome.Status)
		assert.Empty(t, outcome.Passages)
		assert.GreaterOrEqual(t, outcome.BlockedCount, 1)
	})
}

func TestEngineContextCache(t *testing.T) {
	userID := uuid.New()
	user := &model.UserClearance{UserID: userID, OrgLevel: model.LevelRestricted}
	resolver := &fakeResolver{users: map[uuid.UUID]*model.UserClearance{userID: user}}

	t.Run("Repeated query is served from the context cache", func(t *testing.T) {
		searcher := &fakeSearcher{candidates: []*model.PassageCandidate{
			cand(0.9, model.LevelGeneral),
			cand(0.2, model.LevelGeneral),
		}}
		engine, _ := newTestEngine(t, searcher, resolver)

		first, err := engine.Retrieve(context.Background(), "repeated query", userID)
		require.NoError(t, err)
		require.Equal(t, model.StatusOK, first.Status)

		// The context cache write is asynchronous.
		require.Eventually(t, func() bool {
			_, ok := engine.Cache.GetContext("repeated query", user)
			return ok
		}, time.Second, 10*time.Millisecond)

		callsBefore := searcher.callCount()
		second, err := engine.Retrieve(context.Background(), "repeated query", userID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOK, second.Status)
		assert.Equal(t, first.Passages[0].ID, second.Passages[0].ID)
		assert.Equal(t, callsBefore, searcher.callCount(), "cache hit must not search")
	})

	t.Run("Users with different clearance never share entries", func(t *testing.T) {
		otherID := uuid.New()
		other := &model.UserClearance{UserID: otherID, OrgLevel: model.LevelHighlyConfidential}
		twoUsers := &fakeResolver{users: map[uuid.UUID]*model.UserClearance{
			userID:  user,
			otherID: other,
		}}

		searcher := &fakeSearcher{candidates: []*model.PassageCandidate{
			cand(0.9, model.LevelGeneral),
			cand(0.2, model.LevelGeneral),
		}}
		engine, _ := newTestEngine(t, searcher, twoUsers)

		_, err := engine.Retrieve(context.Background(), "shared query", userID)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_, ok := engine.Cache.GetContext("shared query", user)
			return ok
		}, time.Second, 10*time.Millisecond)

		callsBefore := searcher.callCount()
		_, err = engine.Retrieve(context.Background(), "shared query", otherID)
		require.NoError(t, err)
		assert.Greater(t, searcher.callCount(), callsBefore, "different clearance must not hit the other user's entry")
	})

	t.Run("Failing cache stores never change the outcome", func(t *testing.T) {
		searcher := &fakeSearcher{candidates: []*model.PassageCandidate{
			cand(0.9, model.LevelGeneral),
			cand(0.2, model.LevelGeneral),
		}}
		engine, _ := newTestEngine(t, searcher, resolver)

		logger := helper.NewLogger(io.Discard, slog.LevelError)
		engine.Cache.Close()
		engine.Cache = cache.NewManager(failingStore{}, failingStore{}, failingStore{}, testConfig(), logger)

		outcome, err := engine.Retrieve(context.Background(), "query against broken cache", userID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOK, outcome.Status)
		require.Len(t, outcome.Passages, 1)
	})
}

func TestEngineDecomposition(t *testing.T) {
	userID := uuid.New()
	resolver := &fakeResolver{users: map[uuid.UUID]*model.UserClearance{
		userID: {UserID: userID, OrgLevel: model.LevelRestricted},
	}}

	t.Run("Compound query fans out into sub-queries", func(t *testing.T) {
		searcher := &fakeSearcher{candidates: []*model.PassageCandidate{
			cand(0.9, model.LevelGeneral),
			cand(0.2, model.LevelGeneral),
		}}
		engine, embedder := newTestEngine(t, searcher, resolver)

		outcome, err := engine.Retrieve(context.Background(), "What is the refund policy? What is the shipping time?", userID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOK, outcome.Status)
		assert.False(t, outcome.FallbackUsed)

		texts := embedder.seen()
		assert.Contains(t, texts, "What is the refund policy?")
		assert.Contains(t, texts, "What is the shipping time?")

		// Both sub-queries return the same passage; the merge deduplicates.
		assert.Len(t, outcome.Passages, 1)
	})

	t.Run("Decomposer failure falls back to the undecomposed query", func(t *testing.T) {
		searcher := &fakeSearcher{candidates: []*model.PassageCandidate{
			cand(0.9, model.LevelGeneral),
			cand(0.2, model.LevelGeneral),
		}}
		engine, embedder := newTestEngine(t, searcher, resolver)
		engine.SetDecomposer(failingDecomposer{})

		outcome, err := engine.Retrieve(context.Background(), "What is X? What is Y?", userID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOK, outcome.Status)
		assert.True(t, outcome.FallbackUsed)
		assert.Equal(t, []string{"What is X? What is Y?"}, embedder.seen())
	})
}

func TestEngineAnswerCache(t *testing.T) {
	userID := uuid.New()
	resolver := &fakeResolver{users: map[uuid.UUID]*model.UserClearance{
		userID: {UserID: userID, OrgLevel: model.LevelRestricted},
	}}

	t.Run("Substantive answer round trip", func(t *testing.T) {
		engine, _ := newTestEngine(t, &fakeSearcher{}, resolver)

		err := engine.StoreAnswer(context.Background(), "what is the refund policy", "Returns are accepted within 30 days of purchase.")
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_, ok, err := engine.LookupAnswer(context.Background(), "what is the refund policy")
			return err == nil && ok
		}, time.Second, 10*time.Millisecond)

		answer, ok, err := engine.LookupAnswer(context.Background(), "what is the refund policy")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Contains(t, answer, "30 days")
	})

	t.Run("Refusals are never cached", func(t *testing.T) {
		engine, _ := newTestEngine(t, &fakeSearcher{}, resolver)

		err := engine.StoreAnswer(context.Background(), "unknown topic", "I don't know anything about that topic, sorry.")
		require.NoError(t, err)
		engine.Cache.Close()

		_, ok, err := engine.LookupAnswer(context.Background(), "unknown topic")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestEngineWithoutDatabase(t *testing.T) {
	userID := uuid.New()
	resolver := &fakeResolver{users: map[uuid.UUID]*model.UserClearance{
		userID: {UserID: userID, OrgLevel: model.LevelRestricted},
	}}
	engine, _ := newTestEngine(t, &fakeSearcher{}, resolver)

	t.Run("Settings require a database", func(t *testing.T) {
		_, err := engine.GetSettings(context.Background(), "retrieval")
		assert.Error(t, err)

		err = engine.UpdateSetting(context.Background(), "retrieval", "min_top_k", "3")
		assert.Error(t, err)
	})

	t.Run("Index tuning requires a database", func(t *testing.T) {
		err := engine.ChangeIndexType(context.Background(), database.VectorIndexConfig{Type: database.IndexTypeHNSW})
		assert.Error(t, err)

		err = engine.ApplyIndexSettings(context.Background())
		assert.Error(t, err)
	})
}
