package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hmeierhoff/clearsearch/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL: server.URL,
		Model:   "test-reranker",
		Timeout: time.Second,
	})
	require.NoError(t, err)
	return client
}

func candidates(contents ...string) []*model.PassageCandidate {
	out := make([]*model.PassageCandidate, len(contents))
	for i, content := range contents {
		out[i] = &model.PassageCandidate{ID: uuid.New(), Content: content, SimilarityScore: 0.8}
	}
	return out
}

func TestNewClient(t *testing.T) {
	t.Run("Base URL is required", func(t *testing.T) {
		_, err := NewClient(Config{})
		assert.Error(t, err)
	})

	t.Run("Missing API key env fails", func(t *testing.T) {
		_, err := NewClient(Config{BaseURL: "http://localhost", APIKeyEnv: "CLEARSEARCH_TEST_MISSING_KEY"})
		assert.Error(t, err)
	})

	t.Run("Client reports itself enabled", func(t *testing.T) {
		client, err := NewClient(Config{BaseURL: "http://localhost"})
		require.NoError(t, err)
		assert.True(t, client.Enabled())
	})
}

func TestRerank(t *testing.T) {
	t.Run("Scores are mapped back and ordered", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/rerank", r.URL.Path)

			var req rerankRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "which passage", req.Query)
			assert.Len(t, req.Documents, 3)
			assert.Equal(t, 2, req.TopK)

			json.NewEncoder(w).Encode(map[string]interface{}{
				"results": []map[string]interface{}{
					{"index": 0, "relevance_score": 0.2},
					{"index": 1, "relevance_score": 0.9},
					{"index": 2, "relevance_score": 0.5},
				},
			})
		})

		input := candidates("first", "second", "third")
		reranked, err := client.Rerank(context.Background(), "which passage", input, 2)
		require.NoError(t, err)

		require.Len(t, reranked, 2)
		assert.Equal(t, "second", reranked[0].Content)
		assert.InDelta(t, 0.9, reranked[0].Score, 0.0001)
		assert.Equal(t, "third", reranked[1].Content)
		assert.InDelta(t, 0.8, reranked[0].SimilarityScore, 0.0001, "similarity score must be preserved")
	})

	t.Run("Empty candidate set skips the request", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected for empty candidates")
		})

		reranked, err := client.Rerank(context.Background(), "query", nil, 3)
		require.NoError(t, err)
		assert.Empty(t, reranked)
	})

	t.Run("Server error is returned", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		})

		_, err := client.Rerank(context.Background(), "query", candidates("first"), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model overloaded")
	})

	t.Run("Out of range index is rejected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"results": []map[string]interface{}{
					{"index": 7, "relevance_score": 0.9},
				},
			})
		})

		_, err := client.Rerank(context.Background(), "query", candidates("first"), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})

	t.Run("Cancelled context stops the request", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Rerank(ctx, "query", candidates("first"), 1)
		assert.Error(t, err)
	})
}
