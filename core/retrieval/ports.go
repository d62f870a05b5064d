package retrieval

import (
	"context"

	"github.com/hmeierhoff/clearsearch/model"
)

// SearchFilter is an optional metadata pre-filter a vector search provider
// may apply natively. Providers that cannot express filters return unfiltered
// results; ApplyClearance remains the enforcement point either way.
type SearchFilter struct {
	MaxSecurityLevel model.SecurityLevel // 0 means no level filter
	DepartmentIDs    []string            // empty means no department filter
}

// VectorSearcher returns the k candidates most similar to the query
// embedding, ordered by descending similarity. Implementations must
// initialize both SimilarityScore and Score to the retrieval similarity:
// merging and ranking operate on Score, which only a later rerank pass may
// overwrite.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, k int, filter *SearchFilter) ([]*model.PassageCandidate, error)
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker re-scores a small, already access-filtered candidate set with a
// cross-encoder and returns at most topK candidates ordered by the new score.
// Implementations must never receive candidates the user cannot see; the
// coordinator guarantees this.
type Reranker interface {
	Enabled() bool
	Rerank(ctx context.Context, query string, candidates []*model.PassageCandidate, topK int) ([]*model.PassageCandidate, error)
}

// disabledReranker is the no-op selected at construction time when reranking
// is switched off, so the coordinator carries no feature-flag branches.
type disabledReranker struct{}

func (disabledReranker) Enabled() bool { return false }

func (disabledReranker) Rerank(_ context.Context, _ string, candidates []*model.PassageCandidate, _ int) ([]*model.PassageCandidate, error) {
	return candidates, nil
}

// Disabled returns the no-op reranker.
func Disabled() Reranker {
	return disabledReranker{}
}
