package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hmeierhoff/clearsearch/helper"
	"github.com/hmeierhoff/clearsearch/model"
)

// Coordinator drives the adaptive retrieval loop for a single (sub-)query:
// fetch k candidates, filter by clearance, compare against the score
// threshold, and either return, invoke the reranker, or escalate k.
type Coordinator struct {
	searcher VectorSearcher
	embedder Embedder
	reranker Reranker
	cfg      model.Config
	log      *slog.Logger
}

// NewCoordinator creates a coordinator with explicit provider handles.
// The handles are long-lived and shared; they must be safe for concurrent
// use. A nil reranker (or EnableReranker=false) selects the no-op reranker.
func NewCoordinator(searcher VectorSearcher, embedder Embedder, reranker Reranker, cfg model.Config, log *slog.Logger) *Coordinator {
	if reranker == nil || !cfg.EnableReranker {
		reranker = Disabled()
	}
	return &Coordinator{
		searcher: searcher,
		embedder: embedder,
		reranker: reranker,
		cfg:      cfg,
		log:      log,
	}
}

// Retrieve runs the full escalation algorithm for one query.
//
// Embedding and vector search are mandatory stages: their failure, after one
// retry with backoff, propagates to the caller. Quality and clearance
// shortfalls are statuses on the outcome, not errors.
func (c *Coordinator) Retrieve(ctx context.Context, query string, user *model.UserClearance) (*model.RetrievalOutcome, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	if c.cfg.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.OverallTimeout)
		defer cancel()
	}

	embedding, err := c.embed(ctx, query)
	if err != nil {
		return nil, helper.NewError("embed query", fmt.Errorf("%w: %w", ErrProviderUnavailable, err))
	}

	return c.retrieve(ctx, query, embedding, user)
}

func (c *Coordinator) retrieve(ctx context.Context, query string, embedding []float32, user *model.UserClearance) (*model.RetrievalOutcome, error) {
	var (
		sawCandidates bool // any raw candidate existed at some k
		sawVisible    bool // any candidate survived the clearance filter
		lastBlocked   int
		firstRound    = true
	)

	k := c.cfg.MinTopK
	for {
		if ctx.Err() != nil {
			// Overall deadline fired mid-loop. A non-empty accepted set
			// returns immediately below, so there is nothing to salvage.
			c.log.Warn("retrieval deadline exceeded", slog.Int("k", k))
			return c.exhausted(sawCandidates, sawVisible, lastBlocked), nil
		}

		candidates, err := c.search(ctx, embedding, k)
		if err != nil {
			return nil, helper.NewError("vector search", fmt.Errorf("%w: %w", ErrProviderUnavailable, err))
		}
		if len(candidates) > 0 {
			sawCandidates = true
		}

		visible, blocked := ApplyClearance(candidates, user)
		lastBlocked = blocked
		if len(visible) > 0 {
			sawVisible = true
		}

		accepted := aboveThreshold(visible, c.cfg.ScoreThreshold)

		// A single high-confidence match is sufficient, even when surrounded
		// by rejected noise; escalating further would only dilute precision.
		if len(accepted) >= 1 {
			return c.outcome(model.StatusOK, accepted, blocked, false), nil
		}

		if firstRound && c.reranker.Enabled() {
			out, raw, vis := c.rerankPass(ctx, query, embedding, user)
			sawCandidates = sawCandidates || raw
			sawVisible = sawVisible || vis
			if out != nil {
				return out, nil
			}
			// Rerank pass failed or had no accessible candidates; continue
			// escalating as if reranking were disabled.
		}
		firstRound = false

		if k >= c.cfg.MaxTopK {
			return c.exhausted(sawCandidates, sawVisible, lastBlocked), nil
		}
		k += 2
		if k > c.cfg.MaxTopK {
			k = c.cfg.MaxTopK
		}
	}
}

// rerankPass fetches MaxTopK candidates fresh, filters them, and asks the
// cross-encoder for the top RerankerTopK above RerankerScoreThreshold.
// It returns a nil outcome when the pass could not produce a decision
// (provider failure, timeout, or no accessible candidates), along with
// whether raw and visible candidates were observed.
func (c *Coordinator) rerankPass(ctx context.Context, query string, embedding []float32, user *model.UserClearance) (*model.RetrievalOutcome, bool, bool) {
	candidates, err := c.search(ctx, embedding, c.cfg.MaxTopK)
	if err != nil {
		c.log.Warn("rerank fetch failed, falling back to escalation", slog.String("error", err.Error()))
		return nil, false, false
	}
	raw := len(candidates) > 0

	visible, blocked := ApplyClearance(candidates, user)
	if len(visible) == 0 {
		return nil, raw, false
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
	defer cancel()

	reranked, err := c.reranker.Rerank(rctx, query, dedupeByID(visible), c.cfg.RerankerTopK)
	if err != nil {
		c.log.Warn("reranker failed, falling back to escalation", slog.String("error", err.Error()))
		return nil, raw, true
	}

	kept := make([]*model.PassageCandidate, 0, c.cfg.RerankerTopK)
	for _, cand := range reranked {
		if cand.Score < c.cfg.RerankerScoreThreshold {
			continue
		}
		cand.RetrievalMethod = model.RetrievalMethodReranked
		kept = append(kept, cand)
		if len(kept) == c.cfg.RerankerTopK {
			break
		}
	}

	if len(kept) == 0 {
		return c.outcome(model.StatusLowQuality, nil, blocked, true), raw, true
	}
	return c.outcome(model.StatusOK, kept, blocked, true), raw, true
}

// exhausted classifies a loop that ran out of escalation room: restricted
// content existing without ever becoming visible is a clearance problem,
// everything else is a quality problem.
func (c *Coordinator) exhausted(sawCandidates, sawVisible bool, blocked int) *model.RetrievalOutcome {
	if sawCandidates && !sawVisible {
		return c.outcome(model.StatusInsufficientClearance, nil, blocked, false)
	}
	return c.outcome(model.StatusLowQuality, nil, blocked, false)
}

func (c *Coordinator) outcome(status model.RetrievalStatus, passages []*model.PassageCandidate, blocked int, usedReranker bool) *model.RetrievalOutcome {
	if passages == nil {
		passages = []*model.PassageCandidate{}
	}
	return &model.RetrievalOutcome{
		Status:       status,
		Passages:     passages,
		BlockedCount: blocked,
		UsedReranker: usedReranker,
	}
}

// search queries the vector provider with a per-call timeout, retrying once
// with exponential backoff. The clearance filter is not pushed down to the
// provider: the coordinator needs to observe restricted candidates to tell
// insufficient_clearance apart from low_quality.
func (c *Coordinator) search(ctx context.Context, embedding []float32, k int) ([]*model.PassageCandidate, error) {
	var out []*model.PassageCandidate

	op := func() error {
		sctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
		defer cancel()

		res, err := c.searcher.Search(sctx, embedding, k, nil)
		if err != nil {
			return err
		}
		out = res
		return nil
	}

	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Coordinator) embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32

	op := func() error {
		ectx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
		defer cancel()

		res, err := c.embedder.Embed(ectx, text)
		if err != nil {
			return err
		}
		out = res
		return nil
	}

	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

// retryPolicy allows exactly one retry with short exponential backoff.
func (c *Coordinator) retryPolicy(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 100 * time.Millisecond
	return backoff.WithMaxRetries(backoff.WithContext(expo, ctx), 1)
}

// aboveThreshold returns the candidates at or above the retrieval score threshold.
func aboveThreshold(candidates []*model.PassageCandidate, threshold float64) []*model.PassageCandidate {
	var accepted []*model.PassageCandidate
	for _, c := range candidates {
		if c.SimilarityScore >= threshold {
			accepted = append(accepted, c)
		}
	}
	return accepted
}

// dedupeByID drops duplicate candidates, keeping the first occurrence.
// Duplicates arise from repeat fetches across escalation rounds and from
// merged sub-queries.
func dedupeByID(candidates []*model.PassageCandidate) []*model.PassageCandidate {
	seen := make(map[uuid.UUID]bool, len(candidates))
	out := make([]*model.PassageCandidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
