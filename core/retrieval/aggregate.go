package retrieval

import (
	"context"
	"sort"

	"github.com/hmeierhoff/clearsearch/model"
	"golang.org/x/sync/errgroup"
)

// RetrieveAll runs each sub-query through the full coordinator algorithm
// concurrently and aggregates the outcomes. Each sub-query task owns its own
// candidate lists; results meet only in the merge.
func (c *Coordinator) RetrieveAll(ctx context.Context, queries []string, user *model.UserClearance) (*model.RetrievalOutcome, error) {
	if len(queries) == 1 {
		return c.Retrieve(ctx, queries[0], user)
	}

	outcomes := make([]*model.RetrievalOutcome, len(queries))
	g, gctx := errgroup.WithContext(ctx)

	for i, q := range queries {
		g.Go(func() error {
			out, err := c.Retrieve(gctx, q, user)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return MergeOutcomes(outcomes), nil
}

// MergeOutcomes combines per-sub-query outcomes: candidates are deduplicated
// by id, re-sorted by score, and counters are combined. Order across
// sub-queries carries no meaning, so the merge is order-independent.
//
// Status precedence: any ok wins; otherwise insufficient_clearance beats
// low_quality so callers can render the access message.
func MergeOutcomes(outcomes []*model.RetrievalOutcome) *model.RetrievalOutcome {
	merged := &model.RetrievalOutcome{
		Status:   model.StatusLowQuality,
		Passages: []*model.PassageCandidate{},
	}

	var all []*model.PassageCandidate
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		merged.BlockedCount += o.BlockedCount
		merged.UsedReranker = merged.UsedReranker || o.UsedReranker
		merged.FallbackUsed = merged.FallbackUsed || o.FallbackUsed

		if o.Status == model.StatusOK {
			merged.Status = model.StatusOK
		} else if o.Status == model.StatusInsufficientClearance && merged.Status != model.StatusOK {
			merged.Status = model.StatusInsufficientClearance
		}

		all = append(all, o.Passages...)
	}

	merged.Passages = dedupeByID(all)
	sort.SliceStable(merged.Passages, func(i, j int) bool {
		return merged.Passages[i].Score > merged.Passages[j].Score
	})

	return merged
}
