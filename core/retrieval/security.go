package retrieval

import (
	"github.com/hmeierhoff/clearsearch/model"
)

// ApplyClearance removes candidates the user is not cleared to see and
// reports how many were removed.
//
// It is applied on every retrieval round, even when the provider already
// pre-filtered by metadata; an upstream filter is never trusted to be
// correct. Pure function, no side effects.
func ApplyClearance(candidates []*model.PassageCandidate, user *model.UserClearance) ([]*model.PassageCandidate, int) {
	visible := make([]*model.PassageCandidate, 0, len(candidates))
	blocked := 0

	for _, c := range candidates {
		if user.CanAccess(c) {
			visible = append(visible, c)
		} else {
			blocked++
		}
	}

	return visible, blocked
}
