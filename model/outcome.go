package model

// RetrievalStatus classifies the result of a retrieval call.
type RetrievalStatus string

const (
	// StatusOK means at least one passage cleared quality and access checks.
	StatusOK RetrievalStatus = "ok"
	// StatusLowQuality means no candidate cleared the score threshold after
	// full escalation.
	StatusLowQuality RetrievalStatus = "low_quality"
	// StatusInsufficientClearance means relevant candidates exist but every
	// one of them is restricted for the requesting user.
	StatusInsufficientClearance RetrievalStatus = "insufficient_clearance"
)

// RetrievalOutcome is the per-query result of the coordinator. It is created
// per query (or sub-query), consumed by aggregation and never persisted.
type RetrievalOutcome struct {
	Status       RetrievalStatus     `json:"status"`
	Passages     []*PassageCandidate `json:"passages"`
	BlockedCount int                 `json:"blocked_count"`
	UsedReranker bool                `json:"used_reranker"`
	FallbackUsed bool                `json:"fallback_used,omitempty"`
}
