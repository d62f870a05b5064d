package model

import (
	"github.com/google/uuid"
)

// SecurityLevel is the ordinal access tier (1-4) gating passage visibility.
type SecurityLevel int

const (
	LevelGeneral            SecurityLevel = 1
	LevelRestricted         SecurityLevel = 2
	LevelConfidential       SecurityLevel = 3
	LevelHighlyConfidential SecurityLevel = 4
)

// Valid reports whether the level is within the defined hierarchy.
func (l SecurityLevel) Valid() bool {
	return l >= LevelGeneral && l <= LevelHighlyConfidential
}

func (l SecurityLevel) String() string {
	switch l {
	case LevelGeneral:
		return "general"
	case LevelRestricted:
		return "restricted"
	case LevelConfidential:
		return "confidential"
	case LevelHighlyConfidential:
		return "highly_confidential"
	default:
		return "unknown"
	}
}

// RetrievalMethod records how a candidate ended up in an outcome.
type RetrievalMethod string

const (
	RetrievalMethodVector   RetrievalMethod = "vector"
	RetrievalMethodReranked RetrievalMethod = "reranked"
)

// PassageCandidate is a text passage returned by the vector search provider.
// Candidates are immutable once returned, except for Score which the
// reranker may overwrite.
type PassageCandidate struct {
	ID                   uuid.UUID       `json:"id"`
	Content              string          `json:"content"`
	Source               string          `json:"source,omitempty"`
	SimilarityScore      float64         `json:"similarity_score"`
	Score                float64         `json:"score"`
	SecurityLevel        SecurityLevel   `json:"security_level"`
	DepartmentID         string          `json:"department_id,omitempty"`
	DepartmentRestricted bool            `json:"department_restricted"`
	Metadata             Metadata        `json:"metadata,omitempty"`
	RetrievalMethod      RetrievalMethod `json:"retrieval_method,omitempty"`
}
