package retrieval

import (
	"context"
	"regexp"
	"strings"
)

// Decomposer splits a compound query into independently retrievable
// sub-queries. Implementations must return a non-empty list; a query judged
// atomic comes back as a single element.
type Decomposer interface {
	Decompose(ctx context.Context, query string) ([]string, error)
}

// PassthroughDecomposer returns the query unchanged. Selected at construction
// time when decomposition is disabled.
type PassthroughDecomposer struct{}

func (PassthroughDecomposer) Decompose(_ context.Context, query string) ([]string, error) {
	return []string{query}, nil
}

// HeuristicDecomposer splits compound questions on sentence and coordination
// boundaries. It needs no external provider, so its only failure mode is the
// caller's timeout.
type HeuristicDecomposer struct {
	// MaxSubQueries caps the fan-out per query.
	MaxSubQueries int
}

// NewHeuristicDecomposer creates a decomposer with a fan-out cap of 4.
func NewHeuristicDecomposer() *HeuristicDecomposer {
	return &HeuristicDecomposer{MaxSubQueries: 4}
}

var coordinationRe = regexp.MustCompile(`(?i)\s*(?:;|\band also\b|\bas well as\b)\s*`)

func (d *HeuristicDecomposer) Decompose(ctx context.Context, query string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var parts []string
	for _, sentence := range splitQuestions(query) {
		for _, part := range coordinationRe.Split(sentence, -1) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			parts = append(parts, part)
		}
	}

	if len(parts) <= 1 {
		// Atomic query
		return []string{query}, nil
	}

	max := d.MaxSubQueries
	if max <= 0 {
		max = 4
	}
	if len(parts) > max {
		parts = parts[:max]
	}
	return parts, nil
}

// splitQuestions cuts a query into question-terminated segments, keeping the
// question marks.
func splitQuestions(query string) []string {
	var out []string
	rest := query
	for {
		i := strings.IndexRune(rest, '?')
		if i < 0 {
			if s := strings.TrimSpace(rest); s != "" {
				out = append(out, s)
			}
			return out
		}
		if s := strings.TrimSpace(rest[:i+1]); s != "" {
			out = append(out, s)
		}
		rest = rest[i+1:]
	}
}
