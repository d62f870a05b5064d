package retrieval

import "errors"

var (
	// ErrProviderUnavailable marks a vector search, embedding or rerank
	// provider that stayed unreachable after the retry budget.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrEmptyQuery is returned for blank query text.
	ErrEmptyQuery = errors.New("empty query")
)
