// Package index retrieves knowledge passages for retrieval-augmented
// answers. The engine treats it as opaque and tolerates empty results.
package index

import "context"

// Passage is an ephemeral retrieval result; the core never persists it.
type Passage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Index answers similarity queries, most relevant first.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]Passage, error)
	// Ready reports whether the index holds any passages. An index that is
	// not ready makes the engine answer with a fixed placeholder instead of
	// failing.
	Ready(ctx context.Context) bool
}

// Reloader is implemented by indexes that can refresh their view of the
// corpus after an external ingestion run.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Embedder turns query text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
