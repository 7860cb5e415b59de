package index

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryIndex ranks passages by token overlap with the query. It exists
// for local/dev use and tests; relevance quality is not the point.
type InMemoryIndex struct {
	mu       sync.RWMutex
	passages []Passage
}

func NewInMemoryIndex(passages ...Passage) *InMemoryIndex {
	return &InMemoryIndex{passages: passages}
}

// SetPassages replaces the corpus; it stands in for an ingestion run.
func (x *InMemoryIndex) SetPassages(passages []Passage) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.passages = passages
}

func (x *InMemoryIndex) Ready(_ context.Context) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.passages) > 0
}

func (x *InMemoryIndex) Reload(_ context.Context) error { return nil }

func (x *InMemoryIndex) Search(_ context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 {
		k = 3
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	queryTokens := tokenize(query)
	scored := make([]Passage, 0, len(x.passages))
	for _, p := range x.passages {
		score := overlap(queryTokens, tokenize(p.Text))
		if score <= 0 {
			continue
		}
		p.Score = score
		scored = append(scored, p)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		tokens[strings.Trim(f, ".,!?:;()[]\"'")] = true
	}
	delete(tokens, "")
	return tokens
}

func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	var hits int
	for tok := range a {
		if b[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
