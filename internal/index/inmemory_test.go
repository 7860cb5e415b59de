package index

import (
	"context"
	"testing"
)

func TestInMemoryIndexSearchRanksByOverlap(t *testing.T) {
	idx := NewInMemoryIndex(
		Passage{Text: "갑목 일간은 곧게 자라는 나무의 성질을 가진다", Source: "saju-basics.pdf"},
		Passage{Text: "재물운은 재성의 흐름으로 읽는다", Source: "wealth.pdf"},
		Passage{Text: "갑목 일간은 리더십이 강하다", Source: "saju-basics.pdf"},
	)

	got, err := idx.Search(context.Background(), "갑목 일간은 어떤 성격인가요", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	for _, p := range got {
		if p.Source != "saju-basics.pdf" {
			t.Fatalf("unexpected source %q in top results", p.Source)
		}
	}
	if got[0].Score < got[1].Score {
		t.Fatalf("results not sorted by score: %v then %v", got[0].Score, got[1].Score)
	}
}

func TestInMemoryIndexReadiness(t *testing.T) {
	idx := NewInMemoryIndex()
	if idx.Ready(context.Background()) {
		t.Fatalf("empty index reported ready")
	}

	idx.SetPassages([]Passage{{Text: "content", Source: "s"}})
	if !idx.Ready(context.Background()) {
		t.Fatalf("populated index not ready")
	}
}

func TestEncodeVector(t *testing.T) {
	got := encodeVector([]float32{0.5, -1, 2})
	if got != "[0.5,-1,2]" {
		t.Fatalf("encodeVector = %q", got)
	}
}
