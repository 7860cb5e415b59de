// Package engine produces grounded consultation answers. It merges
// retrieved knowledge passages with structured saju facts and condensed
// conversation context, keeping the retrieval query decoupled from the
// augmented generation prompt.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/minseokoh/myeongshim/internal/brain"
	"github.com/minseokoh/myeongshim/internal/compactor"
	"github.com/minseokoh/myeongshim/internal/index"
	"github.com/minseokoh/myeongshim/internal/saju"
)

// notReadyReply is returned verbatim when a knowledge index is configured
// but holds no passages yet.
const notReadyReply = "아직 지식 베이스가 준비되지 않았습니다. 자료를 업로드하고 학습시켜 주세요."

const systemTemplate = `# Role
당신은 명리학과 심리학을 융합한 명심코칭 AI입니다.
참고 자료와 대화 맥락을 바탕으로 내담자의 질문에 따뜻하고 통찰력 있게 답변하세요.

# Output Format
- 결론: (핵심 조언)
- 분석: (사주와 심리 연결)
- 제안: (구체적인 실행 가이드)`

// Request carries everything the engine needs for one answer.
type Request struct {
	SessionID string
	Context   compactor.Context
	Input     string
	Facts     *saju.Facts
	TopK      int
}

// Answer is the generated text plus the deduplicated source identifiers of
// the passages that were injected, in order of first appearance.
type Answer struct {
	Text    string
	Sources []string
}

type Engine struct {
	model brain.Adapter
	idx   atomic.Pointer[indexSlot]
}

// indexSlot wraps the interface so the handle can be swapped atomically.
type indexSlot struct {
	idx index.Index
}

// New builds an engine. idx may be nil: without a knowledge index the engine
// answers from conversation context alone.
func New(model brain.Adapter, idx index.Index) *Engine {
	e := &Engine{model: model}
	if idx != nil {
		e.idx.Store(&indexSlot{idx: idx})
	}
	return e
}

// SetIndex swaps the index handle. In-flight answers keep the handle they
// already loaded; only subsequent calls see the new one.
func (e *Engine) SetIndex(idx index.Index) {
	if idx == nil {
		e.idx.Store(nil)
		return
	}
	e.idx.Store(&indexSlot{idx: idx})
}

// Reload refreshes the index view after an external ingestion run. Safe to
// call while answers are in flight; with an unchanged corpus it is a no-op
// for cited sources.
func (e *Engine) Reload(ctx context.Context) error {
	slot := e.idx.Load()
	if slot == nil {
		return nil
	}
	if r, ok := slot.idx.(index.Reloader); ok {
		if err := r.Reload(ctx); err != nil {
			return fmt.Errorf("reload index: %w", err)
		}
	}
	e.idx.Store(slot)
	return nil
}

// Answer generates a reply, streaming deltas through onDelta. The retrieval
// query is the raw user question only; saju facts are appended to the
// generation prompt after the question and never reach the index.
func (e *Engine) Answer(ctx context.Context, req Request, onDelta brain.DeltaHandler) (Answer, error) {
	var passages []index.Passage
	if slot := e.idx.Load(); slot != nil {
		if !slot.idx.Ready(ctx) {
			if onDelta != nil {
				if err := onDelta(notReadyReply); err != nil {
					return Answer{}, err
				}
			}
			return Answer{Text: notReadyReply, Sources: []string{}}, nil
		}

		var err error
		passages, err = slot.idx.Search(ctx, req.Input, req.TopK)
		if err != nil {
			return Answer{}, fmt.Errorf("retrieve passages: %w", err)
		}
	}

	resp, err := e.model.StreamResponse(ctx, brain.GenerateRequest{
		SessionID: req.SessionID,
		Prompt:    buildPrompt(req, passages),
	}, onDelta)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	return Answer{Text: resp.Text, Sources: citedSources(passages)}, nil
}

func buildPrompt(req Request, passages []index.Passage) string {
	var b strings.Builder
	b.WriteString(systemTemplate)
	b.WriteString("\n")

	if req.Context.Summary != "" {
		fmt.Fprintf(&b, "\n[이전 상담 요약]\n%s\n", req.Context.Summary)
	}

	if len(req.Context.Recent) > 0 {
		b.WriteString("\n[최근 대화]\n")
		for _, t := range req.Context.Recent {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
	}

	if len(passages) > 0 {
		b.WriteString("\n[참고 자료]\n")
		for _, p := range passages {
			fmt.Fprintf(&b, "- %s (출처: %s)\n", p.Text, p.Source)
		}
	}

	fmt.Fprintf(&b, "\n질문: %s\n", req.Input)

	// Facts augment generation only; they were excluded from retrieval.
	if block := req.Facts.PromptBlock(); block != "" {
		b.WriteString("\n")
		b.WriteString(block)
		b.WriteString("\n")
	}

	b.WriteString("\n답변:")
	return b.String()
}

func citedSources(passages []index.Passage) []string {
	sources := make([]string, 0, len(passages))
	seen := make(map[string]bool, len(passages))
	for _, p := range passages {
		if p.Source == "" || seen[p.Source] {
			continue
		}
		seen[p.Source] = true
		sources = append(sources, p.Source)
	}
	return sources
}
