// Package compactor keeps conversational context bounded: a rolling
// one-sentence summary of the older history plus a fixed window of recent
// turns.
package compactor

import (
	"context"
	"fmt"
	"strings"

	"github.com/minseokoh/myeongshim/internal/brain"
	"github.com/minseokoh/myeongshim/internal/store"
)

const (
	// summarizeThreshold is strict: resummarization re-triggers on every
	// qualifying turn because no already-summarized flag is tracked.
	summarizeThreshold = 10
	recentWindow       = 5
)

// Context is the condensed history handed to the answer engine.
type Context struct {
	Summary string
	Recent  []store.Turn
}

type Compactor struct {
	store store.Store
	model brain.Adapter
}

func New(s store.Store, model brain.Adapter) *Compactor {
	return &Compactor{store: s, model: model}
}

// Context returns the current rolling summary (empty if none) and the most
// recent turns in chronological order.
func (c *Compactor) Context(ctx context.Context, sessionID string) (Context, error) {
	summary, err := c.store.Summary(ctx, sessionID)
	if err != nil {
		return Context{}, fmt.Errorf("load summary: %w", err)
	}
	recent, err := c.store.RecentTurns(ctx, sessionID, recentWindow)
	if err != nil {
		return Context{}, fmt.Errorf("load recent turns: %w", err)
	}
	return Context{Summary: summary, Recent: recent}, nil
}

// MaybeResummarize overwrites the rolling summary with a one-sentence
// characterization of the client and topic once the history grows past the
// threshold. It reports whether a summarization ran. Callers treat failures
// as best-effort: log, swallow, retry on the next qualifying turn.
func (c *Compactor) MaybeResummarize(ctx context.Context, sessionID string) (bool, error) {
	count, err := c.store.CountTurns(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("count turns: %w", err)
	}
	if count <= summarizeThreshold {
		return false, nil
	}

	turns, err := c.store.Turns(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("load history: %w", err)
	}

	resp, err := c.model.StreamResponse(ctx, brain.GenerateRequest{
		SessionID: sessionID,
		Prompt:    summaryPrompt(turns),
	}, nil)
	if err != nil {
		return false, fmt.Errorf("summarize history: %w", err)
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return false, fmt.Errorf("summarize history: model returned empty text")
	}

	if err := c.store.UpdateSummary(ctx, sessionID, summary); err != nil {
		return false, fmt.Errorf("save summary: %w", err)
	}
	return true, nil
}

func summaryPrompt(turns []store.Turn) string {
	var history strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&history, "%s: %s\n", t.Role, t.Content)
	}

	return fmt.Sprintf(`[System]
Analyze the following consultation history.
Summarize the client's key characteristics and the main counseling topic in ONE sentence.

[History]
%s
[Summary]`, history.String())
}
