package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no model backend is
// configured.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) StreamResponse(
	ctx context.Context,
	req GenerateRequest,
	onDelta DeltaHandler,
) (GenerateResponse, error) {
	select {
	case <-ctx.Done():
		return GenerateResponse{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return GenerateResponse{}, err
		}
	}
	return GenerateResponse{Text: text}, nil
}

func buildMockReply(req GenerateRequest) string {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "질문을 조금 더 자세히 들려주세요."
	}

	// Echo the last prompt line so tests can see what reached the model.
	lines := strings.Split(prompt, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		last = prompt
	}
	return fmt.Sprintf("[상담 답변] %s", last)
}
