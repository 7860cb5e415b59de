// Package brain bridges the consultation runtime with the generative model.
package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is one prior conversational turn handed to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the normalized request sent to the model backend.
type GenerateRequest struct {
	SessionID string    `json:"session_id,omitempty"`
	Prompt    string    `json:"prompt"`
	History   []Message `json:"history,omitempty"`
}

// GenerateResponse is the final response after streaming deltas.
type GenerateResponse struct {
	Text string `json:"text"`
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// Adapter produces model completions, optionally streaming them chunk by
// chunk. The final Text always equals the concatenation of delivered deltas.
type Adapter interface {
	StreamResponse(ctx context.Context, req GenerateRequest, onDelta DeltaHandler) (GenerateResponse, error)
}

// Config controls adapter construction.
type Config struct {
	Mode    string
	HTTPURL string
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPAdapter(cfg.HTTPURL), nil
		}
		return NewMockAdapter(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("model HTTP url is required for http mode")
		}
		return NewHTTPAdapter(cfg.HTTPURL), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported model adapter mode %q", cfg.Mode)
	}
}
