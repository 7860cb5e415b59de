package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientChat    MessageType = "client_chat"
	TypeClientControl MessageType = "client_control"
	TypeAnswerDelta   MessageType = "answer_delta"
	TypeAnswerDone    MessageType = "answer_done"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientChat is one user question sent over the socket. The access key
// travels per message so a reconnect needs no handshake state.
type ClientChat struct {
	Type      MessageType     `json:"type"`
	AccessKey string          `json:"access_key"`
	Text      string          `json:"text"`
	Facts     json.RawMessage `json:"facts,omitempty"`
	TSMs      int64           `json:"ts_ms"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

// AnswerDelta streams one generated fragment.
type AnswerDelta struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TextDelta string      `json:"text_delta"`
}

// AnswerDone closes a turn: full text, cited sources, remaining balance.
type AnswerDone struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Sources   []string    `json:"sources"`
	Balance   int         `json:"balance"`
	// RemainingSeconds is the usage window left; zero when open-ended.
	RemainingSeconds int64 `json:"remaining_seconds"`
	Blocked          bool  `json:"blocked,omitempty"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientChat:
		var msg ClientChat
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.AccessKey == "" || msg.Text == "" {
			return nil, errors.New("invalid client_chat")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
