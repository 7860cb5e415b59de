package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minseokoh/myeongshim/internal/consult"
	"github.com/minseokoh/myeongshim/internal/protocol"
	"github.com/minseokoh/myeongshim/internal/saju"
)

// handleChatWS runs a consultation over a websocket. Questions are answered
// one at a time per connection; deltas stream as answer_delta frames and
// every turn closes with answer_done or error_event.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	send := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			if !send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			}) {
				break
			}
			continue
		}

		switch msg := parsed.(type) {
		case protocol.ClientControl:
			if msg.Action == "ping" {
				if !send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "pong"}) {
					return
				}
			}
		case protocol.ClientChat:
			if !s.answerOverWS(ctx, msg, send) {
				return
			}
		}
	}

	cancel()
	<-writerDone
}

func (s *Server) answerOverWS(ctx context.Context, msg protocol.ClientChat, send func(any) bool) bool {
	var facts *saju.Facts
	if len(msg.Facts) > 0 {
		facts = &saju.Facts{}
		if err := json.Unmarshal(msg.Facts, facts); err != nil {
			return send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: "malformed facts payload",
			})
		}
	}

	res, err := s.svc.Chat(ctx, consult.ChatRequest{
		AccessKey: msg.AccessKey,
		Input:     msg.Text,
		Facts:     facts,
		TopK:      s.cfg.IndexTopK,
	}, func(delta string) error {
		if !send(protocol.AnswerDelta{Type: protocol.TypeAnswerDelta, TextDelta: delta}) {
			return context.Canceled
		}
		return nil
	})
	if err != nil {
		status, code := statusForError(err)
		return send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			Code:      code,
			Retryable: status == http.StatusServiceUnavailable,
			Detail:    err.Error(),
		})
	}

	return send(protocol.AnswerDone{
		Type:             protocol.TypeAnswerDone,
		SessionID:        res.SessionID,
		Text:             res.Reply,
		Sources:          res.Sources,
		Balance:          res.Balance,
		RemainingSeconds: int64(res.Remaining.Seconds()),
		Blocked:          res.Blocked,
	})
}
