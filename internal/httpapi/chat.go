package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/minseokoh/myeongshim/internal/consult"
	"github.com/minseokoh/myeongshim/internal/saju"
)

type verifyRequest struct {
	AccessKey string `json:"access_key"`
}

type verifyResponse struct {
	Valid            bool  `json:"valid"`
	Master           bool  `json:"master,omitempty"`
	OpenEnded        bool  `json:"open_ended"`
	RemainingSeconds int64 `json:"remaining_seconds"`
	Balance          int   `json:"balance"`
}

// handleVerify reports key status without starting the usage window.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.AccessKey) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "access_key is required")
		return
	}

	res, err := s.svc.Verify(r.Context(), req.AccessKey)
	if err != nil {
		status, code := statusForError(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, verifyResponse{
		Valid:            res.Valid,
		Master:           res.Master,
		OpenEnded:        res.OpenEnded,
		RemainingSeconds: int64(res.Remaining.Seconds()),
		Balance:          res.Balance,
	})
}

type chatRequest struct {
	AccessKey string      `json:"access_key"`
	Text      string      `json:"text"`
	Facts     *saju.Facts `json:"facts,omitempty"`
	Stream    bool        `json:"stream"`
}

type chatResponse struct {
	SessionID        string   `json:"session_id"`
	Reply            string   `json:"reply"`
	Sources          []string `json:"sources"`
	Balance          int      `json:"balance"`
	RemainingSeconds int64    `json:"remaining_seconds"`
	Blocked          bool     `json:"blocked,omitempty"`
}

// handleChat answers one question. With stream=true the deltas are sent as
// server-sent events and the final payload arrives as a "done" event;
// otherwise the full answer is returned as one JSON document.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.AccessKey) == "" || strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "access_key and text are required")
		return
	}

	creq := consult.ChatRequest{
		AccessKey: req.AccessKey,
		Input:     req.Text,
		Facts:     req.Facts,
		TopK:      s.cfg.IndexTopK,
	}

	if !req.Stream {
		res, err := s.svc.Chat(r.Context(), creq, nil)
		if err != nil {
			status, code := statusForError(err)
			respondError(w, status, code, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, toChatResponse(res))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	res, err := s.svc.Chat(r.Context(), creq, func(delta string) error {
		return writeSSE(w, flusher, "delta", map[string]string{"text_delta": delta})
	})
	if err != nil {
		_, code := statusForError(err)
		_ = writeSSE(w, flusher, "error", map[string]string{"code": code, "error": err.Error()})
		return
	}
	_ = writeSSE(w, flusher, "done", toChatResponse(res))
}

func toChatResponse(res consult.ChatResult) chatResponse {
	return chatResponse{
		SessionID:        res.SessionID,
		Reply:            res.Reply,
		Sources:          res.Sources,
		Balance:          res.Balance,
		RemainingSeconds: int64(res.Remaining.Seconds()),
		Blocked:          res.Blocked,
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
