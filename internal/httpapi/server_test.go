package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/minseokoh/myeongshim/internal/brain"
	"github.com/minseokoh/myeongshim/internal/compactor"
	"github.com/minseokoh/myeongshim/internal/config"
	"github.com/minseokoh/myeongshim/internal/consult"
	"github.com/minseokoh/myeongshim/internal/engine"
	"github.com/minseokoh/myeongshim/internal/gate"
	"github.com/minseokoh/myeongshim/internal/ledger"
	"github.com/minseokoh/myeongshim/internal/protocol"
	"github.com/minseokoh/myeongshim/internal/store"
)

type fixedModel struct{ text string }

func (m *fixedModel) StreamResponse(_ context.Context, _ brain.GenerateRequest, onDelta brain.DeltaHandler) (brain.GenerateResponse, error) {
	if onDelta != nil {
		if err := onDelta(m.text); err != nil {
			return brain.GenerateResponse{}, err
		}
	}
	return brain.GenerateResponse{Text: m.text}, nil
}

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	model := &fixedModel{text: "결론: 괜찮습니다."}
	eng := engine.New(model, nil)
	svc := consult.New(st, gate.New(st), ledger.New(st), compactor.New(st, model), eng, nil)
	cfg := config.Config{
		IndexTopK:                 3,
		DefaultKeyDurationMinutes: 30,
		DefaultKeyCredits:         10,
		AllowAnyOrigin:            true,
	}
	return New(cfg, svc, eng, st, nil), st
}

func seedKey(t *testing.T, st *store.InMemoryStore, key string, credits, durationMinutes int) {
	t.Helper()
	if _, err := st.CreateAccount(context.Background(), store.Account{
		AccessKey:             key,
		CreditBalance:         credits,
		WindowDurationMinutes: durationMinutes,
	}); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}

func TestVerifyEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	seedKey(t, st, "ABC-123", 5, 30)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/auth/verify", "application/json",
		strings.NewReader(`{"access_key":"ABC-123"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !body.Valid || !body.OpenEnded || body.Balance != 5 {
		t.Fatalf("verify response = %+v", body)
	}

	// Verifying must not start the window.
	account, err := st.AccountByKey(context.Background(), "ABC-123")
	if err != nil {
		t.Fatalf("AccountByKey() error = %v", err)
	}
	if account.WindowStartedAt != nil {
		t.Fatalf("verify started the usage window")
	}
}

func TestVerifyEndpointUnknownKey(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/auth/verify", "application/json",
		strings.NewReader(`{"access_key":"ZZZ-999"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestChatEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	seedKey(t, st, "ABC-123", 5, 30)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat", "application/json",
		strings.NewReader(`{"access_key":"ABC-123","text":"이직해도 될까요?"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if body.Reply != "결론: 괜찮습니다." {
		t.Fatalf("reply = %q", body.Reply)
	}
	if body.Balance != 4 {
		t.Fatalf("balance = %d, want 4", body.Balance)
	}
	if body.SessionID == "" {
		t.Fatalf("session_id missing")
	}
}

func TestChatEndpointInsufficientCredit(t *testing.T) {
	srv, st := newTestServer(t)
	seedKey(t, st, "ABC-123", 0, 30)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat", "application/json",
		strings.NewReader(`{"access_key":"ABC-123","text":"질문"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", resp.StatusCode)
	}
}

func TestChatEndpointStreamsSSE(t *testing.T) {
	srv, st := newTestServer(t)
	seedKey(t, st, "ABC-123", 5, 30)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat", "application/json",
		strings.NewReader(`{"access_key":"ABC-123","text":"질문","stream":true}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var raw strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		raw.Write(buf[:n])
		if err != nil {
			break
		}
	}
	body := raw.String()
	if !strings.Contains(body, "event: delta") {
		t.Fatalf("stream missing delta events:\n%s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("stream missing done event:\n%s", body)
	}
}

func TestIssueKeyRequiresMaster(t *testing.T) {
	srv, st := newTestServer(t)
	seedKey(t, st, "ABC-123", 5, 30)     // regular key
	seedKey(t, st, "MST-KEY", 1, 600000) // master key
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/admin/keys", "application/json",
		strings.NewReader(`{"admin_key":"ABC-123"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("regular key status = %d, want 403", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/v1/admin/keys", "application/json",
		strings.NewReader(`{"admin_key":"MST-KEY","duration_minutes":1440,"credits":20}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("master key status = %d, want 201", resp.StatusCode)
	}

	var body issueKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !regexp.MustCompile(`^[A-HJ-NP-Z2-9]{3}-[A-HJ-NP-Z2-9]{3}$`).MatchString(body.AccessKey) {
		t.Fatalf("access key format = %q", body.AccessKey)
	}
	if body.DurationMinutes != 1440 || body.Credits != 20 {
		t.Fatalf("issued key = %+v", body)
	}

	// The issued key works.
	if _, err := st.AccountByKey(context.Background(), body.AccessKey); err != nil {
		t.Fatalf("issued key not stored: %v", err)
	}
}

func TestReloadRequiresMaster(t *testing.T) {
	srv, st := newTestServer(t)
	seedKey(t, st, "MST-KEY", 1, 600000)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/admin/reload", "application/json",
		strings.NewReader(`{"admin_key":"MST-KEY"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/v1/admin/reload", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing key status = %d, want 401", resp.StatusCode)
	}
}

func TestChatWS(t *testing.T) {
	srv, st := newTestServer(t)
	seedKey(t, st, "ABC-123", 5, 30)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(protocol.ClientChat{
		Type:      protocol.TypeClientChat,
		AccessKey: "ABC-123",
		Text:      "이직해도 될까요?",
	}); err != nil {
		t.Fatalf("write error = %v", err)
	}

	var sawDelta bool
	for {
		var env map[string]any
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read error = %v", err)
		}
		switch env["type"] {
		case string(protocol.TypeAnswerDelta):
			sawDelta = true
		case string(protocol.TypeAnswerDone):
			if !sawDelta {
				t.Fatalf("answer_done arrived before any answer_delta")
			}
			if env["text"] != "결론: 괜찮습니다." {
				t.Fatalf("text = %v", env["text"])
			}
			if int(env["balance"].(float64)) != 4 {
				t.Fatalf("balance = %v, want 4", env["balance"])
			}
			return
		case string(protocol.TypeErrorEvent):
			t.Fatalf("unexpected error event: %v", env)
		}
	}
}
