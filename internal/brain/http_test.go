package brain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/minseokoh/myeongshim/internal/reliability"
)

func TestHTTPAdapterConsumeStreaming(t *testing.T) {
	a := NewHTTPAdapter("http://example.test")
	stream := strings.NewReader(strings.Join([]string{
		"data: {\"delta\":\"운세\"}",
		"",
		"data: {\"delta\":\"입니다\"}",
		"",
		"data: [DONE]",
		"",
	}, "\n"))

	var deltas []string
	resp, err := a.consumeStreaming(stream, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("consumeStreaming() error = %v", err)
	}
	if resp.Text != "운세입니다" {
		t.Fatalf("resp.Text = %q, want %q", resp.Text, "운세입니다")
	}
	if strings.Join(deltas, "") != resp.Text {
		t.Fatalf("final text %q != concatenated deltas %q", resp.Text, strings.Join(deltas, ""))
	}
}

func TestHTTPAdapterPlainJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"안녕하세요"}`))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	resp, err := a.StreamResponse(context.Background(), GenerateRequest{Prompt: "hi"}, nil)
	if err != nil {
		t.Fatalf("StreamResponse() error = %v", err)
	}
	if resp.Text != "안녕하세요" {
		t.Fatalf("resp.Text = %q", resp.Text)
	}
}

func TestHTTPAdapterClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		a := NewHTTPAdapter(srv.URL)
		_, err := a.StreamResponse(context.Background(), GenerateRequest{Prompt: "hi"}, nil)
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if reliability.IsTransient(err) != tc.transient {
			t.Fatalf("status %d: IsTransient = %v, want %v", tc.status, reliability.IsTransient(err), tc.transient)
		}
	}
}

func TestNewAdapterModes(t *testing.T) {
	if _, err := NewAdapter(Config{Mode: "http"}); err == nil {
		t.Fatalf("http mode without url should fail")
	}
	if _, err := NewAdapter(Config{Mode: "nope"}); err == nil {
		t.Fatalf("unknown mode should fail")
	}

	a, err := NewAdapter(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("auto mode error = %v", err)
	}
	if _, ok := a.(*MockAdapter); !ok {
		t.Fatalf("auto mode without url should fall back to mock, got %T", a)
	}

	a, err = NewAdapter(Config{Mode: "auto", HTTPURL: "http://localhost:9999"})
	if err != nil {
		t.Fatalf("auto mode error = %v", err)
	}
	if _, ok := a.(*HTTPAdapter); !ok {
		t.Fatalf("auto mode with url should pick http, got %T", a)
	}
}
