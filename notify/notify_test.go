package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	return cfg
}

func TestWebhookNotifier_Welcome(t *testing.T) {
	var got WelcomePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %s", r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.WebhookURL = server.URL
	n, err := NewWebhookNotifier(cfg, server.Client(), nil)
	if err != nil {
		t.Fatalf("NewWebhookNotifier() error = %v", err)
	}

	if err := n.Welcome(context.Background(), "jane@example.com", "Jane Doe"); err != nil {
		t.Fatalf("Welcome() error = %v", err)
	}
	want := WelcomePayload{Email: "jane@example.com", DisplayName: "Jane Doe", AppName: "Invoice Easy"}
	if got != want {
		t.Errorf("payload = %+v, want %+v", got, want)
	}
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.WebhookURL = server.URL
	n, _ := NewWebhookNotifier(cfg, server.Client(), nil)

	if err := n.Welcome(context.Background(), "jane@example.com", "Jane"); err != nil {
		t.Fatalf("Welcome() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWebhookNotifier_GivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.WebhookURL = server.URL
	cfg.MaxRetries = 1
	n, _ := NewWebhookNotifier(cfg, server.Client(), nil)

	err := n.Welcome(context.Background(), "jane@example.com", "Jane")
	if !errors.Is(err, ErrMaxRetriesExceeded) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Welcome() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWebhookNotifier_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.WebhookURL = server.URL
	n, _ := NewWebhookNotifier(cfg, server.Client(), nil)

	if err := n.Welcome(context.Background(), "jane@example.com", "Jane"); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("Welcome() error = %v, want ErrInvalidResponse", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSlackNotifier_Welcome(t *testing.T) {
	var msg SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&msg)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.SlackWebhookURL = server.URL
	cfg.SlackChannel = "#signups"
	n, err := NewSlackNotifier(cfg, server.Client(), nil)
	if err != nil {
		t.Fatalf("NewSlackNotifier() error = %v", err)
	}

	if err := n.Welcome(context.Background(), "jane@example.com", "Jane <script>"); err != nil {
		t.Fatalf("Welcome() error = %v", err)
	}
	if msg.Channel != "#signups" || msg.Username != "Beaver Sign-in" {
		t.Errorf("message = %+v", msg)
	}
	if !strings.Contains(msg.Text, "Jane &lt;script&gt;") || !strings.Contains(msg.Text, "&lt;jane@example.com&gt;") {
		t.Errorf("text not escaped: %s", msg.Text)
	}
}

func TestSlackNotifier_RejectsUnexpectedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.SlackWebhookURL = server.URL
	n, _ := NewSlackNotifier(cfg, server.Client(), nil)
	if err := n.Welcome(context.Background(), "a@b.c", "A"); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Welcome() error = %v, want ErrInvalidResponse", err)
	}
}

func TestContextCanceledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.WebhookURL = server.URL
	cfg.RetryDelay = time.Hour
	cfg.RetryMaxDelay = time.Hour
	n, _ := NewWebhookNotifier(cfg, server.Client(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := n.Welcome(ctx, "a@b.c", "A"); !errors.Is(err, ErrContextCanceled) {
		t.Errorf("Welcome() error = %v, want ErrContextCanceled", err)
	}
}

type stubWelcomer struct {
	calls int
	err   error
}

func (s *stubWelcomer) Welcome(context.Context, string, string) error {
	s.calls++
	return s.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a, b := &stubWelcomer{err: boom}, &stubWelcomer{}
	err := Multi{a, b}.Welcome(context.Background(), "a@b.c", "A")
	if !errors.Is(err, boom) {
		t.Errorf("Welcome() error = %v, want boom", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d/%d, want every notifier called", a.calls, b.calls)
	}
}

func TestNew(t *testing.T) {
	w, err := New(Config{}, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := w.(Nop); !ok {
		t.Errorf("New() = %T, want Nop", w)
	}

	w, _ = New(Config{WebhookURL: "http://localhost/hook"}, nil, nil)
	if _, ok := w.(*WebhookNotifier); !ok {
		t.Errorf("New() = %T, want *WebhookNotifier", w)
	}

	w, _ = New(Config{WebhookURL: "http://localhost/hook", SlackWebhookURL: "http://localhost/slack"}, nil, nil)
	if m, ok := w.(Multi); !ok || len(m) != 2 {
		t.Errorf("New() = %T, want Multi of 2", w)
	}

	if _, err := NewWebhookNotifier(Config{}, nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewWebhookNotifier() error = %v, want ErrInvalidConfig", err)
	}
}
