package tokenexchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"voicelink/internal/domain"
	"voicelink/internal/observability/metrics"
)

func newTestClient(url string, timeout time.Duration) *Client {
	c := NewClient(Config{URL: url, AuthToken: "user-session", Timeout: timeout}, metrics.New(prometheus.NewRegistry()))
	c.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return c
}

func TestRequestTokenSendsConfigAndParsesCredential(t *testing.T) {
	t.Parallel()

	var got tokenRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":     "ek_abc123",
			"expiresIn": 60,
			"userId":    "u1",
		})
	}))
	defer server.Close()

	cfg := domain.DefaultSessionConfig()
	cfg.Voice = domain.VoiceNova
	cfg.AgentPreset = domain.PresetTutor

	cred, err := newTestClient(server.URL, time.Second).RequestToken(context.Background(), cfg)
	if err != nil {
		t.Fatalf("request token: %v", err)
	}
	if cred.Token != "ek_abc123" {
		t.Fatalf("unexpected token %q", cred.Token)
	}
	if want := time.Unix(1_700_000_060, 0); !cred.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, cred.ExpiresAt)
	}
	if auth != "Bearer user-session" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got.Model != domain.DefaultModel || got.Voice != "nova" || got.ToolChoice != "auto" || got.MaxResponseTokens != 4096 {
		t.Fatalf("unexpected request body %+v", got)
	}
	if got.Instructions != domain.PresetTutor.Instructions() {
		t.Fatalf("expected preset instructions in request")
	}
	if got.Tools == nil {
		t.Fatalf("expected tools to be an empty array, not null")
	}
}

func TestRequestTokenNon2xxCarriesBackendMessage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Voice service not configured"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, time.Second).RequestToken(context.Background(), domain.DefaultSessionConfig())
	var tokenErr *domain.TokenError
	if !errors.As(err, &tokenErr) {
		t.Fatalf("expected TokenError, got %v", err)
	}
	if tokenErr.Status != http.StatusServiceUnavailable || tokenErr.Message != "Voice service not configured" {
		t.Fatalf("unexpected token error %+v", tokenErr)
	}
}

func TestRequestTokenRejectsMalformedTokens(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"wrong prefix": `{"token":"sk_live","expiresIn":60}`,
		"missing":      `{"expiresIn":60}`,
		"not json":     `<html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, time.Second).RequestToken(context.Background(), domain.DefaultSessionConfig())
			if !errors.Is(err, domain.ErrMalformedToken) {
				t.Fatalf("expected ErrMalformedToken, got %v", err)
			}
		})
	}
}

func TestRequestTokenDefaultsExpiry(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"ek_x"}`))
	}))
	defer server.Close()

	cred, err := newTestClient(server.URL, time.Second).RequestToken(context.Background(), domain.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("request token: %v", err)
	}
	if got := cred.ExpiresAt.Sub(cred.IssuedAt); got != 60*time.Second {
		t.Fatalf("expected 60s default lifetime, got %v", got)
	}
}

func TestRequestTokenTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := newTestClient(server.URL, 50*time.Millisecond).RequestToken(context.Background(), domain.DefaultSessionConfig())
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRequestTokenRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := newTestClient("", time.Second).RequestToken(context.Background(), domain.DefaultSessionConfig())
	var tokenErr *domain.TokenError
	if !errors.As(err, &tokenErr) {
		t.Fatalf("expected TokenError, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		_, _ = w.Write([]byte(`{"available":true,"models":["gpt-realtime"],"voices":["alloy","echo"],"features":{"websocket":true,"interruption":true}}`))
	}))
	defer server.Close()

	avail, err := newTestClient(server.URL, time.Second).Probe(context.Background())
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !avail.Available || len(avail.Voices) != 2 || !avail.Features["interruption"] {
		t.Fatalf("unexpected availability %+v", avail)
	}
}
