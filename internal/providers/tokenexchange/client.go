// Package tokenexchange requests short-lived voice session credentials from
// the token backend.
package tokenexchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voicelink/internal/domain"
	"voicelink/internal/observability/logging"
	"voicelink/internal/observability/metrics"
)

const (
	DefaultTokenPrefix = "ek_"
	DefaultTimeout     = 10 * time.Second
	defaultExpiresIn   = 60
)

// Config controls the token backend endpoint.
type Config struct {
	// URL is the token route, e.g. https://app.example.com/api/voice/token.
	URL         string
	AuthToken   string
	TokenPrefix string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client implements ports.CredentialClient and ports.AvailabilityProber.
type Client struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewClient(cfg Config, m *metrics.Metrics) *Client {
	if cfg.TokenPrefix == "" {
		cfg.TokenPrefix = DefaultTokenPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Client{
		cfg:     cfg,
		log:     logging.WithComponent("tokenexchange"),
		metrics: m,
		now:     time.Now,
	}
}

type tokenRequest struct {
	Model             string  `json:"model"`
	Voice             string  `json:"voice"`
	Instructions      string  `json:"instructions,omitempty"`
	Temperature       float64 `json:"temperature"`
	Tools             []any   `json:"tools"`
	ToolChoice        string  `json:"tool_choice"`
	MaxResponseTokens int     `json:"max_response_output_tokens"`
}

type tokenResponse struct {
	Token         string          `json:"token"`
	ExpiresIn     int             `json:"expiresIn"`
	SessionConfig json.RawMessage `json:"sessionConfig"`
	UserID        string          `json:"userId"`
	Timestamp     string          `json:"timestamp"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details"`
}

// RequestToken performs one round trip to the token backend. It never retries.
func (c *Client) RequestToken(ctx context.Context, cfg domain.SessionConfig) (domain.Credential, error) {
	start := time.Now()
	cred, err := c.requestToken(ctx, cfg)
	c.metrics.ObserveTokenRequest(err, time.Since(start).Seconds())
	if err != nil {
		c.log.Warn().Err(err).Str("model", cfg.Model).Str("voice", string(cfg.Voice)).Msg("token request failed")
		return domain.Credential{}, err
	}
	c.log.Debug().Time("expiresAt", cred.ExpiresAt).Msg("session credential issued")
	return cred, nil
}

func (c *Client) requestToken(ctx context.Context, cfg domain.SessionConfig) (domain.Credential, error) {
	if strings.TrimSpace(c.cfg.URL) == "" {
		return domain.Credential{}, &domain.TokenError{Message: "token backend URL is not configured"}
	}

	tools := cfg.Tools
	if tools == nil {
		tools = []any{}
	}
	body, err := json.Marshal(tokenRequest{
		Model:             cfg.Model,
		Voice:             string(cfg.Voice),
		Instructions:      cfg.ResolvedInstructions(),
		Temperature:       cfg.Temperature,
		Tools:             tools,
		ToolChoice:        cfg.ToolChoice,
		MaxResponseTokens: cfg.MaxResponseTokens,
	})
	if err != nil {
		return domain.Credential{}, &domain.TokenError{Message: "failed to encode token request", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return domain.Credential{}, &domain.TokenError{Message: "invalid token backend URL", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return domain.Credential{}, transportErr(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Credential{}, transportErr(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Credential{}, &domain.TokenError{Status: resp.StatusCode, Message: backendMessage(payload, resp.Status)}
	}

	var decoded tokenResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return domain.Credential{}, fmt.Errorf("%w: response is not valid JSON", domain.ErrMalformedToken)
	}
	if decoded.Token == "" {
		return domain.Credential{}, fmt.Errorf("%w: token missing", domain.ErrMalformedToken)
	}
	if !strings.HasPrefix(decoded.Token, c.cfg.TokenPrefix) {
		return domain.Credential{}, fmt.Errorf("%w: unexpected token prefix", domain.ErrMalformedToken)
	}

	expiresIn := decoded.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	issued := c.now()
	return domain.Credential{
		Token:     decoded.Token,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

type probeResponse struct {
	Available bool            `json:"available"`
	Models    []string        `json:"models"`
	Voices    []string        `json:"voices"`
	Features  map[string]bool `json:"features"`
}

// Probe asks the backend whether voice features are available.
func (c *Client) Probe(ctx context.Context) (domain.Availability, error) {
	if strings.TrimSpace(c.cfg.URL) == "" {
		return domain.Availability{}, &domain.TokenError{Message: "token backend URL is not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return domain.Availability{}, &domain.TokenError{Message: "invalid token backend URL", Err: err}
	}
	c.authorize(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return domain.Availability{}, transportErr(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Availability{}, transportErr(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Availability{}, &domain.TokenError{Status: resp.StatusCode, Message: backendMessage(payload, resp.Status)}
	}

	var decoded probeResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return domain.Availability{}, &domain.TokenError{Status: resp.StatusCode, Message: "invalid availability response", Err: err}
	}
	return domain.Availability(decoded), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
}

func transportErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.TokenError{Message: "token request timed out", Err: domain.ErrTimeout}
	}
	if errors.Is(err, context.Canceled) {
		return &domain.TokenError{Message: "token request cancelled", Err: err}
	}
	return &domain.TokenError{Message: err.Error(), Err: err}
}

func backendMessage(payload []byte, fallback string) string {
	var decoded errorResponse
	if err := json.Unmarshal(payload, &decoded); err == nil && decoded.Error != "" {
		return decoded.Error
	}
	if text := strings.TrimSpace(string(payload)); text != "" && len(text) < 512 {
		return text
	}
	return fallback
}
