// Package realtime implements the voice transport over the realtime
// websocket event protocol.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voicelink/internal/domain"
	"voicelink/internal/observability/logging"
	"voicelink/internal/observability/metrics"
	"voicelink/internal/ports"
)

const (
	DefaultURL         = "wss://api.openai.com/v1/realtime"
	DefaultOpenTimeout = 10 * time.Second
)

var errSessionClosed = errors.New("session closed")

// Config controls realtime websocket settings.
type Config struct {
	URL         string
	OpenTimeout time.Duration
	Dialer      *websocket.Dialer
}

// Transport implements ports.Transport.
type Transport struct {
	cfg     Config
	metrics *metrics.Metrics
}

func NewTransport(cfg Config, m *metrics.Metrics) *Transport {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Transport{cfg: cfg, metrics: m}
}

// Capabilities reports a native mute and text injection.
func (t *Transport) Capabilities() ports.TransportCapabilities {
	return ports.TransportCapabilities{NativeMute: true, UserText: true}
}

func (t *Transport) NewSession() ports.TransportSession {
	return &session{
		cfg:       t.cfg,
		log:       logging.WithComponent("realtime"),
		metrics:   t.metrics,
		now:       time.Now,
		state:     ports.TransportUnopened,
		events:    make(chan domain.TransportEvent, 64),
		out:       make(chan map[string]any, 64),
		closing:   make(chan struct{}),
		failed:    make(chan struct{}),
		done:      make(chan struct{}),
		userTexts: make(map[string]string),
	}
}

type session struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	state ports.TransportState
	conn  *websocket.Conn

	events  chan domain.TransportEvent
	out     chan map[string]any
	closing chan struct{}
	failed  chan struct{}
	done    chan struct{}

	wg sync.WaitGroup

	muted atomic.Bool

	failOnce  sync.Once
	failMu    sync.Mutex
	failure   string
	closeOnce sync.Once

	// Owned by the read loop.
	userTexts map[string]string
	agentText string
}

func (s *session) Open(ctx context.Context, cred domain.Credential, cfg domain.SessionConfig) error {
	s.mu.Lock()
	if s.state != ports.TransportUnopened {
		state := s.state
		s.mu.Unlock()
		return &domain.TransportError{Reason: fmt.Sprintf("cannot open session in state %s", state)}
	}
	s.state = ports.TransportOpening
	s.mu.Unlock()

	if cred.Expired(s.now()) {
		_ = s.Close()
		return &domain.TransportError{Reason: "credential expired", Err: domain.ErrCredentialExpired}
	}

	wsURL, err := buildURL(s.cfg.URL, cfg.Model)
	if err != nil {
		_ = s.Close()
		return &domain.TransportError{Reason: "invalid realtime URL", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpenTimeout)
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cred.Token)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		_ = s.Close()
		reason := "failed to connect"
		if resp != nil {
			reason = fmt.Sprintf("failed to connect (%d)", resp.StatusCode)
		}
		return openErr(ctx, reason, err)
	}

	s.mu.Lock()
	if s.state != ports.TransportOpening {
		s.mu.Unlock()
		_ = conn.Close()
		return &domain.TransportError{Reason: "session closed while opening", Err: errSessionClosed}
	}
	s.conn = conn
	s.mu.Unlock()

	if err := s.handshake(ctx, conn, cfg); err != nil {
		_ = s.Close()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ports.TransportOpening {
		return &domain.TransportError{Reason: "session closed while opening", Err: errSessionClosed}
	}
	s.state = ports.TransportOpen
	s.wg.Add(2)
	go s.readLoop(conn)
	go s.writeLoop(conn)

	s.log.Info().Str("model", cfg.Model).Str("voice", string(cfg.Voice)).Msg("realtime session open")
	return nil
}

// handshake waits for session.created and pushes the session configuration.
func (s *session) handshake(ctx context.Context, conn *websocket.Conn, cfg domain.SessionConfig) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return openErr(ctx, "handshake failed", err)
		}
		var event serverEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		if event.Type == eventError {
			return &domain.TransportError{Reason: errorMessage(event.Error)}
		}
		if event.Type == eventSessionCreated {
			break
		}
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return &domain.TransportError{Reason: "handshake failed", Err: err}
	}

	tools := cfg.Tools
	if tools == nil {
		tools = []any{}
	}
	update := clientEvent(eventSessionUpdate, map[string]any{
		"session": sessionUpdate{
			Modalities:              []string{"text", "audio"},
			Instructions:            cfg.ResolvedInstructions(),
			Voice:                   string(cfg.Voice),
			Temperature:             cfg.Temperature,
			MaxResponseOutputTokens: cfg.MaxResponseTokens,
			Tools:                   tools,
			ToolChoice:              cfg.ToolChoice,
			InputAudioFormat:        audioFormat,
			OutputAudioFormat:       audioFormat,
			InputAudioTranscription: transcriptionConfig{Model: transcriptionModel},
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         vadThreshold,
				PrefixPaddingMS:   vadPrefixPaddingMS,
				SilenceDurationMS: vadSilenceDurationMS,
			},
		},
	})
	if err := conn.WriteJSON(update); err != nil {
		return &domain.TransportError{Reason: "failed to send session update", Err: err}
	}
	return nil
}

func (s *session) Events() <-chan domain.TransportEvent {
	return s.events
}

func (s *session) State() ports.TransportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SendAudio queues a PCM chunk. Chunks are dropped while muted.
func (s *session) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if s.State() != ports.TransportOpen {
		return domain.ErrNotConnected
	}
	if s.muted.Load() {
		return nil
	}
	return s.send(clientEvent(eventInputAudioAppend, map[string]any{
		"audio": base64.StdEncoding.EncodeToString(chunk),
	}))
}

func (s *session) SendUserText(text string) error {
	if s.State() != ports.TransportOpen {
		return domain.ErrNotConnected
	}
	item := clientEvent(eventConversationItemAdd, map[string]any{
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
	if err := s.send(item); err != nil {
		return err
	}
	return s.send(clientEvent(eventResponseCreate, nil))
}

// SetMuted stops audio appends and clears audio the server has buffered.
func (s *session) SetMuted(muted bool) error {
	if s.State() != ports.TransportOpen {
		return domain.ErrNotConnected
	}
	if wasMuted := s.muted.Swap(muted); muted && !wasMuted {
		return s.send(clientEvent(eventInputAudioClear, nil))
	}
	return nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = ports.TransportClosed
		conn := s.conn
		close(s.closing)
		s.mu.Unlock()

		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(250*time.Millisecond),
			)
			_ = conn.Close()
		}

		s.wg.Wait()
		close(s.events)
		close(s.done)
	})
	<-s.done
	return nil
}

func (s *session) send(event map[string]any) error {
	select {
	case <-s.closing:
		return domain.ErrNotConnected
	case <-s.failed:
		return &domain.TransportError{Reason: s.failureReason()}
	default:
	}

	select {
	case s.out <- event:
		return nil
	case <-s.closing:
		return domain.ErrNotConnected
	case <-s.failed:
		return &domain.TransportError{Reason: s.failureReason()}
	}
}

func (s *session) writeLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		select {
		case <-s.closing:
			return
		case <-s.failed:
			return
		case event := <-s.out:
			if err := conn.WriteJSON(event); err != nil {
				s.fail(fmt.Sprintf("failed to send event: %v", err))
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *session) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
			default:
				s.fail(readFailure(err))
			}
			return
		}

		var event serverEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			s.log.Debug().Err(err).Msg("skipping undecodable server event")
			continue
		}
		if event.Type == eventError {
			s.fail(errorMessage(event.Error))
			return
		}
		s.handle(event)
	}
}

func (s *session) handle(event serverEvent) {
	switch event.Type {
	case eventSpeechStarted:
		s.emit(domain.TurnStarted{Speaker: domain.SpeakerUser})

	case eventInputTranscriptDelta:
		text := s.userTexts[event.ItemID] + event.Delta
		s.userTexts[event.ItemID] = text
		s.emit(domain.TurnText{Speaker: domain.SpeakerUser, EntryHint: event.ItemID, Text: text})

	case eventInputTranscriptDone:
		delete(s.userTexts, event.ItemID)
		text := strings.TrimSpace(event.Transcript)
		s.emit(domain.TurnText{Speaker: domain.SpeakerUser, EntryHint: event.ItemID, Text: text, IsFinal: true})
		s.emit(domain.TurnEnded{Speaker: domain.SpeakerUser, FullText: text})

	case eventResponseCreated:
		s.agentText = ""
		s.emit(domain.TurnStarted{Speaker: domain.SpeakerAgent})

	case eventAudioTranscriptDelta, eventOutputTranscriptDelta, eventTextDelta, eventOutputTextDelta:
		s.agentText += event.Delta
		s.emit(domain.TurnText{Speaker: domain.SpeakerAgent, EntryHint: event.ItemID, Text: s.agentText})

	case eventAudioTranscriptDone, eventOutputTranscriptDone, eventTextDone, eventOutputTextDone:
		text := event.Transcript
		if text == "" {
			text = event.Text
		}
		if text == "" {
			text = s.agentText
		}
		s.agentText = text
		s.emit(domain.TurnText{Speaker: domain.SpeakerAgent, EntryHint: event.ItemID, Text: text, IsFinal: true})

	case eventResponseDone:
		if event.Response != nil && event.Response.Status == "cancelled" {
			s.emit(domain.Interrupted{Speaker: domain.SpeakerAgent})
		} else {
			s.emit(domain.TurnEnded{Speaker: domain.SpeakerAgent, FullText: s.agentText})
		}
		s.agentText = ""
	}
}

func (s *session) emit(event domain.TransportEvent) {
	select {
	case s.events <- event:
		s.metrics.RecordTransportEvent(eventKind(event))
	case <-s.closing:
	}
}

// fail reports the first connection-level failure and stops further sends.
func (s *session) fail(reason string) {
	s.failOnce.Do(func() {
		s.failMu.Lock()
		s.failure = reason
		s.failMu.Unlock()
		close(s.failed)

		s.log.Warn().Str("reason", reason).Msg("realtime session failed")
		s.emit(domain.TransportFailure{Reason: reason})
	})
}

func (s *session) failureReason() string {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.failure
}

func eventKind(event domain.TransportEvent) string {
	switch event.(type) {
	case domain.TurnStarted:
		return "turn_started"
	case domain.TurnText:
		return "turn_text"
	case domain.TurnEnded:
		return "turn_ended"
	case domain.Interrupted:
		return "interrupted"
	case domain.TransportFailure:
		return "failure"
	default:
		return "unknown"
	}
}

func readFailure(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return "connection closed by remote"
	}
	return fmt.Sprintf("failed to read server event: %v", err)
}

func errorMessage(e *serverError) string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return "realtime service returned an unknown error"
	}
	return strings.TrimSpace(e.Message)
}

func openErr(ctx context.Context, reason string, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.TransportError{Reason: reason + ": timed out", Err: domain.ErrTimeout}
	}
	return &domain.TransportError{Reason: reason, Err: err}
}

func buildURL(base, model string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultURL
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if model != "" {
		query := parsed.Query()
		query.Set("model", model)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}
