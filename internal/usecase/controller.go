package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voicelink/internal/domain"
	"voicelink/internal/observability/logging"
	"voicelink/internal/observability/metrics"
	"voicelink/internal/ports"
	"voicelink/internal/timer"
	"voicelink/internal/transcript"
)

const (
	DefaultChunkSize     = 4800 // 100ms of 24kHz mono s16le
	DefaultSettleDelay   = 500 * time.Millisecond
	DefaultLevelInterval = time.Second / 30
	DefaultSinkTimeout   = 5 * time.Second
)

// Config controls voice session behavior.
type Config struct {
	Audio   ports.AudioConfig
	Session domain.SessionConfig

	ChunkSize     int
	SettleDelay   time.Duration
	LevelInterval time.Duration
	TimerInterval time.Duration
	SinkTimeout   time.Duration

	// StrictMute makes ToggleMute fail when the transport has no native mute
	// instead of muting only the local capture track.
	StrictMute bool

	Metrics *metrics.Metrics
}

// Controller owns the lifecycle of one voice conversation at a time:
// capture, credential exchange, transport, transcript and teardown.
type Controller struct {
	audio       ports.AudioCapture
	credentials ports.CredentialClient
	transport   ports.Transport
	events      ports.EventSink
	finalizer   entryFinalizer
	caps        ports.TransportCapabilities
	cfg         Config
	log         zerolog.Logger
	metrics     *metrics.Metrics

	transcript *transcript.Log
	timer      *timer.Timer

	// teardownMu serializes resource release so a final state is only
	// reported once every earlier teardown has finished.
	teardownMu sync.Mutex

	mu         sync.Mutex
	state      domain.ConnectionState
	generation uint64
	current    *activeSession
	selection  domain.SessionConfig
	lastErr    error
	muted      bool
	listening  bool
	speaking   bool
	closed     bool
}

func NewController(
	audio ports.AudioCapture,
	credentials ports.CredentialClient,
	transport ports.Transport,
	rules ports.RulesEngine,
	sink ports.TranscriptSink,
	events ports.EventSink,
	cfg Config,
) *Controller {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	} else if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = DefaultLevelInterval
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = DefaultSinkTimeout
	}
	if cfg.Session.Model == "" {
		cfg.Session = domain.DefaultSessionConfig()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}

	log := logging.WithComponent("controller")
	return &Controller{
		audio:       audio,
		credentials: credentials,
		transport:   transport,
		events:      events,
		finalizer:   newEntryFinalizer(rules, sink, cfg.SinkTimeout, log),
		caps:        transport.Capabilities(),
		cfg:         cfg,
		log:         log,
		metrics:     cfg.Metrics,
		transcript:  transcript.NewLog(),
		timer:       timer.New(cfg.TimerInterval),
		state:       domain.StateIdle,
		selection:   cfg.Session,
	}
}

// Connect acquires the microphone, exchanges a credential and opens the
// transport, in that order. It is a logged no-op while a session is already
// connecting or connected.
func (c *Controller) Connect(ctx context.Context, opts domain.ConnectOptions) error {
	return c.connect(ctx, opts, nil)
}

// connect runs one attempt. precondition, when set, is checked under the lock
// before the attempt claims the controller.
func (c *Controller) connect(ctx context.Context, opts domain.ConnectOptions, precondition func() bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrControllerClosed
	}
	if precondition != nil && !precondition() {
		c.mu.Unlock()
		return domain.ErrSuperseded
	}
	switch c.state {
	case domain.StateConnecting, domain.StateConnected, domain.StateDisconnecting:
		state := c.state
		c.mu.Unlock()
		c.log.Warn().Str("state", string(state)).Msg("connect ignored: session already active")
		return nil
	}

	cfg := opts.Apply(c.selection)
	if err := cfg.Validate(); err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("connect rejected: invalid session config")
		return err
	}
	c.selection = cfg
	c.generation++
	active := newActiveSession(c.generation, cfg)
	c.current = active
	c.lastErr = nil
	c.setStateLocked(domain.StateConnecting, domain.ReasonConnecting)
	c.mu.Unlock()

	c.metrics.RecordConnectAttempt()
	log := c.log.With().Uint64("generation", active.generation).Logger()

	// Steps observe both the caller and a later Disconnect.
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(active.ctx, cancel)
	defer stop()

	capture, err := c.audio.Acquire(stepCtx, c.cfg.Audio)
	if err != nil {
		return c.failConnect(active, "capture", domain.ErrorCodeCapture, captureReason(err), err)
	}
	if !c.attach(active, func() { active.capture = capture }) {
		_ = capture.Release()
		log.Debug().Msg("connect superseded after capture")
		return domain.ErrSuperseded
	}

	cred, err := c.credentials.RequestToken(stepCtx, cfg)
	if err != nil {
		return c.failConnect(active, "credential", domain.ErrorCodeCredential, domain.ReasonCredentialFailed, err)
	}
	if !c.attach(active, func() {}) {
		log.Debug().Msg("connect superseded after credential")
		return domain.ErrSuperseded
	}

	session := c.transport.NewSession()
	if !c.attach(active, func() { active.transport = session }) {
		_ = session.Close()
		return domain.ErrSuperseded
	}
	if err := session.Open(stepCtx, cred, cfg); err != nil {
		return c.failConnect(active, "transport", domain.ErrorCodeTransport, domain.ReasonTransportFailed, err)
	}

	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		log.Debug().Msg("connect superseded after transport open")
		return domain.ErrSuperseded
	}
	active.id = uuid.NewString()
	active.startedAt = time.Now()
	active.eventsDone = make(chan struct{})
	active.audioDone = make(chan struct{})
	active.levelDone = make(chan struct{})
	c.muted, c.listening, c.speaking = false, false, false
	c.timer.Start()
	c.setStateLocked(domain.StateConnected, domain.ReasonConnected)

	go c.consumeTransportEvents(active)
	go c.pumpAudio(active)
	go c.sampleLevel(active)
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	sessionLog := logging.WithSession("controller", active.id)
	sessionLog.Info().
		Str("model", cfg.Model).
		Str("voice", string(cfg.Voice)).
		Str("preset", string(cfg.AgentPreset)).
		Msg("voice session connected")
	return nil
}

// attach runs fn under the lock if active is still the current attempt.
func (c *Controller) attach(active *activeSession, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != active {
		return false
	}
	fn()
	return true
}

// failConnect unwinds a failed attempt and reports Error once everything it
// acquired is released. Superseded attempts report nothing.
func (c *Controller) failConnect(active *activeSession, stage string, code domain.ErrorCode, reason domain.StateReason, err error) error {
	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		active.release()
		return domain.ErrSuperseded
	}
	c.current = nil
	gen := c.generation
	c.mu.Unlock()

	c.teardownMu.Lock()
	active.release()
	c.teardownMu.Unlock()

	c.metrics.RecordConnectFailure(stage)
	c.log.Warn().Err(err).Str("stage", stage).Msg("connect failed")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return err
	}
	c.lastErr = err
	c.reportErrorLocked(code, err)
	c.setStateLocked(domain.StateError, reason)
	return err
}

// Disconnect tears down any session or attempt and returns to Idle. It is a
// no-op when already Idle.
func (c *Controller) Disconnect() {
	c.disconnect(domain.ReasonDisconnected)
}

// disconnect returns the generation it settled on.
func (c *Controller) disconnect(reason domain.StateReason) uint64 {
	c.mu.Lock()
	if c.state == domain.StateIdle {
		gen := c.generation
		c.mu.Unlock()
		return gen
	}
	active := c.current
	wasConnected := c.state == domain.StateConnected
	if active != nil {
		c.abandonTurnsLocked(active)
	}
	c.current = nil
	c.generation++
	gen := c.generation
	c.timer.Stop()
	c.setStateLocked(domain.StateDisconnecting, domain.ReasonDisconnecting)
	c.mu.Unlock()

	c.teardownMu.Lock()
	if active != nil {
		c.teardown(active, nil)
	}
	c.teardownMu.Unlock()

	if wasConnected && active != nil {
		c.metrics.RecordSessionEnd("disconnected", time.Since(active.startedAt).Seconds())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.muted, c.listening, c.speaking = false, false, false
		c.setStateLocked(domain.StateIdle, reason)
	}
	return gen
}

// failSession handles a fatal mid-session error: release everything, then
// report Error. self is the done channel of the calling loop, if any.
func (c *Controller) failSession(active *activeSession, self chan struct{}, code domain.ErrorCode, reason domain.StateReason, err error) {
	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		return
	}
	c.abandonTurnsLocked(active)
	c.current = nil
	c.generation++
	gen := c.generation
	c.timer.Stop()
	c.setStateLocked(domain.StateDisconnecting, reason)
	c.mu.Unlock()

	c.log.Warn().Err(err).Str("sessionId", active.id).Msg("voice session failed")

	c.teardownMu.Lock()
	c.teardown(active, self)
	c.teardownMu.Unlock()

	c.metrics.RecordSessionEnd("failed", time.Since(active.startedAt).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.muted, c.listening, c.speaking = false, false, false
	c.lastErr = err
	c.reportErrorLocked(code, err)
	c.setStateLocked(domain.StateError, reason)
}

func (c *Controller) teardown(active *activeSession, self chan struct{}) {
	transportErr, captureErr := active.release()
	if transportErr != nil {
		c.log.Debug().Err(transportErr).Msg("transport close returned error")
	}
	if captureErr != nil {
		c.log.Debug().Err(captureErr).Msg("capture release returned error")
	}
	active.wait(self)
}

// ReconnectWithConfig applies opts and, if a session was connected, tears it
// down, waits the settle delay and connects again. When nothing was
// connected the options are only recorded for the next Connect.
func (c *Controller) ReconnectWithConfig(ctx context.Context, opts domain.ConnectOptions) error {
	c.mu.Lock()
	wasConnected := c.state == domain.StateConnected
	if !wasConnected {
		next := opts.Apply(c.selection)
		if err := next.Validate(); err != nil {
			c.mu.Unlock()
			return err
		}
		c.selection = next
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	gen := c.disconnect(domain.ReasonReconnecting)

	if c.cfg.SettleDelay > 0 {
		settle := time.NewTimer(c.cfg.SettleDelay)
		select {
		case <-settle.C:
		case <-ctx.Done():
			settle.Stop()
			return ctx.Err()
		}
	}

	// A Disconnect or Connect during the settle delay wins.
	return c.connect(ctx, opts, func() bool { return c.generation == gen })
}

// ChangeVoice records the voice and reconnects if a session is live.
func (c *Controller) ChangeVoice(ctx context.Context, voice domain.Voice) error {
	if !voice.Valid() {
		return domain.SessionConfig{Voice: voice}.Validate()
	}
	return c.ReconnectWithConfig(ctx, domain.ConnectOptions{Voice: voice})
}

// SetAgentPreset records the preset and reconnects if a session is live.
// Explicit instructions from an earlier connect are replaced by the preset.
func (c *Controller) SetAgentPreset(ctx context.Context, preset domain.AgentPreset) error {
	if !preset.Valid() {
		return domain.SessionConfig{AgentPreset: preset}.Validate()
	}
	c.mu.Lock()
	c.selection.Instructions = ""
	c.mu.Unlock()
	return c.ReconnectWithConfig(ctx, domain.ConnectOptions{AgentPreset: preset})
}

// Close releases everything and rejects later connects.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.disconnect(domain.ReasonDisconnected)
}

func (c *Controller) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// AudioLevel is the latest sampled input level, 0 unless connected and unmuted.
func (c *Controller) AudioLevel() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioLevelLocked()
}

func (c *Controller) audioLevelLocked() float64 {
	if c.current == nil || c.state != domain.StateConnected || c.muted {
		return 0
	}
	return c.current.loadLevel()
}

// Transcript returns a point-in-time copy of the transcript.
func (c *Controller) Transcript() []domain.TranscriptEntry {
	return c.transcript.Snapshot()
}

func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		State:       c.state,
		Muted:       c.muted,
		Listening:   c.listening,
		Speaking:    c.speaking,
		AudioLevel:  c.audioLevelLocked(),
		Duration:    c.timer.Elapsed(),
		LastError:   domain.UserMessage(c.lastErr),
		Model:       c.selection.Model,
		Voice:       c.selection.Voice,
		AgentPreset: c.selection.AgentPreset,
	}
	if c.current != nil && c.state == domain.StateConnected {
		status.SessionID = c.current.id
	}
	return status
}

func (c *Controller) setStateLocked(state domain.ConnectionState, reason domain.StateReason) {
	c.state = state
	c.metrics.RecordStateTransition(string(state))
	c.events.SessionStateChanged(state, reason)
}

func (c *Controller) reportErrorLocked(code domain.ErrorCode, err error) {
	c.metrics.RecordError(string(code))
	c.events.SessionError(code, domain.UserMessage(err))
}

func captureReason(err error) domain.StateReason {
	if errors.Is(err, domain.ErrPermissionDenied) {
		return domain.ReasonPermissionDenied
	}
	return domain.ReasonDeviceUnavailable
}
