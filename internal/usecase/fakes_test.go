package usecase

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"voicelink/internal/domain"
	"voicelink/internal/observability/metrics"
	"voicelink/internal/ports"
)

func testConfig() Config {
	return Config{
		ChunkSize:     256,
		SettleDelay:   -1,
		LevelInterval: 5 * time.Millisecond,
		Metrics:       metrics.New(prometheus.NewRegistry()),
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type fakeAudioCapture struct {
	mu      sync.Mutex
	handles []*fakeHandle
	err     error
	calls   int
}

func (f *fakeAudioCapture) Acquire(_ context.Context, _ ports.AudioConfig) (ports.CaptureHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.handles) == 0 {
		return nil, errors.New("no capture handle configured")
	}
	handle := f.handles[0]
	f.handles = f.handles[1:]
	return handle, nil
}

type fakeHandle struct {
	chunks   chan []byte
	errs     chan error
	released chan struct{}

	releaseOnce sync.Once
	releases    atomic.Int32
	enabled     atomic.Bool
	level       atomic.Uint64
}

func newFakeHandle() *fakeHandle {
	h := &fakeHandle{
		chunks:   make(chan []byte, 16),
		errs:     make(chan error, 1),
		released: make(chan struct{}),
	}
	h.enabled.Store(true)
	return h
}

func (h *fakeHandle) Read(p []byte) (int, error) {
	select {
	case chunk := <-h.chunks:
		return copy(p, chunk), nil
	case err := <-h.errs:
		return 0, err
	case <-h.released:
		return 0, io.EOF
	}
}

func (h *fakeHandle) Level() float64          { return math.Float64frombits(h.level.Load()) }
func (h *fakeHandle) setLevel(v float64)      { h.level.Store(math.Float64bits(v)) }
func (h *fakeHandle) SetEnabled(enabled bool) { h.enabled.Store(enabled) }
func (h *fakeHandle) Enabled() bool           { return h.enabled.Load() }
func (h *fakeHandle) releaseCount() int       { return int(h.releases.Load()) }
func (h *fakeHandle) fail(err error)          { h.errs <- err }
func (h *fakeHandle) feed(chunk []byte)       { h.chunks <- chunk }
func (h *fakeHandle) isReleased() bool        { return h.releaseCount() > 0 }

func (h *fakeHandle) Release() error {
	h.releases.Add(1)
	h.releaseOnce.Do(func() { close(h.released) })
	return nil
}

type fakeCredentials struct {
	mu      sync.Mutex
	configs []domain.SessionConfig
	err     error
	// gate, when set, blocks RequestToken until it is closed or ctx ends.
	gate chan struct{}
}

func (f *fakeCredentials) RequestToken(ctx context.Context, cfg domain.SessionConfig) (domain.Credential, error) {
	f.mu.Lock()
	f.configs = append(f.configs, cfg)
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Credential{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.Credential{}, err
	}
	now := time.Now()
	return domain.Credential{Token: "ek_test", IssuedAt: now, ExpiresAt: now.Add(time.Minute)}, nil
}

func (f *fakeCredentials) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.configs)
}

func (f *fakeCredentials) lastConfig() domain.SessionConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs[len(f.configs)-1]
}

type fakeTransport struct {
	caps ports.TransportCapabilities

	mu       sync.Mutex
	sessions []*fakeSession
	created  []*fakeSession
}

func (f *fakeTransport) Capabilities() ports.TransportCapabilities { return f.caps }

func (f *fakeTransport) NewSession() ports.TransportSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	var session *fakeSession
	if len(f.sessions) > 0 {
		session = f.sessions[0]
		f.sessions = f.sessions[1:]
	} else {
		session = newFakeSession()
	}
	f.created = append(f.created, session)
	return session
}

func (f *fakeTransport) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeSession struct {
	events  chan domain.TransportEvent
	openErr error

	mu         sync.Mutex
	state      ports.TransportState
	audio      [][]byte
	texts      []string
	muted      []bool
	muteErr    error
	closeCalls int
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan domain.TransportEvent, 64), state: ports.TransportUnopened}
}

func (f *fakeSession) Open(_ context.Context, _ domain.Credential, _ domain.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	if f.state == ports.TransportClosed {
		return domain.ErrNotConnected
	}
	f.state = ports.TransportOpen
	return nil
}

func (f *fakeSession) Events() <-chan domain.TransportEvent { return f.events }

func (f *fakeSession) push(events ...domain.TransportEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == ports.TransportClosed {
		return
	}
	for _, event := range events {
		f.events <- event
	}
}

// drop simulates the remote end going away without an error event.
func (f *fakeSession) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ports.TransportClosed {
		f.state = ports.TransportClosed
		close(f.events)
	}
}

func (f *fakeSession) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ports.TransportOpen {
		return domain.ErrNotConnected
	}
	f.audio = append(f.audio, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeSession) SendUserText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ports.TransportOpen {
		return domain.ErrNotConnected
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSession) SetMuted(muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = append(f.muted, muted)
	return f.muteErr
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if f.state != ports.TransportClosed {
		f.state = ports.TransportClosed
		close(f.events)
	}
	return nil
}

func (f *fakeSession) State() ports.TransportState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) isClosed() bool { return f.State() == ports.TransportClosed }

func (f *fakeSession) sentAudio() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.audio))
	for _, chunk := range f.audio {
		out = append(out, string(chunk))
	}
	return out
}

func (f *fakeSession) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeSession) muteCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.muted...)
}

type upperRules struct {
	err error
}

func (f upperRules) Apply(_ domain.Speaker, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return strings.ToUpper(text), nil
}

type fakeSink struct {
	mu      sync.Mutex
	entries []domain.TranscriptEntry
	err     error
}

func (f *fakeSink) PublishTranscript(_ context.Context, _ string, entry domain.TranscriptEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return f.err
}

func (f *fakeSink) published() []domain.TranscriptEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TranscriptEntry(nil), f.entries...)
}

type stateEvent struct {
	state  domain.ConnectionState
	reason domain.StateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu sync.Mutex

	states  []stateEvent
	entries []domain.TranscriptEntry
	errors  []errEvent
	cleared int

	// onState runs inside SessionStateChanged.
	onState func(domain.ConnectionState)
}

func (f *fakeEventSink) SessionStateChanged(state domain.ConnectionState, reason domain.StateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
	if f.onState != nil {
		f.onState(state)
	}
}

func (f *fakeEventSink) TranscriptUpdated(entry domain.TranscriptEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *fakeEventSink) TranscriptCleared() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotEntries() []domain.TranscriptEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TranscriptEntry(nil), f.entries...)
}

func (f *fakeEventSink) lastState() stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return stateEvent{}
	}
	return f.states[len(f.states)-1]
}

func statesOf(events []stateEvent) []domain.ConnectionState {
	out := make([]domain.ConnectionState, 0, len(events))
	for _, event := range events {
		out = append(out, event.state)
	}
	return out
}
