package usecase

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"voicelink/internal/domain"
	"voicelink/internal/observability/metrics"
	"voicelink/internal/ports"
)

type harness struct {
	capture     *fakeAudioCapture
	handle      *fakeHandle
	credentials *fakeCredentials
	transport   *fakeTransport
	sink        *fakeSink
	events      *fakeEventSink
	metrics     *metrics.Metrics
	controller  *Controller
}

func newHarness(t *testing.T, rules ports.RulesEngine, cfg Config) *harness {
	t.Helper()
	h := &harness{
		handle:      newFakeHandle(),
		credentials: &fakeCredentials{},
		transport:   &fakeTransport{caps: ports.TransportCapabilities{NativeMute: true, UserText: true}},
		sink:        &fakeSink{},
		events:      &fakeEventSink{},
	}
	h.capture = &fakeAudioCapture{handles: []*fakeHandle{h.handle}}
	h.build(rules, cfg)
	t.Cleanup(func() { h.controller.Close() })
	return h
}

func (h *harness) build(rules ports.RulesEngine, cfg Config) {
	h.metrics = cfg.Metrics
	h.controller = NewController(h.capture, h.credentials, h.transport, rules, h.sink, h.events, cfg)
}

func (h *harness) connect(t *testing.T) *fakeSession {
	t.Helper()
	if err := h.controller.Connect(context.Background(), domain.ConnectOptions{}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if got := h.controller.State(); got != domain.StateConnected {
		t.Fatalf("expected connected, got %s", got)
	}
	return h.transport.created[len(h.transport.created)-1]
}

func TestControllerAgentTurnBecomesOneFinalEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := h.connect(t)

	session.push(
		domain.TurnStarted{Speaker: domain.SpeakerAgent},
		domain.TurnText{Speaker: domain.SpeakerAgent, EntryHint: "item_1", Text: "Hello"},
		domain.TurnText{Speaker: domain.SpeakerAgent, EntryHint: "item_1", Text: "Hello there!"},
		domain.TurnText{Speaker: domain.SpeakerAgent, EntryHint: "item_1", Text: "Hello there!", IsFinal: true},
		domain.TurnEnded{Speaker: domain.SpeakerAgent, FullText: "Hello there!"},
	)

	eventually(t, "agent turn to close", func() bool { return len(h.sink.published()) == 1 })

	entries := h.controller.Transcript()
	if len(entries) != 1 {
		t.Fatalf("expected one transcript entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Speaker != domain.SpeakerAgent || entry.Text != "Hello there!" || !entry.IsFinal {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if h.sink.published()[0].ID != entry.ID {
		t.Fatalf("sink received a different entry")
	}

	updates := h.events.snapshotEntries()
	if len(updates) != 3 || updates[0].Text != "Hello" || updates[0].IsFinal {
		t.Fatalf("unexpected transcript updates: %+v", updates)
	}

	h.controller.Disconnect()
	if !h.handle.isReleased() || !session.isClosed() {
		t.Fatalf("expected capture and transport released on disconnect")
	}
	want := []domain.ConnectionState{
		domain.StateConnecting, domain.StateConnected, domain.StateDisconnecting, domain.StateIdle,
	}
	if got := statesOf(h.events.snapshotStates()); !slices.Equal(got, want) {
		t.Fatalf("unexpected states: %v", got)
	}
}

func TestControllerCredentialFailureReleasesCapture(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.credentials.err = &domain.TokenError{Status: 503, Message: "Voice service unavailable"}

	err := h.controller.Connect(context.Background(), domain.ConnectOptions{})
	var tokenErr *domain.TokenError
	if !errors.As(err, &tokenErr) || tokenErr.Status != 503 {
		t.Fatalf("expected token error, got %v", err)
	}

	if h.controller.State() != domain.StateError {
		t.Fatalf("expected error state, got %s", h.controller.State())
	}
	if h.handle.releaseCount() != 1 {
		t.Fatalf("expected capture released once, got %d", h.handle.releaseCount())
	}
	if h.transport.createdCount() != 0 {
		t.Fatalf("expected no transport session")
	}
	if h.controller.Status().LastError != "Voice service unavailable" {
		t.Fatalf("unexpected last error: %q", h.controller.Status().LastError)
	}

	last := h.events.lastState()
	if last.state != domain.StateError || last.reason != domain.ReasonCredentialFailed {
		t.Fatalf("unexpected final state event: %+v", last)
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeCredential {
		t.Fatalf("expected one credential error, got %+v", errs)
	}
}

func TestControllerPermissionDeniedSkipsCredential(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.capture.err = &domain.CaptureError{Kind: domain.ErrPermissionDenied}

	err := h.controller.Connect(context.Background(), domain.ConnectOptions{})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if h.credentials.calls() != 0 {
		t.Fatalf("expected no credential request")
	}
	if last := h.events.lastState(); last.reason != domain.ReasonPermissionDenied {
		t.Fatalf("unexpected reason: %s", last.reason)
	}
}

func TestControllerTransportOpenFailureReleasesEverything(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := newFakeSession()
	session.openErr = &domain.TransportError{Reason: "handshake rejected"}
	h.transport.sessions = []*fakeSession{session}

	if err := h.controller.Connect(context.Background(), domain.ConnectOptions{}); err == nil {
		t.Fatalf("expected open error")
	}
	if !h.handle.isReleased() || !session.isClosed() {
		t.Fatalf("expected capture and transport released")
	}
	if last := h.events.lastState(); last.state != domain.StateError || last.reason != domain.ReasonTransportFailed {
		t.Fatalf("unexpected final state: %+v", last)
	}
}

func TestControllerConnectFromErrorRetries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.capture.handles = append(h.capture.handles, newFakeHandle())
	h.credentials.err = errors.New("backend down")
	if err := h.controller.Connect(context.Background(), domain.ConnectOptions{}); err == nil {
		t.Fatalf("expected first connect to fail")
	}

	h.credentials.mu.Lock()
	h.credentials.err = nil
	h.credentials.mu.Unlock()

	h.connect(t)
	if h.controller.LastError() != nil {
		t.Fatalf("expected last error cleared, got %v", h.controller.LastError())
	}
}

func TestControllerSendMessageIsOptimistic(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := h.connect(t)

	if err := h.controller.SendMessage("  hi  "); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	entries := h.controller.Transcript()
	if len(entries) != 1 || entries[0].Speaker != domain.SpeakerUser || entries[0].Text != "hi" || !entries[0].IsFinal {
		t.Fatalf("unexpected transcript: %+v", entries)
	}
	if got := session.sentTexts(); !slices.Equal(got, []string{"hi"}) {
		t.Fatalf("unexpected forwarded text: %v", got)
	}
	if len(h.sink.published()) != 1 {
		t.Fatalf("expected typed message delivered to sink")
	}

	if err := h.controller.SendMessage("   "); err != nil {
		t.Fatalf("blank message should be ignored, got %v", err)
	}
	if len(h.controller.Transcript()) != 1 {
		t.Fatalf("blank message should not be recorded")
	}
}

func TestControllerSendMessageWithoutTextCapabilityKeepsEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.transport.caps.UserText = false
	h.build(nil, testConfig())
	h.connect(t)

	err := h.controller.SendMessage("hello")
	if !errors.Is(err, domain.ErrTextUnsupported) {
		t.Fatalf("expected ErrTextUnsupported, got %v", err)
	}
	if len(h.controller.Transcript()) != 1 {
		t.Fatalf("expected optimistic entry to remain")
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeMessage {
		t.Fatalf("expected message error event, got %+v", errs)
	}
	if h.controller.State() != domain.StateConnected {
		t.Fatalf("message failure must not end the session")
	}
}

func TestControllerCommandsRequireConnection(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	if err := h.controller.SendMessage("hi"); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected from send, got %v", err)
	}
	if _, err := h.controller.ToggleMute(); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected from mute, got %v", err)
	}
	if len(h.controller.Transcript()) != 0 {
		t.Fatalf("expected empty transcript")
	}
}

func TestControllerDisconnectWhenIdleIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.controller.Disconnect()
	h.controller.Disconnect()

	if len(h.events.snapshotStates()) != 0 {
		t.Fatalf("expected no state events, got %+v", h.events.snapshotStates())
	}
	if h.controller.State() != domain.StateIdle {
		t.Fatalf("expected idle")
	}
}

func TestControllerDisconnectDuringCredentialRequestDiscardsAttempt(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.credentials.gate = make(chan struct{})

	result := make(chan error, 1)
	go func() {
		result <- h.controller.Connect(context.Background(), domain.ConnectOptions{})
	}()
	eventually(t, "credential request", func() bool { return h.credentials.calls() == 1 })

	h.controller.Disconnect()

	if err := <-result; !errors.Is(err, domain.ErrSuperseded) {
		t.Fatalf("expected superseded attempt, got %v", err)
	}
	if h.controller.State() != domain.StateIdle {
		t.Fatalf("expected idle, got %s", h.controller.State())
	}
	if h.transport.createdCount() != 0 {
		t.Fatalf("stale attempt must not open a transport")
	}
	if h.handle.releaseCount() != 1 {
		t.Fatalf("expected capture released once, got %d", h.handle.releaseCount())
	}
	want := []domain.ConnectionState{domain.StateConnecting, domain.StateDisconnecting, domain.StateIdle}
	if got := statesOf(h.events.snapshotStates()); !slices.Equal(got, want) {
		t.Fatalf("unexpected states: %v", got)
	}
	if len(h.events.snapshotErrors()) != 0 {
		t.Fatalf("superseded attempt must not report errors")
	}
}

func TestControllerConnectWhileActiveIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.connect(t)

	if err := h.controller.Connect(context.Background(), domain.ConnectOptions{}); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if h.capture.calls != 1 || h.transport.createdCount() != 1 {
		t.Fatalf("second connect must not acquire resources")
	}
}

func TestControllerToggleMuteTwice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := h.connect(t)

	muted, err := h.controller.ToggleMute()
	if err != nil || !muted {
		t.Fatalf("expected muted, got %v %v", muted, err)
	}
	if h.handle.Enabled() {
		t.Fatalf("expected capture track disabled")
	}
	h.handle.feed([]byte("while-muted"))
	eventually(t, "muted chunk dropped", func() bool { return testutil.ToFloat64(h.metrics.AudioDropped) == 1 })

	muted, err = h.controller.ToggleMute()
	if err != nil || muted {
		t.Fatalf("expected unmuted, got %v %v", muted, err)
	}
	h.handle.feed([]byte("after-unmute"))

	eventually(t, "audio after unmute", func() bool { return len(session.sentAudio()) == 1 })
	if got := session.sentAudio(); got[0] != "after-unmute" {
		t.Fatalf("muted audio was forwarded: %v", got)
	}
	if got := session.muteCalls(); !slices.Equal(got, []bool{true, false}) {
		t.Fatalf("unexpected transport mute calls: %v", got)
	}
	if h.controller.Muted() {
		t.Fatalf("expected original mute state")
	}
}

func TestControllerMuteWithoutNativeSupport(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.transport.caps.NativeMute = false
	h.build(nil, testConfig())
	session := h.connect(t)

	muted, err := h.controller.ToggleMute()
	if err != nil || !muted {
		t.Fatalf("expected local mute, got %v %v", muted, err)
	}
	if h.handle.Enabled() {
		t.Fatalf("expected capture track disabled")
	}
	if len(session.muteCalls()) != 0 {
		t.Fatalf("transport mute must not be called without capability")
	}
}

func TestControllerStrictMuteFailsWithoutNativeSupport(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.StrictMute = true
	h := newHarness(t, nil, cfg)
	h.transport.caps.NativeMute = false
	h.build(nil, cfg)
	h.connect(t)

	if _, err := h.controller.ToggleMute(); !errors.Is(err, domain.ErrMuteUnsupported) {
		t.Fatalf("expected ErrMuteUnsupported, got %v", err)
	}
	if !h.handle.Enabled() {
		t.Fatalf("capture must stay enabled")
	}
}

func TestControllerTransportMuteFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := newFakeSession()
	session.muteErr = errors.New("clear rejected")
	h.transport.sessions = []*fakeSession{session}
	h.connect(t)

	muted, err := h.controller.ToggleMute()
	if err != nil || !muted {
		t.Fatalf("expected local mute to succeed, got %v %v", muted, err)
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeMute {
		t.Fatalf("expected mute error event, got %+v", errs)
	}
}

func TestControllerRemoteFailureReleasesBeforeError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	var releasedAtError bool
	var closedAtError bool
	var session *fakeSession
	h.events.onState = func(state domain.ConnectionState) {
		if state == domain.StateError {
			releasedAtError = h.handle.isReleased()
			closedAtError = session.isClosed()
		}
	}
	session = h.connect(t)

	session.push(domain.TransportFailure{Reason: "server_error: boom"})

	eventually(t, "error state", func() bool { return h.controller.State() == domain.StateError })
	h.events.mu.Lock()
	released, closed := releasedAtError, closedAtError
	h.events.mu.Unlock()
	if !released || !closed {
		t.Fatalf("expected resources released before error was reported")
	}
	if last := h.events.lastState(); last.reason != domain.ReasonRemoteError {
		t.Fatalf("unexpected reason: %s", last.reason)
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeTransport {
		t.Fatalf("expected transport error event, got %+v", errs)
	}
	if h.controller.AudioLevel() != 0 {
		t.Fatalf("expected zero level after failure")
	}
}

func TestControllerRemoteDisconnectIsFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := h.connect(t)
	session.drop()

	eventually(t, "error state", func() bool { return h.controller.State() == domain.StateError })
	if !h.handle.isReleased() {
		t.Fatalf("expected capture released")
	}
	if last := h.events.lastState(); last.reason != domain.ReasonTransportFailed {
		t.Fatalf("unexpected reason: %s", last.reason)
	}
}

func TestControllerCaptureFailureEndsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := h.connect(t)
	h.handle.fail(&domain.CaptureError{Kind: domain.ErrDeviceUnavailable, Detail: "device unplugged"})

	eventually(t, "error state", func() bool { return h.controller.State() == domain.StateError })
	if !session.isClosed() {
		t.Fatalf("expected transport closed")
	}
	if last := h.events.lastState(); last.reason != domain.ReasonCaptureInterrupted {
		t.Fatalf("unexpected reason: %s", last.reason)
	}
	if !errors.Is(h.controller.LastError(), domain.ErrDeviceUnavailable) {
		t.Fatalf("unexpected last error: %v", h.controller.LastError())
	}
}

func TestControllerRulesRunBeforeSink(t *testing.T) {
	t.Parallel()

	h := newHarness(t, upperRules{}, testConfig())
	session := h.connect(t)

	session.push(
		domain.TurnStarted{Speaker: domain.SpeakerUser},
		domain.TurnText{Speaker: domain.SpeakerUser, EntryHint: "item_u", Text: "turn on"},
		domain.TurnText{Speaker: domain.SpeakerUser, EntryHint: "item_u", Text: "turn on the lights", IsFinal: true},
		domain.TurnEnded{Speaker: domain.SpeakerUser, FullText: "turn on the lights"},
	)

	eventually(t, "sink delivery", func() bool { return len(h.sink.published()) == 1 })
	if got := h.sink.published()[0].Text; got != "TURN ON THE LIGHTS" {
		t.Fatalf("sink received untransformed text: %q", got)
	}
	updates := h.events.snapshotEntries()
	if updates[0].Text != "turn on" {
		t.Fatalf("interim text must not be transformed: %q", updates[0].Text)
	}
	if h.controller.Transcript()[0].Text != "TURN ON THE LIGHTS" {
		t.Fatalf("transcript not transformed")
	}
}

func TestControllerRulesFailureKeepsRawText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, upperRules{err: errors.New("rules did not converge")}, testConfig())
	session := h.connect(t)

	session.push(domain.TurnText{Speaker: domain.SpeakerAgent, Text: "raw", IsFinal: true})

	eventually(t, "sink delivery", func() bool { return len(h.sink.published()) == 1 })
	if got := h.sink.published()[0].Text; got != "raw" {
		t.Fatalf("expected raw text, got %q", got)
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeRules {
		t.Fatalf("expected rules error event, got %+v", errs)
	}
}

func TestControllerSinkFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.sink.err = errors.New("broker unavailable")
	session := h.connect(t)

	session.push(domain.TurnEnded{Speaker: domain.SpeakerAgent, FullText: "Done."})

	eventually(t, "sink error", func() bool { return len(h.events.snapshotErrors()) == 1 })
	if h.events.snapshotErrors()[0].code != domain.ErrorCodeSink {
		t.Fatalf("expected sink error code")
	}
	if h.controller.State() != domain.StateConnected {
		t.Fatalf("sink failure must not end the session")
	}
	if entries := h.controller.Transcript(); len(entries) != 1 || entries[0].Text != "Done." {
		t.Fatalf("expected entry built from full text, got %+v", entries)
	}
}

func TestControllerInterruptedMarksAgentEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := h.connect(t)

	session.push(
		domain.TurnStarted{Speaker: domain.SpeakerAgent},
		domain.TurnText{Speaker: domain.SpeakerAgent, EntryHint: "item_a", Text: "Let me expl"},
		domain.Interrupted{Speaker: domain.SpeakerAgent},
	)

	eventually(t, "interruption", func() bool {
		entries := h.controller.Transcript()
		return len(entries) == 1 && entries[0].IsInterrupted
	})
	entry := h.controller.Transcript()[0]
	if entry.IsFinal {
		t.Fatalf("interrupted open entry must stay non-final")
	}
	if h.controller.Status().Speaking {
		t.Fatalf("expected speaking flag cleared")
	}
}

func TestControllerActivityFlags(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := h.connect(t)

	session.push(domain.TurnStarted{Speaker: domain.SpeakerUser})
	eventually(t, "listening", func() bool { return h.controller.Status().Listening })

	session.push(domain.TurnEnded{Speaker: domain.SpeakerUser}, domain.TurnStarted{Speaker: domain.SpeakerAgent})
	eventually(t, "speaking", func() bool {
		status := h.controller.Status()
		return status.Speaking && !status.Listening
	})
}

func TestControllerClearTranscript(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := h.connect(t)

	session.push(domain.TurnText{Speaker: domain.SpeakerAgent, EntryHint: "item_a", Text: "partial"})
	eventually(t, "interim entry", func() bool { return len(h.controller.Transcript()) == 1 })

	h.controller.ClearTranscript()
	if len(h.controller.Transcript()) != 0 {
		t.Fatalf("expected empty transcript")
	}

	session.push(domain.TurnText{Speaker: domain.SpeakerAgent, EntryHint: "item_a", Text: "partial more", IsFinal: true})
	eventually(t, "fresh entry", func() bool { return len(h.controller.Transcript()) == 1 })
	if got := h.controller.Transcript()[0]; got.Text != "partial more" || !got.IsFinal {
		t.Fatalf("unexpected entry after clear: %+v", got)
	}
	h.events.mu.Lock()
	cleared := h.events.cleared
	h.events.mu.Unlock()
	if cleared != 1 {
		t.Fatalf("expected one cleared event, got %d", cleared)
	}
}

func TestControllerAudioLevel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.handle.setLevel(0.5)
	h.connect(t)

	eventually(t, "level sample", func() bool { return h.controller.AudioLevel() == 0.5 })

	if _, err := h.controller.ToggleMute(); err != nil {
		t.Fatalf("mute failed: %v", err)
	}
	if h.controller.AudioLevel() != 0 {
		t.Fatalf("expected zero level while muted")
	}

	h.controller.Disconnect()
	if h.controller.AudioLevel() != 0 {
		t.Fatalf("expected zero level when idle")
	}
}

func TestControllerChangeVoiceReconnects(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	second := newFakeHandle()
	h.capture.handles = append(h.capture.handles, second)
	first := h.connect(t)

	if err := h.controller.ChangeVoice(context.Background(), domain.VoiceEcho); err != nil {
		t.Fatalf("change voice failed: %v", err)
	}

	if h.controller.State() != domain.StateConnected {
		t.Fatalf("expected reconnected, got %s", h.controller.State())
	}
	if !first.isClosed() || !h.handle.isReleased() {
		t.Fatalf("expected first session released")
	}
	if second.isReleased() {
		t.Fatalf("second capture must stay live")
	}
	if got := h.credentials.lastConfig().Voice; got != domain.VoiceEcho {
		t.Fatalf("expected echo voice in credential request, got %s", got)
	}

	var reasons []domain.StateReason
	for _, event := range h.events.snapshotStates() {
		reasons = append(reasons, event.reason)
	}
	if !slices.Contains(reasons, domain.ReasonReconnecting) {
		t.Fatalf("expected reconnecting transition, got %v", reasons)
	}
}

func TestControllerSetPresetWhileIdleOnlyRecords(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	if err := h.controller.SetAgentPreset(context.Background(), domain.PresetTutor); err != nil {
		t.Fatalf("set preset failed: %v", err)
	}
	if h.capture.calls != 0 {
		t.Fatalf("idle preset change must not connect")
	}
	if h.controller.Status().AgentPreset != domain.PresetTutor {
		t.Fatalf("expected tutor preset recorded")
	}

	h.connect(t)
	if got := h.credentials.lastConfig().ResolvedInstructions(); got != domain.PresetTutor.Instructions() {
		t.Fatalf("expected tutor instructions, got %q", got)
	}
}

func TestControllerRejectsInvalidSelections(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	if err := h.controller.ChangeVoice(context.Background(), "robot"); err == nil {
		t.Fatalf("expected invalid voice error")
	}
	if err := h.controller.SetAgentPreset(context.Background(), "pirate"); err == nil {
		t.Fatalf("expected invalid preset error")
	}
	temp := 3.0
	if err := h.controller.Connect(context.Background(), domain.ConnectOptions{Temperature: &temp}); err == nil {
		t.Fatalf("expected invalid temperature error")
	}
	if h.capture.calls != 0 {
		t.Fatalf("invalid config must not acquire capture")
	}
}

func TestControllerCloseRejectsConnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	session := h.connect(t)

	h.controller.Close()
	if !session.isClosed() || !h.handle.isReleased() {
		t.Fatalf("expected close to release resources")
	}
	if err := h.controller.Connect(context.Background(), domain.ConnectOptions{}); !errors.Is(err, domain.ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed, got %v", err)
	}
}

func TestControllerStatusReportsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, testConfig())
	h.connect(t)

	status := h.controller.Status()
	if status.State != domain.StateConnected || status.SessionID == "" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Voice != domain.VoiceAlloy || status.Model != domain.DefaultModel {
		t.Fatalf("unexpected selection in status: %+v", status)
	}
}
