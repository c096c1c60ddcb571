package ports

import (
	"context"
	"io"

	"voicelink/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate       int
	Channels         int
	InputFormat      string
	InputDevice      string
	EchoCancelDevice string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGain         bool
}

// CaptureHandle is exclusive access to a live microphone stream.
// Reads return little-endian s16 PCM at the configured rate.
type CaptureHandle interface {
	io.Reader
	// Level returns the latest normalized loudness in [0, 1], 0 once released.
	Level() float64
	// SetEnabled toggles the capture track. Disabled tracks keep sampling
	// but callers must not forward their audio.
	SetEnabled(enabled bool)
	Enabled() bool
	// Release stops the device. Safe to call more than once.
	Release() error
}

// AudioCapture acquires microphone streams. ctx bounds acquisition only; a
// returned handle stays live until Release.
type AudioCapture interface {
	Acquire(ctx context.Context, cfg AudioConfig) (CaptureHandle, error)
}

// CredentialClient exchanges a session config for a short-lived credential.
type CredentialClient interface {
	RequestToken(ctx context.Context, cfg domain.SessionConfig) (domain.Credential, error)
}

// AvailabilityProber reports whether the voice feature can be offered.
type AvailabilityProber interface {
	Probe(ctx context.Context) (domain.Availability, error)
}

// TransportState is the transport-local lifecycle.
type TransportState string

const (
	TransportUnopened TransportState = "unopened"
	TransportOpening  TransportState = "opening"
	TransportOpen     TransportState = "open"
	TransportClosed   TransportState = "closed"
)

// TransportCapabilities is resolved once when the transport is constructed.
type TransportCapabilities struct {
	NativeMute bool
	UserText   bool
}

// TransportSession is one live connection to the remote voice agent.
type TransportSession interface {
	Open(ctx context.Context, cred domain.Credential, cfg domain.SessionConfig) error
	// Events is closed when the session reaches TransportClosed.
	Events() <-chan domain.TransportEvent
	SendAudio(chunk []byte) error
	SendUserText(text string) error
	SetMuted(muted bool) error
	// Close is idempotent and safe before Open completes.
	Close() error
	State() TransportState
}

// Transport creates unopened transport sessions.
type Transport interface {
	Capabilities() TransportCapabilities
	NewSession() TransportSession
}

// TranscriptSink receives finalized transcript entries.
type TranscriptSink interface {
	PublishTranscript(ctx context.Context, sessionID string, entry domain.TranscriptEntry) error
}

// RulesEngine transforms finalized transcript text using deterministic rules.
type RulesEngine interface {
	Apply(speaker domain.Speaker, text string) (string, error)
}

// EventSink emits controller state and events to the UI. Calls are made in
// transition order and must not call back into the controller.
type EventSink interface {
	SessionStateChanged(state domain.ConnectionState, reason domain.StateReason)
	TranscriptUpdated(entry domain.TranscriptEntry)
	TranscriptCleared()
	SessionError(code domain.ErrorCode, detail string)
}
