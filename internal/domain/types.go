package domain

import "time"

// ConnectionState models the voice session lifecycle.
type ConnectionState string

const (
	StateIdle          ConnectionState = "idle"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateError         ConnectionState = "error"
	StateDisconnecting ConnectionState = "disconnecting"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonReady              StateReason = "ready"
	ReasonConnecting         StateReason = "connecting"
	ReasonConnected          StateReason = "connected"
	ReasonDisconnecting      StateReason = "disconnecting"
	ReasonDisconnected       StateReason = "disconnected"
	ReasonReconnecting       StateReason = "reconnecting"
	ReasonPermissionDenied   StateReason = "permission_denied"
	ReasonDeviceUnavailable  StateReason = "device_unavailable"
	ReasonCredentialFailed   StateReason = "credential_failed"
	ReasonTransportFailed    StateReason = "transport_failed"
	ReasonRemoteError        StateReason = "remote_error"
	ReasonCaptureInterrupted StateReason = "capture_interrupted"
)

// ErrorCode identifies non-fatal and fatal session errors.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodeCapture    ErrorCode = "capture"
	ErrorCodeCredential ErrorCode = "credential"
	ErrorCodeTransport  ErrorCode = "transport"
	ErrorCodeMute       ErrorCode = "mute"
	ErrorCodeMessage    ErrorCode = "message"
	ErrorCodeRules      ErrorCode = "rules"
	ErrorCodeSink       ErrorCode = "sink"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// TranscriptEntry is one speech turn.
type TranscriptEntry struct {
	ID            string    `json:"id"`
	Seq           uint64    `json:"seq"`
	Speaker       Speaker   `json:"speaker"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"createdAt"`
	IsFinal       bool      `json:"isFinal"`
	IsInterrupted bool      `json:"isInterrupted,omitempty"`
}

// Credential is a short-lived, single-use secret for one transport connection.
type Credential struct {
	Token     string    `json:"-"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the credential can no longer open a transport.
func (c Credential) Expired(now time.Time) bool {
	return c.Token == "" || !now.Before(c.ExpiresAt)
}

// Availability is the result of the voice feature probe.
type Availability struct {
	Available bool            `json:"available"`
	Models    []string        `json:"models"`
	Voices    []string        `json:"voices"`
	Features  map[string]bool `json:"features"`
}

// Status summarizes the current controller state for callers.
type Status struct {
	State       ConnectionState `json:"state"`
	SessionID   string          `json:"sessionId,omitempty"`
	Muted       bool            `json:"muted"`
	Listening   bool            `json:"listening"`
	Speaking    bool            `json:"speaking"`
	AudioLevel  float64         `json:"audioLevel"`
	Duration    int             `json:"duration"`
	LastError   string          `json:"lastError,omitempty"`
	Model       string          `json:"model"`
	Voice       Voice           `json:"voice"`
	AgentPreset AgentPreset     `json:"agentPreset"`
}
