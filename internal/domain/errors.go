package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	ErrMalformedToken    = errors.New("malformed session token")
	ErrCredentialExpired = errors.New("session credential expired")
	ErrTimeout           = errors.New("timed out")
	ErrNotConnected      = errors.New("voice session is not connected")
	ErrMuteUnsupported   = errors.New("transport cannot mute remote audio")
	ErrSuperseded        = errors.New("connect attempt superseded")
	ErrTextUnsupported   = errors.New("transport cannot send text messages")
	ErrControllerClosed  = errors.New("voice controller is closed")
)

// CaptureError is returned when the microphone cannot be acquired or read.
type CaptureError struct {
	Kind   error
	Detail string
}

func (e *CaptureError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *CaptureError) Unwrap() error { return e.Kind }

// TokenError is a failed credential exchange. Status is 0 for network failures.
type TokenError struct {
	Status  int
	Message string
	Err     error
}

func (e *TokenError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("token request failed (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("token request failed: %s", e.Message)
}

func (e *TokenError) Unwrap() error { return e.Err }

// TransportError is a connection-level failure of the voice transport.
type TransportError struct {
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	return "voice transport: " + e.Reason
}

func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage renders err as a single human-readable line for the UI.
func UserMessage(err error) string {
	var tokenErr *TokenError
	var transportErr *TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access was denied. Allow microphone access and try again."
	case errors.Is(err, ErrDeviceUnavailable):
		return "No microphone is available right now."
	case errors.Is(err, ErrMalformedToken):
		return "Voice service returned an invalid session token."
	case errors.Is(err, ErrTimeout):
		return "Voice service did not respond in time."
	case errors.As(err, &tokenErr):
		if tokenErr.Message != "" {
			return tokenErr.Message
		}
		return "Failed to get voice session token"
	case errors.As(err, &transportErr):
		return "Voice connection failed: " + transportErr.Reason
	default:
		return err.Error()
	}
}
