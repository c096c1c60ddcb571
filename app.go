package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicelink/internal/bootstrap"
	"voicelink/internal/config"
	"voicelink/internal/domain"
	"voicelink/internal/timer"
	"voicelink/internal/usecase"
)

const (
	eventState           = "voicelink:state"
	eventTranscript      = "voicelink:transcript"
	eventTranscriptClear = "voicelink:transcript-cleared"
	eventError           = "voicelink:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services   bootstrap.Services
	controller *usecase.Controller
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.controller = services.Controller
	a.SessionStateChanged(domain.StateIdle, domain.ReasonReady)
}

func (a *App) shutdown(ctx context.Context) {
	if a.controller == nil {
		return
	}
	_ = a.services.Close(ctx)
}

// ConnectRequest carries optional overrides from the UI. Empty fields and a
// nil temperature keep the current selection.
type ConnectRequest struct {
	ChatID       string   `json:"chatId"`
	Model        string   `json:"model"`
	Voice        string   `json:"voice"`
	Instructions string   `json:"instructions"`
	Temperature  *float64 `json:"temperature,omitempty"`
	AgentPreset  string   `json:"agentPreset"`
}

func (r ConnectRequest) options() domain.ConnectOptions {
	return domain.ConnectOptions{
		ChatID:       r.ChatID,
		Model:        r.Model,
		Voice:        domain.Voice(r.Voice),
		Instructions: r.Instructions,
		Temperature:  r.Temperature,
		AgentPreset:  domain.AgentPreset(r.AgentPreset),
	}
}

// Connect starts a voice session.
func (a *App) Connect(req ConnectRequest) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Connect(a.ctx, req.options()); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Disconnect ends the voice session, if any.
func (a *App) Disconnect() domain.Status {
	if a.controller == nil {
		return a.GetStatus()
	}
	a.controller.Disconnect()
	return a.controller.Status()
}

// ToggleMute flips the microphone mute state.
func (a *App) ToggleMute() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if _, err := a.controller.ToggleMute(); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// SendMessage injects a typed user turn into the conversation.
func (a *App) SendMessage(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SendMessage(text)
}

// ClearTranscript empties the visible transcript.
func (a *App) ClearTranscript() {
	if a.controller != nil {
		a.controller.ClearTranscript()
	}
}

// ChangeVoice selects a voice, reconnecting a live session.
func (a *App) ChangeVoice(voice string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.ChangeVoice(a.ctx, domain.Voice(voice))
}

// SetAgentPreset selects an agent preset, reconnecting a live session.
func (a *App) SetAgentPreset(preset string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SetAgentPreset(a.ctx, domain.AgentPreset(preset))
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.StateError, LastError: a.bootErr.Error()}
		}
		return domain.Status{State: domain.StateIdle}
	}
	return a.controller.Status()
}

// GetTranscript returns the current transcript.
func (a *App) GetTranscript() []domain.TranscriptEntry {
	if a.controller == nil {
		return []domain.TranscriptEntry{}
	}
	return a.controller.Transcript()
}

// FormatDuration renders elapsed seconds for display.
func (a *App) FormatDuration(seconds int) string {
	return timer.Format(seconds)
}

// ProbeAvailability asks the token backend whether voice is offered.
func (a *App) ProbeAvailability() (domain.Availability, error) {
	if err := a.requireReady(); err != nil {
		return domain.Availability{}, err
	}
	return a.services.Prober.Probe(a.ctx)
}

// GetOptions lists the selectable voices and presets.
func (a *App) GetOptions() map[string][]string {
	voices := make([]string, 0, len(domain.Voices))
	for _, voice := range domain.Voices {
		voices = append(voices, string(voice))
	}
	presets := make([]string, 0, len(domain.AgentPresets))
	for _, preset := range domain.AgentPresets {
		presets = append(presets, string(preset))
	}
	return map[string][]string{"voices": voices, "presets": presets}
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"model":            a.cfg.Session.Defaults.Model,
		"voice":            string(a.cfg.Session.Defaults.Voice),
		"agentPreset":      string(a.cfg.Session.Defaults.AgentPreset),
		"tokenUrl":         a.cfg.Token.URL,
		"rulesFile":        a.cfg.Rules.Path,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"sampleRate":       strconv.Itoa(a.cfg.Audio.SampleRate),
		"transcriptSink":   sinkLabel(a.services),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.ConnectionState, reason domain.StateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventState, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

// TranscriptUpdated emits a new or changed transcript entry.
func (a *App) TranscriptUpdated(entry domain.TranscriptEntry) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, entry)
}

// TranscriptCleared tells the frontend to drop its transcript.
func (a *App) TranscriptCleared() {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscriptClear)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Ready"
	case domain.ReasonConnecting:
		return "Connecting..."
	case domain.ReasonConnected:
		return "Connected"
	case domain.ReasonDisconnecting:
		return "Disconnecting..."
	case domain.ReasonDisconnected:
		return "Disconnected"
	case domain.ReasonReconnecting:
		return "Applying new settings..."
	case domain.ReasonPermissionDenied:
		return "Microphone access denied"
	case domain.ReasonDeviceUnavailable:
		return "No microphone available"
	case domain.ReasonCredentialFailed:
		return "Could not start a voice session"
	case domain.ReasonTransportFailed:
		return "Voice connection failed"
	case domain.ReasonRemoteError:
		return "Voice service reported an error"
	case domain.ReasonCaptureInterrupted:
		return "Microphone stopped unexpectedly"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCapture:
		return "Microphone issue"
	case domain.ErrorCodeCredential:
		return "Session token request failed"
	case domain.ErrorCodeTransport:
		return "Voice connection issue"
	case domain.ErrorCodeMute:
		return "Mute only applied locally"
	case domain.ErrorCodeMessage:
		return "Message was not sent"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeSink:
		return "Transcript export failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func sinkLabel(services bootstrap.Services) string {
	if services.Publisher != nil && services.Publisher.Enabled() {
		return "kafka:" + services.Config.Kafka.Topic
	}
	return "log"
}
