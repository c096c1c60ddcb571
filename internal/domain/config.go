package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Voice is one of the voices offered by the speech agent.
type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
	VoiceNova    Voice = "nova"
	VoiceShimmer Voice = "shimmer"
)

// Voices lists every supported voice in display order.
var Voices = []Voice{VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer}

// Valid reports whether v is a supported voice.
func (v Voice) Valid() bool {
	for _, known := range Voices {
		if v == known {
			return true
		}
	}
	return false
}

// AgentPreset selects a canned instruction set for the agent.
type AgentPreset string

const (
	PresetDefault   AgentPreset = "default"
	PresetTechnical AgentPreset = "technical"
	PresetCreative  AgentPreset = "creative"
	PresetTutor     AgentPreset = "tutor"
)

// AgentPresets lists every preset in display order.
var AgentPresets = []AgentPreset{PresetDefault, PresetTechnical, PresetCreative, PresetTutor}

var presetInstructions = map[AgentPreset]string{
	PresetDefault: `You are a helpful and friendly AI assistant engaging in a voice conversation.
Key behaviors:
- Be conversational and natural in your responses
- Keep responses concise and clear for voice interaction
- Be proactive in asking clarifying questions when needed
- Use a warm and engaging tone
- Acknowledge when you hear the user to show you're listening
- Handle interruptions gracefully
- If asked to help with code, provide clear verbal explanations`,
	PresetTechnical: `You are a technical assistant specializing in software development and programming.
Focus on:
- Providing clear technical explanations
- Offering code solutions and debugging help
- Explaining complex concepts in simple terms
- Being precise with technical terminology
- Suggesting best practices and patterns`,
	PresetCreative: `You are a creative assistant helping with brainstorming and ideation.
Focus on:
- Encouraging creative thinking
- Offering unique perspectives
- Building on ideas collaboratively
- Using imagination and "what if" scenarios
- Being enthusiastic and inspiring`,
	PresetTutor: `You are a patient tutor helping users learn new concepts.
Focus on:
- Breaking down complex topics into simple steps
- Checking understanding frequently
- Providing examples and analogies
- Encouraging questions
- Adapting explanations to the user's level
- Celebrating progress and understanding`,
}

// Valid reports whether p is a known preset.
func (p AgentPreset) Valid() bool {
	_, ok := presetInstructions[p]
	return ok
}

// Instructions returns the instruction text for the preset.
func (p AgentPreset) Instructions() string {
	return presetInstructions[p]
}

const (
	DefaultModel             = "gpt-realtime"
	DefaultTemperature       = 0.8
	DefaultMaxResponseTokens = 4096
	DefaultToolChoice        = "auto"
)

// SessionConfig is the immutable configuration of one connection attempt.
type SessionConfig struct {
	Model             string      `json:"model" yaml:"model"`
	Voice             Voice       `json:"voice" yaml:"voice"`
	Instructions      string      `json:"instructions,omitempty" yaml:"instructions"`
	Temperature       float64     `json:"temperature" yaml:"temperature"`
	MaxResponseTokens int         `json:"maxResponseTokens" yaml:"maxResponseTokens"`
	AgentPreset       AgentPreset `json:"agentPreset" yaml:"agentPreset"`
	Tools             []any       `json:"tools,omitempty" yaml:"-"`
	ToolChoice        string      `json:"toolChoice,omitempty" yaml:"toolChoice"`
}

// DefaultSessionConfig returns the defaults used when nothing else is configured.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:             DefaultModel,
		Voice:             VoiceAlloy,
		Temperature:       DefaultTemperature,
		MaxResponseTokens: DefaultMaxResponseTokens,
		AgentPreset:       PresetDefault,
		ToolChoice:        DefaultToolChoice,
	}
}

// ResolvedInstructions returns explicit instructions, falling back to the preset text.
func (c SessionConfig) ResolvedInstructions() string {
	if text := strings.TrimSpace(c.Instructions); text != "" {
		return text
	}
	if c.AgentPreset.Valid() {
		return c.AgentPreset.Instructions()
	}
	return PresetDefault.Instructions()
}

// Validate checks the config against the token backend contract.
func (c SessionConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if !c.Voice.Valid() {
		errs = append(errs, fmt.Errorf("unsupported voice %q", c.Voice))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %.2f outside [0, 2]", c.Temperature))
	}
	if c.MaxResponseTokens < 1 || c.MaxResponseTokens > DefaultMaxResponseTokens {
		errs = append(errs, fmt.Errorf("max response tokens %d outside [1, %d]", c.MaxResponseTokens, DefaultMaxResponseTokens))
	}
	if c.AgentPreset != "" && !c.AgentPreset.Valid() {
		errs = append(errs, fmt.Errorf("unknown agent preset %q", c.AgentPreset))
	}
	return errors.Join(errs...)
}

// ConnectOptions overrides parts of the current config for one connect call.
// Zero values keep the current setting.
type ConnectOptions struct {
	ChatID       string
	Model        string
	Voice        Voice
	Instructions string
	Temperature  *float64
	AgentPreset  AgentPreset
}

// Apply returns base with the non-zero options applied.
func (o ConnectOptions) Apply(base SessionConfig) SessionConfig {
	out := base
	if o.Model != "" {
		out.Model = o.Model
	}
	if o.Voice != "" {
		out.Voice = o.Voice
	}
	if o.Instructions != "" {
		out.Instructions = o.Instructions
	}
	if o.Temperature != nil {
		out.Temperature = *o.Temperature
	}
	if o.AgentPreset != "" {
		out.AgentPreset = o.AgentPreset
	}
	if out.Tools != nil {
		out.Tools = append([]any(nil), out.Tools...)
	}
	return out
}
