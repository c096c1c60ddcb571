package realtime

import "github.com/google/uuid"

// Client event types.
const (
	eventSessionUpdate       = "session.update"
	eventInputAudioAppend    = "input_audio_buffer.append"
	eventInputAudioClear     = "input_audio_buffer.clear"
	eventConversationItemAdd = "conversation.item.create"
	eventResponseCreate      = "response.create"
)

// Server event types.
const (
	eventSessionCreated        = "session.created"
	eventSpeechStarted         = "input_audio_buffer.speech_started"
	eventInputTranscriptDelta  = "conversation.item.input_audio_transcription.delta"
	eventInputTranscriptDone   = "conversation.item.input_audio_transcription.completed"
	eventResponseCreated       = "response.created"
	eventResponseDone          = "response.done"
	eventAudioTranscriptDelta  = "response.audio_transcript.delta"
	eventAudioTranscriptDone   = "response.audio_transcript.done"
	eventOutputTranscriptDelta = "response.output_audio_transcript.delta"
	eventOutputTranscriptDone  = "response.output_audio_transcript.done"
	eventTextDelta             = "response.text.delta"
	eventTextDone              = "response.text.done"
	eventOutputTextDelta       = "response.output_text.delta"
	eventOutputTextDone        = "response.output_text.done"
	eventError                 = "error"
)

// Server VAD settings sent with every session.update.
const (
	vadThreshold         = 0.5
	vadPrefixPaddingMS   = 300
	vadSilenceDurationMS = 500
	audioFormat          = "pcm16"
	transcriptionModel   = "whisper-1"
)

// serverEvent is the subset of server event fields the session reads.
type serverEvent struct {
	Type       string        `json:"type"`
	EventID    string        `json:"event_id"`
	ItemID     string        `json:"item_id"`
	ResponseID string        `json:"response_id"`
	Delta      string        `json:"delta"`
	Transcript string        `json:"transcript"`
	Text       string        `json:"text"`
	Response   *responseInfo `json:"response"`
	Error      *serverError  `json:"error"`
}

type responseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type serverError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

type sessionUpdate struct {
	Modalities              []string            `json:"modalities"`
	Instructions            string              `json:"instructions"`
	Voice                   string              `json:"voice"`
	Temperature             float64             `json:"temperature"`
	MaxResponseOutputTokens int                 `json:"max_response_output_tokens"`
	Tools                   []any               `json:"tools"`
	ToolChoice              string              `json:"tool_choice"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription transcriptionConfig `json:"input_audio_transcription"`
	TurnDetection           turnDetection       `json:"turn_detection"`
}

func generateEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

func clientEvent(eventType string, fields map[string]any) map[string]any {
	event := map[string]any{
		"event_id": generateEventID(),
		"type":     eventType,
	}
	for k, v := range fields {
		event[k] = v
	}
	return event
}
