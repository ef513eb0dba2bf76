package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veerhq/voicekit/pkg/voice"
)

const ProtocolVersion1 = "1"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// Settings is the wire shape of the full settings snapshot.
type Settings struct {
	WakeEnabled          bool          `json:"wake_enabled"`
	WakePhrase           string        `json:"wake_phrase"`
	WakePrompt           string        `json:"wake_prompt"`
	WakeSoundEnabled     bool          `json:"wake_sound_enabled"`
	WakeSoundFrequencyHz float64       `json:"wake_sound_frequency_hz"`
	WakeSoundDurationMS  int           `json:"wake_sound_duration_ms"`
	AutoSend             bool          `json:"auto_send"`
	Language             string        `json:"language"`
	Voice                VoiceSettings `json:"voice"`
}

type VoiceSettings struct {
	VoiceName string  `json:"voice_name,omitempty"`
	Lang      string  `json:"lang,omitempty"`
	Rate      float64 `json:"rate"`
	Pitch     float64 `json:"pitch"`
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	WakeEnabled          *bool               `json:"wake_enabled,omitempty"`
	WakePhrase           *string             `json:"wake_phrase,omitempty"`
	WakePrompt           *string             `json:"wake_prompt,omitempty"`
	WakeSoundEnabled     *bool               `json:"wake_sound_enabled,omitempty"`
	WakeSoundFrequencyHz *float64            `json:"wake_sound_frequency_hz,omitempty"`
	WakeSoundDurationMS  *int                `json:"wake_sound_duration_ms,omitempty"`
	AutoSend             *bool               `json:"auto_send,omitempty"`
	Language             *string             `json:"language,omitempty"`
	Voice                *VoiceSettingsPatch `json:"voice,omitempty"`
}

type VoiceSettingsPatch struct {
	VoiceName *string  `json:"voice_name,omitempty"`
	Lang      *string  `json:"lang,omitempty"`
	Rate      *float64 `json:"rate,omitempty"`
	Pitch     *float64 `json:"pitch,omitempty"`
}

// State is the wire shape of the controller state snapshot.
type State struct {
	Phase           string `json:"phase"`
	Transcript      string `json:"transcript"`
	AutoSendPending bool   `json:"auto_send_pending"`
}

type HelloClient struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// Capabilities declares which speech capabilities the client can execute.
type Capabilities struct {
	Capture   bool `json:"capture"`
	Synthesis bool `json:"synthesis"`
	Tone      bool `json:"tone,omitempty"`
}

type ClientHello struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Client          HelloClient  `json:"client,omitempty"`
	Capabilities    Capabilities `json:"capabilities"`
}

type ClientToggleMic struct {
	Type string `json:"type"`
}

type ClientToggleWake struct {
	Type    string `json:"type"`
	Enabled *bool  `json:"enabled"`
}

type ClientReplay struct {
	Type string `json:"type"`
}

type ClientSetSettings struct {
	Type     string        `json:"type"`
	Settings SettingsPatch `json:"settings"`
}

type ClientCaptureInterim struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
	Text     string `json:"text"`
}

type ClientCaptureEnd struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
}

type ClientCaptureError struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
	Message  string `json:"message,omitempty"`
}

type ClientSpeakDone struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
}

type ClientSpeakError struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	Message     string `json:"message,omitempty"`
}

type ClientVoices struct {
	Type      string                  `json:"type"`
	RequestID string                  `json:"request_id"`
	Voices    []voice.VoiceDescriptor `json:"voices,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// DecodeClientMessage parses one client JSON frame into its typed form.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if strings.TrimSpace(msg.ProtocolVersion) == "" {
			return nil, badRequest("hello.protocol_version is required", "protocol_version")
		}
		return msg, nil
	case "toggle_mic":
		var msg ClientToggleMic
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid toggle_mic", "")
		}
		return msg, nil
	case "toggle_wake":
		var msg ClientToggleWake
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid toggle_wake", "")
		}
		if msg.Enabled == nil {
			return nil, badRequest("toggle_wake.enabled is required", "enabled")
		}
		return msg, nil
	case "replay":
		var msg ClientReplay
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid replay", "")
		}
		return msg, nil
	case "set_settings":
		var msg ClientSetSettings
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid set_settings", "")
		}
		if err := ValidateSettingsPatch(msg.Settings); err != nil {
			return nil, err
		}
		return msg, nil
	case "capture_interim":
		var msg ClientCaptureInterim
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid capture_interim", "")
		}
		if strings.TrimSpace(msg.StreamID) == "" {
			return nil, badRequest("capture_interim.stream_id is required", "stream_id")
		}
		return msg, nil
	case "capture_end":
		var msg ClientCaptureEnd
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid capture_end", "")
		}
		if strings.TrimSpace(msg.StreamID) == "" {
			return nil, badRequest("capture_end.stream_id is required", "stream_id")
		}
		return msg, nil
	case "capture_error":
		var msg ClientCaptureError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid capture_error", "")
		}
		if strings.TrimSpace(msg.StreamID) == "" {
			return nil, badRequest("capture_error.stream_id is required", "stream_id")
		}
		if strings.TrimSpace(msg.Message) == "" {
			msg.Message = "capture error"
		}
		return msg, nil
	case "speak_done":
		var msg ClientSpeakDone
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid speak_done", "")
		}
		if strings.TrimSpace(msg.UtteranceID) == "" {
			return nil, badRequest("speak_done.utterance_id is required", "utterance_id")
		}
		return msg, nil
	case "speak_error":
		var msg ClientSpeakError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid speak_error", "")
		}
		if strings.TrimSpace(msg.UtteranceID) == "" {
			return nil, badRequest("speak_error.utterance_id is required", "utterance_id")
		}
		if strings.TrimSpace(msg.Message) == "" {
			msg.Message = "synthesis error"
		}
		return msg, nil
	case "voices":
		var msg ClientVoices
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid voices", "")
		}
		if strings.TrimSpace(msg.RequestID) == "" {
			return nil, badRequest("voices.request_id is required", "request_id")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ValidateSettingsPatch rejects values the settings layer would refuse outright.
// Clamping of out-of-range rate/pitch stays in the settings layer.
func ValidateSettingsPatch(p SettingsPatch) error {
	if p.Language != nil && strings.TrimSpace(*p.Language) == "" {
		return badRequest("settings.language must not be empty", "settings.language")
	}
	if p.WakeSoundFrequencyHz != nil && *p.WakeSoundFrequencyHz <= 0 {
		return badRequest("settings.wake_sound_frequency_hz must be > 0", "settings.wake_sound_frequency_hz")
	}
	if p.WakeSoundDurationMS != nil && *p.WakeSoundDurationMS <= 0 {
		return badRequest("settings.wake_sound_duration_ms must be > 0", "settings.wake_sound_duration_ms")
	}
	if p.Voice != nil {
		if p.Voice.Rate != nil && *p.Voice.Rate <= 0 {
			return badRequest("settings.voice.rate must be > 0", "settings.voice.rate")
		}
		if p.Voice.Pitch != nil && *p.Voice.Pitch <= 0 {
			return badRequest("settings.voice.pitch must be > 0", "settings.voice.pitch")
		}
	}
	return nil
}

type HelloAckLimits struct {
	MaxMessageBytes int64 `json:"max_message_bytes"`
	PingIntervalMS  int   `json:"ping_interval_ms"`
}

type ServerHelloAck struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	Settings        Settings        `json:"settings"`
	State           State           `json:"state"`
	Limits          *HelloAckLimits `json:"limits,omitempty"`
}

type ServerCaptureStart struct {
	Type       string `json:"type"`
	StreamID   string `json:"stream_id"`
	Lang       string `json:"lang,omitempty"`
	Continuous bool   `json:"continuous,omitempty"`
}

type ServerCaptureStop struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id,omitempty"`
}

type ServerSpeak struct {
	Type        string  `json:"type"`
	UtteranceID string  `json:"utterance_id"`
	Text        string  `json:"text"`
	VoiceName   string  `json:"voice_name,omitempty"`
	Lang        string  `json:"lang,omitempty"`
	Rate        float64 `json:"rate,omitempty"`
	Pitch       float64 `json:"pitch,omitempty"`
}

type ServerSpeakStop struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id,omitempty"`
}

type ServerPlayTone struct {
	Type        string  `json:"type"`
	FrequencyHz float64 `json:"frequency_hz"`
	DurationMS  int     `json:"duration_ms"`
}

type ServerListVoices struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
}

type ServerState struct {
	Type  string `json:"type"`
	State State  `json:"state"`
}

type ServerPrompt struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerWakeStatus struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

type ServerWakeFlash struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

type ServerSettings struct {
	Type     string   `json:"type"`
	Settings Settings `json:"settings"`
}

type ServerCommit struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerError struct {
	Type    string `json:"type"`
	Scope   string `json:"scope,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}
