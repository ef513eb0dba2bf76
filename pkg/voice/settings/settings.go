package settings

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/veerhq/voicekit/pkg/voice"
	"github.com/veerhq/voicekit/pkg/voice/bus"
)

// Keys under which values persist. Values are stringified: bools via
// strconv, numbers via strconv, the voice settings as a JSON blob.
const (
	KeyWakeEnabled        = "wake.enabled"
	KeyWakePhrase         = "wake.phrase"
	KeyWakePrompt         = "wake.prompt"
	KeyWakeSoundEnabled   = "wake.sound.enabled"
	KeyWakeSoundFrequency = "wake.sound.frequency_hz"
	KeyWakeSoundDuration  = "wake.sound.duration_ms"
	KeyAutoSend           = "listen.auto_send"
	KeyVoiceSettings      = "voice.settings"
	KeyLanguage           = "ui.language"
)

// Defaults applied when a value is absent or out of range.
const (
	DefaultWakePhrase       = "hey veer"
	DefaultWakePrompt       = "Yes?"
	DefaultLanguage         = "en-US"
	DefaultSoundFrequencyHz = 880
	DefaultSoundDurationMs  = 180

	minRatePitch = 0.5
	maxRatePitch = 2.0
)

// VoiceSettings are the synthesis parameters.
type VoiceSettings struct {
	// VoiceName selects a synthesis voice; empty means platform default.
	VoiceName string `json:"voice_name,omitempty"`
	// Lang is the BCP 47 language tag.
	Lang string `json:"lang"`
	// Rate is the speech rate multiplier, clamped to [0.5, 2.0].
	Rate float64 `json:"rate"`
	// Pitch is the pitch multiplier, clamped to [0.5, 2.0].
	Pitch float64 `json:"pitch"`
}

// DefaultVoiceSettings returns the initial voice parameters.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Lang: DefaultLanguage, Rate: 1.0, Pitch: 1.0}
}

// Normalize clamps rate and pitch and fills an empty language.
func (v VoiceSettings) Normalize() VoiceSettings {
	if v.Lang == "" {
		v.Lang = DefaultLanguage
	}
	v.Rate = clamp(v.Rate, minRatePitch, maxRatePitch)
	v.Pitch = clamp(v.Pitch, minRatePitch, maxRatePitch)
	return v
}

// SpeakOptions maps the settings onto the capability-level parameters.
func (v VoiceSettings) SpeakOptions() voice.SpeakOptions {
	v = v.Normalize()
	return voice.SpeakOptions{
		VoiceName: v.VoiceName,
		Lang:      v.Lang,
		Rate:      v.Rate,
		Pitch:     v.Pitch,
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// WakeConfig is the wake word configuration.
type WakeConfig struct {
	Enabled bool `json:"enabled"`
	// Phrase is the case-insensitive match target. Never empty after
	// Normalize: an empty or missing stored value falls back to
	// DefaultWakePhrase.
	Phrase string `json:"phrase"`
	// Prompt is the acknowledgement text shown and spoken on detection.
	Prompt       string `json:"prompt"`
	SoundEnabled bool   `json:"sound_enabled"`
	// SoundFrequencyHz and SoundDurationMs parameterize the cue tone;
	// both are strictly positive after Normalize.
	SoundFrequencyHz float64 `json:"sound_frequency_hz"`
	SoundDurationMs  int     `json:"sound_duration_ms"`
}

// DefaultWakeConfig returns the initial wake configuration. Wake starts
// disabled; everything else carries the fixed defaults.
func DefaultWakeConfig() WakeConfig {
	return WakeConfig{
		Phrase:           DefaultWakePhrase,
		Prompt:           DefaultWakePrompt,
		SoundEnabled:     true,
		SoundFrequencyHz: DefaultSoundFrequencyHz,
		SoundDurationMs:  DefaultSoundDurationMs,
	}
}

// Normalize restores the invariants: non-empty phrase, positive tone
// parameters. Prompt is left alone; an explicitly cleared prompt is valid.
func (c WakeConfig) Normalize() WakeConfig {
	if strings.TrimSpace(c.Phrase) == "" {
		c.Phrase = DefaultWakePhrase
	}
	if c.SoundFrequencyHz <= 0 {
		c.SoundFrequencyHz = DefaultSoundFrequencyHz
	}
	if c.SoundDurationMs <= 0 {
		c.SoundDurationMs = DefaultSoundDurationMs
	}
	return c
}

// Settings is the typed layer over a Store. Every setter persists first and
// then publishes the complete changed config subset on the bus, so
// subscribers never merge partial state.
type Settings struct {
	store Store
	bus   *bus.Bus

	// mu serializes read-modify-write cycles across setters.
	mu sync.Mutex
}

// New wraps a store. The bus may be nil for read-only consumers; setters
// then persist without publishing.
func New(store Store, b *bus.Bus) *Settings {
	return &Settings{store: store, bus: b}
}

// Close closes the underlying store.
func (s *Settings) Close() error {
	return s.store.Close()
}

// VoiceSettings reads the voice parameters, normalized, defaulting when
// absent or unreadable.
func (s *Settings) VoiceSettings() VoiceSettings {
	raw, err := s.store.Get(KeyVoiceSettings)
	if err != nil {
		return DefaultVoiceSettings()
	}
	var v VoiceSettings
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return DefaultVoiceSettings()
	}
	return v.Normalize()
}

// SetVoiceSettings persists the voice parameters after normalizing.
func (s *Settings) SetVoiceSettings(v VoiceSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(v.Normalize())
	if err != nil {
		return err
	}
	return s.store.Set(KeyVoiceSettings, string(raw))
}

// WakeConfig reads the complete wake configuration, normalized.
func (s *Settings) WakeConfig() WakeConfig {
	c := WakeConfig{
		Enabled:          s.getBool(KeyWakeEnabled, false),
		Phrase:           s.getString(KeyWakePhrase, DefaultWakePhrase),
		Prompt:           s.getString(KeyWakePrompt, DefaultWakePrompt),
		SoundEnabled:     s.getBool(KeyWakeSoundEnabled, true),
		SoundFrequencyHz: s.getFloat(KeyWakeSoundFrequency, DefaultSoundFrequencyHz),
		SoundDurationMs:  s.getInt(KeyWakeSoundDuration, DefaultSoundDurationMs),
	}
	return c.Normalize()
}

// SetWakeEnabled persists the flag and publishes the full wake-change pair.
func (s *Settings) SetWakeEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Set(KeyWakeEnabled, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	s.publish(bus.TopicWakeChange, bus.WakeChange{
		Enabled: enabled,
		Phrase:  s.WakeConfig().Phrase,
	})
	return nil
}

// SetWakePhrase persists the phrase and publishes the full wake-change pair.
// An empty phrase persists as empty but is published (and later read back)
// as the fallback default.
func (s *Settings) SetWakePhrase(phrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Set(KeyWakePhrase, phrase); err != nil {
		return err
	}
	cfg := s.WakeConfig()
	s.publish(bus.TopicWakeChange, bus.WakeChange{Enabled: cfg.Enabled, Phrase: cfg.Phrase})
	return nil
}

// SetWakePrompt persists the prompt and publishes it.
func (s *Settings) SetWakePrompt(prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Set(KeyWakePrompt, prompt); err != nil {
		return err
	}
	s.publish(bus.TopicWakePromptChange, bus.WakePromptChange{Prompt: prompt})
	return nil
}

// SetWakeSoundEnabled persists the cue flag and publishes it.
func (s *Settings) SetWakeSoundEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Set(KeyWakeSoundEnabled, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	s.publish(bus.TopicWakeSoundChange, bus.WakeSoundChange{Enabled: enabled})
	return nil
}

// SetWakeSoundParams updates the cue tone parameters. A non-positive
// argument leaves that parameter unchanged. The published payload always
// carries both final values.
func (s *Settings) SetWakeSoundParams(frequencyHz float64, durationMs int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.WakeConfig()
	if frequencyHz > 0 {
		cur.SoundFrequencyHz = frequencyHz
	}
	if durationMs > 0 {
		cur.SoundDurationMs = durationMs
	}
	if err := s.store.Set(KeyWakeSoundFrequency, strconv.FormatFloat(cur.SoundFrequencyHz, 'f', -1, 64)); err != nil {
		return err
	}
	if err := s.store.Set(KeyWakeSoundDuration, strconv.Itoa(cur.SoundDurationMs)); err != nil {
		return err
	}
	s.publish(bus.TopicWakeSoundParams, bus.WakeSoundParams{
		FrequencyHz: cur.SoundFrequencyHz,
		DurationMs:  cur.SoundDurationMs,
	})
	return nil
}

// AutoSend reads the auto-send-after-listen flag.
func (s *Settings) AutoSend() bool {
	return s.getBool(KeyAutoSend, false)
}

// SetAutoSend persists the auto-send flag. No bus topic exists for it; the
// controller reads it fresh at session exit.
func (s *Settings) SetAutoSend(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Set(KeyAutoSend, strconv.FormatBool(enabled))
}

// Language reads the UI language tag.
func (s *Settings) Language() string {
	return s.getString(KeyLanguage, DefaultLanguage)
}

// SetLanguage persists the UI language and publishes the change, which
// restarts the wake detector with the updated phrase defaults.
func (s *Settings) SetLanguage(lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lang == "" {
		return errors.New("settings: language must not be empty")
	}
	if err := s.store.Set(KeyLanguage, lang); err != nil {
		return err
	}
	s.publish(bus.TopicLanguageChange, bus.LanguageChange{Lang: lang})
	return nil
}

func (s *Settings) publish(topic bus.Topic, payload any) {
	if s.bus != nil {
		s.bus.Publish(topic, payload)
	}
}

// Stored values that fail to parse fall back to the default, same as
// absent ones.

func (s *Settings) getString(key, def string) string {
	v, err := s.store.Get(key)
	if err != nil {
		return def
	}
	return v
}

func (s *Settings) getBool(key string, def bool) bool {
	v, err := s.store.Get(key)
	if err != nil {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (s *Settings) getFloat(key string, def float64) float64 {
	v, err := s.store.Get(key)
	if err != nil {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func (s *Settings) getInt(key string, def int) int {
	v, err := s.store.Get(key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

