// Package voice defines the capability contracts consumed by the voice
// interaction controller: speech capture, speech synthesis, and the short
// acknowledgement tone. Implementations are host-provided (a connected UI
// frontend, or local audio devices in the demo); the controller packages
// depend only on these interfaces.
package voice

import (
	"context"
	"time"
)

// CaptureOptions configures a single capture session.
type CaptureOptions struct {
	// Lang is the recognition language tag, e.g. "en-US".
	Lang string

	// Continuous keeps the session open across utterances. Wake detection
	// runs continuous sessions; dictation runs one-shot sessions that end
	// on silence.
	Continuous bool

	// OnInterim delivers the live partial transcript of the current
	// utterance. It may be called many times per utterance, each call
	// carrying the full text so far.
	OnInterim func(text string)

	// OnEnd signals an utterance boundary. For one-shot sessions the
	// session is finished after OnEnd; for continuous sessions capture
	// keeps running and the next utterance starts fresh.
	OnEnd func()

	// OnError reports a runtime failure. The session is stopped before
	// OnError fires and will not recover on its own.
	OnError func(err error)
}

// SpeechCapture is a single recognition session slot. Start while a session
// is already running is undefined; callers stop before starting. The wake
// detector and the listening controller each hold their own instance, so
// overlapping capture is arbitrated by the implementation, not here.
type SpeechCapture interface {
	// Supported reports whether recognition is available at all. When it
	// returns false, Start must return false without side effects.
	Supported() bool

	// Start begins capturing. It returns false when the capability is
	// unavailable or the session could not begin; no callbacks fire in
	// that case.
	Start(opts CaptureOptions) bool

	// Stop ends the session. Idempotent; callbacks registered with Start
	// must not fire after Stop returns.
	Stop()
}

// VoiceDescriptor describes one synthesis voice offered by the platform.
type VoiceDescriptor struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

// SpeakOptions carries the per-utterance synthesis parameters.
type SpeakOptions struct {
	// VoiceName selects a voice by name; empty selects the platform
	// default for Lang.
	VoiceName string `json:"voice_name,omitempty"`
	Lang      string `json:"lang,omitempty"`

	// Rate and Pitch are multipliers in [0.5, 2.0].
	Rate  float64 `json:"rate,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

// SpeechOutput is the synthesis capability.
type SpeechOutput interface {
	// Supported reports whether synthesis is available at all.
	Supported() bool

	// Voices lists the available synthesis voices.
	Voices(ctx context.Context) ([]VoiceDescriptor, error)

	// Speak synthesizes text and blocks until playback completes, the
	// context is cancelled, or synthesis fails.
	Speak(ctx context.Context, text string, opts SpeakOptions) error

	// Stop interrupts the in-flight utterance, if any.
	Stop()
}

// SoundCue plays the short wake acknowledgement tone.
type SoundCue interface {
	PlayTone(ctx context.Context, frequencyHz float64, duration time.Duration) error
}
