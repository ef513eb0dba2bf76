// Package speak serializes speech output: one utterance in flight, newer
// requests pre-empt older ones, and assistant messages are auto-spoken at
// most once per conversation.
package speak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/veerhq/voicekit/pkg/voice"
	"github.com/veerhq/voicekit/pkg/voice/settings"
)

// ResponseMode controls whether assistant messages are spoken aloud.
type ResponseMode string

const (
	// ModeSpeech speaks every newly observed assistant message.
	ModeSpeech ResponseMode = "speech"
	// ModeSilent suppresses auto-speak. Messages observed while silent
	// still enter the ledger and are not spoken retroactively.
	ModeSilent ResponseMode = "silent"
)

// Controller is the single owner of the speech output capability. All
// utterances funnel through it so that at most one is in flight; a new
// Speak pre-empts the previous one rather than queueing behind it.
type Controller struct {
	out      voice.SpeechOutput
	settings *settings.Settings
	log      *slog.Logger

	// ttsMu guards the in-flight utterance slot.
	ttsMu    sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	lastText string
	mode     ResponseMode

	ledger *Ledger

	onSpeaking func(active bool)

	unsupportedOnce sync.Once
}

// New creates a speech output controller. Synthesis parameters are read
// from st fresh on every utterance.
func New(out voice.SpeechOutput, st *settings.Settings, log *slog.Logger) (*Controller, error) {
	if out == nil {
		return nil, fmt.Errorf("speak: speech output is required")
	}
	if st == nil {
		return nil, fmt.Errorf("speak: settings are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		out:      out,
		settings: st,
		log:      log,
		mode:     ModeSpeech,
		ledger:   NewLedger(),
	}, nil
}

// SetOnSpeaking registers a callback fired with true when an utterance
// starts and false when the current utterance finishes or is stopped. A
// pre-empted utterance does not fire false; its replacement already fired
// true.
func (c *Controller) SetOnSpeaking(fn func(active bool)) {
	c.ttsMu.Lock()
	defer c.ttsMu.Unlock()
	c.onSpeaking = fn
}

// Speak synthesizes text, pre-empting any utterance already in flight, and
// blocks until playback completes, ctx is cancelled, or synthesis fails.
// Pre-emption by a later call returns nil.
func (c *Controller) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !c.out.Supported() {
		c.noteUnsupported()
		return voice.NewUnsupportedError("speak")
	}
	opts := c.settings.VoiceSettings().SpeakOptions()

	c.ttsMu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.out.Stop()
	}
	c.gen++
	gen := c.gen
	sctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.lastText = text
	cb := c.onSpeaking
	c.ttsMu.Unlock()

	if cb != nil {
		cb(true)
	}
	err := c.out.Speak(sctx, text, opts)
	cancel()

	c.ttsMu.Lock()
	current := c.gen == gen
	if current {
		c.cancel = nil
	}
	cb = c.onSpeaking
	c.ttsMu.Unlock()

	if current && cb != nil {
		cb(false)
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	serr := voice.NewSynthesisError("speak", err)
	c.log.Warn("speech synthesis failed", "error", serr)
	return serr
}

// Stop cancels the in-flight utterance, if any. The last spoken text is
// kept for replay.
func (c *Controller) Stop() {
	c.ttsMu.Lock()
	had := c.cancel != nil
	if had {
		c.cancel()
		c.cancel = nil
		c.gen++
	}
	cb := c.onSpeaking
	c.ttsMu.Unlock()

	c.out.Stop()
	if had && cb != nil {
		cb(false)
	}
}

// ReplayLast speaks the most recently requested utterance again with the
// current voice settings. It reports false when nothing has been spoken
// yet; synthesis errors are swallowed like any other replayed outcome.
func (c *Controller) ReplayLast() bool {
	c.ttsMu.Lock()
	text := c.lastText
	c.ttsMu.Unlock()
	if text == "" {
		return false
	}
	_ = c.Speak(context.Background(), text)
	return true
}

// AutoSpeak speaks a newly observed assistant message. The id enters the
// ledger immediately, before the outcome is known, so each message speaks
// at most once: a failed or suppressed utterance is never retried. It
// reports whether an utterance was started.
func (c *Controller) AutoSpeak(messageID, text string) bool {
	if messageID == "" {
		return false
	}
	if !c.ledger.MarkSpoken(messageID) {
		return false
	}
	if c.Mode() == ModeSilent {
		return false
	}
	if strings.TrimSpace(text) == "" {
		return false
	}
	if !c.out.Supported() {
		c.noteUnsupported()
		return false
	}

	go func() {
		_ = c.Speak(context.Background(), text)
	}()
	return true
}

// Mode returns the current response mode.
func (c *Controller) Mode() ResponseMode {
	c.ttsMu.Lock()
	defer c.ttsMu.Unlock()
	return c.mode
}

// SetMode switches the response mode. Switching to silent does not stop an
// utterance already in flight.
func (c *Controller) SetMode(mode ResponseMode) {
	c.ttsMu.Lock()
	defer c.ttsMu.Unlock()
	c.mode = mode
}

// ResetLedger clears the auto-speak ledger. Called when a new conversation
// begins so its messages speak afresh.
func (c *Controller) ResetLedger() {
	c.ledger.Reset()
}

// Ledger exposes the ledger for inspection.
func (c *Controller) Ledger() *Ledger {
	return c.ledger
}

// Voices lists the synthesis voices the capability offers.
func (c *Controller) Voices(ctx context.Context) ([]voice.VoiceDescriptor, error) {
	if !c.out.Supported() {
		return nil, voice.NewUnsupportedError("voices")
	}
	return c.out.Voices(ctx)
}

func (c *Controller) noteUnsupported() {
	c.unsupportedOnce.Do(func() {
		c.log.Info("speech synthesis not available, speak requests are no-ops")
	})
}
