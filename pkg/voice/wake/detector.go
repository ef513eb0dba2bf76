// Package wake implements passive wake phrase detection on top of a
// continuous speech capture session.
package wake

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/veerhq/voicekit/pkg/voice"
)

// Detector runs a continuous background capture session and fires a
// callback once per utterance that contains the configured phrase. It owns
// its capture slot exclusively; the caller decides when it may run so that
// it never overlaps a foreground dictation session on the same microphone.
//
// Reconfiguration is always stop-then-start. There is no way to change the
// phrase or language of a running detector.
type Detector struct {
	capture voice.SpeechCapture
	log     *slog.Logger

	mu      sync.Mutex
	gen     uint64
	running bool
	// fired latches after a match until the utterance ends, so a phrase
	// repeated inside one utterance detects once.
	fired  bool
	phrase string

	// Callbacks
	onDetect func()
	onError  func(err error)
}

// New creates a detector over the given capture slot. Logging defaults to
// the process logger when nil.
func New(capture voice.SpeechCapture, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{capture: capture, log: log}
}

// SetCallbacks sets the detection and failure callbacks. Both run on the
// capture implementation's goroutine. onError fires after the detector has
// already stopped itself; the session will not recover on its own.
func (d *Detector) SetCallbacks(onDetect func(), onError func(err error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDetect = onDetect
	d.onError = onError
}

// Running reports whether a detection session is active.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Start begins passive listening for phrase in lang. It reports whether
// the session actually started: false when the detector is already
// running, the phrase is blank, or capture is unavailable. Matching is
// case-insensitive.
func (d *Detector) Start(lang, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" || !d.capture.Supported() {
		return false
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return false
	}
	d.gen++
	gen := d.gen
	d.running = true
	d.fired = false
	d.phrase = phrase
	d.mu.Unlock()

	ok := d.capture.Start(voice.CaptureOptions{
		Lang:       lang,
		Continuous: true,
		OnInterim:  func(text string) { d.handleInterim(gen, text) },
		OnEnd:      func() { d.handleEnd(gen) },
		OnError:    func(err error) { d.handleError(gen, err) },
	})
	if !ok {
		d.mu.Lock()
		if d.gen == gen {
			d.running = false
		}
		d.mu.Unlock()
		return false
	}

	d.log.Debug("wake detector started", "lang", lang, "phrase", phrase)
	return true
}

// Stop ends the detection session. Idempotent; safe while stopped.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	// Bump the generation so late callbacks from the session being torn
	// down are ignored.
	d.gen++
	d.running = false
	d.mu.Unlock()

	d.capture.Stop()
	d.log.Debug("wake detector stopped")
}

func (d *Detector) handleInterim(gen uint64, text string) {
	d.mu.Lock()
	if d.gen != gen || !d.running || d.fired {
		d.mu.Unlock()
		return
	}
	if !strings.Contains(strings.ToLower(text), d.phrase) {
		d.mu.Unlock()
		return
	}
	d.fired = true
	cb := d.onDetect
	d.mu.Unlock()

	d.log.Debug("wake phrase detected", "text", text)
	if cb != nil {
		cb()
	}
}

func (d *Detector) handleEnd(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen || !d.running {
		return
	}
	// Utterance boundary in a continuous session: arm for the next one.
	d.fired = false
}

func (d *Detector) handleError(gen uint64, err error) {
	d.mu.Lock()
	if d.gen != gen || !d.running {
		d.mu.Unlock()
		return
	}
	d.gen++
	d.running = false
	cb := d.onError
	d.mu.Unlock()

	d.capture.Stop()
	d.log.Warn("wake detector failed", "error", err)
	if cb != nil {
		cb(voice.NewListenerError("wake.detect", err))
	}
}
