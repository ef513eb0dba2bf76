// Package listen owns the listening session state machine: manual
// push-to-talk sessions, wake-triggered sessions, the ephemeral wake
// prompt, and the deferred auto-send commit.
package listen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veerhq/voicekit/pkg/voice"
	"github.com/veerhq/voicekit/pkg/voice/bus"
	"github.com/veerhq/voicekit/pkg/voice/settings"
	"github.com/veerhq/voicekit/pkg/voice/speak"
	"github.com/veerhq/voicekit/pkg/voice/wake"
)

// Phase is the session state machine phase.
type Phase int

const (
	// PhaseIdle means no recognition and no synthesis is running.
	PhaseIdle Phase = iota
	// PhaseWakeListening means only the background wake detector runs.
	PhaseWakeListening
	// PhaseActiveListening means a dictation session is capturing.
	PhaseActiveListening
	// PhaseSpeaking means speech output is playing and no dictation
	// session is active. An active session always wins over Speaking.
	PhaseSpeaking
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWakeListening:
		return "wake_listening"
	case PhaseActiveListening:
		return "active_listening"
	case PhaseSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// State is a snapshot of the session. There is exactly one per controller;
// it is the single source of truth for whether recognition is running.
type State struct {
	Phase           Phase  `json:"phase"`
	Transcript      string `json:"transcript"`
	AutoSendPending bool   `json:"auto_send_pending"`
}

// Dependencies are the collaborators a Controller is built from.
type Dependencies struct {
	// Capture is the controller's own dictation capture slot.
	Capture voice.SpeechCapture
	// Detector is the background wake phrase detector.
	Detector *wake.Detector
	// Settings is read fresh at every decision point, never cached.
	Settings *settings.Settings
	// Bus delivers settings change events.
	Bus *bus.Bus
	// Speaker speaks the wake acknowledgement prompt and reports the
	// Speaking phase.
	Speaker *speak.Controller
	// Cue plays the wake acknowledgement tone. Optional.
	Cue voice.SoundCue
	// Commit receives the finished transcript when auto-send fires.
	Commit func(text string)

	Logger *slog.Logger
	Config Config

	// Observation hooks. All optional; they run on whichever goroutine
	// triggered the change.
	OnState            func(State)
	OnPrompt           func(text string)
	OnWakeFlash        func(active bool)
	OnDetectionDropped func()
	// OnSessionEnd fires when a dictation session leaves ActiveListening,
	// with reason "manual", "silence", or "error".
	OnSessionEnd func(reason string)
}

// Controller is the listening session state machine. All state mutation
// funnels through its mutex; capture callbacks, wake detections, timers and
// manual toggles serialize there.
type Controller struct {
	deps Dependencies
	cfg  Config
	log  *slog.Logger

	prompt *Prompt

	mu sync.Mutex
	// gen identifies the current capture session; callbacks from an older
	// session carry a stale gen and are dropped.
	gen             uint64
	phase           Phase
	transcript      string
	speaking        bool
	wakeLatched     bool
	autoSendGen     uint64
	autoSendTimer   *time.Timer
	autoSendPending bool
	flashGen        uint64
	flashTimer      *time.Timer
	unsubs          []func()

	closed atomic.Bool

	captureUnsupportedOnce sync.Once
}

// New validates the dependencies and builds a controller. Call Start to
// activate it.
func New(deps Dependencies) (*Controller, error) {
	if deps.Capture == nil {
		return nil, fmt.Errorf("listen: capture is required")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("listen: detector is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("listen: settings are required")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("listen: bus is required")
	}
	if deps.Speaker == nil {
		return nil, fmt.Errorf("listen: speaker is required")
	}
	if deps.Commit == nil {
		return nil, fmt.Errorf("listen: commit callback is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg := deps.Config.withDefaults()

	c := &Controller{
		deps: deps,
		cfg:  cfg,
		log:  deps.Logger,
	}
	c.prompt = NewPrompt(cfg.PromptTTL, deps.OnPrompt)
	c.prompt.SetDebug(func(category, message string) {
		c.log.Debug(message, "category", category)
	})
	return c, nil
}

// Start wires the callbacks, subscribes to settings events, and brings the
// wake detector up when the stored config enables it. Call once.
func (c *Controller) Start() {
	c.deps.Detector.SetCallbacks(c.handleWakeDetect, c.handleWakeError)
	c.deps.Speaker.SetOnSpeaking(c.handleSpeaking)

	c.mu.Lock()
	c.unsubs = append(c.unsubs,
		c.deps.Bus.Subscribe(bus.TopicWakeChange, c.handleWakeChange),
		c.deps.Bus.Subscribe(bus.TopicLanguageChange, c.handleLanguageChange),
	)
	c.mu.Unlock()

	c.restartDetector(c.deps.Settings.WakeConfig().Enabled)
}

// Close tears the controller down: cancels all timers, stops capture and
// the detector, and unsubscribes from the bus. Idempotent.
func (c *Controller) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.gen++
	c.cancelAutoSendLocked()
	if c.flashTimer != nil {
		c.flashTimer.Stop()
		c.flashTimer = nil
	}
	c.flashGen++
	c.phase = PhaseIdle
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	c.prompt.Clear()
	c.deps.Capture.Stop()
	c.deps.Detector.Stop()
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Phase: c.phase, Transcript: c.transcript, AutoSendPending: c.autoSendPending}
}

// LatestTranscript returns the live transcript cell. Deferred work reads
// this at fire time instead of using a value captured when it was
// scheduled.
func (c *Controller) LatestTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// PromptText returns the visible ephemeral prompt, "" when hidden.
func (c *Controller) PromptText() string {
	return c.prompt.Text()
}

// ToggleListening is the mic button. In ActiveListening it stops the
// session (evaluating auto-send); otherwise it starts one. It reports
// whether a transition happened: false means capture is unavailable or
// failed to start, and the machine kept its prior state.
func (c *Controller) ToggleListening() bool {
	if c.closed.Load() {
		return false
	}

	c.mu.Lock()
	if c.phase == PhaseActiveListening {
		c.endSessionLocked()
		c.mu.Unlock()
		c.deps.Capture.Stop()
		c.notifySessionEnd("manual")
		c.emitState()
		return true
	}
	c.mu.Unlock()

	return c.startSession()
}

// startSession begins a dictation session. The transcript resets to empty
// and any pending auto-send is cancelled. The wake detector is left
// running; overlapping capture is the platform's problem, the controller
// only prevents double session starts of its own.
func (c *Controller) startSession() bool {
	if !c.deps.Capture.Supported() {
		c.captureUnsupportedOnce.Do(func() {
			c.log.Info("speech capture not available, listening disabled")
		})
		return false
	}

	c.mu.Lock()
	if c.closed.Load() || c.phase == PhaseActiveListening {
		c.mu.Unlock()
		return false
	}
	c.cancelAutoSendLocked()
	c.gen++
	gen := c.gen
	prior := c.phase
	c.phase = PhaseActiveListening
	c.transcript = ""
	lang := c.deps.Settings.Language()
	c.mu.Unlock()

	ok := c.deps.Capture.Start(voice.CaptureOptions{
		Lang:      lang,
		OnInterim: func(text string) { c.handleInterim(gen, text) },
		OnEnd:     func() { c.handleCaptureEnd(gen) },
		OnError:   func(err error) { c.handleCaptureError(gen, err) },
	})
	if !ok {
		c.mu.Lock()
		if c.gen == gen {
			c.phase = prior
		}
		c.mu.Unlock()
		c.log.Warn("speech capture failed to start")
		return false
	}

	c.log.Debug("listening session started", "lang", lang)
	c.emitState()
	return true
}

// endSessionLocked leaves ActiveListening and evaluates auto-send: the
// enabled flag is read fresh from settings at exit time, and the commit is
// armed only when the trimmed transcript is non-empty. mu held.
func (c *Controller) endSessionLocked() {
	c.gen++
	c.phase = c.basePhaseLocked()
	if c.deps.Settings.AutoSend() && strings.TrimSpace(c.transcript) != "" {
		c.armAutoSendLocked()
	}
}

// basePhaseLocked is the phase when no dictation session is active. mu held.
func (c *Controller) basePhaseLocked() Phase {
	switch {
	case c.speaking:
		return PhaseSpeaking
	case c.deps.Detector.Running():
		return PhaseWakeListening
	default:
		return PhaseIdle
	}
}

func (c *Controller) armAutoSendLocked() {
	if c.autoSendTimer != nil {
		c.autoSendTimer.Stop()
	}
	c.autoSendGen++
	gen := c.autoSendGen
	c.autoSendPending = true
	c.autoSendTimer = time.AfterFunc(c.cfg.AutoSendDelay, func() { c.fireAutoSend(gen) })
}

func (c *Controller) cancelAutoSendLocked() {
	if c.autoSendTimer != nil {
		c.autoSendTimer.Stop()
		c.autoSendTimer = nil
	}
	c.autoSendGen++
	c.autoSendPending = false
}

func (c *Controller) fireAutoSend(gen uint64) {
	c.mu.Lock()
	if c.closed.Load() || gen != c.autoSendGen || !c.autoSendPending {
		c.mu.Unlock()
		return
	}
	c.autoSendPending = false
	c.autoSendTimer = nil
	// Read the live cell, not a value captured when the timer was armed.
	text := strings.TrimSpace(c.transcript)
	if text == "" {
		c.mu.Unlock()
		c.emitState()
		return
	}
	c.transcript = ""
	commit := c.deps.Commit
	c.mu.Unlock()

	c.log.Debug("auto-send committed", "chars", len(text))
	commit(text)
	c.emitState()
}

func (c *Controller) handleInterim(gen uint64, text string) {
	c.mu.Lock()
	if c.closed.Load() || gen != c.gen || c.phase != PhaseActiveListening {
		c.mu.Unlock()
		return
	}
	c.transcript = text
	c.mu.Unlock()
	c.emitState()
}

func (c *Controller) handleCaptureEnd(gen uint64) {
	c.mu.Lock()
	if c.closed.Load() || gen != c.gen || c.phase != PhaseActiveListening {
		c.mu.Unlock()
		return
	}
	c.endSessionLocked()
	c.mu.Unlock()

	c.log.Debug("listening session ended")
	c.notifySessionEnd("silence")
	c.emitState()
}

// handleCaptureError handles a mid-session capture failure: the session
// drops to Idle and the wake detector is latched off until the next
// explicit enable.
func (c *Controller) handleCaptureError(gen uint64, err error) {
	c.mu.Lock()
	if c.closed.Load() || gen != c.gen || c.phase != PhaseActiveListening {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.cancelAutoSendLocked()
	c.wakeLatched = true
	c.phase = PhaseIdle
	if c.speaking {
		c.phase = PhaseSpeaking
	}
	c.mu.Unlock()

	c.log.Warn("speech capture failed mid-session", "error", err)
	c.deps.Capture.Stop()
	c.notifySessionEnd("error")
	c.restartDetector(false)
}

// handleWakeDetect runs on a detection. A detection while a session is
// already active is dropped, not queued.
func (c *Controller) handleWakeDetect() {
	if c.closed.Load() {
		return
	}
	cfg := c.deps.Settings.WakeConfig()

	c.mu.Lock()
	if c.phase == PhaseActiveListening {
		dropped := c.deps.OnDetectionDropped
		c.mu.Unlock()
		c.log.Debug("wake detection dropped, session already active")
		if dropped != nil {
			dropped()
		}
		return
	}
	if c.flashTimer != nil {
		c.flashTimer.Stop()
	}
	c.flashGen++
	fg := c.flashGen
	c.flashTimer = time.AfterFunc(c.cfg.WakeFlashTTL, func() { c.clearFlash(fg) })
	flash := c.deps.OnWakeFlash
	c.mu.Unlock()

	c.log.Info("wake phrase detected", "phrase", cfg.Phrase)
	if flash != nil {
		flash(true)
	}
	if cfg.Prompt != "" {
		c.prompt.Show(cfg.Prompt)
		go func() { _ = c.deps.Speaker.Speak(context.Background(), cfg.Prompt) }()
	}
	if cfg.SoundEnabled && c.deps.Cue != nil {
		freq := cfg.SoundFrequencyHz
		dur := time.Duration(cfg.SoundDurationMs) * time.Millisecond
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.deps.Cue.PlayTone(ctx, freq, dur); err != nil {
				c.log.Debug("wake cue failed", "error", err)
			}
		}()
	}

	c.startSession()
}

func (c *Controller) clearFlash(gen uint64) {
	c.mu.Lock()
	if gen != c.flashGen {
		c.mu.Unlock()
		return
	}
	c.flashTimer = nil
	flash := c.deps.OnWakeFlash
	c.mu.Unlock()

	if flash != nil {
		flash(false)
	}
}

// handleWakeError runs after the detector stopped itself on a runtime
// failure. The detector stays down until the next explicit enable.
func (c *Controller) handleWakeError(err error) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	c.wakeLatched = true
	if c.phase != PhaseActiveListening {
		c.phase = c.basePhaseLocked()
	}
	c.mu.Unlock()

	c.log.Warn("wake detection stopped", "error", err)
	c.deps.Bus.Publish(bus.TopicWakeStatus, bus.WakeStatus{Active: false})
	c.emitState()
}

func (c *Controller) handleWakeChange(ev bus.Event) {
	if c.closed.Load() {
		return
	}
	chg, ok := ev.Payload.(bus.WakeChange)
	if !ok {
		return
	}

	c.mu.Lock()
	if chg.Enabled {
		// An explicit enable clears the runtime-error latch.
		c.wakeLatched = false
	}
	latched := c.wakeLatched
	c.mu.Unlock()

	c.restartDetector(chg.Enabled && !latched)
}

func (c *Controller) handleLanguageChange(ev bus.Event) {
	if c.closed.Load() {
		return
	}
	if _, ok := ev.Payload.(bus.LanguageChange); !ok {
		return
	}

	c.mu.Lock()
	latched := c.wakeLatched
	c.mu.Unlock()

	c.restartDetector(c.deps.Settings.WakeConfig().Enabled && !latched)
}

// restartDetector applies the current wake config: always stop first, then
// start with fresh phrase and language when enabled. Never reconfigure in
// place, so no detector session survives with a stale phrase.
func (c *Controller) restartDetector(enable bool) {
	c.deps.Detector.Stop()
	active := false
	if enable {
		cfg := c.deps.Settings.WakeConfig()
		active = c.deps.Detector.Start(c.deps.Settings.Language(), cfg.Phrase)
		if !active {
			c.log.Warn("wake detector did not start", "phrase", cfg.Phrase)
		}
	}
	c.deps.Bus.Publish(bus.TopicWakeStatus, bus.WakeStatus{Active: active})

	c.mu.Lock()
	if c.phase != PhaseActiveListening {
		c.phase = c.basePhaseLocked()
	}
	c.mu.Unlock()
	c.emitState()
}

func (c *Controller) handleSpeaking(active bool) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	c.speaking = active
	changed := false
	if c.phase != PhaseActiveListening {
		next := c.basePhaseLocked()
		changed = next != c.phase
		c.phase = next
	}
	c.mu.Unlock()

	if changed {
		c.emitState()
	}
}

func (c *Controller) notifySessionEnd(reason string) {
	if fn := c.deps.OnSessionEnd; fn != nil {
		fn(reason)
	}
}

func (c *Controller) emitState() {
	c.mu.Lock()
	st := State{Phase: c.phase, Transcript: c.transcript, AutoSendPending: c.autoSendPending}
	hook := c.deps.OnState
	c.mu.Unlock()

	if hook != nil {
		hook(st)
	}
}
