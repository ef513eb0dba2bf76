package listen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/veerhq/voicekit/pkg/voice"
	"github.com/veerhq/voicekit/pkg/voice/bus"
	"github.com/veerhq/voicekit/pkg/voice/settings"
	"github.com/veerhq/voicekit/pkg/voice/speak"
	"github.com/veerhq/voicekit/pkg/voice/wake"
)

// fakeCapture scripts one capture slot. Tests drive its callbacks through
// session().
type fakeCapture struct {
	mu        sync.Mutex
	supported bool
	refuse    bool
	starts    int
	stops     int
	calls     []string
	opts      voice.CaptureOptions
}

func (f *fakeCapture) Supported() bool { return f.supported }

func (f *fakeCapture) Start(opts voice.CaptureOptions) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.supported || f.refuse {
		return false
	}
	f.starts++
	f.calls = append(f.calls, "start:"+opts.Lang)
	f.opts = opts
	return true
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.calls = append(f.calls, "stop")
}

func (f *fakeCapture) session() voice.CaptureOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

func (f *fakeCapture) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCapture) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// fakeOutput records spoken texts. With block set, Speak parks until its
// context is cancelled or release is closed.
type fakeOutput struct {
	mu      sync.Mutex
	block   bool
	calls   []string
	release chan struct{}
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{release: make(chan struct{})}
}

func (f *fakeOutput) Supported() bool { return true }

func (f *fakeOutput) Voices(ctx context.Context) ([]voice.VoiceDescriptor, error) {
	return nil, nil
}

func (f *fakeOutput) Speak(ctx context.Context, text string, opts voice.SpeakOptions) error {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	block := f.block
	f.mu.Unlock()
	if block {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.release:
		}
	}
	return nil
}

func (f *fakeOutput) Stop() {}

func (f *fakeOutput) spokeTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeCue records tone requests.
type fakeCue struct {
	mu    sync.Mutex
	tones []string
}

func (f *fakeCue) PlayTone(ctx context.Context, frequencyHz float64, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tones = append(f.tones, fmt.Sprintf("%.0fhz/%s", frequencyHz, duration))
	return nil
}

func (f *fakeCue) played() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tones...)
}

type harness struct {
	dict     *fakeCapture
	wakeCap  *fakeCapture
	out      *fakeOutput
	cue      *fakeCue
	bus      *bus.Bus
	settings *settings.Settings
	detector *wake.Detector
	speaker  *speak.Controller
	ctrl     *Controller

	mu      sync.Mutex
	commits []string
	prompts []string
	dropped int
	status  []bool
	ends    []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		dict:    &fakeCapture{supported: true},
		wakeCap: &fakeCapture{supported: true},
		out:     newFakeOutput(),
		cue:     &fakeCue{},
		bus:     bus.New(),
	}
	h.settings = settings.New(settings.NewMemory(), h.bus)
	h.detector = wake.New(h.wakeCap, nil)

	speaker, err := speak.New(h.out, h.settings, nil)
	if err != nil {
		t.Fatalf("speak.New: %v", err)
	}
	h.speaker = speaker

	h.bus.Subscribe(bus.TopicWakeStatus, func(ev bus.Event) {
		st := ev.Payload.(bus.WakeStatus)
		h.mu.Lock()
		h.status = append(h.status, st.Active)
		h.mu.Unlock()
	})

	ctrl, err := New(Dependencies{
		Capture:  h.dict,
		Detector: h.detector,
		Settings: h.settings,
		Bus:      h.bus,
		Speaker:  h.speaker,
		Cue:      h.cue,
		Commit: func(text string) {
			h.mu.Lock()
			h.commits = append(h.commits, text)
			h.mu.Unlock()
		},
		Config: Config{
			AutoSendDelay: 50 * time.Millisecond,
			PromptTTL:     150 * time.Millisecond,
			WakeFlashTTL:  100 * time.Millisecond,
		},
		OnPrompt: func(text string) {
			h.mu.Lock()
			h.prompts = append(h.prompts, text)
			h.mu.Unlock()
		},
		OnDetectionDropped: func() {
			h.mu.Lock()
			h.dropped++
			h.mu.Unlock()
		},
		OnSessionEnd: func(reason string) {
			h.mu.Lock()
			h.ends = append(h.ends, reason)
			h.mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.ctrl = ctrl
	ctrl.Start()
	t.Cleanup(ctrl.Close)
	return h
}

func (h *harness) committed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.commits...)
}

func (h *harness) promptChanges() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.prompts...)
}

func (h *harness) droppedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *harness) sessionEnds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ends...)
}

// detect drives a wake detection by feeding an interim transcript to the
// detector's capture session.
func (h *harness) detect(text string) {
	h.wakeCap.session().OnInterim(text)
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

func TestToggleStartsAndStopsSession(t *testing.T) {
	h := newHarness(t)

	if !h.ctrl.ToggleListening() {
		t.Fatalf("toggle on returned false")
	}
	if got := h.ctrl.Snapshot().Phase; got != PhaseActiveListening {
		t.Fatalf("phase: got %v, want active", got)
	}

	h.dict.session().OnInterim("hello there")
	if got := h.ctrl.Snapshot().Transcript; got != "hello there" {
		t.Fatalf("transcript: got %q", got)
	}

	if !h.ctrl.ToggleListening() {
		t.Fatalf("toggle off returned false")
	}
	st := h.ctrl.Snapshot()
	if st.Phase != PhaseIdle {
		t.Fatalf("phase after stop: got %v, want idle", st.Phase)
	}
	// Auto-send is off; the transcript stays for manual use and nothing
	// commits.
	if st.Transcript != "hello there" {
		t.Fatalf("transcript after stop: got %q", st.Transcript)
	}
	time.Sleep(120 * time.Millisecond)
	if got := h.committed(); len(got) != 0 {
		t.Fatalf("commits: got %v, want none", got)
	}
}

func TestNoSecondSessionWithoutIdleBetween(t *testing.T) {
	h := newHarness(t)
	h.settings.SetWakeEnabled(true)

	if !h.ctrl.ToggleListening() {
		t.Fatalf("toggle on returned false")
	}
	if h.ctrl.startSession() {
		t.Fatalf("second session started while one is active")
	}
	// A wake detection during the active session is dropped, not queued.
	h.detect("hey veer")
	if got := h.droppedCount(); got != 1 {
		t.Fatalf("dropped detections: got %d, want 1", got)
	}
	if got := h.dict.startCount(); got != 1 {
		t.Fatalf("capture sessions: got %d, want 1", got)
	}
	if got := h.ctrl.Snapshot().Phase; got != PhaseActiveListening {
		t.Fatalf("phase: got %v, want active", got)
	}
	// Ending the session does not revive the dropped detection.
	h.dict.session().OnEnd()
	time.Sleep(30 * time.Millisecond)
	if got := h.dict.startCount(); got != 1 {
		t.Fatalf("capture sessions after end: got %d, want 1", got)
	}
}

func TestAutoSendFiresExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.settings.SetAutoSend(true)

	h.ctrl.ToggleListening()
	h.dict.session().OnInterim("what's")
	h.dict.session().OnInterim("what's the")
	h.dict.session().OnInterim("what's the weather")
	h.dict.session().OnEnd()

	if !h.ctrl.Snapshot().AutoSendPending {
		t.Fatalf("auto-send not pending after session end")
	}

	eventually(t, time.Second, func() bool { return len(h.committed()) == 1 }, "commit")
	if got := h.committed()[0]; got != "what's the weather" {
		t.Fatalf("committed: got %q, want latest interim", got)
	}

	time.Sleep(150 * time.Millisecond)
	if got := h.committed(); len(got) != 1 {
		t.Fatalf("commits: got %d, want exactly 1", len(got))
	}
	st := h.ctrl.Snapshot()
	if st.AutoSendPending {
		t.Fatalf("auto-send still pending after commit")
	}
	if st.Transcript != "" {
		t.Fatalf("transcript not cleared after commit: %q", st.Transcript)
	}
}

func TestAutoSendReadsFlagFreshAtExit(t *testing.T) {
	t.Run("enabled mid-session", func(t *testing.T) {
		h := newHarness(t)

		h.ctrl.ToggleListening()
		h.dict.session().OnInterim("send me")
		// The flag flips while the session is running; exit must see it.
		h.settings.SetAutoSend(true)
		h.ctrl.ToggleListening()

		eventually(t, time.Second, func() bool { return len(h.committed()) == 1 }, "commit")
	})

	t.Run("disabled mid-session", func(t *testing.T) {
		h := newHarness(t)
		h.settings.SetAutoSend(true)

		h.ctrl.ToggleListening()
		h.dict.session().OnInterim("keep me")
		h.settings.SetAutoSend(false)
		h.ctrl.ToggleListening()

		time.Sleep(150 * time.Millisecond)
		if got := h.committed(); len(got) != 0 {
			t.Fatalf("commits: got %v, want none", got)
		}
	})
}

func TestAutoSendSkipsBlankTranscript(t *testing.T) {
	h := newHarness(t)
	h.settings.SetAutoSend(true)

	h.ctrl.ToggleListening()
	h.dict.session().OnInterim("   ")
	h.dict.session().OnEnd()

	time.Sleep(150 * time.Millisecond)
	if got := h.committed(); len(got) != 0 {
		t.Fatalf("commits: got %v, want none", got)
	}
	if h.ctrl.Snapshot().AutoSendPending {
		t.Fatalf("auto-send pending for blank transcript")
	}
}

func TestAutoSendCancelledByNewSession(t *testing.T) {
	h := newHarness(t)
	h.settings.SetAutoSend(true)

	h.ctrl.ToggleListening()
	h.dict.session().OnInterim("first thought")
	h.ctrl.ToggleListening()
	if !h.ctrl.Snapshot().AutoSendPending {
		t.Fatalf("auto-send not pending")
	}

	// Restarting within the delay swallows the pending send.
	h.ctrl.ToggleListening()
	if h.ctrl.Snapshot().AutoSendPending {
		t.Fatalf("auto-send still pending after restart")
	}

	time.Sleep(200 * time.Millisecond)
	if got := h.committed(); len(got) != 0 {
		t.Fatalf("commits: got %v, want none", got)
	}
}

func TestWakeScenario(t *testing.T) {
	h := newHarness(t)
	h.settings.SetAutoSend(true)
	h.settings.SetWakeEnabled(true)

	if got := h.ctrl.Snapshot().Phase; got != PhaseWakeListening {
		t.Fatalf("phase: got %v, want wake listening", got)
	}

	h.detect("hey veer, what's the weather")

	// One detection: prompt up, tone queued, session active.
	if got := h.ctrl.Snapshot().Phase; got != PhaseActiveListening {
		t.Fatalf("phase after detection: got %v, want active", got)
	}
	if got := h.promptChanges(); len(got) != 1 || got[0] != settings.DefaultWakePrompt {
		t.Fatalf("prompt changes: got %v, want [%q]", got, settings.DefaultWakePrompt)
	}
	eventually(t, time.Second, func() bool { return len(h.cue.played()) == 1 }, "tone")
	if got := h.cue.played()[0]; got != "880hz/180ms" {
		t.Fatalf("tone: got %q, want default params", got)
	}
	// The prompt is also spoken.
	eventually(t, time.Second, func() bool {
		spoke := h.out.spokeTexts()
		return len(spoke) == 1 && spoke[0] == settings.DefaultWakePrompt
	}, "spoken prompt")

	// The prompt auto-expires.
	eventually(t, time.Second, func() bool {
		ch := h.promptChanges()
		return len(ch) == 2 && ch[1] == ""
	}, "prompt expiry")

	h.dict.session().OnInterim("what's the weather")
	h.dict.session().OnEnd()

	eventually(t, time.Second, func() bool { return len(h.committed()) == 1 }, "commit")
	if got := h.committed()[0]; got != "what's the weather" {
		t.Fatalf("committed: got %q", got)
	}
	// Back to wake listening, detector still up.
	if got := h.ctrl.Snapshot().Phase; got != PhaseWakeListening {
		t.Fatalf("phase after session: got %v, want wake listening", got)
	}
	if !h.detector.Running() {
		t.Fatalf("detector stopped after session")
	}
}

func TestPhraseChangeRestartsDetector(t *testing.T) {
	h := newHarness(t)
	h.settings.SetWakeEnabled(true)

	if got := h.wakeCap.callLog(); len(got) != 1 || got[0] != "start:en-US" {
		t.Fatalf("initial calls: got %v", got)
	}

	h.settings.SetWakePhrase("ok computer")

	// Stop always lands before the new start.
	log := h.wakeCap.callLog()
	want := []string{"start:en-US", "stop", "start:en-US"}
	if len(log) != len(want) {
		t.Fatalf("call log: got %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("call log: got %v, want %v", log, want)
		}
	}

	// The replacement session matches only the new phrase.
	h.detect("hey veer")
	if got := h.dict.startCount(); got != 0 {
		t.Fatalf("old phrase still detected")
	}
	h.detect("ok computer")
	if got := h.dict.startCount(); got != 1 {
		t.Fatalf("new phrase not detected")
	}
}

func TestLanguageChangeRestartsDetector(t *testing.T) {
	h := newHarness(t)
	h.settings.SetWakeEnabled(true)

	h.settings.SetLanguage("fr-FR")

	log := h.wakeCap.callLog()
	if len(log) == 0 || log[len(log)-1] != "start:fr-FR" {
		t.Fatalf("call log: got %v, want trailing start:fr-FR", log)
	}
}

func TestWakeDisableStopsDetector(t *testing.T) {
	h := newHarness(t)
	h.settings.SetWakeEnabled(true)
	if !h.detector.Running() {
		t.Fatalf("detector not running after enable")
	}

	h.settings.SetWakeEnabled(false)
	if h.detector.Running() {
		t.Fatalf("detector running after disable")
	}
	if got := h.ctrl.Snapshot().Phase; got != PhaseIdle {
		t.Fatalf("phase: got %v, want idle", got)
	}

	h.mu.Lock()
	status := append([]bool(nil), h.status...)
	h.mu.Unlock()
	if len(status) == 0 || status[len(status)-1] {
		t.Fatalf("wake status: got %v, want trailing false", status)
	}
}

func TestCaptureErrorLatchesWakeOff(t *testing.T) {
	h := newHarness(t)
	h.settings.SetWakeEnabled(true)

	h.ctrl.ToggleListening()
	h.dict.session().OnError(errors.New("not-allowed"))

	if got := h.ctrl.Snapshot().Phase; got != PhaseIdle {
		t.Fatalf("phase after capture error: got %v, want idle", got)
	}
	if h.detector.Running() {
		t.Fatalf("detector running after capture error")
	}

	// A language change is a restart trigger but not an explicit enable;
	// the latch holds.
	h.settings.SetLanguage("de-DE")
	if h.detector.Running() {
		t.Fatalf("latched detector revived by language change")
	}

	// An explicit enable clears the latch.
	h.settings.SetWakeEnabled(true)
	if !h.detector.Running() {
		t.Fatalf("detector not running after explicit enable")
	}
}

func TestUnsupportedCaptureIsPermanentNoOp(t *testing.T) {
	h := newHarness(t)
	h.dict.supported = false
	h.wakeCap.supported = false

	h.settings.SetWakeEnabled(true)
	if h.detector.Running() {
		t.Fatalf("detector running without capture support")
	}

	if h.ctrl.ToggleListening() {
		t.Fatalf("toggle succeeded without capture support")
	}
	if h.ctrl.ToggleListening() {
		t.Fatalf("retry succeeded without capture support")
	}
	if got := h.ctrl.Snapshot().Phase; got != PhaseIdle {
		t.Fatalf("phase: got %v, want idle", got)
	}
}

func TestStartFailureKeepsPriorState(t *testing.T) {
	h := newHarness(t)
	h.settings.SetWakeEnabled(true)
	h.dict.refuse = true

	if h.ctrl.ToggleListening() {
		t.Fatalf("toggle reported success on start failure")
	}
	if got := h.ctrl.Snapshot().Phase; got != PhaseWakeListening {
		t.Fatalf("phase: got %v, want prior wake listening", got)
	}
}

func TestCloseCancelsPendingWork(t *testing.T) {
	h := newHarness(t)
	h.settings.SetAutoSend(true)
	h.settings.SetWakeEnabled(true)

	h.ctrl.ToggleListening()
	h.dict.session().OnInterim("half a thought")
	h.ctrl.ToggleListening()
	if !h.ctrl.Snapshot().AutoSendPending {
		t.Fatalf("auto-send not pending")
	}

	h.ctrl.Close()
	h.ctrl.Close()

	time.Sleep(150 * time.Millisecond)
	if got := h.committed(); len(got) != 0 {
		t.Fatalf("commit fired after Close: %v", got)
	}
	if h.detector.Running() {
		t.Fatalf("detector running after Close")
	}
}

func TestSessionEndReasons(t *testing.T) {
	h := newHarness(t)

	h.ctrl.ToggleListening()
	h.ctrl.ToggleListening()

	h.ctrl.ToggleListening()
	h.dict.session().OnEnd()

	h.ctrl.ToggleListening()
	h.dict.session().OnError(errors.New("network"))

	want := []string{"manual", "silence", "error"}
	got := h.sessionEnds()
	if len(got) != len(want) {
		t.Fatalf("session ends: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("session ends: got %v, want %v", got, want)
		}
	}
}

func TestSpeakingPhaseReported(t *testing.T) {
	h := newHarness(t)
	h.out.block = true

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.speaker.Speak(context.Background(), "long announcement")
	}()

	eventually(t, time.Second, func() bool {
		return h.ctrl.Snapshot().Phase == PhaseSpeaking
	}, "speaking phase")

	close(h.out.release)
	<-done

	eventually(t, time.Second, func() bool {
		return h.ctrl.Snapshot().Phase == PhaseIdle
	}, "return to idle")
}
