package wake

import (
	"errors"
	"sync"
	"testing"

	"github.com/veerhq/voicekit/pkg/voice"
)

// fakeCapture scripts a capture session and lets the test drive callbacks.
type fakeCapture struct {
	mu        sync.Mutex
	supported bool
	refuse    bool
	starts    int
	stops     int
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
	f.opts = opts
	return true
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeCapture) session() voice.CaptureOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

func TestDetectFiresOncePerUtterance(t *testing.T) {
	cap := &fakeCapture{supported: true}
	d := New(cap, nil)

	detections := 0
	d.SetCallbacks(func() { detections++ }, nil)

	if !d.Start("en-US", "hey veer") {
		t.Fatalf("Start returned false")
	}
	sess := cap.session()

	sess.OnInterim("hey")
	if detections != 0 {
		t.Fatalf("fired on partial prefix")
	}
	sess.OnInterim("hey veer what's the weather")
	sess.OnInterim("hey veer what's the weather today")
	if detections != 1 {
		t.Fatalf("detections inside one utterance: got %d, want 1", detections)
	}

	// Utterance boundary re-arms the latch.
	sess.OnEnd()
	sess.OnInterim("hey veer again")
	if detections != 2 {
		t.Fatalf("detections after boundary: got %d, want 2", detections)
	}
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	cap := &fakeCapture{supported: true}
	d := New(cap, nil)

	detections := 0
	d.SetCallbacks(func() { detections++ }, nil)

	if !d.Start("en-US", "Hey Veer") {
		t.Fatalf("Start returned false")
	}
	cap.session().OnInterim("well HEY VEER there")
	if detections != 1 {
		t.Fatalf("detections: got %d, want 1", detections)
	}
}

func TestStartRefusals(t *testing.T) {
	t.Run("blank phrase", func(t *testing.T) {
		cap := &fakeCapture{supported: true}
		d := New(cap, nil)
		if d.Start("en-US", "  ") {
			t.Fatalf("started with blank phrase")
		}
		if cap.starts != 0 {
			t.Fatalf("capture started anyway")
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		cap := &fakeCapture{}
		d := New(cap, nil)
		if d.Start("en-US", "hey veer") {
			t.Fatalf("started without capture support")
		}
	})

	t.Run("capture refuses", func(t *testing.T) {
		cap := &fakeCapture{supported: true, refuse: true}
		d := New(cap, nil)
		if d.Start("en-US", "hey veer") {
			t.Fatalf("started although capture refused")
		}
		if d.Running() {
			t.Fatalf("detector claims to be running")
		}
	})

	t.Run("already running", func(t *testing.T) {
		cap := &fakeCapture{supported: true}
		d := New(cap, nil)
		if !d.Start("en-US", "hey veer") {
			t.Fatalf("first Start returned false")
		}
		if d.Start("en-US", "hey veer") {
			t.Fatalf("second Start succeeded while running")
		}
		if cap.starts != 1 {
			t.Fatalf("capture sessions: got %d, want 1", cap.starts)
		}
	})
}

func TestStopIsIdempotent(t *testing.T) {
	cap := &fakeCapture{supported: true}
	d := New(cap, nil)

	if !d.Start("en-US", "hey veer") {
		t.Fatalf("Start returned false")
	}
	d.Stop()
	d.Stop()
	if cap.stops != 1 {
		t.Fatalf("capture stops: got %d, want 1", cap.stops)
	}
	if d.Running() {
		t.Fatalf("still running after Stop")
	}
}

func TestRuntimeErrorStopsDetector(t *testing.T) {
	cap := &fakeCapture{supported: true}
	d := New(cap, nil)

	var reported error
	d.SetCallbacks(nil, func(err error) { reported = err })

	if !d.Start("en-US", "hey veer") {
		t.Fatalf("Start returned false")
	}
	cap.session().OnError(errors.New("not-allowed"))

	if d.Running() {
		t.Fatalf("detector still running after capture error")
	}
	if cap.stops != 1 {
		t.Fatalf("capture stops: got %d, want 1", cap.stops)
	}
	if !voice.IsKind(reported, voice.ErrListener) {
		t.Fatalf("reported error: got %v, want listener kind", reported)
	}
}

func TestStaleSessionCallbacksIgnored(t *testing.T) {
	cap := &fakeCapture{supported: true}
	d := New(cap, nil)

	detections := 0
	d.SetCallbacks(func() { detections++ }, nil)

	if !d.Start("en-US", "old phrase") {
		t.Fatalf("Start returned false")
	}
	stale := cap.session()

	d.Stop()
	if !d.Start("en-US", "new phrase") {
		t.Fatalf("restart returned false")
	}

	// Callbacks from the replaced session must not fire detection, even
	// when their text matches the phrase they were configured with.
	stale.OnInterim("old phrase spoken late")
	if detections != 0 {
		t.Fatalf("stale session fired detection")
	}

	cap.session().OnInterim("new phrase here")
	if detections != 1 {
		t.Fatalf("live session detections: got %d, want 1", detections)
	}
}
