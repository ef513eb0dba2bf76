package sessions

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veerhq/voicekit/pkg/voice"
)

func TestTracker_RegisterUnregister_CountAndWait(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("initial count=%d, want 0", tr.Count())
	}

	u1 := tr.Register("s1", Handle{})
	u2 := tr.Register("s2", Handle{})
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}

	u1()
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}

	u2()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); !ok {
		t.Fatalf("expected Wait to return true")
	}
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
}

func TestTracker_CancelAll_CallsCancel(t *testing.T) {
	tr := NewTracker()
	var c1, c2 atomic.Int64
	tr.Register("s1", Handle{Cancel: func() { c1.Add(1) }})
	tr.Register("s2", Handle{Cancel: func() { c2.Add(1) }})

	if n := tr.CancelAll(); n != 2 {
		t.Fatalf("canceled=%d, want 2", n)
	}
	if c1.Load() != 1 || c2.Load() != 1 {
		t.Fatalf("cancel calls=%d/%d, want 1/1", c1.Load(), c2.Load())
	}
}

func TestTracker_VoicesProvider_SkipsSessionsWithoutSynthesis(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.VoicesProvider(); ok {
		t.Fatalf("expected no provider on empty tracker")
	}

	tr.Register("s1", Handle{})
	if _, ok := tr.VoicesProvider(); ok {
		t.Fatalf("expected no provider when no session can synthesize")
	}

	want := []voice.VoiceDescriptor{{Name: "Vera", Lang: "en-US"}}
	tr.Register("s2", Handle{Voices: func(context.Context) ([]voice.VoiceDescriptor, error) {
		return want, nil
	}})

	fn, ok := tr.VoicesProvider()
	if !ok {
		t.Fatalf("expected a provider")
	}
	got, err := fn(context.Background())
	if err != nil {
		t.Fatalf("voices: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Vera" {
		t.Fatalf("voices=%v, want %v", got, want)
	}
}

func TestTracker_RegisterSameID_ReplacesOldEntry(t *testing.T) {
	tr := NewTracker()
	var oldCancel atomic.Int64
	tr.Register("s1", Handle{Cancel: func() { oldCancel.Add(1) }})
	u2 := tr.Register("s1", Handle{})

	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}
	if n := tr.CancelAll(); n != 0 {
		t.Fatalf("canceled=%d, want 0 (new entry has no cancel)", n)
	}
	if oldCancel.Load() != 0 {
		t.Fatalf("old cancel ran %d times, want 0", oldCancel.Load())
	}

	u2()
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
}
