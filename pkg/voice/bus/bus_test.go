package bus

import (
	"testing"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := New()

	var order []int
	b.Subscribe(TopicWakeChange, func(Event) { order = append(order, 1) })
	b.Subscribe(TopicWakeChange, func(Event) { order = append(order, 2) })
	b.Subscribe(TopicWakeChange, func(Event) { order = append(order, 3) })

	b.Publish(TopicWakeChange, WakeChange{Enabled: true, Phrase: "hey veer"})

	if len(order) != 3 {
		t.Fatalf("deliveries=%d, want 3", len(order))
	}
	for i, got := range order {
		if got != i+1 {
			t.Errorf("order[%d]=%d, want %d", i, got, i+1)
		}
	}
}

func TestPublishIsSynchronous(t *testing.T) {
	b := New()

	delivered := false
	b.Subscribe(TopicLanguageChange, func(ev Event) {
		p, ok := ev.Payload.(LanguageChange)
		if !ok {
			t.Fatalf("payload type=%T, want LanguageChange", ev.Payload)
		}
		if p.Lang != "de-DE" {
			t.Errorf("lang=%q, want %q", p.Lang, "de-DE")
		}
		delivered = true
	})

	b.Publish(TopicLanguageChange, "de-DE")

	if !delivered {
		t.Fatal("expected delivery before Publish returned")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	count := 0
	cancel := b.Subscribe(TopicWakeStatus, func(Event) { count++ })

	b.Publish(TopicWakeStatus, WakeStatus{Active: true})
	cancel()
	b.Publish(TopicWakeStatus, WakeStatus{Active: false})
	cancel() // second cancel is a no-op

	if count != 1 {
		t.Fatalf("deliveries=%d, want 1", count)
	}
}

func TestNormalizeLegacyShapes(t *testing.T) {
	tests := []struct {
		name    string
		topic   Topic
		payload any
		want    any
	}{
		{"sound toggle bare bool", TopicWakeSoundChange, true, WakeSoundChange{Enabled: true}},
		{"sound toggle struct", TopicWakeSoundChange, WakeSoundChange{Enabled: false}, WakeSoundChange{Enabled: false}},
		{"prompt bare string", TopicWakePromptChange, "Yes?", WakePromptChange{Prompt: "Yes?"}},
		{"prompt struct", TopicWakePromptChange, WakePromptChange{Prompt: "Hm?"}, WakePromptChange{Prompt: "Hm?"}},
		{"status bare bool", TopicWakeStatus, false, WakeStatus{Active: false}},
		{"language bare string", TopicLanguageChange, "fr-FR", LanguageChange{Lang: "fr-FR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.topic, tt.payload)
			if !ok {
				t.Fatalf("Normalize rejected payload %v", tt.payload)
			}
			if got != tt.want {
				t.Errorf("got=%#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNormalizeRejectsUnknownShapes(t *testing.T) {
	if _, ok := Normalize(TopicWakeChange, "enabled"); ok {
		t.Error("expected bare string to be rejected for wake-change")
	}
	if _, ok := Normalize(TopicWakeSoundParams, 440); ok {
		t.Error("expected bare int to be rejected for sound params")
	}
}

func TestSubscribersAlwaysSeeCanonicalShape(t *testing.T) {
	b := New()

	var got any
	b.Subscribe(TopicWakeSoundChange, func(ev Event) { got = ev.Payload })

	// Legacy publisher passes a bare bool.
	b.Publish(TopicWakeSoundChange, true)

	want := WakeSoundChange{Enabled: true}
	if got != want {
		t.Fatalf("payload=%#v, want %#v", got, want)
	}
}
