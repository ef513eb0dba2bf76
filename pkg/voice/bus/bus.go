// Package bus is the in-process publish/subscribe channel that propagates
// settings changes between voice components. Payloads are normalized at
// publish time, so every subscriber receives one canonical shape per topic
// regardless of what the publisher passed in.
package bus

import "sync"

// Topic identifies an event stream.
type Topic string

const (
	// TopicWakeChange carries the complete wake enable/phrase pair after
	// either field changes.
	TopicWakeChange Topic = "wake-change"
	// TopicWakeStatus reports whether the wake detector is running.
	TopicWakeStatus Topic = "wake-status"
	// TopicWakeSoundChange carries the wake sound cue enable flag.
	TopicWakeSoundChange Topic = "wake-sound-change"
	// TopicWakePromptChange carries the wake acknowledgement prompt text.
	TopicWakePromptChange Topic = "wake-prompt-change"
	// TopicWakeSoundParams carries the complete sound cue parameters after
	// either changes.
	TopicWakeSoundParams Topic = "wake-sound-params-change"
	// TopicLanguageChange carries the new UI language tag.
	TopicLanguageChange Topic = "language-change"
)

// WakeChange is the canonical payload for TopicWakeChange.
type WakeChange struct {
	Enabled bool   `json:"enabled"`
	Phrase  string `json:"phrase"`
}

// WakeStatus is the canonical payload for TopicWakeStatus.
type WakeStatus struct {
	Active bool `json:"active"`
}

// WakeSoundChange is the canonical payload for TopicWakeSoundChange.
type WakeSoundChange struct {
	Enabled bool `json:"enabled"`
}

// WakePromptChange is the canonical payload for TopicWakePromptChange.
type WakePromptChange struct {
	Prompt string `json:"prompt"`
}

// WakeSoundParams is the canonical payload for TopicWakeSoundParams. Both
// fields are always populated with the full current values.
type WakeSoundParams struct {
	FrequencyHz float64 `json:"frequency_hz"`
	DurationMs  int     `json:"duration_ms"`
}

// LanguageChange is the canonical payload for TopicLanguageChange.
type LanguageChange struct {
	Lang string `json:"lang"`
}

// Event is a delivered topic/payload pair.
type Event struct {
	Topic   Topic
	Payload any
}

// Handler receives events for a subscribed topic. Handlers run on the
// publisher's goroutine, in subscription order; they must not block and
// must not publish to the same topic reentrantly.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Bus is a topic-keyed pub/sub hub. The zero value is not usable; call New.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic][]subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers a handler for a topic and returns its cancel func.
// Cancelling twice is harmless.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s.id == id {
				b.subs[topic] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish normalizes the payload for the topic and delivers it synchronously
// to every subscriber in subscription order. Synchronous delivery is what
// lets a settings change finish its stop/restart work before any detection
// that follows it is processed.
func (b *Bus) Publish(topic Topic, payload any) {
	canonical, ok := Normalize(topic, payload)
	if !ok {
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.subs[topic]))
	for i, s := range b.subs[topic] {
		handlers[i] = s.handler
	}
	b.mu.RUnlock()

	ev := Event{Topic: topic, Payload: canonical}
	for _, h := range handlers {
		h(ev)
	}
}

// Normalize maps a payload to the canonical shape for its topic. Legacy
// shapes (a bare bool for the sound toggle, a bare string for the prompt)
// are accepted and converted; unknown shapes are rejected.
func Normalize(topic Topic, payload any) (any, bool) {
	switch topic {
	case TopicWakeChange:
		if p, ok := payload.(WakeChange); ok {
			return p, true
		}
	case TopicWakeStatus:
		switch p := payload.(type) {
		case WakeStatus:
			return p, true
		case bool:
			return WakeStatus{Active: p}, true
		}
	case TopicWakeSoundChange:
		switch p := payload.(type) {
		case WakeSoundChange:
			return p, true
		case bool:
			return WakeSoundChange{Enabled: p}, true
		}
	case TopicWakePromptChange:
		switch p := payload.(type) {
		case WakePromptChange:
			return p, true
		case string:
			return WakePromptChange{Prompt: p}, true
		}
	case TopicWakeSoundParams:
		if p, ok := payload.(WakeSoundParams); ok {
			return p, true
		}
	case TopicLanguageChange:
		switch p := payload.(type) {
		case LanguageChange:
			return p, true
		case string:
			return LanguageChange{Lang: p}, true
		}
	}
	return nil, false
}
