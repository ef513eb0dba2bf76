package settings

import (
	"errors"
	"testing"

	"github.com/veerhq/voicekit/pkg/voice/bus"
)

func TestDefaultsWhenAbsent(t *testing.T) {
	s := New(NewMemory(), nil)

	if got := s.VoiceSettings(); got != DefaultVoiceSettings() {
		t.Fatalf("VoiceSettings: got %+v, want defaults", got)
	}
	cfg := s.WakeConfig()
	if cfg.Enabled {
		t.Fatalf("wake enabled by default")
	}
	if cfg.Phrase != DefaultWakePhrase {
		t.Fatalf("phrase: got %q, want %q", cfg.Phrase, DefaultWakePhrase)
	}
	if cfg.Prompt != DefaultWakePrompt {
		t.Fatalf("prompt: got %q, want %q", cfg.Prompt, DefaultWakePrompt)
	}
	if !cfg.SoundEnabled {
		t.Fatalf("sound disabled by default")
	}
	if cfg.SoundFrequencyHz != DefaultSoundFrequencyHz || cfg.SoundDurationMs != DefaultSoundDurationMs {
		t.Fatalf("tone params: got %v/%v", cfg.SoundFrequencyHz, cfg.SoundDurationMs)
	}
	if s.AutoSend() {
		t.Fatalf("auto-send enabled by default")
	}
	if got := s.Language(); got != DefaultLanguage {
		t.Fatalf("language: got %q, want %q", got, DefaultLanguage)
	}
}

func TestVoiceSettingsRoundTrip(t *testing.T) {
	s := New(NewMemory(), nil)

	in := VoiceSettings{VoiceName: "Aria", Lang: "en-GB", Rate: 1.25, Pitch: 0.9}
	if err := s.SetVoiceSettings(in); err != nil {
		t.Fatalf("SetVoiceSettings: %v", err)
	}
	if got := s.VoiceSettings(); got != in {
		t.Fatalf("got %+v, want %+v", got, in)
	}
}

func TestVoiceSettingsClamped(t *testing.T) {
	s := New(NewMemory(), nil)

	if err := s.SetVoiceSettings(VoiceSettings{Lang: "en-US", Rate: 5, Pitch: 0.1}); err != nil {
		t.Fatalf("SetVoiceSettings: %v", err)
	}
	got := s.VoiceSettings()
	if got.Rate != 2.0 {
		t.Errorf("rate: got %v, want 2", got.Rate)
	}
	if got.Pitch != 0.5 {
		t.Errorf("pitch: got %v, want 0.5", got.Pitch)
	}
}

func TestCorruptStoredValuesFallBack(t *testing.T) {
	store := NewMemory()
	s := New(store, nil)

	store.Set(KeyVoiceSettings, "{not json")
	store.Set(KeyWakeSoundFrequency, "loud")
	store.Set(KeyWakeEnabled, "maybe")

	if got := s.VoiceSettings(); got != DefaultVoiceSettings() {
		t.Errorf("voice settings: got %+v, want defaults", got)
	}
	cfg := s.WakeConfig()
	if cfg.SoundFrequencyHz != DefaultSoundFrequencyHz {
		t.Errorf("frequency: got %v, want default", cfg.SoundFrequencyHz)
	}
	if cfg.Enabled {
		t.Errorf("unparseable enabled flag should read false")
	}
}

func TestEmptyPhraseFallsBackOnRead(t *testing.T) {
	s := New(NewMemory(), nil)

	if err := s.SetWakePhrase("   "); err != nil {
		t.Fatalf("SetWakePhrase: %v", err)
	}
	if got := s.WakeConfig().Phrase; got != DefaultWakePhrase {
		t.Fatalf("phrase: got %q, want %q", got, DefaultWakePhrase)
	}
}

func TestSettersPublishCompletePayloads(t *testing.T) {
	b := bus.New()
	s := New(NewMemory(), b)

	var wake []bus.WakeChange
	b.Subscribe(bus.TopicWakeChange, func(ev bus.Event) {
		wake = append(wake, ev.Payload.(bus.WakeChange))
	})
	var prompts []bus.WakePromptChange
	b.Subscribe(bus.TopicWakePromptChange, func(ev bus.Event) {
		prompts = append(prompts, ev.Payload.(bus.WakePromptChange))
	})

	if err := s.SetWakeEnabled(true); err != nil {
		t.Fatalf("SetWakeEnabled: %v", err)
	}
	if err := s.SetWakePhrase("ok computer"); err != nil {
		t.Fatalf("SetWakePhrase: %v", err)
	}
	if err := s.SetWakePrompt("Listening."); err != nil {
		t.Fatalf("SetWakePrompt: %v", err)
	}

	want := []bus.WakeChange{
		{Enabled: true, Phrase: DefaultWakePhrase},
		{Enabled: true, Phrase: "ok computer"},
	}
	if len(wake) != len(want) {
		t.Fatalf("wake-change events: got %d, want %d", len(wake), len(want))
	}
	for i := range want {
		if wake[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, wake[i], want[i])
		}
	}
	if len(prompts) != 1 || prompts[0].Prompt != "Listening." {
		t.Fatalf("prompt events: got %+v", prompts)
	}
}

func TestSoundParamsPartialUpdate(t *testing.T) {
	b := bus.New()
	s := New(NewMemory(), b)

	var got []bus.WakeSoundParams
	b.Subscribe(bus.TopicWakeSoundParams, func(ev bus.Event) {
		got = append(got, ev.Payload.(bus.WakeSoundParams))
	})

	// Zero frequency leaves the stored value alone; only duration moves.
	if err := s.SetWakeSoundParams(0, 250); err != nil {
		t.Fatalf("SetWakeSoundParams: %v", err)
	}
	cfg := s.WakeConfig()
	if cfg.SoundFrequencyHz != DefaultSoundFrequencyHz {
		t.Errorf("frequency changed: got %v", cfg.SoundFrequencyHz)
	}
	if cfg.SoundDurationMs != 250 {
		t.Errorf("duration: got %v, want 250", cfg.SoundDurationMs)
	}
	if len(got) != 1 {
		t.Fatalf("params events: got %d, want 1", len(got))
	}
	if got[0].FrequencyHz != DefaultSoundFrequencyHz || got[0].DurationMs != 250 {
		t.Errorf("published payload incomplete: %+v", got[0])
	}
}

func TestSetLanguageRejectsEmpty(t *testing.T) {
	s := New(NewMemory(), nil)
	if err := s.SetLanguage(""); err == nil {
		t.Fatalf("expected error for empty language")
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := OpenBadger(BadgerOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer store.Close()

	if _, err := store.Get("absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get absent: got %v, want ErrNotFound", err)
	}
	if err := store.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get("k")
	if err != nil || got != "v" {
		t.Fatalf("Get: got %q, %v", got, err)
	}
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get deleted: got %v, want ErrNotFound", err)
	}
	// Deleting a missing key is not an error.
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}

func TestBadgerInMemory(t *testing.T) {
	store, err := OpenBadger(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer store.Close()

	if err := store.Set(KeyLanguage, "de-DE"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s := New(store, nil)
	if got := s.Language(); got != "de-DE" {
		t.Fatalf("language: got %q, want de-DE", got)
	}
}
