package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veerhq/voicekit/pkg/voice/bus"
	"github.com/veerhq/voicekit/pkg/voice/settings"
)

func newSettingsHandler(t *testing.T) (SettingsHandler, *settings.Settings, *bus.Bus) {
	t.Helper()
	b := bus.New()
	st := settings.New(settings.NewMemory(), b)
	t.Cleanup(func() { _ = st.Close() })
	return SettingsHandler{Settings: st}, st, b
}

func TestSettingsHandler_GetReturnsDefaults(t *testing.T) {
	h, _, _ := newSettingsHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["wake_enabled"] != false {
		t.Fatalf("wake_enabled=%v, want false", resp["wake_enabled"])
	}
	if resp["wake_phrase"] != settings.DefaultWakePhrase {
		t.Fatalf("wake_phrase=%v, want %q", resp["wake_phrase"], settings.DefaultWakePhrase)
	}
	if resp["auto_send"] != false {
		t.Fatalf("auto_send=%v, want false", resp["auto_send"])
	}
	if resp["language"] != settings.DefaultLanguage {
		t.Fatalf("language=%v, want %q", resp["language"], settings.DefaultLanguage)
	}
}

func TestSettingsHandler_PutAppliesPartialPatch(t *testing.T) {
	h, st, _ := newSettingsHandler(t)

	body := `{"wake_phrase":"ok veer","auto_send":true,"voice":{"rate":1.5}}`
	req := httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["wake_phrase"] != "ok veer" {
		t.Fatalf("wake_phrase=%v, want %q", resp["wake_phrase"], "ok veer")
	}
	if resp["auto_send"] != true {
		t.Fatalf("auto_send=%v, want true", resp["auto_send"])
	}
	voiceResp, _ := resp["voice"].(map[string]any)
	if voiceResp == nil || voiceResp["rate"] != 1.5 {
		t.Fatalf("voice=%v, want rate 1.5", resp["voice"])
	}

	// Untouched fields keep their stored values.
	if resp["wake_prompt"] != settings.DefaultWakePrompt {
		t.Fatalf("wake_prompt=%v, want %q", resp["wake_prompt"], settings.DefaultWakePrompt)
	}
	if got := st.WakeConfig().Phrase; got != "ok veer" {
		t.Fatalf("stored phrase=%q, want %q", got, "ok veer")
	}
}

func TestSettingsHandler_PutPublishesChanges(t *testing.T) {
	h, _, b := newSettingsHandler(t)

	var changes []bus.WakeChange
	unsub := b.Subscribe(bus.TopicWakeChange, func(ev bus.Event) {
		if wc, ok := ev.Payload.(bus.WakeChange); ok {
			changes = append(changes, wc)
		}
	})
	defer unsub()

	body := `{"wake_enabled":true,"wake_phrase":"ok veer"}`
	req := httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if len(changes) == 0 {
		t.Fatalf("expected wake-change events")
	}
	last := changes[len(changes)-1]
	if !last.Enabled || last.Phrase != "ok veer" {
		t.Fatalf("last change=%+v, want enabled with phrase %q", last, "ok veer")
	}
}

func TestSettingsHandler_PutRejectsUnknownFields(t *testing.T) {
	h, _, _ := newSettingsHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(`{"bogus":1}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestSettingsHandler_PutRejectsInvalidValues(t *testing.T) {
	h, _, _ := newSettingsHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty language", `{"language":""}`},
		{"zero frequency", `{"wake_sound_frequency_hz":0}`},
		{"negative rate", `{"voice":{"rate":-1}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestSettingsHandler_MethodNotAllowed(t *testing.T) {
	h, _, _ := newSettingsHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/v1/settings", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
