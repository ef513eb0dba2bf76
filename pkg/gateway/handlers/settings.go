package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/veerhq/voicekit/pkg/gateway/apierror"
	"github.com/veerhq/voicekit/pkg/gateway/mw"
	"github.com/veerhq/voicekit/pkg/gateway/protocol"
	"github.com/veerhq/voicekit/pkg/voice/settings"
)

const maxSettingsBodyBytes = 64 * 1024

// SettingsHandler serves the full settings snapshot: GET returns it, PUT
// applies a patch (absent fields stay unchanged) and returns the result.
type SettingsHandler struct {
	Settings *settings.Settings
}

func (h SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		h.writeSnapshot(w)

	case http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsBodyBytes+1))
		if err != nil {
			writeErrorJSON(w, http.StatusBadRequest, apierror.BadRequest("failed to read body", "", reqID))
			return
		}
		if int64(len(body)) > maxSettingsBodyBytes {
			writeErrorJSON(w, http.StatusRequestEntityTooLarge, apierror.BadRequest("body too large", "", reqID))
			return
		}

		var patch protocol.SettingsPatch
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&patch); err != nil {
			writeErrorJSON(w, http.StatusBadRequest, apierror.BadRequest("invalid settings json", "", reqID))
			return
		}
		if err := protocol.ValidateSettingsPatch(patch); err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				writeErrorJSON(w, http.StatusBadRequest, apierror.BadRequest(decodeErr.Message, decodeErr.Param, reqID))
				return
			}
			writeErrorJSON(w, http.StatusBadRequest, apierror.BadRequest(err.Error(), "", reqID))
			return
		}
		if err := applySettingsPatch(h.Settings, patch); err != nil {
			writeErrorJSON(w, http.StatusInternalServerError, apierror.Internal("failed to persist settings", reqID))
			return
		}
		h.writeSnapshot(w)

	default:
		writeErrorJSON(w, http.StatusMethodNotAllowed, apierror.MethodNotAllowed(reqID))
	}
}

func (h SettingsHandler) writeSnapshot(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(settingsSnapshot(h.Settings))
}

// settingsSnapshot reads the complete persisted settings into wire shape.
func settingsSnapshot(s *settings.Settings) protocol.Settings {
	wc := s.WakeConfig()
	vs := s.VoiceSettings()
	return protocol.Settings{
		WakeEnabled:          wc.Enabled,
		WakePhrase:           wc.Phrase,
		WakePrompt:           wc.Prompt,
		WakeSoundEnabled:     wc.SoundEnabled,
		WakeSoundFrequencyHz: wc.SoundFrequencyHz,
		WakeSoundDurationMS:  wc.SoundDurationMs,
		AutoSend:             s.AutoSend(),
		Language:             s.Language(),
		Voice: protocol.VoiceSettings{
			VoiceName: vs.VoiceName,
			Lang:      vs.Lang,
			Rate:      vs.Rate,
			Pitch:     vs.Pitch,
		},
	}
}

// applySettingsPatch routes each present field through its typed setter, so
// every change persists and publishes exactly as a direct call would. The
// wake enable flag is applied last; its restart then sees everything else
// already stored.
func applySettingsPatch(s *settings.Settings, p protocol.SettingsPatch) error {
	if p.WakePhrase != nil {
		if err := s.SetWakePhrase(*p.WakePhrase); err != nil {
			return err
		}
	}
	if p.WakePrompt != nil {
		if err := s.SetWakePrompt(*p.WakePrompt); err != nil {
			return err
		}
	}
	if p.WakeSoundEnabled != nil {
		if err := s.SetWakeSoundEnabled(*p.WakeSoundEnabled); err != nil {
			return err
		}
	}
	if p.WakeSoundFrequencyHz != nil || p.WakeSoundDurationMS != nil {
		var freq float64
		var dur int
		if p.WakeSoundFrequencyHz != nil {
			freq = *p.WakeSoundFrequencyHz
		}
		if p.WakeSoundDurationMS != nil {
			dur = *p.WakeSoundDurationMS
		}
		if err := s.SetWakeSoundParams(freq, dur); err != nil {
			return err
		}
	}
	if p.AutoSend != nil {
		if err := s.SetAutoSend(*p.AutoSend); err != nil {
			return err
		}
	}
	if p.Voice != nil {
		vs := s.VoiceSettings()
		if p.Voice.VoiceName != nil {
			vs.VoiceName = *p.Voice.VoiceName
		}
		if p.Voice.Lang != nil {
			vs.Lang = *p.Voice.Lang
		}
		if p.Voice.Rate != nil {
			vs.Rate = *p.Voice.Rate
		}
		if p.Voice.Pitch != nil {
			vs.Pitch = *p.Voice.Pitch
		}
		if err := s.SetVoiceSettings(vs); err != nil {
			return err
		}
	}
	if p.Language != nil {
		if err := s.SetLanguage(*p.Language); err != nil {
			return err
		}
	}
	if p.WakeEnabled != nil {
		if err := s.SetWakeEnabled(*p.WakeEnabled); err != nil {
			return err
		}
	}
	return nil
}
