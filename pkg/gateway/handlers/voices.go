package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/veerhq/voicekit/pkg/gateway/apierror"
	"github.com/veerhq/voicekit/pkg/gateway/mw"
	"github.com/veerhq/voicekit/pkg/gateway/sessions"
	"github.com/veerhq/voicekit/pkg/voice"
)

const voicesRequestTimeout = 5 * time.Second

// VoicesHandler lists the synthesis voices of a connected live client.
// The daemon has no synthesis of its own, so with no connected client
// that can synthesize the listing is unavailable.
type VoicesHandler struct {
	Sessions *sessions.Tracker
}

func (h VoicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeErrorJSON(w, http.StatusMethodNotAllowed, apierror.MethodNotAllowed(reqID))
		return
	}

	fn, ok := h.Sessions.VoicesProvider()
	if !ok {
		writeErrorJSON(w, http.StatusServiceUnavailable, &apierror.Error{
			Code:      "no_client",
			Message:   "no connected client can synthesize",
			RequestID: reqID,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), voicesRequestTimeout)
	defer cancel()
	voices, err := fn(ctx)
	if err != nil {
		apiErr, status := apierror.FromError(err, reqID)
		writeErrorJSON(w, status, apiErr)
		return
	}
	if voices == nil {
		voices = []voice.VoiceDescriptor{}
	}

	type voicesResp struct {
		Voices []voice.VoiceDescriptor `json:"voices"`
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(voicesResp{Voices: voices})
}
