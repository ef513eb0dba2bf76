package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/veerhq/voicekit/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK              bool     `json:"ok"`
		SettingsDurable bool     `json:"settings_durable"`
		Issues          []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Config.Addr == "" {
		issues = append(issues, "addr must not be empty")
	}
	if h.Config.LiveHandshakeTimeout <= 0 {
		issues = append(issues, "live handshake timeout must be > 0")
	}
	if h.Config.LiveWSPingInterval <= 0 {
		issues = append(issues, "live ws ping interval must be > 0")
	}
	if h.Config.LiveWSWriteTimeout <= 0 {
		issues = append(issues, "live ws write timeout must be > 0")
	}
	if h.Config.LiveMaxMessageBytes <= 0 {
		issues = append(issues, "live max message bytes must be > 0")
	}
	if h.Config.LiveOutboundQueue <= 0 {
		issues = append(issues, "live outbound queue must be > 0")
	}
	if h.Config.AutoSendDelay <= 0 {
		issues = append(issues, "auto-send delay must be > 0")
	}
	if h.Config.PromptTTL <= 0 {
		issues = append(issues, "prompt ttl must be > 0")
	}
	if h.Config.WakeFlashTTL <= 0 {
		issues = append(issues, "wake flash ttl must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ShutdownGracePeriod <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:              ok,
		SettingsDurable: h.Config.SettingsPath != "",
		Issues:          issues,
	})
}
