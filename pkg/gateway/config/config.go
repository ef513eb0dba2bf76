package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Settings store directory. Empty means an in-memory store, which is
	// what the tests and the demo use.
	SettingsPath string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Live WebSocket endpoint (/v1/live).
	LiveHandshakeTimeout time.Duration
	LiveWSPingInterval   time.Duration
	LiveWSWriteTimeout   time.Duration
	LiveMaxMessageBytes  int64
	LiveOutboundQueue    int

	// Listening session behavior.
	AutoSendDelay time.Duration
	PromptTTL     time.Duration
	WakeFlashTTL  time.Duration

	// Operational defaults
	MetricsNamespace    string
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                 envOr("VOICEKIT_ADDR", ":8090"),
		SettingsPath:         strings.TrimSpace(os.Getenv("VOICEKIT_SETTINGS_PATH")),
		CORSAllowedOrigins:   make(map[string]struct{}),
		LiveHandshakeTimeout: envDurationOr("VOICEKIT_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveWSPingInterval:   envDurationOr("VOICEKIT_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:   envDurationOr("VOICEKIT_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveMaxMessageBytes:  envInt64Or("VOICEKIT_LIVE_MAX_MESSAGE_BYTES", 256*1024),
		LiveOutboundQueue:    envIntOr("VOICEKIT_LIVE_OUTBOUND_QUEUE", 64),
		AutoSendDelay:        envDurationOr("VOICEKIT_AUTO_SEND_DELAY", 100*time.Millisecond),
		PromptTTL:            envDurationOr("VOICEKIT_PROMPT_TTL", 3*time.Second),
		WakeFlashTTL:         envDurationOr("VOICEKIT_WAKE_FLASH_TTL", 1500*time.Millisecond),
		MetricsNamespace:     envOr("VOICEKIT_METRICS_NAMESPACE", "voicekit"),
		ReadHeaderTimeout:    envDurationOr("VOICEKIT_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:  envDurationOr("VOICEKIT_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("VOICEKIT_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("VOICEKIT_ADDR must not be empty")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEKIT_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOICEKIT_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEKIT_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOICEKIT_LIVE_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveOutboundQueue <= 0 {
		return Config{}, fmt.Errorf("VOICEKIT_LIVE_OUTBOUND_QUEUE must be > 0")
	}
	if cfg.AutoSendDelay <= 0 {
		return Config{}, fmt.Errorf("VOICEKIT_AUTO_SEND_DELAY must be > 0")
	}
	if cfg.PromptTTL <= 0 {
		return Config{}, fmt.Errorf("VOICEKIT_PROMPT_TTL must be > 0")
	}
	if cfg.WakeFlashTTL <= 0 {
		return Config{}, fmt.Errorf("VOICEKIT_WAKE_FLASH_TTL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEKIT_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICEKIT_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
