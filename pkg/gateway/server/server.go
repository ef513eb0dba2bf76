// Package server assembles the voicekit daemon: the shared settings store,
// event bus, metrics and session tracker behind the HTTP surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/veerhq/voicekit/pkg/gateway/config"
	"github.com/veerhq/voicekit/pkg/gateway/handlers"
	"github.com/veerhq/voicekit/pkg/gateway/metrics"
	"github.com/veerhq/voicekit/pkg/gateway/mw"
	"github.com/veerhq/voicekit/pkg/gateway/sessions"
	"github.com/veerhq/voicekit/pkg/voice/bus"
	"github.com/veerhq/voicekit/pkg/voice/settings"
)

// Server holds the daemon-wide state. Settings, bus, metrics and the
// session tracker are shared by every live connection; the interaction
// controllers are per connection and live inside the handlers.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	settings *settings.Settings
	bus      *bus.Bus
	metrics  *metrics.Metrics
	sessions *sessions.Tracker
}

// New opens the settings store and builds the route table. Settings are
// durable when cfg.SettingsPath is set; otherwise they live in memory and
// reset on restart.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var store settings.Store
	if cfg.SettingsPath != "" {
		bs, err := settings.OpenBadger(settings.BadgerOptions{Dir: cfg.SettingsPath})
		if err != nil {
			return nil, fmt.Errorf("open settings store: %w", err)
		}
		store = bs
		logger.Info("settings store opened", "path", cfg.SettingsPath)
	} else {
		store = settings.NewMemory()
		logger.Warn("no settings path configured, settings will not survive restarts")
	}

	b := bus.New()
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		settings: settings.New(store, b),
		bus:      b,
		metrics:  metrics.New(cfg.MetricsNamespace),
		sessions: sessions.NewTracker(),
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/v1/settings", handlers.SettingsHandler{Settings: s.settings})
	s.mux.Handle("/v1/voices", handlers.VoicesHandler{Sessions: s.sessions})
	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Settings: s.settings,
		Bus:      s.bus,
		Metrics:  s.metrics,
		Sessions: s.sessions,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// CancelLiveSessions force-closes every live connection so their reads
// unblock. Shutdown calls this before draining the HTTP server.
func (s *Server) CancelLiveSessions() int {
	return s.sessions.CancelAll()
}

// WaitLiveSessions blocks until every live handler has finished its
// teardown or ctx expires. It reports whether the sessions drained.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}

// Close releases the settings store. Call it after the HTTP server has
// stopped serving.
func (s *Server) Close() error {
	return s.settings.Close()
}
