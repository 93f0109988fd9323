// Package gateway exposes the HTTP surface: health and metrics, agent run
// submission, run history, pending confirmations and approvals, runtime
// overrides, and a websocket audit event stream.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shiftwise/shiftwise/internal/agent"
	"github.com/shiftwise/shiftwise/internal/config"
	"github.com/shiftwise/shiftwise/internal/governor"
	"github.com/shiftwise/shiftwise/internal/metrics"
	"github.com/shiftwise/shiftwise/internal/provider"
	"github.com/shiftwise/shiftwise/internal/security"
)

// OverrideAdmin is the write side of runtime overrides, implemented by the
// sqlite store. Nil disables the override endpoints.
type OverrideAdmin interface {
	SetToolOverride(ctx context.Context, name string, ov config.ToolOverride) error
	SetModuleOverride(ctx context.Context, id string, ov config.ModuleOverride) error
}

// GatewayConfig wires a Gateway.
type GatewayConfig struct {
	HTTP      config.GatewayConfig
	Runner    *agent.Runner
	Governor  *governor.Governor
	Providers *provider.Registry
	Runs      agent.RunStore
	Overrides OverrideAdmin
	Cache     *config.CachedOverrides
	Metrics   *metrics.Metrics
	Audit     *security.AuditLogger
	Limiter   *security.RateLimiter
	Hub       *EventHub
	Logger    *slog.Logger
}

type Gateway struct {
	cfg       config.GatewayConfig
	runner    *agent.Runner
	governor  *governor.Governor
	providers *provider.Registry
	runs      agent.RunStore
	overrides OverrideAdmin
	cache     *config.CachedOverrides
	metrics   *metrics.Metrics
	audit     *security.AuditLogger
	limiter   *security.RateLimiter
	hub       *EventHub
	logger    *slog.Logger

	server    *http.Server
	startedAt time.Time
}

func New(cfg GatewayConfig) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:       cfg.HTTP,
		runner:    cfg.Runner,
		governor:  cfg.Governor,
		providers: cfg.Providers,
		runs:      cfg.Runs,
		overrides: cfg.Overrides,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
		audit:     cfg.Audit,
		limiter:   cfg.Limiter,
		hub:       cfg.Hub,
		logger:    logger.With("component", "gateway"),
	}
}

// Router builds the chi mux. Exported for httptest-based tests.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	// Public — no auth required.
	r.Get("/health", g.handleHealth())

	// Everything else needs the bearer token. With no token configured
	// only /health is served; a token-less deployment has no API.
	if g.cfg.BearerToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(g.authMiddleware())
			r.Handle("/metrics", g.metrics.Handler())
			r.Get("/ws/events", g.handleEvents())
			r.Route("/api", func(r chi.Router) {
				r.Get("/agents", g.handleListAgents())
				r.Post("/agents/{id}/runs", g.handleCreateRun())
				r.Get("/agents/{id}/runs", g.handleListRuns())
				r.Get("/runs/{id}", g.handleGetRun())
				r.Get("/pendings", g.handleListPendings())
				r.Post("/pendings/{id}/decision", g.handleDecidePending())
				if g.overrides != nil {
					r.Put("/overrides/tools/{name}", g.handleSetToolOverride())
					r.Put("/overrides/modules/{id}", g.handleSetModuleOverride())
				}
			})
		})
	}

	return r
}

// Start listens and serves in the background.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:         g.cfg.Bind,
		Handler:      g.Router(),
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.cfg.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
