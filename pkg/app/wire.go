package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shiftwise/shiftwise/internal/agent"
	"github.com/shiftwise/shiftwise/internal/capability"
	"github.com/shiftwise/shiftwise/internal/config"
	ctxengine "github.com/shiftwise/shiftwise/internal/context"
	"github.com/shiftwise/shiftwise/internal/cron"
	"github.com/shiftwise/shiftwise/internal/gateway"
	"github.com/shiftwise/shiftwise/internal/governor"
	"github.com/shiftwise/shiftwise/internal/metrics"
	"github.com/shiftwise/shiftwise/internal/provider"
	"github.com/shiftwise/shiftwise/internal/security"
	"github.com/shiftwise/shiftwise/internal/tool"
	"github.com/shiftwise/shiftwise/modules/context/vendorsales"
	"github.com/shiftwise/shiftwise/modules/provider/anthropic"
	"github.com/shiftwise/shiftwise/modules/provider/openai"
	"github.com/shiftwise/shiftwise/modules/store/sqlite"
	"github.com/shiftwise/shiftwise/modules/tools/ops"
)

// components holds everything build wires together, in the order it must
// be torn down.
type components struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *sqlite.Store
	auditFile *os.File
	audit     *security.AuditLogger
	hub       *gateway.EventHub
	scheduler *cron.Scheduler
	gateway   *gateway.Gateway
}

// build assembles the full service from a loaded configuration.
func build(cfg *config.Config) (*components, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	redactor := security.NewRedactor()
	for _, pc := range cfg.Providers {
		if pc.APIKey != "" {
			redactor.AddLiteral(pc.APIKey)
		}
	}
	if cfg.Gateway.BearerToken != "" {
		redactor.AddLiteral(cfg.Gateway.BearerToken)
	}

	logger := buildLogger(cfg.Log, redactor)

	// Audit trail: JSONL file plus live fan-out to websocket subscribers.
	auditPath := cfg.Log.AuditPath
	if auditPath == "" {
		auditPath = filepath.Join(cfg.DataDir, "audit.jsonl")
	}
	auditFile, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	hub := gateway.NewEventHub()
	audit := security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   auditFile,
		Redactor: redactor,
		OnEvent:  hub.Publish,
	})

	storePath := cfg.Store.Path
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(cfg.DataDir, storePath)
	}
	store, err := sqlite.Open(storePath, cfg.Store.BusyTimeoutMS, logger)
	if err != nil {
		auditFile.Close()
		return nil, err
	}

	c := &components{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		auditFile: auditFile,
		audit:     audit,
		hub:       hub,
	}

	cached := config.NewCachedOverrides(store, cfg.Overrides.TTL, logger)
	m := metrics.New()

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		c.close()
		return nil, err
	}

	tools := tool.NewRegistry()
	for _, t := range ops.All(store, store) {
		if err := tools.Register(t); err != nil {
			c.close()
			return nil, fmt.Errorf("register tool: %w", err)
		}
	}

	gov := governor.New(governor.Config{
		Tools:       tools,
		Invocations: store,
		Pendings:    store.Pendings(),
		Overrides:   cached,
		Audit:       audit,
		Metrics:     m,
		Logger:      logger,
	})

	ctxreg := ctxengine.NewRegistry()
	if vs := cfg.Context.VendorSales; vs.Path != "" {
		mod, err := vendorsales.New(vendorsales.Config{Path: vs.Path, Priority: vs.Priority})
		if err != nil {
			c.close()
			return nil, err
		}
		if err := ctxreg.Register(mod); err != nil {
			c.close()
			return nil, err
		}
	}
	assembler := ctxengine.NewAssembler(ctxreg, nil, logger)

	runner := agent.NewRunner(agent.RunnerConfig{
		Agents:       agentDefinitions(cfg),
		Providers:    providers,
		Tools:        tools,
		Governor:     gov,
		Capabilities: capability.NewResolver(store, logger),
		Assembler:    assembler,
		Overrides:    cached,
		Runs:         store,
		Audit:        audit,
		Metrics:      m,
		Logger:       logger,
		Timeout:      cfg.Run.Timeout,
	})

	c.scheduler = cron.NewScheduler(logger)
	jobs := []cron.Job{
		&cron.ExpirePendingsJob{
			Governor:     gov,
			MaxAge:       cfg.Maintenance.PendingExpiry,
			Logger:       logger,
			ScheduleExpr: cfg.Maintenance.ExpirePendings,
		},
		&cron.PruneInvocationsJob{
			Store:        store,
			Retention:    cfg.Maintenance.InvocationRetention,
			Logger:       logger,
			ScheduleExpr: cfg.Maintenance.PruneInvocations,
		},
	}
	for _, j := range jobs {
		if err := c.scheduler.RegisterJob(j); err != nil {
			c.close()
			return nil, fmt.Errorf("register job: %w", err)
		}
	}

	c.gateway = gateway.New(gateway.GatewayConfig{
		HTTP:      cfg.Gateway,
		Runner:    runner,
		Governor:  gov,
		Providers: providers,
		Runs:      store,
		Overrides: store,
		Cache:     cached,
		Metrics:   m,
		Audit:     audit,
		Limiter: security.NewRateLimiter(security.RateLimitConfig{
			MessagesPerMin:     cfg.RateLimits.MessagesPerMin,
			AuthAttemptsPerMin: cfg.RateLimits.AuthAttemptsPerMin,
		}),
		Hub:    hub,
		Logger: logger,
	})

	return c, nil
}

// close tears down whatever build managed to construct.
func (c *components) close() {
	if c.store != nil {
		c.store.Close()
	}
	if c.auditFile != nil {
		c.auditFile.Close()
	}
}

// buildLogger constructs the root logger per the log configuration, with
// secret redaction applied to every record.
func buildLogger(cfg config.LogConfig, redactor *security.Redactor) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// buildProviders constructs every configured LLM provider.
func buildProviders(cfg *config.Config, logger *slog.Logger) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	for id, pc := range cfg.Providers {
		var (
			p   provider.Provider
			err error
		)
		switch pc.Type {
		case "anthropic":
			p, err = anthropic.New(anthropic.Config{
				APIKey:    pc.APIKey,
				BaseURL:   pc.BaseURL,
				Model:     pc.Model,
				MaxTokens: pc.MaxTokens,
			}, logger)
		case "openai":
			p, err = openai.New(openai.Config{
				APIKey:    pc.APIKey,
				BaseURL:   pc.BaseURL,
				Model:     pc.Model,
				MaxTokens: pc.MaxTokens,
			}, logger)
		default:
			err = fmt.Errorf("unknown provider type %q", pc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", id, err)
		}
		if err := reg.Register(id, p); err != nil {
			return nil, err
		}
	}

	if cfg.DefaultProvider != "" {
		if err := reg.SetDefault(cfg.DefaultProvider); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// agentDefinitions converts configured agents into runner definitions.
func agentDefinitions(cfg *config.Config) []agent.Definition {
	defs := make([]agent.Definition, len(cfg.Agents))
	for i, a := range cfg.Agents {
		defs[i] = agent.Definition{
			ID:             a.ID,
			Name:           a.Name,
			SystemPrompt:   a.SystemPrompt,
			Provider:       a.Provider,
			Model:          a.Model,
			Tools:          a.Tools,
			ContextModules: a.ContextModules,
			MaxIterations:  a.MaxIterations,
			ContextBudget:  a.ContextBudget,
		}
	}
	return defs
}
