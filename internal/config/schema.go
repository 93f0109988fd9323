package config

import "time"

// Config is the root of the YAML configuration file.
type Config struct {
	Version string `yaml:"version"`
	DataDir string `yaml:"data_dir"`

	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Gateway GatewayConfig `yaml:"gateway"`

	Providers       map[string]ProviderConfig `yaml:"providers"`
	DefaultProvider string                    `yaml:"default_provider"`

	Agents []AgentConfig `yaml:"agents"`

	Run         RunConfig         `yaml:"run"`
	RateLimits  RateLimitConfig   `yaml:"rate_limits"`
	Overrides   OverridesConfig   `yaml:"overrides"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Context     ContextConfig     `yaml:"context"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // "text" or "json"
	AuditPath string `yaml:"audit_path"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

type GatewayConfig struct {
	Bind         string        `yaml:"bind"`
	BearerToken  string        `yaml:"bearer_token"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ProviderConfig struct {
	Type      string `yaml:"type"` // "anthropic" or "openai"
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// AgentConfig is the static definition of one agent. Tools and context
// modules are referenced by name; unknown names are a validation error at
// wiring time, not here, since registries are built after config load.
type AgentConfig struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	SystemPrompt   string   `yaml:"system_prompt"`
	Provider       string   `yaml:"provider"`
	Model          string   `yaml:"model"`
	Tools          []string `yaml:"tools"`
	ContextModules []string `yaml:"context_modules"`
	MaxIterations  int      `yaml:"max_iterations"`
	ContextBudget  int      `yaml:"context_budget"`
}

type RunConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
}

type RateLimitConfig struct {
	MessagesPerMin     int `yaml:"messages_per_min"`
	AuthAttemptsPerMin int `yaml:"auth_attempts_per_min"`
}

// OverridesConfig controls the runtime override cache, not the overrides
// themselves; those live in the store and are edited through the gateway.
type OverridesConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type MaintenanceConfig struct {
	// Cron expressions, robfig/cron standard 5-field syntax.
	ExpirePendings   string `yaml:"expire_pendings"`
	PruneInvocations string `yaml:"prune_invocations"`

	PendingExpiry       time.Duration `yaml:"pending_expiry"`
	InvocationRetention time.Duration `yaml:"invocation_retention"`
}

type ContextConfig struct {
	VendorSales VendorSalesConfig `yaml:"vendor_sales"`
}

type VendorSalesConfig struct {
	Path     string `yaml:"path"`
	Priority int    `yaml:"priority"`
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.Path == "" {
		c.Store.Path = "shiftwise.db"
	}
	if c.Store.BusyTimeoutMS == 0 {
		c.Store.BusyTimeoutMS = 5000
	}
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = "127.0.0.1:8321"
	}
	if c.Gateway.ReadTimeout == 0 {
		c.Gateway.ReadTimeout = 30 * time.Second
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = 120 * time.Second
	}
	if c.Run.MaxIterations == 0 {
		c.Run.MaxIterations = 8
	}
	if c.Run.Timeout == 0 {
		c.Run.Timeout = 5 * time.Minute
	}
	if c.RateLimits.MessagesPerMin == 0 {
		c.RateLimits.MessagesPerMin = 120
	}
	if c.RateLimits.AuthAttemptsPerMin == 0 {
		c.RateLimits.AuthAttemptsPerMin = 30
	}
	if c.Overrides.TTL == 0 {
		c.Overrides.TTL = 30 * time.Second
	}
	if c.Maintenance.ExpirePendings == "" {
		c.Maintenance.ExpirePendings = "*/10 * * * *"
	}
	if c.Maintenance.PruneInvocations == "" {
		c.Maintenance.PruneInvocations = "30 3 * * *"
	}
	if c.Maintenance.PendingExpiry == 0 {
		c.Maintenance.PendingExpiry = 24 * time.Hour
	}
	if c.Maintenance.InvocationRetention == 0 {
		c.Maintenance.InvocationRetention = 30 * 24 * time.Hour
	}
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.Provider == "" {
			a.Provider = c.DefaultProvider
		}
		if a.MaxIterations == 0 {
			a.MaxIterations = c.Run.MaxIterations
		}
	}
}
