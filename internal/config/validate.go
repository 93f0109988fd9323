package config

import (
	"errors"
	"fmt"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks internal consistency of a loaded config. It collects all
// problems rather than stopping at the first one.
func (c *Config) Validate() error {
	var errs []error

	if c.Version != "1" {
		errs = append(errs, fmt.Errorf("unsupported config version %q (want \"1\")", c.Version))
	}
	if !logLevels[c.Log.Level] {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: must be \"text\" or \"json\", got %q", c.Log.Format))
	}

	for name, p := range c.Providers {
		switch p.Type {
		case "anthropic", "openai":
		default:
			errs = append(errs, fmt.Errorf("providers.%s: unknown type %q", name, p.Type))
		}
		if p.Type == "openai" && p.BaseURL == "" {
			errs = append(errs, fmt.Errorf("providers.%s: base_url is required for openai providers", name))
		}
		if p.Model == "" {
			errs = append(errs, fmt.Errorf("providers.%s: model is required", name))
		}
	}
	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			errs = append(errs, fmt.Errorf("default_provider: %q is not a configured provider", c.DefaultProvider))
		}
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: id is required", i))
			continue
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate agent id %q", i, a.ID))
		}
		seen[a.ID] = true
		if a.Provider == "" {
			errs = append(errs, fmt.Errorf("agents.%s: no provider set and no default_provider configured", a.ID))
		} else if _, ok := c.Providers[a.Provider]; !ok {
			errs = append(errs, fmt.Errorf("agents.%s: provider %q is not configured", a.ID, a.Provider))
		}
		if a.MaxIterations < 1 {
			errs = append(errs, fmt.Errorf("agents.%s: max_iterations must be at least 1", a.ID))
		}
		if a.ContextBudget < 0 {
			errs = append(errs, fmt.Errorf("agents.%s: context_budget must not be negative", a.ID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
