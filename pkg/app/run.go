// Package app wires configuration, storage, providers, tools and the
// gateway into a running shiftwise service.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shiftwise/shiftwise/internal/config"
)

// shutdownTimeout bounds graceful teardown of the gateway.
const shutdownTimeout = 10 * time.Second

// Params configures Run.
type Params struct {
	// ConfigPath is the YAML configuration file. When empty the standard
	// locations are searched.
	ConfigPath string

	// Version is the build version string, injected via ldflags.
	Version string
}

// Run loads configuration, wires the service and blocks until SIGINT or
// SIGTERM.
func Run(params Params) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	c, err := build(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	c.logger.Info("starting shiftwise",
		"version", params.Version,
		"config", cfgPath,
		"bind", cfg.Gateway.Bind,
	)

	if err := c.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := c.gateway.Start(); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	c.logger.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := c.gateway.Stop(ctx); err != nil {
		c.logger.Error("gateway shutdown", "error", err)
	}
	if err := c.scheduler.Stop(ctx); err != nil {
		c.logger.Error("scheduler shutdown", "error", err)
	}

	c.logger.Info("shutdown complete")
	return nil
}

// ResolveConfigPath searches the standard config locations.
// Order: $XDG_CONFIG_HOME/shiftwise/shiftwise.yaml →
// ~/.config/shiftwise/shiftwise.yaml → ./shiftwise.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "shiftwise", "shiftwise.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "shiftwise", "shiftwise.yaml"))
	}

	candidates = append(candidates, "shiftwise.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
