package config

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ToolOverride is a runtime adjustment to one tool's safety settings,
// stored in the database and editable without a restart. Nil pointer fields
// leave the tool's compiled-in value in effect.
type ToolOverride struct {
	Enabled             *bool
	RequireConfirmation *bool
	PerUserCooldown     *time.Duration
	GlobalCooldown      *time.Duration
	MaxPerHour          *int
}

// ModuleOverride is a runtime adjustment to one context module.
type ModuleOverride struct {
	Enabled         *bool
	Priority        *int
	AppendedText    string
	TriggerKeywords []string
}

// OverrideSource loads the current override sets. Implementations are
// expected to hit the store; callers should go through CachedOverrides.
type OverrideSource interface {
	ToolOverrides(ctx context.Context) (map[string]ToolOverride, error)
	ModuleOverrides(ctx context.Context) (map[string]ModuleOverride, error)
}

// CachedOverrides fronts an OverrideSource with a TTL cache. A failed
// refresh is logged and the previous snapshot is served; before any
// successful load the snapshot is empty, which means compiled-in defaults
// apply everywhere.
type CachedOverrides struct {
	source OverrideSource
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	tools     map[string]ToolOverride
	modules   map[string]ModuleOverride
	fetchedAt time.Time
}

func NewCachedOverrides(source OverrideSource, ttl time.Duration, logger *slog.Logger) *CachedOverrides {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedOverrides{
		source: source,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func (c *CachedOverrides) refreshLocked(ctx context.Context) {
	if c.source == nil {
		return
	}
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		return
	}
	tools, err := c.source.ToolOverrides(ctx)
	if err != nil {
		c.logger.Warn("override refresh failed, keeping previous snapshot", "kind", "tool", "error", err)
		c.fetchedAt = c.now()
		return
	}
	modules, err := c.source.ModuleOverrides(ctx)
	if err != nil {
		c.logger.Warn("override refresh failed, keeping previous snapshot", "kind", "module", "error", err)
		c.fetchedAt = c.now()
		return
	}
	c.tools = tools
	c.modules = modules
	c.fetchedAt = c.now()
}

// ToolOverride returns the override for one tool, if any.
func (c *CachedOverrides) ToolOverride(ctx context.Context, name string) (ToolOverride, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked(ctx)
	ov, ok := c.tools[name]
	return ov, ok
}

// ModuleOverridesAll returns the current module override snapshot. The map
// must not be mutated by the caller.
func (c *CachedOverrides) ModuleOverridesAll(ctx context.Context) map[string]ModuleOverride {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked(ctx)
	return c.modules
}

// Invalidate forces the next read to hit the source. Called after an
// override is edited through the gateway so the change is visible
// immediately.
func (c *CachedOverrides) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
