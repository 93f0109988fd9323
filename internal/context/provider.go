// Package ctxengine assembles situational context for an agent run from
// independent provider modules, under a hard token budget. Modules are
// included in priority order and skipped, never truncated, when they
// would overflow the budget.
package ctxengine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Scope describes whose context is being gathered. The user id is
// threaded explicitly so concurrent runs stay isolated from each other.
type Scope struct {
	AgentID string
	UserID  string

	// Message is the inbound message text, used for keyword-triggered
	// module inclusion.
	Message string
}

// Payload is the opaque value a context module produces. The assembler
// only inspects it through the optional Summarizer interface.
type Payload any

// Summarizer is an optional interface a payload may implement to expose
// numeric stats that get merged into the run summary.
type Summarizer interface {
	Summary() map[string]float64
}

// Provider is the contract for a context module.
type Provider interface {
	// ModuleID returns the stable identifier (e.g. "ops.vendor_sales").
	ModuleID() string

	// ModuleName returns the human-readable name.
	ModuleName() string

	// Priority orders inclusion; lower values are assembled earlier.
	Priority() int

	// Agents lists the agent ids this module serves. Empty means all.
	Agents() []string

	// Enabled reports the module's static default enabled state.
	Enabled() bool

	// Collect produces the payload for the given scope.
	Collect(ctx context.Context, scope Scope) (Payload, error)

	// EstimateTokens returns the token cost of including the payload.
	EstimateTokens(p Payload) int

	// Format renders the payload as prompt text.
	Format(p Payload) string
}

// Registry holds context providers in registration order, which is the
// tie-break order for equal priorities.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	ids       map[string]struct{}
}

// NewRegistry creates an empty context provider registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]struct{})}
}

// Register adds a provider. Module ids must be unique.
func (r *Registry) Register(p Provider) error {
	id := strings.TrimSpace(p.ModuleID())
	if id == "" {
		return fmt.Errorf("ctxengine: empty module id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[id]; exists {
		return fmt.Errorf("ctxengine: duplicate module id %q", id)
	}
	r.ids[id] = struct{}{}
	r.providers = append(r.providers, p)
	return nil
}

// ForAgent returns the providers serving the given agent, in registration
// order, optionally restricted to an explicit module id subset.
func (r *Registry) ForAgent(agentID string, subset []string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provider
	for _, p := range r.providers {
		if len(subset) > 0 && !slices.Contains(subset, p.ModuleID()) {
			continue
		}
		agents := p.Agents()
		if len(agents) > 0 && !slices.Contains(agents, agentID) {
			continue
		}
		out = append(out, p)
	}
	return out
}
