package ctxengine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// DefaultTokenBudget is the ceiling applied when a request does not set one.
const DefaultTokenBudget = 8000

// Section is one included module's formatted contribution.
type Section struct {
	ModuleID   string
	ModuleName string
	Text       string
	Tokens     int
}

// Assembled is the result of one assembly pass.
type Assembled struct {
	Timestamp   time.Time
	AgentID     string
	Sections    []Section
	TotalTokens int

	// Skipped lists module ids left out for exceeding the remaining
	// budget. Failed or disabled modules are not counted here.
	Skipped []string

	// Summary aggregates numeric stats exposed by module payloads,
	// keyed "<moduleID>_<key>".
	Summary map[string]float64
}

// Text joins all section texts for inclusion in the prompt body.
func (a *Assembled) Text() string {
	parts := make([]string, 0, len(a.Sections))
	for _, s := range a.Sections {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Request is the input to Assemble.
type Request struct {
	Scope Scope

	// Budget is the maximum total token estimate. Zero means
	// DefaultTokenBudget.
	Budget int

	// ModuleIDs optionally restricts assembly to an explicit subset.
	ModuleIDs []string

	// Overrides carries runtime configuration keyed by module id.
	Overrides map[string]ModuleOverride
}

// Assembler merges context provider outputs into one token-budgeted
// prompt body. A failure in one module is logged and skipped; assembly
// never aborts because of a single provider.
type Assembler struct {
	registry  *Registry
	estimator TokenEstimator
	logger    *slog.Logger
	now       func() time.Time
}

// NewAssembler creates an Assembler over the given registry.
func NewAssembler(registry *Registry, estimator TokenEstimator, logger *slog.Logger) *Assembler {
	if estimator == nil {
		estimator = NewCharEstimator(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		registry:  registry,
		estimator: estimator,
		logger:    logger.With("component", "ctxengine"),
		now:       time.Now,
	}
}

type candidate struct {
	provider Provider
	override ModuleOverride
	priority int
	forced   bool
}

// Assemble gathers context for the request's agent under the token budget.
//
// Inclusion order is non-decreasing by effective priority, ties keeping
// registration order. A module whose estimate would overflow the budget
// is skipped whole, never truncated; later cheaper modules may still fit.
func (a *Assembler) Assemble(ctx context.Context, req Request) *Assembled {
	budget := req.Budget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	result := &Assembled{
		Timestamp: a.now(),
		AgentID:   req.Scope.AgentID,
		Summary:   make(map[string]float64),
	}

	candidates := a.collectCandidates(req)

	slices.SortStableFunc(candidates, func(x, y candidate) int {
		return x.priority - y.priority
	})

	for _, c := range candidates {
		a.include(ctx, req.Scope, c, budget, result)
	}

	return result
}

// collectCandidates filters registered providers down to the ones that are
// enabled (or keyword-forced) for this request.
func (a *Assembler) collectCandidates(req Request) []candidate {
	message := strings.ToLower(req.Scope.Message)

	var candidates []candidate
	for _, p := range a.registry.ForAgent(req.Scope.AgentID, req.ModuleIDs) {
		ov := req.Overrides[p.ModuleID()]
		enabled := effectiveEnabled(p, ov)
		forced := false

		if !enabled {
			forced = keywordMatch(message, ov.TriggerKeywords)
			if !forced {
				continue
			}
			a.logger.Debug("module force-included by keyword trigger",
				"module", p.ModuleID())
		}

		candidates = append(candidates, candidate{
			provider: p,
			override: ov,
			priority: effectivePriority(p, ov),
			forced:   forced,
		})
	}
	return candidates
}

func (a *Assembler) include(ctx context.Context, scope Scope, c candidate, budget int, result *Assembled) {
	p := c.provider
	id := p.ModuleID()

	payload, err := collect(ctx, p, scope)
	if err != nil {
		a.logger.Warn("context module failed, skipping",
			"module", id, "agent", scope.AgentID, "error", err)
		return
	}

	text := p.Format(payload)
	if c.override.AppendedText != "" {
		text += "\n" + c.override.AppendedText
	}

	estimate := p.EstimateTokens(payload)
	if estimate <= 0 {
		// Modules that don't self-estimate fall back to the assembler's
		// estimator over the full section text.
		estimate = a.estimator.Estimate(text)
	} else if c.override.AppendedText != "" {
		// A self-estimate covers only the module's own payload; appended
		// text still costs tokens and must count against the budget.
		estimate += a.estimator.Estimate(c.override.AppendedText)
	}
	if result.TotalTokens+estimate > budget {
		a.logger.Info("context module skipped, over budget",
			"module", id, "estimate", estimate,
			"used", result.TotalTokens, "budget", budget)
		result.Skipped = append(result.Skipped, id)
		return
	}

	result.Sections = append(result.Sections, Section{
		ModuleID:   id,
		ModuleName: p.ModuleName(),
		Text:       text,
		Tokens:     estimate,
	})
	result.TotalTokens += estimate

	if s, ok := payload.(Summarizer); ok {
		for key, val := range s.Summary() {
			result.Summary[id+"_"+key] = val
		}
	}
}

// collect guards a provider's Collect call. Providers are externally
// supplied, so a panic is contained the same way an error is.
func collect(ctx context.Context, p Provider, scope Scope) (payload Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module panicked: %v", r)
		}
	}()
	return p.Collect(ctx, scope)
}

func keywordMatch(message string, keywords []string) bool {
	if message == "" {
		return false
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(message, kw) {
			return true
		}
	}
	return false
}
