package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiftwise/shiftwise/internal/capability"
	"github.com/shiftwise/shiftwise/internal/config"
	ctxengine "github.com/shiftwise/shiftwise/internal/context"
	"github.com/shiftwise/shiftwise/internal/governor"
	"github.com/shiftwise/shiftwise/internal/metrics"
	"github.com/shiftwise/shiftwise/internal/provider"
	"github.com/shiftwise/shiftwise/internal/security"
	"github.com/shiftwise/shiftwise/internal/tool"
)

// ErrUnknownAgent is returned for run requests naming an agent that was
// never registered.
var ErrUnknownAgent = errors.New("unknown agent")

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Agents       []Definition
	Providers    *provider.Registry
	Tools        *tool.Registry
	Governor     *governor.Governor
	Capabilities *capability.Resolver
	Assembler    *ctxengine.Assembler
	Overrides    *config.CachedOverrides
	Runs         RunStore
	Audit        *security.AuditLogger
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Timeout      time.Duration
	Now          func() time.Time
	NewID        func() string
}

// Runner executes agent runs. One Runner serves all agents; per-run state
// lives on the stack so concurrent runs are independent.
type Runner struct {
	agents       map[string]Definition
	providers    *provider.Registry
	tools        *tool.Registry
	governor     *governor.Governor
	capabilities *capability.Resolver
	assembler    *ctxengine.Assembler
	overrides    *config.CachedOverrides
	runs         RunStore
	audit        *security.AuditLogger
	metrics      *metrics.Metrics
	logger       *slog.Logger
	timeout      time.Duration
	now          func() time.Time
	newID        func() string
}

func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	agents := make(map[string]Definition, len(cfg.Agents))
	for _, d := range cfg.Agents {
		agents[d.ID] = d
	}
	return &Runner{
		agents:       agents,
		providers:    cfg.Providers,
		tools:        cfg.Tools,
		governor:     cfg.Governor,
		capabilities: cfg.Capabilities,
		assembler:    cfg.Assembler,
		overrides:    cfg.Overrides,
		runs:         cfg.Runs,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		logger:       logger,
		timeout:      timeout,
		now:          now,
		newID:        newID,
	}
}

// Agents returns the registered definitions, for the gateway.
func (r *Runner) Agents() []Definition {
	out := make([]Definition, 0, len(r.agents))
	for _, d := range r.agents {
		out = append(out, d)
	}
	return out
}

// moduleOverrides converts stored module overrides into assembler form.
func (r *Runner) moduleOverrides(ctx context.Context) map[string]ctxengine.ModuleOverride {
	if r.overrides == nil {
		return nil
	}
	src := r.overrides.ModuleOverridesAll(ctx)
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]ctxengine.ModuleOverride, len(src))
	for id, ov := range src {
		out[id] = ctxengine.ModuleOverride{
			Enabled:         ov.Enabled,
			Priority:        ov.Priority,
			AppendedText:    ov.AppendedText,
			TriggerKeywords: ov.TriggerKeywords,
		}
	}
	return out
}

// toolRequirements pairs each of the agent's tools with its capability.
func (r *Runner) toolRequirements(def Definition) []capability.ToolRequirement {
	reqs := make([]capability.ToolRequirement, 0, len(def.Tools))
	for _, name := range def.Tools {
		t, err := r.tools.Get(name)
		if err != nil {
			r.logger.Warn("agent references unknown tool", "agent", def.ID, "tool", name)
			continue
		}
		reqs = append(reqs, capability.ToolRequirement{
			Name:       t.Name(),
			Capability: t.RequiredCapability(),
		})
	}
	return reqs
}

// Run executes one inbound message to completion and persists the result.
// Tool-level failures are folded into the transcript and never abort the
// run; provider failures do.
func (r *Runner) Run(ctx context.Context, req Request) (RunResult, error) {
	def, ok := r.agents[req.AgentID]
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrUnknownAgent, req.AgentID)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := RunResult{
		RunID:     r.newID(),
		AgentID:   def.ID,
		UserID:    req.UserID,
		Message:   req.Message,
		StartedAt: r.now(),
	}
	r.audit.Log(security.AuditEvent{
		Type: security.EventRunStart, RunID: result.RunID,
		AgentID: def.ID, UserID: req.UserID, Detail: req.Message,
	})

	p, err := r.providers.Get(def.Provider)
	if err != nil {
		return r.finish(ctx, result, StopReasonError, "", err)
	}

	reqs := r.toolRequirements(def)
	caps := r.capabilities.Resolve(ctx, req.UserID, reqs)
	allowed := caps.AllowedTools(reqs)
	defs := append(r.tools.Definitions(allowed), continueDefinition())

	assembled := r.assembler.Assemble(ctx, ctxengine.Request{
		Scope: ctxengine.Scope{
			AgentID: def.ID,
			UserID:  req.UserID,
			Message: req.Message,
		},
		Budget:    def.ContextBudget,
		ModuleIDs: def.ContextModules,
		Overrides: r.moduleOverrides(ctx),
	})
	r.metrics.ContextAssembled(assembled.TotalTokens, assembled.Skipped)

	system := def.SystemPrompt
	if text := assembled.Text(); text != "" {
		system += "\n\n" + text
	}
	messages := []provider.LLMMessage{
		{Role: provider.MessageRoleSystem, Content: system},
		{Role: provider.MessageRoleUser, Content: req.Message},
	}

	for result.Iterations < def.MaxIterations {
		if err := ctx.Err(); err != nil {
			reason := StopReasonError
			if errors.Is(err, context.DeadlineExceeded) {
				reason = StopReasonTimeout
			}
			return r.finish(ctx, result, reason, "", err)
		}

		resp, err := p.Complete(ctx, provider.CompletionRequest{
			Model:    def.Model,
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			r.metrics.ProviderError(p.ModelName())
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return r.finish(ctx, result, StopReasonTimeout, "", err)
			}
			return r.finish(ctx, result, StopReasonError, "", err)
		}
		result.Iterations++
		result.Usage.PromptTokens += resp.Usage.PromptTokens
		result.Usage.CompletionTokens += resp.Usage.CompletionTokens
		result.Usage.TotalTokens += resp.Usage.TotalTokens
		result.CostCents += p.EstimateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		if len(resp.ToolCalls) == 0 {
			return r.finish(ctx, result, StopReasonComplete, resp.Content, nil)
		}

		messages = append(messages, provider.LLMMessage{
			Role:      provider.MessageRoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Tool calls run strictly in order; each result is visible to
		// the model before the next provider turn.
		for _, tc := range resp.ToolCalls {
			rec := r.dispatch(ctx, def, req, result.RunID, caps, tc)
			result.ToolCalls = append(result.ToolCalls, rec)
			if rec.PendingID != "" {
				result.PendingIDs = append(result.PendingIDs, rec.PendingID)
			}
			messages = append(messages, provider.LLMMessage{
				Role:    provider.MessageRoleTool,
				Content: rec.Output,
				ToolID:  tc.ID,
			})
		}
	}

	return r.finish(ctx, result, StopReasonMaxIterations,
		"I hit the turn limit for this request. The work so far is recorded above; send a follow-up to continue.", nil)
}

// dispatch routes one model tool call. The continuation pseudo-tool is
// answered inline; everything else is checked against the run's resolved
// capability set and then goes through the governor. The capability check
// here is the binding one: filtering the offered schemas does not stop a
// model from naming a registered tool it was never shown.
func (r *Runner) dispatch(ctx context.Context, def Definition, req Request, runID string, caps *capability.Set, tc provider.ToolCall) ToolCallRecord {
	rec := ToolCallRecord{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}

	if tc.Name == ContinueToolName {
		rec.Status = governor.StatusExecuted
		rec.Output = continueAck(tc.Arguments)
		return rec
	}

	if d := caps.ToolAllowed(tc.Name); !d.Allowed {
		rec.Status = governor.StatusRejected
		rec.Output = fmt.Sprintf("Tool call rejected: %s: %s", tc.Name, d.Reason)
		r.audit.Log(security.AuditEvent{
			Type: security.EventToolCall, RunID: runID, AgentID: def.ID,
			UserID: req.UserID, ToolName: tc.Name,
			Detail: "permission denied: " + d.Reason,
		})
		return rec
	}

	// A dispatched tool call runs to completion even if the run is
	// cancelled underneath it; stopping mid-write is worse than finishing.
	// Cancellation still stops the loop before the next provider turn.
	start := r.now()
	out := r.governor.Dispatch(context.WithoutCancel(ctx), governor.Invocation{
		Tool:    tc.Name,
		Args:    tc.Arguments,
		AgentID: def.ID,
		UserID:  req.UserID,
		RunID:   runID,
		DryRun:  req.DryRun,
	})
	rec.Status = out.Status
	rec.Output = out.Text
	rec.PendingID = out.PendingID
	rec.Duration = r.now().Sub(start)
	return rec
}

func (r *Runner) finish(ctx context.Context, result RunResult, reason StopReason, reply string, runErr error) (RunResult, error) {
	result.StopReason = reason
	result.Reply = reply
	result.FinishedAt = r.now()

	r.metrics.RunFinished(result.Iterations, result.Usage.PromptTokens, result.Usage.CompletionTokens, result.CostCents)
	r.audit.Log(security.AuditEvent{
		Type: security.EventRunEnd, RunID: result.RunID,
		AgentID: result.AgentID, UserID: result.UserID,
		Detail: string(reason),
		Metadata: map[string]string{
			"iterations": fmt.Sprint(result.Iterations),
			"tokens":     fmt.Sprint(result.Usage.TotalTokens),
		},
	})
	if r.runs != nil {
		// Persist with a fresh context so a timed-out run is still saved.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.runs.SaveRun(saveCtx, result); err != nil {
			r.logger.Error("save run", "run_id", result.RunID, "error", err)
		}
	}
	if runErr != nil {
		return result, fmt.Errorf("run %s: %w", result.RunID, runErr)
	}
	return result, nil
}
