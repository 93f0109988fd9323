// Package governor enforces the safety gates every tool invocation passes
// through: argument validation, the runtime enabled switch, rolling-window
// rate limits, cooldowns, and the confirmation and approval pauses. The
// agent loop never calls tool.Execute directly; everything goes through
// Dispatch so the gate order and accounting are uniform.
package governor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiftwise/shiftwise/internal/config"
	"github.com/shiftwise/shiftwise/internal/metrics"
	"github.com/shiftwise/shiftwise/internal/security"
	"github.com/shiftwise/shiftwise/internal/tool"
)

// Status classifies the outcome of a dispatch.
type Status string

const (
	StatusExecuted          Status = "executed"
	StatusRejected          Status = "rejected"
	StatusNeedsConfirmation Status = "needs_confirmation"
	StatusPendingApproval   Status = "pending_approval"
	StatusError             Status = "error"
)

// Invocation is one requested tool call.
type Invocation struct {
	Tool    string
	Args    json.RawMessage
	AgentID string
	UserID  string
	RunID   string

	// DryRun previews the call: gates are checked but nothing is
	// recorded and the tool must not mutate state.
	DryRun bool

	// resumedFrom is set internally when an approved pending is
	// re-dispatched, so the pause gates are not applied twice.
	resumedFrom string
}

// Outcome is what the agent loop gets back from a dispatch. Text is always
// safe to hand to the model transcript.
type Outcome struct {
	Status    Status
	Text      string
	Result    tool.Result
	PendingID string
	Err       error
}

// Config wires a Governor.
type Config struct {
	Tools       *tool.Registry
	Invocations InvocationStore
	Pendings    PendingStore
	Overrides   *config.CachedOverrides
	Audit       *security.AuditLogger
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

type Governor struct {
	tools       *tool.Registry
	invocations InvocationStore
	pendings    PendingStore
	overrides   *config.CachedOverrides
	audit       *security.AuditLogger
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
	schemas     *schemaCache
}

func New(cfg Config) *Governor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Governor{
		tools:       cfg.Tools,
		invocations: cfg.Invocations,
		pendings:    cfg.Pendings,
		overrides:   cfg.Overrides,
		audit:       cfg.Audit,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         now,
		schemas:     newSchemaCache(),
	}
}

// effective folds runtime overrides into a tool's compiled-in settings.
type effective struct {
	enabled      bool
	confirmation bool
	approval     bool
	limits       Limits
}

func (g *Governor) effectiveFor(ctx context.Context, t tool.Tool) effective {
	cd := t.Cooldown()
	eff := effective{
		enabled:      true,
		confirmation: t.RequiresConfirmation(),
		approval:     t.RequiresApproval(),
		limits: Limits{
			PerUserCooldown: cd.PerUser,
			GlobalCooldown:  cd.Global,
			MaxPerHour:      t.RateLimit().MaxPerHour,
			UserScoped:      cd.PerUser > 0,
		},
	}
	if g.overrides == nil {
		return eff
	}
	ov, ok := g.overrides.ToolOverride(ctx, t.Name())
	if !ok {
		return eff
	}
	if ov.Enabled != nil {
		eff.enabled = *ov.Enabled
	}
	if ov.RequireConfirmation != nil {
		eff.confirmation = *ov.RequireConfirmation
	}
	if ov.PerUserCooldown != nil {
		eff.limits.PerUserCooldown = *ov.PerUserCooldown
	}
	if ov.GlobalCooldown != nil {
		eff.limits.GlobalCooldown = *ov.GlobalCooldown
	}
	if ov.MaxPerHour != nil {
		eff.limits.MaxPerHour = *ov.MaxPerHour
	}
	eff.limits.UserScoped = eff.limits.PerUserCooldown > 0
	return eff
}

// Dispatch runs one invocation through the full gate sequence. It never
// panics and never returns a transport error for a policy rejection: the
// caller distinguishes outcomes by Status.
func (g *Governor) Dispatch(ctx context.Context, inv Invocation) Outcome {
	t, err := g.tools.Get(inv.Tool)
	if err != nil {
		return g.finish(inv, Outcome{
			Status: StatusError,
			Text:   fmt.Sprintf("Unknown tool %q.", inv.Tool),
			Err:    err,
		}, 0)
	}

	// Gate 1: validation. Failures record nothing.
	if err := g.schemas.validateArgs(t.Name(), t.Schema(), inv.Args); err != nil {
		return g.reject(inv, fmt.Errorf("%w: %v", ErrValidation, err))
	}
	if err := t.Validate(inv.Args); err != nil {
		return g.reject(inv, fmt.Errorf("%w: %v", ErrValidation, err))
	}

	eff := g.effectiveFor(ctx, t)

	// Gate 2: runtime enabled switch.
	if !eff.enabled {
		return g.reject(inv, fmt.Errorf("%w: %s", ErrDisabled, inv.Tool))
	}

	if inv.DryRun {
		return g.dryRun(ctx, t, inv, eff)
	}

	// Gates 3-4 for a fresh dispatch are advisory here; the binding
	// check happens inside Reserve. Checking first keeps a call that is
	// about to pause at gate 5 or 6 from being pointlessly persisted.
	if inv.resumedFrom == "" {
		if err := g.invocations.Check(ctx, g.reservation(inv), eff.limits); err != nil {
			return g.rejectLimited(inv, err)
		}

		// Gate 5: synchronous confirmation.
		if eff.confirmation {
			return g.pause(ctx, t, inv, PendingConfirmation)
		}
		// Gate 6: asynchronous approval.
		if eff.approval {
			return g.pause(ctx, t, inv, PendingApproval)
		}
	}

	return g.execute(ctx, t, inv, eff)
}

func (g *Governor) reservation(inv Invocation) Reservation {
	return Reservation{
		Tool:    inv.Tool,
		UserID:  inv.UserID,
		AgentID: inv.AgentID,
		RunID:   inv.RunID,
		At:      g.now(),
	}
}

func (g *Governor) dryRun(ctx context.Context, t tool.Tool, inv Invocation, eff effective) Outcome {
	if err := g.invocations.Check(ctx, g.reservation(inv), eff.limits); err != nil {
		return g.rejectLimited(inv, err)
	}
	start := g.now()
	res, err := g.safeExecute(ctx, t, inv)
	if err != nil {
		return g.finish(inv, Outcome{
			Status: StatusError,
			Text:   fmt.Sprintf("Tool %s failed: %v", inv.Tool, err),
			Err:    err,
		}, g.now().Sub(start))
	}
	// A dry run skips the pause gates, so the preview notes them to keep
	// the output honest about what a real dispatch would do.
	text := "[dry run] "
	if eff.approval {
		text += "[would require approval] "
	} else if eff.confirmation {
		text += "[would require confirmation] "
	}
	return g.finish(inv, Outcome{
		Status: StatusExecuted,
		Text:   text + t.FormatResult(res),
		Result: res,
	}, g.now().Sub(start))
}

// pause persists the invocation at a confirmation or approval gate.
func (g *Governor) pause(ctx context.Context, t tool.Tool, inv Invocation, kind PendingKind) Outcome {
	p := PendingInvocation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Tool:      inv.Tool,
		Args:      inv.Args,
		AgentID:   inv.AgentID,
		UserID:    inv.UserID,
		RunID:     inv.RunID,
		Prompt:    confirmationPrompt(t, inv.Args),
		CreatedAt: g.now(),
		State:     PendingOpen,
	}
	if err := g.pendings.Create(ctx, p); err != nil {
		return g.finish(inv, Outcome{
			Status: StatusError,
			Text:   fmt.Sprintf("Could not hold %s for review: %v", inv.Tool, err),
			Err:    err,
		}, 0)
	}

	status := StatusNeedsConfirmation
	event := security.EventConfirmation
	text := fmt.Sprintf("Confirmation required before running %s: %s (id %s)", inv.Tool, p.Prompt, p.ID)
	if kind == PendingApproval {
		status = StatusPendingApproval
		event = security.EventApproval
		text = fmt.Sprintf("%s was queued for approval: %s (id %s)", inv.Tool, p.Prompt, p.ID)
	}
	g.audit.Log(security.AuditEvent{
		Type:     event,
		RunID:    inv.RunID,
		AgentID:  inv.AgentID,
		UserID:   inv.UserID,
		ToolName: inv.Tool,
		Detail:   "created",
		Metadata: map[string]string{"pending_id": p.ID},
	})
	return g.finish(inv, Outcome{Status: status, Text: text, PendingID: p.ID}, 0)
}

func (g *Governor) execute(ctx context.Context, t tool.Tool, inv Invocation, eff effective) Outcome {
	id, err := g.invocations.Reserve(ctx, g.reservation(inv), eff.limits)
	if err != nil {
		var cd *CooldownError
		var rl *RateLimitError
		if errors.As(err, &cd) || errors.As(err, &rl) {
			return g.rejectLimited(inv, err)
		}
		return g.finish(inv, Outcome{
			Status: StatusError,
			Text:   fmt.Sprintf("Could not record %s invocation: %v", inv.Tool, err),
			Err:    err,
		}, 0)
	}

	start := g.now()
	res, err := g.safeExecute(ctx, t, inv)
	dur := g.now().Sub(start)
	if err != nil {
		// The reservation stays: a failed attempt still counts toward
		// cooldown and rate windows.
		g.audit.Log(security.AuditEvent{
			Type: security.EventToolResult, RunID: inv.RunID, AgentID: inv.AgentID,
			UserID: inv.UserID, ToolName: inv.Tool, Detail: "error: " + err.Error(),
		})
		return g.finish(inv, Outcome{
			Status: StatusError,
			Text:   fmt.Sprintf("Tool %s failed: %v", inv.Tool, err),
			Err:    err,
		}, dur)
	}

	if err := g.invocations.MarkExecuted(ctx, id); err != nil {
		g.logger.Warn("mark invocation executed", "tool", inv.Tool, "error", err)
	}
	text := t.FormatResult(res)
	g.audit.Log(security.AuditEvent{
		Type: security.EventToolResult, RunID: inv.RunID, AgentID: inv.AgentID,
		UserID: inv.UserID, ToolName: inv.Tool, Detail: text,
	})
	return g.finish(inv, Outcome{Status: StatusExecuted, Text: text, Result: res}, dur)
}

// safeExecute shields the loop from panicking tools.
func (g *Governor) safeExecute(ctx context.Context, t tool.Tool, inv Invocation) (res tool.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("tool panicked", "tool", inv.Tool, "panic", r)
			err = fmt.Errorf("tool %s panicked: %v", inv.Tool, r)
		}
	}()
	return t.Execute(ctx, inv.Args, tool.ExecContext{
		RunID:   inv.RunID,
		AgentID: inv.AgentID,
		UserID:  inv.UserID,
		DryRun:  inv.DryRun,
	})
}

func (g *Governor) reject(inv Invocation, err error) Outcome {
	return g.finish(inv, Outcome{
		Status: StatusRejected,
		Text:   "Tool call rejected: " + err.Error(),
		Err:    err,
	}, 0)
}

func (g *Governor) rejectLimited(inv Invocation, err error) Outcome {
	g.audit.Log(security.AuditEvent{
		Type: security.EventRateLimit, RunID: inv.RunID, AgentID: inv.AgentID,
		UserID: inv.UserID, ToolName: inv.Tool, Detail: err.Error(),
	})
	return g.reject(inv, err)
}

// finish records audit and metrics for every outcome in one place.
func (g *Governor) finish(inv Invocation, out Outcome, dur time.Duration) Outcome {
	g.metrics.ToolInvocation(inv.Tool, string(out.Status), dur)
	g.audit.Log(security.AuditEvent{
		Type:     security.EventToolCall,
		RunID:    inv.RunID,
		AgentID:  inv.AgentID,
		UserID:   inv.UserID,
		ToolName: inv.Tool,
		Detail:   string(out.Status),
		Metadata: map[string]string{"args": string(inv.Args)},
	})
	if out.Status == StatusRejected || out.Status == StatusError {
		g.logger.Info("tool dispatch", "tool", inv.Tool, "status", out.Status, "error", out.Err)
	} else {
		g.logger.Debug("tool dispatch", "tool", inv.Tool, "status", out.Status)
	}
	return out
}

func confirmationPrompt(t tool.Tool, args json.RawMessage) string {
	if p, ok := t.(tool.ConfirmationPrompter); ok {
		return p.ConfirmationPrompt(args)
	}
	return fmt.Sprintf("%s with arguments %s", t.Name(), string(args))
}

// Decide resolves one pending invocation. A denial closes it; an approval
// re-dispatches it through the remaining gates, so validation, the enabled
// switch, cooldowns and rate limits are all re-checked against the state at
// decision time. Only the pause gates are skipped on the resumed pass.
func (g *Governor) Decide(ctx context.Context, pendingID, decidedBy string, approved bool) (Outcome, error) {
	p, err := g.pendings.Get(ctx, pendingID)
	if err != nil {
		return Outcome{}, err
	}
	if p.State != PendingOpen {
		return Outcome{}, fmt.Errorf("%w: %s is %s", ErrPendingDecided, pendingID, p.State)
	}
	if err := g.pendings.Decide(ctx, pendingID, decidedBy, approved, g.now()); err != nil {
		return Outcome{}, err
	}

	event := security.EventConfirmation
	if p.Kind == PendingApproval {
		event = security.EventApproval
	}
	verdict := "denied"
	if approved {
		verdict = "approved"
	}
	g.metrics.PendingDecision(string(p.Kind), verdict)
	g.audit.Log(security.AuditEvent{
		Type: event, RunID: p.RunID, AgentID: p.AgentID, UserID: p.UserID,
		ToolName: p.Tool, Detail: verdict,
		Metadata: map[string]string{"pending_id": p.ID, "decided_by": decidedBy},
	})

	if !approved {
		return Outcome{
			Status: StatusRejected,
			Text:   fmt.Sprintf("%s was denied by %s.", p.Tool, decidedBy),
		}, nil
	}

	out := g.Dispatch(ctx, Invocation{
		Tool:        p.Tool,
		Args:        p.Args,
		AgentID:     p.AgentID,
		UserID:      p.UserID,
		RunID:       p.RunID,
		resumedFrom: p.ID,
	})
	if out.Status == StatusExecuted {
		if err := g.pendings.MarkExecuted(ctx, p.ID); err != nil {
			g.logger.Warn("mark pending executed", "pending_id", p.ID, "error", err)
		}
	}
	return out, nil
}

// ListPending returns open pendings of one kind, oldest first.
func (g *Governor) ListPending(ctx context.Context, kind PendingKind) ([]PendingInvocation, error) {
	return g.pendings.ListOpen(ctx, kind)
}

// ExpirePending ages out open pendings created before cutoff.
func (g *Governor) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := g.pendings.ExpireBefore(ctx, cutoff)
	if err == nil && n > 0 {
		g.logger.Info("expired pending invocations", "count", n)
	}
	return n, err
}
