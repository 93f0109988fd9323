package governor

import (
	"context"
	"encoding/json"
	"time"
)

// Limits is the effective cooldown and rate configuration for one tool,
// after runtime overrides are applied. The rate window is always one hour.
type Limits struct {
	PerUserCooldown time.Duration
	GlobalCooldown  time.Duration
	MaxPerHour      int

	// UserScoped counts the rate window per user instead of tool-wide.
	// Set for tools with a per-user cooldown, so one user's activity
	// cannot exhaust another user's budget.
	UserScoped bool
}

// RateWindow is the rolling window rate limits are measured over.
const RateWindow = time.Hour

// Reservation identifies a tool, user and moment for cooldown and rate
// accounting.
type Reservation struct {
	Tool    string
	UserID  string
	AgentID string
	RunID   string
	At      time.Time
}

// InvocationStore tracks past tool invocations for cooldown and rate
// enforcement.
//
// Check is advisory: it reports whether an invocation at the given moment
// would pass, without recording anything. Reserve is the authoritative
// gate: it performs the same checks and records the invocation in a single
// atomic step, so two concurrent calls can never both slip under a limit.
// Reserved rows count toward windows whether or not execution later
// succeeds.
type InvocationStore interface {
	Check(ctx context.Context, res Reservation, lim Limits) error
	Reserve(ctx context.Context, res Reservation, lim Limits) (int64, error)
	MarkExecuted(ctx context.Context, id int64) error

	// PruneBefore drops invocation rows older than cutoff. Rows inside
	// any active window are never older than an hour, so retention
	// pruning cannot affect enforcement.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PendingKind distinguishes the two pause gates.
type PendingKind string

const (
	PendingConfirmation PendingKind = "confirmation"
	PendingApproval     PendingKind = "approval"
)

// PendingState is the lifecycle of a paused invocation.
type PendingState string

const (
	PendingOpen     PendingState = "pending"
	PendingApproved PendingState = "approved"
	PendingDenied   PendingState = "denied"
	PendingExpired  PendingState = "expired"
	PendingExecuted PendingState = "executed"
)

// PendingInvocation is a tool call held at the confirmation or approval
// gate, persisted so it survives restarts and can be decided later.
type PendingInvocation struct {
	ID      string          `json:"id"`
	Kind    PendingKind     `json:"kind"`
	Tool    string          `json:"tool"`
	Args    json.RawMessage `json:"args"`
	AgentID string          `json:"agent_id"`
	UserID  string          `json:"user_id"`
	RunID   string          `json:"run_id"`
	Prompt  string          `json:"prompt"`

	CreatedAt time.Time    `json:"created_at"`
	State     PendingState `json:"state"`
	DecidedBy string       `json:"decided_by,omitempty"`
	DecidedAt time.Time    `json:"decided_at,omitempty"`
}

// PendingStore persists paused invocations.
type PendingStore interface {
	Create(ctx context.Context, p PendingInvocation) error
	Get(ctx context.Context, id string) (PendingInvocation, error)

	// Decide transitions an open pending to approved or denied. It fails
	// with ErrPendingDecided if the pending is no longer open.
	Decide(ctx context.Context, id, decidedBy string, approved bool, at time.Time) error

	// ListOpen returns open pendings of the given kind, oldest first.
	// An empty kind returns both kinds.
	ListOpen(ctx context.Context, kind PendingKind) ([]PendingInvocation, error)

	// MarkExecuted records that an approved pending was dispatched.
	MarkExecuted(ctx context.Context, id string) error

	// ExpireBefore transitions open pendings created before cutoff to
	// expired and returns how many were affected.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
