// Package tool defines the tool contract and registry for shiftwise.
// Tools are the primary safety boundary: every action an agent takes
// against the operations store goes through a registered tool, and the
// core only ever calls the contract operations declared here.
package tool

import (
	"context"
	"encoding/json"
	"time"
)

// CooldownSpec declares minimum elapsed time between two invocations
// of the same tool. A zero duration disables that component.
type CooldownSpec struct {
	// PerUser applies to repeated invocations by the same user.
	PerUser time.Duration

	// Global applies to repeated invocations by anyone.
	Global time.Duration
}

// RateLimitSpec declares the maximum invocation count within a rolling
// 60-minute window. Zero means unlimited.
type RateLimitSpec struct {
	MaxPerHour int
}

// ExecContext carries the per-run fields a tool may need during execution.
// The invoking user is threaded explicitly so concurrent runs stay isolated.
type ExecContext struct {
	RunID   string
	AgentID string
	UserID  string

	// DryRun asks the tool to report what it would do without mutating
	// real state. Honoring it is part of the tool contract.
	DryRun bool
}

// Result is the opaque value a tool returns from Execute. The core never
// inspects it beyond passing it back to FormatResult.
type Result any

// Tool is the interface all shiftwise tools implement. The core calls
// only these operations and never looks inside a tool's business logic.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// RequiredCapability names the capability flag a user must hold for
	// this tool to be offered (e.g. "schedule.write"). Empty means the
	// tool is available to every authenticated user.
	RequiredCapability() string

	// RequiresConfirmation reports whether an invocation must be echoed
	// back for explicit confirmation before executing.
	RequiresConfirmation() bool

	// RequiresApproval reports whether an invocation must be held for
	// asynchronous human approval before executing.
	RequiresApproval() bool

	// Cooldown returns the tool's cooldown spec.
	Cooldown() CooldownSpec

	// RateLimit returns the tool's rolling-window rate limit spec.
	RateLimit() RateLimitSpec

	// Validate checks the arguments structurally before any gate that
	// touches persistent state. A non-nil error rejects the invocation
	// without recording anything.
	Validate(args json.RawMessage) error

	// Execute runs the tool. When ec.DryRun is set the tool must return
	// a preview result without side effects.
	Execute(ctx context.Context, args json.RawMessage, ec ExecContext) (Result, error)

	// FormatResult renders an Execute result as text for the model transcript.
	FormatResult(res Result) string
}

// ConfirmationPrompter is an optional interface a tool may implement to
// produce the human-readable confirmation message for gate-5 pauses.
// Tools that do not implement it get a generic prompt built from the
// tool description.
type ConfirmationPrompter interface {
	ConfirmationPrompt(args json.RawMessage) string
}
