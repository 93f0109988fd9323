// Package agent implements the multi-turn run loop that turns an inbound
// user message into a reply through iterative provider calls and governed
// tool dispatches.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shiftwise/shiftwise/internal/governor"
	"github.com/shiftwise/shiftwise/internal/provider"
)

// Definition is the static configuration of one agent, loaded at startup.
type Definition struct {
	ID           string
	Name         string
	SystemPrompt string

	// Provider and Model select the completion backend. An empty
	// Provider uses the registry default; an empty Model uses the
	// provider's configured model.
	Provider string
	Model    string

	// Tools lists tool names this agent may use, before capability
	// filtering.
	Tools []string

	// ContextModules restricts context assembly to these module ids.
	// Empty means all modules registered for this agent.
	ContextModules []string

	MaxIterations int
	ContextBudget int
}

// StopReason describes why a run terminated.
type StopReason string

const (
	StopReasonComplete      StopReason = "complete"
	StopReasonMaxIterations StopReason = "max_iterations"
	StopReasonTimeout       StopReason = "timeout"
	StopReasonError         StopReason = "error"
)

// ToolCallRecord tracks one tool dispatch during a run.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Status    governor.Status `json:"status"`
	Output    string          `json:"output"`
	PendingID string          `json:"pending_id,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Request is one inbound message to run.
type Request struct {
	AgentID string
	UserID  string
	Message string

	// DryRun previews tool effects without mutating state.
	DryRun bool
}

// RunResult is the full accounting of one run.
type RunResult struct {
	RunID   string `json:"run_id"`
	AgentID string `json:"agent_id"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
	Reply   string `json:"reply"`

	StopReason StopReason       `json:"stop_reason"`
	Iterations int              `json:"iterations"`
	ToolCalls  []ToolCallRecord `json:"tool_calls,omitempty"`

	// PendingIDs lists confirmations and approvals created during the
	// run that were still undecided when it ended.
	PendingIDs []string `json:"pending_ids,omitempty"`

	Usage     provider.TokenUsage `json:"usage"`
	CostCents float64             `json:"cost_cents"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunStore persists completed runs for the gateway's history endpoints.
type RunStore interface {
	SaveRun(ctx context.Context, r RunResult) error
	GetRun(ctx context.Context, runID string) (RunResult, error)
	ListRuns(ctx context.Context, agentID string, limit int) ([]RunResult, error)
}
