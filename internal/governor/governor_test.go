package governor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shiftwise/shiftwise/internal/tool"
	"github.com/shiftwise/shiftwise/internal/tool/tooltest"
)

type harness struct {
	gov   *Governor
	tools *tool.Registry
	clock *time.Time
}

func newHarness(t *testing.T, tools ...tool.Tool) *harness {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		if err := reg.Register(tl); err != nil {
			t.Fatal(err)
		}
	}
	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	h := &harness{tools: reg, clock: &clock}
	h.gov = New(Config{
		Tools:       reg,
		Invocations: NewMemInvocations(),
		Pendings:    NewMemPendings(),
		Logger:      slog.New(slog.DiscardHandler),
		Now:         func() time.Time { return *h.clock },
	})
	return h
}

func (h *harness) advance(d time.Duration) { *h.clock = h.clock.Add(d) }

func inv(toolName, userID string) Invocation {
	return Invocation{
		Tool:    toolName,
		Args:    json.RawMessage(`{}`),
		AgentID: "ops",
		UserID:  userID,
		RunID:   "run-1",
	}
}

func TestDispatchExecutes(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{ToolName: "move_shift"}
	h := newHarness(t, mock)

	out := h.gov.Dispatch(context.Background(), inv("move_shift", "u1"))
	if out.Status != StatusExecuted {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if mock.ExecuteCalls() != 1 {
		t.Errorf("execute calls = %d, want 1", mock.ExecuteCalls())
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	out := h.gov.Dispatch(context.Background(), inv("nope", "u1"))
	if out.Status != StatusError {
		t.Fatalf("status = %s, want error", out.Status)
	}
	if !errors.Is(out.Err, tool.ErrToolNotFound) {
		t.Errorf("err = %v, want ErrToolNotFound", out.Err)
	}
}

func TestValidationRejectsBeforeAnyRecording(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{
		ToolName: "move_shift",
		SchemaFunc: func() json.RawMessage {
			return json.RawMessage(`{"type":"object","required":["shift_id"]}`)
		},
		CooldownSpec: tool.CooldownSpec{PerUser: time.Hour},
	}
	h := newHarness(t, mock)
	ctx := context.Background()

	out := h.gov.Dispatch(ctx, inv("move_shift", "u1"))
	if out.Status != StatusRejected {
		t.Fatalf("status = %s, want rejected", out.Status)
	}
	if !errors.Is(out.Err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", out.Err)
	}
	if mock.ExecuteCalls() != 0 {
		t.Error("tool executed despite failed validation")
	}

	// The rejection recorded nothing, so a valid call is not on cooldown.
	good := inv("move_shift", "u1")
	good.Args = json.RawMessage(`{"shift_id":"s-7"}`)
	if out := h.gov.Dispatch(ctx, good); out.Status != StatusExecuted {
		t.Errorf("valid call after rejection: status = %s, err = %v", out.Status, out.Err)
	}
}

func TestToolValidateRejects(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{
		ToolName:     "send_message",
		ValidateFunc: func(json.RawMessage) error { return errors.New("recipient unknown") },
	}
	h := newHarness(t, mock)

	out := h.gov.Dispatch(context.Background(), inv("send_message", "u1"))
	if out.Status != StatusRejected || !errors.Is(out.Err, ErrValidation) {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
}

func TestCooldownRejectsWithRemaining(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{
		ToolName:     "publish_schedule",
		CooldownSpec: tool.CooldownSpec{Global: time.Hour},
	}
	h := newHarness(t, mock)
	ctx := context.Background()

	if out := h.gov.Dispatch(ctx, inv("publish_schedule", "u1")); out.Status != StatusExecuted {
		t.Fatalf("first call: %s (%v)", out.Status, out.Err)
	}

	h.advance(30 * time.Minute)
	out := h.gov.Dispatch(ctx, inv("publish_schedule", "u2"))
	if out.Status != StatusRejected {
		t.Fatalf("second call status = %s, want rejected", out.Status)
	}
	var cd *CooldownError
	if !errors.As(out.Err, &cd) {
		t.Fatalf("err = %v, want CooldownError", out.Err)
	}
	if cd.Remaining != 30*time.Minute {
		t.Errorf("remaining = %v, want 30m", cd.Remaining)
	}

	h.advance(30 * time.Minute)
	if out := h.gov.Dispatch(ctx, inv("publish_schedule", "u2")); out.Status != StatusExecuted {
		t.Errorf("after cooldown elapsed: %s (%v)", out.Status, out.Err)
	}
}

func TestPerUserCooldownIsolatesUsers(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{
		ToolName:     "request_swap",
		CooldownSpec: tool.CooldownSpec{PerUser: time.Hour},
	}
	h := newHarness(t, mock)
	ctx := context.Background()

	if out := h.gov.Dispatch(ctx, inv("request_swap", "u1")); out.Status != StatusExecuted {
		t.Fatal(out.Err)
	}
	if out := h.gov.Dispatch(ctx, inv("request_swap", "u2")); out.Status != StatusExecuted {
		t.Errorf("other user blocked by per-user cooldown: %s", out.Status)
	}
	if out := h.gov.Dispatch(ctx, inv("request_swap", "u1")); out.Status != StatusRejected {
		t.Errorf("same user not on cooldown: %s", out.Status)
	}
}

func TestRateLimitTrailingWindow(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{
		ToolName: "send_message",
		RateSpec: tool.RateLimitSpec{MaxPerHour: 3},
	}
	h := newHarness(t, mock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if out := h.gov.Dispatch(ctx, inv("send_message", "u1")); out.Status != StatusExecuted {
			t.Fatalf("call %d: %s (%v)", i, out.Status, out.Err)
		}
		h.advance(10 * time.Minute)
	}

	out := h.gov.Dispatch(ctx, inv("send_message", "u1"))
	var rl *RateLimitError
	if out.Status != StatusRejected || !errors.As(out.Err, &rl) {
		t.Fatalf("4th call: status = %s, err = %v", out.Status, out.Err)
	}
	if rl.Limit != 3 {
		t.Errorf("limit = %d, want 3", rl.Limit)
	}

	// Once the first call ages out of the trailing hour the next passes.
	h.advance(35 * time.Minute)
	if out := h.gov.Dispatch(ctx, inv("send_message", "u1")); out.Status != StatusExecuted {
		t.Errorf("after window slid: %s (%v)", out.Status, out.Err)
	}
}

func TestRateLimitScopedPerUserWithCooldown(t *testing.T) {
	t.Parallel()

	// A per-user cooldown scopes the hourly budget per user too: one
	// user's activity must not consume another user's allowance.
	mock := &tooltest.MockTool{
		ToolName:     "move_shift",
		CooldownSpec: tool.CooldownSpec{PerUser: time.Minute},
		RateSpec:     tool.RateLimitSpec{MaxPerHour: 1},
	}
	h := newHarness(t, mock)
	ctx := context.Background()

	if out := h.gov.Dispatch(ctx, inv("move_shift", "alice")); out.Status != StatusExecuted {
		t.Fatalf("alice first call: %s (%v)", out.Status, out.Err)
	}
	if out := h.gov.Dispatch(ctx, inv("move_shift", "bob")); out.Status != StatusExecuted {
		t.Fatalf("bob first call blocked by alice's budget: %s (%v)", out.Status, out.Err)
	}

	// Past her cooldown but still inside the window, alice is over her
	// own budget.
	h.advance(2 * time.Minute)
	out := h.gov.Dispatch(ctx, inv("move_shift", "alice"))
	var rl *RateLimitError
	if out.Status != StatusRejected || !errors.As(out.Err, &rl) {
		t.Fatalf("alice second call: status = %s, err = %v", out.Status, out.Err)
	}
	if !rl.PerUser {
		t.Error("rate limit error not marked per-user")
	}
}

func TestFailedExecutionStillCounts(t *testing.T) {
	t.Parallel()

	calls := 0
	mock := &tooltest.MockTool{
		ToolName: "publish_schedule",
		RateSpec: tool.RateLimitSpec{MaxPerHour: 1},
		ExecuteFunc: func(context.Context, json.RawMessage, tool.ExecContext) (tool.Result, error) {
			calls++
			return nil, errors.New("backend unavailable")
		},
	}
	h := newHarness(t, mock)
	ctx := context.Background()

	if out := h.gov.Dispatch(ctx, inv("publish_schedule", "u1")); out.Status != StatusError {
		t.Fatalf("status = %s, want error", out.Status)
	}
	out := h.gov.Dispatch(ctx, inv("publish_schedule", "u1"))
	if out.Status != StatusRejected {
		t.Errorf("retry status = %s, want rejected (failed attempt counts)", out.Status)
	}
	if calls != 1 {
		t.Errorf("execute calls = %d, want 1", calls)
	}
}

func TestPanickingToolBecomesError(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{
		ToolName: "flaky",
		ExecuteFunc: func(context.Context, json.RawMessage, tool.ExecContext) (tool.Result, error) {
			panic("boom")
		},
	}
	h := newHarness(t, mock)

	out := h.gov.Dispatch(context.Background(), inv("flaky", "u1"))
	if out.Status != StatusError {
		t.Fatalf("status = %s, want error", out.Status)
	}
}

func TestConfirmationPausesThenExecutes(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{ToolName: "publish_schedule", Confirmation: true}
	h := newHarness(t, mock)
	ctx := context.Background()

	out := h.gov.Dispatch(ctx, inv("publish_schedule", "u1"))
	if out.Status != StatusNeedsConfirmation {
		t.Fatalf("status = %s, want needs_confirmation", out.Status)
	}
	if out.PendingID == "" {
		t.Fatal("no pending id")
	}
	if mock.ExecuteCalls() != 0 {
		t.Fatal("tool executed before confirmation")
	}

	resumed, err := h.gov.Decide(ctx, out.PendingID, "u1", true)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Status != StatusExecuted {
		t.Fatalf("resumed status = %s (%v)", resumed.Status, resumed.Err)
	}
	if mock.ExecuteCalls() != 1 {
		t.Errorf("execute calls = %d, want 1", mock.ExecuteCalls())
	}
}

func TestDenialClosesPending(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{ToolName: "publish_schedule", Approval: true}
	h := newHarness(t, mock)
	ctx := context.Background()

	out := h.gov.Dispatch(ctx, inv("publish_schedule", "u1"))
	if out.Status != StatusPendingApproval {
		t.Fatalf("status = %s, want pending_approval", out.Status)
	}

	denied, err := h.gov.Decide(ctx, out.PendingID, "manager-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if denied.Status != StatusRejected {
		t.Errorf("denied status = %s", denied.Status)
	}
	if mock.ExecuteCalls() != 0 {
		t.Error("tool executed despite denial")
	}

	if _, err := h.gov.Decide(ctx, out.PendingID, "manager-1", true); !errors.Is(err, ErrPendingDecided) {
		t.Errorf("second decision err = %v, want ErrPendingDecided", err)
	}
}

func TestApprovedResumeRechecksGates(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{ToolName: "publish_schedule", Approval: true}
	h := newHarness(t, mock)
	ctx := context.Background()

	out := h.gov.Dispatch(ctx, inv("publish_schedule", "u1"))
	if out.Status != StatusPendingApproval {
		t.Fatal(out.Status)
	}

	// State changed between queueing and approval: validation now fails,
	// and the resumed pass must notice.
	mock.ValidateFunc = func(json.RawMessage) error {
		return errors.New("schedule period closed")
	}
	resumed, err := h.gov.Decide(ctx, out.PendingID, "manager-1", true)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Status != StatusRejected {
		t.Errorf("resumed status = %s, want rejected by re-run validation", resumed.Status)
	}
	if mock.ExecuteCalls() != 0 {
		t.Error("tool executed despite failed re-check")
	}
}

func TestDryRunRecordsNothing(t *testing.T) {
	t.Parallel()

	var sawDry bool
	mock := &tooltest.MockTool{
		ToolName:     "publish_schedule",
		Confirmation: true,
		CooldownSpec: tool.CooldownSpec{Global: time.Hour},
		ExecuteFunc: func(_ context.Context, _ json.RawMessage, ec tool.ExecContext) (tool.Result, error) {
			sawDry = ec.DryRun
			return "would publish week 12", nil
		},
	}
	h := newHarness(t, mock)
	ctx := context.Background()

	dry := inv("publish_schedule", "u1")
	dry.DryRun = true
	out := h.gov.Dispatch(ctx, dry)
	if out.Status != StatusExecuted {
		t.Fatalf("dry run status = %s (%v)", out.Status, out.Err)
	}
	if !sawDry {
		t.Error("tool did not see DryRun flag")
	}
	if !strings.Contains(out.Text, "[would require confirmation]") {
		t.Errorf("preview does not note the skipped confirmation gate: %q", out.Text)
	}

	// The dry run neither paused for confirmation nor started a cooldown.
	out = h.gov.Dispatch(ctx, dry)
	if out.Status != StatusExecuted {
		t.Errorf("second dry run status = %s, want executed", out.Status)
	}
}

func TestExpirePending(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{ToolName: "publish_schedule", Approval: true}
	h := newHarness(t, mock)
	ctx := context.Background()

	out := h.gov.Dispatch(ctx, inv("publish_schedule", "u1"))
	h.advance(25 * time.Hour)
	n, err := h.gov.ExpirePending(ctx, h.clock.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expired = %d, err = %v", n, err)
	}
	if _, err := h.gov.Decide(ctx, out.PendingID, "manager-1", true); !errors.Is(err, ErrPendingDecided) {
		t.Errorf("decide on expired err = %v, want ErrPendingDecided", err)
	}
}
