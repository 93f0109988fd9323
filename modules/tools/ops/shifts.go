package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shiftwise/shiftwise/internal/capability"
	"github.com/shiftwise/shiftwise/internal/tool"
)

// Interface guards.
var (
	_ tool.Tool                 = (*MoveShift)(nil)
	_ tool.ConfirmationPrompter = (*MoveShift)(nil)
	_ tool.Tool                 = (*PublishSchedule)(nil)
	_ tool.ConfirmationPrompter = (*PublishSchedule)(nil)
)

// MoveShift reschedules an existing shift. Moving someone's hours is the
// most disruptive single action an agent can take, so it is held for
// human approval.
type MoveShift struct {
	Store Store
}

type moveShiftArgs struct {
	ShiftID string `json:"shift_id"`
	Day     string `json:"day"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func (t *MoveShift) Name() string { return "move_shift" }

func (t *MoveShift) Description() string {
	return "Move an existing shift to a new day and time window."
}

func (t *MoveShift) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"shift_id": {"type": "string", "description": "Identifier of the shift to move"},
			"day":      {"type": "string", "description": "New calendar day, YYYY-MM-DD"},
			"start":    {"type": "string", "description": "New start time, HH:MM"},
			"end":      {"type": "string", "description": "New end time, HH:MM"}
		},
		"required": ["shift_id", "day", "start", "end"],
		"additionalProperties": false
	}`)
}

func (t *MoveShift) RequiredCapability() string { return capability.CapScheduleWrite }
func (t *MoveShift) RequiresConfirmation() bool { return false }
func (t *MoveShift) RequiresApproval() bool     { return true }

func (t *MoveShift) Cooldown() tool.CooldownSpec {
	return tool.CooldownSpec{PerUser: 5 * time.Minute}
}

func (t *MoveShift) RateLimit() tool.RateLimitSpec {
	return tool.RateLimitSpec{MaxPerHour: 10}
}

func (t *MoveShift) Validate(args json.RawMessage) error {
	parsed, err := parseMoveShiftArgs(args)
	if err != nil {
		return err
	}
	if err := parseDay(parsed.Day); err != nil {
		return err
	}
	start, err := parseClock(parsed.Start)
	if err != nil {
		return err
	}
	end, err := parseClock(parsed.End)
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("end %s must be after start %s", parsed.End, parsed.Start)
	}
	return nil
}

func (t *MoveShift) Execute(ctx context.Context, args json.RawMessage, ec tool.ExecContext) (tool.Result, error) {
	parsed, err := parseMoveShiftArgs(args)
	if err != nil {
		return nil, err
	}
	start, _ := parseClock(parsed.Start)
	end, _ := parseClock(parsed.End)

	current, err := t.Store.GetShift(ctx, parsed.ShiftID)
	if err != nil {
		return nil, err
	}

	if ec.DryRun {
		return shiftMoveResult{Before: current, Day: parsed.Day, StartMin: start, EndMin: end, Preview: true}, nil
	}

	if err := t.Store.MoveShift(ctx, parsed.ShiftID, parsed.Day, start, end); err != nil {
		return nil, err
	}
	return shiftMoveResult{Before: current, Day: parsed.Day, StartMin: start, EndMin: end}, nil
}

type shiftMoveResult struct {
	Before   Shift
	Day      string
	StartMin int
	EndMin   int
	Preview  bool
}

func (t *MoveShift) FormatResult(res tool.Result) string {
	r, ok := res.(shiftMoveResult)
	if !ok {
		return ""
	}
	verb := "moved"
	if r.Preview {
		verb = "would move"
	}
	return fmt.Sprintf("Shift %s for %s %s from %s %s-%s to %s %s-%s.",
		r.Before.ID, r.Before.UserID, verb,
		r.Before.Day, formatClock(r.Before.StartMin), formatClock(r.Before.EndMin),
		r.Day, formatClock(r.StartMin), formatClock(r.EndMin))
}

func (t *MoveShift) ConfirmationPrompt(args json.RawMessage) string {
	parsed, err := parseMoveShiftArgs(args)
	if err != nil {
		return "Move a shift (arguments unreadable)."
	}
	return fmt.Sprintf("Move shift %s to %s %s-%s?", parsed.ShiftID, parsed.Day, parsed.Start, parsed.End)
}

func parseMoveShiftArgs(args json.RawMessage) (moveShiftArgs, error) {
	var parsed moveShiftArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return moveShiftArgs{}, fmt.Errorf("parse arguments: %w", err)
	}
	return parsed, nil
}

// PublishSchedule marks every shift on a day as published, making it
// visible to staff. Publishing is confirmed inline rather than routed
// for approval: it is disruptive but reversible.
type PublishSchedule struct {
	Store Store
}

type publishArgs struct {
	Day string `json:"day"`
}

func (t *PublishSchedule) Name() string { return "publish_schedule" }

func (t *PublishSchedule) Description() string {
	return "Publish all shifts for a day so staff can see them."
}

func (t *PublishSchedule) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"day": {"type": "string", "description": "Calendar day to publish, YYYY-MM-DD"}
		},
		"required": ["day"],
		"additionalProperties": false
	}`)
}

func (t *PublishSchedule) RequiredCapability() string { return capability.CapScheduleWrite }
func (t *PublishSchedule) RequiresConfirmation() bool { return true }
func (t *PublishSchedule) RequiresApproval() bool     { return false }

func (t *PublishSchedule) Cooldown() tool.CooldownSpec {
	// One publish per half hour globally keeps rapid-fire republishing
	// from spamming the whole team.
	return tool.CooldownSpec{Global: 30 * time.Minute}
}

func (t *PublishSchedule) RateLimit() tool.RateLimitSpec {
	return tool.RateLimitSpec{MaxPerHour: 4}
}

func (t *PublishSchedule) Validate(args json.RawMessage) error {
	var parsed publishArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	return parseDay(parsed.Day)
}

func (t *PublishSchedule) Execute(ctx context.Context, args json.RawMessage, ec tool.ExecContext) (tool.Result, error) {
	var parsed publishArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}

	if ec.DryRun {
		return publishResult{Day: parsed.Day, Preview: true}, nil
	}

	n, err := t.Store.PublishSchedule(ctx, parsed.Day)
	if err != nil {
		return nil, err
	}
	return publishResult{Day: parsed.Day, Count: n}, nil
}

type publishResult struct {
	Day     string
	Count   int
	Preview bool
}

func (t *PublishSchedule) FormatResult(res tool.Result) string {
	r, ok := res.(publishResult)
	if !ok {
		return ""
	}
	if r.Preview {
		return fmt.Sprintf("Would publish the schedule for %s.", r.Day)
	}
	return fmt.Sprintf("Published %d shift(s) for %s.", r.Count, r.Day)
}

func (t *PublishSchedule) ConfirmationPrompt(args json.RawMessage) string {
	var parsed publishArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "Publish a day's schedule (arguments unreadable)."
	}
	return fmt.Sprintf("Publish the schedule for %s to all staff?", parsed.Day)
}
