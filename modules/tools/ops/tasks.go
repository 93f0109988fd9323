package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shiftwise/shiftwise/internal/capability"
	"github.com/shiftwise/shiftwise/internal/tool"
)

// Interface guards.
var (
	_ tool.Tool = (*ListTasks)(nil)
	_ tool.Tool = (*CreateTask)(nil)
	_ tool.Tool = (*AssignTask)(nil)
)

// ListTasks is the read-only task query. It carries no capability
// requirement and no limits: reads are cheap and safe.
type ListTasks struct {
	Store Store
}

type listTasksArgs struct {
	Status string `json:"status"`
}

func (t *ListTasks) Name() string { return "list_tasks" }

func (t *ListTasks) Description() string {
	return "List operational tasks, optionally filtered by status (open or done)."
}

func (t *ListTasks) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"status": {"type": "string", "enum": ["open", "done"], "description": "Filter by task status"}
		},
		"additionalProperties": false
	}`)
}

func (t *ListTasks) RequiredCapability() string    { return "" }
func (t *ListTasks) RequiresConfirmation() bool    { return false }
func (t *ListTasks) RequiresApproval() bool        { return false }
func (t *ListTasks) Cooldown() tool.CooldownSpec   { return tool.CooldownSpec{} }
func (t *ListTasks) RateLimit() tool.RateLimitSpec { return tool.RateLimitSpec{} }

func (t *ListTasks) Validate(args json.RawMessage) error {
	var parsed listTasksArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	return nil
}

func (t *ListTasks) Execute(ctx context.Context, args json.RawMessage, _ tool.ExecContext) (tool.Result, error) {
	var parsed listTasksArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	tasks, err := t.Store.ListTasks(ctx, parsed.Status)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (t *ListTasks) FormatResult(res tool.Result) string {
	tasks, ok := res.([]Task)
	if !ok {
		return ""
	}
	if len(tasks) == 0 {
		return "No matching tasks."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d task(s):\n", len(tasks))
	for _, task := range tasks {
		assignee := task.Assignee
		if assignee == "" {
			assignee = "unassigned"
		}
		fmt.Fprintf(&b, "- [%s] %s (%s, %s", task.Status, task.Title, task.ID, assignee)
		if task.DueDay != "" {
			fmt.Fprintf(&b, ", due %s", task.DueDay)
		}
		b.WriteString(")\n")
	}
	return b.String()
}

// CreateTask adds a new open task.
type CreateTask struct {
	Store Store

	// newID is injectable for tests.
	newID func() string
}

type createTaskArgs struct {
	Title    string `json:"title"`
	Assignee string `json:"assignee"`
	DueDay   string `json:"due_day"`
}

func (t *CreateTask) Name() string { return "create_task" }

func (t *CreateTask) Description() string {
	return "Create a new operational task, optionally assigned and dated."
}

func (t *CreateTask) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title":    {"type": "string", "description": "Short task description"},
			"assignee": {"type": "string", "description": "User the task is assigned to"},
			"due_day":  {"type": "string", "description": "Due day, YYYY-MM-DD"}
		},
		"required": ["title"],
		"additionalProperties": false
	}`)
}

func (t *CreateTask) RequiredCapability() string    { return capability.CapTaskWrite }
func (t *CreateTask) RequiresConfirmation() bool    { return false }
func (t *CreateTask) RequiresApproval() bool        { return false }
func (t *CreateTask) Cooldown() tool.CooldownSpec   { return tool.CooldownSpec{} }
func (t *CreateTask) RateLimit() tool.RateLimitSpec { return tool.RateLimitSpec{MaxPerHour: 30} }

func (t *CreateTask) Validate(args json.RawMessage) error {
	var parsed createTaskArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	if strings.TrimSpace(parsed.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if parsed.DueDay != "" {
		return parseDay(parsed.DueDay)
	}
	return nil
}

func (t *CreateTask) Execute(ctx context.Context, args json.RawMessage, ec tool.ExecContext) (tool.Result, error) {
	var parsed createTaskArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}

	newID := t.newID
	if newID == nil {
		newID = uuid.NewString
	}
	task := Task{
		ID:       newID(),
		Title:    strings.TrimSpace(parsed.Title),
		Assignee: parsed.Assignee,
		Status:   TaskOpen,
		DueDay:   parsed.DueDay,
	}

	if ec.DryRun {
		return taskResult{Task: task, Preview: true}, nil
	}
	if err := t.Store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return taskResult{Task: task}, nil
}

type taskResult struct {
	Task    Task
	Preview bool
}

func (t *CreateTask) FormatResult(res tool.Result) string {
	r, ok := res.(taskResult)
	if !ok {
		return ""
	}
	if r.Preview {
		return fmt.Sprintf("Would create task %q.", r.Task.Title)
	}
	return fmt.Sprintf("Created task %q (%s).", r.Task.Title, r.Task.ID)
}

// AssignTask reassigns an existing task.
type AssignTask struct {
	Store Store
}

type assignTaskArgs struct {
	TaskID   string `json:"task_id"`
	Assignee string `json:"assignee"`
}

func (t *AssignTask) Name() string { return "assign_task" }

func (t *AssignTask) Description() string {
	return "Assign an existing task to a user."
}

func (t *AssignTask) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id":  {"type": "string", "description": "Identifier of the task"},
			"assignee": {"type": "string", "description": "User to assign the task to"}
		},
		"required": ["task_id", "assignee"],
		"additionalProperties": false
	}`)
}

func (t *AssignTask) RequiredCapability() string    { return capability.CapTaskWrite }
func (t *AssignTask) RequiresConfirmation() bool    { return false }
func (t *AssignTask) RequiresApproval() bool        { return false }
func (t *AssignTask) Cooldown() tool.CooldownSpec   { return tool.CooldownSpec{} }
func (t *AssignTask) RateLimit() tool.RateLimitSpec { return tool.RateLimitSpec{MaxPerHour: 30} }

func (t *AssignTask) Validate(args json.RawMessage) error {
	var parsed assignTaskArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	if parsed.TaskID == "" || parsed.Assignee == "" {
		return fmt.Errorf("task_id and assignee must not be empty")
	}
	return nil
}

func (t *AssignTask) Execute(ctx context.Context, args json.RawMessage, ec tool.ExecContext) (tool.Result, error) {
	var parsed assignTaskArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}

	if ec.DryRun {
		return assignResult{TaskID: parsed.TaskID, Assignee: parsed.Assignee, Preview: true}, nil
	}
	if err := t.Store.AssignTask(ctx, parsed.TaskID, parsed.Assignee); err != nil {
		return nil, err
	}
	return assignResult{TaskID: parsed.TaskID, Assignee: parsed.Assignee}, nil
}

type assignResult struct {
	TaskID   string
	Assignee string
	Preview  bool
}

func (t *AssignTask) FormatResult(res tool.Result) string {
	r, ok := res.(assignResult)
	if !ok {
		return ""
	}
	if r.Preview {
		return fmt.Sprintf("Would assign task %s to %s.", r.TaskID, r.Assignee)
	}
	return fmt.Sprintf("Assigned task %s to %s.", r.TaskID, r.Assignee)
}
