// Package ops provides the built-in operations toolset: shift scheduling,
// task management and team messaging against the shiftwise store. Every
// tool declares its own safety posture (capability, confirmation/approval,
// cooldowns, rate limits) and the governor enforces it.
package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shiftwise/shiftwise/internal/tool"
)

// Sentinel errors returned by Store implementations.
var (
	ErrShiftNotFound = errors.New("shift not found")
	ErrTaskNotFound  = errors.New("task not found")
)

// Shift is one scheduled shift. Times are minutes from midnight on Day
// so schedule arithmetic never touches time zones.
type Shift struct {
	ID        string
	UserID    string
	Day       string
	StartMin  int
	EndMin    int
	Published bool
}

// Task is one operational task.
type Task struct {
	ID       string
	Title    string
	Assignee string
	Status   string
	DueDay   string
}

// Task status values.
const (
	TaskOpen = "open"
	TaskDone = "done"
)

// Store is the persistence surface the ops tools need. The sqlite module
// implements it.
type Store interface {
	GetShift(ctx context.Context, id string) (Shift, error)
	MoveShift(ctx context.Context, id, day string, startMin, endMin int) error
	PublishSchedule(ctx context.Context, day string) (int, error)

	ListTasks(ctx context.Context, status string) ([]Task, error)
	CreateTask(ctx context.Context, t Task) error
	AssignTask(ctx context.Context, taskID, assignee string) error

	QueueMessage(ctx context.Context, channel, body, queuedBy string) (int64, error)
}

// All returns the full built-in toolset backed by store. A nil perms
// leaves the permission tool out.
func All(store Store, perms PermissionAdmin) []tool.Tool {
	tools := []tool.Tool{
		&MoveShift{Store: store},
		&PublishSchedule{Store: store},
		&ListTasks{Store: store},
		&CreateTask{Store: store},
		&AssignTask{Store: store},
		&SendMessage{Store: store},
	}
	if perms != nil {
		tools = append(tools, &ManagePermission{Admin: perms})
	}
	return tools
}

// parseDay validates a YYYY-MM-DD calendar day.
func parseDay(s string) error {
	_, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("invalid day %q, want YYYY-MM-DD", s)
	}
	return nil
}

// parseClock converts an HH:MM string to minutes from midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// formatClock renders minutes from midnight as HH:MM.
func formatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}
