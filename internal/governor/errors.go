package governor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDisabled rejects invocations of a tool switched off at runtime.
	ErrDisabled = errors.New("tool is disabled")

	// ErrValidation marks argument validation failures. Always wrapped
	// with the underlying cause.
	ErrValidation = errors.New("invalid arguments")

	// ErrPendingDecided is returned when a confirmation or approval has
	// already been resolved.
	ErrPendingDecided = errors.New("pending invocation already decided")

	// ErrPendingNotFound is returned for unknown pending IDs.
	ErrPendingNotFound = errors.New("pending invocation not found")
)

// CooldownError rejects an invocation that arrived before the tool's
// cooldown elapsed. Remaining is how long until the tool is usable again.
type CooldownError struct {
	Tool      string
	Scope     string // "user" or "global"
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("tool %s is cooling down (%s), retry in %s",
		e.Tool, e.Scope, e.Remaining.Round(time.Second))
}

// RateLimitError rejects an invocation that would exceed the tool's
// rolling-window budget. PerUser marks budgets counted per user rather
// than tool-wide.
type RateLimitError struct {
	Tool    string
	Limit   int
	Window  time.Duration
	PerUser bool
}

func (e *RateLimitError) Error() string {
	scope := ""
	if e.PerUser {
		scope = " per user"
	}
	return fmt.Sprintf("tool %s exceeded its limit of %d calls per %s%s",
		e.Tool, e.Limit, e.Window, scope)
}
