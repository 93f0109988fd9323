// Package capability resolves a user's permission flags and per-tool
// allow/deny decisions from role defaults plus explicit per-user overrides.
// Resolution is total and deterministic: every registered tool gets a
// decision, and lookup failures degrade to the most restrictive set
// instead of surfacing an error.
package capability

import "context"

// Role is a user's base role in the operations store.
type Role string

// Role constants ordered from least to most privileged.
const (
	RoleStaff   Role = "staff"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Capability keys follow a "route.action" shape matching the permission
// override scoping of the operations store.
const (
	CapScheduleWrite    = "schedule.write"
	CapTaskWrite        = "task.write"
	CapMessageSend      = "message.send"
	CapPermissionManage = "permission.manage"
	CapReportView       = "report.view"
)

// Keys lists every known capability in deterministic order.
var Keys = []string{
	CapScheduleWrite,
	CapTaskWrite,
	CapMessageSend,
	CapPermissionManage,
	CapReportView,
}

// Override is an explicit per-user permission override scoped to a route
// and an optional action. An empty Action matches every action on the route.
type Override struct {
	Route   string
	Action  string
	Granted bool
}

// Source looks up role and overrides for a user. Implementations talk to
// the external operations store; the resolver treats every error as
// "assume nothing".
type Source interface {
	RoleOf(ctx context.Context, userID string) (Role, error)
	OverridesFor(ctx context.Context, userID string) ([]Override, error)
}

// Decision is the resolved outcome for one tool.
type Decision struct {
	Allowed bool
	Reason  string
}

// ToolRequirement pairs a tool name with the capability it needs.
// An empty Capability means the tool is open to every user.
type ToolRequirement struct {
	Name       string
	Capability string
}

// Set is a fully resolved capability set for one user. Once resolved for
// a run it is never mutated; the run loop treats it as read-only.
type Set struct {
	UserID string
	Role   Role

	// Flags holds the resolved boolean per capability key.
	Flags map[string]bool

	// Tools holds the allow/deny decision per registered tool name.
	Tools map[string]Decision

	// Degraded is set when the permission lookup failed and the set
	// fell back to the restrictive default.
	Degraded bool
}

// Has reports whether the capability key resolved to true.
func (s *Set) Has(key string) bool {
	return s.Flags[key]
}

// ToolAllowed returns the decision for a tool name. Unknown tools are
// denied: only tools that went through resolution may be dispatched.
func (s *Set) ToolAllowed(name string) Decision {
	if d, ok := s.Tools[name]; ok {
		return d
	}
	return Decision{Allowed: false, Reason: "tool not resolved for this run"}
}

// AllowedTools returns the names of all allowed tools in the order of
// the requirements passed to Resolve.
func (s *Set) AllowedTools(reqs []ToolRequirement) []string {
	allowed := make([]string, 0, len(reqs))
	for _, req := range reqs {
		if s.Tools[req.Name].Allowed {
			allowed = append(allowed, req.Name)
		}
	}
	return allowed
}
