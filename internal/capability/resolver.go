package capability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// roleDefaults maps each role to the capability keys it holds by default.
var roleDefaults = map[Role]map[string]bool{
	RoleStaff: {},
	RoleManager: {
		CapScheduleWrite: true,
		CapTaskWrite:     true,
		CapMessageSend:   true,
		CapReportView:    true,
	},
	RoleAdmin: {
		CapScheduleWrite:    true,
		CapTaskWrite:        true,
		CapMessageSend:      true,
		CapPermissionManage: true,
		CapReportView:       true,
	},
}

// Resolver computes capability sets. It never returns an error: a failed
// lookup produces the restrictive default set.
type Resolver struct {
	source Source
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by the given permission source.
func NewResolver(source Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		source: source,
		logger: logger.With("component", "capability"),
	}
}

// Resolve computes the capability set for a user and the given tool
// requirements. Precedence per capability: explicit denial > explicit
// grant > role default.
func (r *Resolver) Resolve(ctx context.Context, userID string, reqs []ToolRequirement) *Set {
	set := &Set{
		UserID: userID,
		Role:   RoleStaff,
		Flags:  make(map[string]bool, len(Keys)),
		Tools:  make(map[string]Decision, len(reqs)),
	}

	role, roleErr := r.source.RoleOf(ctx, userID)
	overrides, ovErr := r.source.OverridesFor(ctx, userID)

	if roleErr != nil || ovErr != nil {
		// Restrictive default: every elevated capability stays false.
		r.logger.Warn("permission lookup failed, using restrictive defaults",
			"user", userID, "role_err", roleErr, "overrides_err", ovErr)
		set.Degraded = true
		overrides = nil
	} else {
		set.Role = role
	}

	defaults := roleDefaults[set.Role]
	for _, key := range Keys {
		set.Flags[key] = resolveFlag(key, defaults[key], overrides)
	}

	for _, req := range reqs {
		set.Tools[req.Name] = r.decide(set, req)
	}

	return set
}

// resolveFlag applies the precedence rule for one capability key.
func resolveFlag(key string, roleDefault bool, overrides []Override) bool {
	route, action, _ := strings.Cut(key, ".")

	granted := false
	for _, ov := range overrides {
		if ov.Route != route {
			continue
		}
		if ov.Action != "" && ov.Action != action {
			continue
		}
		if !ov.Granted {
			// Explicit denial wins regardless of order.
			return false
		}
		granted = true
	}
	if granted {
		return true
	}
	return roleDefault
}

func (r *Resolver) decide(set *Set, req ToolRequirement) Decision {
	if req.Capability == "" {
		return Decision{Allowed: true, Reason: "open to all users"}
	}
	if set.Flags[req.Capability] {
		return Decision{Allowed: true, Reason: fmt.Sprintf("capability %s held", req.Capability)}
	}
	if set.Degraded {
		return Decision{Allowed: false, Reason: "permission lookup failed, access restricted"}
	}
	return Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("missing capability %s for role %s", req.Capability, set.Role),
	}
}
