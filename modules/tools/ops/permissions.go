package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shiftwise/shiftwise/internal/capability"
	"github.com/shiftwise/shiftwise/internal/tool"
)

// Interface guards.
var (
	_ tool.Tool                 = (*ManagePermission)(nil)
	_ tool.ConfirmationPrompter = (*ManagePermission)(nil)
)

// PermissionAdmin is the permission mutation surface the manage_permission
// tool needs. The sqlite module implements it.
type PermissionAdmin interface {
	SetPermissionOverride(ctx context.Context, userID string, ov capability.Override) error
	ClearPermissionOverride(ctx context.Context, userID, route, action string) error
}

// ManagePermission grants, denies or clears a per-user permission
// override. Changing who can do what is privilege movement, so every
// invocation is held for human approval.
type ManagePermission struct {
	Admin PermissionAdmin
}

type managePermissionArgs struct {
	UserID string `json:"user_id"`
	Route  string `json:"route"`
	Action string `json:"action"`
	Mode   string `json:"mode"`
}

func (t *ManagePermission) Name() string { return "manage_permission" }

func (t *ManagePermission) Description() string {
	return "Grant, deny or clear a per-user permission override on a route."
}

func (t *ManagePermission) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"user_id": {"type": "string", "description": "User whose permissions change"},
			"route":   {"type": "string", "description": "Permission route, e.g. schedule"},
			"action":  {"type": "string", "description": "Optional action on the route; empty matches all"},
			"mode":    {"type": "string", "enum": ["grant", "deny", "clear"], "description": "What to do with the override"}
		},
		"required": ["user_id", "route", "mode"],
		"additionalProperties": false
	}`)
}

func (t *ManagePermission) RequiredCapability() string { return capability.CapPermissionManage }
func (t *ManagePermission) RequiresConfirmation() bool { return false }
func (t *ManagePermission) RequiresApproval() bool     { return true }

func (t *ManagePermission) Cooldown() tool.CooldownSpec {
	return tool.CooldownSpec{}
}

func (t *ManagePermission) RateLimit() tool.RateLimitSpec {
	return tool.RateLimitSpec{MaxPerHour: 10}
}

func (t *ManagePermission) Validate(args json.RawMessage) error {
	parsed, err := parseManagePermissionArgs(args)
	if err != nil {
		return err
	}
	if parsed.UserID == "" || parsed.Route == "" {
		return fmt.Errorf("user_id and route must not be empty")
	}
	if !slices.Contains([]string{"grant", "deny", "clear"}, parsed.Mode) {
		return fmt.Errorf("mode must be grant, deny or clear")
	}
	return nil
}

func (t *ManagePermission) Execute(ctx context.Context, args json.RawMessage, ec tool.ExecContext) (tool.Result, error) {
	parsed, err := parseManagePermissionArgs(args)
	if err != nil {
		return nil, err
	}

	if ec.DryRun {
		return permissionResult{Args: parsed, Preview: true}, nil
	}

	switch parsed.Mode {
	case "clear":
		err = t.Admin.ClearPermissionOverride(ctx, parsed.UserID, parsed.Route, parsed.Action)
	default:
		err = t.Admin.SetPermissionOverride(ctx, parsed.UserID, capability.Override{
			Route:   parsed.Route,
			Action:  parsed.Action,
			Granted: parsed.Mode == "grant",
		})
	}
	if err != nil {
		return nil, err
	}
	return permissionResult{Args: parsed}, nil
}

type permissionResult struct {
	Args    managePermissionArgs
	Preview bool
}

func (t *ManagePermission) FormatResult(res tool.Result) string {
	r, ok := res.(permissionResult)
	if !ok {
		return ""
	}
	scope := r.Args.Route
	if r.Args.Action != "" {
		scope += "." + r.Args.Action
	}
	if r.Preview {
		return fmt.Sprintf("Would apply %s on %s for %s.", r.Args.Mode, scope, r.Args.UserID)
	}
	switch r.Args.Mode {
	case "clear":
		return fmt.Sprintf("Cleared the %s override for %s.", scope, r.Args.UserID)
	case "deny":
		return fmt.Sprintf("Denied %s for %s.", scope, r.Args.UserID)
	default:
		return fmt.Sprintf("Granted %s to %s.", scope, r.Args.UserID)
	}
}

func (t *ManagePermission) ConfirmationPrompt(args json.RawMessage) string {
	parsed, err := parseManagePermissionArgs(args)
	if err != nil {
		return "Change a permission override (arguments unreadable)."
	}
	scope := parsed.Route
	if parsed.Action != "" {
		scope += "." + parsed.Action
	}
	return fmt.Sprintf("%s %s for user %s?", parsed.Mode, scope, parsed.UserID)
}

func parseManagePermissionArgs(args json.RawMessage) (managePermissionArgs, error) {
	var parsed managePermissionArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return managePermissionArgs{}, fmt.Errorf("parse arguments: %w", err)
	}
	return parsed, nil
}
