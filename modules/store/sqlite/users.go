package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shiftwise/shiftwise/internal/capability"
)

// Interface guard.
var _ capability.Source = (*Store)(nil)

// RoleOf implements capability.Source. Unknown users resolve to the
// staff role rather than an error: an unrecognized caller gets the
// least-privileged defaults, not a degraded run.
func (s *Store) RoleOf(ctx context.Context, userID string) (capability.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return capability.RoleStaff, nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: role of %s: %w", userID, err)
	}
	return capability.Role(role), nil
}

// OverridesFor implements capability.Source.
func (s *Store) OverridesFor(ctx context.Context, userID string) ([]capability.Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT route, action, granted FROM permission_overrides WHERE user_id = ? ORDER BY route, action`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: overrides for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []capability.Override
	for rows.Next() {
		var ov capability.Override
		if err := rows.Scan(&ov.Route, &ov.Action, &ov.Granted); err != nil {
			return nil, fmt.Errorf("sqlite: scan override: %w", err)
		}
		out = append(out, ov)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: overrides for %s: %w", userID, err)
	}
	return out, nil
}

// SetUserRole creates or updates a user's base role.
func (s *Store) SetUserRole(ctx context.Context, userID string, role capability.Role) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, role) VALUES (?, ?)`, userID, string(role),
	)
	if err != nil {
		return fmt.Errorf("sqlite: set role: %w", err)
	}
	return nil
}

// SetPermissionOverride upserts one per-user permission override.
func (s *Store) SetPermissionOverride(ctx context.Context, userID string, ov capability.Override) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO permission_overrides (user_id, route, action, granted) VALUES (?, ?, ?, ?)`,
		userID, ov.Route, ov.Action, ov.Granted,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set permission override: %w", err)
	}
	return nil
}

// ClearPermissionOverride removes one per-user permission override.
func (s *Store) ClearPermissionOverride(ctx context.Context, userID, route, action string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM permission_overrides WHERE user_id = ? AND route = ? AND action = ?`,
		userID, route, action,
	)
	if err != nil {
		return fmt.Errorf("sqlite: clear permission override: %w", err)
	}
	return nil
}
