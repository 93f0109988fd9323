package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shiftwise/shiftwise/internal/governor"
)

var _ governor.InvocationStore = (*Store)(nil)

type limitQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkLimits runs the rate-limit, then global and per-user cooldown
// queries against q, which is either the database or an open transaction.
func checkLimits(ctx context.Context, q limitQuerier, res governor.Reservation, lim governor.Limits) error {
	atNS := res.At.UnixNano()

	if lim.MaxPerHour > 0 {
		var count int
		var err error
		windowStart := res.At.Add(-governor.RateWindow).UnixNano()
		if lim.UserScoped {
			err = q.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM invocations WHERE tool = ? AND user_id = ? AND at_ns > ?",
				res.Tool, res.UserID, windowStart).Scan(&count)
		} else {
			err = q.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM invocations WHERE tool = ? AND at_ns > ?",
				res.Tool, windowStart).Scan(&count)
		}
		if err != nil {
			return fmt.Errorf("sqlite: count window: %w", err)
		}
		if count >= lim.MaxPerHour {
			return &governor.RateLimitError{Tool: res.Tool, Limit: lim.MaxPerHour, Window: governor.RateWindow, PerUser: lim.UserScoped}
		}
	}

	if lim.GlobalCooldown > 0 {
		var last sql.NullInt64
		err := q.QueryRowContext(ctx,
			"SELECT MAX(at_ns) FROM invocations WHERE tool = ?", res.Tool).Scan(&last)
		if err != nil {
			return fmt.Errorf("sqlite: last invocation: %w", err)
		}
		if last.Valid {
			if rem := lim.GlobalCooldown - time.Duration(atNS-last.Int64); rem > 0 {
				return &governor.CooldownError{Tool: res.Tool, Scope: "global", Remaining: rem}
			}
		}
	}

	if lim.PerUserCooldown > 0 {
		var last sql.NullInt64
		err := q.QueryRowContext(ctx,
			"SELECT MAX(at_ns) FROM invocations WHERE tool = ? AND user_id = ?",
			res.Tool, res.UserID).Scan(&last)
		if err != nil {
			return fmt.Errorf("sqlite: last user invocation: %w", err)
		}
		if last.Valid {
			if rem := lim.PerUserCooldown - time.Duration(atNS-last.Int64); rem > 0 {
				return &governor.CooldownError{Tool: res.Tool, Scope: "user", Remaining: rem}
			}
		}
	}

	return nil
}

// Check reports whether an invocation at res.At would pass, recording
// nothing.
func (s *Store) Check(ctx context.Context, res governor.Reservation, lim governor.Limits) error {
	return checkLimits(ctx, s.db, res, lim)
}

// Reserve checks and records in one transaction, so concurrent dispatches
// of the same tool cannot both slip under a limit.
func (s *Store) Reserve(ctx context.Context, res governor.Reservation, lim governor.Limits) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkLimits(ctx, tx, res, lim); err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO invocations (tool, user_id, agent_id, run_id, at_ns) VALUES (?, ?, ?, ?, ?)",
		res.Tool, res.UserID, res.AgentID, res.RunID, res.At.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert invocation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: invocation id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit reserve: %w", err)
	}
	return id, nil
}

func (s *Store) MarkExecuted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE invocations SET executed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: mark executed: %w", err)
	}
	return nil
}

func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM invocations WHERE at_ns < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune invocations: %w", err)
	}
	return result.RowsAffected()
}
