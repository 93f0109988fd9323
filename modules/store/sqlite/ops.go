package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shiftwise/shiftwise/modules/tools/ops"
)

// Interface guard.
var _ ops.Store = (*Store)(nil)

// GetShift implements ops.Store.
func (s *Store) GetShift(ctx context.Context, id string) (ops.Shift, error) {
	var sh ops.Shift
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, day, start_min, end_min, published FROM shifts WHERE id = ?`, id,
	).Scan(&sh.ID, &sh.UserID, &sh.Day, &sh.StartMin, &sh.EndMin, &sh.Published)
	if errors.Is(err, sql.ErrNoRows) {
		return ops.Shift{}, fmt.Errorf("%w: %s", ops.ErrShiftNotFound, id)
	}
	if err != nil {
		return ops.Shift{}, fmt.Errorf("sqlite: get shift: %w", err)
	}
	return sh, nil
}

// CreateShift inserts a shift. Used by seeding and tests; agents move
// shifts but never create them.
func (s *Store) CreateShift(ctx context.Context, sh ops.Shift) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shifts (id, user_id, day, start_min, end_min, published) VALUES (?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.UserID, sh.Day, sh.StartMin, sh.EndMin, sh.Published,
	)
	if err != nil {
		return fmt.Errorf("sqlite: create shift: %w", err)
	}
	return nil
}

// MoveShift implements ops.Store. Moving a shift unpublishes it until
// the day's schedule is published again.
func (s *Store) MoveShift(ctx context.Context, id, day string, startMin, endMin int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shifts SET day = ?, start_min = ?, end_min = ?, published = 0 WHERE id = ?`,
		day, startMin, endMin, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: move shift: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: move shift: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ops.ErrShiftNotFound, id)
	}
	return nil
}

// PublishSchedule implements ops.Store.
func (s *Store) PublishSchedule(ctx context.Context, day string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shifts SET published = 1 WHERE day = ? AND published = 0`, day,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: publish schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: publish schedule: %w", err)
	}
	return int(n), nil
}

// ListTasks implements ops.Store. An empty status returns every task.
func (s *Store) ListTasks(ctx context.Context, status string) ([]ops.Task, error) {
	query := `SELECT id, title, assignee, status, due_day FROM tasks ORDER BY due_day, id`
	args := []any{}
	if status != "" {
		query = `SELECT id, title, assignee, status, due_day FROM tasks WHERE status = ? ORDER BY due_day, id`
		args = append(args, status)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tasks: %w", err)
	}
	defer rows.Close()

	var out []ops.Task
	for rows.Next() {
		var t ops.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Assignee, &t.Status, &t.DueDay); err != nil {
			return nil, fmt.Errorf("sqlite: scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list tasks: %w", err)
	}
	return out, nil
}

// CreateTask implements ops.Store.
func (s *Store) CreateTask(ctx context.Context, t ops.Task) error {
	if t.Status == "" {
		t.Status = ops.TaskOpen
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, assignee, status, due_day, updated_ns) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Assignee, t.Status, t.DueDay, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create task: %w", err)
	}
	return nil
}

// AssignTask implements ops.Store.
func (s *Store) AssignTask(ctx context.Context, taskID, assignee string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET assignee = ?, updated_ns = ? WHERE id = ?`,
		assignee, time.Now().UnixNano(), taskID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: assign task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: assign task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ops.ErrTaskNotFound, taskID)
	}
	return nil
}

// QueueMessage implements ops.Store. Messages land in an outbox table;
// delivery to the actual chat transport is a separate concern.
func (s *Store) QueueMessage(ctx context.Context, channel, body, queuedBy string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (channel, body, queued_by, queued_ns) VALUES (?, ?, ?, ?)`,
		channel, body, queuedBy, time.Now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: queue message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: queue message: %w", err)
	}
	return id, nil
}
