package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shiftwise/shiftwise/internal/governor"
)

// Pendings is the PendingStore view over the shared database handle.
// A separate type keeps its MarkExecuted distinct from the invocation one.
type Pendings struct {
	s *Store
}

func (s *Store) Pendings() *Pendings { return &Pendings{s: s} }

var _ governor.PendingStore = (*Pendings)(nil)

func (ps *Pendings) Create(ctx context.Context, p governor.PendingInvocation) error {
	args := p.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	_, err := ps.s.db.ExecContext(ctx, `
		INSERT INTO pendings (id, kind, tool, args, agent_id, user_id, run_id, prompt, created_ns, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Kind), p.Tool, string(args), p.AgentID, p.UserID, p.RunID,
		p.Prompt, p.CreatedAt.UnixNano(), string(governor.PendingOpen))
	if err != nil {
		return fmt.Errorf("sqlite: create pending: %w", err)
	}
	return nil
}

func scanPending(scan func(dest ...any) error) (governor.PendingInvocation, error) {
	var p governor.PendingInvocation
	var kind, state, args string
	var createdNS, decidedNS int64
	err := scan(&p.ID, &kind, &p.Tool, &args, &p.AgentID, &p.UserID, &p.RunID,
		&p.Prompt, &createdNS, &state, &p.DecidedBy, &decidedNS)
	if err != nil {
		return p, err
	}
	p.Kind = governor.PendingKind(kind)
	p.State = governor.PendingState(state)
	p.Args = json.RawMessage(args)
	p.CreatedAt = time.Unix(0, createdNS).UTC()
	if decidedNS != 0 {
		p.DecidedAt = time.Unix(0, decidedNS).UTC()
	}
	return p, nil
}

const pendingColumns = "id, kind, tool, args, agent_id, user_id, run_id, prompt, created_ns, state, decided_by, decided_ns"

func (ps *Pendings) Get(ctx context.Context, id string) (governor.PendingInvocation, error) {
	row := ps.s.db.QueryRowContext(ctx,
		"SELECT "+pendingColumns+" FROM pendings WHERE id = ?", id)
	p, err := scanPending(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return governor.PendingInvocation{}, governor.ErrPendingNotFound
	}
	if err != nil {
		return governor.PendingInvocation{}, fmt.Errorf("sqlite: get pending: %w", err)
	}
	return p, nil
}

// Decide transitions an open pending in one guarded UPDATE: the state
// predicate makes a double decision lose the race cleanly.
func (ps *Pendings) Decide(ctx context.Context, id, decidedBy string, approved bool, at time.Time) error {
	state := governor.PendingDenied
	if approved {
		state = governor.PendingApproved
	}
	result, err := ps.s.db.ExecContext(ctx, `
		UPDATE pendings SET state = ?, decided_by = ?, decided_ns = ?
		WHERE id = ? AND state = ?`,
		string(state), decidedBy, at.UnixNano(), id, string(governor.PendingOpen))
	if err != nil {
		return fmt.Errorf("sqlite: decide pending: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: decide pending: %w", err)
	}
	if n == 0 {
		if _, err := ps.Get(ctx, id); err != nil {
			return err
		}
		return governor.ErrPendingDecided
	}
	return nil
}

func (ps *Pendings) ListOpen(ctx context.Context, kind governor.PendingKind) ([]governor.PendingInvocation, error) {
	query := "SELECT " + pendingColumns + " FROM pendings WHERE state = ?"
	args := []any{string(governor.PendingOpen)}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY created_ns ASC"

	rows, err := ps.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list pendings: %w", err)
	}
	defer rows.Close()

	var out []governor.PendingInvocation
	for rows.Next() {
		p, err := scanPending(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan pending: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (ps *Pendings) MarkExecuted(ctx context.Context, id string) error {
	_, err := ps.s.db.ExecContext(ctx,
		"UPDATE pendings SET state = ? WHERE id = ?", string(governor.PendingExecuted), id)
	if err != nil {
		return fmt.Errorf("sqlite: mark pending executed: %w", err)
	}
	return nil
}

func (ps *Pendings) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := ps.s.db.ExecContext(ctx, `
		UPDATE pendings SET state = ? WHERE state = ? AND created_ns < ?`,
		string(governor.PendingExpired), string(governor.PendingOpen), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: expire pendings: %w", err)
	}
	return result.RowsAffected()
}
