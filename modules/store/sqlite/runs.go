package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shiftwise/shiftwise/internal/agent"
)

var _ agent.RunStore = (*Store)(nil)

// ErrRunNotFound is returned by GetRun for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// SaveRun stores the full result as JSON alongside the columns the list
// queries filter on.
func (s *Store) SaveRun(ctx context.Context, r agent.RunResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("sqlite: encode run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, agent_id, user_id, started_ns, payload)
		VALUES (?, ?, ?, ?, ?)`,
		r.RunID, r.AgentID, r.UserID, r.StartedAt.UnixNano(), string(payload))
	if err != nil {
		return fmt.Errorf("sqlite: save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (agent.RunResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM runs WHERE run_id = ?", runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.RunResult{}, ErrRunNotFound
	}
	if err != nil {
		return agent.RunResult{}, fmt.Errorf("sqlite: get run: %w", err)
	}
	var r agent.RunResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return agent.RunResult{}, fmt.Errorf("sqlite: decode run: %w", err)
	}
	return r, nil
}

func (s *Store) ListRuns(ctx context.Context, agentID string, limit int) ([]agent.RunResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM runs WHERE agent_id = ?
		ORDER BY started_ns DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	defer rows.Close()

	var out []agent.RunResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}
		var r agent.RunResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("sqlite: decode run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
