package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shiftwise/shiftwise/internal/config"
)

var _ config.OverrideSource = (*Store)(nil)

func nullBool(p *bool) any {
	if p == nil {
		return nil
	}
	if *p {
		return int64(1)
	}
	return int64(0)
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullDuration(p *time.Duration) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func boolPtr(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Int64 != 0
	return &b
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func durationPtr(v sql.NullInt64) *time.Duration {
	if !v.Valid {
		return nil
	}
	d := time.Duration(v.Int64)
	return &d
}

// SetToolOverride upserts the runtime override row for one tool.
func (s *Store) SetToolOverride(ctx context.Context, name string, ov config.ToolOverride) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tool_overrides
			(name, enabled, require_confirmation, per_user_cooldown_ns, global_cooldown_ns, max_per_hour)
		VALUES (?, ?, ?, ?, ?, ?)`,
		name, nullBool(ov.Enabled), nullBool(ov.RequireConfirmation),
		nullDuration(ov.PerUserCooldown), nullDuration(ov.GlobalCooldown), nullInt(ov.MaxPerHour))
	if err != nil {
		return fmt.Errorf("sqlite: set tool override: %w", err)
	}
	return nil
}

// SetModuleOverride upserts the runtime override row for one context module.
func (s *Store) SetModuleOverride(ctx context.Context, id string, ov config.ModuleOverride) error {
	keywords, err := json.Marshal(ov.TriggerKeywords)
	if err != nil {
		return fmt.Errorf("sqlite: encode keywords: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO module_overrides (id, enabled, priority, appended_text, trigger_keywords)
		VALUES (?, ?, ?, ?, ?)`,
		id, nullBool(ov.Enabled), nullInt(ov.Priority), ov.AppendedText, string(keywords))
	if err != nil {
		return fmt.Errorf("sqlite: set module override: %w", err)
	}
	return nil
}

func (s *Store) ToolOverrides(ctx context.Context) (map[string]config.ToolOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, enabled, require_confirmation, per_user_cooldown_ns, global_cooldown_ns, max_per_hour
		FROM tool_overrides`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: tool overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]config.ToolOverride)
	for rows.Next() {
		var name string
		var enabled, confirm, perUser, global, maxPerHour sql.NullInt64
		if err := rows.Scan(&name, &enabled, &confirm, &perUser, &global, &maxPerHour); err != nil {
			return nil, fmt.Errorf("sqlite: scan tool override: %w", err)
		}
		out[name] = config.ToolOverride{
			Enabled:             boolPtr(enabled),
			RequireConfirmation: boolPtr(confirm),
			PerUserCooldown:     durationPtr(perUser),
			GlobalCooldown:      durationPtr(global),
			MaxPerHour:          intPtr(maxPerHour),
		}
	}
	return out, rows.Err()
}

func (s *Store) ModuleOverrides(ctx context.Context) (map[string]config.ModuleOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, enabled, priority, appended_text, trigger_keywords FROM module_overrides`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: module overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]config.ModuleOverride)
	for rows.Next() {
		var id, appended, keywordsJSON string
		var enabled, priority sql.NullInt64
		if err := rows.Scan(&id, &enabled, &priority, &appended, &keywordsJSON); err != nil {
			return nil, fmt.Errorf("sqlite: scan module override: %w", err)
		}
		var keywords []string
		if err := json.Unmarshal([]byte(keywordsJSON), &keywords); err != nil {
			return nil, fmt.Errorf("sqlite: decode keywords for %s: %w", id, err)
		}
		out[id] = config.ModuleOverride{
			Enabled:         boolPtr(enabled),
			Priority:        intPtr(priority),
			AppendedText:    appended,
			TriggerKeywords: keywords,
		}
	}
	return out, rows.Err()
}
