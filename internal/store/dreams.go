package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SaveDreamSession persists one consolidation session record.
func (s *Store) SaveDreamSession(ctx context.Context, d *DreamSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	strategies, _ := json.Marshal(d.StrategiesRun)
	var endedAt any
	if d.EndedAt != nil {
		endedAt = d.EndedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dream_sessions (id, profile, started_at, ended_at, interrupted, strategies, insight_count, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			interrupted = excluded.interrupted,
			strategies = excluded.strategies,
			insight_count = excluded.insight_count,
			summary = excluded.summary`,
		d.ID, d.Profile, d.StartedAt.UTC(), endedAt,
		boolToInt(d.Interrupted), string(strategies), d.InsightCount, d.Summary)
	if err != nil {
		return fmt.Errorf("failed to save dream session: %w", err)
	}
	return nil
}

// ListDreamSessions returns recent sessions for a profile, newest first.
func (s *Store) ListDreamSessions(ctx context.Context, profile string, limit int) ([]*DreamSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile, started_at, ended_at, interrupted, strategies, insight_count, summary
		FROM dream_sessions WHERE profile = ?
		ORDER BY started_at DESC LIMIT ?`, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dream sessions: %w", err)
	}
	defer rows.Close()

	var out []*DreamSession
	for rows.Next() {
		var d DreamSession
		var strategies string
		var endedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.Profile, &d.StartedAt, &endedAt,
			&d.Interrupted, &strategies, &d.InsightCount, &d.Summary); err != nil {
			return nil, err
		}
		if endedAt.Valid {
			t := endedAt.Time
			d.EndedAt = &t
		}
		if err := json.Unmarshal([]byte(strategies), &d.StrategiesRun); err != nil {
			d.StrategiesRun = nil
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
