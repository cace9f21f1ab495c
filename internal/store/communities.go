package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ReplaceCommunities atomically swaps the profile's communities for a fresh
// detection result.
func (s *Store) ReplaceCommunities(ctx context.Context, profile string, communities []*Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin community swap: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM communities WHERE profile = ?", profile); err != nil {
		return fmt.Errorf("failed to clear communities: %w", err)
	}

	for _, c := range communities {
		members, _ := json.Marshal(c.MemberIDs)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO communities (profile, level, label, members, built_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			profile, c.Level, c.Label, string(members)); err != nil {
			return fmt.Errorf("failed to insert community: %w", err)
		}
	}
	return tx.Commit()
}

// ListCommunities returns the profile's communities, optionally filtered
// by level (level < 0 means all levels).
func (s *Store) ListCommunities(ctx context.Context, profile string, level int) ([]*Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, profile, level, label, members, built_at FROM communities WHERE profile = ?`
	args := []any{profile}
	if level >= 0 {
		query += " AND level = ?"
		args = append(args, level)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	defer rows.Close()

	var out []*Community
	for rows.Next() {
		var c Community
		var members string
		if err := rows.Scan(&c.ID, &c.Profile, &c.Level, &c.Label, &members, &c.BuiltAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(members), &c.MemberIDs); err != nil {
			c.MemberIDs = nil
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetCommunity fetches one community by id.
func (s *Store) GetCommunity(ctx context.Context, id int64) (*Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Community
	var members string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile, level, label, members, built_at
		FROM communities WHERE id = ?`, id).
		Scan(&c.ID, &c.Profile, &c.Level, &c.Label, &members, &c.BuiltAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get community: %w", err)
	}
	if err := json.Unmarshal([]byte(members), &c.MemberIDs); err != nil {
		c.MemberIDs = nil
	}
	return &c, nil
}

// CommunitiesBuiltAt returns when the profile's communities were last built,
// or the zero time when none exist.
func (s *Store) CommunitiesBuiltAt(ctx context.Context, profile string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var built sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(built_at) FROM communities WHERE profile = ?", profile).Scan(&built)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read community build time: %w", err)
	}
	if !built.Valid {
		return time.Time{}, nil
	}
	return built.Time, nil
}
