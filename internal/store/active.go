package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AddActiveItem pins a memory into the profile's hot working set. The
// memory must belong to the same profile; pinning a foreign memory is an
// error, never a silent no-op.
func (s *Store) AddActiveItem(ctx context.Context, profile string, memoryID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owner string
	err := s.db.QueryRowContext(ctx,
		"SELECT profile FROM memories WHERE id = ?", memoryID).Scan(&owner)
	if err == sql.ErrNoRows {
		return fmt.Errorf("memory %d: %w", memoryID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("active context ownership check failed: %w", err)
	}
	if owner != profile {
		return fmt.Errorf("memory %d belongs to another profile: %w", memoryID, ErrForbidden)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO active_context (profile, memory_id, reason)
		VALUES (?, ?, ?)
		ON CONFLICT(profile, memory_id) DO UPDATE SET reason = excluded.reason`,
		profile, memoryID, reason)
	if err != nil {
		return fmt.Errorf("failed to add active context item: %w", err)
	}
	return nil
}

// RemoveActiveItem unpins a memory. Removing an absent item is a no-op.
func (s *Store) RemoveActiveItem(ctx context.Context, profile string, memoryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM active_context WHERE profile = ? AND memory_id = ?", profile, memoryID)
	if err != nil {
		return fmt.Errorf("failed to remove active context item: %w", err)
	}
	return nil
}

// ListActiveItems returns the profile's pinned memories, oldest first.
func (s *Store) ListActiveItems(ctx context.Context, profile string) ([]*ActiveItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile, memory_id, reason, added_at
		FROM active_context WHERE profile = ? ORDER BY added_at, id`, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list active context: %w", err)
	}
	defer rows.Close()

	var out []*ActiveItem
	for rows.Next() {
		var it ActiveItem
		if err := rows.Scan(&it.ID, &it.Profile, &it.MemoryID, &it.Reason, &it.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}
