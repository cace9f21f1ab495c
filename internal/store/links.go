package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"mnemod/internal/logging"
)

// LinkDirection selects which edges a link query follows.
type LinkDirection string

const (
	DirectionOutgoing LinkDirection = "outgoing"
	DirectionIncoming LinkDirection = "incoming"
	DirectionBoth     LinkDirection = "both"
)

// InsertMemoryLink stores a typed edge between two memories. Both endpoints
// must exist and belong to the given profile.
func (s *Store) InsertMemoryLink(ctx context.Context, profile string, link *MemoryLink) (int64, error) {
	if link.Type == "" {
		return 0, fmt.Errorf("link type cannot be empty")
	}
	if math.IsNaN(link.Confidence) || math.IsInf(link.Confidence, 0) {
		return 0, fmt.Errorf("link confidence must be a finite number")
	}
	if link.Confidence == 0 {
		link.Confidence = 1.0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []int64{link.FromMemoryID, link.ToMemoryID} {
		var exists int
		err := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM memories WHERE id = ? AND profile = ?", id, profile).Scan(&exists)
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("memory %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("link endpoint check failed: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_relationships (from_memory_id, to_memory_id, type, description, confidence)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_memory_id, to_memory_id, type) DO UPDATE SET
			description = excluded.description,
			confidence = excluded.confidence`,
		link.FromMemoryID, link.ToMemoryID, link.Type, link.Description, link.Confidence)
	if err != nil {
		return 0, fmt.Errorf("failed to insert memory link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	logging.GraphDebug("linked memory %d -[%s]-> %d", link.FromMemoryID, link.Type, link.ToMemoryID)
	return id, nil
}

// DeleteMemoryLink removes a typed edge. An empty linkType removes every
// edge between the pair. Returns how many edges were removed.
func (s *Store) DeleteMemoryLink(ctx context.Context, fromID, toID int64, linkType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	var err error
	if linkType == "" {
		res, err = s.db.ExecContext(ctx,
			"DELETE FROM memory_relationships WHERE from_memory_id = ? AND to_memory_id = ?",
			fromID, toID)
	} else {
		res, err = s.db.ExecContext(ctx,
			"DELETE FROM memory_relationships WHERE from_memory_id = ? AND to_memory_id = ? AND type = ?",
			fromID, toID, linkType)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete memory link: %w", err)
	}
	return res.RowsAffected()
}

// QueryLinks returns edges touching a memory in the given direction,
// optionally filtered by relationship types.
func (s *Store) QueryLinks(ctx context.Context, memoryID int64, direction LinkDirection, types []string) ([]*MemoryLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLinksLocked(ctx, memoryID, direction, types)
}

// queryLinksLocked is the lock-free inner query so graph traversal can hold
// one read lock across many hops without re-entering RLock.
func (s *Store) queryLinksLocked(ctx context.Context, memoryID int64, direction LinkDirection, types []string) ([]*MemoryLink, error) {
	var query string
	args := []any{}

	base := "SELECT id, from_memory_id, to_memory_id, type, description, confidence, created_at FROM memory_relationships WHERE "
	switch direction {
	case DirectionOutgoing:
		query = base + "from_memory_id = ?"
		args = append(args, memoryID)
	case DirectionIncoming:
		query = base + "to_memory_id = ?"
		args = append(args, memoryID)
	case DirectionBoth, "":
		query = base + "(from_memory_id = ? OR to_memory_id = ?)"
		args = append(args, memoryID, memoryID)
	default:
		return nil, fmt.Errorf("unknown link direction %q", direction)
	}

	if len(types) > 0 {
		query += " AND type IN (?" + repeatPlaceholder(len(types)-1) + ")"
		for _, t := range types {
			args = append(args, t)
		}
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("link query failed: %w", err)
	}
	defer rows.Close()

	var out []*MemoryLink
	for rows.Next() {
		var l MemoryLink
		if err := rows.Scan(&l.ID, &l.FromMemoryID, &l.ToMemoryID, &l.Type, &l.Description, &l.Confidence, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// ListMemoryLinks returns every memory edge joined against a profile's
// memories (both endpoints in-profile).
func (s *Store) ListMemoryLinks(ctx context.Context, profile string) ([]*MemoryLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.from_memory_id, l.to_memory_id, l.type, l.description, l.confidence, l.created_at
		FROM memory_relationships l
		JOIN memories a ON a.id = l.from_memory_id
		JOIN memories b ON b.id = l.to_memory_id
		WHERE a.profile = ? AND b.profile = ?
		ORDER BY l.id`, profile, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory links: %w", err)
	}
	defer rows.Close()

	var out []*MemoryLink
	for rows.Next() {
		var l MemoryLink
		if err := rows.Scan(&l.ID, &l.FromMemoryID, &l.ToMemoryID, &l.Type, &l.Description, &l.Confidence, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// HasLink reports whether any edge exists between two memories in either
// direction.
func (s *Store) HasLink(ctx context.Context, a, b int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM memory_relationships
		WHERE (from_memory_id = ? AND to_memory_id = ?)
		   OR (from_memory_id = ? AND to_memory_id = ?)
		LIMIT 1`, a, b, b, a).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("link existence check failed: %w", err)
	}
	return true, nil
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ",?"
	}
	return out
}
