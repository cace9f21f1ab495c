package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mnemod/internal/logging"
)

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func decodeList(data string) []string {
	var items []string
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return []string{}
	}
	return items
}

// InsertMemory persists a memory and returns its id.
func (s *Store) InsertMemory(ctx context.Context, m *Memory) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(m.Content) == "" {
		return 0, fmt.Errorf("memory content cannot be empty")
	}
	if m.Profile == "" {
		m.Profile = "default"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (profile, content, rationale, categories, tags, file_ref, permanent)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Profile, m.Content, m.Rationale,
		encodeList(m.Categories), encodeList(m.Tags),
		m.FileRef, boolToInt(m.Permanent),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read memory id: %w", err)
	}

	if s.ftsExt {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO memories_fts(rowid, content, rationale, tags)
			VALUES (?, ?, ?, ?)`,
			id, m.Content, m.Rationale, strings.Join(m.Tags, " "),
		); err != nil {
			logging.StoreDebug("fts insert failed for memory %d: %v", id, err)
		}
	}

	logging.StoreDebug("inserted memory %d (profile=%s)", id, m.Profile)
	return id, nil
}

// GetMemory fetches one memory scoped to a profile. A row owned by a
// different profile is reported as ErrNotFound, never exposed.
func (s *Store) GetMemory(ctx context.Context, id int64, profile string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMemoryLocked(ctx, id, profile)
}

func (s *Store) getMemoryLocked(ctx context.Context, id int64, profile string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, profile, content, rationale, categories, tags, file_ref,
		       permanent, archived, outcome, worked, resolved_at, created_at, updated_at
		FROM memories WHERE id = ? AND profile = ?`, id, profile)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

// GetMemories batch-fetches memories by id for one profile, skipping
// missing rows.
func (s *Store) GetMemories(ctx context.Context, ids []int64, profile string) ([]*Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, profile)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, profile, content, rationale, categories, tags, file_ref,
		       permanent, archived, outcome, worked, resolved_at, created_at, updated_at
		FROM memories WHERE id IN (%s) AND profile = ?`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchMemories returns unarchived candidate memories matching the filters,
// newest first. Ranking happens in the memory manager, not here.
func (s *Store) SearchMemories(ctx context.Context, f SearchFilters) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, profile, content, rationale, categories, tags, file_ref,
		       permanent, archived, outcome, worked, resolved_at, created_at, updated_at
		FROM memories WHERE archived = 0 AND profile = ?`)
	args := []any{f.Profile}

	for _, cat := range f.Categories {
		sb.WriteString(" AND categories LIKE ?")
		args = append(args, `%"`+cat+`"%`)
	}
	for _, tag := range f.Tags {
		sb.WriteString(" AND tags LIKE ?")
		args = append(args, `%"`+tag+`"%`)
	}
	if f.FileRef != "" {
		sb.WriteString(" AND file_ref = ?")
		args = append(args, f.FileRef)
	}
	if f.Since != nil {
		sb.WriteString(" AND created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if f.Until != nil {
		sb.WriteString(" AND created_at <= ?")
		args = append(args, f.Until.UTC())
	}
	sb.WriteString(" ORDER BY created_at DESC")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("memory search failed: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// RecentMemories returns unarchived memories created within the window.
func (s *Store) RecentMemories(ctx context.Context, profile string, since time.Time) ([]*Memory, error) {
	return s.SearchMemories(ctx, SearchFilters{Profile: profile, Since: &since})
}

// RecordOutcome stores the outcome of a decision memory.
func (s *Store) RecordOutcome(ctx context.Context, id int64, profile, outcome string, worked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET outcome = ?, worked = ?, resolved_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND profile = ?`,
		outcome, boolToInt(worked), id, profile)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveMemories marks memories invisible to recall without deleting them.
func (s *Store) ArchiveMemories(ctx context.Context, ids []int64, profile string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, profile)

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE memories SET archived = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (%s) AND profile = ?`, placeholders), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to archive memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteMemory permanently removes one memory scoped to a profile.
// Dependent refs and links cascade.
func (s *Store) DeleteMemory(ctx context.Context, id int64, profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// External-content FTS5 needs the old column values to tombstone a row,
	// so capture them before the delete.
	var content, rationale, tags string
	if s.ftsExt {
		_ = s.db.QueryRowContext(ctx,
			"SELECT content, rationale, tags FROM memories WHERE id = ? AND profile = ?",
			id, profile).Scan(&content, &rationale, &tags)
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM memories WHERE id = ? AND profile = ?", id, profile)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	if s.ftsExt && content != "" {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO memories_fts(memories_fts, rowid, content, rationale, tags)
			VALUES ('delete', ?, ?, ?, ?)`,
			id, content, rationale, strings.Join(decodeList(tags), " ")); err != nil {
			logging.StoreDebug("fts delete failed for memory %d: %v", id, err)
			_, _ = s.db.ExecContext(ctx, "INSERT INTO memories_fts(memories_fts) VALUES ('rebuild')")
		}
	}
	return nil
}

// CountMemories returns the number of unarchived memories for a profile,
// grouped by category.
func (s *Store) CountMemories(ctx context.Context, profile string) (int, map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT categories FROM memories WHERE archived = 0 AND profile = ?", profile)
	if err != nil {
		return 0, nil, fmt.Errorf("count query failed: %w", err)
	}
	defer rows.Close()

	total := 0
	byCategory := make(map[string]int)
	for rows.Next() {
		var cats string
		if err := rows.Scan(&cats); err != nil {
			return 0, nil, err
		}
		total++
		for _, c := range decodeList(cats) {
			byCategory[c]++
		}
	}
	return total, byCategory, rows.Err()
}

// RenameProfile migrates every row from one profile name to another.
func (s *Store) RenameProfile(ctx context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rename: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"memories", "entities", "entity_aliases", "entity_relationships",
		"active_context", "communities", "dream_sessions",
	} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET profile = ? WHERE profile = ?", table), to, from); err != nil {
			return fmt.Errorf("failed to rename profile in %s: %w", table, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var cats, tags string
	var worked sql.NullInt64
	var resolvedAt sql.NullTime
	err := row.Scan(&m.ID, &m.Profile, &m.Content, &m.Rationale, &cats, &tags,
		&m.FileRef, &m.Permanent, &m.Archived, &m.Outcome, &worked, &resolvedAt,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Categories = decodeList(cats)
	m.Tags = decodeList(tags)
	if worked.Valid {
		b := worked.Int64 != 0
		m.Worked = &b
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		m.ResolvedAt = &t
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
