package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// UpsertEntity inserts a canonical entity or returns the existing row's id
// when (profile, type, qualified_name) already exists. The unique constraint
// makes concurrent resolution of the same mention converge on one row.
func (s *Store) UpsertEntity(ctx context.Context, e *Entity) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Profile == "" {
		e.Profile = "default"
	}
	if e.MentionCount <= 0 {
		e.MentionCount = 1
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (profile, name, qualified_name, type, mention_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(profile, type, qualified_name) DO NOTHING`,
		e.Profile, e.Name, e.QualifiedName, e.Type, e.MentionCount)
	if err != nil {
		return 0, false, fmt.Errorf("failed to upsert entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		id, err := res.LastInsertId()
		return id, true, err
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM entities WHERE profile = ? AND type = ? AND qualified_name = ?`,
		e.Profile, e.Type, e.QualifiedName).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to find upserted entity: %w", err)
	}
	return id, false, nil
}

// GetEntity fetches one entity by id.
func (s *Store) GetEntity(ctx context.Context, id int64) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, profile, name, qualified_name, type, mention_count, created_at
		FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// FindEntityByName looks up an entity by case-insensitive name, then by
// qualified name, scoped to a profile.
func (s *Store) FindEntityByName(ctx context.Context, profile, name, entityType string) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, profile, name, qualified_name, type, mention_count, created_at
		FROM entities WHERE profile = ? AND lower(name) = lower(?)`
	args := []any{profile, name}
	if entityType != "" {
		query += " AND type = ?"
		args = append(args, entityType)
	}
	e, err := scanEntity(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return e, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	query = `
		SELECT id, profile, name, qualified_name, type, mention_count, created_at
		FROM entities WHERE profile = ? AND qualified_name = ?`
	args = []any{profile, strings.ToLower(name)}
	if entityType != "" {
		query += " AND type = ?"
		args = append(args, entityType)
	}
	return scanEntity(s.db.QueryRowContext(ctx, query, args...))
}

// ListEntities returns all entities for a profile.
func (s *Store) ListEntities(ctx context.Context, profile string) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile, name, qualified_name, type, mention_count, created_at
		FROM entities WHERE profile = ? ORDER BY id`, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PopularEntities returns entities ordered by mention count.
func (s *Store) PopularEntities(ctx context.Context, profile string, limit int) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile, name, qualified_name, type, mention_count, created_at
		FROM entities WHERE profile = ?
		ORDER BY mention_count DESC, id LIMIT ?`, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list popular entities: %w", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IncrementMentionCount bumps the mention counter for an entity.
func (s *Store) IncrementMentionCount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE entities SET mention_count = mention_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to bump mention count: %w", err)
	}
	return nil
}

// InsertAlias records an alternate surface form for an entity. Duplicate
// aliases for the same entity are silently deduplicated.
func (s *Store) InsertAlias(ctx context.Context, a *EntityAlias) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Profile == "" {
		a.Profile = "default"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_aliases (profile, entity_id, alias, alias_type)
		VALUES (?, ?, lower(?), ?)
		ON CONFLICT(profile, alias, entity_id) DO NOTHING`,
		a.Profile, a.EntityID, a.Alias, a.AliasType)
	if err != nil {
		return fmt.Errorf("failed to insert alias: %w", err)
	}
	return nil
}

// ResolveAlias returns the entity id an alias points to, case-insensitively.
func (s *Store) ResolveAlias(ctx context.Context, profile, alias string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT entity_id FROM entity_aliases
		WHERE profile = ? AND alias = lower(?)
		ORDER BY id LIMIT 1`, profile, alias).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("alias lookup failed: %w", err)
	}
	return id, nil
}

// ListAliases returns all aliases for a profile keyed by alias text.
func (s *Store) ListAliases(ctx context.Context, profile string) ([]*EntityAlias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile, entity_id, alias, alias_type, created_at
		FROM entity_aliases WHERE profile = ? ORDER BY id`, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer rows.Close()

	var out []*EntityAlias
	for rows.Next() {
		var a EntityAlias
		if err := rows.Scan(&a.ID, &a.Profile, &a.EntityID, &a.Alias, &a.AliasType, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// InsertEntityRelationship records a typed edge between two entities.
// Returns the existing row's id when the edge already exists.
func (s *Store) InsertEntityRelationship(ctx context.Context, r *EntityRelationship) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Profile == "" {
		r.Profile = "default"
	}
	if r.Confidence == 0 {
		r.Confidence = 1.0
	}
	var memoryID sql.NullInt64
	if r.MemoryID != 0 {
		memoryID = sql.NullInt64{Int64: r.MemoryID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_relationships (profile, from_entity_id, to_entity_id, type, description, confidence, memory_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_entity_id, to_entity_id, type) DO NOTHING`,
		r.Profile, r.FromEntityID, r.ToEntityID, r.Type, r.Description, r.Confidence, memoryID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entity relationship: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return res.LastInsertId()
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM entity_relationships
		WHERE from_entity_id = ? AND to_entity_id = ? AND type = ?`,
		r.FromEntityID, r.ToEntityID, r.Type).Scan(&id)
	return id, err
}

// ListEntityRelationships returns all entity edges for a profile.
func (s *Store) ListEntityRelationships(ctx context.Context, profile string) ([]*EntityRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile, from_entity_id, to_entity_id, type, description, confidence, memory_id, created_at
		FROM entity_relationships WHERE profile = ? ORDER BY id`, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity relationships: %w", err)
	}
	defer rows.Close()

	var out []*EntityRelationship
	for rows.Next() {
		var r EntityRelationship
		var memoryID sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Profile, &r.FromEntityID, &r.ToEntityID, &r.Type,
			&r.Description, &r.Confidence, &memoryID, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.MemoryID = memoryID.Int64
		out = append(out, &r)
	}
	return out, rows.Err()
}

// InsertMemoryEntityRef records that a memory mentions an entity.
func (s *Store) InsertMemoryEntityRef(ctx context.Context, ref *MemoryEntityRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.Relationship == "" {
		ref.Relationship = "mentions"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_entity_refs (memory_id, entity_id, relationship, snippet)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(memory_id, entity_id) DO NOTHING`,
		ref.MemoryID, ref.EntityID, ref.Relationship, ref.Snippet)
	if err != nil {
		return fmt.Errorf("failed to insert memory-entity ref: %w", err)
	}
	return nil
}

// ListMemoryEntityRefs returns every memory-entity reference joined against
// the profile's memories.
func (s *Store) ListMemoryEntityRefs(ctx context.Context, profile string) ([]*MemoryEntityRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.memory_id, r.entity_id, r.relationship, r.snippet, r.created_at
		FROM memory_entity_refs r
		JOIN memories m ON m.id = r.memory_id
		WHERE m.profile = ? ORDER BY r.id`, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory refs: %w", err)
	}
	defer rows.Close()

	var out []*MemoryEntityRef
	for rows.Next() {
		var r MemoryEntityRef
		if err := rows.Scan(&r.ID, &r.MemoryID, &r.EntityID, &r.Relationship, &r.Snippet, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// MemoryIDsForEntity returns ids of unarchived memories referencing an entity.
func (s *Store) MemoryIDsForEntity(ctx context.Context, entityID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.memory_id FROM memory_entity_refs r
		JOIN memories m ON m.id = r.memory_id
		WHERE r.entity_id = ? AND m.archived = 0
		ORDER BY r.memory_id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories for entity: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanEntity(row rowScanner) (*Entity, error) {
	var e Entity
	err := row.Scan(&e.ID, &e.Profile, &e.Name, &e.QualifiedName, &e.Type,
		&e.MentionCount, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
