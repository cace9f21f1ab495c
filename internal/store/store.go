// Package store persists memories, entities, and graph edges for one tenant
// in a SQLite database. One Store owns one database file; the context manager
// creates a Store per tenant directory.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"mnemod/internal/logging"
)

var (
	// ErrNotFound is returned when a row does not exist in this store,
	// including rows that exist but belong to a different profile.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when an operation would cross profile
	// ownership, like pinning another profile's memory.
	ErrForbidden = errors.New("forbidden")
)

// Store wraps a single-tenant SQLite database. The RWMutex serializes
// writers against readers so a reader always sees fully committed rows.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	dbPath    string
	vectorExt bool // sqlite-vec available
	ftsExt    bool // FTS5 available
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	logging.Store("opening store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("failed to enable foreign keys: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.detectVecExtension()
	s.detectFTS()

	logging.Store("store ready (vec=%v fts=%v)", s.vectorExt, s.ftsExt)
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	memoriesTable := `
	CREATE TABLE IF NOT EXISTS memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile TEXT NOT NULL DEFAULT 'default',
		content TEXT NOT NULL,
		rationale TEXT DEFAULT '',
		categories TEXT NOT NULL DEFAULT '[]',
		tags TEXT NOT NULL DEFAULT '[]',
		file_ref TEXT DEFAULT '',
		permanent INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		outcome TEXT DEFAULT '',
		worked INTEGER,
		resolved_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_memories_profile ON memories(profile);
	CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(archived);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
	`

	entitiesTable := `
	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile TEXT NOT NULL DEFAULT 'default',
		name TEXT NOT NULL,
		qualified_name TEXT NOT NULL,
		type TEXT NOT NULL,
		mention_count INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(profile, type, qualified_name)
	);
	CREATE INDEX IF NOT EXISTS idx_entities_profile ON entities(profile);
	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
	`

	aliasesTable := `
	CREATE TABLE IF NOT EXISTS entity_aliases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile TEXT NOT NULL DEFAULT 'default',
		entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		alias TEXT NOT NULL,
		alias_type TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(profile, alias, entity_id)
	);
	CREATE INDEX IF NOT EXISTS idx_aliases_alias ON entity_aliases(alias);
	`

	entityRelsTable := `
	CREATE TABLE IF NOT EXISTS entity_relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile TEXT NOT NULL DEFAULT 'default',
		from_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		to_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 1.0,
		memory_id INTEGER REFERENCES memories(id) ON DELETE SET NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(from_entity_id, to_entity_id, type)
	);
	CREATE INDEX IF NOT EXISTS idx_entity_rels_from ON entity_relationships(from_entity_id);
	CREATE INDEX IF NOT EXISTS idx_entity_rels_to ON entity_relationships(to_entity_id);
	`

	memoryRefsTable := `
	CREATE TABLE IF NOT EXISTS memory_entity_refs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		relationship TEXT NOT NULL DEFAULT 'mentions',
		snippet TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(memory_id, entity_id)
	);
	CREATE INDEX IF NOT EXISTS idx_memory_refs_memory ON memory_entity_refs(memory_id);
	CREATE INDEX IF NOT EXISTS idx_memory_refs_entity ON memory_entity_refs(entity_id);
	`

	memoryLinksTable := `
	CREATE TABLE IF NOT EXISTS memory_relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		to_memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 1.0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(from_memory_id, to_memory_id, type)
	);
	CREATE INDEX IF NOT EXISTS idx_memory_links_from ON memory_relationships(from_memory_id);
	CREATE INDEX IF NOT EXISTS idx_memory_links_to ON memory_relationships(to_memory_id);
	`

	activeContextTable := `
	CREATE TABLE IF NOT EXISTS active_context (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile TEXT NOT NULL DEFAULT 'default',
		memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		reason TEXT DEFAULT '',
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(profile, memory_id)
	);
	`

	communitiesTable := `
	CREATE TABLE IF NOT EXISTS communities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile TEXT NOT NULL DEFAULT 'default',
		level INTEGER NOT NULL DEFAULT 0,
		label TEXT DEFAULT '',
		members TEXT NOT NULL DEFAULT '[]',
		built_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_communities_profile ON communities(profile);
	`

	dreamSessionsTable := `
	CREATE TABLE IF NOT EXISTS dream_sessions (
		id TEXT PRIMARY KEY,
		profile TEXT NOT NULL DEFAULT 'default',
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		interrupted INTEGER NOT NULL DEFAULT 0,
		strategies TEXT NOT NULL DEFAULT '[]',
		insight_count INTEGER NOT NULL DEFAULT 0,
		summary TEXT DEFAULT ''
	);
	`

	for _, ddl := range []string{
		memoriesTable,
		entitiesTable,
		aliasesTable,
		entityRelsTable,
		memoryRefsTable,
		memoryLinksTable,
		activeContextTable,
		communitiesTable,
		dreamSessionsTable,
	} {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// detectVecExtension probes for sqlite-vec by creating a throwaway vec0 table.
func (s *Store) detectVecExtension() {
	_, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])")
	if err != nil {
		s.vectorExt = false
		return
	}
	_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
	s.vectorExt = true
}

// detectFTS probes for FTS5 and creates the lexical index when available.
func (s *Store) detectFTS() {
	ftsTable := `
	CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		content, rationale, tags,
		content='memories', content_rowid='id'
	);
	`
	if _, err := s.db.Exec(ftsTable); err != nil {
		logging.StoreDebug("FTS5 unavailable: %v", err)
		s.ftsExt = false
		return
	}
	s.ftsExt = true
}

// HasVectorExt reports whether the sqlite-vec extension is loaded.
func (s *Store) HasVectorExt() bool { return s.vectorExt }

// HasFTS reports whether the FTS5 lexical index is available.
func (s *Store) HasFTS() bool { return s.ftsExt }

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Stats summarizes row counts per table.
type Stats struct {
	Memories            int
	ArchivedMemories    int
	Entities            int
	EntityAliases       int
	EntityRelationships int
	MemoryLinks         int
	Communities         int
	DreamSessions       int
}

// GetStats returns row counts for the main tables.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM memories WHERE archived = 0", &st.Memories},
		{"SELECT COUNT(*) FROM memories WHERE archived = 1", &st.ArchivedMemories},
		{"SELECT COUNT(*) FROM entities", &st.Entities},
		{"SELECT COUNT(*) FROM entity_aliases", &st.EntityAliases},
		{"SELECT COUNT(*) FROM entity_relationships", &st.EntityRelationships},
		{"SELECT COUNT(*) FROM memory_relationships", &st.MemoryLinks},
		{"SELECT COUNT(*) FROM communities", &st.Communities},
		{"SELECT COUNT(*) FROM dream_sessions", &st.DreamSessions},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return st, fmt.Errorf("stats query failed: %w", err)
		}
	}
	return st, nil
}
