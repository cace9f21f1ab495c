package store

import "time"

// Memory is one stored observation. Content is what was said; Rationale is
// why it mattered enough to store. Categories and Tags are persisted as JSON
// arrays. Profile scopes the row to one person within a tenant database.
type Memory struct {
	ID         int64
	Profile    string
	Content    string
	Rationale  string
	Categories []string
	Tags       []string
	FileRef    string
	Permanent  bool
	Archived   bool

	// Outcome tracking for decisions
	Outcome    string
	Worked     *bool // nil until an outcome is recorded
	ResolvedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCategory reports whether the memory carries the given category.
func (m *Memory) HasCategory(cat string) bool {
	for _, c := range m.Categories {
		if c == cat {
			return true
		}
	}
	return false
}

// HasTag reports whether the memory carries the given tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Entity is a canonical row in the entity registry. Name preserves the
// original casing of the first mention; QualifiedName is the normalized
// form used for resolution.
type Entity struct {
	ID            int64
	Profile       string
	Name          string
	QualifiedName string
	Type          string
	MentionCount  int
	CreatedAt     time.Time
}

// EntityAlias maps an alternate surface form to a canonical entity
// ("my sister" -> Sarah).
type EntityAlias struct {
	ID        int64
	Profile   string
	EntityID  int64
	Alias     string
	AliasType string
	CreatedAt time.Time
}

// EntityRelationship is a typed edge between two entities. Description holds
// the free-text context the edge was extracted from; MemoryID points at the
// memory that evidenced it, when one did (0 otherwise).
type EntityRelationship struct {
	ID           int64
	Profile      string
	FromEntityID int64
	ToEntityID   int64
	Type         string
	Description  string
	Confidence   float64
	MemoryID     int64
	CreatedAt    time.Time
}

// MemoryEntityRef records that a memory mentions an entity, with a short
// snippet of surrounding text.
type MemoryEntityRef struct {
	ID           int64
	MemoryID     int64
	EntityID     int64
	Relationship string
	Snippet      string
	CreatedAt    time.Time
}

// MemoryLink is a typed directed edge between two memories.
type MemoryLink struct {
	ID           int64
	FromMemoryID int64
	ToMemoryID   int64
	Type         string
	Description  string
	Confidence   float64
	CreatedAt    time.Time
}

// ActiveItem is a memory pinned into the hot working set.
type ActiveItem struct {
	ID       int64
	Profile  string
	MemoryID int64
	Reason   string
	AddedAt  time.Time
}

// Community is one detected cluster of related memories.
type Community struct {
	ID        int64
	Profile   string
	Level     int
	Label     string
	MemberIDs []int64
	BuiltAt   time.Time
}

// DreamSession records one background consolidation run.
type DreamSession struct {
	ID            string
	Profile       string
	StartedAt     time.Time
	EndedAt       *time.Time
	Interrupted   bool
	StrategiesRun []string
	InsightCount  int
	Summary       string
}

// SearchFilters narrows a recall candidate query. Zero values mean
// "no constraint".
type SearchFilters struct {
	Profile    string
	Categories []string
	Tags       []string
	FileRef    string
	Since      *time.Time
	Until      *time.Time
}

// FTSResult is one lexical search hit with an optional highlighted excerpt.
type FTSResult struct {
	MemoryID int64
	Excerpt  string
	Rank     float64
}
