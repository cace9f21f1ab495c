// Package graph maintains an in-memory mirror of the knowledge graph for
// traversal. SQLite stays authoritative; the mirror is rebuilt lazily after
// writes invalidate it.
package graph

import (
	"context"
	"fmt"
	"sync"

	"mnemod/internal/logging"
	"mnemod/internal/store"
)

// Node id prefixes keep entity and memory nodes in one address space.
const (
	entityPrefix = "entity:"
	memoryPrefix = "memory:"
)

// EntityNode builds the mirror id for an entity.
func EntityNode(id int64) string { return fmt.Sprintf("%s%d", entityPrefix, id) }

// MemoryNode builds the mirror id for a memory.
func MemoryNode(id int64) string { return fmt.Sprintf("%s%d", memoryPrefix, id) }

// Edge kinds in the mirror.
const (
	EdgeReferences         = "references"          // memory -> entity
	EdgeRelationship       = "relationship"        // memory -> memory
	EdgeEntityRelationship = "entity_relationship" // entity -> entity
)

// Direction selects which adjacency a traversal follows.
type Direction string

const (
	DirIn   Direction = "in"
	DirOut  Direction = "out"
	DirBoth Direction = "both"
)

// Edge is one directed mirror edge. Description and Confidence carry the
// stored relationship metadata for memory and entity edges; reference edges
// leave them zero.
type Edge struct {
	From        string
	To          string
	Kind        string
	Type        string // relationship type for memory and entity edges
	Description string
	Confidence  float64
}

// Mirror is the in-memory projection of one profile's graph.
type Mirror struct {
	store   *store.Store
	profile string

	mu     sync.RWMutex
	loaded bool
	nodes  map[string]bool
	out    map[string][]Edge
	in     map[string][]Edge

	entities map[int64]*store.Entity
}

// NewMirror creates an unloaded mirror for one profile.
func NewMirror(s *store.Store, profile string) *Mirror {
	return &Mirror{store: s, profile: profile}
}

// Invalidate marks the mirror stale; the next read reloads it.
func (g *Mirror) Invalidate() {
	g.mu.Lock()
	g.loaded = false
	g.mu.Unlock()
}

// EnsureLoaded rebuilds the mirror from the store if it is stale.
func (g *Mirror) EnsureLoaded(ctx context.Context) error {
	g.mu.RLock()
	loaded := g.loaded
	g.mu.RUnlock()
	if loaded {
		return nil
	}
	return g.Reload(ctx)
}

// Reload rebuilds the mirror unconditionally. Load order matters: entities
// first, then memory references, then memory links, then entity edges;
// an entity edge whose endpoint is missing is skipped so the mirror never
// holds a dangling entity relationship.
func (g *Mirror) Reload(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryGraph, "graph.Reload")
	defer timer.Stop()

	entities, err := g.store.ListEntities(ctx, g.profile)
	if err != nil {
		return fmt.Errorf("graph load: %w", err)
	}
	refs, err := g.store.ListMemoryEntityRefs(ctx, g.profile)
	if err != nil {
		return fmt.Errorf("graph load: %w", err)
	}
	links, err := g.store.ListMemoryLinks(ctx, g.profile)
	if err != nil {
		return fmt.Errorf("graph load: %w", err)
	}
	rels, err := g.store.ListEntityRelationships(ctx, g.profile)
	if err != nil {
		return fmt.Errorf("graph load: %w", err)
	}

	nodes := make(map[string]bool)
	out := make(map[string][]Edge)
	in := make(map[string][]Edge)
	byID := make(map[int64]*store.Entity, len(entities))

	addEdge := func(e Edge) {
		out[e.From] = append(out[e.From], e)
		in[e.To] = append(in[e.To], e)
	}

	for _, e := range entities {
		nodes[EntityNode(e.ID)] = true
		byID[e.ID] = e
	}

	for _, r := range refs {
		mem := MemoryNode(r.MemoryID)
		ent := EntityNode(r.EntityID)
		if !nodes[ent] {
			continue
		}
		nodes[mem] = true
		addEdge(Edge{From: mem, To: ent, Kind: EdgeReferences, Type: r.Relationship})
	}

	for _, l := range links {
		from := MemoryNode(l.FromMemoryID)
		to := MemoryNode(l.ToMemoryID)
		nodes[from] = true
		nodes[to] = true
		addEdge(Edge{
			From: from, To: to, Kind: EdgeRelationship, Type: l.Type,
			Description: l.Description, Confidence: l.Confidence,
		})
	}

	skipped := 0
	for _, r := range rels {
		from := EntityNode(r.FromEntityID)
		to := EntityNode(r.ToEntityID)
		// Both endpoints must already exist; referencing a vanished entity
		// would corrupt traversal.
		if !nodes[from] || !nodes[to] {
			skipped++
			continue
		}
		addEdge(Edge{
			From: from, To: to, Kind: EdgeEntityRelationship, Type: r.Type,
			Description: r.Description, Confidence: r.Confidence,
		})
	}
	if skipped > 0 {
		logging.GraphDebug("skipped %d entity edges with missing endpoints", skipped)
	}

	g.mu.Lock()
	g.nodes = nodes
	g.out = out
	g.in = in
	g.entities = byID
	g.loaded = true
	g.mu.Unlock()

	logging.GraphDebug("graph loaded: %d nodes, %d entities", len(nodes), len(entities))
	return nil
}

// HasNode reports whether the mirror contains the node.
func (g *Mirror) HasNode(ctx context.Context, node string) (bool, error) {
	if err := g.EnsureLoaded(ctx); err != nil {
		return false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[node], nil
}

// Neighbors returns the edges touching a node in the given direction.
func (g *Mirror) Neighbors(ctx context.Context, node string, dir Direction) ([]Edge, error) {
	if err := g.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	switch dir {
	case DirOut:
		return append([]Edge(nil), g.out[node]...), nil
	case DirIn:
		return append([]Edge(nil), g.in[node]...), nil
	case DirBoth, "":
		edges := append([]Edge(nil), g.out[node]...)
		return append(edges, g.in[node]...), nil
	default:
		return nil, fmt.Errorf("unknown direction %q", dir)
	}
}

// Entity returns the mirrored entity row for an id, or nil.
func (g *Mirror) Entity(ctx context.Context, id int64) (*store.Entity, error) {
	if err := g.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entities[id], nil
}

// Entities returns all mirrored entities.
func (g *Mirror) Entities(ctx context.Context) ([]*store.Entity, error) {
	if err := g.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*store.Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, e)
	}
	return out, nil
}

// MemoriesForEntity returns memory ids that reference the entity (mirror
// predecessors over "references" edges).
func (g *Mirror) MemoriesForEntity(ctx context.Context, entityID int64) ([]int64, error) {
	if err := g.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []int64
	for _, e := range g.in[EntityNode(entityID)] {
		if e.Kind != EdgeReferences {
			continue
		}
		if id, ok := parseNode(e.From, memoryPrefix); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// EntitiesForMemory returns entity ids referenced by a memory.
func (g *Mirror) EntitiesForMemory(ctx context.Context, memoryID int64) ([]int64, error) {
	if err := g.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []int64
	for _, e := range g.out[MemoryNode(memoryID)] {
		if e.Kind != EdgeReferences {
			continue
		}
		if id, ok := parseNode(e.To, entityPrefix); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CommonEntities returns entity ids referenced by both memories.
func (g *Mirror) CommonEntities(ctx context.Context, memA, memB int64) ([]int64, error) {
	a, err := g.EntitiesForMemory(ctx, memA)
	if err != nil {
		return nil, err
	}
	b, err := g.EntitiesForMemory(ctx, memB)
	if err != nil {
		return nil, err
	}

	inA := make(map[int64]bool, len(a))
	for _, id := range a {
		inA[id] = true
	}
	var common []int64
	for _, id := range b {
		if inA[id] {
			common = append(common, id)
		}
	}
	return common, nil
}

func parseNode(node, prefix string) (int64, bool) {
	if len(node) <= len(prefix) || node[:len(prefix)] != prefix {
		return 0, false
	}
	var id int64
	if _, err := fmt.Sscanf(node[len(prefix):], "%d", &id); err != nil {
		return 0, false
	}
	return id, true
}
