package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"mnemod/internal/store"
)

// Pet-word hints. A query token matching one of these is matched against
// pet entities before anything else.
var petWords = map[string]bool{
	"dog": true, "cat": true, "pet": true, "bird": true, "fish": true,
	"hamster": true, "rabbit": true, "parrot": true, "turtle": true,
	"horse": true,
}

// RelationalResult is one answer to a relational query: the entity the final
// path step resolved to, the entity matched at each step, and the memories
// mentioning the final entity. On a failed hop Path holds the steps matched
// before the failure and Entity is nil.
type RelationalResult struct {
	Entity    *store.Entity
	Path      []*store.Entity
	MemoryIDs []int64
}

// QueryRelational resolves a path of entity descriptors ("my sister", "dog",
// "Sarah") against the profile's graph and returns the memories mentioning
// the final entity. Each step is tried against the alias table first, both
// verbatim and with a leading possessive stripped, so "my sister" reaches
// whoever the sister turned out to be; otherwise it is matched in priority
// order: pet-word hint, entity type, exact name, then substring. A step that
// matches nothing fails the query with an error naming the step, returning
// the partial path alongside it.
func (g *Mirror) QueryRelational(ctx context.Context, path []string) (*RelationalResult, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("relational query needs at least one step")
	}
	entities, err := g.Entities(ctx)
	if err != nil {
		return nil, err
	}

	res := &RelationalResult{}
	current := entities
	var matched *store.Entity
	for i, step := range path {
		matched, err = g.resolveStep(ctx, current, step)
		if err != nil {
			return res, err
		}
		if matched == nil {
			return res, fmt.Errorf("no entity matches %q (step %d of %d)", step, i+1, len(path))
		}
		res.Path = append(res.Path, matched)
		if i < len(path)-1 {
			// Narrow the next step to the matched entity's neighborhood.
			next, err := g.entityNeighbors(ctx, matched.ID)
			if err != nil {
				return res, err
			}
			current = next
		}
	}

	ids, err := g.MemoriesForEntity(ctx, matched.ID)
	if err != nil {
		return res, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	res.Entity = matched
	res.MemoryIDs = ids
	return res, nil
}

// resolveStep resolves one descriptor against the candidate set. The alias
// table wins when it points at a candidate; everything else goes through
// matchStep, retrying with the possessive stripped so "my sister" still hits
// an entity registered as "sister".
func (g *Mirror) resolveStep(ctx context.Context, candidates []*store.Entity, step string) (*store.Entity, error) {
	lowered := strings.ToLower(strings.TrimSpace(step))
	if lowered == "" {
		return nil, nil
	}
	stripped := stripPossessive(lowered)

	byID := make(map[int64]*store.Entity, len(candidates))
	for _, e := range candidates {
		byID[e.ID] = e
	}
	for _, form := range []string{lowered, stripped} {
		id, err := g.store.ResolveAlias(ctx, g.profile, form)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if e := byID[id]; e != nil {
			return e, nil
		}
	}

	if e := matchStep(candidates, lowered); e != nil {
		return e, nil
	}
	if stripped != lowered {
		return matchStep(candidates, stripped), nil
	}
	return nil, nil
}

// stripPossessive drops a leading possessive pronoun from a descriptor.
func stripPossessive(s string) string {
	for _, p := range []string{"my ", "his ", "her ", "their ", "our "} {
		if strings.HasPrefix(s, p) {
			return strings.TrimSpace(s[len(p):])
		}
	}
	return s
}

// matchStep picks the best entity for one descriptor. Candidates are
// scanned in mention-count order so a tie resolves to the better-known
// entity deterministically.
func matchStep(candidates []*store.Entity, step string) *store.Entity {
	step = strings.ToLower(strings.TrimSpace(step))
	if step == "" {
		return nil
	}

	sorted := append([]*store.Entity(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].MentionCount != sorted[j].MentionCount {
			return sorted[i].MentionCount > sorted[j].MentionCount
		}
		return sorted[i].ID < sorted[j].ID
	})

	if petWords[step] {
		for _, e := range sorted {
			if e.Type == "pet" {
				return e
			}
		}
	}
	for _, e := range sorted {
		if e.Type == step {
			return e
		}
	}
	for _, e := range sorted {
		if e.QualifiedName == step || strings.ToLower(e.Name) == step {
			return e
		}
	}
	for _, e := range sorted {
		if strings.Contains(e.QualifiedName, step) || strings.Contains(strings.ToLower(e.Name), step) {
			return e
		}
	}
	return nil
}

// entityNeighbors returns entities adjacent to the given one, either through
// a direct entity relationship or through co-mention in a shared memory.
func (g *Mirror) entityNeighbors(ctx context.Context, entityID int64) ([]*store.Entity, error) {
	edges, err := g.Neighbors(ctx, EntityNode(entityID), DirBoth)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{entityID: true}
	var out []*store.Entity

	add := func(id int64) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		e, err := g.Entity(ctx, id)
		if err != nil {
			return err
		}
		if e != nil {
			out = append(out, e)
		}
		return nil
	}

	for _, edge := range edges {
		switch edge.Kind {
		case EdgeEntityRelationship:
			for _, node := range []string{edge.From, edge.To} {
				if id, ok := parseNode(node, entityPrefix); ok {
					if err := add(id); err != nil {
						return nil, err
					}
				}
			}
		case EdgeReferences:
			// Incoming reference: walk the memory's other entities.
			memID, ok := parseNode(edge.From, memoryPrefix)
			if !ok {
				continue
			}
			others, err := g.EntitiesForMemory(ctx, memID)
			if err != nil {
				return nil, err
			}
			for _, id := range others {
				if err := add(id); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// EntityNeighborhood returns entities within the given number of hops of the
// starting entity, excluding the start itself.
func (g *Mirror) EntityNeighborhood(ctx context.Context, entityID int64, hops int) ([]*store.Entity, error) {
	if hops < 1 {
		hops = 1
	}
	seen := map[int64]bool{entityID: true}
	frontier := []int64{entityID}
	var out []*store.Entity

	for depth := 0; depth < hops && len(frontier) > 0; depth++ {
		var next []int64
		for _, id := range frontier {
			neighbors, err := g.entityNeighbors(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, e := range neighbors {
				if seen[e.ID] {
					continue
				}
				seen[e.ID] = true
				out = append(out, e)
				next = append(next, e.ID)
			}
		}
		frontier = next
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
