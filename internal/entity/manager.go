package entity

import (
	"context"
	"errors"
	"fmt"

	"mnemod/internal/logging"
	"mnemod/internal/store"
)

// Manager runs the entity pipeline for stored memories: extract mentions,
// resolve them, and maintain refs, aliases, and entity relationships.
type Manager struct {
	store     *store.Store
	resolver  *Resolver
	extractor *Extractor
}

// NewManager creates an entity manager over one tenant's store.
func NewManager(s *store.Store, resolver *Resolver) *Manager {
	return &Manager{store: s, resolver: resolver, extractor: NewExtractor()}
}

// Resolver exposes the underlying resolver.
func (m *Manager) Resolver() *Resolver { return m.resolver }

// ProcessMemory extracts entities from a memory's content and rationale,
// resolves them, and records memory-entity references. A relationship
// reference ("my sister") that co-occurs with a person mention becomes an
// alias for that person; on its own it resolves like any other mention.
func (m *Manager) ProcessMemory(ctx context.Context, profile string, memoryID int64, content, rationale string) error {
	timer := logging.StartTimer(logging.CategoryEntity, "ProcessMemory")
	defer timer.Stop()

	text := content
	if rationale != "" {
		text = content + " " + rationale
	}
	mentions := m.extractor.Extract(text)
	if len(mentions) == 0 {
		return nil
	}

	var persons []Mention
	var relRefs []Mention
	var others []Mention
	for _, mn := range mentions {
		switch mn.Type {
		case TypePerson:
			persons = append(persons, mn)
		case TypeRelationshipRef:
			relRefs = append(relRefs, mn)
		default:
			others = append(others, mn)
		}
	}

	var firstPersonID int64
	for _, mn := range append(persons, others...) {
		res, err := m.resolver.Resolve(ctx, profile, mn.Name, mn.Type)
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", mn.Name, err)
		}
		if mn.Type == TypePerson && firstPersonID == 0 {
			firstPersonID = res.EntityID
		}
		if err := m.store.InsertMemoryEntityRef(ctx, &store.MemoryEntityRef{
			MemoryID: memoryID,
			EntityID: res.EntityID,
			Snippet:  mn.Snippet,
		}); err != nil {
			return err
		}
	}

	for _, mn := range relRefs {
		normalized := Normalize(mn.Name, TypeRelationshipRef)

		// A co-occurring person claims the reference as an alias:
		// "my sister Sarah" teaches us who "my sister" is.
		if firstPersonID != 0 {
			if err := m.store.InsertAlias(ctx, &store.EntityAlias{
				Profile:   profile,
				EntityID:  firstPersonID,
				Alias:     normalized,
				AliasType: "relationship",
			}); err != nil {
				return err
			}
			if err := m.store.InsertMemoryEntityRef(ctx, &store.MemoryEntityRef{
				MemoryID: memoryID,
				EntityID: firstPersonID,
				Snippet:  mn.Snippet,
			}); err != nil {
				return err
			}
			continue
		}

		// Standalone reference: resolve through the alias table if a
		// previous memory taught us the mapping, else keep it as its own
		// relationship_ref entity until someone names the person.
		res, err := m.resolver.Resolve(ctx, profile, mn.Name, TypeRelationshipRef)
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", mn.Name, err)
		}
		if err := m.store.InsertMemoryEntityRef(ctx, &store.MemoryEntityRef{
			MemoryID: memoryID,
			EntityID: res.EntityID,
			Snippet:  mn.Snippet,
		}); err != nil {
			return err
		}
	}

	logging.EntityDebug("processed memory %d: %d mentions", memoryID, len(mentions))
	return nil
}

// AddRelationship records a typed edge between two entities after
// validating the type against the closed vocabulary. Both entities must
// exist; a duplicate edge returns the existing row's id. Beyond the
// endpoints and type the caller may set Description, Confidence (defaults
// to 1.0), and the MemoryID the relationship was observed in.
func (m *Manager) AddRelationship(ctx context.Context, rel *store.EntityRelationship) (int64, error) {
	if err := CheckRelationshipType(rel.Type); err != nil {
		return 0, err
	}
	for _, id := range []int64{rel.FromEntityID, rel.ToEntityID} {
		if _, err := m.store.GetEntity(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, fmt.Errorf("entity %d: %w", id, store.ErrNotFound)
			}
			return 0, err
		}
	}
	return m.store.InsertEntityRelationship(ctx, rel)
}

// AddAlias records an alternate name for an entity.
func (m *Manager) AddAlias(ctx context.Context, profile string, entityID int64, alias, aliasType string) error {
	if _, err := m.store.GetEntity(ctx, entityID); err != nil {
		return err
	}
	return m.store.InsertAlias(ctx, &store.EntityAlias{
		Profile:   profile,
		EntityID:  entityID,
		Alias:     Normalize(alias, TypeRelationshipRef),
		AliasType: aliasType,
	})
}

// MemoriesForEntity returns ids of unarchived memories referencing the
// entity.
func (m *Manager) MemoriesForEntity(ctx context.Context, entityID int64) ([]int64, error) {
	return m.store.MemoryIDsForEntity(ctx, entityID)
}

// PopularEntities returns the profile's most-mentioned entities.
func (m *Manager) PopularEntities(ctx context.Context, profile string, limit int) ([]*store.Entity, error) {
	return m.store.PopularEntities(ctx, profile, limit)
}
