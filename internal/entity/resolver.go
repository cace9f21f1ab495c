package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"mnemod/internal/logging"
	"mnemod/internal/store"
)

// ResolverCache is the process-wide entity resolution cache. It is
// constructed once by the context manager and shared by every tenant's
// resolver; entries are partitioned by tenant key so one tenant can be
// cleared without touching the rest.
type ResolverCache struct {
	mu     sync.RWMutex
	ids    map[string]int64 // CacheKey -> entity id
	loaded map[string]bool  // tenant/profile -> hydrated
	group  singleflight.Group
}

// NewResolverCache creates an empty cache.
func NewResolverCache() *ResolverCache {
	return &ResolverCache{
		ids:    make(map[string]int64),
		loaded: make(map[string]bool),
	}
}

// Clear drops every entry for one tenant and returns how many were removed.
func (c *ResolverCache) Clear(tenant string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := tenant + ":"
	n := 0
	for k := range c.ids {
		if strings.HasPrefix(k, prefix) {
			delete(c.ids, k)
			n++
		}
	}
	for k := range c.loaded {
		if strings.HasPrefix(k, prefix) {
			delete(c.loaded, k)
		}
	}
	return n
}

// ClearAll drops every entry for every tenant.
func (c *ResolverCache) ClearAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.ids)
	c.ids = make(map[string]int64)
	c.loaded = make(map[string]bool)
	return n
}

// Len returns the number of cached resolutions.
func (c *ResolverCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

func (c *ResolverCache) get(key string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[key]
	return id, ok
}

func (c *ResolverCache) put(key string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[key] = id
}

// Resolver maps entity mentions to canonical store rows for one tenant.
type Resolver struct {
	store  *store.Store
	tenant string
	cache  *ResolverCache
}

// NewResolver creates a resolver bound to one tenant's store, sharing the
// process-wide cache.
func NewResolver(s *store.Store, tenant string, cache *ResolverCache) *Resolver {
	return &Resolver{store: s, tenant: tenant, cache: cache}
}

// Resolution is the outcome of resolving one mention.
type Resolution struct {
	EntityID int64
	IsNew    bool
}

// Resolve maps a mention to a canonical entity id, creating the entity on
// first sight. Resolution order: cache, alias table, entity by name or
// qualified name, then create. Concurrent resolutions of the same mention
// collapse through singleflight and the store's unique constraint, so
// exactly one row exists afterwards.
func (r *Resolver) Resolve(ctx context.Context, profile, name string, t Type) (Resolution, error) {
	if !ValidTypes[t] {
		return Resolution{}, fmt.Errorf("unknown entity type %q", t)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Resolution{}, fmt.Errorf("entity name cannot be empty")
	}

	if err := r.EnsureCacheLoaded(ctx, profile); err != nil {
		return Resolution{}, err
	}

	normalized := Normalize(name, t)
	key := CacheKey(r.tenant, profile, t, normalized)

	if id, ok := r.cache.get(key); ok {
		if err := r.store.IncrementMentionCount(ctx, id); err != nil {
			return Resolution{}, err
		}
		return Resolution{EntityID: id}, nil
	}

	v, err, _ := r.cache.group.Do(key, func() (any, error) {
		// Re-check under singleflight: a concurrent caller may have
		// populated the cache while we waited.
		if id, ok := r.cache.get(key); ok {
			return Resolution{EntityID: id}, nil
		}

		// Alias table ("my sister" -> Sarah).
		if id, err := r.store.ResolveAlias(ctx, profile, normalized); err == nil {
			r.cache.put(key, id)
			return Resolution{EntityID: id}, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return Resolution{}, err
		}

		// Existing entity by name, then qualified name.
		if e, err := r.store.FindEntityByName(ctx, profile, name, string(t)); err == nil {
			r.cache.put(key, e.ID)
			return Resolution{EntityID: e.ID}, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return Resolution{}, err
		}

		// First sight: create. Name keeps the original casing; the
		// qualified name carries the normalized form.
		id, created, err := r.store.UpsertEntity(ctx, &store.Entity{
			Profile:       profile,
			Name:          name,
			QualifiedName: normalized,
			Type:          string(t),
		})
		if err != nil {
			return Resolution{}, err
		}
		r.cache.put(key, id)
		logging.EntityDebug("resolved %q (%s) -> entity %d (new=%v)", name, t, id, created)
		return Resolution{EntityID: id, IsNew: created}, nil
	})
	if err != nil {
		return Resolution{}, err
	}

	res := v.(Resolution)
	if !res.IsNew {
		if err := r.store.IncrementMentionCount(ctx, res.EntityID); err != nil {
			return Resolution{}, err
		}
	}
	return res, nil
}

// EnsureCacheLoaded hydrates the cache from the store once per
// tenant/profile. Safe to call repeatedly.
func (r *Resolver) EnsureCacheLoaded(ctx context.Context, profile string) error {
	loadKey := r.tenant + ":" + profile

	r.cache.mu.RLock()
	done := r.cache.loaded[loadKey]
	r.cache.mu.RUnlock()
	if done {
		return nil
	}

	_, err, _ := r.cache.group.Do("load:"+loadKey, func() (any, error) {
		r.cache.mu.RLock()
		done := r.cache.loaded[loadKey]
		r.cache.mu.RUnlock()
		if done {
			return nil, nil
		}

		entities, err := r.store.ListEntities(ctx, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate resolver cache: %w", err)
		}
		aliases, err := r.store.ListAliases(ctx, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate alias cache: %w", err)
		}

		byID := make(map[int64]*store.Entity, len(entities))
		r.cache.mu.Lock()
		for _, e := range entities {
			byID[e.ID] = e
			r.cache.ids[CacheKey(r.tenant, profile, Type(e.Type), e.QualifiedName)] = e.ID
		}
		for _, a := range aliases {
			if e, ok := byID[a.EntityID]; ok {
				r.cache.ids[CacheKey(r.tenant, profile, Type(e.Type), a.Alias)] = e.ID
			}
		}
		r.cache.loaded[loadKey] = true
		r.cache.mu.Unlock()

		logging.EntityDebug("hydrated resolver cache for %s: %d entities, %d aliases",
			loadKey, len(entities), len(aliases))
		return nil, nil
	})
	return err
}
