package entity

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"mnemod/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewResolver(s, "tenant1", NewResolverCache()), s
}

func TestResolveCreatesThenReuses(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "default", "Sarah", TypePerson)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !first.IsNew {
		t.Error("first resolution should create")
	}

	second, err := r.Resolve(ctx, "default", "Sarah", TypePerson)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if second.IsNew {
		t.Error("second resolution should reuse")
	}
	if first.EntityID != second.EntityID {
		t.Errorf("ids differ: %d vs %d", first.EntityID, second.EntityID)
	}
}

func TestResolveNormalizesBeforeMatching(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	a, err := r.Resolve(ctx, "default", "Dr. Smith", TypePerson)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(ctx, "default", "smith", TypePerson)
	if err != nil {
		t.Fatal(err)
	}
	if a.EntityID != b.EntityID {
		t.Errorf("honorific and bare form resolved differently: %d vs %d", a.EntityID, b.EntityID)
	}
}

func TestResolveThroughAlias(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	res, err := r.Resolve(ctx, "default", "Sarah", TypePerson)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertAlias(ctx, &store.EntityAlias{
		Profile: "default", EntityID: res.EntityID, Alias: "sister", AliasType: "relationship",
	}); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve(ctx, "default", "my sister", TypeRelationshipRef)
	if err != nil {
		t.Fatal(err)
	}
	if got.EntityID != res.EntityID {
		t.Errorf("alias resolved to %d, want %d", got.EntityID, res.EntityID)
	}
	if got.IsNew {
		t.Error("alias resolution should not create")
	}
}

func TestResolveProfileIsolation(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	a, err := r.Resolve(ctx, "alice", "Max", TypePet)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(ctx, "bob", "Max", TypePet)
	if err != nil {
		t.Fatal(err)
	}
	if a.EntityID == b.EntityID {
		t.Error("same entity id across profiles")
	}
}

func TestResolveConcurrentSingleRow(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Resolve(ctx, "default", "Whiskers", TypePet)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			ids[i] = res.EntityID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("worker %d resolved to %d, worker 0 to %d", i, ids[i], ids[0])
		}
	}

	entities, err := s.ListEntities(ctx, "default")
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 1 {
		t.Errorf("concurrent resolution created %d rows, want 1", len(entities))
	}
}

func TestResolverCacheClearByTenant(t *testing.T) {
	cache := NewResolverCache()
	cache.put(CacheKey("t1", "default", TypePerson, "sarah"), 1)
	cache.put(CacheKey("t2", "default", TypePerson, "sarah"), 2)

	if n := cache.Clear("t1"); n != 1 {
		t.Errorf("Clear removed %d entries, want 1", n)
	}
	if _, ok := cache.get(CacheKey("t2", "default", TypePerson, "sarah")); !ok {
		t.Error("other tenant's entry was dropped")
	}
}

func TestResolveRejectsBadInput(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "default", "Sarah", Type("alien")); err == nil {
		t.Error("unknown type accepted")
	}
	if _, err := r.Resolve(ctx, "default", "   ", TypePerson); err == nil {
		t.Error("blank name accepted")
	}
}
