package graph

import (
	"context"
	"path/filepath"
	"testing"

	"mnemod/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertMemory(t *testing.T, s *store.Store, profile, content string) int64 {
	t.Helper()
	id, err := s.InsertMemory(context.Background(), &store.Memory{
		Profile: profile, Content: content, Categories: []string{"fact"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func insertEntity(t *testing.T, s *store.Store, profile, name, qualified, typ string) int64 {
	t.Helper()
	id, _, err := s.UpsertEntity(context.Background(), &store.Entity{
		Profile: profile, Name: name, QualifiedName: qualified, Type: typ,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func refEntity(t *testing.T, s *store.Store, memID, entID int64) {
	t.Helper()
	err := s.InsertMemoryEntityRef(context.Background(), &store.MemoryEntityRef{
		MemoryID: memID, EntityID: entID,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMirrorLoadsNodesAndEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mem := insertMemory(t, s, "p", "Sarah got a promotion")
	sarah := insertEntity(t, s, "p", "Sarah", "sarah", "person")
	refEntity(t, s, mem, sarah)

	g := NewMirror(s, "p")
	stats, err := g.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EntityNodes != 1 || stats.MemoryNodes != 1 || stats.ReferenceEdge != 1 {
		t.Errorf("unexpected shape: %+v", stats)
	}

	ids, err := g.MemoriesForEntity(ctx, sarah)
	if err != nil || len(ids) != 1 || ids[0] != mem {
		t.Errorf("MemoriesForEntity = %v, %v", ids, err)
	}
}

func TestMirrorSkipsDanglingEntityEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sarah := insertEntity(t, s, "p", "Sarah", "sarah", "person")
	other := insertEntity(t, s, "other_profile", "Tom", "tom", "person")

	// Edge referencing an entity from another profile never enters p's mirror.
	_, err := s.InsertEntityRelationship(ctx, &store.EntityRelationship{
		Profile: "p", FromEntityID: sarah, ToEntityID: other, Type: "knows",
	})
	if err != nil {
		t.Fatal(err)
	}

	g := NewMirror(s, "p")
	stats, err := g.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.EntityEdges != 0 {
		t.Errorf("dangling entity edge entered the mirror: %+v", stats)
	}
}

func TestMirrorInvalidateReloads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := NewMirror(s, "p")
	stats, err := g.Stats(ctx)
	if err != nil || stats.Nodes != 0 {
		t.Fatalf("empty mirror: %+v, %v", stats, err)
	}

	insertMemory(t, s, "p", "new information")

	// Stale mirror still reports the old shape.
	stats, _ = g.Stats(ctx)
	if stats.Nodes != 0 {
		t.Error("mirror reloaded without invalidation")
	}

	g.Invalidate()
	stats, _ = g.Stats(ctx)
	// Memory nodes only appear through refs or links; a bare memory has no
	// edges so the mirror stays empty. Add a ref to make it visible.
	ent := insertEntity(t, s, "p", "Thing", "thing", "concept")
	mems, err := s.SearchMemories(ctx, store.SearchFilters{Profile: "p"})
	if err != nil || len(mems) != 1 {
		t.Fatal(err)
	}
	refEntity(t, s, mems[0].ID, ent)

	g.Invalidate()
	stats, _ = g.Stats(ctx)
	if stats.MemoryNodes != 1 || stats.EntityNodes != 1 {
		t.Errorf("mirror did not pick up new rows: %+v", stats)
	}
}

func TestRelatedMemoriesBFS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := insertMemory(t, s, "p", "a")
	b := insertMemory(t, s, "p", "b")
	c := insertMemory(t, s, "p", "c")
	link := func(from, to int64) {
		if _, err := s.InsertMemoryLink(ctx, "p", &store.MemoryLink{
			FromMemoryID: from, ToMemoryID: to, Type: "led_to", Confidence: 1,
		}); err != nil {
			t.Fatal(err)
		}
	}
	link(a, b)
	link(b, c)

	g := NewMirror(s, "p")
	got, err := g.RelatedMemories(ctx, a, 2, DirBoth)
	if err != nil {
		t.Fatalf("RelatedMemories: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d related, want 2: %v", len(got), got)
	}
	if got[0].MemoryID != b || got[0].Depth != 1 {
		t.Errorf("first hop = %+v, want memory %d at depth 1", got[0], b)
	}
	if got[1].MemoryID != c || got[1].Depth != 2 {
		t.Errorf("second hop = %+v, want memory %d at depth 2", got[1], c)
	}

	// Depth 1 stops before c.
	got, _ = g.RelatedMemories(ctx, a, 1, DirBoth)
	if len(got) != 1 {
		t.Errorf("depth 1 returned %d, want 1", len(got))
	}
}

func TestTraceChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := insertMemory(t, s, "p", "a")
	b := insertMemory(t, s, "p", "b")
	c := insertMemory(t, s, "p", "c")
	d := insertMemory(t, s, "p", "unconnected")
	for _, pair := range [][2]int64{{a, b}, {b, c}} {
		if _, err := s.InsertMemoryLink(ctx, "p", &store.MemoryLink{
			FromMemoryID: pair[0], ToMemoryID: pair[1], Type: "led_to", Confidence: 1,
		}); err != nil {
			t.Fatal(err)
		}
	}

	g := NewMirror(s, "p")
	steps, err := g.TraceChain(ctx, a, c)
	if err != nil {
		t.Fatalf("TraceChain: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("chain length = %d, want 2", len(steps))
	}

	steps, err = g.TraceChain(ctx, a, d)
	if err != nil || steps != nil {
		t.Errorf("unconnected chain = %v, %v, want nil, nil", steps, err)
	}
}

func TestQueryRelationalScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "my sister Sarah" and "my dog Max" each mentioned in their own memory.
	sarahMem := insertMemory(t, s, "p", "my sister Sarah is visiting")
	maxMem := insertMemory(t, s, "p", "my dog Max chewed the couch")
	sarah := insertEntity(t, s, "p", "Sarah", "sarah", "person")
	max := insertEntity(t, s, "p", "Max", "max", "pet")
	refEntity(t, s, sarahMem, sarah)
	refEntity(t, s, maxMem, max)

	g := NewMirror(s, "p")

	tests := []struct {
		name    string
		path    []string
		wantMem int64
	}{
		{"pet word finds the dog", []string{"dog"}, maxMem},
		{"exact name", []string{"Sarah"}, sarahMem},
		{"type word", []string{"person"}, sarahMem},
		{"substring", []string{"sar"}, sarahMem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := g.QueryRelational(ctx, tt.path)
			if err != nil {
				t.Fatalf("QueryRelational(%v): %v", tt.path, err)
			}
			if len(res.MemoryIDs) != 1 || res.MemoryIDs[0] != tt.wantMem {
				t.Errorf("memories = %v, want [%d]", res.MemoryIDs, tt.wantMem)
			}
		})
	}

	if _, err := g.QueryRelational(ctx, []string{"unicorn"}); err == nil {
		t.Error("unmatched step should fail the query")
	}
	if _, err := g.QueryRelational(ctx, nil); err == nil {
		t.Error("empty path should fail")
	}
}

func TestQueryRelationalFollowsAliases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Sarah is known as "sister"; her dog Max lives in its own memory. The
	// two entities are adjacent through an ownership edge.
	sarahMem := insertMemory(t, s, "p", "Sarah is visiting next week")
	maxMem := insertMemory(t, s, "p", "Max chewed the couch again")
	sarah := insertEntity(t, s, "p", "Sarah", "sarah", "person")
	max := insertEntity(t, s, "p", "Max", "max", "pet")
	refEntity(t, s, sarahMem, sarah)
	refEntity(t, s, maxMem, max)
	if err := s.InsertAlias(ctx, &store.EntityAlias{
		Profile: "p", EntityID: sarah, Alias: "sister", AliasType: "relationship",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertEntityRelationship(ctx, &store.EntityRelationship{
		Profile: "p", FromEntityID: sarah, ToEntityID: max, Type: "owns",
	}); err != nil {
		t.Fatal(err)
	}

	g := NewMirror(s, "p")

	// The possessive form resolves through the alias table, then the pet
	// word narrows within Sarah's neighborhood.
	res, err := g.QueryRelational(ctx, []string{"my sister", "dog"})
	if err != nil {
		t.Fatalf("QueryRelational: %v", err)
	}
	if res.Entity == nil || res.Entity.ID != max {
		t.Fatalf("final entity = %+v, want Max (%d)", res.Entity, max)
	}
	if len(res.MemoryIDs) != 1 || res.MemoryIDs[0] != maxMem {
		t.Errorf("memories = %v, want [%d]", res.MemoryIDs, maxMem)
	}
	if len(res.Path) != 2 || res.Path[0].ID != sarah || res.Path[1].ID != max {
		t.Errorf("path = %v, want [Sarah Max]", res.Path)
	}

	// A failed hop still reports how far the walk got.
	res, err = g.QueryRelational(ctx, []string{"my sister", "unicorn"})
	if err == nil {
		t.Fatal("unmatched second step should fail the query")
	}
	if res == nil || len(res.Path) != 1 || res.Path[0].ID != sarah {
		t.Errorf("partial path = %+v, want just Sarah", res)
	}
	if res.Entity != nil {
		t.Errorf("failed query resolved an entity: %+v", res.Entity)
	}
}

func TestEvolutionChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1 := insertMemory(t, s, "p", "lives in Austin")
	v2 := insertMemory(t, s, "p", "moved to Denver")
	v3 := insertMemory(t, s, "p", "moved to Seattle")
	for _, pair := range [][2]int64{{v2, v1}, {v3, v2}} {
		if _, err := s.InsertMemoryLink(ctx, "p", &store.MemoryLink{
			FromMemoryID: pair[0], ToMemoryID: pair[1], Type: "supersedes", Confidence: 1,
		}); err != nil {
			t.Fatal(err)
		}
	}

	g := NewMirror(s, "p")
	chain, err := g.Evolution(ctx, v2)
	if err != nil {
		t.Fatalf("Evolution: %v", err)
	}
	want := []int64{v1, v2, v3}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %d, want %d", i, chain[i], want[i])
		}
	}
}
