package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustInsert(t *testing.T, s *Store, m *Memory) int64 {
	t.Helper()
	id, err := s.InsertMemory(context.Background(), m)
	if err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}
	return id
}

func TestInsertAndGetMemory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, &Memory{
		Profile:    "default",
		Content:    "plays guitar on weekends",
		Rationale:  "stated hobby",
		Categories: []string{"interest"},
		Tags:       []string{"hobby"},
	})

	got, err := s.GetMemory(ctx, id, "default")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.Content != "plays guitar on weekends" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Categories) != 1 || got.Categories[0] != "interest" {
		t.Errorf("categories = %v", got.Categories)
	}
	if got.Worked != nil {
		t.Error("new memory should have no outcome")
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestGetMemoryProfileIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, &Memory{Profile: "alice", Content: "private note", Categories: []string{"fact"}})

	if _, err := s.GetMemory(ctx, id, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-profile get error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetMemory(ctx, id, "alice"); err != nil {
		t.Errorf("same-profile get failed: %v", err)
	}
}

func TestSearchMemoriesFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustInsert(t, s, &Memory{Profile: "p", Content: "a", Categories: []string{"goal"}})
	mustInsert(t, s, &Memory{Profile: "p", Content: "b", Categories: []string{"fact"}, Tags: []string{"work"}})
	mustInsert(t, s, &Memory{Profile: "other", Content: "c", Categories: []string{"goal"}})

	tests := []struct {
		name    string
		filters SearchFilters
		want    int
	}{
		{"profile only", SearchFilters{Profile: "p"}, 2},
		{"by category", SearchFilters{Profile: "p", Categories: []string{"goal"}}, 1},
		{"by tag", SearchFilters{Profile: "p", Tags: []string{"work"}}, 1},
		{"no matches", SearchFilters{Profile: "p", Categories: []string{"emotion"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SearchMemories(ctx, tt.filters)
			if err != nil {
				t.Fatalf("SearchMemories: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d memories, want %d", len(got), tt.want)
			}
		})
	}
}

func TestArchiveHidesFromSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, &Memory{Profile: "p", Content: "old news", Categories: []string{"context"}})

	n, err := s.ArchiveMemories(ctx, []int64{id}, "p")
	if err != nil || n != 1 {
		t.Fatalf("ArchiveMemories = %d, %v", n, err)
	}

	found, err := s.SearchMemories(ctx, SearchFilters{Profile: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Errorf("archived memory still searchable")
	}

	// Still reachable by id.
	got, err := s.GetMemory(ctx, id, "p")
	if err != nil {
		t.Fatalf("archived memory unreachable by id: %v", err)
	}
	if !got.Archived {
		t.Error("archived flag not set")
	}
}

func TestRecordOutcome(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, &Memory{Profile: "p", Content: "try the new route", Categories: []string{"goal"}})

	if err := s.RecordOutcome(ctx, id, "p", "took twice as long", false); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	got, err := s.GetMemory(ctx, id, "p")
	if err != nil {
		t.Fatal(err)
	}
	if got.Worked == nil || *got.Worked {
		t.Error("worked should be false")
	}
	if got.Outcome != "took twice as long" {
		t.Errorf("outcome = %q", got.Outcome)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}

	if err := s.RecordOutcome(ctx, 9999, "p", "x", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id error = %v, want ErrNotFound", err)
	}
	if err := s.RecordOutcome(ctx, id, "other", "x", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-profile outcome error = %v, want ErrNotFound", err)
	}
}

func TestDeleteMemoryRemovesRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, &Memory{Profile: "p", Content: "forget me", Categories: []string{"context"}})
	if err := s.DeleteMemory(ctx, id, "p"); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if _, err := s.GetMemory(ctx, id, "p"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted memory still present: %v", err)
	}
	if err := s.DeleteMemory(ctx, id, "p"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryLinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := mustInsert(t, s, &Memory{Profile: "p", Content: "a", Categories: []string{"fact"}})
	b := mustInsert(t, s, &Memory{Profile: "p", Content: "b", Categories: []string{"fact"}})

	if _, err := s.InsertMemoryLink(ctx, "p", &MemoryLink{
		FromMemoryID: a, ToMemoryID: b, Type: "led_to",
		Description: "a prompted b", Confidence: 0.9,
	}); err != nil {
		t.Fatalf("InsertMemoryLink: %v", err)
	}
	if _, err := s.InsertMemoryLink(ctx, "p", &MemoryLink{FromMemoryID: a, ToMemoryID: 9999, Type: "led_to"}); err == nil {
		t.Error("link to missing memory should fail")
	}
	if _, err := s.InsertMemoryLink(ctx, "p", &MemoryLink{FromMemoryID: a, ToMemoryID: b, Type: ""}); err == nil {
		t.Error("empty link type should fail")
	}

	out, err := s.QueryLinks(ctx, a, DirectionOutgoing, nil)
	if err != nil || len(out) != 1 {
		t.Fatalf("outgoing links = %v, %v", out, err)
	}
	if out[0].Description != "a prompted b" || out[0].Confidence != 0.9 {
		t.Errorf("link metadata lost: %+v", out[0])
	}
	in, err := s.QueryLinks(ctx, b, DirectionIncoming, []string{"led_to"})
	if err != nil || len(in) != 1 {
		t.Fatalf("incoming links = %v, %v", in, err)
	}

	linked, err := s.HasLink(ctx, b, a)
	if err != nil || !linked {
		t.Errorf("HasLink either direction = %v, %v", linked, err)
	}

	n, err := s.DeleteMemoryLink(ctx, a, b, "")
	if err != nil || n != 1 {
		t.Errorf("DeleteMemoryLink = %d, %v", n, err)
	}
}

func TestActiveContextOwnership(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, &Memory{Profile: "alice", Content: "hers", Categories: []string{"fact"}})

	if err := s.AddActiveItem(ctx, "bob", id, "stolen"); !errors.Is(err, ErrForbidden) {
		t.Errorf("cross-profile activate error = %v, want ErrForbidden", err)
	}
	if err := s.AddActiveItem(ctx, "alice", 9999, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing memory activate error = %v, want ErrNotFound", err)
	}
	if err := s.AddActiveItem(ctx, "alice", id, "relevant"); err != nil {
		t.Fatalf("AddActiveItem: %v", err)
	}

	items, err := s.ListActiveItems(ctx, "alice")
	if err != nil || len(items) != 1 {
		t.Fatalf("ListActiveItems = %v, %v", items, err)
	}

	// Removing twice is a no-op.
	for i := 0; i < 2; i++ {
		if err := s.RemoveActiveItem(ctx, "alice", id); err != nil {
			t.Fatalf("RemoveActiveItem pass %d: %v", i, err)
		}
	}
}

func TestRenameProfile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, &Memory{Profile: "default", Content: "note", Categories: []string{"fact"}})
	if err := s.RenameProfile(ctx, "default", "sam"); err != nil {
		t.Fatalf("RenameProfile: %v", err)
	}
	if _, err := s.GetMemory(ctx, id, "default"); !errors.Is(err, ErrNotFound) {
		t.Error("old profile name still resolves")
	}
	if _, err := s.GetMemory(ctx, id, "sam"); err != nil {
		t.Errorf("renamed profile lookup failed: %v", err)
	}
}

func TestUpsertEntityDedup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := &Entity{Profile: "p", Name: "Sarah", QualifiedName: "sarah", Type: "person"}
	id1, created1, err := s.UpsertEntity(ctx, e)
	if err != nil || !created1 {
		t.Fatalf("first upsert = %d, %v, %v", id1, created1, err)
	}
	id2, created2, err := s.UpsertEntity(ctx, e)
	if err != nil || created2 {
		t.Fatalf("second upsert = %d, %v, %v", id2, created2, err)
	}
	if id1 != id2 {
		t.Errorf("duplicate upsert produced new row: %d vs %d", id1, id2)
	}
}

func TestAliasResolution(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _, err := s.UpsertEntity(ctx, &Entity{Profile: "p", Name: "Sarah", QualifiedName: "sarah", Type: "person"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertAlias(ctx, &EntityAlias{Profile: "p", EntityID: id, Alias: "sister", AliasType: "relationship"}); err != nil {
		t.Fatalf("InsertAlias: %v", err)
	}

	got, err := s.ResolveAlias(ctx, "p", "sister")
	if err != nil || got != id {
		t.Errorf("ResolveAlias = %d, %v, want %d", got, err, id)
	}
	if _, err := s.ResolveAlias(ctx, "p", "brother"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown alias error = %v, want ErrNotFound", err)
	}
	if _, err := s.ResolveAlias(ctx, "other", "sister"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-profile alias error = %v, want ErrNotFound", err)
	}
}

func TestCommunitiesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	builtAt, err := s.CommunitiesBuiltAt(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	if !builtAt.IsZero() {
		t.Error("empty profile should report zero built time")
	}

	now := time.Now()
	err = s.ReplaceCommunities(ctx, "p", []*Community{
		{Profile: "p", Level: 0, Label: "hobbies", MemberIDs: []int64{1, 2, 3}, BuiltAt: now},
		{Profile: "p", Level: 0, Label: "work", MemberIDs: []int64{4}, BuiltAt: now},
	})
	if err != nil {
		t.Fatalf("ReplaceCommunities: %v", err)
	}

	got, err := s.ListCommunities(ctx, "p", -1)
	if err != nil || len(got) != 2 {
		t.Fatalf("ListCommunities = %d, %v", len(got), err)
	}

	// Replace drops the old snapshot entirely.
	if err := s.ReplaceCommunities(ctx, "p", nil); err != nil {
		t.Fatal(err)
	}
	got, err = s.ListCommunities(ctx, "p", -1)
	if err != nil || len(got) != 0 {
		t.Errorf("snapshot not replaced: %d, %v", len(got), err)
	}
}

func TestDreamSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ended := time.Now()
	sess := &DreamSession{
		ID:            "abc-123",
		Profile:       "p",
		StartedAt:     ended.Add(-time.Minute),
		EndedAt:       &ended,
		StrategiesRun: []string{"connection_discovery"},
		InsightCount:  2,
		Summary:       "connection_discovery: 2",
	}
	if err := s.SaveDreamSession(ctx, sess); err != nil {
		t.Fatalf("SaveDreamSession: %v", err)
	}

	got, err := s.ListDreamSessions(ctx, "p", 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListDreamSessions = %d, %v", len(got), err)
	}
	if got[0].InsightCount != 2 || got[0].Interrupted {
		t.Errorf("session round trip mismatch: %+v", got[0])
	}
}
