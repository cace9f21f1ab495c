// Package community clusters a profile's memories into topical groups by
// label propagation over the knowledge graph. Communities are rebuilt
// during dream sessions and persisted; queries read the stored snapshot.
package community

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mnemod/internal/graph"
	"mnemod/internal/logging"
	"mnemod/internal/store"
)

// Partitioner splits a set of memory nodes into communities given their
// adjacency.
type Partitioner interface {
	Partition(nodes []int64, adjacency map[int64][]int64) [][]int64
}

// LabelPropagation is a deterministic label propagation partitioner. Nodes
// adopt the smallest most-frequent label among their neighbors; iteration
// order is sorted so repeated runs on the same graph produce the same
// communities.
//
// Resolution is the neighbor support a label needs before a node adopts it:
// at 1.0 any neighbor label can spread, and raising it demands denser
// agreement, splitting the graph into smaller communities. MinCommunitySize
// drops groups below the threshold from the result entirely.
type LabelPropagation struct {
	MaxIterations    int
	Resolution       float64
	MinCommunitySize int
}

// NewLabelPropagation creates the partitioner with the default iteration
// cap, a resolution of 1.0, and no minimum community size.
func NewLabelPropagation() *LabelPropagation {
	return &LabelPropagation{MaxIterations: 20, Resolution: 1.0, MinCommunitySize: 1}
}

// Partition assigns every node a community. Isolated nodes come back as
// singleton communities, subject to the minimum size.
func (lp *LabelPropagation) Partition(nodes []int64, adjacency map[int64][]int64) [][]int64 {
	if len(nodes) == 0 {
		return nil
	}
	sorted := append([]int64(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	labels := make(map[int64]int64, len(sorted))
	for _, n := range sorted {
		labels[n] = n
	}

	maxIter := lp.MaxIterations
	if maxIter <= 0 {
		maxIter = 20
	}
	resolution := lp.Resolution
	if resolution <= 0 {
		resolution = 1.0
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for _, n := range sorted {
			neighbors := adjacency[n]
			if len(neighbors) == 0 {
				continue
			}
			counts := make(map[int64]int, len(neighbors))
			for _, nb := range neighbors {
				counts[labels[nb]]++
			}
			// Highest count wins; ties break toward the smallest label.
			best := labels[n]
			bestCount := 0
			for label, c := range counts {
				if c > bestCount || (c == bestCount && label < best) {
					best, bestCount = label, c
				}
			}
			if float64(bestCount) < resolution {
				continue
			}
			if best != labels[n] {
				labels[n] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	groups := make(map[int64][]int64)
	for _, n := range sorted {
		groups[labels[n]] = append(groups[labels[n]], n)
	}
	labelsSorted := make([]int64, 0, len(groups))
	for l := range groups {
		labelsSorted = append(labelsSorted, l)
	}
	sort.Slice(labelsSorted, func(i, j int) bool { return labelsSorted[i] < labelsSorted[j] })

	minSize := lp.MinCommunitySize
	if minSize < 1 {
		minSize = 1
	}
	out := make([][]int64, 0, len(groups))
	for _, l := range labelsSorted {
		if len(groups[l]) < minSize {
			continue
		}
		out = append(out, groups[l])
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Manager builds and persists community snapshots for one tenant.
type Manager struct {
	store       *store.Store
	partitioner Partitioner
	staleness   time.Duration
}

// NewManager creates a community manager. staleness controls how old a
// snapshot may get before Rebuild considers it due.
func NewManager(s *store.Store, p Partitioner, staleness time.Duration) *Manager {
	if p == nil {
		p = NewLabelPropagation()
	}
	if staleness <= 0 {
		staleness = 24 * time.Hour
	}
	return &Manager{store: s, partitioner: p, staleness: staleness}
}

// Stale reports whether the profile's snapshot is older than the staleness
// window. A profile with no snapshot at all is stale.
func (m *Manager) Stale(ctx context.Context, profile string) (bool, error) {
	builtAt, err := m.store.CommunitiesBuiltAt(ctx, profile)
	if err != nil {
		return false, err
	}
	if builtAt.IsZero() {
		return true, nil
	}
	return time.Since(builtAt) > m.staleness, nil
}

// Rebuild partitions the profile's memory graph and replaces the stored
// snapshot. Memories are adjacent when they share an entity or are linked
// directly. Returns the number of communities found.
func (m *Manager) Rebuild(ctx context.Context, profile string, g *graph.Mirror) (int, error) {
	timer := logging.StartTimer(logging.CategoryCommunity, "Rebuild")
	defer timer.Stop()

	if err := g.Reload(ctx); err != nil {
		return 0, err
	}
	stats, err := g.Stats(ctx)
	if err != nil {
		return 0, err
	}
	if stats.MemoryNodes == 0 {
		return 0, m.store.ReplaceCommunities(ctx, profile, nil)
	}

	nodes, adjacency, err := m.memoryAdjacency(ctx, profile, g)
	if err != nil {
		return 0, err
	}

	groups := m.partitioner.Partition(nodes, adjacency)
	built := time.Now()
	communities := make([]*store.Community, 0, len(groups))
	for _, members := range groups {
		label, err := m.labelFor(ctx, profile, members)
		if err != nil {
			return 0, err
		}
		communities = append(communities, &store.Community{
			Profile:   profile,
			Level:     0,
			Label:     label,
			MemberIDs: members,
			BuiltAt:   built,
		})
	}

	if err := m.store.ReplaceCommunities(ctx, profile, communities); err != nil {
		return 0, err
	}
	logging.Community("rebuilt %d communities over %d memories for %s",
		len(communities), len(nodes), profile)
	return len(communities), nil
}

// memoryAdjacency projects the mirror onto memory nodes only: direct links
// plus shared-entity co-mentions.
func (m *Manager) memoryAdjacency(ctx context.Context, profile string, g *graph.Mirror) ([]int64, map[int64][]int64, error) {
	all, err := m.store.SearchMemories(ctx, store.SearchFilters{Profile: profile})
	if err != nil {
		return nil, nil, err
	}

	nodes := make([]int64, 0, len(all))
	adjacency := make(map[int64][]int64, len(all))
	addEdge := func(a, b int64) {
		adjacency[a] = append(adjacency[a], b)
		adjacency[b] = append(adjacency[b], a)
	}

	for _, mem := range all {
		nodes = append(nodes, mem.ID)
	}

	links, err := m.store.ListMemoryLinks(ctx, profile)
	if err != nil {
		return nil, nil, err
	}
	for _, l := range links {
		addEdge(l.FromMemoryID, l.ToMemoryID)
	}

	// Co-mention edges: every pair of memories referencing the same entity.
	entities, err := g.Entities(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entities {
		ids, err := g.MemoriesForEntity(ctx, e.ID)
		if err != nil {
			return nil, nil, err
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				addEdge(ids[i], ids[j])
			}
		}
	}
	return nodes, adjacency, nil
}

// labelFor names a community by its most common category, falling back to a
// size description.
func (m *Manager) labelFor(ctx context.Context, profile string, members []int64) (string, error) {
	mems, err := m.store.GetMemories(ctx, members, profile)
	if err != nil {
		return "", err
	}
	counts := make(map[string]int)
	for _, mem := range mems {
		for _, c := range mem.Categories {
			counts[c]++
		}
	}
	best := ""
	bestCount := 0
	for c, n := range counts {
		if n > bestCount || (n == bestCount && c < best) {
			best, bestCount = c, n
		}
	}
	if best == "" {
		return fmt.Sprintf("cluster of %d", len(members)), nil
	}
	return fmt.Sprintf("%s (%d memories)", best, len(members)), nil
}

// List returns the stored snapshot.
func (m *Manager) List(ctx context.Context, profile string) ([]*store.Community, error) {
	return m.store.ListCommunities(ctx, profile, -1)
}
