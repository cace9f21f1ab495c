package graph

import (
	"context"
	"sort"
)

// RelatedMemory is one memory reached by traversal, with the hop count from
// the start and the edge type that led to it.
type RelatedMemory struct {
	MemoryID int64
	Depth    int
	Via      string
}

// RelatedMemories walks memory-to-memory links breadth-first from a starting
// memory, up to maxDepth hops, following the given direction. The start
// itself is not returned.
func (g *Mirror) RelatedMemories(ctx context.Context, memoryID int64, maxDepth int, dir Direction) ([]RelatedMemory, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if err := g.EnsureLoaded(ctx); err != nil {
		return nil, err
	}

	start := MemoryNode(memoryID)
	seen := map[string]bool{start: true}
	type frame struct {
		node  string
		depth int
		via   string
	}
	queue := []frame{{node: start}}
	var out []RelatedMemory

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		edges, err := g.Neighbors(ctx, cur.node, dir)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if e.Kind != EdgeRelationship {
				continue
			}
			next := e.To
			if next == cur.node {
				next = e.From
			}
			if seen[next] {
				continue
			}
			seen[next] = true
			id, ok := parseNode(next, memoryPrefix)
			if !ok {
				continue
			}
			out = append(out, RelatedMemory{MemoryID: id, Depth: cur.depth + 1, Via: e.Type})
			queue = append(queue, frame{node: next, depth: cur.depth + 1, via: e.Type})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].MemoryID < out[j].MemoryID
	})
	return out, nil
}

// ChainStep is one hop in a traced chain between two memories.
type ChainStep struct {
	FromMemoryID int64
	ToMemoryID   int64
	Type         string
}

// TraceChain finds the shortest link path between two memories, following
// edges in either direction. It returns nil with no error when the memories
// are not connected.
func (g *Mirror) TraceChain(ctx context.Context, fromID, toID int64) ([]ChainStep, error) {
	if err := g.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, nil
	}

	start := MemoryNode(fromID)
	goal := MemoryNode(toID)
	prev := map[string]Edge{}
	seen := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == goal {
			break
		}
		edges, err := g.Neighbors(ctx, cur, DirBoth)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if e.Kind != EdgeRelationship {
				continue
			}
			next := e.To
			if next == cur {
				next = e.From
			}
			if seen[next] {
				continue
			}
			seen[next] = true
			prev[next] = e
			queue = append(queue, next)
		}
	}

	if !seen[goal] {
		return nil, nil
	}

	// Walk back from the goal and reverse.
	var steps []ChainStep
	cur := goal
	for cur != start {
		e := prev[cur]
		other := e.From
		if other == cur {
			other = e.To
		}
		fromMem, _ := parseNode(other, memoryPrefix)
		toMem, _ := parseNode(cur, memoryPrefix)
		steps = append(steps, ChainStep{FromMemoryID: fromMem, ToMemoryID: toMem, Type: e.Type})
		cur = other
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps, nil
}

// Evolution returns the chain of memories that superseded or updated the
// given one, oldest first, ending at the memory itself and continuing
// through anything that later superseded it.
func (g *Mirror) Evolution(ctx context.Context, memoryID int64) ([]int64, error) {
	if err := g.EnsureLoaded(ctx); err != nil {
		return nil, err
	}

	isEvolution := func(t string) bool {
		return t == "supersedes" || t == "updates"
	}

	var chain []int64
	seen := map[int64]bool{memoryID: true}

	// Evolution edges point newer -> older, so outgoing edges lead to
	// predecessors and incoming edges to successors.
	for cur := memoryID; ; {
		edges, err := g.Neighbors(ctx, MemoryNode(cur), DirOut)
		if err != nil {
			return nil, err
		}
		next := int64(0)
		for _, e := range edges {
			if e.Kind != EdgeRelationship || !isEvolution(e.Type) {
				continue
			}
			if id, ok := parseNode(e.To, memoryPrefix); ok && !seen[id] {
				next = id
				break
			}
		}
		if next == 0 {
			break
		}
		seen[next] = true
		chain = append(chain, next)
		cur = next
	}

	// chain currently holds predecessors newest-first; reverse to oldest-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	chain = append(chain, memoryID)

	// Successors: follow incoming evolution edges (something newer points here).
	for cur := memoryID; ; {
		edges, err := g.Neighbors(ctx, MemoryNode(cur), DirIn)
		if err != nil {
			return nil, err
		}
		next := int64(0)
		for _, e := range edges {
			if e.Kind != EdgeRelationship || !isEvolution(e.Type) {
				continue
			}
			if id, ok := parseNode(e.From, memoryPrefix); ok && !seen[id] {
				next = id
				break
			}
		}
		if next == 0 {
			break
		}
		seen[next] = true
		chain = append(chain, next)
		cur = next
	}

	return chain, nil
}

// Metrics summarizes the mirror's shape.
type Metrics struct {
	Nodes         int `json:"nodes"`
	MemoryNodes   int `json:"memory_nodes"`
	EntityNodes   int `json:"entity_nodes"`
	ReferenceEdge int `json:"reference_edges"`
	MemoryEdges   int `json:"memory_edges"`
	EntityEdges   int `json:"entity_edges"`
}

// Stats computes mirror metrics, loading it if needed.
func (g *Mirror) Stats(ctx context.Context) (Metrics, error) {
	if err := g.EnsureLoaded(ctx); err != nil {
		return Metrics{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	var m Metrics
	m.Nodes = len(g.nodes)
	for node := range g.nodes {
		if _, ok := parseNode(node, memoryPrefix); ok {
			m.MemoryNodes++
		} else {
			m.EntityNodes++
		}
	}
	for _, edges := range g.out {
		for _, e := range edges {
			switch e.Kind {
			case EdgeReferences:
				m.ReferenceEdge++
			case EdgeRelationship:
				m.MemoryEdges++
			case EdgeEntityRelationship:
				m.EntityEdges++
			}
		}
	}
	return m, nil
}
