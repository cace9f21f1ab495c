package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mnemod/internal/cache"
	"mnemod/internal/logging"
	"mnemod/internal/store"
)

// RecallRequest is one ranked retrieval request.
type RecallRequest struct {
	Profile    string   `json:"profile" validate:"required"`
	Query      string   `json:"query" validate:"required,min=1"`
	Categories []string   `json:"categories"`
	Tags       []string   `json:"tags"`
	FileRef    string     `json:"file_ref"`
	Since      *time.Time `json:"since"`
	Until      *time.Time `json:"until"`
	Limit      int        `json:"limit" validate:"gte=0"`
	Offset     int        `json:"offset" validate:"gte=0"`
}

// RecallResult is one scored memory.
type RecallResult struct {
	Memory   *store.Memory `json:"memory"`
	Score    float64       `json:"score"`
	Semantic float64       `json:"semantic"`
	Lexical  float64       `json:"lexical"`
	Recency  float64       `json:"recency"`
	Warning  string        `json:"warning,omitempty"`
}

// RecallPage is one page of results with pagination metadata.
type RecallPage struct {
	Results []RecallResult `json:"results"`
	Total   int            `json:"total"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"has_more"`
}

// Recall retrieves memories ranked by blended semantic and lexical relevance
// scaled by recency decay. A failed goal that matches the query is boosted
// above its natural rank and carries a warning so past mistakes resurface
// before they are repeated. Results are memoized in a TTL cache keyed by the
// full request; any write through this manager clears the cache.
func (m *Manager) Recall(ctx context.Context, req *RecallRequest) (*RecallPage, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Recall")
	defer timer.Stop()

	if err := m.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid recall request: %w", err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = m.cfg.DefaultLimit
	}
	if limit > m.cfg.MaxLimit {
		limit = m.cfg.MaxLimit
	}

	keyParts := []any{req.Profile, req.Query, req.Categories, req.Tags,
		req.FileRef, fmt.Sprint(limit), fmt.Sprint(req.Offset)}
	if req.Since != nil {
		keyParts = append(keyParts, req.Since.UTC().Format(time.RFC3339Nano))
	}
	if req.Until != nil {
		keyParts = append(keyParts, req.Until.UTC().Format(time.RFC3339Nano))
	}
	key := cache.Fingerprint("recall", keyParts...)
	if page, ok := m.recallCache.Get(key); ok {
		logging.MemoryDebug("recall cache hit for %q", req.Query)
		return page, nil
	}

	candidates, err := m.store.SearchMemories(ctx, store.SearchFilters{
		Profile:    req.Profile,
		Categories: req.Categories,
		Tags:       req.Tags,
		FileRef:    req.FileRef,
		Since:      req.Since,
		Until:      req.Until,
	})
	if err != nil {
		return nil, err
	}

	semantic := m.semanticScores(ctx, req.Profile, req.Query)
	queryKeywords := ExtractKeywords(req.Query)
	now := time.Now()

	scored := make([]RecallResult, 0, len(candidates))
	for _, mem := range candidates {
		sem := semantic[mem.ID]
		lex := KeywordOverlap(queryKeywords, ExtractKeywords(mem.Content+" "+mem.Rationale))
		if sem == 0 && lex == 0 {
			continue
		}
		rec := DecayWeight(mem.Categories, mem.Tags, mem.CreatedAt, now)
		score := (m.cfg.SemanticWeight*sem + (1-m.cfg.SemanticWeight)*lex) * rec

		r := RecallResult{Memory: mem, Score: score, Semantic: sem, Lexical: lex, Recency: rec}
		if isFailedGoal(mem) {
			r.Score *= m.cfg.FailedGoalBoost
			r.Warning = fmt.Sprintf("a similar goal previously failed: %s", mem.Outcome)
		}
		scored = append(scored, r)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.ID > scored[j].Memory.ID
	})

	total := len(scored)
	start := req.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := &RecallPage{
		Results: scored[start:end],
		Total:   total,
		Offset:  req.Offset,
		HasMore: end < total,
	}
	m.recallCache.Set(key, page)
	logging.MemoryDebug("recall %q: %d candidates, %d scored, returning %d",
		req.Query, len(candidates), total, len(page.Results))
	return page, nil
}

// semanticScores queries the vector index and maps memory id to similarity.
// Any failure degrades to lexical-only ranking.
func (m *Manager) semanticScores(ctx context.Context, profile, query string) map[int64]float64 {
	if m.engine == nil || m.index == nil {
		return nil
	}
	emb, err := m.engine.Embed(ctx, query)
	if err != nil {
		logging.EmbeddingWarn("recall embed failed, falling back to lexical: %v", err)
		return nil
	}
	hits, err := m.index.Query(ctx, profile, emb, m.cfg.MaxLimit)
	if err != nil {
		logging.EmbeddingWarn("vector query failed, falling back to lexical: %v", err)
		return nil
	}
	scores := make(map[int64]float64, len(hits))
	for _, h := range hits {
		scores[h.MemoryID] = h.Similarity
	}
	return scores
}

// isFailedGoal reports whether the memory is a goal with a recorded failure.
func isFailedGoal(mem *store.Memory) bool {
	return mem.HasCategory(CategoryGoal) && mem.Worked != nil && !*mem.Worked
}

// RecallByEntity returns unarchived memories mentioning an entity named in
// the query path ("sister", "dog", "Sarah"), resolved through the graph.
func (m *Manager) RecallByEntity(ctx context.Context, profile string, path []string) ([]*store.Memory, error) {
	res, err := m.Graph(profile).QueryRelational(ctx, path)
	if err != nil {
		return nil, err
	}
	mems, err := m.store.GetMemories(ctx, res.MemoryIDs, profile)
	if err != nil {
		return nil, err
	}
	sort.Slice(mems, func(i, j int) bool { return mems[i].CreatedAt.After(mems[j].CreatedAt) })
	return mems, nil
}
