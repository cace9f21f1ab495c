// Package memory implements the remember/recall engine: validation,
// categorization, embedding, entity processing, ranked recall, compaction,
// and forgetting.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"mnemod/internal/cache"
	"mnemod/internal/config"
	"mnemod/internal/detect"
	"mnemod/internal/entity"
	"mnemod/internal/graph"
	"mnemod/internal/logging"
	"mnemod/internal/store"
	"mnemod/internal/vector"
)

// Confidence thresholds for the auto-detection path.
const (
	autoStoreConfidence   = 0.95
	autoSuggestConfidence = 0.70
	duplicateSimilarity   = 0.85
)

// Manager is the memory engine for one tenant. Profiles within the tenant
// share the store but are fully isolated at the query level.
type Manager struct {
	store    *store.Store
	engine   vector.Engine
	index    *vector.Index
	entities *entity.Manager
	detector *detect.Pipeline
	cfg      config.RecallConfig
	validate *validator.Validate

	recallCache *cache.TTLCache[uint64, *RecallPage]

	mu      sync.Mutex
	mirrors map[string]*graph.Mirror
}

// NewManager wires the engine over one tenant's store. engine may be nil
// (provider "none"); recall then ranks on lexical overlap and recency alone.
func NewManager(s *store.Store, engine vector.Engine, index *vector.Index, entities *entity.Manager, cfg config.RecallConfig, cacheTTL time.Duration) *Manager {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	return &Manager{
		store:       s,
		engine:      engine,
		index:       index,
		entities:    entities,
		detector:    detect.NewPipeline(),
		cfg:         cfg,
		validate:    validator.New(),
		recallCache: cache.NewTTL[uint64, *RecallPage](cacheTTL, cfg.CacheEntries),
		mirrors:     make(map[string]*graph.Mirror),
	}
}

// Graph returns the profile's graph mirror, creating it on first use.
func (m *Manager) Graph(profile string) *graph.Mirror {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.mirrors[profile]
	if !ok {
		g = graph.NewMirror(m.store, profile)
		m.mirrors[profile] = g
	}
	return g
}

// RememberRequest is one explicit store request.
type RememberRequest struct {
	Profile    string   `json:"profile" validate:"required"`
	Content    string   `json:"content" validate:"required,min=1"`
	Rationale  string   `json:"rationale"`
	Categories []string `json:"categories" validate:"required,min=1"`
	Tags       []string `json:"tags"`
	FileRef    string   `json:"file_ref"`
}

// RememberResult reports what was stored.
type RememberResult struct {
	MemoryID  int64    `json:"memory_id"`
	Permanent bool     `json:"permanent"`
	Indexed   bool     `json:"indexed"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Remember validates and stores one memory, runs the entity pipeline, and
// indexes the content for semantic recall. An embedding failure degrades to
// lexical-only recall for this memory rather than failing the store.
func (m *Manager) Remember(ctx context.Context, req *RememberRequest) (*RememberResult, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Remember")
	defer timer.Stop()

	if err := m.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid remember request: %w", err)
	}
	cats := NormalizeCategories(req.Categories)
	if err := CheckCategories(cats); err != nil {
		return nil, err
	}

	mem := &store.Memory{
		Profile:    req.Profile,
		Content:    strings.TrimSpace(req.Content),
		Rationale:  strings.TrimSpace(req.Rationale),
		Categories: cats,
		Tags:       req.Tags,
		FileRef:    req.FileRef,
		Permanent:  IsPermanent(cats),
	}
	id, err := m.store.InsertMemory(ctx, mem)
	if err != nil {
		return nil, err
	}

	res := &RememberResult{MemoryID: id, Permanent: mem.Permanent}
	res.Indexed = m.indexMemory(ctx, req.Profile, id, mem.Content, res)

	if err := m.entities.ProcessMemory(ctx, req.Profile, id, mem.Content, mem.Rationale); err != nil {
		// Entity extraction is enrichment; the memory is already stored.
		logging.MemoryWarn("entity pipeline failed for memory %d: %v", id, err)
		res.Warnings = append(res.Warnings, "entity extraction failed")
	}

	m.invalidate(req.Profile)
	logging.Memory("remembered %d (%s) for %s", id, strings.Join(cats, ","), req.Profile)
	logging.RecordAudit(logging.AuditEvent{
		Event: logging.AuditMemoryStore, Profile: req.Profile,
		Target: fmt.Sprintf("memory:%d", id), Success: true,
	})
	return res, nil
}

// RememberBatch stores several memories in order. It stops at the first
// validation error but keeps everything stored before it.
func (m *Manager) RememberBatch(ctx context.Context, reqs []*RememberRequest) ([]*RememberResult, error) {
	results := make([]*RememberResult, 0, len(reqs))
	for i, req := range reqs {
		res, err := m.Remember(ctx, req)
		if err != nil {
			return results, fmt.Errorf("batch item %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Suggestion is a detected signal worth storing that did not clear the
// auto-store threshold.
type Suggestion struct {
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// ObserveResult reports what the auto-detection path did with a message.
type ObserveResult struct {
	StoredIDs   []int64      `json:"stored_ids,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Observe runs auto-detection over a conversational message. Signals at or
// above the store threshold are written with the "auto" tag; signals above
// the suggest threshold are returned for the caller to confirm; the rest are
// dropped. A near-duplicate of an indexed memory is skipped; if the
// duplicate probe itself fails the signal is stored anyway.
func (m *Manager) Observe(ctx context.Context, profile, text string) (*ObserveResult, error) {
	signals := m.detector.Run(text)
	res := &ObserveResult{}

	// An emotion signal riding along with another signal enriches it rather
	// than standing alone.
	var emotion *detect.Signal
	for i := range signals {
		if signals[i].Category == CategoryEmotion && len(signals) > 1 {
			emotion = &signals[i]
		}
	}

	for _, sig := range signals {
		if emotion != nil && sig.Detector == emotion.Detector {
			continue
		}
		switch {
		case sig.Confidence >= autoStoreConfidence:
			dup, err := m.isDuplicate(ctx, profile, sig.Content)
			if err != nil {
				logging.MemoryDebug("duplicate probe failed, storing anyway: %v", err)
			}
			if dup {
				logging.MemoryDebug("skipping near-duplicate signal: %.40s", sig.Content)
				continue
			}
			cats := []string{sig.Category}
			tags := []string{autoTag}
			if emotion != nil {
				polarity := "positive"
				if emotion.Valence < 0 {
					polarity = "negative"
				}
				cats = append(cats, CategoryEmotion)
				tags = append(tags, "emotion:"+polarity,
					fmt.Sprintf("valence:%.2f", emotion.Valence))
			}
			stored, err := m.Remember(ctx, &RememberRequest{
				Profile:    profile,
				Content:    sig.Content,
				Rationale:  fmt.Sprintf("detected by %s classifier", sig.Detector),
				Categories: cats,
				Tags:       tags,
			})
			if err != nil {
				return res, err
			}
			res.StoredIDs = append(res.StoredIDs, stored.MemoryID)
		case sig.Confidence >= autoSuggestConfidence:
			res.Suggestions = append(res.Suggestions, Suggestion{
				Content:    sig.Content,
				Category:   sig.Category,
				Confidence: sig.Confidence,
			})
		}
	}
	return res, nil
}

// isDuplicate probes the vector index for a near-identical memory.
func (m *Manager) isDuplicate(ctx context.Context, profile, content string) (bool, error) {
	if m.engine == nil || m.index == nil {
		return false, nil
	}
	emb, err := m.engine.Embed(ctx, content)
	if err != nil {
		return false, err
	}
	hits, err := m.index.Query(ctx, profile, emb, 1)
	if err != nil {
		return false, err
	}
	return len(hits) > 0 && hits[0].Similarity >= duplicateSimilarity, nil
}

// indexMemory embeds and indexes content, reporting warnings on the result.
func (m *Manager) indexMemory(ctx context.Context, profile string, id int64, content string, res *RememberResult) bool {
	if m.engine == nil || m.index == nil {
		return false
	}
	emb, err := m.engine.Embed(ctx, content)
	if err != nil {
		if errors.Is(err, vector.ErrUnavailable) {
			logging.EmbeddingWarn("embedding unavailable, memory %d stored without vector", id)
		} else {
			logging.EmbeddingWarn("embed failed for memory %d: %v", id, err)
		}
		res.Warnings = append(res.Warnings, "stored without embedding")
		return false
	}
	if err := m.index.Add(ctx, profile, id, content, emb); err != nil {
		logging.EmbeddingWarn("index add failed for memory %d: %v", id, err)
		res.Warnings = append(res.Warnings, "stored without embedding")
		return false
	}
	return true
}

// OutcomeResult reports a recorded outcome and any follow-up suggestion.
type OutcomeResult struct {
	MemoryID   int64  `json:"memory_id"`
	Worked     bool   `json:"worked"`
	Suggestion string `json:"suggestion,omitempty"`
}

// RecordOutcome marks a decision memory as resolved. A failed outcome comes
// back with a suggestion to store a concern so the failure influences future
// recall.
func (m *Manager) RecordOutcome(ctx context.Context, profile string, memoryID int64, outcome string, worked bool) (*OutcomeResult, error) {
	if strings.TrimSpace(outcome) == "" {
		return nil, fmt.Errorf("outcome cannot be empty")
	}
	if err := m.store.RecordOutcome(ctx, memoryID, profile, outcome, worked); err != nil {
		return nil, err
	}
	m.invalidate(profile)

	res := &OutcomeResult{MemoryID: memoryID, Worked: worked}
	if !worked {
		res.Suggestion = "consider storing a concern memory describing why this did not work"
	}
	logging.Memory("outcome recorded for %d: worked=%v", memoryID, worked)
	logging.RecordAudit(logging.AuditEvent{
		Event: logging.AuditOutcome, Profile: profile,
		Target: fmt.Sprintf("memory:%d", memoryID), Success: true,
		Fields: map[string]any{"worked": worked},
	})
	return res, nil
}

// TextSearchResult is one lexical full-text hit.
type TextSearchResult struct {
	Memory  *store.Memory `json:"memory"`
	Excerpt string        `json:"excerpt,omitempty"`
}

// SearchText runs a full-text query with optional highlighted excerpts.
func (m *Manager) SearchText(ctx context.Context, profile, query string, highlight bool, limit int) ([]TextSearchResult, error) {
	if limit <= 0 {
		limit = m.cfg.DefaultLimit
	}
	hits, err := m.store.FTSSearch(ctx, profile, query, highlight, "<b>", "</b>", limit)
	if err != nil {
		return nil, err
	}
	out := make([]TextSearchResult, 0, len(hits))
	for _, h := range hits {
		mem, err := m.store.GetMemory(ctx, h.MemoryID, profile)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, TextSearchResult{Memory: mem, Excerpt: h.Excerpt})
	}
	return out, nil
}

// Activate pins a memory into the profile's working set.
func (m *Manager) Activate(ctx context.Context, profile string, memoryID int64, reason string) error {
	return m.store.AddActiveItem(ctx, profile, memoryID, reason)
}

// Deactivate removes a memory from the working set.
func (m *Manager) Deactivate(ctx context.Context, profile string, memoryID int64) error {
	return m.store.RemoveActiveItem(ctx, profile, memoryID)
}

// ActiveItems lists the working set with the full memory rows.
func (m *Manager) ActiveItems(ctx context.Context, profile string) ([]*store.Memory, error) {
	items, err := m.store.ListActiveItems(ctx, profile)
	if err != nil {
		return nil, err
	}
	out := make([]*store.Memory, 0, len(items))
	for _, it := range items {
		mem, err := m.store.GetMemory(ctx, it.MemoryID, profile)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, mem)
	}
	return out, nil
}

// Statistics summarizes the engine's state for one profile.
type Statistics struct {
	TotalMemories int            `json:"total_memories"`
	ByCategory    map[string]int `json:"by_category"`
	Outcomes      map[string]int `json:"outcomes"`
	IndexedCount  int            `json:"indexed_count"`
	RecallCache   cache.Stats    `json:"recall_cache"`
	Graph         graph.Metrics  `json:"graph"`
}

// Stats gathers counts from the store, index, cache, and graph mirror.
func (m *Manager) Stats(ctx context.Context, profile string) (*Statistics, error) {
	total, byCat, err := m.store.CountMemories(ctx, profile)
	if err != nil {
		return nil, err
	}
	gm, err := m.Graph(profile).Stats(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := map[string]int{"worked": 0, "failed": 0, "pending": 0}
	goals, err := m.store.SearchMemories(ctx, store.SearchFilters{
		Profile:    profile,
		Categories: []string{CategoryGoal},
	})
	if err != nil {
		return nil, err
	}
	for _, g := range goals {
		switch {
		case g.Worked == nil:
			outcomes["pending"]++
		case *g.Worked:
			outcomes["worked"]++
		default:
			outcomes["failed"]++
		}
	}

	st := &Statistics{
		TotalMemories: total,
		ByCategory:    byCat,
		Outcomes:      outcomes,
		RecallCache:   m.recallCache.Stats(),
		Graph:         gm,
	}
	if m.index != nil {
		st.IndexedCount = m.index.Count(profile)
	}
	return st, nil
}

// invalidate drops derived state for a profile after a write.
func (m *Manager) invalidate(profile string) {
	n := m.recallCache.Clear()
	if n > 0 {
		logging.MemoryDebug("recall cache cleared (%d entries) after write", n)
	}
	m.Graph(profile).Invalidate()
}

// Store exposes the underlying store for components layered on the engine.
func (m *Manager) Store() *store.Store { return m.store }

// Entities exposes the entity manager.
func (m *Manager) Entities() *entity.Manager { return m.entities }
