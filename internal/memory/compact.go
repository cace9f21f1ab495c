package memory

import (
	"context"
	"fmt"
	"strings"

	"mnemod/internal/logging"
	"mnemod/internal/store"
)

// minSummaryLength guards against compacting real memories behind a summary
// too thin to stand in for them.
const minSummaryLength = 50

// Compaction statuses and skip reasons.
const (
	CompactionApplied      = "applied"
	CompactionDryRun       = "dry_run"
	CompactionSkipped      = "skipped"
	ReasonNoCandidates     = "no_candidates"
	ReasonTopicMismatch    = "topic_mismatch"
	linkTypeSupersedes     = "supersedes"
	compactionTag          = "compaction"
	compactionRationaleFmt = "compaction summary of %d memories about %q"
)

// CompactRequest folds old decayed memories into a summary. An empty Topic
// compacts across every eligible memory; a set Topic narrows candidates to
// those overlapping it. A nil Limit means the default of 20; an explicit
// non-positive limit is rejected. The summary is required up front, even for
// a dry run, so a dry run previews exactly what an apply would do. Dry-run
// is the default; Apply must be set explicitly to archive anything.
type CompactRequest struct {
	Profile string `json:"profile" validate:"required"`
	Topic   string `json:"topic,omitempty"`
	Summary string `json:"summary"`
	Limit   *int   `json:"limit,omitempty"`
	Apply   bool   `json:"apply"`
}

// CompactResult reports what a compaction did or would do.
type CompactResult struct {
	Status       string  `json:"status"`
	Reason       string  `json:"reason,omitempty"`
	CandidateIDs []int64 `json:"candidate_ids,omitempty"`
	SummaryID    int64   `json:"summary_id,omitempty"`
	Archived     int64   `json:"archived"`
}

// Compact finds unarchived, non-permanent memories, optionally narrowed to a
// topic, and archives them behind a summary memory linked to each with a
// "supersedes" edge. Goals still awaiting an outcome are never compacted. Nothing is
// deleted; archived memories stay reachable by id and in the graph.
func (m *Manager) Compact(ctx context.Context, req *CompactRequest) (*CompactResult, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Compact")
	defer timer.Stop()

	if err := m.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid compact request: %w", err)
	}
	limit := 20
	if req.Limit != nil {
		if *req.Limit <= 0 {
			return nil, fmt.Errorf("limit must be greater than 0, got %d", *req.Limit)
		}
		limit = *req.Limit
	}
	if len(strings.TrimSpace(req.Summary)) < minSummaryLength {
		return nil, fmt.Errorf("summary must be at least %d characters", minSummaryLength)
	}

	all, err := m.store.SearchMemories(ctx, store.SearchFilters{Profile: req.Profile})
	if err != nil {
		return nil, err
	}

	eligible := make([]*store.Memory, 0, len(all))
	for _, mem := range all {
		if mem.Permanent {
			continue
		}
		// A goal without a recorded outcome is still pending.
		if mem.HasCategory(CategoryGoal) && mem.Worked == nil {
			continue
		}
		eligible = append(eligible, mem)
	}
	if len(eligible) == 0 {
		return &CompactResult{Status: CompactionSkipped, Reason: ReasonNoCandidates}, nil
	}

	topic := strings.TrimSpace(req.Topic)
	topicKeywords := ExtractKeywords(topic)
	var candidates []int64
	for _, mem := range eligible {
		if topic != "" && KeywordOverlap(topicKeywords, ExtractKeywords(mem.Content+" "+mem.Rationale)) == 0 {
			continue
		}
		candidates = append(candidates, mem.ID)
		if len(candidates) >= limit {
			break
		}
	}
	if len(candidates) == 0 {
		return &CompactResult{Status: CompactionSkipped, Reason: ReasonTopicMismatch}, nil
	}

	if !req.Apply {
		return &CompactResult{Status: CompactionDryRun, CandidateIDs: candidates}, nil
	}

	rationale := fmt.Sprintf("compaction summary of %d memories", len(candidates))
	if topic != "" {
		rationale = fmt.Sprintf(compactionRationaleFmt, len(candidates), topic)
	}
	summaryID, err := m.store.InsertMemory(ctx, &store.Memory{
		Profile:    req.Profile,
		Content:    strings.TrimSpace(req.Summary),
		Rationale:  rationale,
		Categories: []string{CategoryContext},
		Tags:       []string{compactionTag},
	})
	if err != nil {
		return nil, err
	}

	archived, err := m.store.ArchiveMemories(ctx, candidates, req.Profile)
	if err != nil {
		return nil, err
	}
	for _, id := range candidates {
		if _, err := m.store.InsertMemoryLink(ctx, req.Profile, &store.MemoryLink{
			FromMemoryID: summaryID,
			ToMemoryID:   id,
			Type:         linkTypeSupersedes,
			Description:  rationale,
			Confidence:   1.0,
		}); err != nil {
			return nil, err
		}
	}

	m.invalidate(req.Profile)
	logging.Memory("compacted %d memories about %q into %d", archived, req.Topic, summaryID)
	logging.RecordAudit(logging.AuditEvent{
		Event: logging.AuditMemoryCompact, Profile: req.Profile,
		Target: fmt.Sprintf("memory:%d", summaryID), Success: true,
		Fields: map[string]any{"archived": archived, "topic": req.Topic},
	})
	return &CompactResult{
		Status:       CompactionApplied,
		CandidateIDs: candidates,
		SummaryID:    summaryID,
		Archived:     archived,
	}, nil
}
