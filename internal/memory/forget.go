package memory

import (
	"context"
	"fmt"

	"mnemod/internal/logging"
	"mnemod/internal/store"
)

// ForgetRequest removes memories. Exactly one mode applies:
//   - MemoryID set: delete that memory immediately.
//   - Query set: return matching candidates without deleting anything.
//   - ConfirmIDs set: delete exactly those ids, presumably from an earlier
//     candidate listing.
type ForgetRequest struct {
	Profile    string  `json:"profile" validate:"required"`
	MemoryID   int64   `json:"memory_id,omitempty"`
	Query      string  `json:"query,omitempty"`
	ConfirmIDs []int64 `json:"confirm_ids,omitempty"`
}

// ForgetResult reports deletions or candidates awaiting confirmation.
type ForgetResult struct {
	Deleted    []int64         `json:"deleted,omitempty"`
	Candidates []*store.Memory `json:"candidates,omitempty"`
}

// Forget removes memories by id, or stages a query-based removal behind a
// confirmation round trip. Deletion is permanent and cascades to the vector
// index and graph.
func (m *Manager) Forget(ctx context.Context, req *ForgetRequest) (*ForgetResult, error) {
	if err := m.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid forget request: %w", err)
	}

	modes := 0
	if req.MemoryID != 0 {
		modes++
	}
	if req.Query != "" {
		modes++
	}
	if len(req.ConfirmIDs) > 0 {
		modes++
	}
	if modes != 1 {
		return nil, fmt.Errorf("forget needs exactly one of memory_id, query, or confirm_ids")
	}

	switch {
	case req.MemoryID != 0:
		if err := m.deleteOne(ctx, req.Profile, req.MemoryID); err != nil {
			return nil, err
		}
		return &ForgetResult{Deleted: []int64{req.MemoryID}}, nil

	case req.Query != "":
		page, err := m.Recall(ctx, &RecallRequest{Profile: req.Profile, Query: req.Query})
		if err != nil {
			return nil, err
		}
		res := &ForgetResult{}
		for _, r := range page.Results {
			res.Candidates = append(res.Candidates, r.Memory)
		}
		return res, nil

	default:
		res := &ForgetResult{}
		for _, id := range req.ConfirmIDs {
			if err := m.deleteOne(ctx, req.Profile, id); err != nil {
				return res, fmt.Errorf("deleting %d: %w", id, err)
			}
			res.Deleted = append(res.Deleted, id)
		}
		return res, nil
	}
}

func (m *Manager) deleteOne(ctx context.Context, profile string, id int64) error {
	if err := m.store.DeleteMemory(ctx, id, profile); err != nil {
		return err
	}
	if m.index != nil {
		if err := m.index.Delete(ctx, profile, id); err != nil {
			logging.EmbeddingWarn("index delete failed for memory %d: %v", id, err)
		}
	}
	m.invalidate(profile)
	logging.Memory("forgot memory %d", id)
	logging.RecordAudit(logging.AuditEvent{
		Event: logging.AuditMemoryForget, Profile: profile,
		Target: fmt.Sprintf("memory:%d", id), Success: true,
	})
	return nil
}
