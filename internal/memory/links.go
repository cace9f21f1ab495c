package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mnemod/internal/store"
)

// LinkTypes is the closed vocabulary for memory-to-memory relationships.
var LinkTypes = map[string]bool{
	"led_to":         true,
	"supersedes":     true,
	"depends_on":     true,
	"conflicts_with": true,
	"related_to":     true,
}

// CheckLinkType validates a relationship type, listing the vocabulary on
// rejection.
func CheckLinkType(t string) error {
	if LinkTypes[t] {
		return nil
	}
	valid := make([]string, 0, len(LinkTypes))
	for k := range LinkTypes {
		valid = append(valid, k)
	}
	sort.Strings(valid)
	return fmt.Errorf("unknown relationship type %q, expected one of: %s",
		t, strings.Join(valid, ", "))
}

// LinkMemories records a typed edge between two memories. Both must exist in
// the profile; the type must be in the vocabulary. description is optional
// free text explaining the connection.
func (m *Manager) LinkMemories(ctx context.Context, profile string, fromID, toID int64, linkType, description string, confidence float64) (int64, error) {
	if err := CheckLinkType(linkType); err != nil {
		return 0, err
	}
	id, err := m.store.InsertMemoryLink(ctx, profile, &store.MemoryLink{
		FromMemoryID: fromID,
		ToMemoryID:   toID,
		Type:         linkType,
		Description:  description,
		Confidence:   confidence,
	})
	if err != nil {
		return 0, err
	}
	m.invalidate(profile)
	return id, nil
}

// UnlinkMemories removes edges between two memories. An empty type removes
// every edge between them. Returns how many were removed.
func (m *Manager) UnlinkMemories(ctx context.Context, profile string, fromID, toID int64, linkType string) (int64, error) {
	if linkType != "" {
		if err := CheckLinkType(linkType); err != nil {
			return 0, err
		}
	}
	n, err := m.store.DeleteMemoryLink(ctx, fromID, toID, linkType)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.invalidate(profile)
	}
	return n, nil
}

// Links lists a memory's edges in the given direction, optionally filtered
// by type.
func (m *Manager) Links(ctx context.Context, memoryID int64, direction store.LinkDirection, types []string) ([]*store.MemoryLink, error) {
	return m.store.QueryLinks(ctx, memoryID, direction, types)
}
