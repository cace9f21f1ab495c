package store

import (
	"context"
	"fmt"
	"strings"
)

// FTSSearch runs a full-text query over memory content, rationale, and tags
// for one profile. When highlight is true, Excerpt carries the matched
// content wrapped in the given markers. An empty query returns no results.
func (s *Store) FTSSearch(ctx context.Context, profile, query string, highlight bool, startMark, endMark string, limit int) ([]FTSResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if !s.ftsExt {
		return nil, fmt.Errorf("full-text search unavailable: FTS5 not compiled in")
	}
	if limit <= 0 {
		limit = 10
	}
	if startMark == "" {
		startMark = "<b>"
	}
	if endMark == "" {
		endMark = "</b>"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sel := "''"
	if highlight {
		sel = "highlight(memories_fts, 0, ?, ?)"
	}
	q := fmt.Sprintf(`
		SELECT f.rowid, %s, bm25(memories_fts)
		FROM memories_fts f
		JOIN memories m ON m.id = f.rowid
		WHERE memories_fts MATCH ? AND m.profile = ? AND m.archived = 0
		ORDER BY bm25(memories_fts)
		LIMIT ?`, sel)

	args := []any{}
	if highlight {
		args = append(args, startMark, endMark)
	}
	args = append(args, sanitizeFTSQuery(query), profile, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fts query failed: %w", err)
	}
	defer rows.Close()

	var out []FTSResult
	for rows.Next() {
		var r FTSResult
		if err := rows.Scan(&r.MemoryID, &r.Excerpt, &r.Rank); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// sanitizeFTSQuery quotes each term so user input cannot inject FTS5
// operators like NEAR or column filters.
func sanitizeFTSQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, "")
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
}
