// Package dream runs background consolidation while the user is idle:
// reviewing failed decisions, chasing unresolved outcomes, discovering
// connections between recent memories, and refreshing communities.
package dream

import (
	"context"
	"fmt"
	"time"

	"mnemod/internal/community"
	"mnemod/internal/config"
	"mnemod/internal/graph"
	"mnemod/internal/logging"
	"mnemod/internal/memory"
	"mnemod/internal/store"
)

// Env is everything a strategy may touch. Strategies only write through the
// store and managers so every mutation is atomic at the row level; an
// interrupted session never leaves partial state behind.
type Env struct {
	Store       *store.Store
	Memories    *memory.Manager
	Communities *community.Manager
	Graph       *graph.Mirror
	Profile     string
	Cfg         config.DreamConfig
}

// Strategy is one consolidation pass. It returns the number of insights it
// produced.
type Strategy interface {
	Name() string
	Run(ctx context.Context, env *Env) (int, error)
}

// DefaultStrategies returns the standard pipeline in execution order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		&FailedDecisionReview{},
		&PendingOutcomeResolver{},
		&ConnectionDiscovery{},
		&CommunityRefresh{},
	}
}

// reviewedLink marks a failed goal that already produced a concern.
const reviewedLink = "led_to"

// FailedDecisionReview turns recent failed goals into concern memories so
// the failure weighs on future recall. A goal already linked from a concern
// is skipped.
type FailedDecisionReview struct{}

func (s *FailedDecisionReview) Name() string { return "failed_decision_review" }

func (s *FailedDecisionReview) Run(ctx context.Context, env *Env) (int, error) {
	since := time.Now().Add(-time.Duration(env.Cfg.LookbackHours) * time.Hour)
	recent, err := env.Store.RecentMemories(ctx, env.Profile, since)
	if err != nil {
		return 0, err
	}

	insights := 0
	for _, mem := range recent {
		if !mem.HasCategory(memory.CategoryGoal) || mem.Worked == nil || *mem.Worked {
			continue
		}
		links, err := env.Store.QueryLinks(ctx, mem.ID, store.DirectionOutgoing, []string{reviewedLink})
		if err != nil {
			return insights, err
		}
		if len(links) > 0 {
			continue
		}

		res, err := env.Memories.Remember(ctx, &memory.RememberRequest{
			Profile:    env.Profile,
			Content:    fmt.Sprintf("A past attempt did not work out: %s (outcome: %s)", mem.Content, mem.Outcome),
			Rationale:  "distilled from a failed goal during consolidation",
			Categories: []string{memory.CategoryConcern},
			Tags:       []string{"auto", "dream"},
		})
		if err != nil {
			return insights, err
		}
		if _, err := env.Store.InsertMemoryLink(ctx, env.Profile, &store.MemoryLink{
			FromMemoryID: mem.ID,
			ToMemoryID:   res.MemoryID,
			Type:         reviewedLink,
			Description:  "failed goal reviewed during consolidation",
			Confidence:   1.0,
		}); err != nil {
			return insights, err
		}
		insights++
	}
	return insights, nil
}

// pendingAge is how long a goal may wait for an outcome before the resolver
// surfaces it.
const pendingAge = 7 * 24 * time.Hour

// PendingOutcomeResolver pins long-pending goals into the active working set
// so the next conversation can ask how they went.
type PendingOutcomeResolver struct{}

func (s *PendingOutcomeResolver) Name() string { return "pending_outcome_resolver" }

func (s *PendingOutcomeResolver) Run(ctx context.Context, env *Env) (int, error) {
	all, err := env.Store.SearchMemories(ctx, store.SearchFilters{
		Profile:    env.Profile,
		Categories: []string{memory.CategoryGoal},
	})
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-pendingAge)
	insights := 0
	for _, mem := range all {
		if mem.Worked != nil || mem.CreatedAt.After(cutoff) {
			continue
		}
		if err := env.Store.AddActiveItem(ctx, env.Profile, mem.ID, "goal pending an outcome"); err != nil {
			return insights, err
		}
		insights++
	}
	return insights, nil
}

// ConnectionDiscovery links recent memories that mention enough shared
// entities but have no direct edge yet.
type ConnectionDiscovery struct{}

func (s *ConnectionDiscovery) Name() string { return "connection_discovery" }

func (s *ConnectionDiscovery) Run(ctx context.Context, env *Env) (int, error) {
	since := time.Now().Add(-time.Duration(env.Cfg.LookbackHours) * time.Hour)
	recent, err := env.Store.RecentMemories(ctx, env.Profile, since)
	if err != nil {
		return 0, err
	}
	if len(recent) < 2 {
		return 0, nil
	}
	if err := env.Graph.Reload(ctx); err != nil {
		return 0, err
	}

	minShared := env.Cfg.MinSharedEntities
	if minShared <= 0 {
		minShared = 2
	}
	maxConn := env.Cfg.MaxConnections
	if maxConn <= 0 {
		maxConn = 10
	}

	created := 0
	for i := 0; i < len(recent) && created < maxConn; i++ {
		for j := i + 1; j < len(recent) && created < maxConn; j++ {
			a, b := recent[i].ID, recent[j].ID
			shared, err := env.Graph.CommonEntities(ctx, a, b)
			if err != nil {
				return created, err
			}
			if len(shared) < minShared {
				continue
			}
			linked, err := env.Store.HasLink(ctx, a, b)
			if err != nil {
				return created, err
			}
			if linked {
				continue
			}
			if _, err := env.Store.InsertMemoryLink(ctx, env.Profile, &store.MemoryLink{
				FromMemoryID: a,
				ToMemoryID:   b,
				Type:         "related_to",
				Description:  fmt.Sprintf("%d shared entities", len(shared)),
				Confidence:   env.Cfg.Confidence,
			}); err != nil {
				return created, err
			}
			created++
			logging.DreamDebug("connected %d and %d (%d shared entities)", a, b, len(shared))
		}
	}
	if created > 0 {
		env.Graph.Invalidate()
	}
	return created, nil
}

// CommunityRefresh rebuilds the community snapshot when it has gone stale.
type CommunityRefresh struct{}

func (s *CommunityRefresh) Name() string { return "community_refresh" }

func (s *CommunityRefresh) Run(ctx context.Context, env *Env) (int, error) {
	stale, err := env.Communities.Stale(ctx, env.Profile)
	if err != nil {
		return 0, err
	}
	if !stale {
		return 0, nil
	}
	n, err := env.Communities.Rebuild(ctx, env.Profile, env.Graph)
	if err != nil {
		return 0, err
	}
	return n, nil
}
