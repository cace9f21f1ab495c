package dream

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mnemod/internal/logging"
	"mnemod/internal/memory"
	"mnemod/internal/store"
)

// Runner executes one dream session: the strategy pipeline in fixed order,
// checking for user activity before each strategy. Each strategy's writes
// are complete rows by the time it returns, so interruption between
// strategies leaves no partial state.
type Runner struct {
	env        *Env
	strategies []Strategy
	interrupt  *atomic.Bool
}

// NewRunner creates a runner. interrupt is polled between strategies; the
// scheduler sets it when the user comes back.
func NewRunner(env *Env, strategies []Strategy, interrupt *atomic.Bool) *Runner {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	if interrupt == nil {
		interrupt = &atomic.Bool{}
	}
	return &Runner{env: env, strategies: strategies, interrupt: interrupt}
}

// Run executes the pipeline and persists the session record. A session that
// produced no insights leaves no trace; one that did gets a dream_sessions
// row and a context memory summarizing what was learned.
func (r *Runner) Run(ctx context.Context) (*store.DreamSession, error) {
	session := &store.DreamSession{
		ID:        uuid.NewString(),
		Profile:   r.env.Profile,
		StartedAt: time.Now(),
	}
	logging.Dream("dream session %s starting for %s", session.ID, session.Profile)

	var parts []string
	for _, strat := range r.strategies {
		if r.interrupt.Load() {
			session.Interrupted = true
			logging.Dream("dream session %s interrupted before %s", session.ID, strat.Name())
			break
		}
		if err := ctx.Err(); err != nil {
			session.Interrupted = true
			break
		}

		n, err := strat.Run(ctx, r.env)
		if err != nil {
			logging.DreamWarn("strategy %s failed: %v", strat.Name(), err)
			continue
		}
		session.StrategiesRun = append(session.StrategiesRun, strat.Name())
		session.InsightCount += n
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", strat.Name(), n))
		}
		logging.DreamDebug("strategy %s produced %d insights", strat.Name(), n)
	}

	ended := time.Now()
	session.EndedAt = &ended
	session.Summary = strings.Join(parts, "; ")

	if session.InsightCount == 0 {
		logging.Dream("dream session %s ended with nothing to report", session.ID)
		return session, nil
	}

	if err := r.env.Store.SaveDreamSession(ctx, session); err != nil {
		return session, err
	}
	if _, err := r.env.Memories.Remember(ctx, &memory.RememberRequest{
		Profile:    r.env.Profile,
		Content:    fmt.Sprintf("Consolidation pass produced %d insights (%s)", session.InsightCount, session.Summary),
		Rationale:  "dream session summary",
		Categories: []string{memory.CategoryContext},
		Tags:       []string{"auto", "dream"},
	}); err != nil {
		return session, err
	}

	logging.Dream("dream session %s finished: %d insights, interrupted=%v",
		session.ID, session.InsightCount, session.Interrupted)
	logging.RecordAudit(logging.AuditEvent{
		Event: logging.AuditDreamSession, Profile: session.Profile,
		Target: session.ID, Success: true,
		Fields: map[string]any{"insights": session.InsightCount, "interrupted": session.Interrupted},
	})
	return session, nil
}
