package dream

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mnemod/internal/community"
	"mnemod/internal/config"
	"mnemod/internal/entity"
	"mnemod/internal/graph"
	"mnemod/internal/memory"
	"mnemod/internal/store"
)

func TestMain(m *testing.M) {
	// The genai dependency tree starts an opencensus stats worker that lives
	// for the life of the process.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	entities := entity.NewManager(s, entity.NewResolver(s, "tenant", entity.NewResolverCache()))
	memories := memory.NewManager(s, nil, nil, entities, config.RecallConfig{
		SemanticWeight: 0.6, FailedGoalBoost: 1.15, DefaultLimit: 10, MaxLimit: 100, CacheEntries: 16,
	}, time.Minute)

	return &Env{
		Store:       s,
		Memories:    memories,
		Communities: community.NewManager(s, nil, time.Hour),
		Graph:       graph.NewMirror(s, "default"),
		Profile:     "default",
		Cfg: config.DreamConfig{
			Enabled:           true,
			LookbackHours:     168,
			MaxConnections:    10,
			MinSharedEntities: 1,
			Confidence:        0.6,
		},
	}
}

// recordingStrategy counts runs and optionally flips the interrupt flag to
// simulate the user coming back mid-run.
type recordingStrategy struct {
	name      string
	ran       *[]string
	interrupt *atomic.Bool
}

func (s *recordingStrategy) Name() string { return s.name }

func (s *recordingStrategy) Run(ctx context.Context, env *Env) (int, error) {
	*s.ran = append(*s.ran, s.name)
	if s.interrupt != nil {
		s.interrupt.Store(true)
	}
	return 0, nil
}

func TestRunnerInterruptsBetweenStrategies(t *testing.T) {
	env := newTestEnv(t)
	var interrupt atomic.Bool
	var ran []string

	strategies := []Strategy{
		&recordingStrategy{name: "one", ran: &ran},
		&recordingStrategy{name: "two", ran: &ran, interrupt: &interrupt},
		&recordingStrategy{name: "three", ran: &ran},
		&recordingStrategy{name: "four", ran: &ran},
	}

	session, err := NewRunner(env, strategies, &interrupt).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, ran, "activity during strategy two must stop the pipeline before three")
	assert.True(t, session.Interrupted)
}

func TestRunnerPersistsOnlyWithInsights(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Empty store: every strategy is a no-op, nothing persists.
	session, err := NewRunner(env, nil, nil).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, session.InsightCount)

	sessions, err := env.Store.ListDreamSessions(ctx, "default", 10)
	require.NoError(t, err)
	assert.Empty(t, sessions, "insight-free session must leave no row")
}

func TestFailedDecisionReviewCreatesConcern(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.Memories.Remember(ctx, &memory.RememberRequest{
		Profile: "default", Content: "try the all-nighter study strategy", Categories: []string{"goal"},
	})
	require.NoError(t, err)
	_, err = env.Memories.RecordOutcome(ctx, "default", res.MemoryID, "exhausted and failed the exam", false)
	require.NoError(t, err)

	n, err := (&FailedDecisionReview{}).Run(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Second pass finds the goal already reviewed.
	n, err = (&FailedDecisionReview{}).Run(ctx, env)
	require.NoError(t, err)
	assert.Zero(t, n)

	concerns, err := env.Store.SearchMemories(ctx, store.SearchFilters{
		Profile: "default", Categories: []string{"concern"},
	})
	require.NoError(t, err)
	require.Len(t, concerns, 1)
	assert.Contains(t, concerns[0].Content, "exhausted and failed the exam")
}

func TestConnectionDiscoveryLinksSharedEntities(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.Memories.Remember(ctx, &memory.RememberRequest{
		Profile: "default", Content: "Sarah recommended a hiking trail", Categories: []string{"event"},
	})
	require.NoError(t, err)
	b, err := env.Memories.Remember(ctx, &memory.RememberRequest{
		Profile: "default", Content: "Sarah lent me her tent", Categories: []string{"event"},
	})
	require.NoError(t, err)

	n, err := (&ConnectionDiscovery{}).Run(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	linked, err := env.Store.HasLink(ctx, a.MemoryID, b.MemoryID)
	require.NoError(t, err)
	assert.True(t, linked)

	// Idempotent: a second pass finds the pair already linked.
	n, err = (&ConnectionDiscovery{}).Run(ctx, env)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSchedulerFiresAfterIdle(t *testing.T) {
	fired := make(chan struct{}, 1)
	sched := NewScheduler(30*time.Millisecond, func(ctx context.Context, interrupt *atomic.Bool) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	defer sched.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never fired after idle timeout")
	}
}

func TestSchedulerTouchDefersFiring(t *testing.T) {
	var fired atomic.Int32
	sched := NewScheduler(80*time.Millisecond, func(ctx context.Context, interrupt *atomic.Bool) {
		fired.Add(1)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	defer sched.Stop()

	// Keep touching faster than the idle window.
	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		sched.Touch()
	}
	assert.Zero(t, fired.Load(), "touches inside the idle window must defer the session")
}

func TestSchedulerTouchInterruptsRunningSession(t *testing.T) {
	started := make(chan struct{})
	interrupted := make(chan bool, 1)
	sched := NewScheduler(20*time.Millisecond, func(ctx context.Context, interrupt *atomic.Bool) {
		close(started)
		deadline := time.After(2 * time.Second)
		for !interrupt.Load() {
			select {
			case <-deadline:
				interrupted <- false
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
		interrupted <- true
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	defer sched.Stop()

	<-started
	assert.True(t, sched.Dreaming())
	sched.Touch()

	if ok := <-interrupted; !ok {
		t.Fatal("touch during a session never set the interrupt flag")
	}
}

func TestSchedulerPreservesInterruptRaisedBeforeSessionStarts(t *testing.T) {
	sawInterrupt := make(chan bool, 1)
	sched := NewScheduler(time.Hour, func(ctx context.Context, interrupt *atomic.Bool) {
		sawInterrupt <- interrupt.Load()
	})
	sched.Start(context.Background())
	defer sched.Stop()

	// Activity can land after the idle timer fires but before the session
	// goroutine runs; the flag must survive into the session.
	sched.timer.Stop()
	sched.interrupt.Store(true)
	sched.fire()

	if !<-sawInterrupt {
		t.Fatal("interrupt raised before the session started was wiped")
	}

	// Once the session winds down the flag is reset for the next cycle.
	assert.Eventually(t, func() bool {
		return !sched.interrupt.Load() && !sched.Dreaming()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	sched := NewScheduler(time.Hour, func(ctx context.Context, interrupt *atomic.Bool) {})
	sched.Start(context.Background())
	sched.Stop()
	sched.Stop()
}
