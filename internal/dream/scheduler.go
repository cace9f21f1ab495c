package dream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mnemod/internal/logging"
)

// RunFunc builds and executes a dream session when the scheduler fires. The
// interrupt flag is set when the user comes back mid-session.
type RunFunc func(ctx context.Context, interrupt *atomic.Bool)

// Scheduler fires a dream session after a stretch of user inactivity. Every
// Touch resets the idle timer; a Touch during a running session flips the
// interrupt flag instead, and the session winds down between strategies.
// Only one session runs at a time.
type Scheduler struct {
	idle time.Duration
	run  RunFunc

	mu        sync.Mutex
	timer     *time.Timer
	started   bool
	stopped   bool
	dreaming  atomic.Bool
	interrupt atomic.Bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(idle time.Duration, run RunFunc) *Scheduler {
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	return &Scheduler{idle: idle, run: run}
}

// Start arms the idle timer. Calling Start twice is an error-free no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.timer = time.AfterFunc(s.idle, s.fire)
	logging.Dream("dream scheduler armed (idle %s)", s.idle)
}

// Touch records user activity: reset the idle timer, and interrupt any
// session in flight.
func (s *Scheduler) Touch() {
	if s.dreaming.Load() {
		s.interrupt.Store(true)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil && !s.stopped {
		s.timer.Reset(s.idle)
	}
}

// Stop cancels the timer and waits for a running session to finish winding
// down. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.timer.Stop()
	cancel := s.cancel
	s.mu.Unlock()

	s.interrupt.Store(true)
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	logging.Dream("dream scheduler stopped")
}

// Dreaming reports whether a session is currently running.
func (s *Scheduler) Dreaming() bool { return s.dreaming.Load() }

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if !s.dreaming.CompareAndSwap(false, true) {
		// Previous session still running; try again next idle window.
		s.timer.Reset(s.idle)
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		// The interrupt flag must not be cleared here: a Touch can land
		// between the dreaming CAS and this goroutine starting, and that
		// activity has to interrupt the session, not be wiped. The flag is
		// reset below once the session has wound down.
		s.run(ctx, &s.interrupt)

		s.dreaming.Store(false)
		s.interrupt.Store(false)

		s.mu.Lock()
		if !s.stopped {
			s.timer.Reset(s.idle)
		}
		s.mu.Unlock()
	}()
}
