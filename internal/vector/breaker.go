package vector

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"mnemod/internal/logging"
)

// BreakerEngine wraps an Engine in a circuit breaker. After enough
// consecutive failures the breaker opens and calls return ErrUnavailable
// immediately instead of waiting on a dead provider; recall degrades to
// lexical-only ranking until the provider recovers.
type BreakerEngine struct {
	inner Engine
	cb    *gobreaker.CircuitBreaker
}

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	MaxFailures uint32
	OpenFor     time.Duration
}

// NewBreakerEngine wraps engine with a circuit breaker. A nil engine is
// passed through so the caller keeps a single nil check.
func NewBreakerEngine(engine Engine, s BreakerSettings) Engine {
	if engine == nil {
		return nil
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenFor == 0 {
		s.OpenFor = 60 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "embedding:" + engine.Name(),
		Timeout: s.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.EmbeddingWarn("breaker %s: %s -> %s", name, from, to)
		},
	})
	return &BreakerEngine{inner: engine, cb: cb}
}

// Embed runs one embedding request through the breaker.
func (b *BreakerEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return result.([]float32), nil
}

// EmbedBatch runs a batch request through the breaker.
func (b *BreakerEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return result.([][]float32), nil
}

// Dimensions returns the wrapped engine's dimensionality.
func (b *BreakerEngine) Dimensions() int { return b.inner.Dimensions() }

// Name returns the wrapped engine's name.
func (b *BreakerEngine) Name() string { return b.inner.Name() }

func (b *BreakerEngine) mapErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return ErrUnavailable
	}
	return err
}
