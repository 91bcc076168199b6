package limiter

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Limiter caps how many generation calls this server has in flight against
// the upstream service, and how fast new ones may start.
type Limiter struct {
	semaphore   chan struct{}
	rateLimiter *rate.Limiter
}

func New(maxConcurrent int, ratePerSecond float64) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	limit := rate.Inf
	burst := maxConcurrent
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = int(math.Max(1, math.Ceil(ratePerSecond)))
	}
	return &Limiter{
		semaphore:   make(chan struct{}, maxConcurrent),
		rateLimiter: rate.NewLimiter(limit, burst),
	}
}

func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	select {
	case l.semaphore <- struct{}{}:
		return func() { <-l.semaphore }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Limiter) TryAcquire() (release func(), ok bool) {
	if !l.rateLimiter.Allow() {
		return nil, false
	}

	select {
	case l.semaphore <- struct{}{}:
		return func() { <-l.semaphore }, true
	default:
		return nil, false
	}
}

// InFlight is the number of currently held slots.
func (l *Limiter) InFlight() int {
	return len(l.semaphore)
}
