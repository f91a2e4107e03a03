package helpdesk

import (
	"context"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const limiterKey = "helpdesk-api"

// callLimiter serializes outgoing calls through a rolling-window token
// bucket. When the bucket is empty the caller blocks until a token frees up
// or maxWait elapses; it never rejects outright below maxWait. The
// underlying store is safe for concurrent callers.
type callLimiter struct {
	limiter  *limiter.Limiter
	maxWait  time.Duration
	interval time.Duration
}

func newCallLimiter(requests int64, period, maxWait, pollInterval time.Duration) *callLimiter {
	if requests <= 0 {
		requests = 50
	}
	if period <= 0 {
		period = time.Minute
	}
	if maxWait <= 0 {
		maxWait = 2 * period
	}
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &callLimiter{
		limiter:  limiter.New(memory.NewStore(), limiter.Rate{Period: period, Limit: requests}),
		maxWait:  maxWait,
		interval: pollInterval,
	}
}

// wait blocks until a token is consumed. Returns a RATE_LIMITED error when
// the bounded wait elapses, or the context error on cancellation.
func (l *callLimiter) wait(ctx context.Context) error {
	deadline := time.Now().Add(l.maxWait)
	blocked := false
	for {
		peeked, err := l.limiter.Peek(ctx, limiterKey)
		if err != nil {
			return transportError(err)
		}
		if !peeked.Reached {
			taken, err := l.limiter.Get(ctx, limiterKey)
			if err != nil {
				return transportError(err)
			}
			if !taken.Reached {
				return nil
			}
			// lost the race for the last token; fall through and wait
		}
		if !blocked {
			blocked = true
			limiterWaitsTotal.Inc()
		}
		if time.Now().After(deadline) {
			return &Error{Kind: ErrRateLimited, Body: "rate limiter wait exceeded"}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
}
