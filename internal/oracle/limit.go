package oracle

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultDelay keeps well under the request rate that trips typical 429 throttles.
const DefaultDelay = 100 * time.Millisecond

// Limited spaces submissions to the wrapped oracle at least delay apart.
type Limited struct {
	next    Oracle
	limiter *rate.Limiter
	count   atomic.Int64
}

// Limit wraps o so that consecutive submissions are at least delay apart.
// The gap is measured between request starts, so a target slower than delay
// gets the next request as soon as it answers.
// A non-positive delay disables spacing but still counts requests.
func Limit(o Oracle, delay time.Duration) *Limited {
	lim := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		lim = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &Limited{next: o, limiter: lim}
}

func (l *Limited) Submit(ctx context.Context, tok []byte) Response {
	if err := l.limiter.Wait(ctx); err != nil {
		// Wait refuses early when the delay would overrun the deadline; hold
		// until the context really ends so callers see ctx.Err() set.
		if ctx.Err() == nil {
			<-ctx.Done()
		}
		return Response{Err: err}
	}
	l.count.Add(1)
	return l.next.Submit(ctx, tok)
}

// Requests returns how many submissions reached the wrapped oracle.
func (l *Limited) Requests() int64 { return l.count.Load() }
