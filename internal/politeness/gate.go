package politeness

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fetchward/crawlkit/pkg/limiter"
)

/*
Gate enforces at most one outgoing request per host every
max(site_default_interval, robots_crawl_delay), per §4.3. It is a thin
orchestration layer over two existing pieces:

  - pkg/limiter.ConcurrentRateLimiter does the per-host arithmetic
    (base delay vs crawl-delay vs backoff, plus jitter) that the
    lineage already got right; Gate reuses it unchanged.
  - golang.org/x/time/rate.Limiter is a single global token bucket
    layered on top, bounding total outbound requests/sec across every
    host at once -- a safety valve the per-host map alone cannot
    express, since it has no notion of the crawl's aggregate rate.

Concurrent Acquire calls for different hosts never block each other;
for the same host they serialize on a per-host mutex that is held for
the caller's entire request, not just the wait -- Release is what lets
the next caller in.
*/
type Gate struct {
	rl     *limiter.ConcurrentRateLimiter
	global *rate.Limiter

	mu        sync.Mutex
	hostLocks map[string]*sync.Mutex
}

// NewGate constructs a Gate with the given per-host rate limiter and a
// global safety valve capped at globalRPS requests/sec across all
// hosts (burst sized equal to the rate, rounded up to at least 1).
func NewGate(rl *limiter.ConcurrentRateLimiter, globalRPS float64) *Gate {
	burst := int(globalRPS)
	if burst < 1 {
		burst = 1
	}
	return &Gate{
		rl:        rl,
		global:    rate.NewLimiter(rate.Limit(globalRPS), burst),
		hostLocks: make(map[string]*sync.Mutex),
	}
}

// SetCrawlDelay records host's robots.txt crawl-delay, if any, so it
// participates in the max(base, crawl_delay, backoff) resolution the
// next time this host is acquired.
func (g *Gate) SetCrawlDelay(host string, delay time.Duration) {
	g.rl.SetCrawlDelay(host, delay)
}

// Acquire blocks the caller until it may issue a request to host: the
// global safety valve has a free token, and the host's minimum
// interval since its last released request has elapsed. It honors
// ctx cancellation at every wait point; on cancellation, no permit is
// issued and no host state is stamped.
func (g *Gate) Acquire(ctx context.Context, host string) (*Permit, *PolitenessError) {
	if err := g.global.Wait(ctx); err != nil {
		return nil, &PolitenessError{Message: err.Error(), Retryable: true, Cause: ErrCauseAcquireCancelled}
	}

	lock := g.hostLock(host)
	lock.Lock()

	for {
		delay := g.rl.ResolveDelay(host)
		if delay <= 0 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			lock.Unlock()
			return nil, &PolitenessError{Message: ctx.Err().Error(), Retryable: true, Cause: ErrCauseAcquireCancelled}
		}
	}

	return &Permit{host: host, gate: g, unlock: lock.Unlock}, nil
}

func (g *Gate) hostLock(host string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.hostLocks[host]
	if !ok {
		lock = &sync.Mutex{}
		g.hostLocks[host] = lock
	}
	return lock
}
