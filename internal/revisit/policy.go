package revisit

import (
	"math/rand"
	"time"

	"github.com/fetchward/crawlkit/internal/config"
)

/*
Policy computes the next revisit schedule for a record after a
successful visit, per §4.6. It is a pure function over its inputs plus
an injected RNG for jitter -- no I/O, no locking, nothing to mock in
tests beyond supplying a seeded source.
*/
type Policy struct {
	cfg config.RevisitPolicy
	rng *rand.Rand
}

// NewPolicy builds a Policy from the configured revisit knobs. rng may
// be nil, in which case a time-seeded source is used; tests inject a
// deterministic one to assert exact outcomes.
func NewPolicy(cfg config.RevisitPolicy, rng *rand.Rand) *Policy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Policy{cfg: cfg, rng: rng}
}

// Outcome is the result of a revisit computation: the new working
// interval (to persist on the record) and the derived next_crawl
// timestamp.
type Outcome struct {
	Interval  time.Duration
	NextCrawl time.Time
}

// NextAfterChange computes the new interval after a visit whose content
// hash differs from the prior one: the interval decreases (the page is
// revisited sooner), floored at MinInterval.
func (p *Policy) NextAfterChange(now time.Time, previousInterval time.Duration, priority int) Outcome {
	base := previousInterval
	if base <= 0 {
		base = p.cfg.DefaultInterval
	}

	interval := time.Duration(float64(base) * p.cfg.DecreaseFactor)
	if interval < p.cfg.MinInterval {
		interval = p.cfg.MinInterval
	}
	return p.finalize(now, interval, priority)
}

// NextAfterNoChange computes the new interval after a visit whose
// content hash is unchanged from the prior one: the interval increases
// (the page is revisited less often), capped at the priority-adjusted
// max_interval.
func (p *Policy) NextAfterNoChange(now time.Time, previousInterval time.Duration, priority int) Outcome {
	base := previousInterval
	if base <= 0 {
		base = p.cfg.DefaultInterval
	}

	interval := time.Duration(float64(base) * p.cfg.IncreaseFactor)
	ceiling := p.maxIntervalForPriority(priority)
	if interval > ceiling {
		interval = ceiling
	}
	return p.finalize(now, interval, priority)
}

// FirstVisit returns the schedule for a record's very first successful
// visit, which always starts from DefaultInterval per §4.6's tie-break
// rule -- there is no prior interval to scale from.
func (p *Policy) FirstVisit(now time.Time, priority int) Outcome {
	return p.finalize(now, p.cfg.DefaultInterval, priority)
}

// maxIntervalForPriority applies §4.6's "higher-priority records cap at
// a lower max_interval" adjustment: the ceiling is MaxInterval divided
// by 1 + priority/10 (priority 10 halves it, priority 20 divides it by
// 3), floored at MinInterval so a very high priority can never
// push a record's interval below the configured minimum.
func (p *Policy) maxIntervalForPriority(priority int) time.Duration {
	if priority <= 0 {
		return p.cfg.MaxInterval
	}
	divisor := 1.0 + float64(priority)/10.0
	adjusted := time.Duration(float64(p.cfg.MaxInterval) / divisor)
	if adjusted < p.cfg.MinInterval {
		adjusted = p.cfg.MinInterval
	}
	return adjusted
}

// finalize clamps interval to [MinInterval, priority-adjusted
// MaxInterval], applies uniform jitter in [1-J, 1+J], and derives
// next_crawl = now + interval.
func (p *Policy) finalize(now time.Time, interval time.Duration, priority int) Outcome {
	minI := p.cfg.MinInterval
	maxI := p.maxIntervalForPriority(priority)

	if interval < minI {
		interval = minI
	}
	if interval > maxI {
		interval = maxI
	}

	jittered := p.applyJitter(interval)
	return Outcome{
		Interval:  jittered,
		NextCrawl: now.Add(jittered),
	}
}

// applyJitter scales interval by a uniform random factor in
// [1-JitterPct, 1+JitterPct], so many records sharing a similar
// interval don't all become ready at the exact same instant.
func (p *Policy) applyJitter(interval time.Duration) time.Duration {
	j := p.cfg.JitterPct
	if j <= 0 {
		return interval
	}

	factor := 1 - j + p.rng.Float64()*2*j
	return time.Duration(float64(interval) * factor)
}
