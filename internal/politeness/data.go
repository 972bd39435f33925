package politeness

import "sync"

/*
Permit is the token returned by Gate.Acquire. The caller holds it for
the duration of the outgoing request and calls Release once the
request has completed (successfully or not); Release is what actually
stamps the host's last-request time, so the interval enforced by the
next Acquire for the same host is measured from when the previous
request finished, not when it started.
*/
type Permit struct {
	host    string
	gate    *Gate
	unlock  func()
	once    sync.Once
}

// Release stamps the host's last-request time and frees the per-host
// lock so the next caller for this host may proceed. Safe to call
// concurrently and more than once; only the first call has effect.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.gate.rl.MarkLastFetchAsNow(p.host)
		p.unlock()
	})
}

// Host returns the host this permit was issued for.
func (p *Permit) Host() string {
	return p.host
}
