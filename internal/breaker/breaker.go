package breaker

import (
	"sync"
	"time"
)

/*
CircuitBreaker
Specialized component to stop hammering a host that is failing.
Responsibilities:
- Count consecutive network/response failures per host
- Trip a host to "open" once its failure count crosses a threshold
- Hold a host open for a fixed cooldown, then allow attempts again until
  the next success closes it or the next failure reopens it
- Reset a host's count on any success

Only network/response failures count against a host; admission
refusals (robots-block, filter-reject) never reach the breaker.
*/

type hostState struct {
	consecutiveErrors int
	openUntil         time.Time
}

// Breaker is a per-host circuit breaker. It is safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	states   map[string]*hostState
	threshold int
	cooldown  time.Duration
}

// NewBreaker returns a Breaker that opens a host after threshold
// consecutive failures and holds it open for cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		states:    make(map[string]*hostState),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether host may be attempted right now. Once an open
// host's cooldown has elapsed, every call is allowed; the failure count
// is not reset (that only happens on RecordSuccess), so the next
// RecordFailure reopens the host.
func (b *Breaker) Allow(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[host]
	if !ok {
		return true
	}
	if st.openUntil.IsZero() {
		return true
	}
	return !time.Now().Before(st.openUntil)
}

// RecordSuccess resets host's failure count and closes its breaker.
func (b *Breaker) RecordSuccess(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateFor(host)
	st.consecutiveErrors = 0
	st.openUntil = time.Time{}
}

// RecordFailure increments host's consecutive-failure count and, once
// it reaches the configured threshold, opens the breaker for cooldown.
func (b *Breaker) RecordFailure(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateFor(host)
	st.consecutiveErrors++
	if b.threshold > 0 && st.consecutiveErrors >= b.threshold {
		st.openUntil = time.Now().Add(b.cooldown)
	}
}

// IsOpen reports whether host is currently blocked.
func (b *Breaker) IsOpen(host string) bool {
	return !b.Allow(host)
}

func (b *Breaker) stateFor(host string) *hostState {
	st, ok := b.states[host]
	if !ok {
		st = &hostState{}
		b.states[host] = st
	}
	return st
}
