package limiter

import (
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvidae/webcrawler/pkg/timeutil"
)

// RateLimiter
// Specialized component to manage rate limiting during crawling
// Responsibilities:
// - Bookkeep each hostname's last fetch timestamp
// - Compute the final delay for each hostname given various factors
// - Make sure the crawling process respect the server's policy
type RateLimiter interface {
	SetBaseDelay(baseDelay time.Duration)
	SetJitter(jitter time.Duration)
	SetRandomSeed(randomSeed int64)
	SetCrawlDelay(host string, delay time.Duration)
	Backoff(host string)
	ResetBackoff(host string)
	MarkLastFetchAsNow(host string)
	SetRNG(rng interface{})
	ResolveDelay(host string) time.Duration
}

type ConcurrentRateLimiter struct {
	mu           sync.RWMutex
	rngMu        sync.Mutex
	baseDelay    time.Duration
	jitter       time.Duration
	backoffParam timeutil.BackoffParam
	hostTimings  map[string]hostTiming
	rng          *rand.Rand

	bucketsMu        sync.Mutex
	buckets          map[string]*rate.Limiter
	requestsPerSec   float64
	sharedBucketOnly bool
	sharedBucket     *rate.Limiter
}

func NewConcurrentRateLimiter() *ConcurrentRateLimiter {
	return &ConcurrentRateLimiter{
		hostTimings:  make(map[string]hostTiming),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		backoffParam: timeutil.NewBackoffParam(1*time.Second, 2.0, 30*time.Second),
		buckets:      make(map[string]*rate.Limiter),
	}
}

func (r *ConcurrentRateLimiter) SetBaseDelay(baseDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.baseDelay = baseDelay
}

func (r *ConcurrentRateLimiter) SetJitter(jitter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jitter = jitter
}

func (r *ConcurrentRateLimiter) SetRandomSeed(randomSeed int64) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	r.rng = rand.New(rand.NewSource(randomSeed))
}

// SetBackoffParam replaces the exponential-backoff curve used by Backoff.
func (r *ConcurrentRateLimiter) SetBackoffParam(param timeutil.BackoffParam) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backoffParam = param
}

// SetRequestsPerSecond configures the golang.org/x/time/rate gate applied
// on top of the delay/backoff computation. shared=true routes every host
// through a single bucket (config's global_rate_limit); shared=false (the
// default) gives each host its own bucket.
func (r *ConcurrentRateLimiter) SetRequestsPerSecond(rps float64, shared bool) {
	r.bucketsMu.Lock()
	defer r.bucketsMu.Unlock()

	r.requestsPerSec = rps
	r.sharedBucketOnly = shared
	r.buckets = make(map[string]*rate.Limiter)
	if shared && rps > 0 {
		r.sharedBucket = rate.NewLimiter(rate.Limit(rps), 1)
	} else {
		r.sharedBucket = nil
	}
}

// bucketFor returns (lazily creating) the token bucket for host.
func (r *ConcurrentRateLimiter) bucketFor(host string) *rate.Limiter {
	r.bucketsMu.Lock()
	defer r.bucketsMu.Unlock()

	if r.requestsPerSec <= 0 {
		return nil
	}
	if r.sharedBucketOnly {
		return r.sharedBucket
	}
	b, ok := r.buckets[host]
	if !ok {
		b = rate.NewLimiter(rate.Limit(r.requestsPerSec), 1)
		r.buckets[host] = b
	}
	return b
}

// Set delay to given host, separated from global base delay
func (r *ConcurrentRateLimiter) SetCrawlDelay(host string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming, exists := r.hostTimings[host]
	if exists {
		currentHostTiming.crawlDelay = delay
		r.hostTimings[host] = currentHostTiming
	} else {
		r.hostTimings[host] = hostTiming{
			crawlDelay: delay,
		}
	}
}

// exponentialBackoffDelay computes exponential backoff based on count.
// Does not take r.mu; caller must hold r.mu (RLock or Lock). rngMu is
// held while the shared rng is drawn from.
func (r *ConcurrentRateLimiter) exponentialBackoffDelay(backoffCount int) time.Duration {
	jitterValue := time.Duration(0)
	if r.jitter > 0 {
		jitterValue = r.computeJitter(r.jitter)
	}
	rng := r.rngSnapshot()
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return timeutil.ExponentialBackoffDelay(backoffCount, jitterValue, *rng, r.backoffParam)
}

// rngSnapshot returns the current rng pointer, creating one if none is
// set. The returned *rand.Rand shares its source with the limiter, so a
// caller that draws from it holds rngMu while doing so.
func (r *ConcurrentRateLimiter) rngSnapshot() *rand.Rand {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return r.rng
}

// Backoff triggers exponential backoff for the given host.
// It increments the backoff counter and computes the delay.
func (r *ConcurrentRateLimiter) Backoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming, exists := r.hostTimings[host]
	if exists {
		currentHostTiming.backoffCount++
		currentHostTiming.backoffDelay = r.exponentialBackoffDelay(currentHostTiming.backoffCount)
		r.hostTimings[host] = currentHostTiming
	} else {
		r.hostTimings[host] = hostTiming{
			backoffCount: 1,
			backoffDelay: r.exponentialBackoffDelay(1),
		}
	}
}

// ResetBackoff resets the backoff counter for the given host.
// Called after a successful request to clear backoff state.
func (r *ConcurrentRateLimiter) ResetBackoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming, exists := r.hostTimings[host]
	if exists {
		currentHostTiming.backoffCount = 0
		currentHostTiming.backoffDelay = time.Duration(0)
		r.hostTimings[host] = currentHostTiming
	}
}

// Mark the given host lastFetch to time.Now()
func (r *ConcurrentRateLimiter) MarkLastFetchAsNow(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming, exists := r.hostTimings[host]
	if exists {
		currentHostTiming.lastFetchAt = time.Now()
		r.hostTimings[host] = currentHostTiming
	} else {
		r.hostTimings[host] = hostTiming{
			lastFetchAt: time.Now(),
		}
	}
}

// Compute jitter for the given max duration
// Returns a pseudo-random duration between 0 and max (inclusive)
func (r *ConcurrentRateLimiter) computeJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return time.Duration(r.rng.Int63n(int64(max)))
}

// SetRNG allows injecting a custom random number generator for testing
func (r *ConcurrentRateLimiter) SetRNG(rng interface{}) {
	if randImpl, ok := rng.(*rand.Rand); ok {
		r.rngMu.Lock()
		r.rng = randImpl
		r.rngMu.Unlock()
	}
}

// Compute the final delay resolution for given host
// FinalDelay = max(BaseDelay, crawlDelay, BackoffDelay) + Jitter, then
// widened (never shortened) by the requests-per-second token bucket, if
// configured.
func (r *ConcurrentRateLimiter) ResolveDelay(host string) time.Duration {
	r.mu.RLock()
	currentHostTiming, exists := r.hostTimings[host]
	base := r.baseDelay
	jitter := r.jitter
	r.mu.RUnlock()

	if !exists {
		return r.widenWithBucket(host, 0)
	}

	delays := []time.Duration{base, currentHostTiming.crawlDelay, currentHostTiming.backoffDelay}
	finalDelay := timeutil.MaxDuration(delays)
	finalDelay += r.computeJitter(jitter)

	elapsed := time.Since(currentHostTiming.lastFetchAt)

	remaining := time.Duration(0)
	if elapsed < finalDelay {
		remaining = finalDelay - elapsed
	}

	return r.widenWithBucket(host, remaining)
}

func (r *ConcurrentRateLimiter) widenWithBucket(host string, floor time.Duration) time.Duration {
	bucket := r.bucketFor(host)
	if bucket == nil {
		return floor
	}
	reservation := bucket.Reserve()
	if !reservation.OK() {
		return floor
	}
	if d := reservation.Delay(); d > floor {
		return d
	}
	return floor
}

func (r *ConcurrentRateLimiter) BaseDelay() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseDelay
}

func (r *ConcurrentRateLimiter) Jitter() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jitter
}

func (r *ConcurrentRateLimiter) RNG() *rand.Rand {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng
}

func (r *ConcurrentRateLimiter) HostTimings() map[string]hostTiming {
	r.mu.RLock()
	defer r.mu.RUnlock()

	copyMap := make(map[string]hostTiming, len(r.hostTimings))
	for k, v := range r.hostTimings {
		copyMap[k] = v
	}
	return copyMap
}
