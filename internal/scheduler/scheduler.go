package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvidae/webcrawler/internal/breaker"
	"github.com/corvidae/webcrawler/internal/concurrency"
	"github.com/corvidae/webcrawler/internal/config"
	"github.com/corvidae/webcrawler/internal/fetchclient"
	"github.com/corvidae/webcrawler/internal/frontier"
	"github.com/corvidae/webcrawler/internal/metadata"
	"github.com/corvidae/webcrawler/internal/parser"
	"github.com/corvidae/webcrawler/internal/robots"
	"github.com/corvidae/webcrawler/internal/storage"
	"github.com/corvidae/webcrawler/internal/timeoutpolicy"
	"github.com/corvidae/webcrawler/pkg/limiter"
	"github.com/corvidae/webcrawler/pkg/retry"
	"github.com/corvidae/webcrawler/pkg/timeutil"
	"github.com/corvidae/webcrawler/pkg/urlutil"
)

/*
Orchestrator is the sole control-plane authority of the crawl.

Determinism and admission guarantees, generalized from a single
sequential worker to a pool of goroutines sharing one frontier:
- Orchestrator is the ONLY component allowed to decide whether a URL
  may enter the crawl frontier.
- All semantic admission checks (robots.txt, scope, depth, limits)
  happen in admit, before frontier.Submit is ever called.
- No other component enqueues, rejects, or reorders URLs.
- Workers detect and classify fetch/parse/storage outcomes but never
  decide retry, continuation, or abort on their own — that is either
  delegated to pkg/retry (per-fetch) or fixed by this file's worker
  loop (per-crawl).

Metadata emission is observational only and must not influence
scheduling, retries, or crawl termination.
*/

// Execution is the terminal summary of one Crawl call. TotalPages and
// TotalFailed are the frontier's disjoint processed/failed counts;
// TotalErrors counts robots.txt fetch errors, circuit-open rejections,
// fetches that still failed after their last retry attempt, and storage
// failures; a failed attempt that a later retry recovered is not counted.
type Execution struct {
	TotalPages  int
	TotalFailed int
	TotalErrors int
	Duration    time.Duration
}

// Orchestrator owns the worker pool draining one CrawlFrontier. Every
// per-request collaborator (robots, rate limiter, circuit breaker,
// concurrency controller, fetch client, storage sink) is wired once at
// construction and shared by every worker goroutine.
type Orchestrator struct {
	cfg          config.Config
	metadataSink metadata.MetadataSink
	robot        *robots.CachedRobot
	frontier     *frontier.CrawlFrontier
	breaker      *breaker.Breaker
	controller   *concurrency.Controller
	rateLimiter  *limiter.ConcurrentRateLimiter
	fetchClient  *fetchclient.Client
	storageSink  storage.Sink
	sleeper      timeutil.Sleeper
	retryParam   retry.RetryParam

	includeRe []*regexp.Regexp
	excludeRe []*regexp.Regexp

	// mu guards outstanding, the count of URLs submitted to the frontier
	// but not yet fully processed (queued or in flight). Crawl terminates
	// once the frontier is empty and outstanding reaches zero; cond lets
	// idle workers block instead of busy-polling the frontier.
	mu          sync.Mutex
	cond        *sync.Cond
	outstanding int

	totalErrors int64
}

// NewOrchestrator wires every collaborator from cfg, sharing metadataSink
// and storageSink across every worker the way the teacher's scheduler
// shared a single metadata.Recorder across its sequential pipeline.
func NewOrchestrator(cfg config.Config, metadataSink metadata.MetadataSink, storageSink storage.Sink) *Orchestrator {
	robot := robots.NewCachedRobot(metadataSink)

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.MinDelay())
	rateLimiter.SetJitter(cfg.Jitter())
	rateLimiter.SetRandomSeed(cfg.RandomSeed())
	rateLimiter.SetRequestsPerSecond(cfg.RequestsPerSecond(), cfg.GlobalRateLimit())

	// step governs how much each attempt's timeout bounds grow; reusing
	// the retry backoff's initial duration keeps one config knob driving
	// both "how much slower do we expect a flaky host to be" questions.
	policy := timeoutpolicy.NewPolicy(cfg.ConnectTimeout(), cfg.ReadTimeout(), cfg.TotalTimeout(), cfg.BackoffInitialDuration())
	fetchClient := fetchclient.NewClient(metadataSink, policy, cfg.VerifyTLS())

	o := &Orchestrator{
		cfg:          cfg,
		metadataSink: metadataSink,
		robot:        &robot,
		frontier:     frontier.NewCrawlFrontier(),
		breaker:      breaker.NewBreaker(cfg.CircuitBreakerThreshold(), cfg.CircuitBreakerCooldown()),
		controller:   concurrency.NewController(cfg.MaxConcurrent(), cfg.PerHostConcurrent()),
		rateLimiter:  rateLimiter,
		fetchClient:  &fetchClient,
		storageSink:  storageSink,
		sleeper:      timeutil.RealSleeper{},
		retryParam: retry.NewRetryParam(
			cfg.MinDelay(),
			cfg.Jitter(),
			cfg.RandomSeed(),
			cfg.MaxAttempt(),
			timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration()),
		),
		includeRe: compilePatterns(cfg.IncludePatterns()),
		excludeRe: compilePatterns(cfg.ExcludePatterns()),
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

// Crawl drives the frontier to exhaustion starting from seeds, running
// cfg.MaxConcurrent() workers concurrently, and returns once the frontier
// is empty and every worker is idle. maxPages overrides the configured
// page cap for this call; zero keeps the configured default.
func (o *Orchestrator) Crawl(ctx context.Context, seeds []url.URL, maxPages int) (Execution, error) {
	start := time.Now()

	frontierCfg := o.cfg
	if maxPages > 0 {
		built, err := frontierCfg.WithMaxPages(maxPages).Build()
		if err == nil {
			frontierCfg = built
		}
	}
	o.frontier.Init(frontierCfg)
	o.robot.Init(o.cfg.UserAgent())

	go func() {
		<-ctx.Done()
		o.mu.Lock()
		o.cond.Broadcast()
		o.mu.Unlock()
	}()

	for _, seed := range seeds {
		o.admit(seed, frontier.SourceSeed, 0, 0)
	}

	numWorkers := o.cfg.MaxConcurrent()
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.workerLoop(ctx)
		}()
	}
	wg.Wait()

	stats := o.frontier.Stats()
	return Execution{
		TotalPages:  stats.Processed,
		TotalFailed: stats.Failed,
		TotalErrors: int(atomic.LoadInt64(&o.totalErrors)),
		Duration:    time.Since(start),
	}, nil
}

// workerLoop repeatedly dequeues and processes tokens until the frontier
// is exhausted with nothing left outstanding, or ctx is canceled.
func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		token, ok := o.frontier.Dequeue()
		if !ok {
			o.mu.Lock()
			if o.outstanding == 0 {
				o.mu.Unlock()
				return
			}
			if ctx.Err() != nil {
				o.mu.Unlock()
				return
			}
			o.cond.Wait()
			o.mu.Unlock()
			continue
		}

		o.process(ctx, token)

		o.mu.Lock()
		o.outstanding--
		if o.outstanding == 0 {
			o.cond.Broadcast()
		}
		o.mu.Unlock()
	}
}

// admit performs every semantic check a URL must clear to enter the
// frontier: robots.txt, crawl scope, then frontier-native depth/page/
// dedup admission. This is the single choke point through which every
// URL — seed or discovered — must pass; no other method calls
// frontier.Submit.
func (o *Orchestrator) admit(target url.URL, source frontier.SourceContext, depth int, priority int) {
	target = urlutil.Canonicalize(target)

	if o.cfg.RespectRobots() {
		decision, err := o.robot.Decide(target)
		if err != nil {
			// A robots.txt that cannot be fetched places no restriction on
			// the host: the error is counted and the URL is admitted.
			o.countError()
		} else {
			if decision.CrawlDelay > 0 {
				o.rateLimiter.SetCrawlDelay(target.Host, decision.CrawlDelay)
			}
			if !decision.Allowed {
				o.frontier.MarkFailed(target, "blocked_by_robots")
				return
			}
			target = decision.Url
		}
	}

	if !o.inScope(target) {
		return
	}

	candidate := frontier.NewPrioritizedCrawlAdmissionCandidate(
		target,
		source,
		frontier.NewDiscoveryMetadata(depth, nil),
		priority,
	)

	o.mu.Lock()
	before := o.frontier.VisitedCount()
	o.frontier.Submit(candidate)
	admitted := o.frontier.VisitedCount() > before
	if admitted {
		o.outstanding++
	}
	o.mu.Unlock()
	o.cond.Broadcast()
}

// inScope reports whether target may be admitted under the configured
// host/path/include/exclude scope, independent of robots or frontier
// depth/page limits.
func (o *Orchestrator) inScope(target url.URL) bool {
	if o.cfg.SameHostOnly() && !o.hostAllowed(target.Host) {
		return false
	}

	if prefixes := o.cfg.AllowedPathPrefix(); len(prefixes) > 0 {
		matched := false
		for _, p := range prefixes {
			if strings.HasPrefix(target.Path, p) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	full := target.String()
	if len(o.includeRe) > 0 {
		matched := false
		for _, re := range o.includeRe {
			if re.MatchString(full) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range o.excludeRe {
		if re.MatchString(full) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for allowed := range o.cfg.AllowedHosts() {
		if strings.ToLower(allowed) == host {
			return true
		}
	}
	return false
}

// process runs one admitted token through rate limiting, the circuit
// breaker, fetch-with-retry, parsing, storage, and child-link admission.
// Every stage here only classifies its outcome (success, recoverable
// failure counted against totalErrors); none of it decides whether the
// crawl as a whole continues.
func (o *Orchestrator) process(ctx context.Context, token frontier.CrawlToken) {
	target := token.URL()
	host := target.Host

	if o.breaker.IsOpen(host) {
		o.frontier.MarkFailed(target, "circuit_open")
		o.recordError("scheduler", "process", metadata.CausePolicyDisallow, fmt.Sprintf("circuit open for host %s", host))
		o.countError()
		return
	}

	if err := o.controller.Acquire(ctx, host); err != nil {
		return
	}

	if delay := o.rateLimiter.ResolveDelay(host); delay > 0 {
		if err := o.sleeper.Sleep(ctx, delay); err != nil {
			o.controller.Release(host)
			return
		}
	}

	fetchParam := fetchclient.NewFetchParam(target, o.cfg.UserAgent())
	fetchResult, ferr := o.fetchClient.Fetch(ctx, token.Depth(), fetchParam, o.retryParam)
	o.rateLimiter.MarkLastFetchAsNow(host)
	o.controller.Release(host)

	if ferr != nil {
		o.breaker.RecordFailure(host)
		o.rateLimiter.Backoff(host)
		o.frontier.MarkFailed(target, ferr.Error())
		o.countError()
		return
	}
	o.breaker.RecordSuccess(host)
	o.rateLimiter.ResetBackoff(host)

	record := parser.Parse(fetchResult.Body(), fetchResult.URL(), fetchResult.StatusCode(), fetchResult.ContentType(), fetchResult.FetchedAt())
	o.frontier.MarkProcessed(target)

	if !o.cfg.DryRun() {
		if err := o.storageSink.Save(ctx, record); err != nil {
			o.countError()
		}
	}

	if token.Depth() >= o.cfg.MaxDepth() {
		return
	}

	childDepth := token.Depth() + 1
	for _, raw := range record.Links {
		linkURL, err := url.Parse(raw)
		if err != nil {
			continue
		}
		o.admit(*linkURL, frontier.SourceCrawl, childDepth, -childDepth)
	}
}

func (o *Orchestrator) countError() {
	atomic.AddInt64(&o.totalErrors, 1)
}

func (o *Orchestrator) recordError(pkg, action string, cause metadata.ErrorCause, message string) {
	if o.metadataSink == nil {
		return
	}
	o.metadataSink.RecordError(time.Now(), pkg, action, cause, message, nil)
}
