package robots

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/corvidae/webcrawler/internal/metadata"
	"github.com/corvidae/webcrawler/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

// CachedRobot is the decision-making facade over RobotsFetcher: given a
// target URL it fetches (or reuses a cached fetch of) that host's
// robots.txt, maps it to a ruleSet, and returns an allow/disallow
// Decision. It holds no rule state of its own beyond what RobotsFetcher's
// cache.Cache already persists for the crawl's lifetime.
type CachedRobot struct {
	sink      metadata.MetadataSink
	userAgent string
	fetcher   *RobotsFetcher
}

// NewCachedRobot returns a CachedRobot that records robots.txt fetch
// errors to sink. Call Init or InitWithCache before Decide.
func NewCachedRobot(sink metadata.MetadataSink) CachedRobot {
	return CachedRobot{sink: sink}
}

// Init configures the robot with an in-memory cache.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache configures the robot with a caller-supplied cache.
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.sink, userAgent, c)
}

// Decide fetches target's host robots.txt (through the fetcher's cache)
// and reports whether target may be crawled.
func (r *CachedRobot) Decide(target url.URL) (Decision, error) {
	result, rerr := r.fetcher.Fetch(context.Background(), target.Scheme, target.Host)
	if rerr != nil {
		if r.sink != nil {
			r.sink.RecordError(time.Now(), "robots", "fetch", mapRobotsErrorToMetadataCause(rerr), rerr.Error(), nil)
		}
		return Decision{}, rerr
	}

	rs := MapResponseToRuleSet(result.Response, r.userAgent, result.FetchedAt)
	return evaluate(rs, target), nil
}

// evaluate applies the longest-match-wins robots.txt algorithm: the
// matching allow/disallow rule with the most specific (longest) pattern
// governs; an allow rule wins ties against a disallow rule of equal
// length, matching the convention most crawlers follow.
func evaluate(rs ruleSet, target url.URL) Decision {
	if !rs.hasGroups {
		return Decision{Url: target, Allowed: true, Reason: EmptyRuleSet}
	}
	if !rs.matchedGroup {
		return Decision{Url: target, Allowed: true, Reason: UserAgentNotMatched}
	}

	path := target.Path
	if path == "" {
		path = "/"
	}

	bestLen := -1
	bestAllow := true
	matched := false

	for _, rule := range rs.disallowRules {
		if patternMatches(rule.prefix, path) {
			if l := patternSpecificity(rule.prefix); l > bestLen {
				bestLen = l
				bestAllow = false
				matched = true
			}
		}
	}

	for _, rule := range rs.allowRules {
		if patternMatches(rule.prefix, path) {
			if l := patternSpecificity(rule.prefix); l >= bestLen {
				bestLen = l
				bestAllow = true
				matched = true
			}
		}
	}

	var delay time.Duration
	if cd := rs.CrawlDelay(); cd != nil {
		delay = *cd
	}

	if !matched {
		return Decision{Url: target, Allowed: true, Reason: NoMatchingRules, CrawlDelay: delay}
	}

	reason := AllowedByRobots
	if !bestAllow {
		reason = DisallowedByRobots
	}
	return Decision{Url: target, Allowed: bestAllow, Reason: reason, CrawlDelay: delay}
}

// patternSpecificity is the tie-breaking weight of a robots.txt pattern:
// its length with the trailing end-anchor ($) excluded.
func patternSpecificity(pattern string) int {
	return len(strings.TrimSuffix(pattern, "$"))
}

// patternMatches reports whether path satisfies a robots.txt path
// pattern, supporting "*" (any sequence) and a trailing "$" (end anchor).
func patternMatches(pattern, path string) bool {
	return compilePattern(pattern).MatchString(path)
}

func compilePattern(pattern string) *regexp.Regexp {
	anchored := strings.HasSuffix(pattern, "$")
	body := strings.TrimSuffix(pattern, "$")

	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range body {
		if r == '*' {
			sb.WriteString(".*")
		} else {
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if anchored {
		sb.WriteString("$")
	}
	return regexp.MustCompile(sb.String())
}
