package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL
	// Whitelisted hostname. Empty means all hostnames are allowed
	allowedHosts map[string]struct{}
	// Which URL path segments are permitted to be fetched and traversed, even if the links are on the same domain
	allowedPathPrefix []string
	// Restrict discovered links to the seed URLs' own host(s); equivalent
	// to allowedHosts defaulting to the seed hosts and never widening.
	sameHostOnly bool
	// A discovered URL must match at least one of these regexes (empty
	// means no include filter) and none of excludePatterns to be admitted.
	includePatterns []string
	excludePatterns []string

	//===============
	// Limits
	//===============
	// Maximum number of hyperlink hops from a seed (root) URL
	maxDepth int
	// Maximum number of total documents are allowed to be fetched
	maxPages int

	//===============
	// Politeness
	//===============
	// Maximum number of crawl worker goroutines processing URLs concurrently,
	// across all hosts combined.
	maxConcurrent int
	// Maximum number of concurrent in-flight requests to any single host.
	perHostConcurrent int
	// Cap on requests issued per second, applied per host unless
	// globalRateLimit is set, in addition to (not instead of) the
	// per-host minDelay spacing. Zero means unlimited.
	requestsPerSecond float64
	// Minimum, fixed waiting time enforced between two HTTP requests to
	// the same host.
	minDelay time.Duration
	// Randomized variation added on top of minDelay.
	jitter time.Duration
	// Whether requestsPerSecond gates all hosts through one shared token
	// bucket instead of one bucket per host.
	globalRateLimit bool
	// Controls the random number generator
	randomSeed int64
	// Whether robots.txt is consulted before a URL is admitted.
	respectRobots bool
	// Consecutive failures against a host before its circuit opens.
	circuitBreakerThreshold int
	// How long a host's circuit stays open once it trips.
	circuitBreakerCooldown time.Duration
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Base connect/read/total timeout bounds for the first attempt; later
	// attempts grow linearly from these per internal/timeoutpolicy.
	connectTimeout time.Duration
	readTimeout    time.Duration
	totalTimeout   time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string
	// Whether TLS certificates are verified. False is only ever set
	// explicitly; never the default.
	verifyTLS bool

	//===============
	// Output
	//===============
	// Path to the file crawled PageRecords are written to; its extension
	// (.jsonl, .csv, .db/.sqlite/.sqlite3) selects the storage backend.
	outputPath string
	// Path the final crawl-stats summary is written to; empty means
	// the summary is written to stdout.
	statsOutputPath string
	// Minimum severity of log line emitted by the metadata sink.
	logLevel string
	// Whether the program will simulates what it would do without
	// actually performing any irreversible or side-effecting actions
	dryRun bool
}

type configDTO struct {
	SeedURLs                []url.URL           `json:"seedUrls"`
	AllowedHosts            map[string]struct{} `json:"allowedHosts,omitempty"`
	AllowedPathPrefix       []string            `json:"allowedPathPrefix,omitempty"`
	SameHostOnly            *bool               `json:"sameHostOnly,omitempty"`
	IncludePatterns         []string            `json:"includePatterns,omitempty"`
	ExcludePatterns         []string            `json:"excludePatterns,omitempty"`
	MaxDepth                int                 `json:"maxDepth,omitempty"`
	MaxPages                int                 `json:"maxPages,omitempty"`
	MaxConcurrent           int                 `json:"maxConcurrent,omitempty"`
	PerHostConcurrent       int                 `json:"perHostConcurrent,omitempty"`
	RequestsPerSecond       float64             `json:"requestsPerSecond,omitempty"`
	MinDelay                time.Duration       `json:"minDelay,omitempty"`
	Jitter                  time.Duration       `json:"jitter,omitempty"`
	GlobalRateLimit         bool                `json:"globalRateLimit,omitempty"`
	RandomSeed              int64               `json:"randomSeed,omitempty"`
	RespectRobots           *bool               `json:"respectRobots,omitempty"`
	CircuitBreakerThreshold int                 `json:"circuitBreakerThreshold,omitempty"`
	CircuitBreakerCooldown  time.Duration       `json:"circuitBreakerCooldown,omitempty"`
	MaxAttempt              int                 `json:"maxAttempt,omitempty"`
	BackoffInitialDuration  time.Duration       `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier       float64             `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration      time.Duration       `json:"backoffMaxDuration,omitempty"`
	ConnectTimeout          time.Duration       `json:"connectTimeout,omitempty"`
	ReadTimeout             time.Duration       `json:"readTimeout,omitempty"`
	TotalTimeout            time.Duration       `json:"totalTimeout,omitempty"`
	UserAgent               string              `json:"userAgent,omitempty"`
	VerifyTLS               *bool               `json:"verifyTLS,omitempty"`
	OutputPath              string              `json:"outputPath,omitempty"`
	StatsOutputPath         string              `json:"statsOutputPath,omitempty"`
	LogLevel                string              `json:"logLevel,omitempty"`
	DryRun                  bool                `json:"dryRun,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {

	// Start with default config
	cfg, err := WithDefault(dto.SeedURLs).Build()
	if err != nil {
		return Config{}, err
	}

	// AllowedHosts can be empty - if so, default to seed URLs hostnames
	if len(dto.AllowedHosts) > 0 {
		cfg.allowedHosts = dto.AllowedHosts
	}

	// AllowedPathPrefix can be empty - always use DTO values
	cfg.allowedPathPrefix = dto.AllowedPathPrefix
	if dto.SameHostOnly != nil {
		cfg.sameHostOnly = *dto.SameHostOnly
	}
	cfg.includePatterns = dto.IncludePatterns
	cfg.excludePatterns = dto.ExcludePatterns
	if dto.RespectRobots != nil {
		cfg.respectRobots = *dto.RespectRobots
	}
	cfg.dryRun = dto.DryRun
	cfg.globalRateLimit = dto.GlobalRateLimit

	// For other fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.MaxConcurrent != 0 {
		cfg.maxConcurrent = dto.MaxConcurrent
	}
	if dto.PerHostConcurrent != 0 {
		cfg.perHostConcurrent = dto.PerHostConcurrent
	}
	if dto.RequestsPerSecond != 0 {
		cfg.requestsPerSecond = dto.RequestsPerSecond
	}
	if dto.MinDelay != 0 {
		cfg.minDelay = dto.MinDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.CircuitBreakerThreshold != 0 {
		cfg.circuitBreakerThreshold = dto.CircuitBreakerThreshold
	}
	if dto.CircuitBreakerCooldown != 0 {
		cfg.circuitBreakerCooldown = dto.CircuitBreakerCooldown
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}
	if dto.ConnectTimeout != 0 {
		cfg.connectTimeout = dto.ConnectTimeout
	}
	if dto.ReadTimeout != 0 {
		cfg.readTimeout = dto.ReadTimeout
	}
	if dto.TotalTimeout != 0 {
		cfg.totalTimeout = dto.TotalTimeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.VerifyTLS != nil {
		cfg.verifyTLS = *dto.VerifyTLS
	}
	if dto.OutputPath != "" {
		cfg.outputPath = dto.OutputPath
	}
	if dto.StatsOutputPath != "" {
		cfg.statsOutputPath = dto.StatsOutputPath
	}
	if dto.LogLevel != "" {
		cfg.logLevel = dto.LogLevel
	}

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty - an error will be returned if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:     seedUrls,
		allowedHosts: map[string]struct{}{},
		allowedPathPrefix: []string{
			"/",
		},
		sameHostOnly:            true,
		maxDepth:                3,
		maxPages:                100,
		maxConcurrent:           10,
		perHostConcurrent:       2,
		requestsPerSecond:       0,
		minDelay:                time.Second,
		jitter:                  time.Millisecond * 500,
		globalRateLimit:         false,
		randomSeed:              time.Now().UnixNano(),
		respectRobots:           true,
		circuitBreakerThreshold: 5,
		circuitBreakerCooldown:  30 * time.Second,
		maxAttempt:              3,
		backoffInitialDuration:  100 * time.Millisecond,
		backoffMultiplier:       2.0,
		backoffMaxDuration:      10 * time.Second,
		connectTimeout:          5 * time.Second,
		readTimeout:             10 * time.Second,
		totalTimeout:            15 * time.Second,
		userAgent:               "webcrawler/1.0",
		verifyTLS:               true,
		outputPath:              "output.jsonl",
		logLevel:                "info",
		dryRun:                  false,
	}
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithAllowedHosts(hosts map[string]struct{}) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithAllowedPathPrefix(prefixes []string) *Config {
	c.allowedPathPrefix = prefixes
	return c
}

func (c *Config) WithSameHostOnly(sameHostOnly bool) *Config {
	c.sameHostOnly = sameHostOnly
	return c
}

func (c *Config) WithIncludePatterns(patterns []string) *Config {
	c.includePatterns = patterns
	return c
}

func (c *Config) WithExcludePatterns(patterns []string) *Config {
	c.excludePatterns = patterns
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithMaxConcurrent(maxConcurrent int) *Config {
	c.maxConcurrent = maxConcurrent
	return c
}

func (c *Config) WithPerHostConcurrent(perHostConcurrent int) *Config {
	c.perHostConcurrent = perHostConcurrent
	return c
}

func (c *Config) WithRequestsPerSecond(rps float64) *Config {
	c.requestsPerSecond = rps
	return c
}

func (c *Config) WithMinDelay(delay time.Duration) *Config {
	c.minDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithGlobalRateLimit(global bool) *Config {
	c.globalRateLimit = global
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithRespectRobots(respect bool) *Config {
	c.respectRobots = respect
	return c
}

func (c *Config) WithCircuitBreakerThreshold(threshold int) *Config {
	c.circuitBreakerThreshold = threshold
	return c
}

func (c *Config) WithCircuitBreakerCooldown(cooldown time.Duration) *Config {
	c.circuitBreakerCooldown = cooldown
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithConnectTimeout(timeout time.Duration) *Config {
	c.connectTimeout = timeout
	return c
}

func (c *Config) WithReadTimeout(timeout time.Duration) *Config {
	c.readTimeout = timeout
	return c
}

func (c *Config) WithTotalTimeout(timeout time.Duration) *Config {
	c.totalTimeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithVerifyTLS(verify bool) *Config {
	c.verifyTLS = verify
	return c
}

func (c *Config) WithOutputPath(path string) *Config {
	c.outputPath = path
	return c
}

func (c *Config) WithStatsOutputPath(path string) *Config {
	c.statsOutputPath = path
	return c
}

func (c *Config) WithLogLevel(level string) *Config {
	c.logLevel = level
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}

	// If allowedHosts is empty, default to seed URLs hostnames
	if len(c.allowedHosts) == 0 {
		c.allowedHosts = make(map[string]struct{})
		for _, u := range c.seedURLs {
			if u.Host != "" {
				c.allowedHosts[u.Host] = struct{}{}
			}
		}
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) AllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for k, v := range c.allowedHosts {
		hosts[k] = v
	}
	return hosts
}

func (c Config) AllowedPathPrefix() []string {
	prefixes := make([]string, len(c.allowedPathPrefix))
	copy(prefixes, c.allowedPathPrefix)
	return prefixes
}

func (c Config) SameHostOnly() bool {
	return c.sameHostOnly
}

func (c Config) IncludePatterns() []string {
	patterns := make([]string, len(c.includePatterns))
	copy(patterns, c.includePatterns)
	return patterns
}

func (c Config) ExcludePatterns() []string {
	patterns := make([]string, len(c.excludePatterns))
	copy(patterns, c.excludePatterns)
	return patterns
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) MaxConcurrent() int {
	return c.maxConcurrent
}

func (c Config) PerHostConcurrent() int {
	return c.perHostConcurrent
}

func (c Config) RequestsPerSecond() float64 {
	return c.requestsPerSecond
}

func (c Config) MinDelay() time.Duration {
	return c.minDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) GlobalRateLimit() bool {
	return c.globalRateLimit
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) RespectRobots() bool {
	return c.respectRobots
}

func (c Config) CircuitBreakerThreshold() int {
	return c.circuitBreakerThreshold
}

func (c Config) CircuitBreakerCooldown() time.Duration {
	return c.circuitBreakerCooldown
}

func (c Config) ConnectTimeout() time.Duration {
	return c.connectTimeout
}

func (c Config) ReadTimeout() time.Duration {
	return c.readTimeout
}

func (c Config) TotalTimeout() time.Duration {
	return c.totalTimeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) VerifyTLS() bool {
	return c.verifyTLS
}

func (c Config) OutputPath() string {
	return c.outputPath
}

func (c Config) StatsOutputPath() string {
	return c.statsOutputPath
}

func (c Config) LogLevel() string {
	return c.logLevel
}

func (c Config) DryRun() bool {
	return c.dryRun
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}
