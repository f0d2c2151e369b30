package cmd

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/corvidae/webcrawler/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile                 string
	seedURLs                []string
	maxDepth                int
	maxConcurrent           int
	perHostConcurrent       int
	outputPath              string
	statsOutputPath         string
	dryRun                  bool
	maxPages                int
	userAgent               string
	connectTimeout          time.Duration
	readTimeout             time.Duration
	totalTimeout            time.Duration
	minDelay                time.Duration
	jitter                  time.Duration
	randomSeed              int64
	allowedHosts            []string
	allowedPathPrefix       []string
	sameHostOnly            bool
	includePatterns         []string
	excludePatterns         []string
	requestsPerSecond       float64
	globalRateLimit         bool
	respectRobots           bool
	circuitBreakerThreshold int
	circuitBreakerCooldown  time.Duration
	verifyTLS               bool
	logLevel                string
)

// parseStringSliceToSet converts a string slice to a map[string]struct{} set
func parseStringSliceToSet(strings []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// parseSeedURLs converts a string slice of URLs to []url.URL
func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	if len(urlStrings) == 0 {
		return nil, fmt.Errorf("seed URLs cannot be empty")
	}

	var urls []url.URL
	for _, urlStr := range urlStrings {
		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", urlStr, err)
		}
		urls = append(urls, *parsedURL)
	}
	return urls, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "webcrawler",
	Short: "A polite, concurrent web crawler.",
	Long: `webcrawler is a CLI application that crawls websites breadth-first
from a set of seed URLs, respecting robots.txt and per-host rate limits,
and records one structured PageRecord per fetched page.

This tool aims to provide a deterministic and repeatable crawl process
under explicit depth, page-count, and politeness limits.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(seedURLs) == 0 {
			fmt.Fprintf(os.Stderr, "Error: --seed-url is required. Please provide at least one seed URL to start crawling.\n")
			cmd.Usage()
			os.Exit(1)
		}

		parsedURLs, err := parseSeedURLs(seedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		cfg := InitConfig(parsedURLs)

		if err := Run(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(exitCodeFor(err))
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Exit codes: 0 success, 1 configuration/initialization/crawl error, 2 on
// SIGINT/SIGTERM interrupt.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 0, "maximum link depth from seed URL")
	rootCmd.PersistentFlags().IntVar(&maxConcurrent, "max-concurrent", 0, "maximum number of concurrent fetch workers across all hosts")
	rootCmd.PersistentFlags().IntVar(&perHostConcurrent, "per-host-concurrent", 0, "maximum number of concurrent fetches to any single host")
	rootCmd.PersistentFlags().StringVar(&outputPath, "output", "", "output file path; extension (.jsonl/.csv/.db) selects the storage backend")
	rootCmd.PersistentFlags().StringVar(&statsOutputPath, "stats-output", "", "path to write the final crawl-stats summary to")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "crawl without writing output")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (0 for unlimited)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&connectTimeout, "connect-timeout", 0, "base connect timeout for the first fetch attempt")
	rootCmd.PersistentFlags().DurationVar(&readTimeout, "read-timeout", 0, "base read timeout for the first fetch attempt")
	rootCmd.PersistentFlags().DurationVar(&totalTimeout, "total-timeout", 0, "base total timeout for the first fetch attempt")
	rootCmd.PersistentFlags().DurationVar(&minDelay, "min-delay", 0, "minimum delay between requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added to min-delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedHosts, "allowed-host", []string{}, "explicit hostname allowlist (defaults to seed host)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedPathPrefix, "allowed-path-prefix", []string{}, "restrict crawl to paths like `/docs`, `/guide`")
	rootCmd.PersistentFlags().BoolVar(&sameHostOnly, "same-host-only", false, "restrict discovered links to the seed URLs' own host(s)")
	rootCmd.PersistentFlags().StringArrayVar(&includePatterns, "include", []string{}, "regex a discovered URL must match to be admitted (repeatable)")
	rootCmd.PersistentFlags().StringArrayVar(&excludePatterns, "exclude", []string{}, "regex that excludes a discovered URL from admission (repeatable)")
	rootCmd.PersistentFlags().Float64Var(&requestsPerSecond, "requests-per-second", 0, "cap on requests issued per second, per host unless --global-rate-limit is set (0 for unlimited)")
	rootCmd.PersistentFlags().BoolVar(&globalRateLimit, "global-rate-limit", false, "share one requests-per-second bucket across all hosts instead of one per host")
	rootCmd.PersistentFlags().BoolVar(&respectRobots, "respect-robots", true, "consult robots.txt before admitting a URL")
	rootCmd.PersistentFlags().IntVar(&circuitBreakerThreshold, "circuit-breaker-threshold", 0, "consecutive host failures before its circuit opens")
	rootCmd.PersistentFlags().DurationVar(&circuitBreakerCooldown, "circuit-breaker-cooldown", 0, "how long a host's circuit stays open once tripped")
	rootCmd.PersistentFlags().BoolVar(&verifyTLS, "verify-tls", true, "verify TLS certificates")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "minimum severity of log line emitted (debug/info/warn/error)")
}

// InitConfig reads in config file and ENV variables if set.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
func InitConfig(seedUrls []url.URL) config.Config {
	cfg, err := InitConfigWithError(seedUrls)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError reads in config file and ENV variables if set, returning any errors.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
// This makes it easier to test error cases.
func InitConfigWithError(seedUrls []url.URL) (config.Config, error) {
	if len(seedUrls) == 0 {
		return config.Config{}, fmt.Errorf("%w: seedUrls cannot be empty", config.ErrInvalidConfig)
	}

	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	configBuilder := config.WithDefault(seedUrls)

	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}
	if maxConcurrent > 0 {
		configBuilder = configBuilder.WithMaxConcurrent(maxConcurrent)
	}
	if perHostConcurrent > 0 {
		configBuilder = configBuilder.WithPerHostConcurrent(perHostConcurrent)
	}
	if outputPath != "" {
		configBuilder = configBuilder.WithOutputPath(outputPath)
	}
	if statsOutputPath != "" {
		configBuilder = configBuilder.WithStatsOutputPath(statsOutputPath)
	}
	if dryRun {
		configBuilder = configBuilder.WithDryRun(dryRun)
	}
	if maxPages > 0 {
		configBuilder = configBuilder.WithMaxPages(maxPages)
	}
	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}
	if connectTimeout > 0 {
		configBuilder = configBuilder.WithConnectTimeout(connectTimeout)
	}
	if readTimeout > 0 {
		configBuilder = configBuilder.WithReadTimeout(readTimeout)
	}
	if totalTimeout > 0 {
		configBuilder = configBuilder.WithTotalTimeout(totalTimeout)
	}
	if minDelay > 0 {
		configBuilder = configBuilder.WithMinDelay(minDelay)
	}
	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}
	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}
	if len(allowedHosts) > 0 {
		configBuilder = configBuilder.WithAllowedHosts(parseStringSliceToSet(allowedHosts))
	}
	if len(allowedPathPrefix) > 0 {
		configBuilder = configBuilder.WithAllowedPathPrefix(allowedPathPrefix)
	}
	configBuilder = configBuilder.WithSameHostOnly(sameHostOnly)
	if len(includePatterns) > 0 {
		configBuilder = configBuilder.WithIncludePatterns(includePatterns)
	}
	if len(excludePatterns) > 0 {
		configBuilder = configBuilder.WithExcludePatterns(excludePatterns)
	}
	if requestsPerSecond > 0 {
		configBuilder = configBuilder.WithRequestsPerSecond(requestsPerSecond)
	}
	configBuilder = configBuilder.WithGlobalRateLimit(globalRateLimit)
	configBuilder = configBuilder.WithRespectRobots(respectRobots)
	if circuitBreakerThreshold > 0 {
		configBuilder = configBuilder.WithCircuitBreakerThreshold(circuitBreakerThreshold)
	}
	if circuitBreakerCooldown > 0 {
		configBuilder = configBuilder.WithCircuitBreakerCooldown(circuitBreakerCooldown)
	}
	configBuilder = configBuilder.WithVerifyTLS(verifyTLS)
	if logLevel != "" {
		configBuilder = configBuilder.WithLogLevel(logLevel)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	maxConcurrent = 0
	perHostConcurrent = 0
	outputPath = ""
	statsOutputPath = ""
	dryRun = false
	maxPages = 0
	userAgent = ""
	connectTimeout = 0
	readTimeout = 0
	totalTimeout = 0
	minDelay = 0
	jitter = 0
	randomSeed = 0
	allowedHosts = []string{}
	allowedPathPrefix = []string{}
	sameHostOnly = false
	includePatterns = []string{}
	excludePatterns = []string{}
	requestsPerSecond = 0
	globalRateLimit = false
	respectRobots = true
	circuitBreakerThreshold = 0
	circuitBreakerCooldown = 0
	verifyTLS = true
	logLevel = ""
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSeedURLsForTest(urls []string) {
	seedURLs = urls
}

func SetMaxDepthForTest(depth int) {
	maxDepth = depth
}

func SetMaxConcurrentForTest(n int) {
	maxConcurrent = n
}

func SetPerHostConcurrentForTest(n int) {
	perHostConcurrent = n
}

func SetOutputPathForTest(path string) {
	outputPath = path
}

func SetStatsOutputPathForTest(path string) {
	statsOutputPath = path
}

func SetDryRunForTest(dry bool) {
	dryRun = dry
}

func SetMaxPagesForTest(pages int) {
	maxPages = pages
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetConnectTimeoutForTest(t time.Duration) {
	connectTimeout = t
}

func SetReadTimeoutForTest(t time.Duration) {
	readTimeout = t
}

func SetTotalTimeoutForTest(t time.Duration) {
	totalTimeout = t
}

func SetMinDelayForTest(delay time.Duration) {
	minDelay = delay
}

func SetJitterForTest(j time.Duration) {
	jitter = j
}

func SetRandomSeedForTest(seed int64) {
	randomSeed = seed
}

func SetAllowedHostsForTest(hosts []string) {
	allowedHosts = hosts
}

func SetAllowedPathPrefixForTest(prefixes []string) {
	allowedPathPrefix = prefixes
}

func SetSameHostOnlyForTest(v bool) {
	sameHostOnly = v
}

func SetIncludePatternsForTest(patterns []string) {
	includePatterns = patterns
}

func SetExcludePatternsForTest(patterns []string) {
	excludePatterns = patterns
}

func SetRequestsPerSecondForTest(rps float64) {
	requestsPerSecond = rps
}

func SetGlobalRateLimitForTest(v bool) {
	globalRateLimit = v
}

func SetRespectRobotsForTest(v bool) {
	respectRobots = v
}

func SetCircuitBreakerThresholdForTest(n int) {
	circuitBreakerThreshold = n
}

func SetCircuitBreakerCooldownForTest(d time.Duration) {
	circuitBreakerCooldown = d
}

func SetVerifyTLSForTest(v bool) {
	verifyTLS = v
}

func SetLogLevelForTest(level string) {
	logLevel = level
}
