package cmd_test

import (
	"net/url"
	"testing"
	"time"

	cmd "github.com/corvidae/webcrawler/internal/cli"
	"github.com/corvidae/webcrawler/internal/config"
)

func seedURLs(t *testing.T) []url.URL {
	t.Helper()
	parsed, err := url.Parse("https://example.com")
	if err != nil {
		t.Fatalf("failed to parse seed URL: %v", err)
	}
	return []url.URL{*parsed}
}

func TestInitConfigWithError_DefaultsMatchWithDefault(t *testing.T) {
	cmd.ResetFlags()
	defer cmd.ResetFlags()

	seeds := seedURLs(t)
	cfg, err := cmd.InitConfigWithError(seeds)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	defaultCfg, err := config.WithDefault(seeds).Build()
	if err != nil {
		t.Fatalf("expected default config to build, got %v", err)
	}

	if cfg.MaxConcurrent() != defaultCfg.MaxConcurrent() {
		t.Errorf("expected MaxConcurrent %d, got %d", defaultCfg.MaxConcurrent(), cfg.MaxConcurrent())
	}
	if cfg.OutputPath() != defaultCfg.OutputPath() {
		t.Errorf("expected OutputPath %q, got %q", defaultCfg.OutputPath(), cfg.OutputPath())
	}
	if cfg.MaxDepth() != defaultCfg.MaxDepth() {
		t.Errorf("expected MaxDepth %d, got %d", defaultCfg.MaxDepth(), cfg.MaxDepth())
	}
	if cfg.GlobalRateLimit() != defaultCfg.GlobalRateLimit() {
		t.Errorf("expected GlobalRateLimit %v, got %v", defaultCfg.GlobalRateLimit(), cfg.GlobalRateLimit())
	}
	if cfg.RespectRobots() != defaultCfg.RespectRobots() {
		t.Errorf("expected RespectRobots %v, got %v", defaultCfg.RespectRobots(), cfg.RespectRobots())
	}
}

func TestInitConfigWithError_EmptySeedURLsErrors(t *testing.T) {
	cmd.ResetFlags()
	defer cmd.ResetFlags()

	_, err := cmd.InitConfigWithError(nil)
	if err == nil {
		t.Fatal("expected error for empty seed URLs, got nil")
	}
}

func TestInitConfigWithError_FlagsOverrideDefaults(t *testing.T) {
	cmd.ResetFlags()
	defer cmd.ResetFlags()

	cmd.SetMaxDepthForTest(7)
	cmd.SetMaxConcurrentForTest(20)
	cmd.SetPerHostConcurrentForTest(4)
	cmd.SetOutputPathForTest("out.csv")
	cmd.SetStatsOutputPathForTest("stats.json")
	cmd.SetDryRunForTest(true)
	cmd.SetMaxPagesForTest(50)
	cmd.SetUserAgentForTest("test-agent/1.0")
	cmd.SetConnectTimeoutForTest(2 * time.Second)
	cmd.SetReadTimeoutForTest(3 * time.Second)
	cmd.SetTotalTimeoutForTest(4 * time.Second)
	cmd.SetMinDelayForTest(250 * time.Millisecond)
	cmd.SetJitterForTest(10 * time.Millisecond)
	cmd.SetRandomSeedForTest(42)
	cmd.SetAllowedHostsForTest([]string{"example.com", "docs.example.com"})
	cmd.SetAllowedPathPrefixForTest([]string{"/guide"})
	cmd.SetSameHostOnlyForTest(false)
	cmd.SetIncludePatternsForTest([]string{`\.html$`})
	cmd.SetExcludePatternsForTest([]string{`/private/`})
	cmd.SetRequestsPerSecondForTest(5)
	cmd.SetGlobalRateLimitForTest(true)
	cmd.SetRespectRobotsForTest(false)
	cmd.SetCircuitBreakerThresholdForTest(10)
	cmd.SetCircuitBreakerCooldownForTest(time.Minute)
	cmd.SetVerifyTLSForTest(false)
	cmd.SetLogLevelForTest("debug")

	cfg, err := cmd.InitConfigWithError(seedURLs(t))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.MaxDepth() != 7 {
		t.Errorf("expected MaxDepth 7, got %d", cfg.MaxDepth())
	}
	if cfg.MaxConcurrent() != 20 {
		t.Errorf("expected MaxConcurrent 20, got %d", cfg.MaxConcurrent())
	}
	if cfg.PerHostConcurrent() != 4 {
		t.Errorf("expected PerHostConcurrent 4, got %d", cfg.PerHostConcurrent())
	}
	if cfg.OutputPath() != "out.csv" {
		t.Errorf("expected OutputPath 'out.csv', got %q", cfg.OutputPath())
	}
	if cfg.StatsOutputPath() != "stats.json" {
		t.Errorf("expected StatsOutputPath 'stats.json', got %q", cfg.StatsOutputPath())
	}
	if !cfg.DryRun() {
		t.Error("expected DryRun true")
	}
	if cfg.MaxPages() != 50 {
		t.Errorf("expected MaxPages 50, got %d", cfg.MaxPages())
	}
	if cfg.UserAgent() != "test-agent/1.0" {
		t.Errorf("expected UserAgent 'test-agent/1.0', got %q", cfg.UserAgent())
	}
	if cfg.ConnectTimeout() != 2*time.Second {
		t.Errorf("expected ConnectTimeout 2s, got %v", cfg.ConnectTimeout())
	}
	if cfg.ReadTimeout() != 3*time.Second {
		t.Errorf("expected ReadTimeout 3s, got %v", cfg.ReadTimeout())
	}
	if cfg.TotalTimeout() != 4*time.Second {
		t.Errorf("expected TotalTimeout 4s, got %v", cfg.TotalTimeout())
	}
	if cfg.MinDelay() != 250*time.Millisecond {
		t.Errorf("expected MinDelay 250ms, got %v", cfg.MinDelay())
	}
	if cfg.Jitter() != 10*time.Millisecond {
		t.Errorf("expected Jitter 10ms, got %v", cfg.Jitter())
	}
	if cfg.RandomSeed() != 42 {
		t.Errorf("expected RandomSeed 42, got %d", cfg.RandomSeed())
	}
	if _, ok := cfg.AllowedHosts()["example.com"]; !ok {
		t.Error("expected example.com in AllowedHosts")
	}
	if _, ok := cfg.AllowedHosts()["docs.example.com"]; !ok {
		t.Error("expected docs.example.com in AllowedHosts")
	}
	if len(cfg.AllowedPathPrefix()) != 1 || cfg.AllowedPathPrefix()[0] != "/guide" {
		t.Errorf("expected AllowedPathPrefix [/guide], got %v", cfg.AllowedPathPrefix())
	}
	if cfg.SameHostOnly() {
		t.Error("expected SameHostOnly false")
	}
	if len(cfg.IncludePatterns()) != 1 || cfg.IncludePatterns()[0] != `\.html$` {
		t.Errorf("unexpected IncludePatterns %v", cfg.IncludePatterns())
	}
	if len(cfg.ExcludePatterns()) != 1 || cfg.ExcludePatterns()[0] != "/private/" {
		t.Errorf("unexpected ExcludePatterns %v", cfg.ExcludePatterns())
	}
	if cfg.RequestsPerSecond() != 5 {
		t.Errorf("expected RequestsPerSecond 5, got %v", cfg.RequestsPerSecond())
	}
	if !cfg.GlobalRateLimit() {
		t.Error("expected GlobalRateLimit true")
	}
	if cfg.RespectRobots() {
		t.Error("expected RespectRobots false")
	}
	if cfg.CircuitBreakerThreshold() != 10 {
		t.Errorf("expected CircuitBreakerThreshold 10, got %d", cfg.CircuitBreakerThreshold())
	}
	if cfg.CircuitBreakerCooldown() != time.Minute {
		t.Errorf("expected CircuitBreakerCooldown 1m, got %v", cfg.CircuitBreakerCooldown())
	}
	if cfg.VerifyTLS() {
		t.Error("expected VerifyTLS false")
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("expected LogLevel 'debug', got %q", cfg.LogLevel())
	}
}

func TestInitConfigWithError_ConfigFileNotFoundErrors(t *testing.T) {
	cmd.ResetFlags()
	defer cmd.ResetFlags()

	cmd.SetConfigFileForTest("/nonexistent/path/to/config.json")

	_, err := cmd.InitConfigWithError(seedURLs(t))
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestResetFlags_RestoresDefaults(t *testing.T) {
	cmd.ResetFlags()

	cmd.SetMaxConcurrentForTest(99)
	cmd.SetOutputPathForTest("custom.jsonl")
	cmd.SetRespectRobotsForTest(false)
	cmd.SetVerifyTLSForTest(false)

	cmd.ResetFlags()
	defer cmd.ResetFlags()

	cfg, err := cmd.InitConfigWithError(seedURLs(t))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	defaultCfg, err := config.WithDefault(seedURLs(t)).Build()
	if err != nil {
		t.Fatalf("expected default config to build, got %v", err)
	}

	if cfg.MaxConcurrent() != defaultCfg.MaxConcurrent() {
		t.Errorf("after ResetFlags, expected MaxConcurrent %d, got %d", defaultCfg.MaxConcurrent(), cfg.MaxConcurrent())
	}
	if cfg.OutputPath() != defaultCfg.OutputPath() {
		t.Errorf("after ResetFlags, expected OutputPath %q, got %q", defaultCfg.OutputPath(), cfg.OutputPath())
	}
	if !cfg.RespectRobots() {
		t.Error("after ResetFlags, expected RespectRobots true")
	}
	if !cfg.VerifyTLS() {
		t.Error("after ResetFlags, expected VerifyTLS true")
	}
}

// SameHostOnly is applied unconditionally from the CLI flag (unlike most
// numeric/string flags, which only override when set), so its CLI-level
// default tracks the flag's own zero value (false) rather than
// config.WithDefault's true, until --same-host-only is passed explicitly.
func TestInitConfigWithError_SameHostOnlyFollowsFlagDefault(t *testing.T) {
	cmd.ResetFlags()
	defer cmd.ResetFlags()

	cfg, err := cmd.InitConfigWithError(seedURLs(t))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.SameHostOnly() {
		t.Error("expected SameHostOnly false when --same-host-only is not passed")
	}

	cmd.SetSameHostOnlyForTest(true)
	cfg, err = cmd.InitConfigWithError(seedURLs(t))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cfg.SameHostOnly() {
		t.Error("expected SameHostOnly true once set")
	}
}
