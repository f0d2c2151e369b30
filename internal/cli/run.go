package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/corvidae/webcrawler/internal/config"
	"github.com/corvidae/webcrawler/internal/metadata"
	"github.com/corvidae/webcrawler/internal/scheduler"
	"github.com/corvidae/webcrawler/internal/storage"
)

// exitSignal is returned by Run when the crawl was interrupted by
// SIGINT/SIGTERM rather than completing or failing outright, letting
// rootCmd.Run map it to exit code 2 instead of 1.
type exitSignal struct{ error }

func (e exitSignal) Unwrap() error { return e.error }

// crawlStats is the JSON shape written to --stats-output (or stdout when
// unset) once the crawl finishes.
type crawlStats struct {
	TotalPages  int    `json:"totalPages"`
	TotalFailed int    `json:"totalFailed"`
	TotalErrors int    `json:"totalErrors"`
	DurationMs  int64  `json:"durationMs"`
	Interrupted bool   `json:"interrupted,omitempty"`
	OutputPath  string `json:"outputPath,omitempty"`
}

// Run builds the crawl's collaborators from cfg and drives the crawl to
// completion: one metadata.Recorder shared by the storage sink, the
// robots cache, and the fetch client, a storage.Sink selected by the
// output path's extension, and an scheduler.Orchestrator tying them
// together. SIGINT/SIGTERM cancel the crawl context so in-flight fetches
// unwind instead of being killed mid-request; that case is surfaced as
// exitSignal so Execute can report exit code 2.
func Run(cfg config.Config) error {
	metadataSink := metadata.NewStderrRecorder()

	storageSink, err := storage.NewSink(cfg.OutputPath(), metadataSink)
	if err != nil {
		return fmt.Errorf("initializing storage sink: %w", err)
	}
	defer storageSink.Close()

	orchestrator := scheduler.NewOrchestrator(cfg, metadataSink, storageSink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec, crawlErr := orchestrator.Crawl(ctx, cfg.SeedURLs(), cfg.MaxPages())

	interrupted := ctx.Err() != nil
	metadataSink.RecordFinalCrawlStats(exec.TotalPages, exec.TotalErrors, 0, exec.Duration)

	if writeErr := writeStats(cfg, exec, interrupted); writeErr != nil {
		fmt.Fprintf(os.Stderr, "Error: writing crawl stats: %s\n", writeErr)
	}

	if crawlErr != nil {
		return fmt.Errorf("crawl failed: %w", crawlErr)
	}
	if interrupted {
		return exitSignal{fmt.Errorf("crawl interrupted: %w", ctx.Err())}
	}
	return nil
}

func writeStats(cfg config.Config, exec scheduler.Execution, interrupted bool) error {
	stats := crawlStats{
		TotalPages:  exec.TotalPages,
		TotalFailed: exec.TotalFailed,
		TotalErrors: exec.TotalErrors,
		DurationMs:  exec.Duration.Milliseconds(),
		Interrupted: interrupted,
		OutputPath:  cfg.OutputPath(),
	}

	encoded, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')

	if cfg.StatsOutputPath() == "" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	return os.WriteFile(cfg.StatsOutputPath(), encoded, 0o644)
}

// exitCodeFor maps a Run error to the process exit code Execute's doc
// comment promises: 2 for interrupt, 1 for everything else.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var sig exitSignal
	if errors.As(err, &sig) {
		return 2
	}
	return 1
}
