package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crab-wise/tryst-scraper/internal/adapter/chromedp_browser"
	"github.com/crab-wise/tryst-scraper/internal/adapter/filestore"
	"github.com/crab-wise/tryst-scraper/internal/adapter/twocaptcha"
	"github.com/crab-wise/tryst-scraper/internal/challenge"
	"github.com/crab-wise/tryst-scraper/internal/delivery/http/handler"
	"github.com/crab-wise/tryst-scraper/internal/delivery/http/router"
	"github.com/crab-wise/tryst-scraper/internal/extract"
	"github.com/crab-wise/tryst-scraper/internal/repository"
	"github.com/crab-wise/tryst-scraper/internal/throttle"
	"github.com/crab-wise/tryst-scraper/internal/usecase"
	"github.com/crab-wise/tryst-scraper/pkg/config"
	"github.com/crab-wise/tryst-scraper/pkg/logger"
	"github.com/crab-wise/tryst-scraper/pkg/metrics"
)

func main() {
	// --- Configuration ---
	cfg := config.Load()

	urlFile := flag.String("urls", cfg.URLFile, "file with one profile URL per line")
	outputFile := flag.String("output", cfg.OutputFile, "CSV output file")
	ledgerFile := flag.String("ledger", cfg.LedgerFile, "completed-URL ledger file")
	progressFile := flag.String("progress", cfg.ProgressFile, "progress snapshot file")
	statsFile := flag.String("stats", cfg.StatsFile, "end-of-run stats file")
	debugDir := flag.String("debug-dir", cfg.DebugDir, "directory for failure screenshots (empty disables)")
	workers := flag.Int("workers", cfg.Workers, "concurrent browser workers")
	batchSize := flag.Int("batch", cfg.BatchSize, "URLs per batch")
	startIndex := flag.Int("start-index", 0, "skip this many pending URLs")
	limit := flag.Int("limit", 0, "process at most this many URLs (0 = all)")
	reset := flag.Bool("reset", false, "clear ledger, output and progress before starting")
	visible := flag.Bool("visible", false, "run the browser with a visible window")
	statusAddr := flag.String("status-addr", cfg.StatusAddr, "address for the status/metrics server (empty disables)")
	flag.Parse()

	// --- Logger ---
	logger.Init(os.Stdout, logger.ParseLevel(cfg.LogLevel))

	// --- Metrics ---
	metrics.Init()

	if *reset {
		if err := filestore.Reset(*ledgerFile, *outputFile, *progressFile, *statsFile); err != nil {
			slog.Error("Failed to reset state files", "error", err)
			os.Exit(1)
		}
		slog.Info("State files cleared", "ledger", *ledgerFile, "output", *outputFile)
	}

	// --- URL queue ---
	urls, err := filestore.LoadURLList(*urlFile)
	if err != nil {
		slog.Error("Failed to load URL file", "file", *urlFile, "error", err)
		os.Exit(1)
	}
	urls = slice(urls, *startIndex, *limit)
	if len(urls) == 0 {
		slog.Info("No URLs to process", "file", *urlFile)
		return
	}

	// --- Durable stores ---
	ledger, err := filestore.NewLedger(*ledgerFile)
	if err != nil {
		slog.Error("Failed to open ledger", "file", *ledgerFile, "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	records, err := filestore.NewRecordWriter(*outputFile)
	if err != nil {
		slog.Error("Failed to open output file", "file", *outputFile, "error", err)
		os.Exit(1)
	}
	defer records.Close()

	progress := filestore.NewProgressFile(*progressFile)

	// --- Browser ---
	browser, err := chromedp_browser.NewFactory(chromedp_browser.Options{
		Headless:        cfg.Headless && !*visible,
		EvadeFocusSteal: cfg.EvadeFocusSteal,
		UserAgent:       cfg.UserAgent,
		NavTimeout:      cfg.PageLoadTimeout,
	})
	if err != nil {
		slog.Error("Failed to start browser", "error", err)
		os.Exit(1)
	}
	defer browser.Close()

	// --- Challenge handling ---
	var solver repository.CaptchaSolver
	if cfg.SolverAPIKey != "" {
		solver = usecase.MeterSolver(twocaptcha.New(cfg.SolverBaseURL, cfg.SolverAPIKey, cfg.SolverMaxPolls, cfg.SolverPollDelay))
	} else {
		slog.Warn("No solver API key configured, CAPTCHA pages will fail terminally")
	}
	detector := challenge.NewDetector()
	resolver := challenge.NewResolver(detector, solver, cfg.RevealSettle)
	extractor := extract.New(detector, resolver, cfg.RevealSettle)
	delay := throttle.New(cfg.BaseDelay, cfg.MaxDelay, cfg.BackoffFactor, cfg.DecayFactor)

	pipeline := usecase.NewPipeline(browser, resolver, extractor, ledger, records, progress, delay, usecase.Params{
		Workers:        *workers,
		BatchSize:      *batchSize,
		MinWorkers:     cfg.MinWorkers,
		MinBatchSize:   cfg.MinBatchSize,
		MaxAttempts:    cfg.MaxAttempts,
		RateLimitLimit: cfg.RateLimitLimit,
		AdjustPause:    cfg.AdjustPause,
		DebugDir:       *debugDir,
	})

	// --- Status server ---
	if *statusAddr != "" {
		srv := &http.Server{
			Addr:         *statusAddr,
			Handler:      router.New(handler.NewHandler(pipeline)),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			slog.Info("Status server listening", "addr", *statusAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Status server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Run ---
	stats, err := pipeline.Run(ctx, urls)
	if err != nil {
		slog.Error("Run aborted", "error", err)
		os.Exit(1)
	}

	if err := filestore.WriteStats(*statsFile, stats); err != nil {
		slog.Warn("Failed to write stats file", "file", *statsFile, "error", err)
	}

	fmt.Printf("Processed %d profiles: %d succeeded, %d failed, %d deferred in %s (%.2f/s)\n",
		stats.Success+stats.Failed+stats.Deferred,
		stats.Success, stats.Failed, stats.Deferred,
		stats.Elapsed.Round(time.Second), stats.PerSecond)
}

// slice applies -start-index and -limit to the pending queue.
func slice(urls []string, start, limit int) []string {
	if start >= len(urls) {
		return nil
	}
	if start > 0 {
		urls = urls[start:]
	}
	if limit > 0 && limit < len(urls) {
		urls = urls[:limit]
	}
	return urls
}
