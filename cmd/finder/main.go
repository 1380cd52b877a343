package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/crab-wise/tryst-scraper/internal/adapter/chromedp_browser"
	"github.com/crab-wise/tryst-scraper/internal/adapter/filestore"
	"github.com/crab-wise/tryst-scraper/internal/adapter/twocaptcha"
	"github.com/crab-wise/tryst-scraper/internal/challenge"
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

	searchURL := flag.String("search-url", cfg.SearchURL, "search results URL to walk")
	urlFile := flag.String("urls", cfg.URLFile, "file the harvested profile URLs are merged into")
	startPage := flag.Int("start-page", 1, "first results page to fetch")
	maxPages := flag.Int("max-pages", cfg.MaxPages, "stop after this many pages (0 = until the pager ends)")
	pagesPerMin := flag.Int("pages-per-min", cfg.PagesPerMin, "pacing for results pages")
	visible := flag.Bool("visible", false, "run the browser with a visible window")
	flag.Parse()

	// --- Logger ---
	logger.Init(os.Stdout, logger.ParseLevel(cfg.LogLevel))

	// --- Metrics ---
	metrics.Init()

	if *searchURL == "" {
		slog.Error("No search URL configured; set SEARCH_URL or pass -search-url")
		os.Exit(1)
	}

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
		slog.Warn("No solver API key configured, CAPTCHA pages will abort the walk")
	}
	detector := challenge.NewDetector()
	resolver := challenge.NewResolver(detector, solver, cfg.RevealSettle)
	delay := throttle.New(cfg.BaseDelay, cfg.MaxDelay, cfg.BackoffFactor, cfg.DecayFactor)

	walker := usecase.NewWalker(browser, resolver, delay, *searchURL, filestore.NewURLFile(*urlFile), *pagesPerMin, *maxPages, *startPage)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Walk ---
	total, added, err := walker.Walk(ctx)
	if err != nil {
		slog.Error("Walk failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("URL file %s now holds %d profile URLs (%d new)\n", *urlFile, total, added)
}
