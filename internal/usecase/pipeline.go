// Package usecase wires the browser, challenge handling, extraction and the
// durable stores into the two top-level operations: the profile pipeline and
// the search walker.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crab-wise/tryst-scraper/internal/challenge"
	"github.com/crab-wise/tryst-scraper/internal/entity"
	"github.com/crab-wise/tryst-scraper/internal/extract"
	"github.com/crab-wise/tryst-scraper/internal/repository"
	"github.com/crab-wise/tryst-scraper/internal/throttle"
	"github.com/crab-wise/tryst-scraper/pkg/metrics"
	"github.com/crab-wise/tryst-scraper/pkg/utils"
)

// Phase names the pipeline's current stage, surfaced on the status endpoint.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseLoading    Phase = "loading-queue"
	PhaseProcessing Phase = "processing-batch"
	PhaseAdjusting  Phase = "adjusting-concurrency"
	PhaseDraining   Phase = "draining"
	PhaseDone       Phase = "done"
)

// Params bounds the pipeline. Zero values fall back to safe defaults.
type Params struct {
	Workers        int
	BatchSize      int
	MinWorkers     int
	MinBatchSize   int
	MaxAttempts    int
	RateLimitLimit int // per-batch wall hits before halving concurrency
	AdjustPause    time.Duration
	DebugDir       string
}

func (p Params) withDefaults() Params {
	if p.Workers <= 0 {
		p.Workers = 4
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 50
	}
	if p.MinWorkers <= 0 {
		p.MinWorkers = 1
	}
	if p.MinBatchSize <= 0 {
		p.MinBatchSize = 5
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.RateLimitLimit <= 0 {
		p.RateLimitLimit = 5
	}
	return p
}

// Pipeline processes profile URLs through navigate, resolve, reveal, extract
// and persist, with adaptive pacing and batch-level concurrency adjustment.
type Pipeline struct {
	browser   repository.BrowserFactory
	resolver  *challenge.Resolver
	extractor *extract.Extractor
	ledger    repository.WorkLedger
	records   repository.RecordStore
	progress  repository.ProgressStore
	delay     *throttle.AdaptiveDelay
	params    Params

	mu       sync.Mutex
	phase    Phase
	snap     entity.ProgressSnapshot
	stats    entity.RunStats
	fatalErr error
}

func NewPipeline(
	browser repository.BrowserFactory,
	resolver *challenge.Resolver,
	extractor *extract.Extractor,
	ledger repository.WorkLedger,
	records repository.RecordStore,
	progress repository.ProgressStore,
	delay *throttle.AdaptiveDelay,
	params Params,
) *Pipeline {
	return &Pipeline{
		browser:   browser,
		resolver:  resolver,
		extractor: extractor,
		ledger:    ledger,
		records:   records,
		progress:  progress,
		delay:     delay,
		params:    params.withDefaults(),
		phase:     PhaseIdle,
	}
}

// Phase returns the pipeline's current stage.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Snapshot returns the latest progress snapshot for the status endpoint.
func (p *Pipeline) Snapshot() entity.ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Pipeline) setPhase(ph Phase) {
	p.mu.Lock()
	p.phase = ph
	p.mu.Unlock()
}

// Run processes every URL not already in the ledger. Partial failures are
// normal and do not produce an error; only an unusable ledger or output
// store aborts the run.
func (p *Pipeline) Run(ctx context.Context, urls []string) (*entity.RunStats, error) {
	runID := uuid.NewString()
	start := time.Now()

	p.setPhase(PhaseLoading)
	pending := p.ledger.Pending(urls)
	metrics.URLsPending.Set(float64(len(pending)))

	p.mu.Lock()
	p.stats = entity.RunStats{RunID: runID, Total: len(pending), ErrorKinds: map[string]int{}}
	p.mu.Unlock()

	slog.Info("Pipeline starting",
		"run_id", runID,
		"queued", len(urls),
		"pending", len(pending),
		"workers", p.params.Workers,
		"batch_size", p.params.BatchSize)

	workers := p.params.Workers
	batchSize := p.params.BatchSize
	processed := 0

	for processed < len(pending) {
		if err := ctx.Err(); err != nil {
			break
		}

		end := processed + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[processed:end]

		hitsBefore := p.delay.Hits()
		p.setPhase(PhaseProcessing)
		p.runBatch(ctx, batch, workers)
		processed = end

		if err := p.fatal(); err != nil {
			p.setPhase(PhaseDone)
			return nil, err
		}

		p.writeProgress(runID, processed, len(pending), workers, batchSize, start, batch[len(batch)-1])

		// A batch that keeps hitting the wall means the site has flagged
		// this client; shrink the footprint before continuing.
		hits := int(p.delay.Hits() - hitsBefore)
		if hits >= p.params.RateLimitLimit && processed < len(pending) {
			p.setPhase(PhaseAdjusting)
			workers, batchSize = p.shrink(workers, batchSize)
			slog.Warn("Heavy rate limiting, reducing concurrency",
				"run_id", runID,
				"wall_hits", hits,
				"workers", workers,
				"batch_size", batchSize,
				"pause", p.params.AdjustPause)
			if err := sleepCtx(ctx, p.params.AdjustPause); err != nil {
				break
			}
		}
	}

	p.setPhase(PhaseDraining)
	stats := p.finalize(start)
	p.setPhase(PhaseDone)

	slog.Info("Pipeline finished",
		"run_id", runID,
		"success", stats.Success,
		"failed", stats.Failed,
		"deferred", stats.Deferred,
		"elapsed", stats.Elapsed.Round(time.Second),
		"per_second", fmt.Sprintf("%.2f", stats.PerSecond))
	return stats, nil
}

func (p *Pipeline) runBatch(ctx context.Context, batch []string, workers int) {
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, u := range batch {
		if ctx.Err() != nil || p.fatal() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer func() { <-sem }()
			p.processOne(ctx, url)
		}(u)
	}
	wg.Wait()
}

// processOne runs the full per-profile pipeline with the attempt loop.
// Panics in a worker are converted to a terminal failure for that URL so one
// bad page cannot take the run down.
func (p *Pipeline) processOne(ctx context.Context, url string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker panic", "url", url, "panic", r)
			rec := entity.NewProfileRecord(url)
			rec.FailureKind = entity.FailureTerminal
			rec.FailureReason = fmt.Sprintf("unexpected error: %v", r)
			p.persistTerminal(rec)
		}
	}()

	start := time.Now()
	rec, err := p.attemptLoop(ctx, url)
	elapsed := time.Since(start)
	metrics.ScrapeDuration.Observe(elapsed.Seconds())

	if err != nil {
		// Transient exhaustion: leave the URL for the next run.
		p.countDeferred(err)
		metrics.ScrapesTotal.WithLabelValues("deferred", errorKind(err)).Inc()
		slog.Warn("Profile deferred to next run", "url", url, "error", err)
		return
	}

	rec.ProcessTime = elapsed
	if rec.Success {
		metrics.ScrapesTotal.WithLabelValues("success", "").Inc()
		slog.Info("Profile scraped",
			"url", url,
			"name", rec.Field(entity.FieldName),
			"duration_ms", elapsed.Milliseconds())
	} else {
		metrics.ScrapesTotal.WithLabelValues("failure", rec.FailureReason).Inc()
		slog.Warn("Profile failed terminally", "url", url, "reason", rec.FailureReason)
	}
	p.persistTerminal(rec)
}

// attemptLoop retries the pipeline up to MaxAttempts. A nil error carries a
// record to persist and mark done; a non-nil error means every attempt was
// transient and the URL stays pending.
func (p *Pipeline) attemptLoop(ctx context.Context, url string) (*entity.ProfileRecord, error) {
	var lastErr error

	for attempt := 1; attempt <= p.params.MaxAttempts; attempt++ {
		if err := sleepCtx(ctx, p.delay.Current()); err != nil {
			return nil, err
		}

		rec, err := p.attemptOnce(ctx, url)
		if err == nil {
			p.delay.ReportSuccess()
			metrics.AdaptiveDelay.Set(p.delay.Current().Seconds())
			rec.Success = true
			return rec, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, context.Canceled):
			return nil, err
		case errors.Is(err, repository.ErrRateLimited):
			next := p.delay.ReportRateLimited()
			metrics.RateLimitHits.Inc()
			metrics.AdaptiveDelay.Set(next.Seconds())
			slog.Warn("Rate limited", "url", url, "attempt", attempt, "next_delay", next)
		case isTransient(err):
			slog.Warn("Transient failure", "url", url, "attempt", attempt, "error", err)
		default:
			slog.Warn("Challenge not beaten", "url", url, "attempt", attempt, "error", err)
		}
	}

	if isTransient(lastErr) {
		// The site was unwilling, not the page unbeatable; leave the URL
		// pending for the next run.
		return nil, lastErr
	}

	// Every attempt ended at an unbeatable challenge or a non-profile page.
	// Record the failure and never revisit.
	rec := entity.NewProfileRecord(url)
	rec.FailureKind = entity.FailureTerminal
	rec.FailureReason = errorKind(lastErr)
	return rec, nil
}

func (p *Pipeline) attemptOnce(ctx context.Context, url string) (*entity.ProfileRecord, error) {
	sess, err := p.browser.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w: %w", err, repository.ErrNavigationFailed)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, url); err != nil {
		return nil, err
	}
	if _, err := p.resolver.Resolve(ctx, sess, url); err != nil {
		if errors.Is(err, repository.ErrNotContentPage) {
			// The scorer can miss restyled profile pages; try the
			// extraction anyway and keep it only if it found contacts.
			if rec, xerr := p.extractor.Extract(ctx, sess, url); xerr == nil && hasContactData(rec) {
				rec.LowConfidence = true
				slog.Info("Low-confidence page yielded contact data", "url", url)
				return rec, nil
			}
		}
		p.debugShot(ctx, sess, url)
		return nil, err
	}
	rec, err := p.extractor.Extract(ctx, sess, url)
	if err != nil {
		p.debugShot(ctx, sess, url)
		return nil, err
	}
	return rec, nil
}

// hasContactData reports whether any field beyond the display name was
// captured.
func hasContactData(rec *entity.ProfileRecord) bool {
	for _, key := range entity.FieldKeys {
		if key == entity.FieldName {
			continue
		}
		if rec.Field(key) != "" {
			return true
		}
	}
	return false
}

// persistTerminal writes the record and marks the ledger. A failure of
// either store is fatal for the whole run: continuing would re-scrape or
// silently drop completed work.
func (p *Pipeline) persistTerminal(rec *entity.ProfileRecord) {
	if err := p.records.Append(rec); err != nil {
		p.setFatal(fmt.Errorf("append output record for %s: %w", rec.URL, err))
		return
	}
	if err := p.ledger.MarkDone(rec.URL); err != nil {
		p.setFatal(fmt.Errorf("mark ledger for %s: %w", rec.URL, err))
		return
	}

	p.mu.Lock()
	if rec.Success {
		p.stats.Success++
	} else {
		p.stats.Failed++
		p.stats.ErrorKinds[rec.FailureReason]++
	}
	p.mu.Unlock()
}

func (p *Pipeline) countDeferred(err error) {
	p.mu.Lock()
	p.stats.Deferred++
	p.stats.ErrorKinds[errorKind(err)]++
	p.mu.Unlock()
}

func (p *Pipeline) setFatal(err error) {
	p.mu.Lock()
	if p.fatalErr == nil {
		p.fatalErr = err
	}
	p.mu.Unlock()
}

func (p *Pipeline) fatal() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatalErr
}

func (p *Pipeline) shrink(workers, batchSize int) (int, int) {
	workers /= 2
	if workers < p.params.MinWorkers {
		workers = p.params.MinWorkers
	}
	batchSize /= 2
	if batchSize < p.params.MinBatchSize {
		batchSize = p.params.MinBatchSize
	}
	return workers, batchSize
}

func (p *Pipeline) writeProgress(runID string, index, total, workers, batchSize int, start time.Time, lastURL string) {
	elapsed := time.Since(start).Seconds()

	p.mu.Lock()
	done := p.stats.Success + p.stats.Failed
	snap := entity.ProgressSnapshot{
		RunID:       runID,
		Index:       index,
		Total:       total,
		Success:     p.stats.Success,
		Failed:      p.stats.Failed,
		Deferred:    p.stats.Deferred,
		Workers:     workers,
		BatchSize:   batchSize,
		LastURL:     lastURL,
		LastUpdated: time.Now().UTC(),
	}
	if total > 0 {
		snap.Completion = float64(index) / float64(total)
	}
	if elapsed > 0 {
		snap.PerSecond = float64(done) / elapsed
	}
	p.snap = snap
	p.mu.Unlock()

	metrics.URLsPending.Set(float64(total - index))

	if p.progress == nil {
		return
	}
	if err := p.progress.Write(&snap); err != nil {
		slog.Warn("Progress snapshot write failed", "error", err)
	}
}

func (p *Pipeline) finalize(start time.Time) *entity.RunStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Elapsed = time.Since(start)
	if secs := p.stats.Elapsed.Seconds(); secs > 0 {
		p.stats.PerSecond = float64(p.stats.Success+p.stats.Failed) / secs
	}
	out := p.stats
	return &out
}

// debugShot captures the page for post-mortem when a debug directory was
// configured. Best effort only.
func (p *Pipeline) debugShot(ctx context.Context, sess repository.PageSession, url string) {
	if p.params.DebugDir == "" {
		return
	}
	img, err := sess.Screenshot(ctx)
	if err != nil || len(img) == 0 {
		return
	}
	name := filepath.Join(p.params.DebugDir, utils.HashURL(url)[:16]+".png")
	if err := os.WriteFile(name, img, 0o644); err != nil {
		slog.Debug("Debug screenshot write failed", "url", url, "error", err)
	}
}

func isTransient(err error) bool {
	return errors.Is(err, repository.ErrRateLimited) ||
		errors.Is(err, repository.ErrCrawlTimeout) ||
		errors.Is(err, repository.ErrNavigationFailed) ||
		errors.Is(err, repository.ErrSolverTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// errorKind reduces a pipeline error to a stable label for stats and
// metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, repository.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, repository.ErrCrawlTimeout):
		return "timeout"
	case errors.Is(err, repository.ErrNavigationFailed):
		return "navigation"
	case errors.Is(err, repository.ErrSolverTimeout):
		return "solver_timeout"
	case errors.Is(err, repository.ErrCaptchaUnsolved):
		return "captcha_unsolved"
	case errors.Is(err, repository.ErrNotContentPage):
		return "not_content_page"
	case errors.Is(err, repository.ErrChallengeAbandoned):
		return "challenge_abandoned"
	default:
		return "unknown"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
