package repository

import "errors"

// Sentinel errors returned by adapters and core components. The orchestrator
// classifies them with errors.Is to decide between retry-with-backoff,
// permanent skip, and aborting the run.
var (
	// ErrRateLimited indicates the target served its rate-limit wall (or an
	// HTTP 440-style status) for the main document. Transient: back off and
	// retry, never mark the ledger.
	ErrRateLimited = errors.New("rate limited by target")

	// ErrCrawlTimeout indicates the page load exceeded its deadline. Transient.
	ErrCrawlTimeout = errors.New("crawl timed out")

	// ErrNavigationFailed indicates the browser could not reach the URL at
	// all (DNS, connection refused, protocol error). Transient.
	ErrNavigationFailed = errors.New("navigation failed")

	// ErrCaptchaUnsolved indicates a CAPTCHA challenge was detected but the
	// solver's answer did not clear it within this attempt.
	ErrCaptchaUnsolved = errors.New("captcha unsolved")

	// ErrSolverTimeout indicates the OCR service did not produce a result
	// within the bounded polling window. Transient.
	ErrSolverTimeout = errors.New("captcha solver timed out")

	// ErrChallengeAbandoned indicates the resolver exhausted its in-attempt
	// resolution cycles without reaching target content.
	ErrChallengeAbandoned = errors.New("challenge abandoned")

	// ErrNotContentPage indicates the confidence score never crossed the
	// content-ready threshold; extraction may still run best-effort but the
	// record must carry the low-confidence flag.
	ErrNotContentPage = errors.New("page not confirmed as content")
)
