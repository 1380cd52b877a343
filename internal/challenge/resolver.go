package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crab-wise/tryst-scraper/internal/entity"
	"github.com/crab-wise/tryst-scraper/internal/repository"
)

// Selector fallbacks for the challenge controls, tried in order.
var (
	consentButtonSelectors = []string{
		`//button[contains(text(), "Agree and close")]`,
		`button.btn-red[data-action="click->terms-toast#agree"]`,
	}
	unlockButtonSelectors = []string{
		`//button[contains(text(), "Unlock")]`,
		`form button[type="submit"]`,
	}
)

// submitWithEnterScript is the last-resort CAPTCHA submission when no unlock
// control can be clicked.
const submitWithEnterScript = `(function() {
	const input = document.querySelector('input[name="response"]');
	if (!input) return false;
	if (input.form) { input.form.submit(); return true; }
	input.dispatchEvent(new KeyboardEvent('keydown', {key: 'Enter', bubbles: true}));
	return true;
})()`

// Resolver drives a page session from a detected wall toward content. One
// Resolver is shared by all workers; it holds no per-page state.
type Resolver struct {
	detector *Detector
	solver   repository.CaptchaSolver
	// maxCycles bounds in-attempt resolution: detect, act, re-detect. Full
	// retries across attempts belong to the orchestrator, not here.
	maxCycles int
	settle    time.Duration
}

// NewResolver returns a resolver using solver for CAPTCHA challenges.
func NewResolver(detector *Detector, solver repository.CaptchaSolver, settle time.Duration) *Resolver {
	if settle <= 0 {
		settle = time.Second
	}
	return &Resolver{
		detector:  detector,
		solver:    solver,
		maxCycles: 2,
		settle:    settle,
	}
}

// Resolve inspects the loaded page and clears consent walls and CAPTCHA
// challenges until the page is content-ready or the cycle budget runs out.
//
// Returned errors classify the blocking wall: ErrRateLimited (back off and
// reload), ErrCaptchaUnsolved (challenge survived the solver's answer),
// ErrSolverTimeout (transient solver failure), ErrNotContentPage (score below
// threshold; extraction may still run best-effort), or ErrChallengeAbandoned.
func (r *Resolver) Resolve(ctx context.Context, sess repository.PageSession, pageURL string) (entity.Detection, error) {
	var det entity.Detection

	for cycle := 0; cycle <= r.maxCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return det, err
		}

		html, err := sess.HTML(ctx)
		if err != nil {
			return det, fmt.Errorf("read page for detection: %w", err)
		}
		det = r.detector.Detect(pageURL, html, sess.DocumentStatus())

		switch det.State {
		case entity.StateContentReady:
			return det, nil

		case entity.StateRateLimitWall:
			// No in-page action can clear a throttle page; the caller backs
			// off and reloads.
			return det, repository.ErrRateLimited

		case entity.StateConsentWall:
			slog.Debug("Consent wall detected, activating agree control", "url", pageURL)
			if err := clickFirst(ctx, sess, consentButtonSelectors); err != nil {
				return det, fmt.Errorf("activate consent control: %w", err)
			}
			if err := sleepCtx(ctx, r.settle); err != nil {
				return det, err
			}

		case entity.StateCaptchaChallenge:
			if cycle >= r.maxCycles {
				// The solver's answer did not clear the challenge.
				return det, repository.ErrCaptchaUnsolved
			}
			if err := r.solveCaptcha(ctx, sess, pageURL); err != nil {
				return det, err
			}
			if err := sleepCtx(ctx, r.settle); err != nil {
				return det, err
			}

		case entity.StateUnknown:
			if cycle >= r.maxCycles {
				return det, repository.ErrNotContentPage
			}
			// Content may still be settling after a wall was cleared.
			if err := sleepCtx(ctx, r.settle); err != nil {
				return det, err
			}
		}
	}

	if det.State == entity.StateCaptchaChallenge {
		return det, repository.ErrCaptchaUnsolved
	}
	return det, fmt.Errorf("%w: stuck in %s", repository.ErrChallengeAbandoned, det.State)
}

func (r *Resolver) solveCaptcha(ctx context.Context, sess repository.PageSession, pageURL string) error {
	if r.solver == nil {
		return repository.ErrCaptchaUnsolved
	}
	slog.Info("Captcha challenge detected, capturing image", "url", pageURL)

	image, err := sess.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("capture captcha image: %w", err)
	}

	text, err := r.solver.SolveImage(ctx, image)
	if err != nil {
		if errors.Is(err, repository.ErrSolverTimeout) || errors.Is(err, repository.ErrCaptchaUnsolved) {
			return err
		}
		return fmt.Errorf("solve captcha: %w", err)
	}

	if err := sess.SetValue(ctx, captchaInputSelector, text); err != nil {
		return fmt.Errorf("fill captcha input: %w", err)
	}
	if err := clickFirst(ctx, sess, unlockButtonSelectors); err != nil {
		// Fall back to submitting the challenge form directly.
		var submitted bool
		if evalErr := sess.Evaluate(ctx, submitWithEnterScript, &submitted); evalErr != nil || !submitted {
			return fmt.Errorf("submit captcha answer: %w", err)
		}
	}
	return nil
}

// clickFirst tries each selector in priority order until one activates.
func clickFirst(ctx context.Context, sess repository.PageSession, selectors []string) error {
	var lastErr error
	for _, sel := range selectors {
		if err := sess.Click(ctx, sel); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no selectors provided")
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
