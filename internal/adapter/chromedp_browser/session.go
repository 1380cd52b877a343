package chromedp_browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/crab-wise/tryst-scraper/internal/repository"
)

// session is one tab. The DevTools tab context lives for the whole session;
// per-call deadlines come from the caller's ctx layered on top.
type session struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration

	// status holds the HTTP status of the most recent main-document
	// response. The throttle wall is only reliably identified by its
	// non-standard status code, which never surfaces through the DOM.
	status atomic.Int64
}

func (s *session) start() error {
	chromedp.ListenTarget(s.ctx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			s.status.Store(resp.Response.Status)
		}
	})
	return chromedp.Run(s.ctx, network.Enable())
}

func (s *session) Navigate(ctx context.Context, url string) error {
	s.status.Store(0)

	runCtx, cancel := s.callCtx(ctx, s.navTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("navigate %s: %w", url, repository.ErrCrawlTimeout)
		}
		return fmt.Errorf("navigate %s: %v: %w", url, err, repository.ErrNavigationFailed)
	}
	return nil
}

func (s *session) Location(ctx context.Context) (string, error) {
	runCtx, cancel := s.callCtx(ctx, 0)
	defer cancel()

	var loc string
	if err := chromedp.Run(runCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (s *session) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.callCtx(ctx, 0)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("serialize document: %w", err)
	}
	return html, nil
}

func (s *session) Evaluate(ctx context.Context, script string, out any) error {
	runCtx, cancel := s.callCtx(ctx, 0)
	defer cancel()

	action := chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	})
	if err := chromedp.Run(runCtx, action); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

func (s *session) Click(ctx context.Context, selector string) error {
	runCtx, cancel := s.callCtx(ctx, 0)
	defer cancel()

	by := chromedp.ByQuery
	if strings.HasPrefix(selector, "//") {
		by = chromedp.BySearch
	}
	if err := chromedp.Run(runCtx, chromedp.Click(selector, by)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (s *session) SetValue(ctx context.Context, selector, value string) error {
	runCtx, cancel := s.callCtx(ctx, 0)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := s.callCtx(ctx, 0)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *session) DocumentStatus() int {
	return int(s.status.Load())
}

func (s *session) Close() error {
	s.cancel()
	return nil
}

// callCtx merges the caller's deadline with the tab context. Interactive
// calls without their own deadline default to 10s so a wedged tab cannot
// hang a worker forever.
func (s *session) callCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remain := time.Until(deadline); remain < timeout {
			timeout = remain
		}
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

var _ repository.PageSession = (*session)(nil)
