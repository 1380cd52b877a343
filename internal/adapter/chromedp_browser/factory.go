package chromedp_browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"

	"github.com/crab-wise/tryst-scraper/internal/repository"
)

// Factory owns one Chrome exec allocator; every session is a fresh tab in
// that browser process.
type Factory struct {
	opts       Options
	allocCtx   context.Context
	allocStop  context.CancelFunc
	browserCtx context.Context
	browserOff context.CancelFunc
}

// NewFactory starts the allocator. The first session launches the browser
// process; Close tears it down.
func NewFactory(opts Options) (*Factory, error) {
	opts = opts.withDefaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-save-password-bubble", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
		chromedp.UserAgent(opts.UserAgent),
	)
	if !opts.Headless && opts.EvadeFocusSteal {
		// Park the visible window outside the desktop so reveal clicks do
		// not keep yanking focus from the operator.
		allocOpts = append(allocOpts,
			chromedp.Flag("window-position", "-2400,-2400"),
			chromedp.Flag("no-first-run", true),
		)
	}

	allocCtx, allocStop := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	// One long-lived browser context; sessions branch tabs off it so a tab
	// closing never kills the process for the other workers.
	browserCtx, browserOff := chromedp.NewContext(allocCtx, chromedp.WithLogf(chromeLogf))

	return &Factory{
		opts:       opts,
		allocCtx:   allocCtx,
		allocStop:  allocStop,
		browserCtx: browserCtx,
		browserOff: browserOff,
	}, nil
}

// NewSession opens a fresh tab with its own response-status listener.
func (f *Factory) NewSession(ctx context.Context) (repository.PageSession, error) {
	tabCtx, tabCancel := chromedp.NewContext(f.browserCtx)

	s := &session{
		ctx:        tabCtx,
		cancel:     tabCancel,
		navTimeout: f.opts.NavTimeout,
	}
	if err := s.start(); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open browser tab: %w", err)
	}
	return s, nil
}

// Close shuts down the browser process and the allocator.
func (f *Factory) Close() error {
	f.browserOff()
	f.allocStop()
	return nil
}

func chromeLogf(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...))
}

var _ repository.BrowserFactory = (*Factory)(nil)
