// Package chromedp_browser implements the browser session contract on a
// headless Chrome pool driven through the DevTools protocol.
package chromedp_browser

import "time"

const defaultUserAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36`

// Options configures the shared browser allocator. Callers build one value
// up front and pass it to NewFactory; nothing here is mutated afterwards, so
// concurrent sessions can trust a single immutable configuration.
type Options struct {
	// Headless runs Chrome without a window. Visible mode is useful when
	// babysitting challenge handling interactively.
	Headless bool

	// EvadeFocusSteal positions visible windows off-screen so a long run
	// does not keep stealing desktop focus. Ignored when Headless is set.
	EvadeFocusSteal bool

	// UserAgent overrides the browser user agent. Empty selects a fixed
	// desktop Chrome string.
	UserAgent string

	// WindowWidth and WindowHeight size the viewport. Zero selects
	// 1920x1080.
	WindowWidth  int
	WindowHeight int

	// NavTimeout bounds a single Navigate call. Zero selects 30s.
	NavTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.WindowWidth <= 0 {
		o.WindowWidth = 1920
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = 1080
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = 30 * time.Second
	}
	return o
}
