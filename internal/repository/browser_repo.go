package repository

import "context"

// PageSession is one browser tab's navigation state for the lifetime of one
// URL's pipeline. Sessions are never shared across concurrent workers.
//
// Selectors starting with "//" are treated as XPath queries, everything else
// as CSS queries.
type PageSession interface {
	// Navigate loads the URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// Location returns the current URL after any redirects.
	Location(ctx context.Context) (string, error)
	// HTML returns the full serialized document.
	HTML(ctx context.Context) (string, error)
	// Evaluate runs script in page context, decoding the completion value
	// into out when out is non-nil.
	Evaluate(ctx context.Context, script string, out any) error
	// Click activates the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// SetValue fills the first matching input with value.
	SetValue(ctx context.Context, selector, value string) error
	// Screenshot captures the visible viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// DocumentStatus reports the HTTP status of the last main-document
	// response, 0 when none was observed.
	DocumentStatus() int
	// Close releases the tab.
	Close() error
}

// BrowserFactory opens fresh page sessions. Implementations own the
// underlying browser process pool.
type BrowserFactory interface {
	NewSession(ctx context.Context) (PageSession, error)
	Close() error
}
