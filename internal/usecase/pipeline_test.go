package usecase

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crab-wise/tryst-scraper/internal/adapter/filestore"
	"github.com/crab-wise/tryst-scraper/internal/challenge"
	"github.com/crab-wise/tryst-scraper/internal/extract"
	"github.com/crab-wise/tryst-scraper/internal/repository"
	"github.com/crab-wise/tryst-scraper/internal/throttle"
	"github.com/crab-wise/tryst-scraper/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

const contentPage = `<html><body>
<h1 class="profile-header__name">Alex Doe</h1>
<ul class="list-style-none">
  <li><div class="row justify-content-between">
    <div class="col-auto fw-bold">Email</div>
    <div class="col-auto text-end"><span data-unobfuscate-details-target="output">alex@example.com</span></div>
  </div></li>
</ul>
</body></html>`

const throttlePage = `<html><body><h1>Too Many Requests</h1></body></html>`

const captchaPage = `<html><body>
<h1>You're Almost There</h1>
<form><input name="response"><button type="submit">Unlock</button></form>
</body></html>`

// scripted is one page load: the document served for the n-th Navigate of a
// given URL.
type scripted struct {
	html   string
	status int
}

type fakeBrowser struct {
	mu       sync.Mutex
	answer   func(url string, attempt int) scripted
	attempts map[string]int
}

func newFakeBrowser(answer func(url string, attempt int) scripted) *fakeBrowser {
	return &fakeBrowser{answer: answer, attempts: map[string]int{}}
}

func (b *fakeBrowser) NewSession(ctx context.Context) (repository.PageSession, error) {
	return &fakeSession{browser: b}, nil
}

func (b *fakeBrowser) Close() error { return nil }

func (b *fakeBrowser) serve(url string) scripted {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.attempts[url]
	b.attempts[url] = n + 1
	return b.answer(url, n)
}

type fakeSession struct {
	browser *fakeBrowser
	url     string
	page    scripted
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.url = url
	s.page = s.browser.serve(url)
	return nil
}

func (s *fakeSession) Location(ctx context.Context) (string, error) { return s.url, nil }
func (s *fakeSession) HTML(ctx context.Context) (string, error)     { return s.page.html, nil }

func (s *fakeSession) Evaluate(ctx context.Context, script string, out any) error {
	switch v := out.(type) {
	case *int:
		*v = 0
	case *bool:
		*v = true
	}
	return nil
}

func (s *fakeSession) Click(ctx context.Context, selector string) error          { return nil }
func (s *fakeSession) SetValue(ctx context.Context, selector, val string) error  { return nil }
func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error)            { return []byte{0x89}, nil }
func (s *fakeSession) DocumentStatus() int                                       { return s.page.status }
func (s *fakeSession) Close() error                                              { return nil }

func newTestPipeline(t *testing.T, dir string, browser *fakeBrowser) (*Pipeline, *filestore.Ledger) {
	t.Helper()

	ledger, err := filestore.NewLedger(filepath.Join(dir, "scraped_urls.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	records, err := filestore.NewRecordWriter(filepath.Join(dir, "profile_data.csv"))
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	detector := challenge.NewDetector()
	resolver := challenge.NewResolver(detector, nil, time.Millisecond)
	extractor := extract.New(detector, resolver, time.Millisecond)
	delay := throttle.New(time.Millisecond, 10*time.Millisecond, 1.5, 0.9)

	progress := filestore.NewProgressFile(filepath.Join(dir, "scraping_progress.json"))

	p := NewPipeline(browser, resolver, extractor, ledger, records, progress, delay, Params{
		Workers:        2,
		BatchSize:      2,
		MaxAttempts:    3,
		RateLimitLimit: 100,
		AdjustPause:    time.Millisecond,
	})
	return p, ledger
}

func readRows(t *testing.T, dir string) [][]string {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, "profile_data.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestPipelineHappyPath(t *testing.T) {
	urls := []string{
		"https://example.com/escort/a",
		"https://example.com/escort/b",
		"https://example.com/escort/c",
	}
	browser := newFakeBrowser(func(url string, attempt int) scripted {
		return scripted{html: contentPage, status: 200}
	})

	dir := t.TempDir()
	p, ledger := newTestPipeline(t, dir, browser)

	stats, err := p.Run(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Success)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 0, stats.Deferred)
	assert.Equal(t, PhaseDone, p.Phase())

	rows := readRows(t, dir)
	require.Len(t, rows, 4) // header + 3 records
	for _, u := range urls {
		assert.True(t, ledger.IsDone(u), "ledger missing %s", u)
	}

	// Progress snapshot was persisted.
	raw, err := os.ReadFile(filepath.Join(dir, "scraping_progress.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), stats.RunID)
}

func TestPipelineRetriesThroughRateLimit(t *testing.T) {
	url := "https://example.com/escort/alex"
	browser := newFakeBrowser(func(u string, attempt int) scripted {
		if attempt < 2 {
			return scripted{html: throttlePage, status: 440}
		}
		return scripted{html: contentPage, status: 200}
	})

	dir := t.TempDir()
	p, ledger := newTestPipeline(t, dir, browser)

	stats, err := p.Run(context.Background(), []string{url})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Success)
	assert.True(t, ledger.IsDone(url))

	rows := readRows(t, dir)
	require.Len(t, rows, 2)
	assert.Equal(t, "alex@example.com", rows[1][2])
	assert.Equal(t, "Yes", rows[1][15])
}

func TestPipelineRateLimitExhaustionDefers(t *testing.T) {
	url := "https://example.com/escort/alex"
	browser := newFakeBrowser(func(u string, attempt int) scripted {
		return scripted{html: throttlePage, status: 440}
	})

	dir := t.TempDir()
	p, ledger := newTestPipeline(t, dir, browser)

	stats, err := p.Run(context.Background(), []string{url})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Success)
	assert.Equal(t, 1, stats.Deferred)
	assert.Equal(t, 1, stats.ErrorKinds["rate_limited"])

	// Deferred URLs stay off the ledger so the next run retries them.
	assert.False(t, ledger.IsDone(url))
	rows := readRows(t, dir)
	assert.Len(t, rows, 1) // header only
}

func TestPipelineUnbeatableCaptchaIsTerminal(t *testing.T) {
	url := "https://example.com/escort/alex"
	browser := newFakeBrowser(func(u string, attempt int) scripted {
		return scripted{html: captchaPage, status: 200}
	})

	dir := t.TempDir()
	p, ledger := newTestPipeline(t, dir, browser)

	stats, err := p.Run(context.Background(), []string{url})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.ErrorKinds["captcha_unsolved"])

	// Terminal failures are recorded and never revisited.
	assert.True(t, ledger.IsDone(url))
	rows := readRows(t, dir)
	require.Len(t, rows, 2)
	assert.Equal(t, "No", rows[1][15])
}

func TestPipelineKeepsLowConfidencePageWithContacts(t *testing.T) {
	// No contact panel, so the page scores below the content threshold,
	// but the link scan still finds a platform profile.
	page := `<html><body>
	<h1>Alex</h1>
	<a href="https://onlyfans.com/alexdoe">OF</a>
	</body></html>`

	url := "https://example.com/escort/alex"
	browser := newFakeBrowser(func(u string, attempt int) scripted {
		return scripted{html: page, status: 200}
	})

	dir := t.TempDir()
	p, ledger := newTestPipeline(t, dir, browser)

	stats, err := p.Run(context.Background(), []string{url})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Success)
	assert.True(t, ledger.IsDone(url))

	rows := readRows(t, dir)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[1], "https://onlyfans.com/alexdoe")

	// The unconfirmed page is persisted as success but carries the
	// low-confidence flag all the way into the durable row.
	assert.Equal(t, "Yes", rows[1][15])
	assert.Equal(t, "Yes", rows[1][16])
}

func TestPipelineSecondRunIsIdempotent(t *testing.T) {
	urls := []string{"https://example.com/escort/a", "https://example.com/escort/b"}
	browser := newFakeBrowser(func(u string, attempt int) scripted {
		return scripted{html: contentPage, status: 200}
	})

	dir := t.TempDir()
	p, _ := newTestPipeline(t, dir, browser)

	first, err := p.Run(context.Background(), urls)
	require.NoError(t, err)
	require.Equal(t, 2, first.Success)

	second, err := p.Run(context.Background(), urls)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Total)
	assert.Equal(t, 0, second.Success)

	rows := readRows(t, dir)
	assert.Len(t, rows, 3) // still header + 2, no duplicates
}

func TestPipelineLedgerFailureIsFatal(t *testing.T) {
	url := "https://example.com/escort/alex"
	browser := newFakeBrowser(func(u string, attempt int) scripted {
		return scripted{html: contentPage, status: 200}
	})

	dir := t.TempDir()
	records, err := filestore.NewRecordWriter(filepath.Join(dir, "profile_data.csv"))
	require.NoError(t, err)
	defer records.Close()

	detector := challenge.NewDetector()
	resolver := challenge.NewResolver(detector, nil, time.Millisecond)
	extractor := extract.New(detector, resolver, time.Millisecond)
	delay := throttle.New(time.Millisecond, 10*time.Millisecond, 1.5, 0.9)

	p := NewPipeline(browser, resolver, extractor, failingLedger{}, records, nil, delay, Params{
		Workers: 1, BatchSize: 1, MaxAttempts: 1, AdjustPause: time.Millisecond,
	})

	_, err = p.Run(context.Background(), []string{url})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "ledger"))
}

// failingLedger accepts reads but cannot be written, simulating a full or
// revoked state directory.
type failingLedger struct{}

func (failingLedger) IsDone(string) bool            { return false }
func (failingLedger) MarkDone(string) error         { return os.ErrPermission }
func (failingLedger) Pending(all []string) []string { return all }
