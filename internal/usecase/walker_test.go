package usecase

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crab-wise/tryst-scraper/internal/adapter/filestore"
	"github.com/crab-wise/tryst-scraper/internal/challenge"
	"github.com/crab-wise/tryst-scraper/internal/repository"
	"github.com/crab-wise/tryst-scraper/internal/throttle"
)

const searchPage1 = `<html><body>
<ul class="list-style-none"><li><div class="row justify-content-between"></div></li></ul>
<div class="results">
  <a href="/escort/alex">Alex</a>
  <a href="/escort/blair">Blair</a>
  <a href="/escort/alex">Alex again</a>
  <a href="/about">About</a>
</div>
<nav><a rel="next" href="/search?page=2">Next</a></nav>
</body></html>`

const searchPage2 = `<html><body>
<ul class="list-style-none"><li><div class="row justify-content-between"></div></li></ul>
<div class="results">
  <a href="/escort/casey">Casey</a>
  <a href="/escort/blair">Blair</a>
</div>
<nav><a href="/search?page=1">Previous</a></nav>
</body></html>`

func TestParseSearchPage(t *testing.T) {
	links, next, err := parseSearchPage("https://example.com/search", searchPage1, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://example.com/escort/alex",
		"https://example.com/escort/blair",
	}, links)
	assert.Equal(t, "https://example.com/search?page=2", next)
}

func TestParseSearchPageLastPage(t *testing.T) {
	links, next, err := parseSearchPage("https://example.com/search?page=2", searchPage2, 2)
	require.NoError(t, err)

	assert.Len(t, links, 2)
	// A pager pointing only backwards ends the walk.
	assert.Empty(t, next)
}

func TestParseSearchPageNumberedFallback(t *testing.T) {
	html := `<html><body>
	<a href="/escort/dana">Dana</a>
	<a href="/search?page=1">1</a>
	<a href="/search?page=3">3</a>
	<a href="/search?page=5">5</a>
	</body></html>`

	_, next, err := parseSearchPage("https://example.com/search?page=2", html, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/search?page=3", next)
}

func TestWalkerHarvestsAcrossPages(t *testing.T) {
	browser := newFakeBrowser(func(url string, attempt int) scripted {
		if url == "https://example.com/search?page=2" {
			return scripted{html: searchPage2, status: 200}
		}
		return scripted{html: searchPage1, status: 200}
	})

	dir := t.TempDir()
	urlFile := filepath.Join(dir, "profile_urls.txt")

	detector := challenge.NewDetector()
	resolver := challenge.NewResolver(detector, nil, time.Millisecond)
	delay := throttle.New(time.Millisecond, 10*time.Millisecond, 1.5, 0.9)

	w := NewWalker(browser, resolver, delay, "https://example.com/search", filestore.NewURLFile(urlFile), 60000, 10, 1)
	total, _, err := w.Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	saved, err := filestore.LoadURLList(urlFile)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"https://example.com/escort/alex",
		"https://example.com/escort/blair",
		"https://example.com/escort/casey",
	}, saved)
}

// flipSession serves the challenge page until an answer is submitted, then
// serves real results.
type flipBrowser struct {
	mu     sync.Mutex
	filled []string
}

func (b *flipBrowser) NewSession(ctx context.Context) (repository.PageSession, error) {
	return &flipSession{b: b}, nil
}

func (b *flipBrowser) Close() error { return nil }

type flipSession struct {
	b      *flipBrowser
	url    string
	solved bool
}

func (s *flipSession) Navigate(ctx context.Context, url string) error { s.url = url; return nil }
func (s *flipSession) Location(ctx context.Context) (string, error)   { return s.url, nil }

func (s *flipSession) HTML(ctx context.Context) (string, error) {
	if s.solved {
		return searchPage2, nil
	}
	return captchaPage, nil
}

func (s *flipSession) Evaluate(ctx context.Context, script string, out any) error {
	switch v := out.(type) {
	case *int:
		*v = 0
	case *bool:
		*v = true
	}
	return nil
}

func (s *flipSession) Click(ctx context.Context, selector string) error { return nil }

func (s *flipSession) SetValue(ctx context.Context, selector, val string) error {
	s.b.mu.Lock()
	s.b.filled = append(s.b.filled, val)
	s.b.mu.Unlock()
	s.solved = true
	return nil
}

func (s *flipSession) Screenshot(ctx context.Context) ([]byte, error) { return []byte{0x89}, nil }
func (s *flipSession) DocumentStatus() int                            { return 200 }
func (s *flipSession) Close() error                                   { return nil }

type stubSolver struct{ answer string }

func (s stubSolver) SolveImage(ctx context.Context, image []byte) (string, error) {
	return s.answer, nil
}

func TestWalkerSolvesCaptchaMidWalk(t *testing.T) {
	browser := &flipBrowser{}
	dir := t.TempDir()
	urlFile := filepath.Join(dir, "profile_urls.txt")

	detector := challenge.NewDetector()
	resolver := challenge.NewResolver(detector, stubSolver{answer: "ABCD"}, time.Millisecond)
	delay := throttle.New(time.Millisecond, 10*time.Millisecond, 1.5, 0.9)

	w := NewWalker(browser, resolver, delay, "https://example.com/search", filestore.NewURLFile(urlFile), 60000, 10, 1)
	total, _, err := w.Walk(context.Background())
	require.NoError(t, err)

	// The solver's answer was typed into the challenge input and the walk
	// continued to harvest links instead of aborting.
	require.Equal(t, []string{"ABCD"}, browser.filled)
	assert.Equal(t, 2, total)
}

func TestWalkerHonorsMaxPages(t *testing.T) {
	browser := newFakeBrowser(func(url string, attempt int) scripted {
		return scripted{html: searchPage1, status: 200}
	})

	dir := t.TempDir()
	urlFile := filepath.Join(dir, "profile_urls.txt")

	detector := challenge.NewDetector()
	resolver := challenge.NewResolver(detector, nil, time.Millisecond)
	delay := throttle.New(time.Millisecond, 10*time.Millisecond, 1.5, 0.9)

	w := NewWalker(browser, resolver, delay, "https://example.com/search", filestore.NewURLFile(urlFile), 60000, 1, 1)
	total, added, err := w.Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, added)
}
