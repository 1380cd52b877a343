package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/crab-wise/tryst-scraper/internal/challenge"
	"github.com/crab-wise/tryst-scraper/internal/repository"
	"github.com/crab-wise/tryst-scraper/internal/throttle"
	"github.com/crab-wise/tryst-scraper/pkg/metrics"
	"github.com/crab-wise/tryst-scraper/pkg/utils"
)

const (
	profileLinkMarker = "/escort/"
	pageRetries       = 3
	scrollScript      = `(async function() {
		let last = 0;
		for (let i = 0; i < 20; i++) {
			window.scrollTo(0, document.body.scrollHeight);
			await new Promise(r => setTimeout(r, 250));
			if (document.body.scrollHeight === last) break;
			last = document.body.scrollHeight;
		}
		return document.body.scrollHeight;
	})()`
)

// Walker crawls search result pages forward, harvesting profile URLs into
// the URL file. Pagination never revisits a lower page number, so a walk
// always terminates even when the pager markup loops.
type Walker struct {
	browser  repository.BrowserFactory
	resolver *challenge.Resolver
	delay    *throttle.AdaptiveDelay
	limiter  *rate.Limiter
	sink     repository.URLSink

	searchURL string
	maxPages  int
	startPage int
}

func NewWalker(
	browser repository.BrowserFactory,
	resolver *challenge.Resolver,
	delay *throttle.AdaptiveDelay,
	searchURL string,
	sink repository.URLSink,
	pagesPerMin, maxPages, startPage int,
) *Walker {
	if pagesPerMin <= 0 {
		pagesPerMin = 12
	}
	if startPage < 1 {
		startPage = 1
	}
	return &Walker{
		browser:   browser,
		resolver:  resolver,
		delay:     delay,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(pagesPerMin)), 1),
		sink:      sink,
		searchURL: searchURL,
		maxPages:  maxPages,
		startPage: startPage,
	}
}

// Walk pages through the search results until the pager ends or MaxPages is
// reached. Harvested URLs are merged into the URL file after every page, so
// an interrupted walk loses at most one page of links.
func (w *Walker) Walk(ctx context.Context) (total, added int, err error) {
	if w.searchURL == "" {
		return 0, 0, errors.New("search URL not configured")
	}

	sess, err := w.browser.NewSession(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	pageURL := w.searchURL
	if w.startPage > 1 {
		pageURL = withPageParam(w.searchURL, w.startPage)
	}

	harvested := make(map[string]struct{})
	currentPage := w.startPage

	for walked := 0; w.maxPages <= 0 || walked < w.maxPages; walked++ {
		if err := w.limiter.Wait(ctx); err != nil {
			return total, added, err
		}

		html, err := w.loadPage(ctx, sess, pageURL)
		if err != nil {
			return total, added, fmt.Errorf("load search page %s: %w", pageURL, err)
		}

		found, nextURL, err := parseSearchPage(pageURL, html, currentPage)
		if err != nil {
			return total, added, err
		}
		for _, u := range found {
			harvested[u] = struct{}{}
		}
		metrics.PagesWalked.Inc()
		metrics.ProfileURLsSeen.Set(float64(len(harvested)))

		total, added, err = w.sink.Merge(harvested)
		if err != nil {
			return total, added, fmt.Errorf("save harvested URLs: %w", err)
		}
		slog.Info("Search page harvested",
			"page", currentPage,
			"links_on_page", len(found),
			"collected", len(harvested),
			"file_total", total)

		if nextURL == "" {
			break
		}
		currentPage = utils.PageNumber(nextURL)
		pageURL = nextURL
	}
	return total, added, nil
}

// loadPage navigates with bounded retries, backing off through the shared
// delay when the throttle wall appears.
func (w *Walker) loadPage(ctx context.Context, sess repository.PageSession, pageURL string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= pageRetries; attempt++ {
		if err := sleepCtx(ctx, w.delay.Current()); err != nil {
			return "", err
		}
		if err := sess.Navigate(ctx, pageURL); err != nil {
			lastErr = err
			continue
		}
		// Result listings never score as profile content; an unknown page
		// after wall clearing is fine here, only live walls block the walk.
		if _, err := w.resolver.Resolve(ctx, sess, pageURL); err != nil && !errors.Is(err, repository.ErrNotContentPage) {
			lastErr = err
			if errors.Is(err, repository.ErrRateLimited) {
				next := w.delay.ReportRateLimited()
				metrics.RateLimitHits.Inc()
				slog.Warn("Search walk rate limited", "page_url", pageURL, "next_delay", next)
			}
			continue
		}
		w.delay.ReportSuccess()

		// Result cards below the fold only render once scrolled into view.
		var height int
		if err := sess.Evaluate(ctx, scrollScript, &height); err != nil {
			slog.Debug("Scroll script failed", "error", err)
		}
		return sess.HTML(ctx)
	}
	return "", lastErr
}

// parseSearchPage pulls profile links and the next page URL out of one
// results page. Forward-only: a next candidate with a page number at or
// below the current one is ignored.
func parseSearchPage(pageURL, html string, currentPage int) (links []string, nextURL string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("parse search page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse page URL: %w", err)
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.Contains(href, profileLinkMarker) {
			return
		}
		abs, err := utils.ToAbsoluteURL(base, href)
		if err != nil {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})

	return links, nextPageURL(doc, base, currentPage), nil
}

// nextPageURL prefers an explicit next control and falls back to the lowest
// numbered page link past the current page.
func nextPageURL(doc *goquery.Document, base *url.URL, currentPage int) string {
	for _, sel := range []string{`a[rel="next"]`, `a.page-link[rel="next"]`} {
		if href, ok := doc.Find(sel).First().Attr("href"); ok {
			if abs, err := utils.ToAbsoluteURL(base, href); err == nil && utils.PageNumber(abs) > currentPage {
				return abs
			}
		}
	}

	type candidate struct {
		page int
		url  string
	}
	var candidates []candidate
	doc.Find(`a[href*="page="]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, err := utils.ToAbsoluteURL(base, href)
		if err != nil {
			return
		}
		if n := utils.PageNumber(abs); n > currentPage {
			candidates = append(candidates, candidate{n, abs})
		}
	})
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].page < candidates[j].page })
	return candidates[0].url
}

func withPageParam(searchURL string, page int) string {
	u, err := url.Parse(searchURL)
	if err != nil {
		return searchURL
	}
	q := u.Query()
	q.Set("page", fmt.Sprint(page))
	u.RawQuery = q.Encode()
	return u.String()
}
