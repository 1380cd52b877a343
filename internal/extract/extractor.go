package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/crab-wise/tryst-scraper/internal/challenge"
	"github.com/crab-wise/tryst-scraper/internal/entity"
	"github.com/crab-wise/tryst-scraper/internal/repository"
)

const (
	contactRowSelector   = "ul.list-style-none div.row.justify-content-between"
	rowLabelSelector     = "div.col-auto.fw-bold"
	rowValueSelector     = "div.col-auto.text-end"
	revealedSpanSelector = `span[data-unobfuscate-details-target="output"]`
	profileNameSelector  = "h1.profile-header__name"
)

// Extractor turns a resolved page session into a ProfileRecord.
type Extractor struct {
	detector *challenge.Detector
	resolver *challenge.Resolver
	settle   time.Duration
}

// New returns an extractor. resolver handles walls that surface mid-reveal.
func New(detector *challenge.Detector, resolver *challenge.Resolver, settle time.Duration) *Extractor {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &Extractor{detector: detector, resolver: resolver, settle: settle}
}

// Extract activates all reveal controls and reads the contact schema. The
// returned record always carries every canonical field (possibly empty);
// values are already sanitized against wall/error text.
func (e *Extractor) Extract(ctx context.Context, sess repository.PageSession, pageURL string) (*entity.ProfileRecord, error) {
	if err := e.revealAll(ctx, sess, pageURL); err != nil {
		return nil, err
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page for extraction: %w", err)
	}
	rec, err := ParseProfile(pageURL, html)
	if err != nil {
		return nil, err
	}
	Sanitize(rec)
	return rec, nil
}

// revealAll clicks every reveal control. Primary activation runs as one
// in-page script; when that fails the controls are clicked individually per
// strategy. A wall appearing mid-reveal is resolved inline before retrying.
func (e *Extractor) revealAll(ctx context.Context, sess repository.PageSession, pageURL string) error {
	var clicked int
	script := revealScript(revealStrategies, e.settle)
	if err := sess.Evaluate(ctx, script, &clicked); err != nil {
		slog.Debug("In-page reveal script failed, clicking controls directly", "url", pageURL, "error", err)
		clicked = e.revealByClicking(ctx, sess)
	}
	slog.Debug("Reveal controls activated", "url", pageURL, "count", clicked)

	if err := sleepCtx(ctx, e.settle); err != nil {
		return err
	}

	// Activating a reveal can itself trip a challenge; clear it before the
	// final read so revealed values are not lost behind a wall.
	html, err := sess.HTML(ctx)
	if err != nil {
		return fmt.Errorf("re-check page after reveal: %w", err)
	}
	det := e.detector.Detect(pageURL, html, sess.DocumentStatus())
	switch det.State {
	case entity.StateCaptchaChallenge, entity.StateConsentWall:
		if e.resolver == nil {
			return repository.ErrChallengeAbandoned
		}
		if _, err := e.resolver.Resolve(ctx, sess, pageURL); err != nil {
			return err
		}
	case entity.StateRateLimitWall:
		return repository.ErrRateLimited
	}
	return nil
}

func (e *Extractor) revealByClicking(ctx context.Context, sess repository.PageSession) int {
	clicked := 0
	for _, sel := range clickSelectors(revealStrategies) {
		if err := sess.Click(ctx, sel); err != nil {
			continue
		}
		clicked++
		if err := sleepCtx(ctx, e.settle); err != nil {
			return clicked
		}
	}
	return clicked
}

// ParseProfile reads the contact schema from a serialized document. Pure
// parsing, no page interaction; callable on any HTML snapshot.
func ParseProfile(pageURL, html string) (*entity.ProfileRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse profile page: %w", err)
	}

	rec := entity.NewProfileRecord(pageURL)
	rec.SetField(entity.FieldName, profileName(doc))

	doc.Find(contactRowSelector).Each(func(_ int, row *goquery.Selection) {
		label := strings.TrimSpace(row.Find(rowLabelSelector).First().Text())
		key := CanonicalField(label)
		if key == "" || rec.Field(key) != "" {
			return
		}
		if value := rowValue(row, key); value != "" {
			rec.SetField(key, value)
		}
	})

	fillFromPageLinks(doc, rec)
	return rec, nil
}

func profileName(doc *goquery.Document) string {
	if name := strings.TrimSpace(doc.Find(profileNameSelector).First().Text()); name != "" {
		return name
	}
	for _, sel := range []string{"h1", "h2", "h3"} {
		if name := strings.TrimSpace(doc.Find(sel).First().Text()); name != "" {
			return name
		}
	}
	return ""
}

// rowValue applies the per-field priority: a revealed span that no longer
// shows the obfuscation glyph wins; then a hyperlink target, but only for
// non-identity fields; then plain text, unless it is still obfuscated.
func rowValue(row *goquery.Selection, key string) string {
	cell := row.Find(rowValueSelector).First()
	if cell.Length() == 0 {
		return ""
	}

	if span := cell.Find(revealedSpanSelector).First(); span.Length() > 0 {
		text := strings.TrimSpace(span.Text())
		if text != "" && !strings.Contains(text, obfuscationMarker) {
			return text
		}
	}

	if !entity.IdentityFields[key] {
		if href, ok := cell.Find("a").First().Attr("href"); ok {
			href = strings.TrimSpace(href)
			if href != "" && !strings.HasPrefix(href, "javascript:") {
				return href
			}
		}
	}

	text := strings.TrimSpace(cell.Text())
	if text == "" || strings.Contains(text, obfuscationMarker) {
		return ""
	}
	return text
}

// fillFromPageLinks scans every hyperlink for known platform domains and
// fills canonical fields the structured panel left empty.
func fillFromPageLinks(doc *goquery.Document, rec *entity.ProfileRecord) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		for _, p := range platformDomains {
			if !strings.Contains(href, p.domain) || rec.Field(p.field) != "" {
				continue
			}
			rec.SetField(p.field, collapseDoubledURL(href, p.domain))
			break
		}
	})
}

// Sanitize discards every field value that is really wall/error-page text,
// so a misclassified interstitial never poisons the durable store.
func Sanitize(rec *entity.ProfileRecord) {
	for _, key := range entity.FieldKeys {
		v := rec.Field(key)
		if v == "" {
			continue
		}
		if challenge.IsErrorPhrase(v) || strings.Contains(v, obfuscationMarker) {
			rec.SetField(key, "")
		}
	}
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
