// Package challenge classifies a loaded page (consent wall, rate-limit wall,
// text CAPTCHA, real content) and drives it through the steps required to
// reach target content.
package challenge

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/crab-wise/tryst-scraper/internal/entity"
)

// Fixed page signals. The rate-limit status is the 440-style code the target
// serves with its throttle page.
const (
	RateLimitStatus = 440

	captchaMarker       = "You're Almost There"
	securityCheckMarker = "security check"
	consentButtonText   = "Agree and close"

	captchaInputSelector = `input[name="response"]`
	contactPanelSelector = "ul.list-style-none div.row.justify-content-between"
	profileNameSelector  = "h1.profile-header__name"
	profilePathMarker    = "/escort/"
)

// rateLimitPhrases mark the throttle interstitial when the status code was
// not observed.
var rateLimitPhrases = []string{
	"Too Many Requests",
	"too many requests",
	"You have been rate limited",
	"Rate limited",
}

// ErrorPagePhrases are wall/interstitial texts that must never be persisted
// as extracted data. The extractor discards any captured value matching one.
var ErrorPagePhrases = []string{
	captchaMarker,
	"Security check",
	"Too Many Requests",
	"Rate limited",
	"Something went wrong",
	"Page not found",
}

// Confidence weights for the content-ready score. No single structural marker
// reliably separates real content from a disguised interstitial, so several
// independent signals are combined.
const (
	contactPanelWeight = 0.6 // strong: the contact-info container exists
	headingWeight      = 0.3 // weak: profile heading pattern present
	urlPathWeight      = 0.2 // weak: URL path looks like a detail page
	contentThreshold   = 0.5
)

// Detector classifies page state from the serialized document, the observed
// main-document HTTP status, and the page URL.
type Detector struct{}

// NewDetector returns a Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect inspects one page load. Blocking walls take priority over the
// dismissible consent banner: a CAPTCHA or throttle page can render the
// consent markup underneath without it being actionable.
func (d *Detector) Detect(pageURL, html string, status int) entity.Detection {
	if status == RateLimitStatus || containsAny(html, rateLimitPhrases) {
		return entity.Detection{State: entity.StateRateLimitWall}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return entity.Detection{State: entity.StateUnknown}
	}

	if d.isCaptchaPage(html, doc) {
		return entity.Detection{State: entity.StateCaptchaChallenge}
	}
	if d.hasConsentControl(doc) {
		return entity.Detection{State: entity.StateConsentWall}
	}

	score := d.contentScore(pageURL, doc)
	if score >= contentThreshold {
		return entity.Detection{State: entity.StateContentReady, Confidence: score}
	}
	return entity.Detection{State: entity.StateUnknown, Confidence: score}
}

func (d *Detector) isCaptchaPage(html string, doc *goquery.Document) bool {
	if strings.Contains(html, captchaMarker) {
		return true
	}
	if !strings.Contains(strings.ToLower(html), securityCheckMarker) {
		return false
	}
	// The marker phrase alone can appear in prose; require the challenge input.
	return doc.Find(captchaInputSelector).Length() > 0
}

func (d *Detector) hasConsentControl(doc *goquery.Document) bool {
	found := false
	doc.Find("button").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.TrimSpace(s.Text()), consentButtonText) {
			found = true
			return false
		}
		return true
	})
	return found
}

func (d *Detector) contentScore(pageURL string, doc *goquery.Document) float64 {
	score := 0.0
	if doc.Find(contactPanelSelector).Length() > 0 {
		score += contactPanelWeight
	}
	if heading := doc.Find(profileNameSelector); heading.Length() > 0 && strings.TrimSpace(heading.First().Text()) != "" {
		score += headingWeight
	} else if h1 := doc.Find("h1"); h1.Length() > 0 && strings.TrimSpace(h1.First().Text()) != "" {
		score += headingWeight / 2
	}
	if strings.Contains(pageURL, profilePathMarker) {
		score += urlPathWeight
	}
	return score
}

// IsErrorPhrase reports whether a captured value is wall/interstitial text.
func IsErrorPhrase(value string) bool {
	for _, phrase := range ErrorPagePhrases {
		if phrase != "" && strings.Contains(value, phrase) {
			return true
		}
	}
	return false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
