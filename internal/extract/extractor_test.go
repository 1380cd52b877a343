package extract

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crab-wise/tryst-scraper/internal/challenge"
	"github.com/crab-wise/tryst-scraper/internal/entity"
	"github.com/crab-wise/tryst-scraper/internal/repository"
)

const profileURL = "https://example.com/escort/alex-doe"

const profileHTML = `<html><body>
<h1 class="profile-header__name">Alex Doe</h1>
<ul class="list-style-none">
  <li><div class="row justify-content-between">
    <div class="col-auto fw-bold">Email</div>
    <div class="col-auto text-end">
      <a href="mailto:spamtrap@example.com">
        <span data-unobfuscate-details-target="output">alex@example.com</span>
      </a>
    </div>
  </div></li>
  <li><div class="row justify-content-between">
    <div class="col-auto fw-bold">Phone</div>
    <div class="col-auto text-end"><span data-unobfuscate-details-target="output">+1 555 010 ●●●●</span></div>
  </div></li>
  <li><div class="row justify-content-between">
    <div class="col-auto fw-bold">X (formerly Twitter)</div>
    <div class="col-auto text-end"><a href="https://x.com/alexdoe">@alexdoe</a></div>
  </div></li>
  <li><div class="row justify-content-between">
    <div class="col-auto fw-bold">Website</div>
    <div class="col-auto text-end"><a href="javascript:void(0)">alexdoe.example</a></div>
  </div></li>
  <li><div class="row justify-content-between">
    <div class="col-auto fw-bold">Rates</div>
    <div class="col-auto text-end">$300/hr</div>
  </div></li>
</ul>
<div class="social">
  <a href="https://onlyfans.com/https://onlyfans.com/alexdoe">OnlyFans</a>
  <a href="https://linktr.ee/alexdoe">Links</a>
</div>
</body></html>`

func TestParseProfile(t *testing.T) {
	rec, err := ParseProfile(profileURL, profileHTML)
	require.NoError(t, err)

	assert.Equal(t, profileURL, rec.URL)
	assert.Equal(t, "Alex Doe", rec.Field(entity.FieldName))

	// Revealed span wins over the surrounding mailto link.
	assert.Equal(t, "alex@example.com", rec.Field(entity.FieldEmail))

	// Still-obfuscated values are never captured.
	assert.Empty(t, rec.Field(entity.FieldPhone))

	// Non-identity fields may take the hyperlink target; javascript: never.
	assert.Equal(t, "https://x.com/alexdoe", rec.Field(entity.FieldTwitter))
	assert.Equal(t, "alexdoe.example", rec.Field(entity.FieldWebsite))

	// Backup link scan fills fields the panel missed, fixing doubled URLs.
	assert.Equal(t, "https://onlyfans.com/alexdoe", rec.Field(entity.FieldOnlyFans))
	assert.Equal(t, "https://linktr.ee/alexdoe", rec.Field(entity.FieldLinktree))

	// Every canonical field is present even when empty.
	for _, key := range entity.FieldKeys {
		_, ok := rec.Fields[key]
		assert.True(t, ok, "missing field %s", key)
	}
}

func TestParseProfileHeadingFallback(t *testing.T) {
	rec, err := ParseProfile(profileURL, `<html><body><h2>Backup Name</h2></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Backup Name", rec.Field(entity.FieldName))
}

func TestParseProfilePanelValueNotOverwrittenByLinkScan(t *testing.T) {
	html := `<html><body>
	<ul class="list-style-none"><li><div class="row justify-content-between">
		<div class="col-auto fw-bold">OnlyFans</div>
		<div class="col-auto text-end"><a href="https://onlyfans.com/panel-value">OF</a></div>
	</div></li></ul>
	<a href="https://onlyfans.com/footer-value">promo</a>
	</body></html>`
	rec, err := ParseProfile(profileURL, html)
	require.NoError(t, err)
	assert.Equal(t, "https://onlyfans.com/panel-value", rec.Field(entity.FieldOnlyFans))
}

func TestSanitizeDropsWallText(t *testing.T) {
	rec := entity.NewProfileRecord(profileURL)
	rec.SetField(entity.FieldName, "You're Almost There")
	rec.SetField(entity.FieldEmail, "alex@example.com")
	rec.SetField(entity.FieldWebsite, "●●●●●●")

	Sanitize(rec)

	assert.Empty(t, rec.Field(entity.FieldName))
	assert.Equal(t, "alex@example.com", rec.Field(entity.FieldEmail))
	assert.Empty(t, rec.Field(entity.FieldWebsite))
}

// pageFake satisfies repository.PageSession for extractor tests.
type pageFake struct {
	html        string
	status      int
	evalErr     error
	evalCount   int
	clicks      []string
	clickErrSel map[string]error
}

func (f *pageFake) Navigate(ctx context.Context, url string) error { return nil }
func (f *pageFake) Location(ctx context.Context) (string, error)   { return profileURL, nil }
func (f *pageFake) HTML(ctx context.Context) (string, error)       { return f.html, nil }

func (f *pageFake) Evaluate(ctx context.Context, script string, out any) error {
	f.evalCount++
	if f.evalErr != nil {
		return f.evalErr
	}
	if n, ok := out.(*int); ok {
		*n = 2
	}
	return nil
}

func (f *pageFake) Click(ctx context.Context, selector string) error {
	if err, ok := f.clickErrSel[selector]; ok {
		return err
	}
	f.clicks = append(f.clicks, selector)
	return nil
}

func (f *pageFake) SetValue(ctx context.Context, selector, value string) error { return nil }
func (f *pageFake) Screenshot(ctx context.Context) ([]byte, error)             { return nil, nil }
func (f *pageFake) DocumentStatus() int                                        { return f.status }
func (f *pageFake) Close() error                                               { return nil }

func newTestExtractor() *Extractor {
	det := challenge.NewDetector()
	return New(det, challenge.NewResolver(det, nil, time.Millisecond), time.Millisecond)
}

func TestExtractHappyPath(t *testing.T) {
	sess := &pageFake{html: profileHTML, status: 200}
	rec, err := newTestExtractor().Extract(context.Background(), sess, profileURL)
	require.NoError(t, err)

	assert.Equal(t, 1, sess.evalCount, "reveal script runs once")
	assert.Equal(t, "alex@example.com", rec.Field(entity.FieldEmail))
	assert.Equal(t, "Alex Doe", rec.Field(entity.FieldName))
}

func TestExtractFallsBackToDirectClicks(t *testing.T) {
	sess := &pageFake{
		html:    profileHTML,
		status:  200,
		evalErr: assert.AnError,
	}
	_, err := newTestExtractor().Extract(context.Background(), sess, profileURL)
	require.NoError(t, err)

	// Every reveal strategy is clicked when the in-page script fails, the
	// text match dispatched as XPath.
	require.Len(t, sess.clicks, 3)
	assert.Contains(t, sess.clicks[0], "unobfuscate-details")
	assert.True(t, strings.HasPrefix(sess.clicks[2], "//"))
}

func TestExtractRateLimitAfterReveal(t *testing.T) {
	sess := &pageFake{html: "<html><body>Too Many Requests</body></html>", status: 440}
	_, err := newTestExtractor().Extract(context.Background(), sess, profileURL)
	require.ErrorIs(t, err, repository.ErrRateLimited)
}
