package extract

import (
	"strings"

	"github.com/crab-wise/tryst-scraper/internal/entity"
)

// obfuscationMarker is the placeholder glyph shown in place of a hidden
// value until its reveal control is activated. A value still carrying it is
// never persisted.
const obfuscationMarker = "●"

// platformDomain maps a hyperlink host substring to the canonical field it
// fills during the backup link scan.
type platformDomain struct {
	domain string
	field  string
}

// platformDomains in scan order; earlier entries win for the same field.
var platformDomains = []platformDomain{
	{"onlyfans.com", entity.FieldOnlyFans},
	{"twitter.com", entity.FieldTwitter},
	{"x.com", entity.FieldTwitter},
	{"instagram.com", entity.FieldInstagram},
	{"fansly.com", entity.FieldFansly},
	{"linktr.ee", entity.FieldLinktree},
	{"linktree", entity.FieldLinktree},
	{"snapchat.com", entity.FieldSnapchat},
	{"t.me", entity.FieldTelegram},
}

// labelMatch maps a substring of a normalized row label to its canonical
// field key. Order matters: "mobile" must be checked before "phone" would
// swallow it, and the rebranded platform name maps back to its original key.
var labelMatches = []struct {
	substr string
	field  string
}{
	{"email", entity.FieldEmail},
	{"mobile", entity.FieldMobile},
	{"whatsapp", entity.FieldWhatsApp},
	{"phone", entity.FieldPhone},
	{"formerly twitter", entity.FieldTwitter},
	{"twitter", entity.FieldTwitter},
	{"x ", entity.FieldTwitter},
	{"instagram", entity.FieldInstagram},
	{"linktree", entity.FieldLinktree},
	{"onlyfans", entity.FieldOnlyFans},
	{"fansly", entity.FieldFansly},
	{"snapchat", entity.FieldSnapchat},
	{"telegram", entity.FieldTelegram},
	{"website", entity.FieldWebsite},
}

// CanonicalField maps a contact-row label to its canonical field key,
// case-insensitively. Returns "" for unknown labels.
func CanonicalField(label string) string {
	norm := strings.ToLower(strings.TrimSpace(label))
	if norm == "" {
		return ""
	}
	if norm == "x" {
		return entity.FieldTwitter
	}
	for _, m := range labelMatches {
		if strings.Contains(norm, m.substr) {
			return m.field
		}
	}
	return ""
}

// collapseDoubledURL fixes hrefs where the platform URL was concatenated
// onto itself (a markup artifact on some profiles), keeping the last path.
func collapseDoubledURL(href, domain string) string {
	if strings.Count(href, domain) < 2 {
		return href
	}
	parts := strings.Split(href, domain)
	return "https://" + domain + parts[len(parts)-1]
}
