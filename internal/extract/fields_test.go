package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crab-wise/tryst-scraper/internal/entity"
)

func TestCanonicalField(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"Email", entity.FieldEmail},
		{"  email  ", entity.FieldEmail},
		{"EMAIL", entity.FieldEmail},
		{"Phone", entity.FieldPhone},
		{"Mobile", entity.FieldMobile},
		{"Mobile phone", entity.FieldMobile},
		{"WhatsApp", entity.FieldWhatsApp},
		{"Twitter", entity.FieldTwitter},
		{"X", entity.FieldTwitter},
		{"X (formerly Twitter)", entity.FieldTwitter},
		{"Instagram", entity.FieldInstagram},
		{"Linktree", entity.FieldLinktree},
		{"OnlyFans", entity.FieldOnlyFans},
		{"Fansly", entity.FieldFansly},
		{"Snapchat", entity.FieldSnapchat},
		{"Telegram", entity.FieldTelegram},
		{"Website", entity.FieldWebsite},
		{"Rates", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalField(tc.label), "label %q", tc.label)
	}
}

func TestCanonicalFieldDeterministic(t *testing.T) {
	// Labels that contain more than one known substring must always resolve
	// to the same field regardless of how often the table is consulted.
	for i := 0; i < 100; i++ {
		assert.Equal(t, entity.FieldMobile, CanonicalField("Mobile Phone"))
		assert.Equal(t, entity.FieldTwitter, CanonicalField("X (formerly Twitter)"))
	}
}

func TestCollapseDoubledURL(t *testing.T) {
	doubled := "https://onlyfans.com/https://onlyfans.com/alexdoe"
	assert.Equal(t, "https://onlyfans.com/alexdoe", collapseDoubledURL(doubled, "onlyfans.com"))

	clean := "https://onlyfans.com/alexdoe"
	assert.Equal(t, clean, collapseDoubledURL(clean, "onlyfans.com"))

	other := "https://linktr.ee/alexdoe"
	assert.Equal(t, other, collapseDoubledURL(other, "onlyfans.com"))
}
