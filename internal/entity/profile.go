package entity

import "time"

// Canonical contact field keys, in the fixed CSV column order.
const (
	FieldName      = "name"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldMobile    = "mobile"
	FieldWhatsApp  = "whatsapp"
	FieldLinktree  = "linktree"
	FieldWebsite   = "website"
	FieldOnlyFans  = "onlyfans"
	FieldFansly    = "fansly"
	FieldTwitter   = "twitter"
	FieldInstagram = "instagram"
	FieldSnapchat  = "snapchat"
	FieldTelegram  = "telegram"
)

// FieldKeys lists every canonical field in output order.
var FieldKeys = []string{
	FieldName, FieldEmail, FieldPhone, FieldMobile, FieldWhatsApp,
	FieldLinktree, FieldWebsite, FieldOnlyFans, FieldFansly,
	FieldTwitter, FieldInstagram, FieldSnapchat, FieldTelegram,
}

// IdentityFields are fields for which a hyperlink target must never be used
// as the value; an unrelated link would be captured as an email or number.
var IdentityFields = map[string]bool{
	FieldEmail:    true,
	FieldPhone:    true,
	FieldMobile:   true,
	FieldWhatsApp: true,
}

// FailureKind classifies the outcome of one profile attempt.
type FailureKind int

const (
	// FailureNone means the attempt succeeded.
	FailureNone FailureKind = iota
	// FailureTransient means the attempt hit a retryable condition (rate
	// limit, timeout, solver round-trip failure). The URL must NOT be
	// marked done so a later run picks it up again.
	FailureTransient
	// FailureTerminal means the URL is permanently unprocessable within
	// this system (unsolvable CAPTCHA, confirmed non-profile page,
	// unexpected worker fault). It is recorded and marked done.
	FailureTerminal
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTransient:
		return "transient"
	case FailureTerminal:
		return "terminal"
	}
	return "unknown"
}

// ProfileRecord is the outcome of attempting one profile URL. It is created
// once per URL, written at most once to durable storage, never mutated after.
type ProfileRecord struct {
	URL           string
	Fields        map[string]string
	ProcessTime   time.Duration
	Success       bool
	LowConfidence bool
	FailureKind   FailureKind
	FailureReason string
}

// NewProfileRecord returns a record with every canonical field present and empty.
func NewProfileRecord(url string) *ProfileRecord {
	fields := make(map[string]string, len(FieldKeys))
	for _, k := range FieldKeys {
		fields[k] = ""
	}
	return &ProfileRecord{URL: url, Fields: fields}
}

// Field returns the value for a canonical key, empty when unset.
func (r *ProfileRecord) Field(key string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[key]
}

// SetField stores a value under a canonical key.
func (r *ProfileRecord) SetField(key, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string, len(FieldKeys))
	}
	r.Fields[key] = value
}
