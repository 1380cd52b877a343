package entity

// PageState is the detected state of a loaded page before extraction may run.
type PageState int

const (
	StateUnknown PageState = iota
	StateConsentWall
	StateRateLimitWall
	StateCaptchaChallenge
	StateContentReady
)

func (s PageState) String() string {
	switch s {
	case StateConsentWall:
		return "consent_wall"
	case StateRateLimitWall:
		return "rate_limit_wall"
	case StateCaptchaChallenge:
		return "captcha_challenge"
	case StateContentReady:
		return "content_ready"
	}
	return "unknown"
}

// Detection is one detector verdict: the classified state plus the
// content-readiness confidence score that produced it.
type Detection struct {
	State      PageState
	Confidence float64
}
