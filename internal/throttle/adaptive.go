// Package throttle holds the shared adaptive delay that all workers consult
// before a network-facing action. A single process-wide delay (not per-URL)
// lets concurrent workers collectively back off when the target signals
// distress and converge toward a sustainable request rate.
package throttle

import (
	"math/rand"
	"sync"
	"time"
)

const jitterFactor = 0.2 // +/- 20%

// AdaptiveDelay is safe for concurrent use. The delay is clamped to
// [base, max] at all times.
type AdaptiveDelay struct {
	mu         sync.Mutex
	base       time.Duration
	max        time.Duration
	factor     float64 // escalation multiplier per rate-limit report
	decay      float64 // decay multiplier per success report
	multiplier float64
	hits       int64
	rng        *rand.Rand
}

// New returns a controller at base delay. factor must be > 1 and decay in
// (0, 1); out-of-range values fall back to 1.5 and 0.9.
func New(base, max time.Duration, factor, decay float64) *AdaptiveDelay {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if factor <= 1 {
		factor = 1.5
	}
	if decay <= 0 || decay >= 1 {
		decay = 0.9
	}
	return &AdaptiveDelay{
		base:       base,
		max:        max,
		factor:     factor,
		decay:      decay,
		multiplier: 1,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Current returns the delay to apply before the next network action: the
// escalated delay with +/-20% jitter, clamped to [base, max]. Never blocks.
func (d *AdaptiveDelay) Current() time.Duration {
	d.mu.Lock()
	delay := d.clampedLocked()
	jitter := 1 + jitterFactor*(2*d.rng.Float64()-1)
	d.mu.Unlock()

	jittered := time.Duration(float64(delay) * jitter)
	if jittered < d.base {
		jittered = d.base
	}
	if jittered > d.max {
		jittered = d.max
	}
	return jittered
}

// ReportRateLimited escalates the shared multiplier and returns the new
// unjittered delay. Escalation is monotonic up to the cap.
func (d *AdaptiveDelay) ReportRateLimited() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hits++
	d.multiplier *= d.factor
	if time.Duration(float64(d.base)*d.multiplier) > d.max {
		d.multiplier = float64(d.max) / float64(d.base)
	}
	return d.clampedLocked()
}

// ReportSuccess decays the multiplier toward base and returns the new
// unjittered delay.
func (d *AdaptiveDelay) ReportSuccess() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.multiplier > 1 {
		d.multiplier *= d.decay
		if d.multiplier < 1 {
			d.multiplier = 1
		}
	}
	return d.clampedLocked()
}

// Hits returns the cumulative count of rate-limit detections. Callers that
// need per-batch counts snapshot this and diff.
func (d *AdaptiveDelay) Hits() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits
}

func (d *AdaptiveDelay) clampedLocked() time.Duration {
	delay := time.Duration(float64(d.base) * d.multiplier)
	if delay < d.base {
		return d.base
	}
	if delay > d.max {
		return d.max
	}
	return delay
}
