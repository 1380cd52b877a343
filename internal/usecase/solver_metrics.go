package usecase

import (
	"context"
	"errors"

	"github.com/crab-wise/tryst-scraper/internal/repository"
	"github.com/crab-wise/tryst-scraper/pkg/metrics"
)

// meteredSolver counts solve outcomes around any CaptchaSolver.
type meteredSolver struct {
	inner repository.CaptchaSolver
}

// MeterSolver wraps a solver with outcome metrics. A nil solver stays nil so
// challenge handling keeps its unsolvable fallback path.
func MeterSolver(inner repository.CaptchaSolver) repository.CaptchaSolver {
	if inner == nil {
		return nil
	}
	return &meteredSolver{inner: inner}
}

func (m *meteredSolver) SolveImage(ctx context.Context, image []byte) (string, error) {
	text, err := m.inner.SolveImage(ctx, image)
	switch {
	case err == nil:
		metrics.CaptchaSolves.WithLabelValues("solved").Inc()
	case errors.Is(err, repository.ErrSolverTimeout):
		metrics.CaptchaSolves.WithLabelValues("timeout").Inc()
	default:
		metrics.CaptchaSolves.WithLabelValues("failed").Inc()
	}
	return text, err
}
