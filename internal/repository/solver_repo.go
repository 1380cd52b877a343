package repository

import "context"

// CaptchaSolver submits a challenge image to an external OCR service and
// returns the recognized text. Implementations poll the service with bounded
// attempts and return ErrSolverTimeout when no result arrives in time.
type CaptchaSolver interface {
	SolveImage(ctx context.Context, image []byte) (string, error)
}
