package oracle

import (
	"context"
	"time"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/logger"
)

// Retrying retries failed calls with linear backoff. It gives up as soon as
// the call context is done, so it never extends a chunk deadline.
type Retrying struct {
	Next     Oracle
	Attempts int // retries after the first call
	Backoff  time.Duration
}

// Categorize calls Next until it succeeds or retries are exhausted.
func (r *Retrying) Categorize(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
	log := logger.FromContext(ctx)
	var lastErr error
	for attempt := 0; attempt <= r.Attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * r.Backoff
			log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", wait).Msg("Retrying oracle call")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		out, err := r.Next.Categorize(ctx, txns, idx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
