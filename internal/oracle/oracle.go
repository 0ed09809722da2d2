// Package oracle defines the categorization capability and its implementations.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

// Oracle proposes an account for each transaction of a chunk. Implementations
// may fail or block; callers bound each call with a context deadline.
type Oracle interface {
	Categorize(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error)

// Categorize calls f.
func (f Func) Categorize(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
	return f(ctx, txns, idx)
}

// OracleFailure wraps an error returned for a whole chunk.
type OracleFailure struct {
	Chunk int
	Err   error
}

func (e *OracleFailure) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("chunk %d: oracle timed out: %v", e.Chunk, e.Err)
	}
	return fmt.Sprintf("chunk %d: oracle failed: %v", e.Chunk, e.Err)
}

func (e *OracleFailure) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *OracleFailure) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
