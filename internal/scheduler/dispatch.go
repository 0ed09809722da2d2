package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/oracle"
	"golang.org/x/sync/errgroup"
)

// ChunkResult is the outcome of one chunk, in transaction order.
type ChunkResult struct {
	Chunk   Chunk
	Results []domain.CategorizationResult
	Err     *oracle.OracleFailure // nil when the oracle answered
}

// Dispatcher fans chunks out to an oracle with a bounded worker pool. Chunks
// are sent as given; one built by Schedule may exceed the configured chunk
// size by a folded-in tail, and the oracle must accept that.
type Dispatcher struct {
	Oracle         oracle.Oracle
	Index          *coa.Index
	MaxConcurrency int           // <= 0 means one worker per chunk
	Timeout        time.Duration // per chunk; <= 0 means no deadline
	DefaultCode    string
	DefaultName    string
	Now            func() time.Time
}

// Dispatch sends every chunk to the oracle. A chunk whose call errors or times
// out degrades to the default account at zero confidence; it never stops the
// other chunks. Completed chunks are handed one at a time to onChunk from a
// single goroutine, so onChunk may write to storage without locking. An error
// from onChunk or cancellation of ctx aborts the run. Once ctx is cancelled no
// further chunk reaches onChunk, and chunks interrupted by the cancellation
// produce no fallback results, so a resumed run dispatches them again.
//
// The returned results follow the original transaction order.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []Chunk, onChunk func(ChunkResult) error) ([]domain.CategorizationResult, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	log := logger.FromContext(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	limit := d.MaxConcurrency
	if limit <= 0 || limit > len(chunks) {
		limit = len(chunks)
	}
	g.SetLimit(limit)

	done := make(chan ChunkResult)
	collected := make(chan error, 1)
	byChunk := make(map[int][]domain.CategorizationResult, len(chunks))

	go func() {
		var err error
		for cr := range done {
			if err != nil {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = fmt.Errorf("Dispatch: chunk %d not recorded: %w", cr.Chunk.Number, ctxErr)
				continue
			}
			byChunk[cr.Chunk.Number] = cr.Results
			if onChunk != nil {
				if cbErr := onChunk(cr); cbErr != nil {
					err = fmt.Errorf("Dispatch: chunk %d: %w", cr.Chunk.Number, cbErr)
					cancel()
				}
			}
		}
		collected <- err
	}()

	for _, ch := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cr, ok := d.run(gctx, ch)
			if !ok {
				return gctx.Err()
			}
			select {
			case done <- cr:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	runErr := g.Wait()
	close(done)
	if err := <-collected; err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, fmt.Errorf("Dispatch: %w", runErr)
	}

	out := make([]domain.CategorizationResult, 0)
	for _, ch := range chunks {
		out = append(out, byChunk[ch.Number]...)
	}
	log.Info().Int("chunks", len(chunks)).Int("results", len(out)).Msg("Dispatch complete")
	return out, nil
}

// run calls the oracle for one chunk under its own deadline. It reports false
// when ctx itself was cancelled; only the per-chunk deadline degrades a chunk
// to fallback results.
func (d *Dispatcher) run(ctx context.Context, ch Chunk) (ChunkResult, bool) {
	log := logger.FromContext(ctx).With().Int("chunk", ch.Number).Int("size", len(ch.Transactions)).Logger()

	callCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	start := time.Now()
	suggestions, err := d.Oracle.Categorize(logger.WithContext(callCtx, log), ch.Transactions, d.Index)
	if ctx.Err() != nil {
		log.Debug().Err(ctx.Err()).Dur("duration", time.Since(start)).Msg("Chunk interrupted, not recorded")
		return ChunkResult{Chunk: ch}, false
	}
	if err == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		// late answers are discarded so a timed-out chunk behaves the same
		// regardless of whether the oracle honors its context
		err = callCtx.Err()
	}
	if err != nil {
		failure := &oracle.OracleFailure{Chunk: ch.Number, Err: err}
		log.Warn().Err(err).Bool("timeout", failure.Timeout()).Dur("duration", time.Since(start)).Msg("Chunk failed, using default account")
		return ChunkResult{Chunk: ch, Results: d.fallbackAll(ch, err), Err: failure}, true
	}

	log.Debug().Dur("duration", time.Since(start)).Int("suggestions", len(suggestions)).Msg("Chunk categorized")
	return ChunkResult{Chunk: ch, Results: d.merge(ch, suggestions)}, true
}

// merge aligns suggestions to the chunk's transactions. Transactions the
// oracle skipped fall back; suggestions for unknown ids are dropped.
func (d *Dispatcher) merge(ch Chunk, suggestions []domain.Suggestion) []domain.CategorizationResult {
	byID := make(map[string]domain.Suggestion, len(suggestions))
	for _, s := range suggestions {
		if _, dup := byID[s.TransactionID]; !dup {
			byID[s.TransactionID] = s
		}
	}
	now := d.now()
	out := make([]domain.CategorizationResult, 0, len(ch.Transactions))
	for _, t := range ch.Transactions {
		s, ok := byID[t.ID]
		if !ok {
			out = append(out, d.fallback(t, ch.Number, "oracle returned no suggestion for this transaction", now))
			continue
		}
		s.TransactionID = t.ID
		out = append(out, domain.NewResult(t, s, ch.Number, domain.SourceOracle, now))
	}
	return out
}

func (d *Dispatcher) fallbackAll(ch Chunk, err error) []domain.CategorizationResult {
	now := d.now()
	reason := fmt.Sprintf("Parallel processing failed: %v", err)
	out := make([]domain.CategorizationResult, 0, len(ch.Transactions))
	for _, t := range ch.Transactions {
		out = append(out, d.fallback(t, ch.Number, reason, now))
	}
	return out
}

func (d *Dispatcher) fallback(t domain.Transaction, chunk int, reason string, now time.Time) domain.CategorizationResult {
	s := domain.Suggestion{
		TransactionID: t.ID,
		AccountCode:   d.DefaultCode,
		AccountName:   d.DefaultName,
		Confidence:    0,
		Reasoning:     reason,
	}
	return domain.NewResult(t, s, chunk, domain.SourceFallback, now)
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
