package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/session"
	"github.com/dvloznov/bookkeeper/internal/triage"
)

// ErrUnknownTransaction is returned when a correction names a transaction
// that the session never categorized.
var ErrUnknownTransaction = errors.New("transaction not found in session")

// ApplyCorrection appends a reviewer correction for txnID. The code must be in
// idx; the new record supersedes every earlier one for the transaction.
func ApplyCorrection(ctx context.Context, store session.Store, idx *coa.Index, sessionID, txnID, code string, confidence float64, reason string, now time.Time) (domain.CategorizationResult, error) {
	if idx == nil {
		return domain.CategorizationResult{}, fmt.Errorf("ApplyCorrection: chart of accounts is required")
	}
	entry, ok := idx.Lookup(code)
	if !ok {
		return domain.CategorizationResult{}, fmt.Errorf("ApplyCorrection: %w", &triage.UnknownAccountCode{TransactionID: txnID, Code: code})
	}

	_, records, err := store.ReadAll(ctx, sessionID)
	if err != nil {
		return domain.CategorizationResult{}, fmt.Errorf("ApplyCorrection: %w", err)
	}
	var prev *domain.CategorizationResult
	for _, r := range triage.MergeLatest(records) {
		if r.TransactionID == txnID {
			prev = &r
			break
		}
	}
	if prev == nil {
		return domain.CategorizationResult{}, fmt.Errorf("ApplyCorrection: %s: %w", txnID, ErrUnknownTransaction)
	}

	next := triage.NewCorrection(*prev, entry.Code, entry.Name, confidence, reason, now)
	if err := store.Append(ctx, sessionID, next); err != nil {
		return domain.CategorizationResult{}, fmt.Errorf("ApplyCorrection: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("session_id", sessionID).
		Str("txn_id", txnID).
		Str("from", prev.AccountCode).
		Str("to", next.AccountCode).
		Int("version", next.Version).
		Msg("Applied correction")
	return next, nil
}
