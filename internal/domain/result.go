package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResultSource records where a categorization came from.
type ResultSource string

const (
	// SourceOracle marks a result returned by the categorization oracle.
	SourceOracle ResultSource = "oracle"
	// SourceFallback marks a result produced because the oracle failed for its chunk.
	SourceFallback ResultSource = "fallback"
	// SourceCorrection marks a human-supplied correction.
	SourceCorrection ResultSource = "correction"
)

// Suggestion is the raw answer of an oracle for one transaction, before validation.
type Suggestion struct {
	TransactionID string  `json:"transaction_id"`
	AccountCode   string  `json:"account_code"`
	AccountName   string  `json:"account_name"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
}

// CategorizationResult is one persisted, validated categorization of a transaction.
// Several versions may exist for the same TransactionID; the highest Version wins,
// ties broken by RecordedAt.
type CategorizationResult struct {
	TransactionID string          `json:"transaction_id"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	AccountCode   string          `json:"account_code"`
	AccountName   string          `json:"account_name"`
	Confidence    float64         `json:"confidence"`
	Reasoning     string          `json:"reasoning"`
	ChunkNumber   int             `json:"chunk_number"`
	Version       int             `json:"version"`
	RecordedAt    time.Time       `json:"processed_at"`
	Source        ResultSource    `json:"source"`
}

// IsCorrection reports whether the result was supplied by a reviewer.
func (r CategorizationResult) IsCorrection() bool {
	return r.Source == SourceCorrection
}

// NewResult builds a first-version result for txn from a suggestion.
func NewResult(txn Transaction, s Suggestion, chunk int, source ResultSource, now time.Time) CategorizationResult {
	return CategorizationResult{
		TransactionID: txn.ID,
		Date:          txn.Date,
		Description:   txn.Description,
		Amount:        txn.Amount,
		AccountCode:   s.AccountCode,
		AccountName:   s.AccountName,
		Confidence:    s.Confidence,
		Reasoning:     s.Reasoning,
		ChunkNumber:   chunk,
		Version:       1,
		RecordedAt:    now.UTC(),
		Source:        source,
	}
}
