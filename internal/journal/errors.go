package journal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ZeroAmountError is returned for a transaction whose amount rounds to zero;
// it has no direction and cannot be journaled.
type ZeroAmountError struct {
	TransactionID string
}

func (e *ZeroAmountError) Error() string {
	return fmt.Sprintf("transaction %s has a zero amount", e.TransactionID)
}

// MissingAccountError is returned for a result without an account code.
type MissingAccountError struct {
	TransactionID string
}

func (e *MissingAccountError) Error() string {
	return fmt.Sprintf("transaction %s has no account code", e.TransactionID)
}

// ImbalanceError describes one journal entry that fails validation.
type ImbalanceError struct {
	EntryID int
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Reason  string
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("entry %d: %s (debits %s, credits %s)",
		e.EntryID, e.Reason, e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// LedgerImbalanceError reports that total debits and credits differ.
type LedgerImbalanceError struct {
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
}

// Difference returns debits minus credits.
func (e *LedgerImbalanceError) Difference() decimal.Decimal {
	return e.TotalDebits.Sub(e.TotalCredits)
}

func (e *LedgerImbalanceError) Error() string {
	return fmt.Sprintf("ledger out of balance: debits %s, credits %s, difference %s",
		e.TotalDebits.StringFixed(2), e.TotalCredits.StringFixed(2), e.Difference().StringFixed(2))
}
