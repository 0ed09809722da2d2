// Package journal turns categorized transactions into double-entry rows and
// checks that they balance.
package journal

import (
	"errors"
	"strings"

	"github.com/dvloznov/bookkeeper/internal/domain"
)

// Composer builds journal entries against a single cash account.
type Composer struct {
	CashCode string
	CashName string
}

// Skipped records a result that produced no journal entry.
type Skipped struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
	Err           error  `json:"-"`
}

// Compose returns the debit and credit rows for one result. An inflow debits
// cash and credits the categorized account; an outflow does the reverse.
func (c Composer) Compose(entryID int, r domain.CategorizationResult) ([2]domain.JournalEntry, error) {
	var pair [2]domain.JournalEntry
	if strings.TrimSpace(r.AccountCode) == "" {
		return pair, &MissingAccountError{TransactionID: r.TransactionID}
	}
	amount := r.Amount.Abs().Round(2)
	if amount.IsZero() {
		return pair, &ZeroAmountError{TransactionID: r.TransactionID}
	}

	row := func(code, name string, t domain.EntryType) domain.JournalEntry {
		e := domain.JournalEntry{
			EntryID:       entryID,
			TransactionID: r.TransactionID,
			Date:          r.Date,
			AccountCode:   code,
			AccountName:   name,
			Description:   r.Description,
			EntryType:     t,
		}
		if t == domain.EntryDebit {
			e.Debit = amount
		} else {
			e.Credit = amount
		}
		return e
	}

	cash := func(t domain.EntryType) domain.JournalEntry { return row(c.CashCode, c.CashName, t) }
	account := func(t domain.EntryType) domain.JournalEntry { return row(r.AccountCode, r.AccountName, t) }

	if r.Amount.IsPositive() {
		pair[0], pair[1] = cash(domain.EntryDebit), account(domain.EntryCredit)
	} else {
		pair[0], pair[1] = account(domain.EntryDebit), cash(domain.EntryCredit)
	}
	return pair, nil
}

// ComposeAll composes every result in order. Entry ids start at startID and
// increase by one per composed pair; results that cannot be composed are
// returned as skipped and consume no id.
func (c Composer) ComposeAll(results []domain.CategorizationResult, startID int) ([]domain.JournalEntry, []Skipped) {
	entries := make([]domain.JournalEntry, 0, 2*len(results))
	var skipped []Skipped
	next := startID
	for _, r := range results {
		pair, err := c.Compose(next, r)
		if err != nil {
			skipped = append(skipped, Skipped{TransactionID: r.TransactionID, Reason: skipReason(err), Err: err})
			continue
		}
		entries = append(entries, pair[0], pair[1])
		next++
	}
	return entries, skipped
}

func skipReason(err error) string {
	var zero *ZeroAmountError
	var missing *MissingAccountError
	switch {
	case errors.As(err, &zero):
		return "zero amount"
	case errors.As(err, &missing):
		return "missing account code"
	}
	return err.Error()
}
