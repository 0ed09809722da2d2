package journal

import (
	"errors"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/shopspring/decimal"
)

// Report is the outcome of validating a set of journal entries.
type Report struct {
	Entries      []domain.JournalEntry
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
	Balanced     bool
	Imbalances   []*ImbalanceError
	Global       *LedgerImbalanceError
}

// Err joins every validation failure, or returns nil when balanced.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Imbalances)+1)
	for _, e := range r.Imbalances {
		errs = append(errs, e)
	}
	if r.Global != nil {
		errs = append(errs, r.Global)
	}
	return errors.Join(errs...)
}

type entryGroup struct {
	id   int
	rows []domain.JournalEntry
}

// Validate checks every entry for shape and balance, then the ledger totals.
// Differences up to tolerance are accepted.
func Validate(entries []domain.JournalEntry, tolerance float64) Report {
	tol := decimal.NewFromFloat(tolerance)
	rep := Report{
		Entries:      entries,
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
	}

	var groups []*entryGroup
	byID := make(map[int]*entryGroup)
	for _, e := range entries {
		rep.TotalDebits = rep.TotalDebits.Add(e.Debit)
		rep.TotalCredits = rep.TotalCredits.Add(e.Credit)

		g, ok := byID[e.EntryID]
		if !ok {
			g = &entryGroup{id: e.EntryID}
			byID[e.EntryID] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, e)
	}

	for _, g := range groups {
		if ie := checkEntry(g, tol); ie != nil {
			rep.Imbalances = append(rep.Imbalances, ie)
		}
	}

	if rep.TotalDebits.Sub(rep.TotalCredits).Abs().GreaterThan(tol) {
		rep.Global = &LedgerImbalanceError{TotalDebits: rep.TotalDebits, TotalCredits: rep.TotalCredits}
	}
	rep.Balanced = len(rep.Imbalances) == 0 && rep.Global == nil
	return rep
}

func checkEntry(g *entryGroup, tol decimal.Decimal) *ImbalanceError {
	debit, credit := decimal.Zero, decimal.Zero
	var debits, credits int
	reason := ""
	for _, row := range g.rows {
		debit = debit.Add(row.Debit)
		credit = credit.Add(row.Credit)
		hasDebit, hasCredit := !row.Debit.IsZero(), !row.Credit.IsZero()
		switch {
		case hasDebit && hasCredit:
			reason = "row carries both a debit and a credit"
		case row.Debit.IsNegative() || row.Credit.IsNegative():
			reason = "row carries a negative amount"
		case hasDebit:
			debits++
		case hasCredit:
			credits++
		}
	}

	if reason == "" {
		switch {
		case len(g.rows) != 2:
			reason = "entry must have exactly two rows"
		case debits != 1 || credits != 1:
			reason = "entry must have one debit row and one credit row"
		case debit.Sub(credit).Abs().GreaterThan(tol):
			reason = "debits do not equal credits"
		}
	}
	if reason == "" {
		return nil
	}
	return &ImbalanceError{EntryID: g.id, Debit: debit, Credit: credit, Reason: reason}
}
