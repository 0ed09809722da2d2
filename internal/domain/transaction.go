package domain

import (
	"github.com/shopspring/decimal"
)

// Transaction is one row of a bank export. It is immutable once loaded.
// Description already carries the memo, joined with " | ", when one was present.
type Transaction struct {
	ID          string          `json:"transaction_id"`
	Date        string          `json:"date"` // verbatim from the export
	Description string          `json:"description"`
	Memo        string          `json:"memo,omitempty"`
	Amount      decimal.Decimal `json:"amount"` // positive = inflow, negative = outflow
}

// IsInflow reports whether money came into the cash account.
func (t Transaction) IsInflow() bool {
	return t.Amount.IsPositive()
}

// AccountEntry is a single line of the chart of accounts.
type AccountEntry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
