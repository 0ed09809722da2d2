package domain

import "github.com/shopspring/decimal"

// EntryType is the side of a journal row.
type EntryType string

const (
	EntryDebit  EntryType = "debit"
	EntryCredit EntryType = "credit"
)

// JournalEntry is one row of a double-entry pair. Exactly two rows share an EntryID,
// and only one of Debit or Credit is nonzero on each row.
type JournalEntry struct {
	EntryID       int             `json:"entry_id"`
	TransactionID string          `json:"transaction_id"`
	Date          string          `json:"date"`
	AccountCode   string          `json:"account_code"`
	AccountName   string          `json:"account_name"`
	Description   string          `json:"description"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	EntryType     EntryType       `json:"entry_type"`
}
