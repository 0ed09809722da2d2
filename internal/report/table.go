package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/dvloznov/bookkeeper/internal/domain"
)

var tableHeader = []string{
	"Entry ID", "Transaction ID", "Date", "Account Code", "Account Name",
	"Description", "Debit", "Credit", "Entry Type",
}

// WriteTable writes entries as CSV, one row per journal row.
func WriteTable(w io.Writer, entries []domain.JournalEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return fmt.Errorf("WriteTable: header: %w", err)
	}
	for _, e := range entries {
		record := []string{
			strconv.Itoa(e.EntryID),
			e.TransactionID,
			e.Date,
			e.AccountCode,
			e.AccountName,
			e.Description,
			e.Debit.StringFixed(2),
			e.Credit.StringFixed(2),
			string(e.EntryType),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteTable: entry %d: %w", e.EntryID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteTable: %w", err)
	}
	return nil
}
