// Package report renders journal entries as a CSV table and a JSON report.
package report

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/journal"
	"github.com/dvloznov/bookkeeper/internal/triage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Balance check labels.
const (
	Balanced   = "BALANCED"
	Unbalanced = "UNBALANCED"
)

// Amount is a money value rendered in JSON as a number with two decimals.
type Amount decimal.Decimal

// MarshalJSON writes the amount as a bare number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).StringFixed(2)), nil
}

// UnmarshalJSON accepts a JSON number or numeric string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*a = Amount(d)
	return nil
}

// Metadata identifies the journal run and the session it was built from.
// TotalTransactions counts the export as recorded on the session; it exceeds
// CategorizedTransactions only when an incomplete session was journaled.
type Metadata struct {
	JournalSessionID        string              `json:"journal_session_id"`
	CategorizationSessionID string              `json:"categorization_session_id"`
	CreatedAt               time.Time           `json:"created_at"`
	Policy                  string              `json:"policy"`
	TotalTransactions       int                 `json:"total_transactions"`
	CategorizedTransactions int                 `json:"categorized_transactions"`
	TotalEntries            int                 `json:"total_entries"`
	Skipped                 int                 `json:"skipped"`
	Balanced                bool                `json:"balanced"`
	Session                 *domain.SessionMeta `json:"session,omitempty"`
}

// Summary holds ledger totals and confidence statistics.
type Summary struct {
	TotalDebits       Amount       `json:"total_debits"`
	TotalCredits      Amount       `json:"total_credits"`
	Difference        Amount       `json:"difference"`
	BalanceCheck      string       `json:"balance_check"`
	FlaggedCount      int          `json:"flagged_count"`
	FlaggedIDs        []string     `json:"flagged_ids"`
	AverageConfidence float64      `json:"average_confidence"`
	ConfidenceBands   triage.Bands `json:"confidence_bands"`
}

// AccountSummary totals the journal rows posted to one account.
type AccountSummary struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	TotalDebits  Amount `json:"total_debits"`
	TotalCredits Amount `json:"total_credits"`
	NetAmount    Amount `json:"net_amount"`
	EntryCount   int    `json:"entry_count"`
}

// Entry is one journal row as written to the report.
type Entry struct {
	EntryID       int              `json:"entry_id"`
	TransactionID string           `json:"transaction_id"`
	Date          string           `json:"date"`
	AccountCode   string           `json:"account_code"`
	AccountName   string           `json:"account_name"`
	Description   string           `json:"description"`
	Debit         Amount           `json:"debit"`
	Credit        Amount           `json:"credit"`
	EntryType     domain.EntryType `json:"entry_type"`
}

// Report is the JSON document written next to the CSV table.
type Report struct {
	Metadata       Metadata          `json:"metadata"`
	Summary        Summary           `json:"summary"`
	AccountSummary []AccountSummary  `json:"account_summary"`
	JournalEntries []Entry           `json:"journal_entries"`
	Skipped        []journal.Skipped `json:"skipped"`

	Entries []domain.JournalEntry `json:"-"`
}

// Input gathers what a report is built from. Results are the merged results
// of the categorization session, including any not journaled.
type Input struct {
	JournalID  string
	SessionID  string
	Session    *domain.SessionMeta // optional header of the categorization session
	CreatedAt  time.Time
	Policy     string
	Results    []domain.CategorizationResult
	Outcome    triage.Outcome
	Validation journal.Report
	Skipped    []journal.Skipped
}

// Build assembles a report.
func Build(in Input) Report {
	stats := triage.Summarize(in.Results)
	v := in.Validation

	total := len(in.Results)
	var session *domain.SessionMeta
	if in.Session != nil {
		meta := *in.Session
		meta.CreatedAt = meta.CreatedAt.UTC()
		session = &meta
		if meta.TotalTransactions > 0 {
			total = meta.TotalTransactions
		}
	}

	rep := Report{
		Metadata: Metadata{
			JournalSessionID:        in.JournalID,
			CategorizationSessionID: in.SessionID,
			CreatedAt:               in.CreatedAt.UTC(),
			Policy:                  in.Policy,
			TotalTransactions:       total,
			CategorizedTransactions: len(in.Results),
			TotalEntries:            len(v.Entries),
			Skipped:                 len(in.Skipped),
			Balanced:                v.Balanced,
			Session:                 session,
		},
		Summary: Summary{
			TotalDebits:       Amount(v.TotalDebits),
			TotalCredits:      Amount(v.TotalCredits),
			Difference:        Amount(v.TotalDebits.Sub(v.TotalCredits)),
			BalanceCheck:      Unbalanced,
			FlaggedCount:      len(in.Outcome.Flagged),
			FlaggedIDs:        in.Outcome.FlaggedIDs(),
			AverageConfidence: stats.AverageConfidence,
			ConfidenceBands:   stats.Bands,
		},
		AccountSummary: summarizeAccounts(v.Entries),
		JournalEntries: make([]Entry, 0, len(v.Entries)),
		Skipped:        append([]journal.Skipped{}, in.Skipped...),
		Entries:        v.Entries,
	}
	if v.Balanced {
		rep.Summary.BalanceCheck = Balanced
	}
	for _, e := range v.Entries {
		rep.JournalEntries = append(rep.JournalEntries, Entry{
			EntryID:       e.EntryID,
			TransactionID: e.TransactionID,
			Date:          e.Date,
			AccountCode:   e.AccountCode,
			AccountName:   e.AccountName,
			Description:   e.Description,
			Debit:         Amount(e.Debit),
			Credit:        Amount(e.Credit),
			EntryType:     e.EntryType,
		})
	}
	return rep
}

func summarizeAccounts(entries []domain.JournalEntry) []AccountSummary {
	type totals struct {
		name          string
		debit, credit decimal.Decimal
		count         int
	}
	byCode := make(map[string]*totals)
	for _, e := range entries {
		t, ok := byCode[e.AccountCode]
		if !ok {
			t = &totals{name: e.AccountName}
			byCode[e.AccountCode] = t
		}
		t.debit = t.debit.Add(e.Debit)
		t.credit = t.credit.Add(e.Credit)
		t.count++
	}

	out := make([]AccountSummary, 0, len(byCode))
	for code, t := range byCode {
		out = append(out, AccountSummary{
			Code:         code,
			Name:         t.name,
			TotalDebits:  Amount(t.debit),
			TotalCredits: Amount(t.credit),
			NetAmount:    Amount(t.debit.Sub(t.credit)),
			EntryCount:   t.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// WriteReport writes rep as indented JSON.
func WriteReport(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// NewJournalID returns an id of the form journal_YYYYMMDD_HHMMSS_<8 hex>.
func NewJournalID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "journal_" + now.UTC().Format("20060102_150405") + "_" + suffix
}
