package journal

import (
	"errors"
	"testing"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var composer = Composer{CashCode: "1000", CashName: "Cash"}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func result(id, amount, code, name string) domain.CategorizationResult {
	return domain.CategorizationResult{
		TransactionID: id,
		Date:          "03/15/2024",
		Description:   "desc " + id,
		Amount:        dec(amount),
		AccountCode:   code,
		AccountName:   name,
		Confidence:    0.9,
	}
}

func TestComposeInflow(t *testing.T) {
	pair, err := composer.Compose(1, result("trans_0", "250000.00", "3300", "Owner Contributions"))
	require.NoError(t, err)

	cash := pair[0]
	assert.Equal(t, 1, cash.EntryID)
	assert.Equal(t, "trans_0", cash.TransactionID)
	assert.Equal(t, "03/15/2024", cash.Date)
	assert.Equal(t, "1000", cash.AccountCode)
	assert.Equal(t, "Cash", cash.AccountName)
	assert.Equal(t, "desc trans_0", cash.Description)
	assert.Equal(t, domain.EntryDebit, cash.EntryType)
	assert.Equal(t, "250000.00", cash.Debit.StringFixed(2))
	assert.True(t, cash.Credit.IsZero())

	assert.Equal(t, "3300", pair[1].AccountCode)
	assert.Equal(t, domain.EntryCredit, pair[1].EntryType)
	assert.True(t, pair[1].Credit.Equal(dec("250000.00")))
	assert.True(t, pair[1].Debit.IsZero())
}

func TestComposeOutflow(t *testing.T) {
	pair, err := composer.Compose(7, result("trans_1", "-18550.75", "5100", "Rent"))
	require.NoError(t, err)

	assert.Equal(t, "5100", pair[0].AccountCode)
	assert.Equal(t, domain.EntryDebit, pair[0].EntryType)
	assert.True(t, pair[0].Debit.Equal(dec("18550.75")))
	assert.Equal(t, "1000", pair[1].AccountCode)
	assert.Equal(t, domain.EntryCredit, pair[1].EntryType)
	assert.True(t, pair[1].Credit.Equal(dec("18550.75")))
	assert.Equal(t, 7, pair[0].EntryID)
	assert.Equal(t, 7, pair[1].EntryID)
}

func TestComposeRoundsToCents(t *testing.T) {
	pair, err := composer.Compose(1, result("trans_2", "-10.005", "5100", "Rent"))
	require.NoError(t, err)
	assert.Equal(t, "10.01", pair[0].Debit.StringFixed(2))
	assert.True(t, pair[0].Debit.Equal(pair[1].Credit))
}

func TestComposeRejects(t *testing.T) {
	tests := []struct {
		name   string
		result domain.CategorizationResult
		target any
	}{
		{"zero", result("trans_3", "0", "5100", "Rent"), new(*ZeroAmountError)},
		{"rounds to zero", result("trans_4", "0.004", "5100", "Rent"), new(*ZeroAmountError)},
		{"no account", result("trans_5", "12", " ", ""), new(*MissingAccountError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := composer.Compose(1, tt.result)
			require.Error(t, err)
			assert.ErrorAs(t, err, tt.target)
		})
	}
}

func TestComposeAllAllocatesSequentialIDs(t *testing.T) {
	results := []domain.CategorizationResult{
		result("trans_0", "100", "4000", "Sales"),
		result("trans_1", "0", "4000", "Sales"),
		result("trans_2", "-40", "5100", "Rent"),
	}
	entries, skipped := composer.ComposeAll(results, 1)

	require.Len(t, entries, 4)
	assert.Equal(t, []int{1, 1, 2, 2}, []int{entries[0].EntryID, entries[1].EntryID, entries[2].EntryID, entries[3].EntryID})
	assert.Equal(t, "trans_2", entries[2].TransactionID)

	require.Len(t, skipped, 1)
	assert.Equal(t, "trans_1", skipped[0].TransactionID)
	assert.Equal(t, "zero amount", skipped[0].Reason)
	var zero *ZeroAmountError
	assert.True(t, errors.As(skipped[0].Err, &zero))
}

func TestValidateBalanced(t *testing.T) {
	entries, _ := composer.ComposeAll([]domain.CategorizationResult{
		result("trans_0", "250000.00", "3300", "Owner Contributions"),
		result("trans_1", "-18550.75", "5100", "Rent"),
	}, 1)

	rep := Validate(entries, 0.01)
	assert.True(t, rep.Balanced)
	assert.NoError(t, rep.Err())
	assert.Empty(t, rep.Imbalances)
	assert.Nil(t, rep.Global)
	assert.Equal(t, "268550.75", rep.TotalDebits.StringFixed(2))
	assert.Equal(t, "268550.75", rep.TotalCredits.StringFixed(2))
}

func TestValidateEmpty(t *testing.T) {
	rep := Validate(nil, 0.01)
	assert.True(t, rep.Balanced)
	assert.True(t, rep.TotalDebits.IsZero())
}

func TestValidateDetectsBrokenEntries(t *testing.T) {
	good, _ := composer.Compose(1, result("trans_0", "50", "4000", "Sales"))
	lopsided, _ := composer.Compose(2, result("trans_1", "-20", "5100", "Rent"))
	lopsided[1].Credit = dec("19.50")
	both, _ := composer.Compose(3, result("trans_2", "-5", "5100", "Rent"))
	both[0].Credit = dec("5")
	single, _ := composer.Compose(4, result("trans_3", "-5", "5100", "Rent"))

	entries := []domain.JournalEntry{good[0], good[1], lopsided[0], lopsided[1], both[0], both[1], single[0]}
	rep := Validate(entries, 0.01)

	require.False(t, rep.Balanced)
	require.Len(t, rep.Imbalances, 3)
	assert.Equal(t, 2, rep.Imbalances[0].EntryID)
	assert.Equal(t, "debits do not equal credits", rep.Imbalances[0].Reason)
	assert.Equal(t, 3, rep.Imbalances[1].EntryID)
	assert.Equal(t, "row carries both a debit and a credit", rep.Imbalances[1].Reason)
	assert.Equal(t, 4, rep.Imbalances[2].EntryID)
	assert.Equal(t, "entry must have exactly two rows", rep.Imbalances[2].Reason)

	require.NotNil(t, rep.Global)
	err := rep.Err()
	var ledger *LedgerImbalanceError
	assert.ErrorAs(t, err, &ledger)
	var entry *ImbalanceError
	assert.ErrorAs(t, err, &entry)
	assert.Contains(t, err.Error(), "entry 2: debits do not equal credits")
}

func TestValidateTolerance(t *testing.T) {
	pair, _ := composer.Compose(1, result("trans_0", "-20", "5100", "Rent"))
	pair[1].Credit = dec("19.995")

	rep := Validate(pair[:], 0.01)
	assert.True(t, rep.Balanced, "a half-cent difference is within tolerance")

	rep = Validate(pair[:], 0)
	assert.False(t, rep.Balanced)
}
