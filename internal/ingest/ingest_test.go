package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTransactions(t *testing.T) {
	input := "DATE,Description,amount,MEMO\n" +
		"2024-01-02,Owner deposit,\"250,000.00\",initial capital\n" +
		"2024-01-05,Office rent,-18550.75,\n" +
		",,,\n" +
		"2024-01-09,Coffee,$-4.50,\n"

	txns, err := ReadTransactions(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, "trans_0", txns[0].ID)
	assert.Equal(t, "Owner deposit | initial capital", txns[0].Description)
	assert.Equal(t, "initial capital", txns[0].Memo)
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("250000.00")))
	assert.True(t, txns[0].IsInflow())

	assert.Equal(t, "trans_1", txns[1].ID)
	assert.Equal(t, "Office rent", txns[1].Description)
	assert.True(t, txns[1].Amount.Equal(decimal.RequireFromString("-18550.75")))

	// the blank row keeps its position in the id sequence
	assert.Equal(t, "trans_3", txns[2].ID)
	assert.Equal(t, "2024-01-09", txns[2].Date)
}

func TestReadTransactions_MissingColumn(t *testing.T) {
	_, err := ReadTransactions(strings.NewReader("Date,Amount\n2024-01-01,1\n"))

	var verr *IngestionValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "description", verr.Field)
}

func TestReadTransactions_BadRows(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
		row   int
	}{
		{"bad amount", "Date,Description,Amount\n2024-01-01,Thing,abc\n", "amount", 2},
		{"empty amount", "Date,Description,Amount\n2024-01-01,Thing,\n", "amount", 2},
		{"empty date", "Date,Description,Amount\n2024-01-01,Ok,1\n,Thing,3\n", "date", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTransactions(strings.NewReader(tt.input))
			var verr *IngestionValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.row, verr.Row)
		})
	}
}

func TestReadTransactions_Empty(t *testing.T) {
	_, err := ReadTransactions(strings.NewReader(""))
	var verr *IngestionValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "empty file", verr.Reason)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"12.50", "12.5"},
		{"-1,234.56", "-1234.56"},
		{"$99", "99"},
		{"(12.00)", "-12"},
		{" 7 ", "7"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestReadChart(t *testing.T) {
	input := "# Chart of accounts\n\n1000: Cash\n3300: Owner Contributions\n5100 - Rent Expense\n6900: Other Expenses\n"

	entries, err := ReadChart(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "5100", entries[2].Code)
	assert.Equal(t, "Rent Expense", entries[2].Name)
}

func TestReadChart_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"malformed", "1000 Cash\n"},
		{"duplicate", "1000: Cash\n1000: Petty Cash\n"},
		{"empty", "# nothing here\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadChart(strings.NewReader(tt.input))
			var verr *IngestionValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
}

func TestLoadAndChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Description,Amount\n2024-01-01,A,1\n"), 0o600))

	txns, err := LoadTransactions(path)
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	sum1, err := Checksum(path)
	require.NoError(t, err)
	assert.Len(t, sum1, 64)

	require.NoError(t, os.WriteFile(path, []byte("Date,Description,Amount\n2024-01-01,A,2\n"), 0o600))
	sum2, err := Checksum(path)
	require.NoError(t, err)
	assert.NotEqual(t, sum1, sum2)

	_, err = LoadChart(filepath.Join(dir, "missing.txt"))
	var verr *IngestionValidationError
	assert.True(t, errors.As(err, &verr))
}
