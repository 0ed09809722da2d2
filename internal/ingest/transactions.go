// Package ingest reads bank exports and charts of accounts into domain values.
package ingest

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

const (
	colDate        = "date"
	colDescription = "description"
	colAmount      = "amount"
	colMemo        = "memo"

	memoSeparator = " | "
)

// LoadTransactions reads a bank export CSV from disk.
func LoadTransactions(path string) ([]domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IngestionValidationError{Source: path, Reason: err.Error()}
	}
	defer f.Close()

	txns, err := readTransactions(f, path)
	if err != nil {
		return nil, fmt.Errorf("LoadTransactions: %w", err)
	}
	return txns, nil
}

// ReadTransactions parses a bank export. Headers are matched case-insensitively;
// Date, Description and Amount are required, Memo is optional.
func ReadTransactions(r io.Reader) ([]domain.Transaction, error) {
	return readTransactions(r, "bank export")
}

func readTransactions(r io.Reader, source string) ([]domain.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &IngestionValidationError{Source: source, Reason: "empty file"}
	}
	if err != nil {
		return nil, &IngestionValidationError{Source: source, Row: 1, Reason: err.Error()}
	}

	cols := indexHeader(header)
	for _, required := range []string{colDate, colDescription, colAmount} {
		if _, ok := cols[required]; !ok {
			return nil, &IngestionValidationError{Source: source, Field: required, Reason: "missing required column"}
		}
	}

	var txns []domain.Transaction
	for rowIdx := 0; ; rowIdx++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			row := 0
			if errors.As(err, &pe) {
				row = pe.Line
			}
			return nil, &IngestionValidationError{Source: source, Row: row, Reason: err.Error()}
		}
		line, _ := cr.FieldPos(0)
		if blank(record) {
			continue
		}

		get := func(col string) string {
			pos, ok := cols[col]
			if !ok || pos >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[pos])
		}

		date := get(colDate)
		if date == "" {
			return nil, &IngestionValidationError{Source: source, Row: line, Field: colDate, Reason: "empty value"}
		}
		amount, err := ParseAmount(get(colAmount))
		if err != nil {
			return nil, &IngestionValidationError{Source: source, Row: line, Field: colAmount, Reason: err.Error()}
		}

		memo := get(colMemo)
		desc := get(colDescription)
		if memo != "" {
			desc += memoSeparator + memo
		}

		txns = append(txns, domain.Transaction{
			ID:          fmt.Sprintf("trans_%d", rowIdx),
			Date:        date,
			Description: desc,
			Memo:        memo,
			Amount:      amount,
		})
	}
	return txns, nil
}

// indexHeader maps case-folded column names to their positions. The first
// occurrence of a name wins.
func indexHeader(header []string) map[string]int {
	fold := cases.Fold()
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := fold.String(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := cols[key]; !seen {
			cols[key] = i
		}
	}
	return cols
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ParseAmount parses a signed amount such as "-1,234.50", "$99" or "(12.00)".
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if negative {
		d = d.Abs().Neg()
	}
	return d, nil
}

// Checksum returns the hex sha256 of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("Checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("Checksum: reading %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
