package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dvloznov/bookkeeper/internal/domain"
)

// LoadChart reads a chart of accounts from disk.
func LoadChart(path string) ([]domain.AccountEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IngestionValidationError{Source: path, Reason: err.Error()}
	}
	defer f.Close()

	entries, err := readChart(f, path)
	if err != nil {
		return nil, fmt.Errorf("LoadChart: %w", err)
	}
	return entries, nil
}

// ReadChart parses "<code>: <name>" lines. "<code> - <name>" is also accepted.
// Blank lines and lines starting with '#' are ignored.
func ReadChart(r io.Reader) ([]domain.AccountEntry, error) {
	return readChart(r, "chart of accounts")
}

func readChart(r io.Reader, source string) ([]domain.AccountEntry, error) {
	var entries []domain.AccountEntry
	seen := make(map[string]int)

	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		code, name, ok := splitChartLine(text)
		if !ok {
			return nil, &IngestionValidationError{Source: source, Row: line, Reason: fmt.Sprintf("expected \"code: name\", got %q", text)}
		}
		if prev, dup := seen[code]; dup {
			return nil, &IngestionValidationError{Source: source, Row: line, Field: code, Reason: fmt.Sprintf("duplicate account code (first seen on line %d)", prev)}
		}
		seen[code] = line
		entries = append(entries, domain.AccountEntry{Code: code, Name: name})
	}
	if err := sc.Err(); err != nil {
		return nil, &IngestionValidationError{Source: source, Reason: err.Error()}
	}
	if len(entries) == 0 {
		return nil, &IngestionValidationError{Source: source, Reason: "no accounts found"}
	}
	return entries, nil
}

func splitChartLine(text string) (code, name string, ok bool) {
	for _, sep := range []string{":", " - "} {
		if c, n, found := strings.Cut(text, sep); found {
			code, name = strings.TrimSpace(c), strings.TrimSpace(n)
			if code != "" && name != "" {
				return code, name, true
			}
		}
	}
	return "", "", false
}
