// Package coa indexes the chart of accounts used to validate categorizations.
package coa

import (
	"fmt"
	"strings"

	"github.com/dvloznov/bookkeeper/internal/domain"
)

// Index is a read-only lookup over account codes. It is safe for concurrent use
// once built.
type Index struct {
	entries []domain.AccountEntry
	byCode  map[string]int
}

// New builds an index, rejecting empty and duplicate codes.
func New(entries []domain.AccountEntry) (*Index, error) {
	idx := &Index{
		entries: make([]domain.AccountEntry, 0, len(entries)),
		byCode:  make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		code := normalizeCode(e.Code)
		if code == "" {
			return nil, fmt.Errorf("New: empty account code for %q", e.Name)
		}
		if _, dup := idx.byCode[code]; dup {
			return nil, fmt.Errorf("New: duplicate account code %q", code)
		}
		idx.byCode[code] = len(idx.entries)
		idx.entries = append(idx.entries, domain.AccountEntry{Code: code, Name: strings.TrimSpace(e.Name)})
	}
	return idx, nil
}

// Lookup returns the entry for code.
func (i *Index) Lookup(code string) (domain.AccountEntry, bool) {
	pos, ok := i.byCode[normalizeCode(code)]
	if !ok {
		return domain.AccountEntry{}, false
	}
	return i.entries[pos], true
}

// Contains reports whether code is a known account.
func (i *Index) Contains(code string) bool {
	_, ok := i.byCode[normalizeCode(code)]
	return ok
}

// Name returns the account name for code, or "" when unknown.
func (i *Index) Name(code string) string {
	e, _ := i.Lookup(code)
	return e.Name
}

// NameOr returns the account name for code, or fallback when unknown.
func (i *Index) NameOr(code, fallback string) string {
	if e, ok := i.Lookup(code); ok {
		return e.Name
	}
	return fallback
}

// Entries returns the accounts in chart order.
func (i *Index) Entries() []domain.AccountEntry {
	out := make([]domain.AccountEntry, len(i.entries))
	copy(out, i.entries)
	return out
}

// Len returns the number of accounts.
func (i *Index) Len() int {
	return len(i.entries)
}

// PromptText renders the chart as "code: name" lines.
func (i *Index) PromptText() string {
	var b strings.Builder
	for _, e := range i.entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Code, e.Name)
	}
	return b.String()
}

// normalizeCode trims whitespace; codes are otherwise compared verbatim.
func normalizeCode(code string) string {
	return strings.TrimSpace(code)
}
