// Package triage validates oracle results, splits them by confidence and
// merges reviewer corrections.
package triage

import (
	"fmt"
	"math"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

// UnknownAccountCode records an oracle answer naming an account that is not
// in the chart. The result is rewritten to the default account.
type UnknownAccountCode struct {
	TransactionID string
	Code          string
}

func (e *UnknownAccountCode) Error() string {
	return fmt.Sprintf("transaction %s: account code %q not found in chart of accounts", e.TransactionID, e.Code)
}

// Aggregator validates results against the chart of accounts.
type Aggregator struct {
	Index       *coa.Index
	DefaultCode string
}

// DefaultName is the display name of the default account.
func (a *Aggregator) DefaultName() string {
	return a.Index.NameOr(a.DefaultCode, config.DefaultAccountName)
}

// Aggregate returns validated copies of results. Confidence is clamped to
// [0,1]; unknown codes become the default account at zero confidence with a
// note appended to the reasoning; known codes get their canonical name.
func (a *Aggregator) Aggregate(results []domain.CategorizationResult) ([]domain.CategorizationResult, []*UnknownAccountCode) {
	out := make([]domain.CategorizationResult, len(results))
	var unknown []*UnknownAccountCode
	defaultName := a.DefaultName()

	for i, r := range results {
		r.Confidence = clamp(r.Confidence)

		switch entry, ok := a.Index.Lookup(r.AccountCode); {
		case ok:
			r.AccountCode = entry.Code
			r.AccountName = entry.Name
		case r.AccountCode == a.DefaultCode:
			r.AccountName = defaultName
		default:
			unknown = append(unknown, &UnknownAccountCode{TransactionID: r.TransactionID, Code: r.AccountCode})
			r.Reasoning = fmt.Sprintf("%s | CORRECTED: Account code %s not found in Chart of Accounts. Defaulted to %s.", r.Reasoning, r.AccountCode, defaultName)
			r.AccountCode = a.DefaultCode
			r.AccountName = defaultName
			r.Confidence = 0
		}
		out[i] = r
	}
	return out, unknown
}

func clamp(c float64) float64 {
	switch {
	case math.IsNaN(c):
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
