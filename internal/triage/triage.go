package triage

import (
	"sort"

	"github.com/dvloznov/bookkeeper/internal/domain"
)

// Outcome is the result of splitting categorizations by confidence.
// Accepted holds every result; Flagged holds those below the threshold,
// surfaced for review.
type Outcome struct {
	Threshold float64
	Accepted  []domain.CategorizationResult
	Flagged   []domain.CategorizationResult
}

// Triage flags results whose confidence is below threshold. Flagged results
// stay in Accepted.
func Triage(results []domain.CategorizationResult, threshold float64) Outcome {
	o := Outcome{Threshold: threshold, Accepted: results}
	for _, r := range results {
		if r.Confidence < threshold {
			o.Flagged = append(o.Flagged, r)
		}
	}
	return o
}

// Eligible returns the results to journal. With strict set, flagged results
// are held back unless a reviewer corrected them.
func (o Outcome) Eligible(strict bool) []domain.CategorizationResult {
	if !strict {
		return o.Accepted
	}
	out := make([]domain.CategorizationResult, 0, len(o.Accepted))
	for _, r := range o.Accepted {
		if r.Confidence >= o.Threshold || r.IsCorrection() {
			out = append(out, r)
		}
	}
	return out
}

// FlaggedIDs returns the transaction ids of flagged results.
func (o Outcome) FlaggedIDs() []string {
	ids := make([]string, len(o.Flagged))
	for i, r := range o.Flagged {
		ids[i] = r.TransactionID
	}
	return ids
}

// Bands counts results per confidence band. Errors (zero confidence or an
// oracle fallback) are counted apart from Low.
type Bands struct {
	High   int `json:"high"`   // >= 0.9
	Medium int `json:"medium"` // 0.7 to < 0.9
	Low    int `json:"low"`    // < 0.7
	Errors int `json:"errors"`
}

// AccountUsage counts how many results landed on an account.
type AccountUsage struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats summarizes a set of results for reporting.
type Stats struct {
	Total             int            `json:"total"`
	AverageConfidence float64        `json:"average_confidence"`
	Bands             Bands          `json:"confidence_bands"`
	Usage             []AccountUsage `json:"account_usage"`
}

// Summarize computes band counts and account usage. Usage is ordered by count,
// most used first, then by code.
func Summarize(results []domain.CategorizationResult) Stats {
	s := Stats{Total: len(results)}
	usage := make(map[string]*AccountUsage)
	var sum float64

	for _, r := range results {
		sum += r.Confidence
		switch {
		case r.Confidence == 0 || r.Source == domain.SourceFallback:
			s.Bands.Errors++
		case r.Confidence >= 0.9:
			s.Bands.High++
		case r.Confidence >= 0.7:
			s.Bands.Medium++
		default:
			s.Bands.Low++
		}

		u, ok := usage[r.AccountCode]
		if !ok {
			u = &AccountUsage{Code: r.AccountCode, Name: r.AccountName}
			usage[r.AccountCode] = u
		}
		u.Count++
	}
	if len(results) > 0 {
		s.AverageConfidence = sum / float64(len(results))
	}

	for _, u := range usage {
		s.Usage = append(s.Usage, *u)
	}
	sort.Slice(s.Usage, func(i, j int) bool {
		if s.Usage[i].Count != s.Usage[j].Count {
			return s.Usage[i].Count > s.Usage[j].Count
		}
		return s.Usage[i].Code < s.Usage[j].Code
	})
	return s
}
