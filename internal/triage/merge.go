package triage

import (
	"time"

	"github.com/dvloznov/bookkeeper/internal/domain"
)

// Correction defaults.
const (
	DefaultCorrectionConfidence = 0.95
	DefaultCorrectionReason     = "User manually updated the category."
)

// MergeLatest keeps one record per transaction id: the highest Version, then
// the latest RecordedAt, then the one appended last. Output follows the order
// in which each transaction id first appeared.
func MergeLatest(records []domain.CategorizationResult) []domain.CategorizationResult {
	pos := make(map[string]int, len(records))
	var out []domain.CategorizationResult
	for _, r := range records {
		i, seen := pos[r.TransactionID]
		if !seen {
			pos[r.TransactionID] = len(out)
			out = append(out, r)
			continue
		}
		if supersedes(r, out[i]) {
			out[i] = r
		}
	}
	return out
}

// supersedes reports whether next should replace cur. Equal versions and
// timestamps favour next, since it was appended later.
func supersedes(next, cur domain.CategorizationResult) bool {
	if next.Version != cur.Version {
		return next.Version > cur.Version
	}
	return !next.RecordedAt.Before(cur.RecordedAt)
}

// NewCorrection builds the record that supersedes prev. A non-positive
// confidence uses the default, as does an empty reason. The caller validates
// code against the chart.
func NewCorrection(prev domain.CategorizationResult, code, name string, confidence float64, reason string, now time.Time) domain.CategorizationResult {
	if confidence <= 0 {
		confidence = DefaultCorrectionConfidence
	}
	if reason == "" {
		reason = DefaultCorrectionReason
	}
	next := prev
	next.AccountCode = code
	next.AccountName = name
	next.Confidence = clamp(confidence)
	next.Reasoning = reason
	next.Version = prev.Version + 1
	next.RecordedAt = now.UTC()
	next.Source = domain.SourceCorrection
	return next
}
