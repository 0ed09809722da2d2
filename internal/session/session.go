// Package session persists categorization results as append-only session logs.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a session id does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrNoSessions is returned by DiscoverLatest when storage is empty.
	ErrNoSessions = errors.New("no categorization sessions found")
	// ErrExists is returned by Create when the session id is taken.
	ErrExists = errors.New("session already exists")
	// ErrChecksumMismatch is returned when resuming against a different export.
	ErrChecksumMismatch = errors.New("export checksum does not match session")
)

const (
	idPrefix       = "session_"
	idTimeLayout   = "20060102_150405"
	idSuffixLength = 8
)

// Store is an append-only log of categorization results grouped by session.
// The first record of a session is its metadata header. Implementations
// serialize writes internally, but callers are still expected to append from a
// single goroutine so records keep a meaningful order.
type Store interface {
	Create(ctx context.Context, meta domain.SessionMeta) error
	Append(ctx context.Context, sessionID string, results ...domain.CategorizationResult) error
	ReadAll(ctx context.Context, sessionID string) (domain.SessionMeta, []domain.CategorizationResult, error)
	DiscoverLatest(ctx context.Context) (string, error)
	List(ctx context.Context) ([]domain.SessionMeta, error)
	Close() error
}

// NewID returns a session id of the form session_YYYYMMDD_HHMMSS_<8 hex>.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:idSuffixLength]
	return idPrefix + now.UTC().Format(idTimeLayout) + "_" + suffix
}

// ParseID extracts the creation time encoded in a session id.
func ParseID(id string) (time.Time, error) {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok || len(rest) < len(idTimeLayout) {
		return time.Time{}, fmt.Errorf("ParseID: malformed session id %q", id)
	}
	ts, err := time.Parse(idTimeLayout, rest[:len(idTimeLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("ParseID: %q: %w", id, err)
	}
	return ts, nil
}

// Latest picks the most recent session: by the timestamp in its id, then by
// CreatedAt, then by id. Sessions with unparseable ids sort oldest.
func Latest(metas []domain.SessionMeta) (string, error) {
	if len(metas) == 0 {
		return "", ErrNoSessions
	}
	sorted := make([]domain.SessionMeta, len(metas))
	copy(sorted, metas)
	SortNewestFirst(sorted)
	return sorted[0].SessionID, nil
}

// SortNewestFirst orders metas with the most recent session first.
func SortNewestFirst(metas []domain.SessionMeta) {
	sort.SliceStable(metas, func(i, j int) bool {
		ti, _ := ParseID(metas[i].SessionID)
		tj, _ := ParseID(metas[j].SessionID)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].SessionID > metas[j].SessionID
	})
}

// ProcessedIDs returns the set of transaction ids that already have a result.
func ProcessedIDs(results []domain.CategorizationResult) map[string]bool {
	done := make(map[string]bool, len(results))
	for _, r := range results {
		done[r.TransactionID] = true
	}
	return done
}

// MaxChunk returns the highest chunk number recorded, or 0.
func MaxChunk(results []domain.CategorizationResult) int {
	n := 0
	for _, r := range results {
		n = max(n, r.ChunkNumber)
	}
	return n
}
