package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dvloznov/bookkeeper/internal/domain"
	infra "github.com/dvloznov/bookkeeper/internal/infra/bigquery"
)

// BigQueryStore keeps sessions in the categorization_sessions and
// categorization_results tables. Payloads are stored as JSON so the result
// schema can grow without table migrations.
type BigQueryStore struct {
	repo infra.SessionRepository

	mu  sync.Mutex
	seq map[string]int64
}

// NewBigQueryStore wraps a session repository.
func NewBigQueryStore(repo infra.SessionRepository) *BigQueryStore {
	return &BigQueryStore{repo: repo, seq: make(map[string]int64)}
}

// Create inserts the session header.
func (s *BigQueryStore) Create(ctx context.Context, meta domain.SessionMeta) error {
	existing, err := s.repo.GetSession(ctx, meta.SessionID)
	if err != nil {
		return fmt.Errorf("BigQueryStore.Create: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("BigQueryStore.Create: %s: %w", meta.SessionID, ErrExists)
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("BigQueryStore.Create: encoding meta: %w", err)
	}
	row := &infra.SessionRow{
		SessionID: meta.SessionID,
		CreatedTS: meta.CreatedAt.UTC(),
		Metadata:  string(payload),
	}
	if err := s.repo.InsertSession(ctx, row); err != nil {
		return fmt.Errorf("BigQueryStore.Create: %w", err)
	}
	s.mu.Lock()
	s.seq[meta.SessionID] = 0
	s.mu.Unlock()
	return nil
}

// Append streams results with increasing sequence numbers. The counter is
// seeded from storage the first time a session is appended to.
func (s *BigQueryStore) Append(ctx context.Context, sessionID string, results ...domain.CategorizationResult) error {
	if len(results) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.seq[sessionID]
	if !ok {
		existing, err := s.repo.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("BigQueryStore.Append: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("BigQueryStore.Append: %s: %w", sessionID, ErrNotFound)
		}
		seq, err = s.repo.MaxSeq(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("BigQueryStore.Append: %w", err)
		}
	}

	rows := make([]*infra.ResultRow, 0, len(results))
	for _, r := range results {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("BigQueryStore.Append: encoding %s: %w", r.TransactionID, err)
		}
		seq++
		rows = append(rows, &infra.ResultRow{
			SessionID:     sessionID,
			Seq:           seq,
			TransactionID: r.TransactionID,
			Payload:       string(payload),
			RecordedTS:    r.RecordedAt.UTC(),
		})
	}
	if err := s.repo.InsertResults(ctx, rows); err != nil {
		return fmt.Errorf("BigQueryStore.Append: %w", err)
	}
	s.seq[sessionID] = seq
	return nil
}

// ReadAll returns the header and results of a session ordered by sequence.
func (s *BigQueryStore) ReadAll(ctx context.Context, sessionID string) (domain.SessionMeta, []domain.CategorizationResult, error) {
	row, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("BigQueryStore.ReadAll: %w", err)
	}
	if row == nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("BigQueryStore.ReadAll: %s: %w", sessionID, ErrNotFound)
	}
	var meta domain.SessionMeta
	if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("BigQueryStore.ReadAll: decoding meta: %w", err)
	}

	rows, err := s.repo.ListResults(ctx, sessionID)
	if err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("BigQueryStore.ReadAll: %w", err)
	}
	results := make([]domain.CategorizationResult, 0, len(rows))
	for _, rr := range rows {
		var r domain.CategorizationResult
		if err := json.Unmarshal([]byte(rr.Payload), &r); err != nil {
			return domain.SessionMeta{}, nil, fmt.Errorf("BigQueryStore.ReadAll: decoding seq %d: %w", rr.Seq, err)
		}
		results = append(results, r)
	}
	return meta, results, nil
}

// List returns every session header, newest first.
func (s *BigQueryStore) List(ctx context.Context) ([]domain.SessionMeta, error) {
	rows, err := s.repo.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("BigQueryStore.List: %w", err)
	}
	metas := make([]domain.SessionMeta, 0, len(rows))
	for _, row := range rows {
		var meta domain.SessionMeta
		if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("BigQueryStore.List: decoding %s: %w", row.SessionID, err)
		}
		metas = append(metas, meta)
	}
	SortNewestFirst(metas)
	return metas, nil
}

// DiscoverLatest returns the most recent session.
func (s *BigQueryStore) DiscoverLatest(ctx context.Context) (string, error) {
	metas, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return Latest(metas)
}

// Close releases the repository.
func (s *BigQueryStore) Close() error {
	return s.repo.Close()
}

var _ Store = (*BigQueryStore)(nil)
