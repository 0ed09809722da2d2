package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/domain"
	infra "github.com/dvloznov/bookkeeper/internal/infra/bigquery"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func testMeta(id string, created time.Time) domain.SessionMeta {
	return domain.SessionMeta{
		SessionID:         id,
		CreatedAt:         created,
		TotalTransactions: 3,
		TotalChunks:       1,
		TotalAccounts:     12,
		SourcePath:        "bank.csv",
		ChartPath:         "coa.txt",
		SourceChecksum:    "abc123",
	}
}

func testResult(id string, version int) domain.CategorizationResult {
	return domain.CategorizationResult{
		TransactionID: id,
		Date:          "2024-01-05",
		Description:   "Coffee | card 1234",
		Amount:        decimal.RequireFromString("-4.50"),
		AccountCode:   "5100",
		AccountName:   "Meals",
		Confidence:    0.82,
		Reasoning:     "coffee shop",
		ChunkNumber:   1,
		Version:       version,
		RecordedAt:    base.Add(time.Duration(version) * time.Minute),
		Source:        domain.SourceOracle,
	}
}

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"bolt": func(t *testing.T) Store {
			s, err := NewBoltStore(filepath.Join(t.TempDir(), "sessions.db"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "sessions.sqlite"))
			require.NoError(t, err)
			return s
		},
		"bigquery": func(t *testing.T) Store {
			return NewBigQueryStore(newFakeRepo())
		},
	}
}

func TestStoreConformance(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("round trip", func(t *testing.T) {
				ctx := context.Background()
				s := open(t)
				defer s.Close()

				meta := testMeta("session_20240301_093000_aaaaaaaa", base)
				require.NoError(t, s.Create(ctx, meta))
				require.NoError(t, s.Append(ctx, meta.SessionID, testResult("trans_0", 1), testResult("trans_1", 1)))
				require.NoError(t, s.Append(ctx, meta.SessionID, testResult("trans_0", 2)))

				gotMeta, results, err := s.ReadAll(ctx, meta.SessionID)
				require.NoError(t, err)
				assert.Equal(t, meta.SessionID, gotMeta.SessionID)
				assert.Equal(t, meta.TotalAccounts, gotMeta.TotalAccounts)
				assert.Equal(t, meta.SourceChecksum, gotMeta.SourceChecksum)
				assert.True(t, meta.CreatedAt.Equal(gotMeta.CreatedAt))

				require.Len(t, results, 3)
				assert.Equal(t, "trans_0", results[0].TransactionID)
				assert.Equal(t, "trans_1", results[1].TransactionID)
				assert.Equal(t, 2, results[2].Version)
				assert.True(t, results[0].Amount.Equal(decimal.RequireFromString("-4.50")))
				assert.Equal(t, "Coffee | card 1234", results[0].Description)
			})

			t.Run("create twice", func(t *testing.T) {
				ctx := context.Background()
				s := open(t)
				defer s.Close()

				meta := testMeta("session_20240301_093000_bbbbbbbb", base)
				require.NoError(t, s.Create(ctx, meta))
				assert.ErrorIs(t, s.Create(ctx, meta), ErrExists)
			})

			t.Run("unknown session", func(t *testing.T) {
				ctx := context.Background()
				s := open(t)
				defer s.Close()

				_, _, err := s.ReadAll(ctx, "session_20240301_093000_missing0")
				assert.ErrorIs(t, err, ErrNotFound)
				err = s.Append(ctx, "session_20240301_093000_missing0", testResult("trans_0", 1))
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("empty session", func(t *testing.T) {
				ctx := context.Background()
				s := open(t)
				defer s.Close()

				meta := testMeta("session_20240301_093000_cccccccc", base)
				require.NoError(t, s.Create(ctx, meta))
				_, results, err := s.ReadAll(ctx, meta.SessionID)
				require.NoError(t, err)
				assert.Empty(t, results)
			})

			t.Run("discover latest", func(t *testing.T) {
				ctx := context.Background()
				s := open(t)
				defer s.Close()

				_, err := s.DiscoverLatest(ctx)
				assert.ErrorIs(t, err, ErrNoSessions)

				// created_at deliberately disagrees with the id timestamps
				require.NoError(t, s.Create(ctx, testMeta("session_20240101_000000_11111111", base.Add(time.Hour))))
				require.NoError(t, s.Create(ctx, testMeta("session_20240301_120000_22222222", base)))
				require.NoError(t, s.Create(ctx, testMeta("session_20240201_000000_33333333", base.Add(2*time.Hour))))

				latest, err := s.DiscoverLatest(ctx)
				require.NoError(t, err)
				assert.Equal(t, "session_20240301_120000_22222222", latest)

				metas, err := s.List(ctx)
				require.NoError(t, err)
				require.Len(t, metas, 3)
				assert.Equal(t, "session_20240101_000000_11111111", metas[2].SessionID)
			})
		})
	}
}

func TestNewIDAndParseID(t *testing.T) {
	now := time.Date(2025, 7, 4, 13, 5, 9, 0, time.FixedZone("X", 3600))
	id := NewID(now)

	assert.Regexp(t, `^session_20250704_120509_[0-9a-f]{8}$`, id)
	ts, err := ParseID(id)
	require.NoError(t, err)
	assert.True(t, ts.Equal(now.Truncate(time.Second)))

	assert.NotEqual(t, id, NewID(now))

	_, err = ParseID("journal_20250704_120509_abcd")
	assert.Error(t, err)
	_, err = ParseID("session_2025")
	assert.Error(t, err)
}

func TestLatestTieBreaks(t *testing.T) {
	metas := []domain.SessionMeta{
		{SessionID: "session_20240301_120000_aaaaaaaa", CreatedAt: base},
		{SessionID: "session_20240301_120000_bbbbbbbb", CreatedAt: base.Add(time.Second)},
		{SessionID: "garbage"},
	}
	id, err := Latest(metas)
	require.NoError(t, err)
	assert.Equal(t, "session_20240301_120000_bbbbbbbb", id)

	metas[1].CreatedAt = base
	id, err = Latest(metas)
	require.NoError(t, err)
	assert.Equal(t, "session_20240301_120000_bbbbbbbb", id)
	assert.Equal(t, "session_20240301_120000_aaaaaaaa", metas[0].SessionID, "input must not be reordered")
}

func TestProcessedIDsAndMaxChunk(t *testing.T) {
	a, b := testResult("trans_0", 1), testResult("trans_3", 1)
	b.ChunkNumber = 4
	done := ProcessedIDs([]domain.CategorizationResult{a, b, a})
	assert.Equal(t, map[string]bool{"trans_0": true, "trans_3": true}, done)
	assert.Equal(t, 4, MaxChunk([]domain.CategorizationResult{a, b}))
	assert.Equal(t, 0, MaxChunk(nil))
}

func TestFileStoreHeaderFormat(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	meta := testMeta("session_20240301_093000_dddddddd", base)
	require.NoError(t, s.Create(ctx, meta))
	require.NoError(t, s.Append(ctx, meta.SessionID, testResult("trans_0", 1)))

	data, err := os.ReadFile(s.Path(meta.SessionID))
	require.NoError(t, err)
	assert.Regexp(t, `^# \{"_metadata":\{"session_id":"session_20240301_093000_dddddddd"`, string(data))
	assert.Contains(t, string(data), `"processed_at":"2024-03-01T09:31:00Z"`)
	assert.Equal(t, "categorization_results_session_20240301_093000_dddddddd.jsonl", filepath.Base(s.Path(meta.SessionID)))
}

func TestFileStoreTornTail(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	meta := testMeta("session_20240301_093000_eeeeeeee", base)
	require.NoError(t, s.Create(ctx, meta))
	require.NoError(t, s.Append(ctx, meta.SessionID, testResult("trans_0", 1)))

	f, err := os.OpenFile(s.Path(meta.SessionID), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString(`{"transaction_id":"trans_1","acc`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, results, err := s.ReadAll(ctx, meta.SessionID)
	require.NoError(t, err)
	require.Len(t, results, 1, "torn record is ignored on read")

	require.NoError(t, s.Append(ctx, meta.SessionID, testResult("trans_1", 1)))
	_, results, err = s.ReadAll(ctx, meta.SessionID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "trans_1", results[1].TransactionID)
}

func TestFileStoreCorruptMiddleLine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	meta := testMeta("session_20240301_093000_ffffffff", base)
	require.NoError(t, s.Create(ctx, meta))
	f, err := os.OpenFile(s.Path(meta.SessionID), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, s.Append(ctx, meta.SessionID, testResult("trans_0", 1)))

	_, _, err = s.ReadAll(ctx, meta.SessionID)
	assert.ErrorContains(t, err, "line 2")
}

func TestFileStoreConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	meta := testMeta("session_20240301_093000_12345678", base)
	require.NoError(t, s.Create(ctx, meta))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, meta.SessionID, testResult(fmt.Sprintf("trans_%d", i), 1)))
		}()
	}
	wg.Wait()

	_, results, err := s.ReadAll(ctx, meta.SessionID)
	require.NoError(t, err)
	assert.Len(t, ProcessedIDs(results), 20)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, backend := range []string{config.BackendFile, config.BackendBolt, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.StorageConfig{
				Backend: backend,
				Dir:     filepath.Join(dir, "files"),
				Path:    filepath.Join(dir, backend, "store.db"),
			}
			s, err := Open(ctx, cfg)
			require.NoError(t, err)
			require.NoError(t, s.Close())
		})
	}

	_, err := Open(ctx, config.StorageConfig{Backend: "tape"})
	assert.ErrorContains(t, err, "unknown storage backend")

	_, err = Open(ctx, config.StorageConfig{Backend: config.BackendBigQuery})
	assert.ErrorContains(t, err, "project and dataset are required")
}

func TestBigQueryStoreSeedsSequence(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	meta := testMeta("session_20240301_093000_99999999", base)

	first := NewBigQueryStore(repo)
	require.NoError(t, first.Create(ctx, meta))
	require.NoError(t, first.Append(ctx, meta.SessionID, testResult("trans_0", 1), testResult("trans_1", 1)))

	resumed := NewBigQueryStore(repo)
	require.NoError(t, resumed.Append(ctx, meta.SessionID, testResult("trans_2", 1)))

	rows, err := repo.ListResults(ctx, meta.SessionID)
	require.NoError(t, err)
	var seqs []int64
	for _, r := range rows {
		seqs = append(seqs, r.Seq)
	}
	assert.Equal(t, []int64{1, 2, 3}, seqs)
}

// fakeRepo is an in-memory SessionRepository.
type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*infra.SessionRow
	results  map[string][]*infra.ResultRow
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions: make(map[string]*infra.SessionRow),
		results:  make(map[string][]*infra.ResultRow),
	}
}

func (f *fakeRepo) InsertSession(ctx context.Context, row *infra.SessionRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *row
	f.sessions[row.SessionID] = &cp
	return nil
}

func (f *fakeRepo) GetSession(ctx context.Context, sessionID string) (*infra.SessionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[sessionID], nil
}

func (f *fakeRepo) ListSessions(ctx context.Context) ([]*infra.SessionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []*infra.SessionRow
	for _, r := range f.sessions {
		rows = append(rows, r)
	}
	return rows, nil
}

func (f *fakeRepo) InsertResults(ctx context.Context, rows []*infra.ResultRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.results[r.SessionID] = append(f.results[r.SessionID], r)
	}
	return nil
}

func (f *fakeRepo) ListResults(ctx context.Context, sessionID string) ([]*infra.ResultRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := append([]*infra.ResultRow(nil), f.results[sessionID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	return rows, nil
}

func (f *fakeRepo) MaxSeq(ctx context.Context, sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var m int64
	for _, r := range f.results[sessionID] {
		m = max(m, r.Seq)
	}
	return m, nil
}

func (f *fakeRepo) Close() error { return nil }
