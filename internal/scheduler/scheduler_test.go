package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/oracle"
	"github.com/dvloznov/bookkeeper/internal/oracle/oracletest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTxns(n int) []domain.Transaction {
	txns := make([]domain.Transaction, n)
	for i := range txns {
		txns[i] = domain.Transaction{
			ID:          fmt.Sprintf("trans_%d", i),
			Date:        "2024-02-01",
			Description: fmt.Sprintf("txn %d", i),
			Amount:      decimal.NewFromInt(int64(i + 1)),
		}
	}
	return txns
}

func sizes(chunks []Chunk) []int {
	out := make([]int, len(chunks))
	for i, c := range chunks {
		out[i] = len(c.Transactions)
	}
	return out
}

func TestSchedule(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{79, 26, []int{26, 26, 27}},
		{60, 26, []int{26, 26, 8}},
		{52, 26, []int{26, 26}},
		{27, 26, []int{27}},
		{5, 26, []int{5}},
		{10, 3, []int{3, 3, 3, 1}},
		{30, 0, []int{26, 4}},
		{0, 26, []int{}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_by_%d", tt.n, tt.size), func(t *testing.T) {
			got := sizes(Schedule(makeTxns(tt.n), tt.size))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchedule_PreservesOrderAndNumbers(t *testing.T) {
	txns := makeTxns(79)
	chunks := Schedule(txns, 26)

	var flat []domain.Transaction
	for i, c := range chunks {
		assert.Equal(t, i+1, c.Number)
		flat = append(flat, c.Transactions...)
	}
	assert.Equal(t, txns, flat)
	assert.Equal(t, chunks, Schedule(txns, 26), "partitioning must be deterministic")
}

func TestScheduleFrom(t *testing.T) {
	chunks := ScheduleFrom(makeTxns(30), 26, 4)
	require.Len(t, chunks, 1)
	assert.Equal(t, 4, chunks[0].Number)
}

func testIndex(t *testing.T) *coa.Index {
	t.Helper()
	idx, err := coa.New([]domain.AccountEntry{
		{Code: "1000", Name: "Cash"},
		{Code: "5100", Name: "Rent Expense"},
		{Code: "6900", Name: "Other Expenses"},
	})
	require.NoError(t, err)
	return idx
}

func newDispatcher(t *testing.T, o oracle.Oracle) *Dispatcher {
	return &Dispatcher{
		Oracle:      o,
		Index:       testIndex(t),
		Timeout:     time.Second,
		DefaultCode: "6900",
		DefaultName: "Other Expenses",
	}
}

func ids(results []domain.CategorizationResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.TransactionID
	}
	return out
}

func TestDispatch_AllSucceed(t *testing.T) {
	txns := makeTxns(79)
	o := oracletest.New("5100", 0.9)
	d := newDispatcher(t, o)
	d.MaxConcurrency = 2

	var seen int32
	results, err := d.Dispatch(context.Background(), Schedule(txns, 26), func(cr ChunkResult) error {
		atomic.AddInt32(&seen, 1)
		assert.Nil(t, cr.Err)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int32(3), seen)
	require.Len(t, results, 79)
	for i, r := range results {
		assert.Equal(t, txns[i].ID, r.TransactionID)
		assert.Equal(t, "5100", r.AccountCode)
		assert.Equal(t, "Rent Expense", r.AccountName)
		assert.Equal(t, domain.SourceOracle, r.Source)
		assert.Equal(t, 1, r.Version)
	}
	assert.Len(t, o.Calls(), 3)
}

func TestDispatch_TimeoutFallsBackWithoutStoppingOthers(t *testing.T) {
	txns := makeTxns(79)
	o := oracletest.New("5100", 0.9).HangWhen("trans_30")
	d := newDispatcher(t, o)
	d.Timeout = 50 * time.Millisecond

	var failures []*oracle.OracleFailure
	results, err := d.Dispatch(context.Background(), Schedule(txns, 26), func(cr ChunkResult) error {
		if cr.Err != nil {
			failures = append(failures, cr.Err)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, results, 79)

	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].Chunk)
	assert.True(t, failures[0].Timeout())

	for i, r := range results {
		if i >= 26 && i < 52 {
			assert.Equal(t, "6900", r.AccountCode, r.TransactionID)
			assert.Zero(t, r.Confidence)
			assert.Equal(t, domain.SourceFallback, r.Source)
			assert.True(t, strings.HasPrefix(r.Reasoning, "Parallel processing failed:"))
		} else {
			assert.Equal(t, "5100", r.AccountCode, r.TransactionID)
		}
	}
}

func TestDispatch_ErrorFallsBack(t *testing.T) {
	o := oracletest.New("5100", 0.9).FailWhen("trans_0", errors.New("upstream 503"))
	d := newDispatcher(t, o)

	results, err := d.Dispatch(context.Background(), Schedule(makeTxns(30), 10), nil)
	require.NoError(t, err)

	for _, r := range results[:10] {
		assert.Equal(t, "6900", r.AccountCode)
		assert.Equal(t, "Other Expenses", r.AccountName)
		assert.Contains(t, r.Reasoning, "upstream 503")
	}
	for _, r := range results[10:] {
		assert.Equal(t, "5100", r.AccountCode)
	}
}

func TestDispatch_MissingSuggestionFallsBack(t *testing.T) {
	o := oracletest.New("5100", 0.9).Omit("trans_2")
	d := newDispatcher(t, o)

	results, err := d.Dispatch(context.Background(), Schedule(makeTxns(5), 26), nil)
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, "6900", results[2].AccountCode)
	assert.Equal(t, domain.SourceFallback, results[2].Source)
	assert.Equal(t, "5100", results[3].AccountCode)
}

func TestDispatch_DropsUnknownSuggestionIDs(t *testing.T) {
	o := oracle.Func(func(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
		out := []domain.Suggestion{{TransactionID: "ghost", AccountCode: "5100"}}
		for _, t := range txns {
			out = append(out, domain.Suggestion{TransactionID: t.ID, AccountCode: "5100", Confidence: 0.8})
		}
		return out, nil
	})
	results, err := newDispatcher(t, o).Dispatch(context.Background(), Schedule(makeTxns(3), 26), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"trans_0", "trans_1", "trans_2"}, ids(results))
}

func TestDispatch_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	o := oracle.Func(func(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	})
	d := newDispatcher(t, o)
	d.MaxConcurrency = 2

	_, err := d.Dispatch(context.Background(), Schedule(makeTxns(100), 10), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDispatch_CollectorIsSingleWriter(t *testing.T) {
	var active int32
	d := newDispatcher(t, oracletest.New("5100", 0.9))

	_, err := d.Dispatch(context.Background(), Schedule(makeTxns(200), 10), func(cr ChunkResult) error {
		assert.Equal(t, int32(1), atomic.AddInt32(&active, 1))
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})
	require.NoError(t, err)
}

func TestDispatch_PersistenceErrorAborts(t *testing.T) {
	d := newDispatcher(t, oracletest.New("5100", 0.9))
	d.MaxConcurrency = 1

	_, err := d.Dispatch(context.Background(), Schedule(makeTxns(50), 10), func(cr ChunkResult) error {
		return errors.New("disk full")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestDispatch_Empty(t *testing.T) {
	results, err := newDispatcher(t, oracletest.New("5100", 0.9)).Dispatch(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDispatch_CancelledRunRecordsNoFallbacks(t *testing.T) {
	o := oracletest.New("5100", 0.9).HangWhen("trans_10").HangWhen("trans_20")
	d := newDispatcher(t, o)
	d.Timeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []ChunkResult
	_, err := d.Dispatch(ctx, Schedule(makeTxns(30), 10), func(cr ChunkResult) error {
		got = append(got, cr)
		cancel()
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Chunk.Number)
	for _, cr := range got {
		assert.Nil(t, cr.Err)
		for _, r := range cr.Results {
			assert.Equal(t, domain.SourceOracle, r.Source, r.TransactionID)
			assert.NotContains(t, r.Reasoning, "canceled")
		}
	}
}

func TestDispatch_CancelledBeforeCollectDropsChunk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := oracle.Func(func(_ context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
		// the answer arrives but the run is cancelled before it is collected
		cancel()
		out := make([]domain.Suggestion, 0, len(txns))
		for _, txn := range txns {
			out = append(out, domain.Suggestion{TransactionID: txn.ID, AccountCode: "5100", Confidence: 0.9})
		}
		return out, nil
	})

	calls := 0
	_, err := newDispatcher(t, o).Dispatch(ctx, Schedule(makeTxns(5), 26), func(cr ChunkResult) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, calls)
}

func TestSchedule_TailFoldBound(t *testing.T) {
	for _, size := range []int{1, 3, 10, 26, 40} {
		bound := size + max(1, size/10) - 1
		for n := 1; n <= 5*size; n++ {
			chunks := Schedule(makeTxns(n), size)
			for i, c := range chunks {
				assert.LessOrEqual(t, len(c.Transactions), bound, "size %d, n %d", size, n)
				if i < len(chunks)-1 {
					assert.Len(t, c.Transactions, size, "size %d, n %d", size, n)
				}
			}
		}
	}
}
