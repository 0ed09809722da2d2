package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/bookkeeper/internal/artifacts"
	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/ingest"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/scheduler"
	"github.com/dvloznov/bookkeeper/internal/session"
	"github.com/dvloznov/bookkeeper/internal/triage"
)

// LoadInputsStep reads the bank export and the chart of accounts. gs:// inputs
// are downloaded first.
type LoadInputsStep struct {
	Deps Deps
}

func (s *LoadInputsStep) Execute(ctx context.Context, state *RunState) error {
	dir, cleanup, err := localDir(s.Deps, state.ExportPath, state.ChartPath)
	if err != nil {
		return fmt.Errorf("LoadInputsStep: %w", err)
	}
	defer cleanup()

	exportPath, err := artifacts.Localize(ctx, s.Deps.Storage, state.ExportPath, dir)
	if err != nil {
		return fmt.Errorf("LoadInputsStep: %w", err)
	}
	chartPath, err := artifacts.Localize(ctx, s.Deps.Storage, state.ChartPath, dir)
	if err != nil {
		return fmt.Errorf("LoadInputsStep: %w", err)
	}

	txns, err := ingest.LoadTransactions(exportPath)
	if err != nil {
		return fmt.Errorf("LoadInputsStep: %w", err)
	}
	idx, err := loadIndex(chartPath)
	if err != nil {
		return fmt.Errorf("LoadInputsStep: %w", err)
	}
	sum, err := ingest.Checksum(exportPath)
	if err != nil {
		return fmt.Errorf("LoadInputsStep: %w", err)
	}

	state.Transactions, state.Index, state.Checksum = txns, idx, sum
	log := logger.FromContext(ctx)
	log.Info().
		Int("transactions", len(txns)).
		Int("accounts", idx.Len()).
		Msg("Loaded inputs")
	return nil
}

// LoadIndex reads a chart of accounts from a local path or gs:// URI.
func LoadIndex(ctx context.Context, d Deps, chartPath string) (*coa.Index, error) {
	dir, cleanup, err := localDir(d, chartPath)
	if err != nil {
		return nil, fmt.Errorf("LoadIndex: %w", err)
	}
	defer cleanup()
	local, err := artifacts.Localize(ctx, d.Storage, chartPath, dir)
	if err != nil {
		return nil, fmt.Errorf("LoadIndex: %w", err)
	}
	idx, err := loadIndex(local)
	if err != nil {
		return nil, fmt.Errorf("LoadIndex: %w", err)
	}
	return idx, nil
}

func loadIndex(path string) (*coa.Index, error) {
	entries, err := ingest.LoadChart(path)
	if err != nil {
		return nil, err
	}
	return coa.New(entries)
}

// localDir returns a temporary download directory when any input is a gs://
// URI, and a no-op cleanup otherwise.
func localDir(d Deps, inputs ...string) (string, func(), error) {
	remote := false
	for _, in := range inputs {
		remote = remote || artifacts.IsURI(in)
	}
	if !remote {
		return "", func() {}, nil
	}
	if d.Storage == nil {
		return "", nil, fmt.Errorf("gs:// input requires artifact storage")
	}
	dir, err := os.MkdirTemp("", "bookkeeper-inputs-*")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// OpenSessionStep creates a new session, or reopens one when ResumeID is set.
// On resume the export checksum must match and already processed transactions
// are left out of Pending.
type OpenSessionStep struct {
	Deps Deps
}

func (s *OpenSessionStep) Execute(ctx context.Context, state *RunState) error {
	log := logger.FromContext(ctx)
	store := s.Deps.Store

	if state.ResumeID == "" {
		now := s.Deps.now()
		meta := domain.SessionMeta{
			SessionID:         session.NewID(now),
			CreatedAt:         now.UTC(),
			TotalTransactions: len(state.Transactions),
			TotalChunks:       len(scheduler.Schedule(state.Transactions, s.Deps.Config.Categorize.ChunkSize)),
			TotalAccounts:     state.Index.Len(),
			SourcePath:        state.ExportPath,
			ChartPath:         state.ChartPath,
			SourceChecksum:    state.Checksum,
		}
		if err := store.Create(ctx, meta); err != nil {
			return fmt.Errorf("OpenSessionStep: %w", err)
		}
		state.Meta, state.SessionID = meta, meta.SessionID
		state.Prior = nil
		state.Pending = state.Transactions
		log.Info().Str("session_id", meta.SessionID).Int("chunks", meta.TotalChunks).Msg("Created session")
		return nil
	}

	id := state.ResumeID
	if id == ResumeLatest {
		latest, err := store.DiscoverLatest(ctx)
		if err != nil {
			return fmt.Errorf("OpenSessionStep: %w", err)
		}
		id = latest
	}
	meta, prior, err := store.ReadAll(ctx, id)
	if err != nil {
		return fmt.Errorf("OpenSessionStep: %w", err)
	}
	if meta.SourceChecksum != "" && state.Checksum != "" && meta.SourceChecksum != state.Checksum {
		return fmt.Errorf("OpenSessionStep: %s: %w", id, session.ErrChecksumMismatch)
	}

	done := session.ProcessedIDs(prior)
	pending := make([]domain.Transaction, 0, len(state.Transactions))
	for _, t := range state.Transactions {
		if !done[t.ID] {
			pending = append(pending, t)
		}
	}
	state.Meta, state.SessionID, state.Prior, state.Pending = meta, id, prior, pending
	log.Info().
		Str("session_id", id).
		Int("processed", len(done)).
		Int("pending", len(pending)).
		Msg("Resuming session")
	return nil
}

// DispatchStep categorizes the pending transactions. Each completed chunk is
// validated and appended to the session before the next one is handled.
type DispatchStep struct {
	Deps Deps
}

func (s *DispatchStep) Execute(ctx context.Context, state *RunState) error {
	cfg := s.Deps.Config.Categorize
	log := logger.FromContext(ctx).With().Str("session_id", state.SessionID).Logger()
	ctx = logger.WithContext(ctx, log)

	chunks := scheduler.ScheduleFrom(state.Pending, cfg.ChunkSize, session.MaxChunk(state.Prior)+1)
	if len(chunks) == 0 {
		log.Info().Msg("Nothing left to categorize")
		state.New = nil
		return nil
	}

	agg := &triage.Aggregator{Index: state.Index, DefaultCode: cfg.DefaultAccountCode}
	d := &scheduler.Dispatcher{
		Oracle:         s.Deps.Oracle,
		Index:          state.Index,
		MaxConcurrency: cfg.MaxConcurrency,
		Timeout:        cfg.ChunkTimeout,
		DefaultCode:    cfg.DefaultAccountCode,
		DefaultName:    agg.DefaultName(),
		Now:            s.Deps.Clock,
	}

	validated := make(map[int][]domain.CategorizationResult, len(chunks))
	var unknown []*triage.UnknownAccountCode
	_, err := d.Dispatch(ctx, chunks, func(cr scheduler.ChunkResult) error {
		results, bad := agg.Aggregate(cr.Results)
		for _, u := range bad {
			log.Warn().Str("txn_id", u.TransactionID).Str("code", u.Code).Int("chunk", cr.Chunk.Number).Msg("Unknown account code, using default")
		}
		if err := s.Deps.Store.Append(ctx, state.SessionID, results...); err != nil {
			return err
		}
		validated[cr.Chunk.Number] = results
		unknown = append(unknown, bad...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("DispatchStep: %w", err)
	}

	state.New = state.New[:0]
	for _, ch := range chunks {
		state.New = append(state.New, validated[ch.Number]...)
	}
	state.Unknown = unknown
	return nil
}

// TriageStep merges prior and new results and flags low confidence ones.
type TriageStep struct {
	Deps Deps
}

func (s *TriageStep) Execute(ctx context.Context, state *RunState) error {
	all := make([]domain.CategorizationResult, 0, len(state.Prior)+len(state.New))
	all = append(append(all, state.Prior...), state.New...)
	state.Results = triage.MergeLatest(all)
	state.Outcome = triage.Triage(state.Results, s.Deps.Config.Categorize.ConfidenceThreshold)
	state.Stats = triage.Summarize(state.Results)

	log := logger.FromContext(ctx)
	log.Info().
		Str("session_id", state.SessionID).
		Int("results", len(state.Results)).
		Int("flagged", len(state.Outcome.Flagged)).
		Int("unknown_codes", len(state.Unknown)).
		Float64("average_confidence", state.Stats.AverageConfidence).
		Msg("Triage complete")
	return nil
}

// NewCategorizePipeline returns the categorization steps.
func NewCategorizePipeline(d Deps) *Pipeline {
	return NewPipeline(
		&LoadInputsStep{Deps: d},
		&OpenSessionStep{Deps: d},
		&DispatchStep{Deps: d},
		&TriageStep{Deps: d},
	)
}

// RunCategorize categorizes state.ExportPath against state.ChartPath.
func RunCategorize(ctx context.Context, d Deps, state *RunState) error {
	return NewCategorizePipeline(d).Execute(ctx, state)
}
