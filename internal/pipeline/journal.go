package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/bookkeeper/internal/artifacts"
	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/journal"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/report"
	"github.com/dvloznov/bookkeeper/internal/triage"
)

// SkipReasonHeld is recorded for flagged results left out under the strict policy.
const SkipReasonHeld = "below confidence threshold"

// ErrIncompleteSession is matched by IncompleteSessionError.
var ErrIncompleteSession = errors.New("session is incomplete")

// IncompleteSessionError reports a session that holds fewer categorized
// transactions than its export contained, as left by an interrupted run.
type IncompleteSessionError struct {
	SessionID string
	Expected  int
	Recorded  int
}

// Missing is the number of transactions without a result.
func (e *IncompleteSessionError) Missing() int {
	return e.Expected - e.Recorded
}

func (e *IncompleteSessionError) Error() string {
	return fmt.Sprintf("session %s is incomplete: %d of %d transactions categorized, %d missing",
		e.SessionID, e.Recorded, e.Expected, e.Missing())
}

func (e *IncompleteSessionError) Unwrap() error {
	return ErrIncompleteSession
}

// DiscoverSessionStep resolves the session to journal. An empty SessionID
// selects the most recent one.
type DiscoverSessionStep struct {
	Deps Deps
}

func (s *DiscoverSessionStep) Execute(ctx context.Context, state *RunState) error {
	if state.SessionID != "" && state.SessionID != ResumeLatest {
		return nil
	}
	id, err := s.Deps.Store.DiscoverLatest(ctx)
	if err != nil {
		return fmt.Errorf("DiscoverSessionStep: %w", err)
	}
	state.SessionID = id
	log := logger.FromContext(ctx)
	log.Info().Str("session_id", id).Msg("Using latest session")
	return nil
}

// ReadSessionStep loads every record of the session.
type ReadSessionStep struct {
	Deps Deps
}

func (s *ReadSessionStep) Execute(ctx context.Context, state *RunState) error {
	meta, records, err := s.Deps.Store.ReadAll(ctx, state.SessionID)
	if err != nil {
		return fmt.Errorf("ReadSessionStep: %w", err)
	}
	state.Meta, state.Prior = meta, records
	return nil
}

// MergeCorrectionsStep collapses the record history to the latest version of
// each transaction and triages the result.
type MergeCorrectionsStep struct {
	Deps Deps
}

func (s *MergeCorrectionsStep) Execute(ctx context.Context, state *RunState) error {
	state.Results = triage.MergeLatest(state.Prior)
	state.Outcome = triage.Triage(state.Results, s.Deps.Config.Categorize.ConfidenceThreshold)
	state.Stats = triage.Summarize(state.Results)

	corrected := 0
	for _, r := range state.Results {
		if r.IsCorrection() {
			corrected++
		}
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("session_id", state.SessionID).
		Int("records", len(state.Prior)).
		Int("results", len(state.Results)).
		Int("corrected", corrected).
		Int("flagged", len(state.Outcome.Flagged)).
		Msg("Merged session records")
	return nil
}

// CheckCompleteStep stops the run when the session does not cover every
// transaction of its export, unless AllowIncomplete is set.
type CheckCompleteStep struct{}

func (s *CheckCompleteStep) Execute(ctx context.Context, state *RunState) error {
	expected := state.Meta.TotalTransactions
	if expected == 0 || len(state.Results) >= expected {
		return nil
	}
	err := &IncompleteSessionError{SessionID: state.SessionID, Expected: expected, Recorded: len(state.Results)}
	if state.AllowIncomplete {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Int("missing", err.Missing()).Msg("Journaling an incomplete session")
		return nil
	}
	return fmt.Errorf("CheckCompleteStep: %w", err)
}

// ComposeStep turns eligible results into journal entries.
type ComposeStep struct {
	Deps Deps
}

func (s *ComposeStep) Execute(ctx context.Context, state *RunState) error {
	cfg := s.Deps.Config.Journal
	strict := state.Strict || s.Deps.Config.StrictJournal()

	eligible := state.Outcome.Eligible(strict)
	var held []journal.Skipped
	if strict {
		keep := make(map[string]bool, len(eligible))
		for _, r := range eligible {
			keep[r.TransactionID] = true
		}
		for _, r := range state.Results {
			if !keep[r.TransactionID] {
				held = append(held, journal.Skipped{TransactionID: r.TransactionID, Reason: SkipReasonHeld})
			}
		}
	}

	composer := journal.Composer{CashCode: cfg.CashAccountCode, CashName: cfg.CashAccountName}
	entries, skipped := composer.ComposeAll(eligible, 1)

	state.JournalID = report.NewJournalID(s.Deps.now())
	state.Entries = entries
	state.Skipped = append(held, skipped...)

	log := logger.FromContext(ctx)
	for _, sk := range skipped {
		log.Warn().Str("txn_id", sk.TransactionID).Str("reason", sk.Reason).Msg("Transaction not journaled")
	}
	log.Info().
		Str("journal_id", state.JournalID).
		Bool("strict", strict).
		Int("entries", len(entries)).
		Int("held", len(held)).
		Int("skipped", len(skipped)).
		Msg("Composed journal entries")
	return nil
}

// ValidateStep checks the entries and builds the report. An unbalanced
// journal fails the run unless imbalance is allowed.
type ValidateStep struct {
	Deps Deps
}

func (s *ValidateStep) Execute(ctx context.Context, state *RunState) error {
	cfg := s.Deps.Config.Journal
	state.Validation = journal.Validate(state.Entries, cfg.BalanceTolerance)

	policy := config.PolicyInclusive
	if state.Strict || s.Deps.Config.StrictJournal() {
		policy = config.PolicyStrict
	}
	state.Report = report.Build(report.Input{
		JournalID:  state.JournalID,
		SessionID:  state.SessionID,
		Session:    sessionMeta(state),
		CreatedAt:  s.Deps.now(),
		Policy:     policy,
		Results:    state.Results,
		Outcome:    state.Outcome,
		Validation: state.Validation,
		Skipped:    state.Skipped,
	})

	log := logger.FromContext(ctx)
	if state.Validation.Balanced {
		log.Info().
			Str("total_debits", state.Validation.TotalDebits.StringFixed(2)).
			Str("total_credits", state.Validation.TotalCredits.StringFixed(2)).
			Msg("Journal balanced")
		return nil
	}
	err := state.Validation.Err()
	if state.AllowImbalance || cfg.AllowImbalance {
		log.Warn().Err(err).Msg("Journal unbalanced, continuing")
		return nil
	}
	return fmt.Errorf("ValidateStep: %w", err)
}

func sessionMeta(state *RunState) *domain.SessionMeta {
	if state.Meta.SessionID == "" {
		return nil
	}
	meta := state.Meta
	return &meta
}

// WriteOutputsStep writes the CSV table and JSON report. It does nothing
// when OutputDir is empty.
type WriteOutputsStep struct{}

func (s *WriteOutputsStep) Execute(ctx context.Context, state *RunState) error {
	if state.OutputDir == "" {
		return nil
	}
	paths, err := report.WriteFiles(state.OutputDir, state.Report)
	if err != nil {
		return fmt.Errorf("WriteOutputsStep: %w", err)
	}
	state.Paths = paths
	log := logger.FromContext(ctx)
	log.Info().Str("csv", paths.CSV).Str("json", paths.JSON).Msg("Wrote journal files")
	return nil
}

// UploadArtifactsStep publishes the written files to the artifacts bucket.
// It is skipped without a bucket, storage service or written files.
type UploadArtifactsStep struct {
	Deps Deps
}

func (s *UploadArtifactsStep) Execute(ctx context.Context, state *RunState) error {
	cfg := s.Deps.Config.Artifacts
	if cfg.Bucket == "" || s.Deps.Storage == nil || state.Paths.CSV == "" {
		return nil
	}
	prefix := cfg.Prefix + state.SessionID
	if cfg.Prefix != "" && cfg.Prefix[len(cfg.Prefix)-1] != '/' {
		prefix = cfg.Prefix + "/" + state.SessionID
	}
	uris, err := artifacts.Publish(ctx, s.Deps.Storage, cfg.Bucket, prefix, state.Paths.CSV, state.Paths.JSON)
	state.URIs = uris
	if err != nil {
		return fmt.Errorf("UploadArtifactsStep: %w", err)
	}
	return nil
}

// NewJournalPipeline returns the journal steps.
func NewJournalPipeline(d Deps) *Pipeline {
	return NewPipeline(
		&DiscoverSessionStep{Deps: d},
		&ReadSessionStep{Deps: d},
		&MergeCorrectionsStep{Deps: d},
		&CheckCompleteStep{},
		&ComposeStep{Deps: d},
		&ValidateStep{Deps: d},
		&WriteOutputsStep{},
		&UploadArtifactsStep{Deps: d},
	)
}

// RunJournal builds the journal for state.SessionID.
func RunJournal(ctx context.Context, d Deps, state *RunState) error {
	return NewJournalPipeline(d).Execute(ctx, state)
}
