package pipeline

import (
	"time"

	"github.com/dvloznov/bookkeeper/internal/artifacts"
	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/journal"
	"github.com/dvloznov/bookkeeper/internal/oracle"
	"github.com/dvloznov/bookkeeper/internal/report"
	"github.com/dvloznov/bookkeeper/internal/session"
	"github.com/dvloznov/bookkeeper/internal/triage"
)

// ResumeLatest asks OpenSessionStep to resume the most recent session.
const ResumeLatest = "latest"

// Deps are the collaborators shared by every step.
type Deps struct {
	Config config.Config
	Store  session.Store
	Oracle oracle.Oracle
	// Storage is optional; it is needed for gs:// inputs and artifact upload.
	Storage artifacts.StorageService
	Clock   func() time.Time
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// RunState carries inputs, intermediate values and outputs between steps.
type RunState struct {
	// Inputs.
	ExportPath      string
	ChartPath       string
	ResumeID        string // empty for a new session, an id, or ResumeLatest
	SessionID       string // journal runs: empty means the latest session
	Strict          bool
	AllowImbalance  bool
	AllowIncomplete bool   // journal runs: journal a session that is missing transactions
	OutputDir       string // journal runs: empty skips writing files

	// Categorization.
	Transactions []domain.Transaction
	Index        *coa.Index
	Checksum     string
	Meta         domain.SessionMeta
	Prior        []domain.CategorizationResult
	Pending      []domain.Transaction
	New          []domain.CategorizationResult
	Unknown      []*triage.UnknownAccountCode
	Results      []domain.CategorizationResult
	Outcome      triage.Outcome
	Stats        triage.Stats

	// Journal.
	JournalID  string
	Entries    []domain.JournalEntry
	Skipped    []journal.Skipped
	Validation journal.Report
	Report     report.Report
	Paths      report.Paths
	URIs       []string
}
