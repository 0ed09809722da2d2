// Package handlers implements the HTTP endpoints for sessions, journal runs
// and categorization jobs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dvloznov/bookkeeper/internal/api/middleware"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/journal"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/session"
	"github.com/dvloznov/bookkeeper/internal/triage"
)

// SessionsHandler serves categorization sessions and the operations on them.
type SessionsHandler struct {
	deps pipeline.Deps
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps pipeline.Deps) *SessionsHandler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &SessionsHandler{deps: deps}
}

// SessionDetail is the body of GET /api/sessions/{id}.
type SessionDetail struct {
	Metadata domain.SessionMeta `json:"metadata"`
	Records  int                `json:"records"`
	Stats    triage.Stats       `json:"stats"`
	Flagged  int                `json:"flagged_count"`
}

// ListSessions handles GET /api/sessions
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	metas, err := h.deps.Store.List(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to list sessions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if metas == nil {
		metas = []domain.SessionMeta{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": metas,
		"count":    len(metas),
	})
}

// GetSession handles GET /api/sessions/{id}
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	meta, records, ok := h.read(w, r)
	if !ok {
		return
	}
	results := triage.MergeLatest(records)
	outcome := triage.Triage(results, h.deps.Config.Categorize.ConfidenceThreshold)
	middleware.WriteJSON(w, http.StatusOK, SessionDetail{
		Metadata: meta,
		Records:  len(records),
		Stats:    triage.Summarize(results),
		Flagged:  len(outcome.Flagged),
	})
}

// ListFlagged handles GET /api/sessions/{id}/flagged
func (h *SessionsHandler) ListFlagged(w http.ResponseWriter, r *http.Request) {
	_, records, ok := h.read(w, r)
	if !ok {
		return
	}
	outcome := triage.Triage(triage.MergeLatest(records), h.deps.Config.Categorize.ConfidenceThreshold)
	flagged := outcome.Flagged
	if flagged == nil {
		flagged = []domain.CategorizationResult{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"threshold": outcome.Threshold,
		"flagged":   flagged,
		"count":     len(flagged),
	})
}

// CorrectionRequest is the body of POST /api/sessions/{id}/corrections.
type CorrectionRequest struct {
	TransactionID string  `json:"transaction_id"`
	AccountCode   string  `json:"account_code"`
	Confidence    float64 `json:"confidence,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	// ChartPath overrides the chart recorded on the session.
	ChartPath string `json:"chart_path,omitempty"`
}

// CreateCorrection handles POST /api/sessions/{id}/corrections
func (h *SessionsHandler) CreateCorrection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TransactionID == "" || req.AccountCode == "" {
		middleware.WriteError(w, http.StatusBadRequest, "transaction_id and account_code are required")
		return
	}

	meta, _, ok := h.read(w, r)
	if !ok {
		return
	}
	chartPath := req.ChartPath
	if chartPath == "" {
		chartPath = meta.ChartPath
	}
	if chartPath == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Session has no chart of accounts; pass chart_path")
		return
	}
	idx, err := pipeline.LoadIndex(ctx, h.deps, chartPath)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("chart", chartPath).Msg("Failed to load chart of accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load chart of accounts")
		return
	}

	result, err := pipeline.ApplyCorrection(ctx, h.deps.Store, idx, meta.SessionID, req.TransactionID, req.AccountCode, req.Confidence, req.Reason, h.deps.Clock())
	var unknown *triage.UnknownAccountCode
	switch {
	case err == nil:
		middleware.WriteJSON(w, http.StatusCreated, result)
	case errors.As(err, &unknown):
		middleware.WriteError(w, http.StatusBadRequest, unknown.Error())
	case errors.Is(err, pipeline.ErrUnknownTransaction):
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found in session")
	default:
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("session_id", meta.SessionID).Msg("Failed to apply correction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to apply correction")
	}
}

// JournalRequest is the body of POST /api/sessions/{id}/journal. An empty
// body uses the configured policy.
type JournalRequest struct {
	Strict          bool `json:"strict"`
	AllowImbalance  bool `json:"allow_imbalance"`
	AllowIncomplete bool `json:"allow_incomplete"`
	WriteFiles      bool `json:"write_files"`
}

// RunJournal handles POST /api/sessions/{id}/journal
func (h *SessionsHandler) RunJournal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req JournalRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	state := &pipeline.RunState{
		SessionID:       r.PathValue("id"),
		Strict:          req.Strict,
		AllowImbalance:  req.AllowImbalance,
		AllowIncomplete: req.AllowIncomplete,
	}
	if req.WriteFiles {
		state.OutputDir = h.deps.Config.Journal.OutputDir
	}

	err := pipeline.RunJournal(ctx, h.deps, state)
	var (
		entryErr  *journal.ImbalanceError
		ledgerErr *journal.LedgerImbalanceError
	)
	switch {
	case err == nil:
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"report": state.Report,
			"files":  filesOf(state),
		})
	case errors.Is(err, session.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, pipeline.ErrIncompleteSession):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.As(err, &entryErr), errors.As(err, &ledgerErr):
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  err.Error(),
			"report": state.Report,
		})
	default:
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("session_id", state.SessionID).Msg("Journal run failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Journal run failed")
	}
}

func filesOf(state *pipeline.RunState) []string {
	files := []string{}
	if state.Paths.CSV != "" {
		files = append(files, state.Paths.CSV, state.Paths.JSON)
	}
	return append(files, state.URIs...)
}

// read loads the session named in the path, writing a 404 or 500 on failure.
func (h *SessionsHandler) read(w http.ResponseWriter, r *http.Request) (domain.SessionMeta, []domain.CategorizationResult, bool) {
	id := r.PathValue("id")
	meta, records, err := h.deps.Store.ReadAll(r.Context(), id)
	switch {
	case err == nil:
		return meta, records, true
	case errors.Is(err, session.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("session_id", id).Msg("Failed to read session")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read session")
	}
	return domain.SessionMeta{}, nil, false
}
