package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/bookkeeper/internal/api/middleware"
)

// NewMux registers every endpoint. Unsupported methods get 405 from the mux.
func NewMux(sessions *SessionsHandler, runs *RunsHandler, jobList *JobsHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sessions", sessions.ListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", sessions.GetSession)
	mux.HandleFunc("GET /api/sessions/{id}/flagged", sessions.ListFlagged)
	mux.HandleFunc("POST /api/sessions/{id}/corrections", sessions.CreateCorrection)
	mux.HandleFunc("POST /api/sessions/{id}/journal", sessions.RunJournal)

	mux.HandleFunc("POST /api/runs", runs.CreateRun)
	mux.HandleFunc("GET /api/jobs", jobList.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobList.GetJob)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	return mux
}
