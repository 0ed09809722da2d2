package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/bookkeeper/internal/app"
	"github.com/dvloznov/bookkeeper/internal/jobs"
	"github.com/dvloznov/bookkeeper/internal/jobs/inmemory"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/rs/zerolog"
)

// runRequest is one line of the batch file.
type runRequest struct {
	ExportPath      string `json:"export_path"`
	ChartPath       string `json:"chart_path"`
	ResumeSessionID string `json:"resume_session_id,omitempty"`
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to the YAML config file (or set BOOKKEEPER_CONFIG env)")
		batch      = flag.String("jobs", "-", "JSON lines of {export_path, chart_path[, resume_session_id]}; - reads stdin")
		poll       = flag.Duration("poll", 500*time.Millisecond, "How often to check for finished jobs")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Open(ctx, app.ConfigPath(*configPath))
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer rt.Close()
	log := rt.Log
	ctx = rt.Context(ctx)

	requests, err := readRequests(*batch)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read jobs")
	}
	if len(requests) == 0 {
		log.Info().Msg("No jobs to run")
		return
	}

	inputs := make([]string, 0, 2*len(requests))
	for _, r := range requests {
		inputs = append(inputs, r.ExportPath, r.ChartPath)
	}
	deps, err := rt.Deps(ctx, true, inputs...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build dependencies")
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(rt.Config.Jobs, jobStore)
	if err := jobQueue.Start(ctx, jobs.CategorizeHandler(deps)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}
	log.Info().Int("jobs", len(requests)).Int("workers", rt.Config.Jobs.Workers).Msg("Worker started")

	ids := make([]string, 0, len(requests))
	for _, r := range requests {
		job := &jobs.CategorizeRunJob{ExportPath: r.ExportPath, ChartPath: r.ChartPath, ResumeSessionID: r.ResumeSessionID}
		if err := jobQueue.PublishCategorizeRun(ctx, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to enqueue job")
		}
		ids = append(ids, job.JobID)
	}

	failed := waitForJobs(ctx, jobStore, ids, *poll, log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Int("jobs", len(ids)).Int("failed", failed).Msg("Worker exited")
	if failed > 0 {
		os.Exit(1)
	}
}

// waitForJobs blocks until every job completed or failed, or ctx is done.
// It returns the number of jobs that did not complete.
func waitForJobs(ctx context.Context, store jobs.JobStore, ids []string, poll time.Duration, log zerolog.Logger) int {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	failed := 0

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			log.Warn().Int("unfinished", len(pending)).Msg("Interrupted; rerun with resume_session_id to continue")
			return failed + len(pending)
		case <-ticker.C:
		}
		for id := range pending {
			job, err := store.GetJob(ctx, id)
			if err != nil {
				continue
			}
			switch job.Status {
			case jobs.JobStatusCompleted:
				log.Info().Str("job_id", id).Str("session_id", job.SessionID).Int("results", job.Results).Int("flagged", job.Flagged).Msg("Job done")
				delete(pending, id)
			case jobs.JobStatusFailed:
				log.Error().Str("job_id", id).Str("session_id", job.SessionID).Str("error", job.Error).Msg("Job failed")
				failed++
				delete(pending, id)
			}
		}
	}
	return failed
}

func readRequests(path string) ([]runRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("readRequests: %w", err)
		}
		defer f.Close()
		r = f
	}

	var out []runRequest
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var req runRequest
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return nil, fmt.Errorf("readRequests: line %d: %w", line, err)
		}
		if req.ExportPath == "" || req.ChartPath == "" {
			return nil, fmt.Errorf("readRequests: line %d: export_path and chart_path are required", line)
		}
		out = append(out, req)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("readRequests: %w", err)
	}
	return out, nil
}
