package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
)

// CategorizeHandler runs the categorize pipeline for CategorizeRunJob. The
// session id is written back to the job even when the run fails, so the next
// attempt resumes that session.
func CategorizeHandler(d pipeline.Deps) JobHandler {
	return func(ctx context.Context, job Job) error {
		run, ok := job.(*CategorizeRunJob)
		if !ok {
			return fmt.Errorf("CategorizeHandler: unsupported job type %s", job.GetType())
		}

		state := &pipeline.RunState{
			ExportPath: run.ExportPath,
			ChartPath:  run.ChartPath,
			ResumeID:   run.ResumeSessionID,
		}
		if run.SessionID != "" {
			state.ResumeID = run.SessionID
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", run.JobID).
			Int("attempt", run.RetryCount+1).
			Str("resume", state.ResumeID).
			Logger()
		ctx = logger.WithContext(ctx, log)

		err := pipeline.RunCategorize(ctx, d, state)
		if state.SessionID != "" {
			run.SessionID = state.SessionID
		}
		if err != nil {
			return fmt.Errorf("CategorizeHandler: %w", err)
		}
		run.Results = len(state.Results)
		run.Flagged = len(state.Outcome.Flagged)
		log.Info().Str("session_id", run.SessionID).Int("results", run.Results).Int("flagged", run.Flagged).Msg("Categorize run finished")
		return nil
	}
}
