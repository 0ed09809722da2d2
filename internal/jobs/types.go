// Package jobs defines asynchronous categorization runs and the queue
// abstractions that carry them.
package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by a JobStore for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeCategorizeRun represents a categorization run over a bank export.
	JobTypeCategorizeRun JobType = "categorize_run"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// CategorizeRunJob represents a request to categorize one bank export.
type CategorizeRunJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// ExportPath is the bank export, a local path or gs:// URI.
	ExportPath string `json:"export_path"`

	// ChartPath is the chart of accounts, a local path or gs:// URI.
	ChartPath string `json:"chart_path"`

	// ResumeSessionID asks the first attempt to resume an existing session.
	ResumeSessionID string `json:"resume_session_id,omitempty"`

	// SessionID is the session the run writes to. It is recorded as soon as
	// the session exists, so a retry resumes it instead of starting over.
	SessionID string `json:"session_id,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Results and Flagged are filled in when the run completes.
	Results int `json:"results"`
	Flagged int `json:"flagged"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *CategorizeRunJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *CategorizeRunJob) GetType() JobType {
	return JobTypeCategorizeRun
}

// GetStatus implements the Job interface.
func (j *CategorizeRunJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs.
type Publisher interface {
	// PublishCategorizeRun enqueues a categorization run.
	PublishCategorizeRun(ctx context.Context, job *CategorizeRunJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *CategorizeRunJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*CategorizeRunJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*CategorizeRunJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// SessionID filters jobs by categorization session.
	SessionID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
