// Package inmemory provides a channel-backed job queue and job store for a
// single process.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/jobs"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/google/uuid"
)

// ErrClosed is returned when publishing to or starting a stopped queue.
var ErrClosed = errors.New("queue is closed")

// DefaultRetryBackoff is the delay before the first retry; the nth retry waits
// n times as long.
const DefaultRetryBackoff = time.Second

// Queue is an in-memory job publisher and consumer. Jobs travel over a
// buffered channel to a fixed pool of workers.
type Queue struct {
	jobChan   chan *jobs.CategorizeRunJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers    int
	maxRetries int

	// RetryBackoff is the base of the linear retry delay. Set it before Start.
	RetryBackoff time.Duration
}

// NewQueue creates a queue sized by cfg. store may be nil.
func NewQueue(cfg config.JobsConfig, store jobs.JobStore) *Queue {
	buffer := cfg.Buffer
	if buffer < 0 {
		buffer = 0
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobChan:      make(chan *jobs.CategorizeRunJob, buffer),
		closeChan:    make(chan struct{}),
		store:        store,
		workers:      workers,
		maxRetries:   cfg.MaxRetries,
		RetryBackoff: DefaultRetryBackoff,
	}
}

// PublishCategorizeRun assigns an id and defaults to job, saves it and
// enqueues it. It blocks while the buffer is full.
func (q *Queue) PublishCategorizeRun(ctx context.Context, job *jobs.CategorizeRunJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.maxRetries
	}
	return q.enqueue(ctx, job)
}

func (q *Queue) enqueue(ctx context.Context, job *jobs.CategorizeRunJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishCategorizeRun: saving job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrClosed
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or the
// queue is stopped.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	log := logger.FromContext(ctx)
	log.Info().Int("workers", q.workers).Msg("Starting job workers")
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, id int, handler jobs.JobHandler) {
	defer q.wg.Done()
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).With().Int("worker", id).Logger())

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs one attempt. A failed attempt is re-enqueued after a linear
// backoff until MaxRetries is used up.
func (q *Queue) processJob(ctx context.Context, job *jobs.CategorizeRunJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().Str("job_id", job.JobID).Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	job.CompletedAt = nil
	q.save(ctx, job)

	err := handler(ctx, job)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Info().Str("session_id", job.SessionID).Msg("Job completed")
	case job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		backoff := time.Duration(job.RetryCount) * q.RetryBackoff
		log.Warn().Err(err).Int("retry", job.RetryCount).Dur("backoff", backoff).Str("session_id", job.SessionID).Msg("Job failed, retrying")

		retry := *job
		time.AfterFunc(backoff, func() {
			retry.Status = jobs.JobStatusPending
			retry.StartedAt = nil
			retry.CompletedAt = nil
			if err := q.enqueue(context.Background(), &retry); err != nil {
				log.Error().Err(err).Msg("Could not re-enqueue job")
			}
		})
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		log.Error().Err(err).Int("retries", job.RetryCount).Msg("Job failed")
	}
	q.save(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.CategorizeRunJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Could not save job")
	}
}

// Stop closes the queue and waits for in-flight jobs, or for ctx.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
