package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// SessionRepository provides the operations the session store needs from
// BigQuery.
type SessionRepository interface {
	// InsertSession inserts a session header row.
	InsertSession(ctx context.Context, row *SessionRow) error

	// GetSession returns a session header row, or nil when it does not exist.
	GetSession(ctx context.Context, sessionID string) (*SessionRow, error)

	// ListSessions returns every session header row.
	ListSessions(ctx context.Context) ([]*SessionRow, error)

	// InsertResults streams a batch of result rows.
	InsertResults(ctx context.Context, rows []*ResultRow) error

	// ListResults returns the result rows of a session ordered by seq.
	ListResults(ctx context.Context, sessionID string) ([]*ResultRow, error)

	// MaxSeq returns the highest seq stored for a session.
	MaxSeq(ctx context.Context, sessionID string) (int64, error)

	// Close releases the underlying client.
	Close() error
}

// BigQuerySessionRepository is the concrete implementation of
// SessionRepository. It holds a shared BigQuery client to avoid creating a new
// connection for each operation.
type BigQuerySessionRepository struct {
	client *bigquery.Client
	ds     Dataset
}

// NewBigQuerySessionRepository creates a repository with a shared client.
func NewBigQuerySessionRepository(ctx context.Context, ds Dataset) (*BigQuerySessionRepository, error) {
	if ds.ProjectID == "" || ds.DatasetID == "" {
		return nil, fmt.Errorf("NewBigQuerySessionRepository: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, ds.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuerySessionRepository: creating client: %w", err)
	}
	return &BigQuerySessionRepository{client: client, ds: ds}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQuerySessionRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// InsertSession delegates to InsertSessionWithClient with the shared client.
func (r *BigQuerySessionRepository) InsertSession(ctx context.Context, row *SessionRow) error {
	return InsertSessionWithClient(ctx, r.client, r.ds, row)
}

// GetSession delegates to GetSessionWithClient with the shared client.
func (r *BigQuerySessionRepository) GetSession(ctx context.Context, sessionID string) (*SessionRow, error) {
	return GetSessionWithClient(ctx, r.client, r.ds, sessionID)
}

// ListSessions delegates to ListSessionsWithClient with the shared client.
func (r *BigQuerySessionRepository) ListSessions(ctx context.Context) ([]*SessionRow, error) {
	return ListSessionsWithClient(ctx, r.client, r.ds)
}

// InsertResults delegates to InsertResultsWithClient with the shared client.
func (r *BigQuerySessionRepository) InsertResults(ctx context.Context, rows []*ResultRow) error {
	return InsertResultsWithClient(ctx, r.client, r.ds, rows)
}

// ListResults delegates to ListResultsWithClient with the shared client.
func (r *BigQuerySessionRepository) ListResults(ctx context.Context, sessionID string) ([]*ResultRow, error) {
	return ListResultsWithClient(ctx, r.client, r.ds, sessionID)
}

// MaxSeq delegates to MaxSeqWithClient with the shared client.
func (r *BigQuerySessionRepository) MaxSeq(ctx context.Context, sessionID string) (int64, error) {
	return MaxSeqWithClient(ctx, r.client, r.ds, sessionID)
}

var _ SessionRepository = (*BigQuerySessionRepository)(nil)
