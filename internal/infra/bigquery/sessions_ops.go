package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// InsertSessionWithClient inserts a session header using a DML statement so
// the row is immediately visible to queries.
func InsertSessionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *SessionRow) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			session_id,
			created_ts,
			metadata
		)
		VALUES (
			@session_id,
			@created_ts,
			@metadata
		)
	`, ds.table(sessionsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: row.SessionID},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "metadata", Value: row.Metadata},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("InsertSessionWithClient: running insert query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("InsertSessionWithClient: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("InsertSessionWithClient: job error: %w", err)
	}

	return nil
}

// GetSessionWithClient returns the header row of a session, or nil when it
// does not exist.
func GetSessionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, sessionID string) (*SessionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT session_id, created_ts, metadata
		FROM %s
		WHERE session_id = @session_id
		LIMIT 1
	`, ds.table(sessionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: sessionID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetSessionWithClient: reading query: %w", err)
	}

	var row SessionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSessionWithClient: iterating: %w", err)
	}
	return &row, nil
}

// ListSessionsWithClient returns every session header, newest first.
func ListSessionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]*SessionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT session_id, created_ts, metadata
		FROM %s
		ORDER BY created_ts DESC
	`, ds.table(sessionsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListSessionsWithClient: reading query: %w", err)
	}

	var rows []*SessionRow
	for {
		var row SessionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListSessionsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}
