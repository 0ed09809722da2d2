package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// InsertResultsWithClient streams result rows into categorization_results.
func InsertResultsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*ResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(resultsTable)
	inserter := table.Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertResultsWithClient: inserting rows: %w", err)
	}

	return nil
}

// ListResultsWithClient returns the result rows of a session in append order.
func ListResultsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, sessionID string) ([]*ResultRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT session_id, seq, transaction_id, payload, recorded_ts
		FROM %s
		WHERE session_id = @session_id
		ORDER BY seq
	`, ds.table(resultsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: sessionID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListResultsWithClient: query read: %w", err)
	}

	var rows []*ResultRow
	for {
		var r ResultRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListResultsWithClient: iterating: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// MaxSeqWithClient returns the highest sequence number stored for a session,
// or 0 when it has no results.
func MaxSeqWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, sessionID string) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT COALESCE(MAX(seq), 0) AS max_seq
		FROM %s
		WHERE session_id = @session_id
	`, ds.table(resultsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: sessionID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("MaxSeqWithClient: query read: %w", err)
	}

	var row struct {
		MaxSeq int64 `bigquery:"max_seq"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, fmt.Errorf("MaxSeqWithClient: iterating: %w", err)
	}
	return row.MaxSeq, nil
}
