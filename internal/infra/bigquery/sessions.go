package bigquery

import "time"

const (
	sessionsTable = "categorization_sessions"
	resultsTable  = "categorization_results"
)

// Dataset names the project and dataset holding the session tables.
type Dataset struct {
	ProjectID string
	DatasetID string
}

func (d Dataset) table(name string) string {
	return "`" + d.ProjectID + "." + d.DatasetID + "." + name + "`"
}

// SessionRow is one row of categorization_sessions.
type SessionRow struct {
	SessionID string    `bigquery:"session_id"` // REQUIRED
	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
	Metadata  string    `bigquery:"metadata"`   // JSON encoded header
}

// ResultRow is one row of categorization_results. Seq orders rows within a
// session in append order.
type ResultRow struct {
	SessionID     string    `bigquery:"session_id"`     // REQUIRED
	Seq           int64     `bigquery:"seq"`            // REQUIRED
	TransactionID string    `bigquery:"transaction_id"` // REQUIRED
	Payload       string    `bigquery:"payload"`        // JSON encoded result
	RecordedTS    time.Time `bigquery:"recorded_ts"`    // REQUIRED
}
