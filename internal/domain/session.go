package domain

import "time"

// SessionMeta is the header record of a categorization session.
type SessionMeta struct {
	SessionID         string    `json:"session_id"`
	CreatedAt         time.Time `json:"created_at"`
	TotalTransactions int       `json:"total_transactions"`
	TotalChunks       int       `json:"total_chunks"`
	TotalAccounts     int       `json:"total_coa_accounts"`
	SourcePath        string    `json:"csv_file_path,omitempty"`
	ChartPath         string    `json:"coa_file_path,omitempty"`
	SourceChecksum    string    `json:"source_checksum,omitempty"`
}
