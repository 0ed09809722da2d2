package session

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/bookkeeper/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps sessions in a SQLite database with a single connection.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteStore: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewSQLiteStore: ping: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("NewSQLiteStore: %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewSQLiteStore: applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Create inserts the session header.
func (s *SQLiteStore) Create(ctx context.Context, meta domain.SessionMeta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("SQLiteStore.Create: encoding meta: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, meta) VALUES (?, ?, ?)`,
		meta.SessionID, meta.CreatedAt.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("SQLiteStore.Create: %s: %w", meta.SessionID, ErrExists)
		}
		return fmt.Errorf("SQLiteStore.Create: %w", err)
	}
	return nil
}

// Append inserts results in one transaction after the current last sequence.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, results ...domain.CategorizationResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SQLiteStore.Append: begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = ?`, sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("SQLiteStore.Append: %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("SQLiteStore.Append: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM results WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		return fmt.Errorf("SQLiteStore.Append: reading sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (session_id, seq, transaction_id, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("SQLiteStore.Append: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("SQLiteStore.Append: encoding %s: %w", r.TransactionID, err)
		}
		seq++
		if _, err := stmt.ExecContext(ctx, sessionID, seq, r.TransactionID, string(payload)); err != nil {
			return fmt.Errorf("SQLiteStore.Append: inserting %s: %w", r.TransactionID, err)
		}
	}
	return tx.Commit()
}

// ReadAll returns the header and results of a session in append order.
func (s *SQLiteStore) ReadAll(ctx context.Context, sessionID string) (domain.SessionMeta, []domain.CategorizationResult, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT meta FROM sessions WHERE session_id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionMeta{}, nil, fmt.Errorf("SQLiteStore.ReadAll: %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("SQLiteStore.ReadAll: %w", err)
	}
	var meta domain.SessionMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("SQLiteStore.ReadAll: decoding meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM results WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("SQLiteStore.ReadAll: querying results: %w", err)
	}
	defer rows.Close()

	var results []domain.CategorizationResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return domain.SessionMeta{}, nil, fmt.Errorf("SQLiteStore.ReadAll: scan: %w", err)
		}
		var r domain.CategorizationResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return domain.SessionMeta{}, nil, fmt.Errorf("SQLiteStore.ReadAll: decoding result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("SQLiteStore.ReadAll: %w", err)
	}
	return meta, results, nil
}

// List returns every session header, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.SessionMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT meta FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("SQLiteStore.List: %w", err)
	}
	defer rows.Close()

	var metas []domain.SessionMeta
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("SQLiteStore.List: scan: %w", err)
		}
		var meta domain.SessionMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, fmt.Errorf("SQLiteStore.List: decoding meta: %w", err)
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SQLiteStore.List: %w", err)
	}
	SortNewestFirst(metas)
	return metas, nil
}

// DiscoverLatest returns the most recent session.
func (s *SQLiteStore) DiscoverLatest(ctx context.Context) (string, error) {
	metas, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return Latest(metas)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
