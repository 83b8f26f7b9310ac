// Package store keeps report runs in an SQLite database: the rows of each
// run and the menu candidate pool they were labeled from.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bmm-sec/saz-insights/internal/report"
	"github.com/bmm-sec/saz-insights/pkg/menulabel"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    archive     TEXT NOT NULL,
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS report_rows (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx         INTEGER NOT NULL,
    session_id  TEXT NOT NULL,
    path        TEXT,
    method      TEXT NOT NULL,
    url         TEXT NOT NULL,
    menu_label  TEXT,
    match_score TEXT,
    params      TEXT,
    result      TEXT NOT NULL,
    timestamp   TEXT,
    remark      TEXT,
    PRIMARY KEY (run_id, idx)
);

CREATE TABLE IF NOT EXISTS menu_candidates (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    host        TEXT NOT NULL,
    idx         INTEGER NOT NULL,
    label       TEXT NOT NULL,
    url         TEXT NOT NULL,
    PRIMARY KEY (run_id, host, idx)
);

CREATE INDEX IF NOT EXISTS idx_report_rows_url ON report_rows(url);
`

// Store wraps an SQLite database of report runs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun stores the rows and candidate pool of one report run and returns
// the run id. Everything is written in a single transaction.
func (s *Store) SaveRun(ctx context.Context, archive string, rows []report.Row, pool menulabel.Pool) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, archive, created_at) VALUES (?, ?, ?)`,
		id, archive, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	rowStmt, err := tx.PrepareContext(ctx, `INSERT INTO report_rows
        (run_id, idx, session_id, path, method, url, menu_label, match_score, params, result, timestamp, remark)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer rowStmt.Close()

	for i, r := range rows {
		if _, err := rowStmt.ExecContext(ctx, id, i, r.SessionID, r.Path, r.Method, r.URL,
			r.MenuLabel, r.MatchScore, r.Params, r.Result, r.Timestamp, r.Remark); err != nil {
			return "", fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	candStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO menu_candidates (run_id, host, idx, label, url) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare candidate insert: %w", err)
	}
	defer candStmt.Close()

	for _, host := range pool.Hosts() {
		for i, c := range pool[host] {
			if _, err := candStmt.ExecContext(ctx, id, host, i, c.Label, c.URL); err != nil {
				return "", fmt.Errorf("failed to insert candidate %s/%d: %w", host, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// Rows returns the rows of a run in report order.
func (s *Store) Rows(ctx context.Context, runID string) ([]report.Row, error) {
	rs, err := s.db.QueryContext(ctx, `SELECT session_id, path, method, url, menu_label, match_score,
        params, result, timestamp, remark FROM report_rows WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rs.Close()

	var out []report.Row
	for rs.Next() {
		var r report.Row
		if err := rs.Scan(&r.SessionID, &r.Path, &r.Method, &r.URL, &r.MenuLabel, &r.MatchScore,
			&r.Params, &r.Result, &r.Timestamp, &r.Remark); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

// Pool rebuilds the candidate pool saved with a run.
func (s *Store) Pool(ctx context.Context, runID string) (menulabel.Pool, error) {
	rs, err := s.db.QueryContext(ctx,
		`SELECT host, label, url FROM menu_candidates WHERE run_id = ? ORDER BY host, idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rs.Close()

	pool := menulabel.Pool{}
	for rs.Next() {
		var host string
		var c menulabel.Candidate
		if err := rs.Scan(&host, &c.Label, &c.URL); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		pool.Add(host, c)
	}
	return pool, rs.Err()
}

// Run describes a stored report run.
type Run struct {
	ID        string
	Archive   string
	CreatedAt time.Time
	Rows      int
}

// Runs lists the stored runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rs, err := s.db.QueryContext(ctx, `SELECT r.id, r.archive, r.created_at,
        (SELECT COUNT(*) FROM report_rows WHERE run_id = r.id)
        FROM runs r ORDER BY r.created_at, r.rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rs.Close()

	var out []Run
	for rs.Next() {
		var run Run
		var created string
		if err := rs.Scan(&run.ID, &run.Archive, &created, &run.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, run)
	}
	return out, rs.Err()
}
