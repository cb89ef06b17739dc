// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists every pipeline run, its screened papers, and its
// PRISMA counts in a SQLite database with a full-text index over titles
// and summaries.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/slr-engine/internal/relevance"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// DBFile is the ledger database name inside the results directory.
const DBFile = "slr.db"

const defaultMaxResults = 20

// ErrNotFound is returned when a run ID is not in the ledger.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one pipeline invocation.
type Run struct {
	ID           string       `json:"id" yaml:"id"`
	Subject      string       `json:"subject" yaml:"subject"`
	StartYear    int          `json:"start_year" yaml:"start_year"`
	EndYear      int          `json:"end_year" yaml:"end_year"`
	Status       string       `json:"status" yaml:"status"`
	ErrorKind    string       `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	DocumentPath string       `json:"document_path,omitempty" yaml:"document_path,omitempty"`
	Cycles       int          `json:"cycles" yaml:"cycles"`
	StartedAt    time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time    `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Counts       types.Counts `json:"counts,omitempty" yaml:"counts,omitempty"`
}

// Store manages the ledger database.
type Store struct {
	db         *sql.DB
	path       string
	maxResults int
}

// Open opens or creates dir/DBFile and its schema.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	path := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path, maxResults: defaultMaxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			start_year INTEGER,
			end_year INTEGER,
			status TEXT NOT NULL,
			error_kind TEXT,
			document_path TEXT,
			cycles INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			primary_id TEXT NOT NULL,
			source TEXT NOT NULL,
			title TEXT,
			authors TEXT,
			year INTEGER,
			doi TEXT,
			url TEXT,
			verdict TEXT NOT NULL,
			summary TEXT,
			UNIQUE(run_id, primary_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_run_id ON papers(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_verdict ON papers(verdict)`,
		`CREATE TABLE IF NOT EXISTS counts (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			key TEXT NOT NULL,
			value INTEGER NOT NULL,
			PRIMARY KEY (run_id, key)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='papers_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE papers_fts USING fts5(title, summary, content=papers, content_rowid=rowid)`,
		`CREATE TRIGGER papers_ai AFTER INSERT ON papers BEGIN
			INSERT INTO papers_fts(rowid, title, summary) VALUES (new.rowid, new.title, new.summary);
		END`,
		`CREATE TRIGGER papers_ad AFTER DELETE ON papers BEGIN
			INSERT INTO papers_fts(papers_fts, rowid, title, summary) VALUES('delete', old.rowid, old.title, old.summary);
		END`,
		`CREATE TRIGGER papers_au AFTER UPDATE ON papers BEGIN
			INSERT INTO papers_fts(papers_fts, rowid, title, summary) VALUES('delete', old.rowid, old.title, old.summary);
			INSERT INTO papers_fts(rowid, title, summary) VALUES (new.rowid, new.title, new.summary);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// BeginRun inserts a run in the running state. A zero StartedAt is set to
// now.
func (s *Store) BeginRun(ctx context.Context, r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, subject, start_year, end_year, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Subject, r.StartYear, r.EndYear, StatusRunning, formatTime(r.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun records the outcome of a run and replaces its counts.
func (s *Store) FinishRun(ctx context.Context, r Run) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status=?, error_kind=?, document_path=?, cycles=?, finished_at=?
		 WHERE id=?`,
		r.Status, r.ErrorKind, r.DocumentPath, r.Cycles, formatTime(r.FinishedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM counts WHERE run_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clearing counts: %w", err)
	}
	for _, key := range r.Counts.Keys() {
		v, _ := r.Counts.Get(key)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO counts (run_id, key, value) VALUES (?, ?, ?)`, r.ID, key, v,
		); err != nil {
			return fmt.Errorf("inserting count %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// RecordOutcome stores every screened record of an outcome under runID.
// Re-recording a paper replaces its verdict and summary.
func (s *Store) RecordOutcome(ctx context.Context, runID string, o relevance.Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO papers (run_id, primary_id, source, title, authors, year, doi, url, verdict, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, primary_id) DO UPDATE SET
			source=excluded.source, title=excluded.title, authors=excluded.authors,
			year=excluded.year, doi=excluded.doi, url=excluded.url,
			verdict=excluded.verdict, summary=excluded.summary`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	groups := []struct {
		verdict relevance.Verdict
		records []types.PaperRecord
	}{
		{relevance.VerdictRelevant, o.Relevant},
		{relevance.VerdictIrrelevant, o.Irrelevant},
		{relevance.VerdictError, o.Errored},
	}
	for _, g := range groups {
		for _, rec := range g.records {
			authorsJSON, _ := json.Marshal(rec.Authors)
			if _, err := stmt.ExecContext(ctx,
				runID, rec.PrimaryID, string(rec.Source), rec.Title, string(authorsJSON),
				rec.PublishedYear, rec.DOI, rec.URL, g.verdict.String(), rec.SummaryText,
			); err != nil {
				return fmt.Errorf("inserting paper %s: %w", rec.PrimaryID, err)
			}
		}
	}

	return tx.Commit()
}

// GetRun returns one run with its counts.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, runSelect+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("looking up run: %w", err)
	}
	if r.Counts, err = s.counts(ctx, id); err != nil {
		return Run{}, err
	}
	return r, nil
}

// Runs returns the most recent runs first. A non-positive limit uses the
// store default.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = s.maxResults
	}
	rows, err := s.db.QueryContext(ctx, runSelect+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Counts, err = s.counts(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

const runSelect = `SELECT id, subject, start_year, end_year, status, error_kind,
	document_path, cycles, started_at, finished_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                  Run
		errKind, docPath   sql.NullString
		started            string
		finished           sql.NullString
		startYear, endYear sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Subject, &startYear, &endYear, &r.Status, &errKind,
		&docPath, &r.Cycles, &started, &finished); err != nil {
		return Run{}, err
	}
	r.StartYear = int(startYear.Int64)
	r.EndYear = int(endYear.Int64)
	r.ErrorKind = errKind.String
	r.DocumentPath = docPath.String
	r.StartedAt = parseTime(started)
	if finished.Valid {
		r.FinishedAt = parseTime(finished.String)
	}
	return r, nil
}

func (s *Store) counts(ctx context.Context, runID string) (types.Counts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM counts WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying counts: %w", err)
	}
	defer rows.Close()

	c := types.Counts{}
	for rows.Next() {
		var key string
		var v int
		if err := rows.Scan(&key, &v); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		c.Add(key, v)
	}
	return c, rows.Err()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
