// Package jobstore persists work-order job records, their extraction state,
// and the extracted asset list.
//
// ExtractionState is a small machine: NotStarted → Started →
// Complete(success) | Complete(failed). Started is recorded before any page
// work begins so a crash mid-run is observable; the startup sweep
// (SweepStale) guarantees Started always eventually resolves even across
// process restarts. There is no row lock; the started_at timestamp is the
// soft lock, and a second concurrent trigger for the same job is an
// accepted race the sweep bounds.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("jobstore: job not found")

// Asset is one extracted page image attached to a job.
type Asset struct {
	Type       string `json:"type"` // drawing | map | photo
	Name       string `json:"name"`
	URL        string `json:"url"`
	StorageKey string `json:"storage_key,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

// Job is a work-order job record with its extraction state.
type Job struct {
	ID                  int64      `json:"id"`
	Title               string     `json:"title"`
	PDFPath             string     `json:"pdf_path,omitempty"`
	ExtractionStartedAt *time.Time `json:"extraction_started_at,omitempty"`
	ExtractionEndedAt   *time.Time `json:"extraction_ended_at,omitempty"`
	ProcessingTimeMs    *int64     `json:"processing_time_ms,omitempty"`
	ExtractionComplete  bool       `json:"extraction_complete"`
	ExtractionError     string     `json:"extraction_error,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	Assets              []Asset    `json:"assets,omitempty"`
}

// Store is the SQLite-backed job store.
type Store struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		pdf_path TEXT,
		extraction_started_at INTEGER,
		extraction_ended_at INTEGER,
		processing_time_ms INTEGER,
		extraction_complete INTEGER NOT NULL DEFAULT 0,
		extraction_error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS job_assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		storage_key TEXT,
		page_number INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_job_assets_job ON job_assets(job_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_extraction ON jobs(extraction_complete, extraction_started_at);
`

// New creates a Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("jobstore: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateJob inserts a new job record and returns its id.
func (s *Store) CreateJob(ctx context.Context, title, pdfPath string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (title, pdf_path, created_at) VALUES (?, ?, ?)`,
		title, pdfPath, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("jobstore: create job: %w", err)
	}
	return res.LastInsertId()
}

// SetPDFPath records the uploaded source path for a job.
func (s *Store) SetPDFPath(ctx context.Context, id int64, path string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET pdf_path = ? WHERE id = ?`, path, id)
	if err != nil {
		return fmt.Errorf("jobstore: set pdf path: %w", err)
	}
	return checkFound(res)
}

// StartRun transitions a job to Started: the start timestamp is written
// before any page work so a crash mid-run is observable, and any previous
// run's terminal fields are cleared.
func (s *Store) StartRun(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
			extraction_started_at = ?,
			extraction_ended_at = NULL,
			processing_time_ms = NULL,
			extraction_complete = 0,
			extraction_error = NULL
		WHERE id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("jobstore: start run: %w", err)
	}
	return checkFound(res)
}

// FinishRun transitions a job to Complete(success): the asset list replaces
// any previous run's assets, and end timestamp plus elapsed time are
// recorded.
func (s *Store) FinishRun(ctx context.Context, id int64, assets []Asset, elapsed time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("jobstore: finish run: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET
			extraction_ended_at = ?,
			processing_time_ms = ?,
			extraction_complete = 1,
			extraction_error = NULL
		WHERE id = ?`,
		now, elapsed.Milliseconds(), id)
	if err != nil {
		return fmt.Errorf("jobstore: finish run: %w", err)
	}
	if err := checkFound(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_assets WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("jobstore: clear assets: %w", err)
	}
	for _, a := range assets {
		var pageNr any
		if a.PageNumber > 0 {
			pageNr = a.PageNumber
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO job_assets (job_id, type, name, url, storage_key, page_number, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, a.Type, a.Name, a.URL, a.StorageKey, pageNr, now); err != nil {
			return fmt.Errorf("jobstore: insert asset: %w", err)
		}
	}

	return tx.Commit()
}

// FailRun transitions a job to Complete(failed). The error text is for
// operators; clients only ever see an empty asset list, so assets from any
// earlier successful run are cleared rather than left to show up next to
// the error.
func (s *Store) FailRun(ctx context.Context, id int64, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("jobstore: fail run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET
			extraction_ended_at = ?,
			extraction_complete = 1,
			extraction_error = ?
		WHERE id = ?`,
		time.Now().Unix(), reason, id)
	if err != nil {
		return fmt.Errorf("jobstore: fail run: %w", err)
	}
	if err := checkFound(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_assets WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("jobstore: clear assets: %w", err)
	}

	return tx.Commit()
}

// Get loads one job with its assets.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(pdf_path, ''),
			extraction_started_at, extraction_ended_at, processing_time_ms,
			extraction_complete, COALESCE(extraction_error, ''), created_at
		FROM jobs WHERE id = ?`, id)

	var job Job
	var startedAt, endedAt, processingMs sql.NullInt64
	var createdAt int64
	err := row.Scan(&job.ID, &job.Title, &job.PDFPath,
		&startedAt, &endedAt, &processingMs,
		&job.ExtractionComplete, &job.ExtractionError, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job: %w", err)
	}

	job.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		job.ExtractionStartedAt = &t
	}
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0)
		job.ExtractionEndedAt = &t
	}
	if processingMs.Valid {
		job.ProcessingTimeMs = &processingMs.Int64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, name, url, COALESCE(storage_key, ''), COALESCE(page_number, 0)
		FROM job_assets WHERE job_id = ? ORDER BY type, page_number, id`, id)
	if err != nil {
		return nil, fmt.Errorf("jobstore: get assets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.Type, &a.Name, &a.URL, &a.StorageKey, &a.PageNumber); err != nil {
			return nil, fmt.Errorf("jobstore: scan asset: %w", err)
		}
		job.Assets = append(job.Assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &job, nil
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
