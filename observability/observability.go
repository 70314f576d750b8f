// Package observability records extraction run events in SQLite so operators
// can reconstruct what happened to a job after the fact.
//
// Recording is best-effort: a failing event store must never block or fail an
// extraction run, so write errors are logged via slog and swallowed.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS extraction_event_logs (
	event_id TEXT PRIMARY KEY,
	job_id INTEGER NOT NULL,
	stage TEXT NOT NULL,
	detail TEXT,
	success INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_logs_job ON extraction_event_logs(job_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_event_logs_stage ON extraction_event_logs(stage, created_at DESC);
`

// Event is one step of an extraction run worth recording.
type Event struct {
	JobID   int64
	Stage   string // started | classified | rendered | uploaded | completed | failed
	Detail  string // optional JSON or free text
	Success bool
}

// EventLogger writes extraction run events.
type EventLogger struct {
	db     *sql.DB
	logger *slog.Logger
	newID  func() string
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithLogger sets the slog logger used to report write failures.
func WithLogger(l *slog.Logger) EventLoggerOption {
	return func(e *EventLogger) { e.logger = l }
}

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen func() string) EventLoggerOption {
	return func(e *EventLogger) { e.newID = gen }
}

// NewEventLogger creates a logger backed by the given database and applies
// the event schema.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) (*EventLogger, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("observability: schema: %w", err)
	}
	l := &EventLogger{
		db:     db,
		logger: slog.Default(),
		newID:  func() string { return "evt_" + uuid.NewString() },
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// LogEvent records a run event. Errors are logged but do not propagate, so a
// failing event store never blocks extraction.
func (l *EventLogger) LogEvent(ctx context.Context, event Event) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO extraction_event_logs (event_id, job_id, stage, detail, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.newID(), event.JobID, event.Stage, event.Detail, event.Success, time.Now().Unix())
	if err != nil {
		l.logger.Error("event log write failed",
			"error", err, "job_id", event.JobID, "stage", event.Stage)
	}
}

// Events returns the recorded events for a job, oldest first.
func (l *EventLogger) Events(ctx context.Context, jobID int64) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT job_id, stage, COALESCE(detail, ''), success
		FROM extraction_event_logs WHERE job_id = ? ORDER BY created_at, event_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("observability: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.JobID, &e.Stage, &e.Detail, &e.Success); err != nil {
			return nil, fmt.Errorf("observability: scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Cleanup deletes events older than the retention window. Zero or negative
// retention means keep everything.
func (l *EventLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).Unix()
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM extraction_event_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}
