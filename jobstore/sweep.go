package jobstore

import (
	"context"
	"fmt"
	"time"
)

// DefaultStaleWindow is how long an extraction may sit in Started before the
// startup sweep presumes the worker died mid-run.
const DefaultStaleWindow = 30 * time.Minute

// SweepStale runs once at process start. Jobs still marked Started with a
// start timestamp older than the window get their run fields cleared, so
// they are eligible for a fresh extraction attempt instead of permanently
// reporting "in progress". Returns the number of jobs reset.
func (s *Store) SweepStale(ctx context.Context, window time.Duration) (int64, error) {
	if window <= 0 {
		window = DefaultStaleWindow
	}
	cutoff := time.Now().Add(-window).Unix()

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
			extraction_started_at = NULL,
			extraction_ended_at = NULL,
			processing_time_ms = NULL,
			extraction_complete = 0
		WHERE extraction_complete = 0
		  AND extraction_started_at IS NOT NULL
		  AND extraction_started_at < ?`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("jobstore: sweep stale: %w", err)
	}
	return res.RowsAffected()
}
