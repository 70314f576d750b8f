package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gridlane/workpack/dbopen"
	_ "modernc.org/sqlite"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRunLifecycle(t *testing.T) {
	// WHAT: NotStarted → Started → Complete(success) with assets written.
	s := newStore(t)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "WO-4417 pole replacement", "uploads/wo4417.pdf")
	if err != nil {
		t.Fatal(err)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.ExtractionStartedAt != nil || job.ExtractionComplete {
		t.Fatalf("fresh job should be NotStarted: %+v", job)
	}

	if err := s.StartRun(ctx, id); err != nil {
		t.Fatal(err)
	}
	job, _ = s.Get(ctx, id)
	if job.ExtractionStartedAt == nil {
		t.Fatal("StartRun must record a start timestamp")
	}
	if job.ExtractionComplete {
		t.Fatal("started run must not be complete")
	}

	assets := []Asset{
		{Type: "drawing", Name: "drawing_page_4.jpg", URL: "/files/job_1/drawings/drawing_page_4.jpg", PageNumber: 4},
		{Type: "photo", Name: "photo_page_3.jpg", URL: "https://cdn/x/photo_page_3.jpg", StorageKey: "job_1/photos/photo_page_3.jpg", PageNumber: 3},
	}
	if err := s.FinishRun(ctx, id, assets, 1500*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	job, _ = s.Get(ctx, id)
	if !job.ExtractionComplete {
		t.Error("finished run must be complete")
	}
	if job.ExtractionEndedAt == nil {
		t.Error("finished run must record an end timestamp")
	}
	if job.ProcessingTimeMs == nil || *job.ProcessingTimeMs != 1500 {
		t.Errorf("ProcessingTimeMs = %v, want 1500", job.ProcessingTimeMs)
	}
	if len(job.Assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(job.Assets))
	}
}

func TestFinishRun_ReplacesAssets(t *testing.T) {
	// WHY: re-running extraction must not accumulate duplicate asset rows.
	s := newStore(t)
	ctx := context.Background()

	id, _ := s.CreateJob(ctx, "job", "")
	s.StartRun(ctx, id)
	s.FinishRun(ctx, id, []Asset{{Type: "photo", Name: "a.jpg", URL: "/a", PageNumber: 1}}, time.Second)

	s.StartRun(ctx, id)
	s.FinishRun(ctx, id, []Asset{{Type: "photo", Name: "b.jpg", URL: "/b", PageNumber: 2}}, time.Second)

	job, _ := s.Get(ctx, id)
	if len(job.Assets) != 1 || job.Assets[0].Name != "b.jpg" {
		t.Fatalf("assets = %+v, want only b.jpg", job.Assets)
	}
}

func TestFailRun(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, _ := s.CreateJob(ctx, "job", "")
	s.StartRun(ctx, id)
	if err := s.FailRun(ctx, id, "pdfdoc: corrupt document"); err != nil {
		t.Fatal(err)
	}

	job, _ := s.Get(ctx, id)
	if !job.ExtractionComplete {
		t.Error("failed run is terminal and must read as complete")
	}
	if job.ExtractionError == "" {
		t.Error("failure reason should be recorded for operators")
	}
	if len(job.Assets) != 0 {
		t.Error("failed run must not report assets")
	}
}

func TestFailRun_ClearsPriorAssets(t *testing.T) {
	// WHY: a failed re-run must not report the previous run's assets next
	// to its error.
	s := newStore(t)
	ctx := context.Background()

	id, _ := s.CreateJob(ctx, "job", "")
	s.StartRun(ctx, id)
	s.FinishRun(ctx, id, []Asset{{Type: "photo", Name: "a.jpg", URL: "/a", PageNumber: 1}}, time.Second)

	s.StartRun(ctx, id)
	if err := s.FailRun(ctx, id, "read pdf: file vanished"); err != nil {
		t.Fatal(err)
	}

	job, _ := s.Get(ctx, id)
	if job.ExtractionError == "" {
		t.Error("failure reason should be recorded")
	}
	if len(job.Assets) != 0 {
		t.Fatalf("assets = %+v, want none after failed re-run", job.Assets)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newStore(t)
	if _, err := s.Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.StartRun(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("StartRun: expected ErrNotFound, got %v", err)
	}
}

func setStartedAt(t *testing.T, s *Store, id int64, at time.Time) {
	t.Helper()
	if _, err := s.db.Exec(
		`UPDATE jobs SET extraction_started_at = ?, extraction_complete = 0 WHERE id = ?`,
		at.Unix(), id); err != nil {
		t.Fatal(err)
	}
}

func TestSweepStale(t *testing.T) {
	// WHAT: a run started 45 minutes ago is reset; one started 10 minutes
	// ago is left alone.
	// WHY: Started must always eventually resolve, even across crashes.
	s := newStore(t)
	ctx := context.Background()

	stale, _ := s.CreateJob(ctx, "stale", "")
	fresh, _ := s.CreateJob(ctx, "fresh", "")
	done, _ := s.CreateJob(ctx, "done", "")

	s.StartRun(ctx, stale)
	setStartedAt(t, s, stale, time.Now().Add(-45*time.Minute))

	s.StartRun(ctx, fresh)
	setStartedAt(t, s, fresh, time.Now().Add(-10*time.Minute))

	s.StartRun(ctx, done)
	setStartedAt(t, s, done, time.Now().Add(-2*time.Hour))
	s.FinishRun(ctx, done, nil, time.Second)

	n, err := s.SweepStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("swept %d jobs, want 1", n)
	}

	job, _ := s.Get(ctx, stale)
	if job.ExtractionStartedAt != nil || job.ExtractionEndedAt != nil ||
		job.ProcessingTimeMs != nil || job.ExtractionComplete {
		t.Errorf("stale job not fully reset: %+v", job)
	}

	job, _ = s.Get(ctx, fresh)
	if job.ExtractionStartedAt == nil {
		t.Error("fresh in-flight job must be left untouched")
	}

	job, _ = s.Get(ctx, done)
	if !job.ExtractionComplete {
		t.Error("completed job must be left untouched")
	}
}
