package extract

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gridlane/workpack/assetstore"
	"github.com/gridlane/workpack/dbopen"
	"github.com/gridlane/workpack/jobstore"
	"github.com/gridlane/workpack/observability"
	"github.com/gridlane/workpack/pdfdoc/pdftest"
	"github.com/gridlane/workpack/raster"
	_ "modernc.org/sqlite"
)

// fakeBackend ignores the document bytes and serves fixed-size opaque pages.
type fakeBackend struct {
	pageCount int
	openErr   error
}

func (b fakeBackend) Open(data []byte) (raster.Pages, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	return &fakePages{count: b.pageCount}, nil
}

type fakePages struct{ count int }

func (p *fakePages) PageCount() int { return p.count }

func (p *fakePages) PointSize(pageNr int) (float64, float64, error) {
	if pageNr < 1 || pageNr > p.count {
		return 0, 0, errors.New("page out of range")
	}
	return 100, 80, nil
}

func (p *fakePages) Render(pageNr int, scale float64) (image.Image, error) {
	if pageNr < 1 || pageNr > p.count {
		return nil, errors.New("page out of range")
	}
	img := image.NewRGBA(image.Rect(0, 0, int(100*scale), int(80*scale)))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 40, G: 40, B: 40, A: 255}}, image.Point{}, draw.Src)
	return img, nil
}

func (p *fakePages) Close() error { return nil }

type harness struct {
	jobs   *jobstore.Store
	orch   *Orchestrator
	events *observability.EventLogger
	root   string
}

func newHarness(t *testing.T, backend raster.Backend) *harness {
	t.Helper()
	db := dbopen.OpenMemory(t)
	jobs, err := jobstore.New(db)
	if err != nil {
		t.Fatal(err)
	}
	events, err := observability.NewEventLogger(db)
	if err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	assets := assetstore.New(nil, assetstore.Config{LocalRoot: root})
	orch := New(jobs, assets, backend, nil, Config{TempDir: t.TempDir()},
		WithEventLogger(events))
	return &harness{jobs: jobs, orch: orch, events: events, root: root}
}

func writePDF(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workorder.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sixPagePDF() []byte {
	return pdftest.BuildPages([]pdftest.Page{
		{Text: "crew material list"},
		{Text: "circuit map", Images: 1},
		{NoContent: true, Images: 1},
		{Text: "plan view drawing"},
		{NoContent: true, Images: 1},
		{Text: "general meeting notes for the week"},
	})
}

func TestRun_EndToEnd(t *testing.T) {
	// WHAT: a mixed six-page document yields one drawing, one map and two
	// photo assets, saved under the job's local asset directories.
	h := newHarness(t, fakeBackend{pageCount: 6})
	ctx := context.Background()

	pdfPath := writePDF(t, sixPagePDF())
	id, _ := h.jobs.CreateJob(ctx, "six pager", pdfPath)
	h.jobs.StartRun(ctx, id)

	h.orch.Run(ctx, id, pdfPath)

	job, err := h.jobs.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !job.ExtractionComplete || job.ExtractionError != "" {
		t.Fatalf("run did not complete cleanly: %+v", job)
	}
	if job.ProcessingTimeMs == nil {
		t.Error("elapsed time not recorded")
	}

	byType := map[string][]int{}
	for _, a := range job.Assets {
		byType[a.Type] = append(byType[a.Type], a.PageNumber)
	}
	if got := byType["drawing"]; len(got) != 1 || got[0] != 4 {
		t.Errorf("drawings = %v, want [4]", got)
	}
	if got := byType["map"]; len(got) != 1 || got[0] != 2 {
		t.Errorf("maps = %v, want [2]", got)
	}
	if got := byType["photo"]; len(got) != 2 || got[0] != 3 || got[1] != 5 {
		t.Errorf("photos = %v, want [3 5]", got)
	}

	// No durable storage configured, so assets land under the local root.
	for _, a := range job.Assets {
		p := filepath.Join(h.root, "job_"+strconv.FormatInt(id, 10), categoryDirOf(a.Type), a.Name)
		if _, err := os.Stat(p); err != nil {
			t.Errorf("asset file missing: %s: %v", p, err)
		}
	}

	events, _ := h.events.Events(ctx, id)
	var stages []string
	for _, e := range events {
		stages = append(stages, e.Stage)
	}
	if len(stages) == 0 || stages[0] != "started" || stages[len(stages)-1] != "completed" {
		t.Errorf("event stages = %v, want started ... completed", stages)
	}
}

func TestRun_PhotoCapBoundsRasterization(t *testing.T) {
	// WHAT: 20 image-only pages classify as 20 photos but only the first 15
	// are rasterized.
	h := newHarness(t, fakeBackend{pageCount: 20})
	ctx := context.Background()

	pages := make([]pdftest.Page, 20)
	for i := range pages {
		pages[i] = pdftest.Page{NoContent: true, Images: 1}
	}
	pdfPath := writePDF(t, pdftest.BuildPages(pages))

	id, _ := h.jobs.CreateJob(ctx, "photo dump", pdfPath)
	h.jobs.StartRun(ctx, id)
	h.orch.Run(ctx, id, pdfPath)

	job, _ := h.jobs.Get(ctx, id)
	if len(job.Assets) != 15 {
		t.Fatalf("got %d assets, want 15", len(job.Assets))
	}
	for i, a := range job.Assets {
		if a.Type != "photo" || a.PageNumber != i+1 {
			t.Errorf("asset %d = %+v, want photo page %d", i, a, i+1)
		}
	}
}

func TestRun_BackendUnavailable(t *testing.T) {
	// WHY: a host without the native raster library must complete the run
	// with empty assets instead of leaving the job Started forever.
	h := newHarness(t, fakeBackend{openErr: errors.New("library not found")})
	if h.orch.BackendAvailable() {
		t.Fatal("probe should have failed")
	}
	ctx := context.Background()

	pdfPath := writePDF(t, sixPagePDF())
	id, _ := h.jobs.CreateJob(ctx, "no backend", pdfPath)
	h.jobs.StartRun(ctx, id)
	h.orch.Run(ctx, id, pdfPath)

	job, _ := h.jobs.Get(ctx, id)
	if !job.ExtractionComplete || job.ExtractionError != "" {
		t.Fatalf("expected clean empty completion, got %+v", job)
	}
	if len(job.Assets) != 0 {
		t.Errorf("expected no assets, got %d", len(job.Assets))
	}
}

func TestRun_CorruptDocumentFails(t *testing.T) {
	h := newHarness(t, fakeBackend{pageCount: 1})
	ctx := context.Background()

	pdfPath := writePDF(t, []byte("not a pdf at all"))
	id, _ := h.jobs.CreateJob(ctx, "garbage", pdfPath)
	h.jobs.StartRun(ctx, id)
	h.orch.Run(ctx, id, pdfPath)

	job, _ := h.jobs.Get(ctx, id)
	if !job.ExtractionComplete {
		t.Fatal("failed run must still be terminal")
	}
	if job.ExtractionError == "" {
		t.Error("failure reason should be recorded")
	}
	if len(job.Assets) != 0 {
		t.Error("failed run must not produce assets")
	}
}

func TestRun_CorruptPageSkipped(t *testing.T) {
	// WHAT: one undecodable content stream inside an otherwise valid
	// document costs only that page; the run completes with the rest.
	h := newHarness(t, fakeBackend{pageCount: 3})
	ctx := context.Background()

	pdfPath := writePDF(t, pdftest.BuildPages([]pdftest.Page{
		{Text: "plan view drawing"},
		{BadStream: true},
		{Images: 1},
	}))
	id, _ := h.jobs.CreateJob(ctx, "damaged middle page", pdfPath)
	h.jobs.StartRun(ctx, id)
	h.orch.Run(ctx, id, pdfPath)

	job, _ := h.jobs.Get(ctx, id)
	if !job.ExtractionComplete || job.ExtractionError != "" {
		t.Fatalf("run should complete past the corrupt page: %+v", job)
	}

	byType := map[string][]int{}
	for _, a := range job.Assets {
		byType[a.Type] = append(byType[a.Type], a.PageNumber)
	}
	if got := byType["drawing"]; len(got) != 1 || got[0] != 1 {
		t.Errorf("drawings = %v, want [1]", got)
	}
	if got := byType["photo"]; len(got) != 1 || got[0] != 3 {
		t.Errorf("photos = %v, want [3]", got)
	}
}

func TestRun_PerPageRenderFailureSkips(t *testing.T) {
	// Backend claims fewer pages than the document has, so rendering the
	// later photo page fails; the run still completes with what worked.
	h := newHarness(t, fakeBackend{pageCount: 4})
	ctx := context.Background()

	pdfPath := writePDF(t, sixPagePDF())
	id, _ := h.jobs.CreateJob(ctx, "partial", pdfPath)
	h.jobs.StartRun(ctx, id)
	h.orch.Run(ctx, id, pdfPath)

	job, _ := h.jobs.Get(ctx, id)
	if !job.ExtractionComplete || job.ExtractionError != "" {
		t.Fatalf("run should complete despite page skips: %+v", job)
	}
	for _, a := range job.Assets {
		if a.PageNumber == 5 {
			t.Error("page 5 should have been skipped")
		}
	}
	if len(job.Assets) != 3 {
		t.Errorf("got %d assets, want 3 (drawing 4, map 2, photo 3)", len(job.Assets))
	}
}

func TestStart_Detached(t *testing.T) {
	h := newHarness(t, fakeBackend{pageCount: 6})
	ctx := context.Background()

	pdfPath := writePDF(t, sixPagePDF())
	id, _ := h.jobs.CreateJob(ctx, "async", pdfPath)

	if err := h.orch.Start(ctx, id); err != nil {
		t.Fatal(err)
	}

	// Started is recorded synchronously; completion lands asynchronously.
	job, _ := h.jobs.Get(ctx, id)
	if job.ExtractionStartedAt == nil {
		t.Fatal("Start must record the Started transition before returning")
	}

	deadline := time.After(10 * time.Second)
	for {
		job, _ = h.jobs.Get(ctx, id)
		if job.ExtractionComplete {
			break
		}
		select {
		case <-deadline:
			t.Fatal("run did not complete in time")
		case <-time.After(20 * time.Millisecond):
		}
	}
	if len(job.Assets) == 0 {
		t.Error("completed run should have assets")
	}
}

func TestStart_NoPDF(t *testing.T) {
	h := newHarness(t, fakeBackend{pageCount: 1})
	ctx := context.Background()

	id, _ := h.jobs.CreateJob(ctx, "empty", "")
	if err := h.orch.Start(ctx, id); !errors.Is(err, ErrNoPDF) {
		t.Fatalf("expected ErrNoPDF, got %v", err)
	}
	if err := h.orch.Start(ctx, 999); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClassify_Sync(t *testing.T) {
	h := newHarness(t, fakeBackend{pageCount: 6})

	result, err := h.orch.Classify(sixPagePDF())
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalPages != 6 {
		t.Errorf("TotalPages = %d, want 6", result.TotalPages)
	}
	if len(result.Drawings) != 1 || result.Drawings[0] != 4 {
		t.Errorf("Drawings = %v, want [4]", result.Drawings)
	}

	if _, err := h.orch.Classify([]byte("junk")); err == nil {
		t.Fatal("expected error for corrupt input")
	}
}

func categoryDirOf(category string) string {
	switch category {
	case "drawing":
		return "drawings"
	case "map":
		return "maps"
	default:
		return "photos"
	}
}
