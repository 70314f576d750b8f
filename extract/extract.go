// Package extract drives the page-triage pipeline for one job's PDF: analyze
// all pages, classify, rasterize a bounded subset per category, persist each
// image, and write the asset list back to the job record.
//
// Runs are detached from the triggering request: Start records the Started
// transition synchronously so a crash mid-run is observable, then hands off
// to a background goroutine with a fresh context. The caller never waits.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gridlane/workpack/assetstore"
	"github.com/gridlane/workpack/classify"
	"github.com/gridlane/workpack/jobstore"
	"github.com/gridlane/workpack/observability"
	"github.com/gridlane/workpack/pdfdoc"
	"github.com/gridlane/workpack/raster"
)

// ErrNoPDF is returned by Start when the job has no uploaded document.
var ErrNoPDF = errors.New("extract: job has no pdf")

// Orchestrator runs extractions. The raster backend is probed once at
// construction; on a host without the native library every run completes
// with an empty asset list instead of failing or hanging in Started.
type Orchestrator struct {
	jobs    *jobstore.Store
	assets  *assetstore.Store
	backend raster.Backend
	factory raster.SurfaceFactory
	events  *observability.EventLogger
	cfg     Config

	analyzer   *pdfdoc.Analyzer
	classifier *classify.Classifier

	backendErr error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEventLogger enables run-event recording.
func WithEventLogger(l *observability.EventLogger) Option {
	return func(o *Orchestrator) { o.events = l }
}

// New creates an Orchestrator and probes the raster backend.
func New(jobs *jobstore.Store, assets *assetstore.Store, backend raster.Backend, factory raster.SurfaceFactory, cfg Config, opts ...Option) *Orchestrator {
	cfg.defaults()
	o := &Orchestrator{
		jobs:       jobs,
		assets:     assets,
		backend:    backend,
		factory:    factory,
		cfg:        cfg,
		analyzer:   pdfdoc.NewAnalyzer(cfg.Analyzer),
		classifier: classify.New(cfg.Thresholds),
	}
	for _, opt := range opts {
		opt(o)
	}
	if backend == nil {
		o.backendErr = raster.ErrBackendUnavailable
	} else {
		o.backendErr = raster.Probe(backend)
	}
	if o.backendErr != nil {
		cfg.Logger.Warn("raster backend unavailable, extractions will produce no assets",
			"error", o.backendErr)
	}
	return o
}

// BackendAvailable reports whether the raster backend passed its probe.
func (o *Orchestrator) BackendAvailable() bool { return o.backendErr == nil }

// Classify loads a PDF from memory and classifies every page. Synchronous;
// used by callers that want triage without rasterization.
func (o *Orchestrator) Classify(data []byte) (classify.Result, error) {
	doc, err := pdfdoc.Load(data)
	if err != nil {
		return classify.Result{}, err
	}
	sigs := o.analyzer.AnalyzeAll(doc)
	return o.classifier.ClassifyAll(sigs, doc.PageCount()), nil
}

// Start triggers an extraction run for a job. The Started transition is
// recorded before returning; the pipeline itself runs detached and writes
// its result back to the job record asynchronously.
func (o *Orchestrator) Start(ctx context.Context, jobID int64) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.PDFPath == "" {
		return ErrNoPDF
	}
	if err := o.jobs.StartRun(ctx, jobID); err != nil {
		return err
	}

	go o.run(context.Background(), jobID, job.PDFPath)
	return nil
}

// Run executes the pipeline synchronously. Exposed for callers that manage
// their own scheduling; Start is the normal entry point.
func (o *Orchestrator) Run(ctx context.Context, jobID int64, pdfPath string) {
	o.run(ctx, jobID, pdfPath)
}

func (o *Orchestrator) run(ctx context.Context, jobID int64, pdfPath string) {
	start := time.Now()
	log := o.cfg.Logger.With("job_id", jobID)
	o.logEvent(ctx, jobID, "started", "", true)

	if o.backendErr != nil {
		// No native raster library on this host. Complete with an empty
		// asset list rather than leaving the job in Started forever.
		log.Warn("skipping extraction, raster backend unavailable")
		o.finish(ctx, jobID, nil, time.Since(start), log)
		return
	}

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		o.fail(ctx, jobID, fmt.Errorf("read pdf: %w", err), log)
		return
	}

	doc, err := pdfdoc.Load(data)
	if err != nil {
		o.fail(ctx, jobID, err, log)
		return
	}
	doc.SourcePath = pdfPath

	sigs := o.analyzer.AnalyzeAll(doc)
	result := o.classifier.ClassifyAll(sigs, doc.PageCount())
	if detail, err := json.Marshal(result); err == nil {
		o.logEvent(ctx, jobID, "classified", string(detail), true)
	}
	log.Info("pages classified",
		"total", result.TotalPages,
		"drawings", len(result.Drawings),
		"maps", len(result.Maps),
		"photos", len(result.Photos),
		"forms", len(result.Forms))

	tempDir, err := os.MkdirTemp(o.cfg.TempDir, fmt.Sprintf("workpack_job_%d_", jobID))
	if err != nil {
		o.fail(ctx, jobID, fmt.Errorf("temp dir: %w", err), log)
		return
	}
	defer os.RemoveAll(tempDir)

	// The three category batches are independent and run concurrently.
	// Each opens its own page handle: the fitz backend is not safe for
	// concurrent use through a single handle. Within a batch, pages stay
	// ascending so output naming is deterministic.
	batches := []struct {
		category string
		pages    []int
	}{
		{"drawing", capPages(result.Drawings, o.cfg.MaxDrawings)},
		{"map", capPages(result.Maps, o.cfg.MaxMaps)},
		{"photo", capPages(result.Photos, o.cfg.MaxPhotos)},
	}

	assetsByBatch := make([][]jobstore.Asset, len(batches))
	var wg sync.WaitGroup
	for i, b := range batches {
		if len(b.pages) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, category string, pages []int) {
			defer wg.Done()
			assetsByBatch[i] = o.convertBatch(ctx, jobID, data, category, pages, tempDir, log)
		}(i, b.category, b.pages)
	}
	wg.Wait()

	var all []jobstore.Asset
	for _, batch := range assetsByBatch {
		all = append(all, batch...)
	}
	o.finish(ctx, jobID, all, time.Since(start), log)
}

// convertBatch rasterizes and persists one category's selected pages.
// Per-page failures are logged and skipped; they never abort the batch.
func (o *Orchestrator) convertBatch(ctx context.Context, jobID int64, data []byte, category string, pageNrs []int, tempDir string, log *slog.Logger) []jobstore.Asset {
	pages, err := o.backend.Open(data)
	if err != nil {
		log.Warn("batch skipped, backend open failed", "category", category, "error", err)
		return nil
	}
	defer pages.Close()

	renderer := raster.NewRenderer(o.factory, o.cfg.Raster)
	defer renderer.Close()

	var assets []jobstore.Asset
	for _, pageNr := range pageNrs {
		img, err := renderer.Render(pages, pageNr)
		if err != nil {
			log.Warn("page render failed, skipping",
				"category", category, "page", pageNr, "error", err)
			continue
		}

		name := fmt.Sprintf("%s_page_%d.jpg", category, pageNr)
		tempPath := filepath.Join(tempDir, name)
		if err := os.WriteFile(tempPath, img.Data, 0o644); err != nil {
			log.Warn("temp write failed, skipping",
				"category", category, "page", pageNr, "error", err)
			continue
		}

		ref, err := o.assets.Save(ctx, tempPath, strconv.FormatInt(jobID, 10), category)
		if err != nil {
			log.Warn("asset save failed, skipping",
				"category", category, "page", pageNr, "error", err)
			continue
		}
		o.logEvent(ctx, jobID, "uploaded", ref.URL, true)

		assets = append(assets, jobstore.Asset{
			Type:       category,
			Name:       ref.Name,
			URL:        ref.URL,
			StorageKey: ref.StorageKey,
			PageNumber: pageNr,
		})
	}
	return assets
}

func (o *Orchestrator) finish(ctx context.Context, jobID int64, assets []jobstore.Asset, elapsed time.Duration, log *slog.Logger) {
	if err := o.jobs.FinishRun(ctx, jobID, assets, elapsed); err != nil {
		log.Error("finish run write failed", "error", err)
		return
	}
	o.logEvent(ctx, jobID, "completed", fmt.Sprintf(`{"assets":%d}`, len(assets)), true)
	log.Info("extraction complete", "assets", len(assets), "elapsed_ms", elapsed.Milliseconds())
}

func (o *Orchestrator) fail(ctx context.Context, jobID int64, cause error, log *slog.Logger) {
	log.Error("extraction failed", "error", cause)
	if err := o.jobs.FailRun(ctx, jobID, cause.Error()); err != nil {
		log.Error("fail run write failed", "error", err)
	}
	o.logEvent(ctx, jobID, "failed", cause.Error(), false)
}

func (o *Orchestrator) logEvent(ctx context.Context, jobID int64, stage, detail string, success bool) {
	if o.events == nil {
		return
	}
	o.events.LogEvent(ctx, observability.Event{
		JobID: jobID, Stage: stage, Detail: detail, Success: success,
	})
}

func capPages(pages []int, n int) []int {
	if len(pages) <= n {
		return pages
	}
	return pages[:n]
}
