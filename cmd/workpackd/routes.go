package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gridlane/workpack/assetstore"
	"github.com/gridlane/workpack/extract"
	"github.com/gridlane/workpack/jobstore"
)

var errUploadTooLarge = errors.New("upload exceeds the size limit")

func newRouter(cfg Config, jobs *jobstore.Store, assets *assetstore.Store, orch *extract.Orchestrator) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"backend": orch.BackendAvailable(),
		})
	})

	r.Post("/jobs", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Title == "" {
			writeError(w, http.StatusBadRequest, errors.New("title is required"))
			return
		}
		id, err := jobs.CreateJob(r.Context(), req.Title, "")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	})

	r.Get("/jobs/{jobID}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		job, err := jobs.Get(r.Context(), id)
		if errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	// Upload a PDF and trigger extraction. The response is an immediate
	// acknowledgment; results land on the job record asynchronously.
	r.Post("/jobs/{jobID}/extract", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if _, err := jobs.Get(r.Context(), id); errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		if err := r.ParseMultipartForm(cfg.MaxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		file, _, err := r.FormFile("pdf")
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("pdf form file: %w", err))
			return
		}
		defer file.Close()

		pdfPath := filepath.Join(cfg.UploadsDir, fmt.Sprintf("job_%d.pdf", id))
		if err := saveUpload(file, pdfPath, cfg.MaxUploadBytes); err != nil {
			if errors.Is(err, errUploadTooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err := jobs.SetPDFPath(r.Context(), id, pdfPath); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		if err := orch.Start(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "status": "started"})
	})

	// Durable objects stored for a job, straight from the bucket.
	r.Get("/jobs/{jobID}/storage", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		files, err := assets.ListDurable(r.Context(), fmt.Sprintf("job_%d/", id))
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files})
	})

	// Local fallback assets.
	filesDir := http.Dir(cfg.UploadsDir)
	r.Get("/files/*", func(w http.ResponseWriter, r *http.Request) {
		http.StripPrefix("/files/", http.FileServer(filesDir)).ServeHTTP(w, r)
	})

	return r
}

// saveUpload writes the upload to dst. An upload larger than limit is
// rejected rather than silently truncated into a corrupt document; the
// partial file is removed.
func saveUpload(src io.Reader, dst string, limit int64) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(src, limit+1))
	if err != nil {
		os.Remove(dst)
		return err
	}
	if n > limit {
		os.Remove(dst)
		return errUploadTooLarge
	}
	return f.Sync()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
