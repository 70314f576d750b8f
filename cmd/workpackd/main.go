// Command workpackd serves the work-order page-triage API: job records,
// PDF upload, detached asset extraction, and local asset delivery.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/gridlane/workpack/assetstore"
	"github.com/gridlane/workpack/dbopen"
	"github.com/gridlane/workpack/extract"
	"github.com/gridlane/workpack/jobstore"
	"github.com/gridlane/workpack/observability"
	"github.com/gridlane/workpack/raster"
)

func main() {
	cfgPath := "workpack.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Job DB.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("job db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	jobs, err := jobstore.New(db)
	if err != nil {
		slog.Error("job store", "error", err)
		os.Exit(1)
	}

	// Crash recovery: runs abandoned mid-flight by a previous process get
	// their Started state cleared before we accept new work.
	if n, err := jobs.SweepStale(ctx, cfg.StaleWindow); err != nil {
		slog.Error("stale sweep", "error", err)
	} else if n > 0 {
		slog.Info("stale extractions reset", "count", n)
	}

	// Observability DB is a separate file to keep event writes off the job DB.
	obsDB, err := dbopen.Open(cfg.ObsDBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()

	events, err := observability.NewEventLogger(obsDB)
	if err != nil {
		slog.Error("event logger", "error", err)
		os.Exit(1)
	}
	if n, err := events.Cleanup(ctx, cfg.EventRetention); err != nil {
		slog.Warn("event cleanup", "error", err)
	} else if n > 0 {
		slog.Info("expired events removed", "count", n)
	}

	// Durable storage is optional: an empty endpoint means local-only.
	storage, err := assetstore.NewMinioStorage(cfg.Minio)
	if err != nil {
		slog.Error("minio", "error", err)
		os.Exit(1)
	}
	assets := assetstore.New(storage, cfg.Assets)

	orch := extract.New(jobs, assets, raster.FitzBackend{}, raster.MemoryFactory{},
		cfg.Extract, extract.WithEventLogger(events))

	// Optional MCP over stdio, for agent-driven triage.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "workpack", Version: "1.0.0"}, nil)
		orch.RegisterMCP(mcpSrv)
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("mcp stdio", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		slog.Error("uploads dir", "error", err)
		os.Exit(1)
	}

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(cfg, jobs, assets, orch),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "backend", orch.BackendAvailable())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
