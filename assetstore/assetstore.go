// Package assetstore persists rasterized page images. Durable object
// storage is tried first; every call site degrades to a locally addressable
// path when storage is unconfigured or failing, so extraction never loses an
// asset to a storage outage.
package assetstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"
)

// FileInfo describes one stored object.
type FileInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStorage is the durable-storage collaborator. All calls may fail
// (network/auth); callers must have a local fallback path.
type ObjectStorage interface {
	IsConfigured() bool
	Upload(ctx context.Context, localPath, jobID, category, filename string) (key string, err error)
	PublicURL(key string) string
	ListFiles(ctx context.Context, prefix string) ([]FileInfo, error)
}

// AssetRef is the stable reference returned for one persisted image.
type AssetRef struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	StorageKey string `json:"storage_key,omitempty"`
	Local      bool   `json:"local,omitempty"`
}

// Config configures a Store.
type Config struct {
	// LocalRoot is the directory for fallback assets (default: "uploads").
	LocalRoot string `json:"local_root" yaml:"local_root"`

	// LocalURLBase prefixes fallback asset URLs (default: "/files").
	LocalURLBase string `json:"local_url_base" yaml:"local_url_base"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.LocalRoot == "" {
		c.LocalRoot = "uploads"
	}
	if c.LocalURLBase == "" {
		c.LocalURLBase = "/files"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store persists assets durably with a local fallback. Stateless and
// idempotent per call: re-uploading the same file under another category
// produces an independent object.
type Store struct {
	storage ObjectStorage
	cfg     Config
}

// New creates a Store. storage may be nil when no durable backend is
// configured; everything then lands under the local root.
func New(storage ObjectStorage, cfg Config) *Store {
	cfg.defaults()
	return &Store{storage: storage, cfg: cfg}
}

// categoryDir maps a page category to its per-job asset directory.
func categoryDir(category string) string {
	switch category {
	case "drawing":
		return "drawings"
	case "map":
		return "maps"
	default:
		return "photos"
	}
}

// Save persists one rasterized page file. On a successful durable upload the
// local temporary file is deleted and the returned reference carries the
// storage key and public URL. On failure the file is moved under the job's
// local asset directory and retained as the asset itself.
func (s *Store) Save(ctx context.Context, localPath, jobID, category string) (AssetRef, error) {
	name := filepath.Base(localPath)

	if s.storage != nil && s.storage.IsConfigured() {
		key, err := s.storage.Upload(ctx, localPath, jobID, category, name)
		if err == nil {
			if rmErr := os.Remove(localPath); rmErr != nil {
				s.cfg.Logger.Warn("temp file cleanup failed", "path", localPath, "error", rmErr)
			}
			return AssetRef{Name: name, URL: s.storage.PublicURL(key), StorageKey: key}, nil
		}
		s.cfg.Logger.Warn("durable upload failed, falling back to local storage",
			"job", jobID, "file", name, "error", err)
	}

	ref, err := s.saveLocal(localPath, jobID, category, name)
	if err != nil {
		// Terminal failure: the temp file must not linger.
		os.Remove(localPath)
		return AssetRef{}, err
	}
	return ref, nil
}

func (s *Store) saveLocal(localPath, jobID, category, name string) (AssetRef, error) {
	dir := filepath.Join(s.cfg.LocalRoot, "job_"+jobID, categoryDir(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return AssetRef{}, fmt.Errorf("assetstore: mkdir: %w", err)
	}

	dst := filepath.Join(dir, name)
	if err := moveFile(localPath, dst); err != nil {
		return AssetRef{}, fmt.Errorf("assetstore: move: %w", err)
	}

	url := path.Join(s.cfg.LocalURLBase, "job_"+jobID, categoryDir(category), name)
	return AssetRef{Name: name, URL: url, Local: true}, nil
}

// ListDurable lists objects under a prefix in durable storage. Returns nil
// when no durable backend is configured.
func (s *Store) ListDurable(ctx context.Context, prefix string) ([]FileInfo, error) {
	if s.storage == nil || !s.storage.IsConfigured() {
		return nil, nil
	}
	return s.storage.ListFiles(ctx, prefix)
}

// moveFile renames, falling back to copy+remove across filesystems (temp
// dirs often live on a different mount than the uploads root).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
