package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gridlane/workpack/assetstore"
	"github.com/gridlane/workpack/extract"
)

// Config is the daemon configuration, loaded from YAML with environment
// overrides for deployment-specific values.
type Config struct {
	Listen         string        `yaml:"listen"`
	DBPath         string        `yaml:"db_path"`
	ObsDBPath      string        `yaml:"obs_db_path"`
	UploadsDir     string        `yaml:"uploads_dir"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	StaleWindow    time.Duration `yaml:"stale_window"`
	EventRetention time.Duration `yaml:"event_retention"`

	Minio   assetstore.MinioConfig `yaml:"minio"`
	Assets  assetstore.Config      `yaml:"assets"`
	Extract extract.Config         `yaml:"extract"`
}

func defaultConfig() Config {
	return Config{
		Listen:         ":8086",
		DBPath:         "db/workpack.db",
		ObsDBPath:      "db/observability.db",
		UploadsDir:     "uploads",
		MaxUploadBytes: 64 << 20,
		StaleWindow:    30 * time.Minute,
		EventRetention: 30 * 24 * time.Hour,
	}
}

// LoadConfig reads the YAML file at path (missing file is fine, defaults
// apply) and then overlays environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Listen = ":" + v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("UPLOADS_DIR"); v != "" {
		cfg.UploadsDir = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.Minio.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Minio.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.Minio.Bucket = v
	}

	cfg.Assets.LocalRoot = cfg.UploadsDir
	return cfg, nil
}
