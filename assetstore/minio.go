package assetstore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures the S3-compatible durable backend. An empty
// Endpoint leaves the backend unconfigured and every save falls back to
// local storage.
type MinioConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`

	// PublicBaseURL overrides the endpoint-derived URL for public asset
	// links (e.g. a CDN in front of the bucket).
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`
}

// MinioStorage implements ObjectStorage against an S3-compatible endpoint.
type MinioStorage struct {
	client *minio.Client
	cfg    MinioConfig
}

// NewMinioStorage builds the storage client. Returns (nil, nil) when no
// endpoint is configured; a nil *MinioStorage is a valid "unconfigured"
// ObjectStorage.
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("assetstore: minio bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("assetstore: minio client: %w", err)
	}
	return &MinioStorage{client: client, cfg: cfg}, nil
}

func (m *MinioStorage) IsConfigured() bool {
	return m != nil && m.client != nil
}

// Upload stores one file under job_<id>/<category>/<filename>.
func (m *MinioStorage) Upload(ctx context.Context, localPath, jobID, category, filename string) (string, error) {
	key := path.Join("job_"+jobID, categoryDir(category), filename)
	_, err := m.client.FPutObject(ctx, m.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", fmt.Errorf("assetstore: put %s: %w", key, err)
	}
	return key, nil
}

// PublicURL derives the externally reachable URL for a stored key.
func (m *MinioStorage) PublicURL(key string) string {
	if m.cfg.PublicBaseURL != "" {
		return strings.TrimRight(m.cfg.PublicBaseURL, "/") + "/" + key
	}
	scheme := "http"
	if m.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, m.cfg.Endpoint, m.cfg.Bucket, key)
}

// ListFiles lists stored objects under a prefix.
func (m *MinioStorage) ListFiles(ctx context.Context, prefix string) ([]FileInfo, error) {
	var files []FileInfo
	for obj := range m.client.ListObjects(ctx, m.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("assetstore: list %s: %w", prefix, obj.Err)
		}
		files = append(files, FileInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return files, nil
}
