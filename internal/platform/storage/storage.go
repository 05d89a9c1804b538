package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"planner/internal/config"
)

const (
	ContentTypeMarkdown = "text/markdown; charset=utf-8"
	ContentTypeJSON     = "application/json"
)

// ErrExists is returned when a key has already been written. Artifacts are
// write-once so a retried task never replaces what a previous attempt stored.
var ErrExists = errors.New("artifact already exists")

// ErrNotFound is returned by Get for a key that was never written.
var ErrNotFound = errors.New("artifact not found")

// BlobStore persists generated artifacts and returns a reference to them.
// Put and Get report the same reference for a key.
type BlobStore interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) (content []byte, ref string, err error)
}

// HealthChecker is implemented by backends that can probe their bucket.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ArtifactKey builds the canonical key for one artifact of a job.
func ArtifactKey(jobID, name string) string {
	return path.Join("jobs", jobID, name)
}

func validKey(key string) error {
	if key == "" {
		return errors.New("empty artifact key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("invalid artifact key %q", key)
		}
	}
	return nil
}

// New selects the blob backend named by cfg.BlobBackend.
func New(ctx context.Context, cfg config.Config) (BlobStore, error) {
	switch cfg.BlobBackend {
	case "supabase":
		return NewSupabase(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
	case "minio":
		return NewMinio(ctx, MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "local", "":
		return NewLocal(path.Join(cfg.DataDir, "artifacts"))
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND %q", cfg.BlobBackend)
	}
}
