package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"planner/internal/logger"

	"github.com/antoineross/supabase-go"
	storage_go "github.com/supabase-community/storage-go"
)

// Supabase stores artifacts in a Supabase storage bucket.
type Supabase struct {
	client *supabase.Client
	bucket string
	log    *logger.Logger
}

func NewSupabase(url, serviceKey, bucket string) (*Supabase, error) {
	if url == "" || serviceKey == "" {
		return nil, fmt.Errorf("supabase URL and service key are required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("supabase bucket not configured")
	}
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Supabase{client: client, bucket: bucket, log: logger.New("SupabaseStorage")}, nil
}

func (s *Supabase) Put(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// upsert stays off so the bucket rejects a second write of the same key
	upsert := false
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(content), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		if isDuplicate(err) {
			return "", fmt.Errorf("%s: %w", key, ErrExists)
		}
		return "", fmt.Errorf("supabase upload %s: %w", key, err)
	}
	s.log.LogDebugf("Uploaded %s (%d bytes) to bucket %s", key, len(content), s.bucket)
	return s.ref(key), nil
}

func (s *Supabase) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := validKey(key); err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	b, err := s.client.Storage.DownloadFile(s.bucket, key)
	if err != nil {
		if isNotFound(err) {
			return nil, "", fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, "", fmt.Errorf("supabase download %s: %w", key, err)
	}
	return b, s.ref(key), nil
}

func (s *Supabase) ref(key string) string { return s.bucket + "/" + key }

func isNotFound(err error) bool {
	var se *storage_go.StorageError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}

func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "already exists")
}
