package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"planner/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "jobs/abc/diagrams.md", ArtifactKey("abc", "diagrams.md"))
	assert.Equal(t, "jobs/abc/document.json", ArtifactKey("abc", "document.json"))
}

func TestLocalPut(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.NoError(t, err)

	ref, err := l.Put(context.Background(), ArtifactKey("j1", "code.md"), []byte("# Code"), ContentTypeMarkdown)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "file://"))

	b, err := os.ReadFile(filepath.Join(dir, "jobs", "j1", "code.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Code", string(b))
}

func TestLocalPutIsWriteOnce(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Put(ctx, "jobs/j1/a.md", []byte("first"), ContentTypeMarkdown)
	require.NoError(t, err)
	_, err = l.Put(ctx, "jobs/j1/a.md", []byte("second"), ContentTypeMarkdown)
	assert.ErrorIs(t, err, ErrExists)
}

func TestLocalGetMatchesPut(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = l.Get(ctx, "jobs/j1/a.md")
	assert.ErrorIs(t, err, ErrNotFound)

	ref, err := l.Put(ctx, "jobs/j1/a.md", []byte("first"), ContentTypeMarkdown)
	require.NoError(t, err)
	b, gotRef, err := l.Get(ctx, "jobs/j1/a.md")
	require.NoError(t, err)
	assert.Equal(t, "first", string(b))
	assert.Equal(t, ref, gotRef)
}

func TestLocalRejectsBadKeys(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape.md", "jobs/../../x"} {
		_, err := l.Put(context.Background(), key, []byte("x"), ContentTypeMarkdown)
		assert.Error(t, err, key)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	b, err := New(ctx, config.Config{BlobBackend: "local", DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, b)

	_, err = New(ctx, config.Config{BlobBackend: "supabase"})
	assert.Error(t, err)

	_, err = New(ctx, config.Config{BlobBackend: "minio"})
	assert.Error(t, err)

	_, err = New(ctx, config.Config{BlobBackend: "gcs"})
	assert.Error(t, err)
}

func TestLocalHealthCheck(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	require.NoError(t, l.HealthCheck(context.Background()))

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "artifacts")))
	assert.Error(t, l.HealthCheck(context.Background()))
}
