package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-site-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "archive", "html")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		require.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	})

	t.Run("requires base dir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})

	t.Run("rejects a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	body := []byte("<html><title>Home</title></html>")
	uri, err := store.PutObject(ctx, "html/job-1/abc.html", "text/html", body)
	require.NoError(t, err)
	want := filepath.Join(dir, "html", "job-1", "abc.html")
	require.Equal(t, "file://"+want, uri)

	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, body, got)

	entries, err := os.ReadDir(filepath.Dir(want))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")

	_, err = store.PutObject(ctx, "", "text/html", body)
	require.Error(t, err)
	_, err = store.PutObject(ctx, "../escape.html", "text/html", body)
	require.ErrorContains(t, err, "escapes")
}
