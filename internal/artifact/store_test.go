package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("payload-"+n), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func TestStoreUploadDownload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		store, err := NewStore(t.TempDir(), time.Hour)
		require.NoError(t, err)

		src := writeFiles(t, "app.nupkg", "app.snupkg")
		require.NoError(t, store.Upload(ctx, "run-1", "packages", src))

		dest := t.TempDir()
		got, err := store.Download(ctx, "run-1", "packages", dest)
		require.NoError(t, err)
		require.Len(t, got, 2)

		content, err := os.ReadFile(filepath.Join(dest, "app.nupkg"))
		require.NoError(t, err)
		assert.Equal(t, "payload-app.nupkg", string(content))
	})

	t.Run("duplicate name within one run is rejected", func(t *testing.T) {
		t.Parallel()
		store, err := NewStore(t.TempDir(), time.Hour)
		require.NoError(t, err)

		src := writeFiles(t, "a.bin")
		require.NoError(t, store.Upload(ctx, "run-1", "out", src))
		assert.ErrorIs(t, store.Upload(ctx, "run-1", "out", src), ErrExists)

		// The same name in a different run is fine.
		assert.NoError(t, store.Upload(ctx, "run-2", "out", src))
	})

	t.Run("absent artifact fails loudly", func(t *testing.T) {
		t.Parallel()
		store, err := NewStore(t.TempDir(), time.Hour)
		require.NoError(t, err)

		_, err = store.Download(ctx, "run-1", "never-uploaded", t.TempDir())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStorePurge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := NewStore(t.TempDir(), time.Hour)
	require.NoError(t, err)

	src := writeFiles(t, "a.bin")
	require.NoError(t, store.Upload(ctx, "run-1", "old", src))
	require.NoError(t, store.Upload(ctx, "run-1", "fresh", src))

	// Nothing has expired yet.
	removed, err := store.Purge(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)

	// Far in the future everything is expired.
	removed, err = store.Purge(ctx, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.Download(ctx, "run-1", "old", t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}
