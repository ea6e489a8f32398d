package local

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestStoreWritesUnderDigestKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	ref, err := store.Store(context.Background(), strings.NewReader("gazette issue 7"), "application/pdf", "")
	require.NoError(t, err)
	require.Equal(t, int64(15), ref.Size)

	onDisk := filepath.Join(dir, "file-by-sha384", ref.Digest.String())
	data, err := os.ReadFile(onDisk)
	require.NoError(t, err)
	require.Equal(t, "gazette issue 7", string(data))
	require.Equal(t, "file://"+onDisk, ref.StorageURL)

	// No spool files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStoreTwiceYieldsSameURL(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	first, err := store.Store(context.Background(), strings.NewReader("same"), "", "")
	require.NoError(t, err)
	second, err := store.Store(context.Background(), strings.NewReader("same"), "", "")
	require.NoError(t, err)
	require.Equal(t, first.StorageURL, second.StorageURL)
}

func TestFetchMissing(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	err = store.Fetch(context.Background(), pipeline.Digest(strings.Repeat("aa", 48)), &bytes.Buffer{})
	require.ErrorIs(t, err, pipeline.ErrMissingBlob)
}
