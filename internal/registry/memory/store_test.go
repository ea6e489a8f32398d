package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

func TestUpsertDownloadReturnsPriorRow(t *testing.T) {
	t.Parallel()

	s := NewStore()
	d := pipeline.Digest(strings.Repeat("ab", 48))

	first, err := s.UpsertDownload(context.Background(), pipeline.Download{
		ID: "dl-1", OriginURL: "https://example.test/bill", Digest: d,
	})
	require.NoError(t, err)

	second, err := s.UpsertDownload(context.Background(), pipeline.Download{
		ID: "dl-2", OriginURL: "https://example.test/bill", Digest: d,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	loaded, err := s.GetDownload(context.Background(), "dl-1")
	require.NoError(t, err)
	require.Equal(t, first, loaded)
}

func TestLastDownloadRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, err := s.GetLastDownload(context.Background(), "https://example.test/bill")
	require.ErrorIs(t, err, pipeline.ErrNoDownload)

	info := pipeline.LastDownloadInfo{OriginURL: "https://example.test/bill", DownloadID: "dl-1"}
	require.NoError(t, s.PutLastDownload(context.Background(), info))

	got, err := s.GetLastDownload(context.Background(), "https://example.test/bill")
	require.NoError(t, err)
	require.Equal(t, info, got)
}

func TestEmptyBatchStaysRegistered(t *testing.T) {
	t.Parallel()

	s := NewStore()

	docs, err := s.ListDocuments(context.Background(), "dl-1", pipeline.ExtractionHTML, "{}")
	require.NoError(t, err)
	require.Nil(t, docs, "unregistered batch must be nil")

	require.NoError(t, s.InsertDocuments(context.Background(), "dl-1", pipeline.ExtractionHTML, "{}", nil))

	docs, err = s.ListDocuments(context.Background(), "dl-1", pipeline.ExtractionHTML, "{}")
	require.NoError(t, err)
	require.NotNil(t, docs, "registered empty batch must be distinguishable")
	require.Empty(t, docs)
}
