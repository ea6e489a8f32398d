package postgres

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

var testDigest = pipeline.Digest(strings.Repeat("ab", 48))

func TestUpsertDownloadReturnsCanonicalRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	candidate := pipeline.Download{
		ID:              "candidate-id",
		OriginURL:       "https://example.gov/d/2.pdf",
		Digest:          testDigest,
		StorageURL:      "gs://bucket/file-by-sha384/" + testDigest.String(),
		MIMEType:        "application/pdf",
		ServeFromOrigin: false,
		Headers:         http.Header{"Content-Type": {"application/pdf"}},
		CreatedAt:       now,
	}

	rows := pgxmock.NewRows([]string{
		"id", "origin_url", "digest", "storage_url", "mime_type", "encoding",
		"serve_from_origin", "filename", "headers", "created_at",
	}).AddRow(
		// The conflict path returns the previously stored row.
		"prior-id", candidate.OriginURL, string(candidate.Digest), candidate.StorageURL,
		"application/pdf", "", false, "", []byte(`{"Content-Type":["application/pdf"]}`), now,
	)

	mock.ExpectQuery("INSERT INTO downloads").
		WithArgs(
			candidate.ID, candidate.OriginURL, string(candidate.Digest), candidate.StorageURL,
			candidate.MIMEType, candidate.Encoding, candidate.ServeFromOrigin,
			candidate.Filename, []byte(`{"Content-Type":["application/pdf"]}`), candidate.CreatedAt,
		).
		WillReturnRows(rows)

	stored, err := store.UpsertDownload(context.Background(), candidate)
	require.NoError(t, err)
	require.Equal(t, "prior-id", stored.ID)
	require.Equal(t, candidate.Digest, stored.Digest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLastDownloadMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT origin_url, digest").
		WithArgs("https://example.gov/unseen").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetLastDownload(context.Background(), "https://example.gov/unseen")
	require.ErrorIs(t, err, pipeline.ErrNoDownload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutLastDownloadUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000123, 0).UTC()
	info := pipeline.LastDownloadInfo{
		OriginURL:  "https://example.gov/n/1",
		Digest:     testDigest,
		StorageURL: "gs://bucket/file-by-sha384/" + testDigest.String(),
		Headers:    http.Header{"Etag": {`W/"abc"`}},
		FetchedAt:  now,
		DownloadID: "download-42",
	}

	mock.ExpectExec("INSERT INTO last_downloads").
		WithArgs(
			info.OriginURL, string(info.Digest), info.StorageURL,
			[]byte(`{"Etag":["W/\"abc\""]}`), info.FetchedAt, info.DownloadID,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.PutLastDownload(context.Background(), info))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDocumentsUnregisteredBatchIsNil(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("download-1", "html", "{}").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	docs, err := store.ListDocuments(context.Background(), "download-1", pipeline.ExtractionHTML, "{}")
	require.NoError(t, err)
	require.Nil(t, docs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertThenListDocuments(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	docs := []pipeline.Document{
		{ID: "doc-1", DownloadID: "download-1", Text: "section 1", PageCount: 2, Language: "en"},
	}

	mock.ExpectExec("INSERT INTO document_batches").
		WithArgs("download-1", "text_pdf", "{}").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO documents").
		WithArgs("doc-1", "download-1", "text_pdf", "{}", "section 1", 2, "en", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertDocuments(context.Background(), "download-1", pipeline.ExtractionTextPDF, "{}", docs))

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("download-1", "text_pdf", "{}").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT id, download_id, text, page_count, language").
		WithArgs("download-1", "text_pdf", "{}").
		WillReturnRows(pgxmock.NewRows([]string{"id", "download_id", "text", "page_count", "language"}).
			AddRow("doc-1", "download-1", "section 1", 2, "en"))

	listed, err := store.ListDocuments(context.Background(), "download-1", pipeline.ExtractionTextPDF, "{}")
	require.NoError(t, err)
	require.Equal(t, docs, listed)
	require.NoError(t, mock.ExpectationsWereMet())
}
