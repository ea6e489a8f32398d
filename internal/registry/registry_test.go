package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicarchive/lexharvest/internal/pipeline"
	registrymem "github.com/civicarchive/lexharvest/internal/registry/memory"
)

var testDigest = pipeline.Digest(strings.Repeat("cd", 48))

type sequenceIDs struct {
	next atomic.Int64
}

func (s *sequenceIDs) NewID() (string, error) {
	return fmt.Sprintf("id-%d", s.next.Add(1)), nil
}

type fakeEngine struct {
	calls atomic.Int32
	docs  []pipeline.ExtractedDocument
	err   error
}

func (e *fakeEngine) Extract(_ context.Context, _ pipeline.ExtractRequest) ([]pipeline.ExtractedDocument, error) {
	e.calls.Add(1)
	return e.docs, e.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func fastRetry() pipeline.RetryPolicy {
	return pipeline.NewRetryPolicy(1, time.Millisecond, time.Millisecond, time.Second)
}

func newService(t *testing.T, engine pipeline.ExtractionEngine) *Service {
	t.Helper()
	svc, err := New(Config{
		Store:  registrymem.NewStore(),
		Engine: engine,
		IDs:    &sequenceIDs{},
		Clock:  fixedClock{now: time.Unix(1700000000, 0).UTC()},
		Retry:  fastRetry(),
	})
	require.NoError(t, err)
	return svc
}

func registerReq(originURL string) pipeline.RegisterDownloadRequest {
	return pipeline.RegisterDownloadRequest{
		OriginURL:  originURL,
		Digest:     testDigest,
		StorageURL: "memory://file-by-sha384/" + testDigest.String(),
		MIMEType:   "application/pdf",
		Headers:    map[string][]string{"Content-Type": {"application/pdf"}},
	}
}

func TestRegisterDownloadIsIdempotent(t *testing.T) {
	t.Parallel()

	svc := newService(t, &fakeEngine{})
	first, err := svc.RegisterDownload(context.Background(), registerReq("https://example.gov/d/2.pdf"))
	require.NoError(t, err)
	second, err := svc.RegisterDownload(context.Background(), registerReq("https://example.gov/d/2.pdf"))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestRegisterDownloadServeFromOriginDefaults(t *testing.T) {
	t.Parallel()

	svc := newService(t, &fakeEngine{})

	pdf, err := svc.RegisterDownload(context.Background(), registerReq("https://example.gov/a.pdf"))
	require.NoError(t, err)
	require.False(t, pdf.ServeFromOrigin)

	htmlReq := registerReq("https://example.gov/page")
	htmlReq.MIMEType = "text/html"
	html, err := svc.RegisterDownload(context.Background(), htmlReq)
	require.NoError(t, err)
	require.True(t, html.ServeFromOrigin)

	// Explicit caller choice beats the MIME default.
	override := registerReq("https://example.gov/page2")
	override.MIMEType = "text/html"
	serveFromArchive := false
	override.ServeFromOrigin = &serveFromArchive
	forced, err := svc.RegisterDownload(context.Background(), override)
	require.NoError(t, err)
	require.False(t, forced.ServeFromOrigin)
}

func TestRegisterDownloadRecordsLastDownload(t *testing.T) {
	t.Parallel()

	svc := newService(t, &fakeEngine{})
	download, err := svc.RegisterDownload(context.Background(), registerReq("https://example.gov/n/1"))
	require.NoError(t, err)

	info, err := svc.LastDownloadInfo(context.Background(), "https://example.gov/n/1")
	require.NoError(t, err)
	require.Equal(t, download.ID, info.DownloadID)
	require.Equal(t, testDigest, info.Digest)
	require.Equal(t, http.Header{"Content-Type": {"application/pdf"}}, info.Headers)
}

func TestLastDownloadInfoMissing(t *testing.T) {
	t.Parallel()

	svc := newService(t, &fakeEngine{})
	_, err := svc.LastDownloadInfo(context.Background(), "https://example.gov/unseen")
	require.ErrorIs(t, err, pipeline.ErrNoDownload)
}

func TestRegisterDocumentsRejectsUnknownType(t *testing.T) {
	t.Parallel()

	svc := newService(t, &fakeEngine{})
	_, err := svc.RegisterDocuments(context.Background(), "any", pipeline.ExtractionType("docx2txt"), nil)
	require.ErrorIs(t, err, pipeline.ErrUnknownExtractionType)
}

func TestRegisterDocumentsIsIdempotent(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{docs: []pipeline.ExtractedDocument{
		{Text: "an act to amend", PageCount: 12, Language: "en"},
	}}
	svc := newService(t, engine)

	download, err := svc.RegisterDownload(context.Background(), registerReq("https://example.gov/d/2.pdf"))
	require.NoError(t, err)

	first, err := svc.RegisterDocuments(context.Background(), download.ID, pipeline.ExtractionUnknown, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.RegisterDocuments(context.Background(), download.ID, pipeline.ExtractionUnknown, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, engine.calls.Load(), "engine must not be re-invoked for identical inputs")
}

func TestRegisterDocumentsEmptyResultIsNotAnError(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{docs: []pipeline.ExtractedDocument{}}
	svc := newService(t, engine)

	download, err := svc.RegisterDownload(context.Background(), registerReq("https://example.gov/scan.pdf"))
	require.NoError(t, err)

	docs, err := svc.RegisterDocuments(context.Background(), download.ID, pipeline.ExtractionTesseract, nil)
	require.NoError(t, err)
	require.Empty(t, docs)

	// The empty batch is remembered.
	docs, err = svc.RegisterDocuments(context.Background(), download.ID, pipeline.ExtractionTesseract, nil)
	require.NoError(t, err)
	require.Empty(t, docs)
	require.EqualValues(t, 1, engine.calls.Load())
}

func TestRegisterDocumentsDistinctArgsYieldDistinctBatches(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{docs: []pipeline.ExtractedDocument{{Text: "page"}}}
	svc := newService(t, engine)

	download, err := svc.RegisterDownload(context.Background(), registerReq("https://example.gov/d/3.pdf"))
	require.NoError(t, err)

	first, err := svc.RegisterDocuments(context.Background(), download.ID, pipeline.ExtractionTextPDF, map[string]string{"pages": "1-3"})
	require.NoError(t, err)
	second, err := svc.RegisterDocuments(context.Background(), download.ID, pipeline.ExtractionTextPDF, map[string]string{"pages": "4-6"})
	require.NoError(t, err)
	require.NotEqual(t, first[0].ID, second[0].ID)
	require.EqualValues(t, 2, engine.calls.Load())
}

func TestRegisterDocumentsEngineFailureSurfaces(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{err: errors.New("ocr backend unavailable")}
	svc := newService(t, engine)

	download, err := svc.RegisterDownload(context.Background(), registerReq("https://example.gov/d/4.pdf"))
	require.NoError(t, err)

	_, err = svc.RegisterDocuments(context.Background(), download.ID, pipeline.ExtractionTesseract, nil)
	require.Error(t, err)
}

func TestRegisterDownloadRejectsMalformedDigest(t *testing.T) {
	t.Parallel()

	svc := newService(t, &fakeEngine{})
	req := registerReq("https://example.gov/x")
	req.Digest = "not-a-digest"
	_, err := svc.RegisterDownload(context.Background(), req)
	require.Error(t, err)
}
