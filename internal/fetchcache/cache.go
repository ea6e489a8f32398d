// Package fetchcache implements the conditional HTTP cache bound to the
// content-addressed blob store. An unchanged remote resource is neither
// re-downloaded nor re-uploaded, and prior bytes stay retrievable by
// digest.
package fetchcache

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/civicarchive/lexharvest/internal/digest"
	"github.com/civicarchive/lexharvest/internal/fetcher"
	"github.com/civicarchive/lexharvest/internal/metrics"
	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// Cache coordinates the fetcher, blob store, and registry for one
// scrape run.
type Cache struct {
	fetcher  *fetcher.Fetcher
	blobs    pipeline.BlobStore
	registry pipeline.Registry
	tempDir  string
	logger   *zap.Logger
}

// Config wires the cache's collaborators.
type Config struct {
	Fetcher  *fetcher.Fetcher
	Blobs    pipeline.BlobStore
	Registry pipeline.Registry
	// TempDir receives downloaded files; empty means os.TempDir.
	TempDir string
	Logger  *zap.Logger
}

// New builds a Cache.
func New(cfg Config) (*Cache, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Cache{
		fetcher:  cfg.Fetcher,
		blobs:    cfg.Blobs,
		registry: cfg.Registry,
		tempDir:  cfg.TempDir,
		logger:   cfg.Logger,
	}, nil
}

// RequestWithCache fetches url, serving archived bytes when the remote
// resource is unchanged. skip forces a fresh download. sessionStart
// drives the freshness predicate: a prior fetch recorded at or after
// the session start is served from the archive without any HTTP
// request. All timestamps are UTC.
func (c *Cache) RequestWithCache(ctx context.Context, url string, args fetcher.RequestArgs, skip bool, sessionStart time.Time) (*pipeline.File, error) {
	info, err := c.registry.LastDownloadInfo(ctx, url)
	switch {
	case skip, errors.Is(err, pipeline.ErrNoDownload):
		return c.download(ctx, url, args)
	case err != nil:
		return nil, fmt.Errorf("look up last download for %s: %w", url, err)
	}

	// Freshness predicate: a record written during this run never
	// triggers a re-fetch, even across process re-entry.
	if !info.FetchedAt.UTC().Before(sessionStart.UTC()) {
		metrics.CacheHitsTotal.WithLabelValues("fresh").Inc()
		c.logger.Debug("serving archived bytes, fetched within this run",
			zap.String("url", url),
			zap.String("digest", info.Digest.String()),
		)
		return c.fromArchive(ctx, info)
	}

	conditional := args
	conditional.Headers = cloneHeaders(args.Headers)
	if etag := info.ETag(); etag != "" {
		conditional.Headers.Set("If-None-Match", etag)
	}
	if lastModified := info.LastModified(); lastModified != "" {
		conditional.Headers.Set("If-Modified-Since", lastModified)
	}

	resp, err := c.fetcher.Get(ctx, url, conditional)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotModified {
		_ = resp.Close()
		metrics.CacheHitsTotal.WithLabelValues("not_modified").Inc()
		c.logger.Debug("remote not modified, serving archived bytes",
			zap.String("url", url),
			zap.String("digest", info.Digest.String()),
		)
		return c.fromArchive(ctx, info)
	}
	metrics.CacheMissesTotal.Inc()
	return c.archive(ctx, resp)
}

func (c *Cache) download(ctx context.Context, url string, args fetcher.RequestArgs) (*pipeline.File, error) {
	resp, err := c.fetcher.Get(ctx, url, args)
	if err != nil {
		return nil, err
	}
	metrics.CacheMissesTotal.Inc()
	return c.archive(ctx, resp)
}

// archive streams resp into a temp file, hashes it, and uploads the
// blob. The registry is not touched here; registration is the caller's
// next step.
func (c *Cache) archive(ctx context.Context, resp *fetcher.Response) (*pipeline.File, error) {
	path, size, err := c.fetcher.DownloadToFile(resp, c.tempDir)
	if err != nil {
		return nil, err
	}

	body, err := os.Open(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("reopen download: %w", err)
	}
	ref, err := c.blobs.Store(ctx, body, resp.Headers.Get("Content-Type"), resp.Headers.Get("Content-Disposition"))
	closeErr := body.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("archive blob: %w", err)
	}
	if closeErr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close download: %w", closeErr)
	}
	metrics.BlobUploadsTotal.Inc()

	return &pipeline.File{
		Path:       path,
		FinalURL:   resp.FinalURL,
		Digest:     ref.Digest,
		StorageURL: ref.StorageURL,
		Headers:    resp.Headers,
		MIMEType:   resp.MIMEType,
		Encoding:   resp.Encoding,
		Cached:     false,
		Size:       size,
	}, nil
}

// fromArchive streams the recorded blob into a fresh temp file and
// preserves the original headers and download ID.
func (c *Cache) fromArchive(ctx context.Context, info pipeline.LastDownloadInfo) (*pipeline.File, error) {
	tmp, err := os.CreateTemp(c.tempDir, "lexharvest-cached-*")
	if err != nil {
		return nil, fmt.Errorf("create cache output file: %w", err)
	}
	path := tmp.Name()

	err = c.blobs.Fetch(ctx, info.Digest, tmp)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("restore archived bytes: %w", err)
	}
	if closeErr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close cache output file: %w", closeErr)
	}

	verified, size, err := digest.File(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	if verified != info.Digest {
		os.Remove(path)
		return nil, fmt.Errorf("archived bytes for %s do not match recorded digest %s", info.OriginURL, info.Digest)
	}

	mimeType, encoding := splitContentType(info.Headers.Get("Content-Type"))
	return &pipeline.File{
		Path:       path,
		FinalURL:   info.OriginURL,
		Digest:     info.Digest,
		StorageURL: info.StorageURL,
		Headers:    info.Headers,
		MIMEType:   mimeType,
		Encoding:   encoding,
		DownloadID: info.DownloadID,
		Cached:     true,
		Size:       size,
	}, nil
}

func splitContentType(header string) (mimeType, encoding string) {
	if header == "" {
		return "", ""
	}
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", ""
	}
	return mediaType, params["charset"]
}

func cloneHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h)+2)
	for key, values := range h {
		out[key] = append([]string(nil), values...)
	}
	return out
}
