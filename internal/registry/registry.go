// Package registry is the arbiter of the download and document
// identity spaces. It deduplicates binary artifacts across scrapers,
// hands out stable identifiers, and drives the external extraction
// engine.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// Store persists downloads, documents, and last-download records.
type Store interface {
	// UpsertDownload inserts the download unless a row with the same
	// (origin URL, digest) exists, and returns the canonical row either
	// way.
	UpsertDownload(ctx context.Context, download pipeline.Download) (pipeline.Download, error)
	// GetDownload loads a download by ID.
	GetDownload(ctx context.Context, id string) (pipeline.Download, error)
	// PutLastDownload overwrites the per-origin-URL record.
	PutLastDownload(ctx context.Context, info pipeline.LastDownloadInfo) error
	// GetLastDownload returns pipeline.ErrNoDownload when absent.
	GetLastDownload(ctx context.Context, originURL string) (pipeline.LastDownloadInfo, error)
	// ListDocuments returns previously registered documents for the
	// exact (download ID, extraction type, args key) triple.
	ListDocuments(ctx context.Context, downloadID string, extractionType pipeline.ExtractionType, argsKey string) ([]pipeline.Document, error)
	// InsertDocuments persists engine output under the triple.
	InsertDocuments(ctx context.Context, downloadID string, extractionType pipeline.ExtractionType, argsKey string, docs []pipeline.Document) error
}

// Service implements pipeline.Registry on top of a Store and the
// external extraction engine.
type Service struct {
	store  Store
	engine pipeline.ExtractionEngine
	ids    pipeline.IDGenerator
	clock  pipeline.Clock
	retry  pipeline.RetryPolicy
	logger *zap.Logger
}

// Config wires the service's collaborators.
type Config struct {
	Store  Store
	Engine pipeline.ExtractionEngine
	IDs    pipeline.IDGenerator
	Clock  pipeline.Clock
	Retry  pipeline.RetryPolicy
	Logger *zap.Logger
}

// New builds a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("extraction engine is required")
	}
	if cfg.IDs == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = pipeline.SystemClock{}
	}
	if cfg.Retry == nil {
		cfg.Retry = pipeline.NewExponentialRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		store:  cfg.Store,
		engine: cfg.Engine,
		ids:    cfg.IDs,
		clock:  cfg.Clock,
		retry:  cfg.Retry,
		logger: cfg.Logger,
	}, nil
}

// RegisterDownload records a fetched binary. Two calls with the same
// (origin URL, digest) return the same download ID. The per-origin
// last-download record is overwritten on every call.
func (s *Service) RegisterDownload(ctx context.Context, req pipeline.RegisterDownloadRequest) (pipeline.Download, error) {
	if !req.Digest.Valid() {
		return pipeline.Download{}, fmt.Errorf("register download for %s: malformed digest %q", req.OriginURL, req.Digest)
	}
	if req.OriginURL == "" {
		return pipeline.Download{}, fmt.Errorf("register download: origin url is required")
	}

	serveFromOrigin := pipeline.ServeFromOriginDefault(req.MIMEType)
	if req.ServeFromOrigin != nil {
		serveFromOrigin = *req.ServeFromOrigin
	}

	id, err := s.ids.NewID()
	if err != nil {
		return pipeline.Download{}, fmt.Errorf("allocate download id: %w", err)
	}

	fetchedAt := req.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = s.clock.Now()
	}

	candidate := pipeline.Download{
		ID:              id,
		OriginURL:       req.OriginURL,
		Digest:          req.Digest,
		StorageURL:      req.StorageURL,
		MIMEType:        req.MIMEType,
		Encoding:        req.Encoding,
		ServeFromOrigin: serveFromOrigin,
		Filename:        req.Filename,
		Headers:         http.Header(req.Headers),
		CreatedAt:       fetchedAt.UTC(),
	}

	var stored pipeline.Download
	err = pipeline.Retry(ctx, s.retry, func(ctx context.Context) error {
		var upsertErr error
		stored, upsertErr = s.store.UpsertDownload(ctx, candidate)
		return upsertErr
	})
	if err != nil {
		return pipeline.Download{}, fmt.Errorf("register download for %s: %w", req.OriginURL, err)
	}

	info := pipeline.LastDownloadInfo{
		OriginURL:  req.OriginURL,
		Digest:     req.Digest,
		StorageURL: req.StorageURL,
		Headers:    http.Header(req.Headers),
		FetchedAt:  fetchedAt.UTC(),
		DownloadID: stored.ID,
	}
	err = pipeline.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.store.PutLastDownload(ctx, info)
	})
	if err != nil {
		return pipeline.Download{}, fmt.Errorf("record last download for %s: %w", req.OriginURL, err)
	}

	s.logger.Debug("registered download",
		zap.String("download_id", stored.ID),
		zap.String("origin_url", req.OriginURL),
		zap.String("digest", req.Digest.String()),
		zap.Bool("serve_from_origin", stored.ServeFromOrigin),
	)
	return stored, nil
}

// RegisterDocuments invokes the extraction engine for the download and
// persists the results. Extraction is a function of (digest, type,
// args): repeated calls with identical inputs return the previously
// assigned document IDs without re-invoking the engine. An empty result
// is not an error.
func (s *Service) RegisterDocuments(ctx context.Context, downloadID string, extractionType pipeline.ExtractionType, args map[string]string) ([]pipeline.Document, error) {
	if !extractionType.Known() {
		return nil, fmt.Errorf("%w: %q", pipeline.ErrUnknownExtractionType, extractionType)
	}

	var download pipeline.Download
	err := pipeline.Retry(ctx, s.retry, func(ctx context.Context) error {
		var getErr error
		download, getErr = s.store.GetDownload(ctx, downloadID)
		return getErr
	})
	if err != nil {
		return nil, fmt.Errorf("load download %s: %w", downloadID, err)
	}

	argsKey := canonicalArgsKey(args)
	var existing []pipeline.Document
	err = pipeline.Retry(ctx, s.retry, func(ctx context.Context) error {
		var listErr error
		existing, listErr = s.store.ListDocuments(ctx, downloadID, extractionType, argsKey)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", downloadID, err)
	}
	if existing != nil {
		return existing, nil
	}

	extracted, err := s.engine.Extract(ctx, pipeline.ExtractRequest{
		Digest:         download.Digest,
		StorageURL:     download.StorageURL,
		ExtractionType: extractionType,
		Args:           args,
	})
	if err != nil {
		return nil, fmt.Errorf("extract documents for %s: %w", downloadID, err)
	}

	docs := make([]pipeline.Document, 0, len(extracted))
	for _, doc := range extracted {
		id, idErr := s.ids.NewID()
		if idErr != nil {
			return nil, fmt.Errorf("allocate document id: %w", idErr)
		}
		docs = append(docs, pipeline.Document{
			ID:         id,
			DownloadID: downloadID,
			Text:       doc.Text,
			PageCount:  doc.PageCount,
			Language:   doc.Language,
		})
	}

	err = pipeline.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.store.InsertDocuments(ctx, downloadID, extractionType, argsKey, docs)
	})
	if err != nil {
		return nil, fmt.Errorf("persist documents for %s: %w", downloadID, err)
	}
	return docs, nil
}

// LastDownloadInfo returns the most recent fetch record for originURL,
// or pipeline.ErrNoDownload.
func (s *Service) LastDownloadInfo(ctx context.Context, originURL string) (pipeline.LastDownloadInfo, error) {
	var info pipeline.LastDownloadInfo
	err := pipeline.Retry(ctx, s.retry, func(ctx context.Context) error {
		var getErr error
		info, getErr = s.store.GetLastDownload(ctx, originURL)
		return getErr
	})
	if err != nil {
		return pipeline.LastDownloadInfo{}, err
	}
	return info, nil
}

// canonicalArgsKey flattens extract args into a stable string so the
// idempotency lookup does not depend on map iteration order.
// encoding/json sorts map keys.
func canonicalArgsKey(args map[string]string) string {
	if len(args) == 0 {
		return "{}"
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
