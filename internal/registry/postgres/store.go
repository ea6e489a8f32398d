// Package postgres provides the Postgres-backed registry store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store uses, extracted so
// pgxmock can stand in during tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists downloads, documents, and last-download records in
// Postgres.
//
// Expected schema:
//
//	CREATE TABLE downloads (
//		id UUID PRIMARY KEY,
//		origin_url TEXT NOT NULL,
//		digest CHAR(96) NOT NULL,
//		storage_url TEXT NOT NULL,
//		mime_type TEXT NOT NULL DEFAULT '',
//		encoding TEXT NOT NULL DEFAULT '',
//		serve_from_origin BOOLEAN NOT NULL,
//		filename TEXT NOT NULL DEFAULT '',
//		headers JSONB NOT NULL DEFAULT '{}',
//		created_at TIMESTAMPTZ NOT NULL,
//		UNIQUE (origin_url, digest)
//	);
//
//	CREATE TABLE documents (
//		id UUID PRIMARY KEY,
//		download_id UUID NOT NULL REFERENCES downloads(id),
//		extraction_type TEXT NOT NULL,
//		args_key TEXT NOT NULL,
//		text TEXT NOT NULL DEFAULT '',
//		page_count INT NOT NULL DEFAULT 0,
//		language TEXT NOT NULL DEFAULT '',
//		position INT NOT NULL
//	);
//
//	CREATE TABLE document_batches (
//		download_id UUID NOT NULL REFERENCES downloads(id),
//		extraction_type TEXT NOT NULL,
//		args_key TEXT NOT NULL,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		PRIMARY KEY (download_id, extraction_type, args_key)
//	);
//
//	CREATE TABLE last_downloads (
//		origin_url TEXT PRIMARY KEY,
//		digest CHAR(96) NOT NULL,
//		storage_url TEXT NOT NULL,
//		headers JSONB NOT NULL DEFAULT '{}',
//		fetched_at TIMESTAMPTZ NOT NULL,
//		download_id UUID NOT NULL
//	);
type Store struct {
	pool pool
}

// New creates a Postgres-backed store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing with pgxmock).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertDownload inserts the candidate row; on an (origin_url, digest)
// conflict the existing row wins and is returned, so the download ID is
// stable across runs.
func (s *Store) UpsertDownload(ctx context.Context, d pipeline.Download) (pipeline.Download, error) {
	headersJSON, err := json.Marshal(d.Headers)
	if err != nil {
		return pipeline.Download{}, fmt.Errorf("marshal headers: %w", err)
	}
	const query = `
INSERT INTO downloads (
	id, origin_url, digest, storage_url, mime_type, encoding,
	serve_from_origin, filename, headers, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (origin_url, digest) DO UPDATE SET origin_url = EXCLUDED.origin_url
RETURNING id, origin_url, digest, storage_url, mime_type, encoding,
	serve_from_origin, filename, headers, created_at`

	row := s.pool.QueryRow(ctx, query,
		d.ID, d.OriginURL, string(d.Digest), d.StorageURL, d.MIMEType, d.Encoding,
		d.ServeFromOrigin, d.Filename, headersJSON, d.CreatedAt,
	)
	return scanDownload(row)
}

// GetDownload loads a download by ID.
func (s *Store) GetDownload(ctx context.Context, id string) (pipeline.Download, error) {
	const query = `
SELECT id, origin_url, digest, storage_url, mime_type, encoding,
	serve_from_origin, filename, headers, created_at
FROM downloads WHERE id = $1`
	return scanDownload(s.pool.QueryRow(ctx, query, id))
}

// PutLastDownload overwrites the per-origin-URL record.
func (s *Store) PutLastDownload(ctx context.Context, info pipeline.LastDownloadInfo) error {
	headersJSON, err := json.Marshal(info.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	const query = `
INSERT INTO last_downloads (origin_url, digest, storage_url, headers, fetched_at, download_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (origin_url) DO UPDATE SET
	digest = EXCLUDED.digest,
	storage_url = EXCLUDED.storage_url,
	headers = EXCLUDED.headers,
	fetched_at = EXCLUDED.fetched_at,
	download_id = EXCLUDED.download_id`
	_, err = s.pool.Exec(ctx, query,
		info.OriginURL, string(info.Digest), info.StorageURL, headersJSON,
		info.FetchedAt, info.DownloadID,
	)
	if err != nil {
		return fmt.Errorf("upsert last download: %w", err)
	}
	return nil
}

// GetLastDownload returns pipeline.ErrNoDownload when the origin URL
// has never been recorded.
func (s *Store) GetLastDownload(ctx context.Context, originURL string) (pipeline.LastDownloadInfo, error) {
	const query = `
SELECT origin_url, digest, storage_url, headers, fetched_at, download_id
FROM last_downloads WHERE origin_url = $1`

	var (
		info        pipeline.LastDownloadInfo
		digestStr   string
		headersJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, originURL).Scan(
		&info.OriginURL, &digestStr, &info.StorageURL, &headersJSON,
		&info.FetchedAt, &info.DownloadID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.LastDownloadInfo{}, fmt.Errorf("%w: %s", pipeline.ErrNoDownload, originURL)
	}
	if err != nil {
		return pipeline.LastDownloadInfo{}, fmt.Errorf("query last download: %w", err)
	}
	info.Digest = pipeline.Digest(digestStr)
	if err := json.Unmarshal(headersJSON, &info.Headers); err != nil {
		return pipeline.LastDownloadInfo{}, fmt.Errorf("unmarshal headers: %w", err)
	}
	info.FetchedAt = info.FetchedAt.UTC()
	return info, nil
}

// ListDocuments returns the previously registered batch for the triple,
// or nil when the batch has never been registered. An empty non-nil
// slice means the engine returned no documents.
func (s *Store) ListDocuments(ctx context.Context, downloadID string, extractionType pipeline.ExtractionType, argsKey string) ([]pipeline.Document, error) {
	const batchQuery = `
SELECT EXISTS (
	SELECT 1 FROM document_batches
	WHERE download_id = $1 AND extraction_type = $2 AND args_key = $3
)`
	var registered bool
	if err := s.pool.QueryRow(ctx, batchQuery, downloadID, string(extractionType), argsKey).Scan(&registered); err != nil {
		return nil, fmt.Errorf("query document batch: %w", err)
	}
	if !registered {
		return nil, nil
	}

	const query = `
SELECT id, download_id, text, page_count, language
FROM documents
WHERE download_id = $1 AND extraction_type = $2 AND args_key = $3
ORDER BY position`
	rows, err := s.pool.Query(ctx, query, downloadID, string(extractionType), argsKey)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]pipeline.Document, 0)
	for rows.Next() {
		var doc pipeline.Document
		if err := rows.Scan(&doc.ID, &doc.DownloadID, &doc.Text, &doc.PageCount, &doc.Language); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// InsertDocuments persists an extraction batch, including empty ones.
func (s *Store) InsertDocuments(ctx context.Context, downloadID string, extractionType pipeline.ExtractionType, argsKey string, docs []pipeline.Document) error {
	const batchQuery = `
INSERT INTO document_batches (download_id, extraction_type, args_key)
VALUES ($1, $2, $3)
ON CONFLICT (download_id, extraction_type, args_key) DO NOTHING`
	if _, err := s.pool.Exec(ctx, batchQuery, downloadID, string(extractionType), argsKey); err != nil {
		return fmt.Errorf("insert document batch: %w", err)
	}

	const query = `
INSERT INTO documents (id, download_id, extraction_type, args_key, text, page_count, language, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`
	for i, doc := range docs {
		_, err := s.pool.Exec(ctx, query,
			doc.ID, downloadID, string(extractionType), argsKey,
			doc.Text, doc.PageCount, doc.Language, i,
		)
		if err != nil {
			return fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
	}
	return nil
}

func scanDownload(row pgx.Row) (pipeline.Download, error) {
	var (
		d           pipeline.Download
		digestStr   string
		headersJSON []byte
	)
	err := row.Scan(
		&d.ID, &d.OriginURL, &digestStr, &d.StorageURL, &d.MIMEType, &d.Encoding,
		&d.ServeFromOrigin, &d.Filename, &headersJSON, &d.CreatedAt,
	)
	if err != nil {
		return pipeline.Download{}, fmt.Errorf("scan download: %w", err)
	}
	d.Digest = pipeline.Digest(digestStr)
	var headers http.Header
	if err := json.Unmarshal(headersJSON, &headers); err != nil {
		return pipeline.Download{}, fmt.Errorf("unmarshal headers: %w", err)
	}
	d.Headers = headers
	d.CreatedAt = d.CreatedAt.UTC()
	return d, nil
}
