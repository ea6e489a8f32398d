// Package metrics exposes Prometheus collectors for the harvest pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests, labeled by method and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexharvest_http_requests_total",
			Help: "Total number of HTTP requests issued, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	// CacheHitsTotal counts conditional-cache hits, labeled by reason
	// (fresh or not_modified).
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexharvest_cache_hits_total",
			Help: "Total number of downloads served from the archive.",
		},
		[]string{"reason"},
	)

	// CacheMissesTotal counts conditional-cache misses.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexharvest_cache_misses_total",
			Help: "Total number of downloads that required a fresh fetch.",
		},
	)

	// BlobUploadsTotal counts distinct blob uploads.
	BlobUploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexharvest_blob_uploads_total",
			Help: "Total number of new blobs uploaded to the object store.",
		},
	)

	// OversizeDownloadsTotal counts downloads dropped at the size ceiling.
	OversizeDownloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexharvest_oversize_downloads_total",
			Help: "Total number of downloads dropped for exceeding the size ceiling.",
		},
	)

	// RecordsPublishedTotal counts records committed to the outbound queue.
	RecordsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexharvest_records_published_total",
			Help: "Total number of records published, labeled by extractor.",
		},
		[]string{"extractor"},
	)

	// SchemaFailuresTotal counts records dropped at validation.
	SchemaFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexharvest_schema_failures_total",
			Help: "Total number of records that failed schema validation.",
		},
		[]string{"extractor"},
	)

	// ExtractionFailuresTotal counts extraction-engine failures per binary.
	ExtractionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexharvest_extraction_failures_total",
			Help: "Total number of document extraction failures, labeled by extractor.",
		},
		[]string{"extractor"},
	)

	// ScrapeFailuresTotal counts per-record scrape failures.
	ScrapeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexharvest_scrape_failures_total",
			Help: "Total number of individual record failures, labeled by extractor.",
		},
		[]string{"extractor"},
	)
)
