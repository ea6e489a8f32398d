// Package session bundles the shared clients one extractor run uses.
// A Session is passed explicitly; nothing in the pipeline reaches for
// process globals.
package session

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/civicarchive/lexharvest/internal/fetchcache"
	"github.com/civicarchive/lexharvest/internal/fetcher"
	"github.com/civicarchive/lexharvest/internal/pipeline"
	"github.com/civicarchive/lexharvest/internal/record"
	"github.com/civicarchive/lexharvest/internal/reporting"
)

// Config assembles a Session from its parts.
type Config struct {
	Fetcher   *fetcher.Fetcher
	Cache     *fetchcache.Cache
	Blobs     pipeline.BlobStore
	Registry  pipeline.Registry
	Publisher pipeline.Publisher
	Records   *record.Factory
	Clock     pipeline.Clock
	Policy    reporting.Policy
	Logger    *zap.Logger

	// Closers are released, last first, when the session closes.
	Closers []func() error
}

// Session is the per-extractor view of the shared clients. The start
// time anchors the cache's freshness predicate: anything archived at
// or after it counts as fresh for this run.
type Session struct {
	Fetcher   *fetcher.Fetcher
	Cache     *fetchcache.Cache
	Blobs     pipeline.BlobStore
	Registry  pipeline.Registry
	Publisher pipeline.Publisher
	Records   *record.Factory
	Clock     pipeline.Clock
	Policy    reporting.Policy
	Logger    *zap.Logger

	startedAt time.Time
	closers   []func() error
}

// New builds a Session and pins its start time in UTC.
func New(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = pipeline.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Policy == nil {
		cfg.Policy = reporting.DefaultPolicy()
	}
	if cfg.Records == nil {
		cfg.Records = record.NewFactory()
	}
	return &Session{
		Fetcher:   cfg.Fetcher,
		Cache:     cfg.Cache,
		Blobs:     cfg.Blobs,
		Registry:  cfg.Registry,
		Publisher: cfg.Publisher,
		Records:   cfg.Records,
		Clock:     cfg.Clock,
		Policy:    cfg.Policy,
		Logger:    cfg.Logger,
		startedAt: cfg.Clock.Now().UTC(),
		closers:   cfg.Closers,
	}
}

// StartedAt returns the run's UTC start time.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Reporter builds a reporter for a component under this session's
// policy.
func (s *Session) Reporter(component string) *reporting.Reporter {
	return reporting.NewReporter(component, s.Policy, s.Logger)
}

// Close flushes the publisher and releases owned resources in reverse
// registration order. All errors are collected.
func (s *Session) Close() error {
	var errs []error
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
