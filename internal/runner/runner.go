// Package runner owns the scrape lifecycle. It resolves an extractor
// by name, hands it a Session, and turns the outcome into lifecycle
// events.
package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/civicarchive/lexharvest/internal/metrics"
	"github.com/civicarchive/lexharvest/internal/pipeline"
	"github.com/civicarchive/lexharvest/internal/record"
	"github.com/civicarchive/lexharvest/internal/reporting"
	"github.com/civicarchive/lexharvest/internal/session"
)

// Extractor is one jurisdiction's scraper. Implementations live
// outside this module and register themselves by name.
type Extractor interface {
	Info() pipeline.ExtractorInfo
	Scrape(ctx context.Context, s *session.Session, args pipeline.Args) error
}

var (
	registryMu sync.RWMutex
	extractors = make(map[string]Extractor)
)

// Register makes an extractor resolvable by name. It panics on a
// duplicate name, which is a wiring bug.
func Register(e Extractor) {
	name := e.Info().Name
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := extractors[name]; dup {
		panic(fmt.Sprintf("runner: extractor %q registered twice", name))
	}
	extractors[name] = e
}

// Lookup resolves a registered extractor.
func Lookup(name string) (Extractor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := extractors[name]
	if !ok {
		return nil, fmt.Errorf("unknown extractor %q (registered: %v)", name, registeredNamesLocked())
	}
	return e, nil
}

// Names lists registered extractors, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registeredNamesLocked()
}

func registeredNamesLocked() []string {
	names := make([]string, 0, len(extractors))
	for name := range extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runner drives one extractor run.
type Runner struct {
	session  *session.Session
	reporter *reporting.Reporter
}

// New builds a Runner over a session.
func New(s *session.Session) *Runner {
	return &Runner{
		session:  s,
		reporter: s.Reporter("runner"),
	}
}

// Run executes one extractor end to end. A failed run returns the
// extractor's error after emitting scraper_failed; callers decide the
// process exit code.
func (r *Runner) Run(ctx context.Context, e Extractor, args pipeline.Args) error {
	info := e.Info()
	if err := validateArgs(info, args); err != nil {
		return err
	}

	r.reporter.Event(reporting.EventCreateProcess, nil,
		zap.String("extractor", info.Name),
		zap.String("country_code", info.CountryCode),
		zap.Time("started_at", r.session.StartedAt()),
	)

	if err := e.Scrape(ctx, r.session, args); err != nil {
		metrics.ScrapeFailuresTotal.WithLabelValues(info.Name).Inc()
		r.reporter.Event(reporting.EventScraperFailed, err,
			zap.String("extractor", info.Name),
		)
		return fmt.Errorf("scrape %s: %w", info.Name, err)
	}

	r.reporter.Event(reporting.EventScraperRunFinished, nil,
		zap.String("extractor", info.Name),
	)
	return nil
}

// GuardRecord isolates one record's scrape. The failure is reported
// as individual_bill_scrape_failed and swallowed so the extractor's
// loop continues; context cancellation still aborts the run.
func (r *Runner) GuardRecord(ctx context.Context, extractor, recordID string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	metrics.ScrapeFailuresTotal.WithLabelValues(extractor).Inc()
	r.reporter.Event(reporting.EventBillScrapeFailed, err,
		zap.String("extractor", extractor),
		zap.String("record_id", recordID),
	)
	return nil
}

// ReportSchemaFailure records a record that failed validation. The
// record is dropped, not published; the full payload goes into the
// event so the record can be inspected and replayed offline.
func (r *Runner) ReportSchemaFailure(extractor, recordID string, violations []record.Violation, payload []byte) {
	metrics.SchemaFailuresTotal.WithLabelValues(extractor).Inc()
	paths := make([]string, 0, len(violations))
	for _, v := range violations {
		paths = append(paths, v.String())
	}
	r.reporter.Event(reporting.EventSchemaFailed, nil,
		zap.String("extractor", extractor),
		zap.String("record_id", recordID),
		zap.Strings("violations", paths),
		zap.ByteString("payload", payload),
	)
}

// ReportExtractionFailure records an extraction-engine failure for one
// archived binary. The scrape keeps going; the caller decides whether
// the record is published without documents.
func (r *Runner) ReportExtractionFailure(extractor, downloadID string, err error) {
	metrics.ExtractionFailuresTotal.WithLabelValues(extractor).Inc()
	r.reporter.Event(reporting.EventDocumentExtractionFailed, err,
		zap.String("extractor", extractor),
		zap.String("download_id", downloadID),
	)
}

func validateArgs(info pipeline.ExtractorInfo, args pipeline.Args) error {
	declared := make(map[string]bool, len(info.Args))
	for _, spec := range info.Args {
		declared[spec.Name] = true
		if spec.Required && args.Get(spec.Name) == "" {
			return fmt.Errorf("extractor %s requires argument %q", info.Name, spec.Name)
		}
	}
	for name := range args {
		if !declared[name] {
			return fmt.Errorf("extractor %s does not accept argument %q", info.Name, name)
		}
	}
	return nil
}
