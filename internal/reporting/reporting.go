// Package reporting routes pipeline events to the structured logger.
// Each component declares a fixed set of event kinds mapped to a
// severity; severity is never inferred from message text.
package reporting

import (
	"fmt"

	"go.uber.org/zap"
)

// EventKind names one thing that can happen during a run.
type EventKind string

// The closed set of event kinds.
const (
	EventCreateProcess            EventKind = "create_process"
	EventScraperRunFinished       EventKind = "scraper_run_finished"
	EventScraperFailed            EventKind = "scraper_failed"
	EventBillScrapeFailed         EventKind = "individual_bill_scrape_failed"
	EventDocumentExtractionFailed EventKind = "individual_bill_document_extraction_failed"
	EventSchemaFailed             EventKind = "schema_failed"
	EventRequestError             EventKind = "request_error"
)

// Severity is one of debug, warning, critical.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Policy maps event kinds to severities for one component.
type Policy map[EventKind]Severity

// DefaultPolicy returns the severities the runner ships with.
// Lifecycle events are debug, per-record failures warn so a run over
// thousands of bills stays readable. Whole-run failures and dropped
// records page: a schema failure means data loss until someone fixes
// the extractor.
func DefaultPolicy() Policy {
	return Policy{
		EventCreateProcess:            SeverityDebug,
		EventScraperRunFinished:       SeverityDebug,
		EventScraperFailed:            SeverityCritical,
		EventBillScrapeFailed:         SeverityWarning,
		EventDocumentExtractionFailed: SeverityWarning,
		EventSchemaFailed:             SeverityCritical,
		EventRequestError:             SeverityWarning,
	}
}

// Validate rejects unknown severities.
func (p Policy) Validate() error {
	for kind, sev := range p {
		switch sev {
		case SeverityDebug, SeverityWarning, SeverityCritical:
		default:
			return fmt.Errorf("event %s has unknown severity %q", kind, sev)
		}
	}
	return nil
}

// Reporter emits events for one component.
type Reporter struct {
	component string
	policy    Policy
	logger    *zap.Logger
}

// NewReporter builds a Reporter. Kinds missing from the policy fall
// back to warning.
func NewReporter(component string, policy Policy, logger *zap.Logger) *Reporter {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{component: component, policy: policy, logger: logger}
}

// Event reports one occurrence. The optional err attaches the failure
// chain; extra fields carry free-form detail.
func (r *Reporter) Event(kind EventKind, err error, fields ...zap.Field) {
	all := make([]zap.Field, 0, len(fields)+3)
	all = append(all,
		zap.String("event", string(kind)),
		zap.String("component", r.component),
	)
	if err != nil {
		all = append(all, zap.Error(err))
	}
	all = append(all, fields...)

	sev, ok := r.policy[kind]
	if !ok {
		sev = SeverityWarning
	}
	switch sev {
	case SeverityDebug:
		r.logger.Debug(string(kind), all...)
	case SeverityCritical:
		r.logger.Error(string(kind), all...)
	default:
		r.logger.Warn(string(kind), all...)
	}
}
