package aggregate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/source"
)

// Sink persists the merged record and its report. Implemented by the
// store package; nil disables persistence.
type Sink interface {
	UpsertCompany(ctx context.Context, record *model.CanonicalCompanyRecord, report *model.AggregationReport) error
}

// Orchestrator fans out one pipeline per registered source, bounds the run
// with a global deadline, merges the partial results and persists the
// outcome.
type Orchestrator struct {
	adapters   []source.Adapter
	controller *Controller
	policy     *Policy
	sink       Sink
}

// NewOrchestrator creates an orchestrator over the given adapters.
func NewOrchestrator(adapters []source.Adapter, controller *Controller, policy *Policy, sink Sink) *Orchestrator {
	return &Orchestrator{
		adapters:   adapters,
		controller: controller,
		policy:     policy,
		sink:       sink,
	}
}

// Aggregate runs one full aggregation for a company. A run-level error
// means the run could not start (invalid identity) or the result could not
// be persisted; per-source failures are recorded in the report instead.
// The record and report are always returned together once the run started,
// even when every source failed.
func (o *Orchestrator) Aggregate(ctx context.Context, identity model.CompanyIdentity) (*model.CanonicalCompanyRecord, *model.AggregationReport, error) {
	if err := identity.Validate(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	report := &model.AggregationReport{
		RunID:     uuid.NewString(),
		Identity:  identity,
		Sources:   make(map[string]model.SourceResult, len(o.adapters)),
		StartedAt: start,
	}

	zap.L().Info("aggregation run started",
		zap.String("run_id", report.RunID),
		zap.String("company", identity.CompanyName),
		zap.Int("sources", len(o.adapters)))

	runCtx, cancel := context.WithTimeout(ctx, o.policy.GlobalDeadline)
	defer cancel()

	type sourced struct {
		id     string
		result model.SourceResult
	}
	resultCh := make(chan sourced, len(o.adapters))
	for _, a := range o.adapters {
		go func(a source.Adapter) {
			resultCh <- sourced{id: a.ID(), result: o.controller.Run(runCtx, a, identity)}
		}(a)
	}

	// Collect until every pipeline reports or the deadline fires. A
	// pipeline still in flight at the deadline is recorded as timed out
	// without waiting for it to unwind.
	pending := make(map[string]bool, len(o.adapters))
	for _, a := range o.adapters {
		pending[a.ID()] = true
	}
	expired := false
	for len(pending) > 0 && !expired {
		select {
		case sr := <-resultCh:
			delete(pending, sr.id)
			report.Sources[sr.id] = sr.result
		case <-runCtx.Done():
			expired = true
		}
	}
	for id := range pending {
		report.Sources[id] = timedOutResult(id, time.Since(start))
		zap.L().Warn("source exceeded global deadline",
			zap.String("run_id", report.RunID),
			zap.String("source", id))
	}

	outcome := merge(o.policy, report.Sources)
	report.FieldSources = outcome.fieldSources
	report.Missing = outcome.missing
	report.Conflicts = outcome.conflicts
	report.Elapsed = time.Since(start)

	record := &model.CanonicalCompanyRecord{
		Identity:     identity,
		Fingerprint:  identity.Fingerprint(),
		Fields:       outcome.fields,
		AggregatedAt: time.Now(),
	}

	zap.L().Info("aggregation run finished",
		zap.String("run_id", report.RunID),
		zap.Int("fields", len(record.Fields)),
		zap.Int("conflicts", len(report.Conflicts)),
		zap.Bool("all_failed", report.AllFailed()),
		zap.Duration("elapsed", report.Elapsed))

	if o.sink != nil {
		if err := o.sink.UpsertCompany(ctx, record, report); err != nil {
			return record, report, err
		}
	}
	return record, report, nil
}

func timedOutResult(sourceID string, elapsed time.Duration) model.SourceResult {
	return model.SourceResult{
		SourceID:    sourceID,
		Status:      model.StatusFailed,
		FailureKind: resilience.KindTimeout,
		Error:       "global deadline exceeded",
		Elapsed:     elapsed,
	}
}
