package model

import (
	"time"

	"github.com/sells-group/firmenradar/internal/resilience"
)

// SourceStatus is the terminal outcome of one source pipeline.
type SourceStatus string

const (
	StatusSuccess        SourceStatus = "success"
	StatusPartialSuccess SourceStatus = "partial_success"
	StatusFailed         SourceStatus = "failed"
	StatusSkipped        SourceStatus = "skipped"
)

// AttemptOutcome classifies a single attempt within a pipeline.
type AttemptOutcome string

const (
	AttemptSucceeded AttemptOutcome = "succeeded"
	AttemptFailed    AttemptOutcome = "failed"
)

// Attempt is one entry in a pipeline's ordered attempt log.
type Attempt struct {
	Number    int                    `json:"number"`
	StartedAt time.Time              `json:"started_at"`
	Outcome   AttemptOutcome         `json:"outcome"`
	Kind      resilience.FailureKind `json:"kind,omitempty"`
	Detail    string                 `json:"detail,omitempty"`
}

// SourceResult is the per-source outcome of one aggregation run. It is
// created at pipeline start, finalized exactly once, and read-only after
// being handed to the orchestrator.
type SourceResult struct {
	SourceID    string                 `json:"source_id"`
	Status      SourceStatus           `json:"status"`
	Fields      PartialFieldMap        `json:"fields,omitempty"`
	Artifacts   map[string]string      `json:"artifacts,omitempty"`
	Attempts    []Attempt              `json:"attempts,omitempty"`
	FailureKind resilience.FailureKind `json:"failure_kind,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Elapsed     time.Duration          `json:"elapsed_ms"`
}

// FieldConflict records evidence discarded during merge: two sources reported
// different non-empty values and one lost. Never silently dropped.
type FieldConflict struct {
	Key       string     `json:"key"`
	Winner    FieldValue `json:"winner"`
	Discarded FieldValue `json:"discarded"`
	Reason    string     `json:"reason"`
}

// AggregationReport summarizes one run: per-source outcomes, which source won
// each field, what stayed unpopulated, and every merge conflict.
type AggregationReport struct {
	RunID        string                  `json:"run_id"`
	Identity     CompanyIdentity         `json:"identity"`
	Sources      map[string]SourceResult `json:"sources"`
	FieldSources map[string]string       `json:"field_sources"`
	Missing      []string                `json:"missing_fields"`
	Conflicts    []FieldConflict         `json:"conflicts,omitempty"`
	StartedAt    time.Time               `json:"started_at"`
	Elapsed      time.Duration           `json:"elapsed_ms"`
}

// AllFailed reports whether every source pipeline ended as Failed.
func (r *AggregationReport) AllFailed() bool {
	if len(r.Sources) == 0 {
		return true
	}
	for _, sr := range r.Sources {
		if sr.Status != StatusFailed {
			return false
		}
	}
	return true
}
