// Package store persists aggregated company records and run reports.
// Two backends exist: SQLite for single-operator CLI use and Postgres for
// shared deployments. Both key companies by identity fingerprint so
// re-running an aggregation updates in place instead of duplicating.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firmenradar/internal/model"
)

// ErrNotFound is returned when no row matches the lookup.
var ErrNotFound = eris.New("store: not found")

// Store is the persistence interface for aggregation results.
type Store interface {
	// UpsertCompany writes the record keyed by fingerprint and appends the
	// run report. Running the same company twice updates the existing row.
	UpsertCompany(ctx context.Context, record *model.CanonicalCompanyRecord, report *model.AggregationReport) error

	// GetCompany returns the record for an identity fingerprint.
	GetCompany(ctx context.Context, fingerprint string) (*model.CanonicalCompanyRecord, error)

	// ListCompanies returns stored records, newest first.
	ListCompanies(ctx context.Context, limit, offset int) ([]model.CanonicalCompanyRecord, error)

	// GetRun returns one run report by run id.
	GetRun(ctx context.Context, runID string) (*model.AggregationReport, error)

	// ListRuns returns run reports for a fingerprint, newest first.
	ListRuns(ctx context.Context, fingerprint string, limit int) ([]model.AggregationReport, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
