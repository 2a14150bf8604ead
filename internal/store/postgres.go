package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/firmenradar/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it,
// which keeps the Postgres store unit-testable without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	fingerprint   TEXT PRIMARY KEY,
	identity      JSONB NOT NULL,
	fields        JSONB NOT NULL,
	aggregated_at TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL REFERENCES companies(fingerprint),
	report      JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);
CREATE INDEX IF NOT EXISTS idx_companies_updated_at ON companies(updated_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, record *model.CanonicalCompanyRecord, report *model.AggregationReport) error {
	identityJSON, err := json.Marshal(record.Identity)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal identity")
	}
	fieldsJSON, err := json.Marshal(record.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO companies (fingerprint, identity, fields, aggregated_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (fingerprint) DO UPDATE SET
			identity = EXCLUDED.identity,
			fields = EXCLUDED.fields,
			aggregated_at = EXCLUDED.aggregated_at,
			updated_at = now()`,
		record.Fingerprint, identityJSON, fieldsJSON, record.AggregatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert company %s", record.Fingerprint)
	}

	if report != nil {
		reportJSON, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal report")
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO runs (id, fingerprint, report, started_at)
			VALUES ($1, $2, $3, $4)`,
			report.RunID, record.Fingerprint, reportJSON, report.StartedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert run %s", report.RunID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit upsert")
}

func (s *PostgresStore) GetCompany(ctx context.Context, fingerprint string) (*model.CanonicalCompanyRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT fingerprint, identity, fields, aggregated_at FROM companies WHERE fingerprint = $1`,
		fingerprint,
	)
	record, err := scanPgCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", fingerprint)
	}
	return record, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context, limit, offset int) ([]model.CanonicalCompanyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT fingerprint, identity, fields, aggregated_at FROM companies
		 ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.CanonicalCompanyRecord
	for rows.Next() {
		record, err := scanPgCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, *record)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate companies")
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.AggregationReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM runs WHERE id = $1`, runID,
	).Scan(&reportJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	var report model.AggregationReport
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, eris.Wrapf(err, "postgres: parse run %s", runID)
	}
	return &report, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, fingerprint string, limit int) ([]model.AggregationReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT report FROM runs WHERE fingerprint = $1 ORDER BY started_at DESC LIMIT $2`,
		fingerprint, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list runs %s", fingerprint)
	}
	defer rows.Close()

	var out []model.AggregationReport
	for rows.Next() {
		var reportJSON []byte
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var report model.AggregationReport
		if err := json.Unmarshal(reportJSON, &report); err != nil {
			return nil, eris.Wrap(err, "postgres: parse run")
		}
		out = append(out, report)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func scanPgCompany(row pgx.Row) (*model.CanonicalCompanyRecord, error) {
	var (
		record       model.CanonicalCompanyRecord
		identityJSON []byte
		fieldsJSON   []byte
	)
	if err := row.Scan(&record.Fingerprint, &identityJSON, &fieldsJSON, &record.AggregatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(identityJSON, &record.Identity); err != nil {
		return nil, eris.Wrap(err, "parse identity")
	}
	if err := json.Unmarshal(fieldsJSON, &record.Fields); err != nil {
		return nil, eris.Wrap(err, "parse fields")
	}
	return &record, nil
}
