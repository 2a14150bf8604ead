package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/firmenradar/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	fingerprint   TEXT PRIMARY KEY,
	identity      TEXT NOT NULL,
	fields        TEXT NOT NULL,
	aggregated_at DATETIME NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL REFERENCES companies(fingerprint),
	report      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);
CREATE INDEX IF NOT EXISTS idx_companies_updated_at ON companies(updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, record *model.CanonicalCompanyRecord, report *model.AggregationReport) error {
	identityJSON, err := json.Marshal(record.Identity)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal identity")
	}
	fieldsJSON, err := json.Marshal(record.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO companies (fingerprint, identity, fields, aggregated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			identity = excluded.identity,
			fields = excluded.fields,
			aggregated_at = excluded.aggregated_at,
			updated_at = excluded.updated_at`,
		record.Fingerprint, string(identityJSON), string(fieldsJSON),
		record.AggregatedAt.UTC(), now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert company %s", record.Fingerprint)
	}

	if report != nil {
		reportJSON, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal report")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO runs (id, fingerprint, report, started_at, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			report.RunID, record.Fingerprint, string(reportJSON),
			report.StartedAt.UTC(), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert run %s", report.RunID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) GetCompany(ctx context.Context, fingerprint string) (*model.CanonicalCompanyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, identity, fields, aggregated_at FROM companies WHERE fingerprint = ?`,
		fingerprint,
	)
	record, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", fingerprint)
	}
	return record, nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, limit, offset int) ([]model.CanonicalCompanyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, identity, fields, aggregated_at FROM companies
		 ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var out []model.CanonicalCompanyRecord
	for rows.Next() {
		record, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		out = append(out, *record)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate companies")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.AggregationReport, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM runs WHERE id = ?`, runID,
	).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	var report model.AggregationReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse run %s", runID)
	}
	return &report, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, fingerprint string, limit int) ([]model.AggregationReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM runs WHERE fingerprint = ? ORDER BY started_at DESC LIMIT ?`,
		fingerprint, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list runs %s", fingerprint)
	}
	defer rows.Close()

	var out []model.AggregationReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var report model.AggregationReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse run")
		}
		out = append(out, report)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner) (*model.CanonicalCompanyRecord, error) {
	var (
		record       model.CanonicalCompanyRecord
		identityJSON string
		fieldsJSON   string
	)
	if err := row.Scan(&record.Fingerprint, &identityJSON, &fieldsJSON, &record.AggregatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(identityJSON), &record.Identity); err != nil {
		return nil, eris.Wrap(err, "parse identity")
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &record.Fields); err != nil {
		return nil, eris.Wrap(err, "parse fields")
	}
	return &record, nil
}
