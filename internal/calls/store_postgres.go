package calls

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"call-relay/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Schema returns the DDL for the call_runs and call_events tables.
func Schema() (string, error) {
	b, err := schemaFS.ReadFile("schema/postgres.sql")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EnsureSchema applies the embedded DDL. Statements are idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	ddl, err := Schema()
	if err != nil {
		return err
	}
	err = utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, ddl)
		return err
	})
	if err != nil {
		return fmt.Errorf("calls: apply schema: %w", err)
	}
	return nil
}

// PostgresStore is a RunStore backed by the call_runs table.
// The *sql.DB is expected to use the pgx stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresStore) SaveRun(ctx context.Context, r Run) error {
	if err := validateRun(r); err != nil {
		return err
	}
	corr, err := json.Marshal(correlationOrEmpty(r.Correlation))
	if err != nil {
		return err
	}
	const q = `
INSERT INTO call_runs (
  run_id, call_id, phone, destination_url, correlation, stage, outcome, error, dispatched_at, updated_at
) VALUES (
  $1,NULLIF($2,''),$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err = s.db.ExecContext(ctx, q,
		r.RunID,
		r.CallID,
		r.Phone,
		r.DestinationURL,
		string(corr),
		string(r.Stage),
		string(r.OutcomeTag),
		r.Error,
		r.DispatchedAt.UTC(),
		r.UpdatedAt.UTC(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateRun
	}
	return err
}

func (s *PostgresStore) UpdateStage(ctx context.Context, runID string, stage Stage, outcome OutcomeTag, errMsg string, now time.Time) error {
	const q = `
UPDATE call_runs
SET stage = $2,
    outcome = CASE WHEN $3::text = '' THEN outcome ELSE $3::text END,
    error = $4,
    updated_at = $5
WHERE run_id = $1
`
	res, err := s.db.ExecContext(ctx, q, runID, string(stage), string(outcome), errMsg, now.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ClaimRun(ctx context.Context, runID string, seen, now time.Time) (bool, error) {
	const q = `
UPDATE call_runs
SET updated_at = $3
WHERE run_id = $1
  AND updated_at = $2
  AND stage NOT IN ('done', 'failed')
`
	res, err := s.db.ExecContext(ctx, q, runID, seen.UTC(), now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetRun(ctx, runID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (Run, error) {
	const q = `
SELECT run_id, call_id, phone, destination_url, correlation, stage, outcome, error, dispatched_at, updated_at
FROM call_runs
WHERE run_id = $1
`
	r, err := scanRun(s.db.QueryRowContext(ctx, q, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	return r, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT run_id, call_id, phone, destination_url, correlation, stage, outcome, error, dispatched_at, updated_at
FROM call_runs
WHERE stage NOT IN ('done', 'failed')
ORDER BY dispatched_at ASC
LIMIT $1
`
	return s.queryRuns(ctx, q, limit)
}

func (s *PostgresStore) ListDispatched(ctx context.Context, from, to time.Time) ([]Run, error) {
	const q = `
SELECT run_id, call_id, phone, destination_url, correlation, stage, outcome, error, dispatched_at, updated_at
FROM call_runs
WHERE dispatched_at >= $1 AND dispatched_at < $2
ORDER BY dispatched_at ASC
`
	return s.queryRuns(ctx, q, from.UTC(), to.UTC())
}

func (s *PostgresStore) queryRuns(ctx context.Context, q string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r      Run
		callID sql.NullString
		corr   []byte
		stage  string
		tag    string
	)
	if err := row.Scan(
		&r.RunID,
		&callID,
		&r.Phone,
		&r.DestinationURL,
		&corr,
		&stage,
		&tag,
		&r.Error,
		&r.DispatchedAt,
		&r.UpdatedAt,
	); err != nil {
		return Run{}, err
	}
	r.CallID = callID.String
	r.Stage = Stage(stage)
	r.OutcomeTag = OutcomeTag(tag)
	if len(corr) > 0 {
		if err := json.Unmarshal(corr, &r.Correlation); err != nil {
			return Run{}, fmt.Errorf("calls: decode correlation: %w", err)
		}
	}
	return r, nil
}

func correlationOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
