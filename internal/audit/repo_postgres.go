package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends events to the call_events table.
// The table is created by calls.EnsureSchema.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events (id, run_id, call_id, stage, type, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.RunID,
		e.CallID,
		e.Stage,
		string(e.Type),
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByRun(ctx context.Context, runID string) ([]Event, error) {
	const q = `
SELECT id, run_id, call_id, stage, type, message, metadata, created_at
FROM call_events
WHERE run_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.RunID, &e.CallID, &e.Stage, &typ, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
