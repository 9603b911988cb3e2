package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/credit-applier/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS credit_runs (
	id          UUID PRIMARY KEY,
	source      TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	summary     TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS credit_outcomes (
	id            BIGSERIAL PRIMARY KEY,
	run_id        UUID NOT NULL REFERENCES credit_runs(id) ON DELETE CASCADE,
	sheet_row     INTEGER NOT NULL,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	units         INTEGER NOT NULL DEFAULT 0,
	units_applied INTEGER NOT NULL DEFAULT 0,
	detail        TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credit_outcomes_run ON credit_outcomes(run_id, id);
`

// Postgres is a Journal backed by a PostgreSQL connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres establishes a connection pool and creates the schema.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// StartRun creates a run record in the running state and returns its ID
func (p *Postgres) StartRun(ctx context.Context, in RunInput) (uuid.UUID, error) {
	id := uuid.New()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO credit_runs (id, source, state) VALUES ($1, $2, $3)`,
		id, in.Source, StateRunning,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// RecordOutcome appends one category outcome to a run
func (p *Postgres) RecordOutcome(ctx context.Context, runID uuid.UUID, in OutcomeInput) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO credit_outcomes
		   (run_id, sheet_row, name, category, outcome, units, units_applied, detail, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		runID, in.Row, in.Name, in.Category, in.Outcome, in.Units, in.UnitsApplied, in.Detail, in.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// FinishRun stores the terminal state of a run
func (p *Postgres) FinishRun(ctx context.Context, runID uuid.UUID, state types.RunState, summary string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE credit_runs SET state = $1, summary = $2, finished_at = NOW() WHERE id = $3`,
		string(state), summary, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to finish run: run %s not found", runID)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, source, state, summary, started_at, finished_at
		 FROM credit_runs
		 ORDER BY started_at DESC
		 LIMIT $1`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.State, &r.Summary, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListOutcomes returns the outcomes of a run in the order they were recorded
func (p *Postgres) ListOutcomes(ctx context.Context, runID uuid.UUID) ([]Outcome, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, run_id, sheet_row, name, category, outcome, units, units_applied,
		        detail, error_message, created_at
		 FROM credit_outcomes
		 WHERE run_id = $1
		 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.ID, &o.RunID, &o.Row, &o.Name, &o.Category, &o.Outcome,
			&o.Units, &o.UnitsApplied, &o.Detail, &o.Error, &o.CreatedAt); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
