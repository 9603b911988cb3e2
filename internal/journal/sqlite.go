package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jonathan/credit-applier/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS credit_runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	summary     TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS credit_outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL REFERENCES credit_runs(id) ON DELETE CASCADE,
	sheet_row     INTEGER NOT NULL,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	units         INTEGER NOT NULL DEFAULT 0,
	units_applied INTEGER NOT NULL DEFAULT 0,
	detail        TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_credit_outcomes_run ON credit_outcomes(run_id, id);
`

// SQLite is a Journal stored in a local SQLite file.
type SQLite struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// OpenSQLite opens or creates the journal at path and migrates the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// timeLayout has a fixed width so stored stamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *SQLite) stamp() string {
	return s.now().Format(timeLayout)
}

// StartRun creates a run record in the running state.
func (s *SQLite) StartRun(ctx context.Context, in RunInput) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credit_runs (id, source, state, started_at) VALUES (?, ?, ?, ?)`,
		id.String(), in.Source, StateRunning, s.stamp(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// RecordOutcome appends one category outcome to a run.
func (s *SQLite) RecordOutcome(ctx context.Context, runID uuid.UUID, in OutcomeInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credit_outcomes
		   (run_id, sheet_row, name, category, outcome, units, units_applied, detail, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), in.Row, in.Name, in.Category, in.Outcome, in.Units, in.UnitsApplied, in.Detail, in.Error, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// FinishRun stores the terminal state of a run.
func (s *SQLite) FinishRun(ctx context.Context, runID uuid.UUID, state types.RunState, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE credit_runs SET state = ?, summary = ?, finished_at = ? WHERE id = ?`,
		string(state), summary, s.stamp(), runID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run: run %s not found", runID)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, state, summary, started_at, finished_at
		 FROM credit_runs
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r           Run
			id, started string
			finished    sql.NullString
		)
		if err := rows.Scan(&id, &r.Source, &r.State, &r.Summary, &started, &finished); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", id, err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		if finished.Valid {
			t, _ := time.Parse(timeLayout, finished.String)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListOutcomes returns the outcomes of a run in the order they were recorded.
func (s *SQLite) ListOutcomes(ctx context.Context, runID uuid.UUID) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sheet_row, name, category, outcome, units, units_applied,
		        detail, error_message, created_at
		 FROM credit_outcomes
		 WHERE run_id = ?
		 ORDER BY id`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var (
			o       Outcome
			created string
		)
		if err := rows.Scan(&o.ID, &o.Row, &o.Name, &o.Category, &o.Outcome,
			&o.Units, &o.UnitsApplied, &o.Detail, &o.Error, &created); err != nil {
			return nil, err
		}
		o.RunID = runID
		o.CreatedAt, _ = time.Parse(timeLayout, created)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
