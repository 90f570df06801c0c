package status

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execer is the subset of *pgxpool.Pool used by PostgresSink.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink keeps one row per run, upserted after every stage.
type PostgresSink struct {
	db    Execer
	table string
}

// NewPostgresSink writes to table through db. An empty table uses "game_runs".
func NewPostgresSink(db Execer, table string) *PostgresSink {
	if table == "" {
		table = "game_runs"
	}
	return &PostgresSink{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// OpenPostgres connects a pool and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the status table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id           TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	stage            TEXT NOT NULL,
	status           TEXT NOT NULL,
	design_iteration INTEGER NOT NULL,
	code_iteration   INTEGER NOT NULL,
	design_approved  BOOLEAN NOT NULL,
	ship_approved    BOOLEAN NOT NULL,
	errors           JSONB NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("create status table: %w", err)
	}
	return nil
}

func (s *PostgresSink) Push(ctx context.Context, snap Snapshot) error {
	errs, err := json.Marshal(snap.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s
	(run_id, title, stage, status, design_iteration, code_iteration, design_approved, ship_approved, errors, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id) DO UPDATE SET
	stage = EXCLUDED.stage,
	status = EXCLUDED.status,
	design_iteration = EXCLUDED.design_iteration,
	code_iteration = EXCLUDED.code_iteration,
	design_approved = EXCLUDED.design_approved,
	ship_approved = EXCLUDED.ship_approved,
	errors = EXCLUDED.errors,
	updated_at = EXCLUDED.updated_at`, s.table),
		snap.RunID, snap.Title, snap.Stage, snap.Status,
		snap.DesignIteration, snap.CodeIteration, snap.DesignApproved, snap.ShipApproved,
		string(errs), snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run status: %w", err)
	}
	return nil
}
