package runstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/rules"
)

// PostgresIndex keeps the run index in PostgreSQL.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// OpenPostgresIndex creates a connection pool sized from cfg, verifies it,
// and creates the runs table when missing.
func OpenPostgresIndex(ctx context.Context, url string, cfg config.DatabaseConfig) (*PostgresIndex, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	idx := &PostgresIndex{pool: pool}
	if err := idx.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PostgresIndex) migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(createRunsTable, "TIMESTAMPTZ")); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	if _, err := p.pool.Exec(ctx, createRunsIndex); err != nil {
		return fmt.Errorf("create runs index: %w", err)
	}
	return nil
}

func (p *PostgresIndex) Record(ctx context.Context, e Entry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO validation_runs (run_id, mode, rows_left, rows_right, errors, warnings, infos, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			mode = EXCLUDED.mode,
			rows_left = EXCLUDED.rows_left,
			rows_right = EXCLUDED.rows_right,
			errors = EXCLUDED.errors,
			warnings = EXCLUDED.warnings,
			infos = EXCLUDED.infos,
			created_at = EXCLUDED.created_at`,
		e.RunID, string(e.Mode), e.RowsLeft, e.RowsRight, e.Errors, e.Warnings, e.Infos, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.RunID, err)
	}
	return nil
}

func (p *PostgresIndex) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT run_id, mode, rows_left, rows_right, errors, warnings, infos, created_at
		FROM validation_runs
		ORDER BY created_at DESC, run_id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresIndex) Get(ctx context.Context, runID string) (Entry, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT run_id, mode, rows_left, rows_right, errors, warnings, infos, created_at
		FROM validation_runs WHERE run_id = $1`, runID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return e, err
}

func (p *PostgresIndex) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM validation_runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresIndex) Close() error {
	p.pool.Close()
	return nil
}

// scanner is satisfied by pgx.Row, pgx.Rows and *sql.Row(s).
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var mode string
	err := row.Scan(&e.RunID, &mode, &e.RowsLeft, &e.RowsRight, &e.Errors, &e.Warnings, &e.Infos, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Mode = rules.Mode(mode)
	return e, nil
}
