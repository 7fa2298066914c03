package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/reconcile/internal/rules"
)

// SQLiteIndex keeps the run index in an embedded SQLite database.
// created_at is stored as Unix nanoseconds.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory index.
func OpenSQLiteIndex(ctx context.Context, path string) (*SQLiteIndex, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite index: %w", err)
	}

	idx := &SQLiteIndex{db: db}
	if err := idx.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (s *SQLiteIndex) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		fmt.Sprintf(createRunsTable, "INTEGER"),
		createRunsIndex,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite index: %w", err)
		}
	}
	return nil
}

func (s *SQLiteIndex) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_runs (run_id, mode, rows_left, rows_right, errors, warnings, infos, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			mode = excluded.mode,
			rows_left = excluded.rows_left,
			rows_right = excluded.rows_right,
			errors = excluded.errors,
			warnings = excluded.warnings,
			infos = excluded.infos,
			created_at = excluded.created_at`,
		e.RunID, string(e.Mode), e.RowsLeft, e.RowsRight, e.Errors, e.Warnings, e.Infos, e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.RunID, err)
	}
	return nil
}

func (s *SQLiteIndex) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, mode, rows_left, rows_right, errors, warnings, infos, created_at
		FROM validation_runs
		ORDER BY created_at DESC, run_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Get(ctx context.Context, runID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, mode, rows_left, rows_right, errors, warnings, infos, created_at
		FROM validation_runs WHERE run_id = ?`, runID)
	e, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return e, err
}

func (s *SQLiteIndex) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM validation_runs WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func scanSQLiteEntry(row scanner) (Entry, error) {
	var e Entry
	var mode string
	var created int64
	err := row.Scan(&e.RunID, &mode, &e.RowsLeft, &e.RowsRight, &e.Errors, &e.Warnings, &e.Infos, &created)
	if err != nil {
		return Entry{}, err
	}
	e.Mode = rules.Mode(mode)
	e.CreatedAt = time.Unix(0, created)
	return e, nil
}
