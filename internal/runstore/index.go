package runstore

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/rules"
)

// Entry is one row of the run index.
type Entry struct {
	RunID     string     `json:"run_id"`
	Mode      rules.Mode `json:"mode"`
	RowsLeft  int        `json:"rows_left"`
	RowsRight int        `json:"rows_right"`
	Errors    int        `json:"errors"`
	Warnings  int        `json:"warnings"`
	Infos     int        `json:"infos"`
	CreatedAt time.Time  `json:"created_at"`
}

// EntryFromSummary builds an index entry for a run finished at created.
func EntryFromSummary(sum rules.Summary, created time.Time) Entry {
	return Entry{
		RunID:     sum.RunID,
		Mode:      sum.Mode,
		RowsLeft:  sum.RowsLeft,
		RowsRight: sum.RowsRight,
		Errors:    sum.Errors,
		Warnings:  sum.Warnings,
		Infos:     sum.Infos,
		CreatedAt: created,
	}
}

// Summary converts the entry back to a run summary.
func (e Entry) Summary() rules.Summary {
	return rules.Summary{
		RunID:     e.RunID,
		Mode:      e.Mode,
		RowsLeft:  e.RowsLeft,
		RowsRight: e.RowsRight,
		Errors:    e.Errors,
		Warnings:  e.Warnings,
		Infos:     e.Infos,
	}
}

// Index stores run summaries for listing without reading every run
// directory.
type Index interface {
	// Record inserts or replaces the entry for e.RunID.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Get returns the entry of one run, or ErrNotFound.
	Get(ctx context.Context, runID string) (Entry, error)

	// Prune deletes entries created before cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

const createRunsTable = `CREATE TABLE IF NOT EXISTS validation_runs (
	run_id     TEXT PRIMARY KEY,
	mode       TEXT NOT NULL,
	rows_left  INTEGER NOT NULL DEFAULT 0,
	rows_right INTEGER NOT NULL DEFAULT 0,
	errors     INTEGER NOT NULL DEFAULT 0,
	warnings   INTEGER NOT NULL DEFAULT 0,
	infos      INTEGER NOT NULL DEFAULT 0,
	created_at %s NOT NULL
)`

const createRunsIndex = `CREATE INDEX IF NOT EXISTS validation_runs_created_at ON validation_runs (created_at)`

// OpenIndex connects the backend selected by cfg.URL and ensures the
// schema exists.
func OpenIndex(ctx context.Context, cfg config.DatabaseConfig) (Index, error) {
	backend, dsn, err := config.ParseDatabaseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("run index: %w", err)
	}
	if backend == config.BackendPostgres {
		idx, err := OpenPostgresIndex(ctx, dsn, cfg)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	idx, err := OpenSQLiteIndex(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
