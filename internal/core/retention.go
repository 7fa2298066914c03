package core

// retention.go runs the background retention job. Each pass:
//  1. Removes run directories and uploads older than RUN_RETENTION_DAYS
//  2. Deletes the matching rows from the run index
//
// The job is long-running and stops with its context. Failures are logged
// and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/reconcile/internal/config"
)

// PruneResult reports one retention pass.
type PruneResult struct {
	Removed      []string
	IndexRemoved int64
}

// StartRetentionScheduler prunes old runs immediately, then every
// CheckInterval until ctx is cancelled. It returns at once when retention
// is disabled.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg config.RetentionConfig) {
	if cfg.Days <= 0 || cfg.CheckInterval <= 0 {
		slog.Info("run retention disabled")
		return
	}
	slog.Info("retention scheduler started",
		"retention_days", cfg.Days,
		"check_interval", cfg.CheckInterval.String(),
	)

	s.runRetentionJob(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			s.runRetentionJob(ctx, cfg)
		}
	}
}

func (s *Service) runRetentionJob(ctx context.Context, cfg config.RetentionConfig) {
	start := time.Now()
	res, err := s.PruneRuns(ctx, cfg)
	if err != nil {
		slog.Error("retention job failed", "error", err)
	}
	slog.Info("retention job completed",
		"runs_removed", len(res.Removed),
		"index_removed", res.IndexRemoved,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// PruneRuns performs one retention pass. Disk and index are both attempted
// even if one fails.
func (s *Service) PruneRuns(ctx context.Context, cfg config.RetentionConfig) (PruneResult, error) {
	var res PruneResult
	cutoff, ok := cfg.Cutoff(s.now())
	if !ok {
		return res, nil
	}

	removed, diskErr := s.runs.Prune(cutoff)
	res.Removed = removed

	if s.index != nil {
		n, err := s.index.Prune(ctx, cutoff)
		if err != nil {
			if diskErr != nil {
				return res, diskErr
			}
			return res, err
		}
		res.IndexRemoved = n
	}
	return res, diskErr
}
