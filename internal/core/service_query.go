package core

import (
	"context"

	"github.com/JonMunkholm/reconcile/internal/rules"
	"github.com/JonMunkholm/reconcile/internal/runstore"
)

// DefaultRunListLimit bounds the runs page.
const DefaultRunListLimit = 200

// RunDetail is everything the run page shows.
type RunDetail struct {
	Summary rules.Summary       `json:"summary"`
	Files   []string            `json:"files"`
	Issues  *runstore.IssuePage `json:"issues"`
}

// ListRuns returns run summaries, newest first. The index answers when it
// is available; otherwise run directories are scanned.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]rules.Summary, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}

	if s.index != nil {
		entries, err := s.index.Recent(ctx, limit)
		if err == nil {
			out := make([]rules.Summary, len(entries))
			for i, e := range entries {
				out[i] = e.Summary()
			}
			return out, nil
		}
		s.logger(ctx).Warn("run index unavailable, scanning run directories", "error", err)
	}

	sums, err := s.runs.List()
	if err != nil {
		return nil, err
	}
	if len(sums) > limit {
		sums = sums[:limit]
	}
	return sums, nil
}

// RunDetail loads the report, artifact list and first issueLimit issues of
// one run.
func (s *Service) RunDetail(runID string, issueLimit int) (*RunDetail, error) {
	sum, err := s.runs.LoadReport(runID)
	if err != nil {
		return nil, err
	}
	files, err := s.runs.Files(runID)
	if err != nil {
		return nil, err
	}
	issues, err := s.runs.LoadIssues(runID, issueLimit)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Summary: sum, Files: files, Issues: issues}, nil
}

// RunIssues returns the first limit issues of one run.
func (s *Service) RunIssues(runID string, limit int) (*runstore.IssuePage, error) {
	return s.runs.LoadIssues(runID, limit)
}

// RunFile resolves an artifact of a run for download.
func (s *Service) RunFile(runID, name string) (string, error) {
	return s.runs.Path(runID, name)
}

// RunExists reports whether runID has a report on disk.
func (s *Service) RunExists(runID string) bool {
	_, err := s.runs.LoadReport(runID)
	return err == nil
}
