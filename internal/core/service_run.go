package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/reconcile/internal/dataset"
	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/JonMunkholm/reconcile/internal/rules"
	"github.com/JonMunkholm/reconcile/internal/runstore"
)

// RunRequest describes one validation run. Mapping, when set, takes
// precedence over MappingFile.
type RunRequest struct {
	Mode        rules.Mode     `json:"mode"`
	LeftPath    string         `json:"left_path"`
	RightPath   string         `json:"right_path,omitempty"`
	RuleFile    string         `json:"rule_file"`
	MappingFile string         `json:"mapping_file,omitempty"`
	Mapping     *rules.Mapping `json:"mapping,omitempty"`
}

// normalize fills the mode and checks the required inputs.
func (r *RunRequest) normalize() error {
	r.LeftPath = strings.TrimSpace(r.LeftPath)
	r.RightPath = strings.TrimSpace(r.RightPath)
	r.RuleFile = strings.TrimSpace(r.RuleFile)

	if r.Mode == "" {
		r.Mode = rules.ModeSingle
		if r.RightPath != "" {
			r.Mode = rules.ModeCompare
		}
	}
	mode, err := rules.ParseMode(string(r.Mode))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r.Mode = mode

	switch {
	case r.LeftPath == "":
		return fmt.Errorf("%w: left file: %w", ErrInvalidRequest, ErrNoFile)
	case r.Mode == rules.ModeCompare && r.RightPath == "":
		return fmt.Errorf("%w: compare mode needs a right file: %w", ErrInvalidRequest, ErrNoFile)
	case r.RuleFile == "":
		return fmt.Errorf("%w: a rule file is required", ErrInvalidRequest)
	}
	if r.Mode == rules.ModeSingle {
		r.RightPath = ""
	}
	return nil
}

// RunOutcome is what a finished run reports back.
type RunOutcome struct {
	Summary  rules.Summary `json:"summary"`
	Issues   int           `json:"issues"`
	Dir      string        `json:"dir"`
	Duration time.Duration `json:"duration_ns"`
}

// Validate executes a run: it waits for a run slot, loads the rule file,
// mapping and CSVs, evaluates the rules and persists every artifact.
func (s *Service) Validate(ctx context.Context, req RunRequest) (*RunOutcome, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.cfg.Upload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Upload.Timeout)
		defer cancel()
	}

	started := s.now()
	runID := runstore.NewRunID(started)
	ctx = logging.WithRun(ctx, runID)
	logger := s.logger(ctx)
	logger.Info("run started", "mode", req.Mode, "left", req.LeftPath, "right", req.RightPath, "rules", req.RuleFile)

	rs, err := s.LoadRules(req.RuleFile)
	if err != nil {
		return nil, err
	}

	mapping := req.Mapping
	if mapping == nil && req.MappingFile != "" {
		if mapping, err = s.LoadMapping(req.MappingFile); err != nil {
			return nil, err
		}
	}

	left, right, err := s.loadPair(ctx, req.LeftPath, req.RightPath)
	if err != nil {
		return nil, err
	}

	in := rules.Input{RunID: runID, Mode: req.Mode, Left: left, Right: right, Mapping: mapping}
	res := rules.Run(ctx, in, rs.Rules)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	sum := rules.Summarize(in, res.Issues)

	var rightPath *string
	if req.RightPath != "" {
		rightPath = &req.RightPath
	}
	dir, err := s.runs.Save(ctx, &runstore.Run{
		Inputs: runstore.Inputs{
			Mode:        req.Mode,
			LeftPath:    req.LeftPath,
			RightPath:   rightPath,
			RuleFile:    rs.Name,
			MappingFile: req.MappingFile,
			StartedAt:   started.Format("2006-01-02T15:04:05"),
		},
		RuleDoc: rs.Doc,
		Mapping: mapping,
		Left:    left,
		Right:   right,
		Result:  res,
		Summary: sum,
	})
	if err != nil {
		return nil, fmt.Errorf("save run %s: %w", runID, err)
	}

	if s.index != nil {
		if err := s.index.Record(ctx, runstore.EntryFromSummary(sum, started)); err != nil {
			logger.Warn("run index update failed", "error", err)
		}
	}

	elapsed := s.now().Sub(started)
	logger.Info("run finished",
		"rows_left", sum.RowsLeft,
		"rows_right", sum.RowsRight,
		"errors", sum.Errors,
		"warnings", sum.Warnings,
		"infos", sum.Infos,
		"duration_ms", elapsed.Milliseconds(),
	)

	return &RunOutcome{Summary: sum, Issues: len(res.Issues), Dir: dir, Duration: elapsed}, nil
}

// loadPair reads the left file and, when rightPath is set, the right file
// concurrently.
func (s *Service) loadPair(ctx context.Context, leftPath, rightPath string) (left, right *dataset.Dataset, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ds, err := readDataset(gctx, leftPath)
		if err != nil {
			return fmt.Errorf("left file: %w", err)
		}
		left = ds
		return nil
	})
	if rightPath != "" {
		g.Go(func() error {
			ds, err := readDataset(gctx, rightPath)
			if err != nil {
				return fmt.Errorf("right file: %w", err)
			}
			right = ds
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func readDataset(ctx context.Context, path string) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dataset.ReadFile(path)
}
