package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/JonMunkholm/reconcile/internal/runstore"
	"github.com/JonMunkholm/reconcile/internal/specfile"
)

var (
	ErrRuleFileNotFound = errors.New("rule file not found")
	ErrMappingNotFound  = errors.New("mapping not found")
	ErrInvalidRequest   = errors.New("invalid run request")
	ErrNoFile           = errors.New("no file provided")
)

// Service ties rule files, mappings, the run store and the run index
// together. It is safe for concurrent use.
type Service struct {
	cfg      *config.Config
	rules    *specfile.Rules
	mappings *specfile.Mappings
	runs     *runstore.Store
	index    runstore.Index
	limiter  *RunLimiter
	now      func() time.Time
}

// NewService creates a Service over the configured directories. index may
// be nil, in which case runs are listed from disk.
func NewService(cfg *config.Config, index runstore.Index) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	return &Service{
		cfg:      cfg,
		rules:    specfile.NewRules(cfg.Paths.RulesDir),
		mappings: specfile.NewMappings(cfg.Paths.MappingsDir),
		runs:     runstore.NewStore(cfg.Paths.RunsDir),
		index:    index,
		limiter:  NewRunLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		now:      time.Now,
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until in-flight runs finish or ctx ends.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Close releases the run index.
func (s *Service) Close() error {
	if s.index == nil {
		return nil
	}
	return s.index.Close()
}

// ListRules returns the rule file names.
func (s *Service) ListRules() ([]string, error) {
	return s.rules.List()
}

// LoadRules reads a rule file by name.
func (s *Service) LoadRules(name string) (*specfile.RuleSet, error) {
	rs, err := s.rules.Load(name)
	if errors.Is(err, specfile.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRuleFileNotFound, name)
	}
	return rs, err
}

// SaveUpload stores an uploaded CSV and returns its path.
func (s *Service) SaveUpload(name string, r io.Reader) (string, error) {
	path, err := s.runs.SaveUpload(name, r, s.cfg.Upload.MaxFileSize)
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}

// SyncIndex records every run on disk that the index does not know about.
// It returns the number of runs added.
func (s *Service) SyncIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	onDisk, err := s.runs.List()
	if err != nil {
		return 0, err
	}

	added := 0
	for _, sum := range onDisk {
		if _, err := s.index.Get(ctx, sum.RunID); err == nil {
			continue
		} else if !errors.Is(err, runstore.ErrNotFound) {
			return added, err
		}
		created, ok := runstore.RunTime(sum.RunID)
		if !ok {
			created = s.now()
		}
		if err := s.index.Record(ctx, runstore.EntryFromSummary(sum, created)); err != nil {
			return added, err
		}
		added++
	}
	if added > 0 {
		slog.Info("run index synced", "added", added)
	}
	return added, nil
}

func (s *Service) logger(ctx context.Context) *slog.Logger {
	if ip := ClientIP(ctx); ip != "" {
		return logging.WithFields(ctx, "client_ip", ip)
	}
	return logging.FromContext(ctx)
}
