package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/dataset"
	"github.com/JonMunkholm/reconcile/internal/guess"
	"github.com/JonMunkholm/reconcile/internal/normalize"
	"github.com/JonMunkholm/reconcile/internal/rules"
	"github.com/JonMunkholm/reconcile/internal/specfile"
)

// Columns returns the header rows of the given files. An empty path yields
// no columns.
func (s *Service) Columns(leftPath, rightPath string) (left, right []string, err error) {
	left, right = []string{}, []string{}
	if leftPath != "" {
		if left, err = readColumns(leftPath); err != nil {
			return nil, nil, fmt.Errorf("left file: %w", err)
		}
	}
	if rightPath != "" {
		if right, err = readColumns(rightPath); err != nil {
			return nil, nil, fmt.Errorf("right file: %w", err)
		}
	}
	return left, right, nil
}

func readColumns(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.ReadHeader(f)
}

// GuessMapping proposes a right column for every left column, using up to
// GUESS_SAMPLE_LIMIT rows of each file as samples.
func (s *Service) GuessMapping(ctx context.Context, leftPath, rightPath string) ([]guess.Suggestion, error) {
	if leftPath == "" || rightPath == "" {
		return nil, fmt.Errorf("%w: mapping guess needs both files: %w", ErrInvalidRequest, ErrNoFile)
	}
	left, right, err := s.loadPair(ctx, leftPath, rightPath)
	if err != nil {
		return nil, err
	}

	limit := s.cfg.Guess.SampleLimit
	suggestions := guess.GuessMappings(left.Columns(), right.Columns(), left.SampleAll(limit), right.SampleAll(limit))
	s.logger(ctx).Debug("mapping guessed", "left_columns", len(left.Columns()), "suggestions", len(suggestions))
	return suggestions, nil
}

// GuessTransforms proposes normalize steps and value maps for the
// non-skipped fields of m, sampled from the two files.
func (s *Service) GuessTransforms(ctx context.Context, leftPath, rightPath string, m *rules.Mapping) (map[string]guess.Transform, error) {
	if leftPath == "" || rightPath == "" {
		return nil, fmt.Errorf("%w: transform guess needs both files: %w", ErrInvalidRequest, ErrNoFile)
	}
	if m == nil || len(m.Fields) == 0 {
		return map[string]guess.Transform{}, nil
	}
	left, right, err := s.loadPair(ctx, leftPath, rightPath)
	if err != nil {
		return nil, err
	}

	fields := make([]guess.Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f.Skip || f.Left == "" || f.Right == "" {
			continue
		}
		fields = append(fields, guess.Field{Name: f.Name, Left: f.Left, Right: f.Right})
	}

	limit := s.cfg.Guess.SampleLimit
	return guess.GuessTransforms(fields, left.SampleAll(limit), right.SampleAll(limit)), nil
}

// ApplyTransforms returns a copy of m with the proposals merged in: new
// normalize steps are appended after the field's own, and a proposed value
// map is used only when the field has none. m is not modified.
func ApplyTransforms(m *rules.Mapping, transforms map[string]guess.Transform) *rules.Mapping {
	if m == nil {
		return nil
	}
	out := *m
	out.Fields = slices.Clone(m.Fields)

	for _, f := range m.Fields {
		t, ok := transforms[f.Name]
		if !ok || f.Skip {
			continue
		}
		steps := slices.Clone(f.Normalize)
		for _, step := range t.Normalize {
			if !slices.Contains(steps, step) {
				steps = append(steps, step)
			}
		}
		f.Normalize = steps
		if len(f.ValueMap) == 0 && len(t.ValueMap) > 0 {
			f.ValueMap = maps.Clone(t.ValueMap)
		}
		out.SetField(f)
	}
	return &out
}

// ListMappings returns the saved mapping file names.
func (s *Service) ListMappings() ([]string, error) {
	return s.mappings.List()
}

// MappingSummaries describes every saved mapping.
func (s *Service) MappingSummaries() ([]specfile.MappingSummary, error) {
	return s.mappings.Summaries()
}

// LoadMapping reads a saved mapping by name.
func (s *Service) LoadMapping(name string) (*rules.Mapping, error) {
	m, err := s.mappings.Load(name)
	if errors.Is(err, specfile.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMappingNotFound, name)
	}
	return m, err
}

// MappingPath returns the file of a saved mapping for download.
func (s *Service) MappingPath(name string) (string, error) {
	path, err := s.mappings.Path(name)
	if errors.Is(err, specfile.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrMappingNotFound, name)
	}
	return path, err
}

// SaveMapping validates and writes m, returning the file name.
func (s *Service) SaveMapping(ctx context.Context, name string, m *rules.Mapping) (string, error) {
	if err := ValidateMapping(m); err != nil {
		return "", err
	}
	file, err := s.mappings.Save(name, m)
	if err != nil {
		return "", err
	}
	s.logger(ctx).Info("mapping saved", "name", name, "file", file, "fields", len(m.Fields))
	return file, nil
}

// DeleteMapping moves a saved mapping to the trash.
func (s *Service) DeleteMapping(ctx context.Context, name string) error {
	err := s.mappings.Delete(name)
	if errors.Is(err, specfile.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrMappingNotFound, name)
	}
	if err == nil {
		s.logger(ctx).Info("mapping deleted", "name", name)
	}
	return err
}

// ValidateMapping checks that every field is named once and only uses
// registered normalize steps.
func ValidateMapping(m *rules.Mapping) error {
	if m == nil {
		return fmt.Errorf("%w: empty mapping", ErrInvalidRequest)
	}
	var errs []string
	seen := make(map[string]bool, len(m.Fields))
	for i, f := range m.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("field %d has no name", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Sprintf("field %q is defined twice", name))
		}
		seen[name] = true
		for _, step := range f.Normalize {
			if !normalize.Known(step) {
				errs = append(errs, fmt.Sprintf("field %q: unknown normalize step %q (known: %s)",
					name, step, strings.Join(normalize.Steps(), ", ")))
			}
		}
		if f.Tolerance != nil && *f.Tolerance < 0 {
			errs = append(errs, fmt.Sprintf("field %q: tolerance must be non-negative", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(errs, "; "))
	}
	return nil
}
