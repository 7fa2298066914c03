// Package runstore persists validation runs: one directory of artifacts per
// run under the runs directory, plus a queryable index of run summaries.
package runstore

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/reconcile/internal/dataset"
	"github.com/JonMunkholm/reconcile/internal/rules"
	"github.com/JonMunkholm/reconcile/internal/specfile"
	"github.com/JonMunkholm/reconcile/internal/web/templates"
)

// Artifact file names inside a run directory.
const (
	FileInputs       = "inputs.json"
	FileRulesUsed    = "rules_used.yaml"
	FileMappingUsed  = "mapping_used.yaml"
	FileIssues       = "issues.csv"
	FileBadRows      = "bad_rows.csv"
	FileBadRowsLeft  = "bad_rows_left.csv"
	FileBadRowsRight = "bad_rows_right.csv"
	FileReport       = "report.json"
	FileSummary      = "summary.txt"
	FileReportHTML   = "report.html"
	FileLog          = "logs.txt"

	// UploadsDir holds CSVs uploaded alongside a run request.
	UploadsDir = "_uploads"

	// ReportIssueLimit caps the issues rendered into report.html.
	ReportIssueLimit = 500
)

var (
	ErrNotFound    = errors.New("run not found")
	ErrInvalidPath = errors.New("invalid path")
	ErrTooLarge    = errors.New("upload exceeds size limit")
)

// Inputs records what a run was started with.
type Inputs struct {
	Mode        rules.Mode `json:"mode"`
	LeftPath    string     `json:"left_path"`
	RightPath   *string    `json:"right_path"`
	RuleFile    string     `json:"rule_file,omitempty"`
	MappingFile string     `json:"mapping_file,omitempty"`
	StartedAt   string     `json:"started_at"`
}

// Run is a finished validation run ready to be written.
type Run struct {
	Inputs  Inputs
	RuleDoc map[string]any
	Mapping *rules.Mapping
	Left    *dataset.Dataset
	Right   *dataset.Dataset
	Result  rules.Result
	Summary rules.Summary
}

// IssuePage is the head of a run's issues.csv.
type IssuePage struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Truncated bool       `json:"truncated"`
}

// Store lays run directories out under dir.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the runs directory.
func (s *Store) Dir() string { return s.dir }

// NewRunID allocates an id for a run starting now.
func (s *Store) NewRunID() string {
	return NewRunID(s.now())
}

func (s *Store) runDir(runID string) (string, error) {
	if !validRunID(runID) {
		return "", fmt.Errorf("%w: run id %q", ErrInvalidPath, runID)
	}
	return filepath.Join(s.dir, runID), nil
}

// Save writes every artifact of run into its directory and returns the
// directory path. Bad-row files are written only when rows were flagged.
func (s *Store) Save(ctx context.Context, run *Run) (string, error) {
	dir, err := s.runDir(run.Summary.RunID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}

	logBuf := &bytes.Buffer{}
	fmt.Fprintf(logBuf, "%s started run %s (%s)\n", run.Inputs.StartedAt, run.Summary.RunID, run.Summary.Mode)

	write := func(name string, fn func(w io.Writer) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", name, err)
		}
		fmt.Fprintf(logBuf, "wrote %s\n", name)
		return nil
	}

	steps := []artifact{
		{FileInputs, false, jsonWriter(run.Inputs)},
		{FileRulesUsed, false, yamlWriter(ruleDoc(run.RuleDoc))},
		{FileMappingUsed, run.Mapping == nil, yamlWriter(run.Mapping)},
		{FileIssues, false, func(w io.Writer) error { return rules.WriteIssuesCSV(w, run.Result.Issues) }},
	}
	if run.Summary.Mode == rules.ModeCompare && run.Right != nil {
		steps = append(steps,
			artifact{FileBadRowsLeft, len(run.Result.LeftRows) == 0, badRowsWriter(run.Left, run.Result.LeftRows)},
			artifact{FileBadRowsRight, len(run.Result.RightRows) == 0, badRowsWriter(run.Right, run.Result.RightRows)},
		)
	} else {
		steps = append(steps,
			artifact{FileBadRows, len(run.Result.LeftRows) == 0, badRowsWriter(run.Left, run.Result.LeftRows)})
	}
	steps = append(steps,
		artifact{FileReport, false, jsonWriter(run.Summary)},
		artifact{FileSummary, false, summaryWriter(run.Summary)},
		artifact{FileReportHTML, false, func(w io.Writer) error {
			return templates.ReportPage(run.Summary, templates.IssueTableFromIssues(run.Result.Issues, ReportIssueLimit)).Render(ctx, w)
		}},
	)

	for _, st := range steps {
		if st.skip {
			continue
		}
		if err := write(st.name, st.write); err != nil {
			return dir, err
		}
	}

	fmt.Fprintf(logBuf, "finished: %d errors, %d warnings, %d infos\n",
		run.Summary.Errors, run.Summary.Warnings, run.Summary.Infos)
	if err := os.WriteFile(filepath.Join(dir, FileLog), logBuf.Bytes(), 0o644); err != nil {
		return dir, fmt.Errorf("write %s: %w", FileLog, err)
	}
	return dir, nil
}

type artifact struct {
	name  string
	skip  bool
	write func(w io.Writer) error
}

func ruleDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return map[string]any{"validators": []any{}}
	}
	return doc
}

func jsonWriter(v any) func(w io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func yamlWriter(v any) func(w io.Writer) error {
	return func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
}

func summaryWriter(sum rules.Summary) func(w io.Writer) error {
	return func(w io.Writer) error {
		data, err := json.MarshalIndent(sum, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
}

func badRowsWriter(ds *dataset.Dataset, rows rules.RowSet) func(w io.Writer) error {
	return func(w io.Writer) error {
		if ds == nil {
			return nil
		}
		return ds.Subset(rows.Sorted()).WriteCSV(w)
	}
}

// LoadReport reads a run's report.json.
func (s *Store) LoadReport(runID string) (rules.Summary, error) {
	var sum rules.Summary
	path, err := s.Path(runID, FileReport)
	if err != nil {
		return sum, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return sum, fmt.Errorf("read report: %w", err)
	}
	if err := json.Unmarshal(data, &sum); err != nil {
		return sum, fmt.Errorf("parse report %s: %w", runID, err)
	}
	return sum, nil
}

// LoadIssues reads up to limit issue rows of a run. limit <= 0 reads all.
// A run without issues.csv has no issues.
func (s *Store) LoadIssues(runID string, limit int) (*IssuePage, error) {
	page := &IssuePage{Columns: rules.IssueColumns, Rows: [][]string{}}

	path, err := s.Path(runID, FileIssues)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if _, derr := s.Path(runID, FileReport); derr != nil {
				return nil, derr
			}
			return page, nil
		}
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open issues: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return page, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read issues header: %w", err)
	}
	page.Columns = header

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read issues: %w", err)
		}
		if limit > 0 && len(page.Rows) == limit {
			page.Truncated = true
			break
		}
		page.Rows = append(page.Rows, rec)
	}
	return page, nil
}

// Path resolves an artifact of a run, rejecting names that escape the run
// directory.
func (s *Store) Path(runID, name string) (string, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s/%s", ErrNotFound, runID, name)
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return path, nil
}

// Files lists the artifacts of a run, sorted.
func (s *Store) Files(runID string) ([]string, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// List reads the report of every run directory, newest first. Directories
// without a readable report are skipped.
func (s *Store) List() ([]rules.Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []rules.Summary{}, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]rules.Summary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !validRunID(e.Name()) {
			continue
		}
		sum, err := s.LoadReport(e.Name())
		if err != nil {
			continue
		}
		sum.RunID = e.Name()
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID > out[j].RunID })
	return out, nil
}

// SaveUpload copies at most limit bytes of r to the uploads directory
// under a timestamped, sanitized name. limit <= 0 means unlimited.
func (s *Store) SaveUpload(name string, r io.Reader, limit int64) (string, error) {
	dir := filepath.Join(s.dir, UploadsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	if name == "" {
		name = "upload.csv"
	}
	path := filepath.Join(dir, fmt.Sprintf("%d_%s", s.now().UnixNano(), specfile.SanitizeFilename(name)))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && limit > 0 && n > limit {
		err = fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, name, limit)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// Prune deletes run directories started before cutoff and uploads last
// modified before it. It returns the removed run ids.
func (s *Store) Prune(cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var removed []string
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !validRunID(e.Name()) {
			continue
		}
		started, ok := RunTime(e.Name())
		if !ok || !started.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, e.Name())
	}

	uploads, err := os.ReadDir(filepath.Join(s.dir, UploadsDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	for _, e := range uploads {
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, UploadsDir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}

	return removed, errors.Join(errs...)
}
