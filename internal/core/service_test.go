package core

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/guess"
	"github.com/JonMunkholm/reconcile/internal/normalize"
	"github.com/JonMunkholm/reconcile/internal/rules"
	"github.com/JonMunkholm/reconcile/internal/runstore"
)

const compareRules = `name: customers
validators:
  - type: required_columns
    columns:
      left: [id, region]
  - type: unique_key
    key: id
  - type: cross_file_match
    key: {left: id, right: id}
  - type: compare_fields
    fields: [email, status]
`

const leftCSV = "id,email,status\n1,a@x.com,Active\n2,b@x.com,Inactive\n3,c@x.com,Active\n"
const rightCSV = "id,email,status\n1,A@X.COM,active\n2,b@x.com,Active\n4,d@x.com,Active\n"

func testMapping() *rules.Mapping {
	return &rules.Mapping{
		Keys: rules.Keys{Left: "id", Right: "id"},
		Fields: []rules.FieldMapping{
			{Name: "email", Left: "email", Right: "email", Normalize: []string{normalize.NormalizeEmail}},
			{Name: "status", Left: "status", Right: "status", Normalize: []string{normalize.Lower}},
		},
	}
}

type fixture struct {
	svc   *Service
	root  string
	left  string
	right string
	index runstore.Index
}

func newFixture(t *testing.T, withIndex bool) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			Timeout:       time.Minute,
		},
		Paths: config.PathsConfig{
			RulesDir:    filepath.Join(root, "rules"),
			MappingsDir: filepath.Join(root, "mappings"),
			RunsDir:     filepath.Join(root, "runs"),
		},
		Guess:     config.GuessConfig{SampleLimit: 100},
		Retention: config.RetentionConfig{Days: 30, CheckInterval: time.Hour},
	}

	writeFile(t, filepath.Join(cfg.Paths.RulesDir, "customers.yaml"), compareRules)
	f := &fixture{
		root:  root,
		left:  filepath.Join(root, "left.csv"),
		right: filepath.Join(root, "right.csv"),
	}
	writeFile(t, f.left, leftCSV)
	writeFile(t, f.right, rightCSV)

	if withIndex {
		idx, err := runstore.OpenIndex(context.Background(), config.DatabaseConfig{URL: "sqlite::memory:"})
		if err != nil {
			t.Fatalf("OpenIndex() error = %v", err)
		}
		f.index = idx
	}

	svc, err := NewService(cfg, f.index)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	f.svc = svc
	return f
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewService_NilConfig(t *testing.T) {
	if _, err := NewService(nil, nil); err == nil {
		t.Error("NewService(nil) error = nil, want error")
	}
}

func TestValidate_CompareRun(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	out, err := f.svc.Validate(ctx, RunRequest{
		LeftPath:  f.left,
		RightPath: f.right,
		RuleFile:  "customers",
		Mapping:   testMapping(),
	})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	sum := out.Summary
	if sum.Mode != rules.ModeCompare {
		t.Errorf("Mode = %q, want compare", sum.Mode)
	}
	if sum.RowsLeft != 3 || sum.RowsRight != 3 {
		t.Errorf("rows = %d/%d, want 3/3", sum.RowsLeft, sum.RowsRight)
	}
	// missing region; ids 3 and 4 unmatched; status mismatch on id 2
	if sum.Errors != 1 || sum.Warnings != 3 || sum.Infos != 0 {
		t.Errorf("counts = %d/%d/%d, want 1/3/0", sum.Errors, sum.Warnings, sum.Infos)
	}
	if out.Issues != 4 {
		t.Errorf("Issues = %d, want 4", out.Issues)
	}
	if filepath.Base(out.Dir) != sum.RunID {
		t.Errorf("Dir = %q, want run dir %q", out.Dir, sum.RunID)
	}

	entry, err := f.index.Get(ctx, sum.RunID)
	if err != nil {
		t.Fatalf("index Get() error = %v", err)
	}
	if entry.Warnings != 3 || entry.Mode != rules.ModeCompare {
		t.Errorf("index entry = %+v", entry)
	}

	runs, err := f.svc.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != sum.RunID {
		t.Errorf("ListRuns() = %+v", runs)
	}

	detail, err := f.svc.RunDetail(sum.RunID, 2)
	if err != nil {
		t.Fatalf("RunDetail() error = %v", err)
	}
	if detail.Summary != sum {
		t.Errorf("RunDetail summary = %+v, want %+v", detail.Summary, sum)
	}
	if len(detail.Issues.Rows) != 2 || !detail.Issues.Truncated {
		t.Errorf("RunDetail issues = %d rows, truncated %v", len(detail.Issues.Rows), detail.Issues.Truncated)
	}
	for _, name := range []string{runstore.FileReport, runstore.FileIssues, runstore.FileMappingUsed, runstore.FileBadRowsLeft} {
		if !slices.Contains(detail.Files, name) {
			t.Errorf("run files %v missing %s", detail.Files, name)
		}
	}

	path, err := f.svc.RunFile(sum.RunID, runstore.FileInputs)
	if err != nil {
		t.Fatalf("RunFile() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("inputs file: %v", err)
	}
	if !f.svc.RunExists(sum.RunID) || f.svc.RunExists("2020-01-01_000000_abcdef") {
		t.Error("RunExists() mismatch")
	}
}

func TestValidate_SingleModeWithSavedMapping(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if _, err := f.svc.SaveMapping(ctx, "customers", testMapping()); err != nil {
		t.Fatalf("SaveMapping() error = %v", err)
	}

	out, err := f.svc.Validate(ctx, RunRequest{
		Mode:        rules.ModeSingle,
		LeftPath:    f.left,
		RightPath:   f.right,
		RuleFile:    "customers.yaml",
		MappingFile: "customers",
	})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if out.Summary.Mode != rules.ModeSingle || out.Summary.RowsRight != 0 {
		t.Errorf("summary = %+v, want single mode without right rows", out.Summary)
	}
	if out.Summary.Errors != 1 || out.Summary.Warnings != 0 {
		t.Errorf("counts = %d/%d, want 1/0", out.Summary.Errors, out.Summary.Warnings)
	}

	runs, err := f.svc.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("ListRuns() from disk = %d runs, want 1", len(runs))
	}
}

func TestValidate_Errors(t *testing.T) {
	f := newFixture(t, false)
	missing := filepath.Join(f.root, "missing.csv")

	tests := []struct {
		name     string
		req      RunRequest
		wantErr  error
		wantCode string
	}{
		{"no left file", RunRequest{RuleFile: "customers"}, ErrNoFile, "FILE004"},
		{"compare without right", RunRequest{Mode: rules.ModeCompare, LeftPath: f.left, RuleFile: "customers"}, ErrNoFile, "FILE004"},
		{"no rule file", RunRequest{LeftPath: f.left}, ErrInvalidRequest, "RUN004"},
		{"bad mode", RunRequest{Mode: "merge", LeftPath: f.left, RuleFile: "customers"}, ErrInvalidRequest, "RUN004"},
		{"unknown rule file", RunRequest{LeftPath: f.left, RuleFile: "nope"}, ErrRuleFileNotFound, "RULE001"},
		{"unknown mapping", RunRequest{LeftPath: f.left, RuleFile: "customers", MappingFile: "nope"}, ErrMappingNotFound, "RULE002"},
		{"missing csv", RunRequest{LeftPath: missing, RuleFile: "customers"}, os.ErrNotExist, "FILE003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Validate(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if got := MapError(err).Code; got != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestValidate_CancelledContext(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Validate(ctx, RunRequest{LeftPath: f.left, RuleFile: "customers"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Validate() error = %v, want context.Canceled", err)
	}
	if runs, _ := f.svc.ListRuns(context.Background(), 0); len(runs) != 0 {
		t.Errorf("cancelled run was persisted: %+v", runs)
	}
}

func TestColumns(t *testing.T) {
	f := newFixture(t, false)

	left, right, err := f.svc.Columns(f.left, "")
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	if !slices.Equal(left, []string{"id", "email", "status"}) || len(right) != 0 {
		t.Errorf("Columns() = %v, %v", left, right)
	}

	if _, _, err := f.svc.Columns(f.left, filepath.Join(f.root, "missing.csv")); err == nil {
		t.Error("Columns() with a missing file error = nil")
	}
}

func TestGuessMapping(t *testing.T) {
	f := newFixture(t, false)
	swapped := filepath.Join(f.root, "swapped.csv")
	writeFile(t, swapped, "status,email,id\nactive,a@x.com,1\ninactive,b@x.com,2\n")

	got, err := f.svc.GuessMapping(context.Background(), f.left, swapped)
	if err != nil {
		t.Fatalf("GuessMapping() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GuessMapping() = %d suggestions, want 3", len(got))
	}
	for _, s := range got {
		if s.BestRight != s.LeftColumn {
			t.Errorf("%s: BestRight = %q, want %q", s.LeftColumn, s.BestRight, s.LeftColumn)
		}
	}

	if _, err := f.svc.GuessMapping(context.Background(), f.left, ""); !errors.Is(err, ErrNoFile) {
		t.Errorf("GuessMapping() without right error = %v, want ErrNoFile", err)
	}
}

func TestGuessTransforms(t *testing.T) {
	f := newFixture(t, false)
	m := testMapping()
	m.SetField(rules.FieldMapping{Name: "id", Left: "id", Right: "id", Skip: true})

	got, err := f.svc.GuessTransforms(context.Background(), f.left, f.right, m)
	if err != nil {
		t.Fatalf("GuessTransforms() error = %v", err)
	}
	email, ok := got["email"]
	if !ok || !slices.Contains(email.Normalize, normalize.NormalizeEmail) {
		t.Errorf("email transform = %+v, want normalize_email", email)
	}
	if _, ok := got["id"]; ok {
		t.Error("skipped field id should not get a transform")
	}

	empty, err := f.svc.GuessTransforms(context.Background(), f.left, f.right, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("GuessTransforms(nil) = %v, %v", empty, err)
	}
}

func TestApplyTransforms(t *testing.T) {
	m := testMapping()
	m.Fields = append(m.Fields,
		rules.FieldMapping{Name: "active", Left: "a", Right: "b", ValueMap: map[string]string{"y": "Yes"}},
		rules.FieldMapping{Name: "id", Left: "id", Right: "id", Skip: true},
	)
	transforms := map[string]guess.Transform{
		"email":  {Normalize: []string{normalize.Trim, normalize.NormalizeEmail}},
		"status": {Normalize: []string{normalize.Trim}, ValueMap: map[string]string{"inactive ": "inactive"}},
		"active": {ValueMap: map[string]string{"n": "No"}},
		"id":     {Normalize: []string{normalize.Trim}},
	}

	got := ApplyTransforms(m, transforms)

	tests := []struct {
		field     string
		wantSteps []string
		wantMap   map[string]string
	}{
		{"email", []string{normalize.NormalizeEmail, normalize.Trim}, nil},
		{"status", []string{normalize.Lower, normalize.Trim}, map[string]string{"inactive ": "inactive"}},
		{"active", nil, map[string]string{"y": "Yes"}},
		{"id", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f, ok := got.Field(tt.field)
			if !ok {
				t.Fatalf("field %s missing", tt.field)
			}
			if !slices.Equal(f.Normalize, tt.wantSteps) {
				t.Errorf("Normalize = %v, want %v", f.Normalize, tt.wantSteps)
			}
			if !maps.Equal(f.ValueMap, tt.wantMap) {
				t.Errorf("ValueMap = %v, want %v", f.ValueMap, tt.wantMap)
			}
		})
	}

	if orig, _ := m.Field("status"); len(orig.Normalize) != 1 || orig.ValueMap != nil {
		t.Errorf("input mapping was modified: %+v", orig)
	}
	if ApplyTransforms(nil, transforms) != nil {
		t.Error("ApplyTransforms(nil) should be nil")
	}
}

func TestValidateMapping_ListsKnownSteps(t *testing.T) {
	m := &rules.Mapping{Fields: []rules.FieldMapping{{Name: "a", Normalize: []string{"reverse"}}}}
	err := ValidateMapping(m)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("ValidateMapping() error = %v, want ErrInvalidRequest", err)
	}
	if !strings.Contains(err.Error(), normalize.CollapseWhitespace) {
		t.Errorf("error %q should list the known steps", err)
	}
}

func TestMappingLifecycle(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	file, err := f.svc.SaveMapping(ctx, "Customer Map", testMapping())
	if err != nil {
		t.Fatalf("SaveMapping() error = %v", err)
	}
	if file != "CustomerMap.yaml" {
		t.Errorf("SaveMapping() file = %q, want CustomerMap.yaml", file)
	}

	names, err := f.svc.ListMappings()
	if err != nil || !slices.Equal(names, []string{"CustomerMap.yaml"}) {
		t.Errorf("ListMappings() = %v, %v", names, err)
	}

	sums, err := f.svc.MappingSummaries()
	if err != nil || len(sums) != 1 || sums[0].FieldCount != 2 {
		t.Errorf("MappingSummaries() = %+v, %v", sums, err)
	}

	m, err := f.svc.LoadMapping("CustomerMap")
	if err != nil {
		t.Fatalf("LoadMapping() error = %v", err)
	}
	if m.Meta == nil || m.Meta.Name != "Customer Map" || len(m.Fields) != 2 {
		t.Errorf("LoadMapping() = %+v", m)
	}

	if _, err := f.svc.MappingPath("CustomerMap"); err != nil {
		t.Errorf("MappingPath() error = %v", err)
	}

	if err := f.svc.DeleteMapping(ctx, "CustomerMap"); err != nil {
		t.Fatalf("DeleteMapping() error = %v", err)
	}
	if _, err := f.svc.LoadMapping("CustomerMap"); !errors.Is(err, ErrMappingNotFound) {
		t.Errorf("LoadMapping() after delete error = %v, want ErrMappingNotFound", err)
	}
	if err := f.svc.DeleteMapping(ctx, "CustomerMap"); !errors.Is(err, ErrMappingNotFound) {
		t.Errorf("DeleteMapping() twice error = %v, want ErrMappingNotFound", err)
	}
	if _, err := f.svc.MappingPath("CustomerMap"); !errors.Is(err, ErrMappingNotFound) {
		t.Errorf("MappingPath() after delete error = %v, want ErrMappingNotFound", err)
	}
}

func TestValidateMapping(t *testing.T) {
	neg := -1.0
	tests := []struct {
		name    string
		m       *rules.Mapping
		wantErr bool
	}{
		{"nil", nil, true},
		{"valid", testMapping(), false},
		{"no fields", &rules.Mapping{}, false},
		{"unnamed field", &rules.Mapping{Fields: []rules.FieldMapping{{Left: "a", Right: "b"}}}, true},
		{"duplicate field", &rules.Mapping{Fields: []rules.FieldMapping{{Name: "a"}, {Name: "a"}}}, true},
		{"unknown step", &rules.Mapping{Fields: []rules.FieldMapping{{Name: "a", Normalize: []string{"soundex"}}}}, true},
		{"negative tolerance", &rules.Mapping{Fields: []rules.FieldMapping{{Name: "a", Tolerance: &neg}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMapping(tt.m)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMapping() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("ValidateMapping() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestSyncIndex(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	out, err := f.svc.Validate(ctx, RunRequest{LeftPath: f.left, RuleFile: "customers"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	idx, err := runstore.OpenIndex(ctx, config.DatabaseConfig{URL: "sqlite::memory:"})
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	svc, err := NewService(f.svc.Config(), idx)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	defer svc.Close()

	added, err := svc.SyncIndex(ctx)
	if err != nil || added != 1 {
		t.Fatalf("SyncIndex() = %d, %v, want 1", added, err)
	}
	if added, _ := svc.SyncIndex(ctx); added != 0 {
		t.Errorf("second SyncIndex() = %d, want 0", added)
	}
	if _, err := idx.Get(ctx, out.Summary.RunID); err != nil {
		t.Errorf("index Get() error = %v", err)
	}
}

func TestPruneRuns(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	out, err := f.svc.Validate(ctx, RunRequest{LeftPath: f.left, RuleFile: "customers"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	cfg := f.svc.Config().Retention

	res, err := f.svc.PruneRuns(ctx, cfg)
	if err != nil || len(res.Removed) != 0 || res.IndexRemoved != 0 {
		t.Fatalf("PruneRuns() now = %+v, %v, want nothing removed", res, err)
	}

	f.svc.now = func() time.Time { return time.Now().AddDate(0, 0, cfg.Days+1) }
	res, err = f.svc.PruneRuns(ctx, cfg)
	if err != nil {
		t.Fatalf("PruneRuns() error = %v", err)
	}
	if !slices.Equal(res.Removed, []string{out.Summary.RunID}) || res.IndexRemoved != 1 {
		t.Errorf("PruneRuns() = %+v", res)
	}
	if f.svc.RunExists(out.Summary.RunID) {
		t.Error("pruned run still on disk")
	}

	res, err = f.svc.PruneRuns(ctx, config.RetentionConfig{Days: 0})
	if err != nil || res.Removed != nil {
		t.Errorf("PruneRuns() disabled = %+v, %v", res, err)
	}
}

func TestStartRetentionScheduler_StopsWithContext(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.svc.StartRetentionScheduler(ctx, config.RetentionConfig{Days: 1, CheckInterval: 10 * time.Millisecond})
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestSaveUpload(t *testing.T) {
	f := newFixture(t, false)
	data, err := os.ReadFile(f.left)
	if err != nil {
		t.Fatal(err)
	}

	path, err := f.svc.SaveUpload("left.csv", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("SaveUpload() error = %v", err)
	}
	left, _, err := f.svc.Columns(path, "")
	if err != nil || len(left) != 3 {
		t.Errorf("uploaded columns = %v, %v", left, err)
	}
}
