package web

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/rules"
)

const testRules = `validators:
  - type: required_non_null
    columns: [email]
    severity: ERROR
  - type: cross_file_match
    key: {left: id, right: id}
`

const (
	leftCSV  = "id,email\n1,a@x.com\n2,\n3,c@x.com\n"
	rightCSV = "id,email\n1,a@x.com\n2,b@x.com\n"
)

type testEnv struct {
	srv   *Server
	root  string
	left  string
	right string
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
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
		Guess:    config.GuessConfig{SampleLimit: 100},
		Security: config.SecurityConfig{EnableCSP: true},
	}
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{
		root:  root,
		left:  filepath.Join(root, "left.csv"),
		right: filepath.Join(root, "right.csv"),
	}
	writeTestFile(t, filepath.Join(cfg.Paths.RulesDir, "basic.yaml"), testRules)
	writeTestFile(t, env.left, leftCSV)
	writeTestFile(t, env.right, rightCSV)

	svc, err := core.NewService(cfg, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	env.srv = NewServer(svc)
	t.Cleanup(func() { env.srv.Shutdown(context.Background()) })
	return env
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createRun(t *testing.T, req core.RunRequest) core.RunOutcome {
	t.Helper()
	body, _ := json.Marshal(req)
	rec := e.do(t, http.MethodPost, "/api/runs", body, "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/runs status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out core.RunOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode run outcome: %v", err)
	}
	return out
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestListRules(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/rules", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decodeBody[map[string][]string](t, rec)
	if len(got["rules"]) != 1 || got["rules"][0] != "basic.yaml" {
		t.Errorf("rules = %v, want [basic.yaml]", got["rules"])
	}
}

func TestCreateRunAndBrowse(t *testing.T) {
	env := newTestEnv(t, nil)

	out := env.createRun(t, core.RunRequest{LeftPath: env.left, RightPath: env.right, RuleFile: "basic"})
	runID := out.Summary.RunID
	// null email on row 2, id 3 missing on the right
	if out.Summary.Errors != 1 || out.Summary.Warnings != 1 {
		t.Errorf("summary = %+v, want 1 error and 1 warning", out.Summary)
	}

	rec := env.do(t, http.MethodGet, "/api/runs", nil, "")
	runs := decodeBody[map[string][]rules.Summary](t, rec)
	if len(runs["runs"]) != 1 || runs["runs"][0].RunID != runID {
		t.Errorf("GET /api/runs = %+v", runs)
	}

	rec = env.do(t, http.MethodGet, "/api/runs/"+runID, nil, "")
	detail := decodeBody[core.RunDetail](t, rec)
	if detail.Summary.RunID != runID || len(detail.Issues.Rows) != 2 {
		t.Errorf("GET /api/runs/{id} = %+v", detail)
	}

	pages := []struct {
		path string
		want string
	}{
		{"/", runID},
		{"/runs", runID},
		{"/runs/" + runID, "issues.csv"},
		{"/runs/" + runID + "/issues", "Null or blank value in email"},
	}
	for _, p := range pages {
		rec := env.do(t, http.MethodGet, p.path, nil, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", p.path, rec.Code)
			continue
		}
		if !strings.Contains(rec.Body.String(), p.want) {
			t.Errorf("GET %s body missing %q", p.path, p.want)
		}
	}

	rec = env.do(t, http.MethodGet, "/download/"+runID+"/report.json", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "report.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = env.do(t, http.MethodGet, "/download/"+runID+"/nope.txt", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing artifact status = %d, want 404", rec.Code)
	}
}

func TestCreateRun_Multipart(t *testing.T) {
	env := newTestEnv(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("rule_file", "basic")
	part, err := mw.CreateFormFile("left_file", "upload.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(leftCSV))
	mw.Close()

	rec := env.do(t, http.MethodPost, "/api/runs", body.Bytes(), mw.FormDataContentType())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	out := decodeBody[core.RunOutcome](t, rec)
	if out.Summary.Mode != rules.ModeSingle || out.Summary.RowsLeft != 3 {
		t.Errorf("summary = %+v", out.Summary)
	}
	if loc := rec.Header().Get("Location"); loc != "/runs/"+out.Summary.RunID {
		t.Errorf("Location = %q", loc)
	}

	uploads, _ := os.ReadDir(filepath.Join(env.root, "runs", "_uploads"))
	if len(uploads) != 1 || !strings.HasSuffix(uploads[0].Name(), "_upload.csv") {
		t.Errorf("uploads = %v", uploads)
	}
}

func TestCreateRun_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed json", `{"left_path":`, http.StatusBadRequest, "RUN004"},
		{"unknown field", `{"left":"x"}`, http.StatusBadRequest, "RUN004"},
		{"missing left", `{"rule_file":"basic"}`, http.StatusBadRequest, "FILE004"},
		{"unknown rules", `{"left_path":"` + env.left + `","rule_file":"nope"}`, http.StatusNotFound, "RULE001"},
		{"missing csv", `{"left_path":"` + filepath.Join(env.root, "gone.csv") + `","rule_file":"basic"}`, http.StatusUnprocessableEntity, "FILE003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/runs", []byte(tt.body), "application/json")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			got := decodeBody[ErrorResponse](t, rec)
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestRunNotFound_HTMLAndJSON(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/runs/2020-01-01_000000_abcdef", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := decodeBody[ErrorResponse](t, rec); got.Code != "RUN001" {
		t.Errorf("code = %q, want RUN001", got.Code)
	}

	rec = env.do(t, http.MethodGet, "/runs/2020-01-01_000000_abcdef", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("page status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Code: RUN001") {
		t.Errorf("error page = %s", rec.Body.String())
	}
}

func TestMappingEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	m := rules.Mapping{
		Keys:   rules.Keys{Left: "id", Right: "id"},
		Fields: []rules.FieldMapping{{Name: "email", Left: "email", Right: "email", Normalize: []string{"lower"}}},
	}
	body, _ := json.Marshal(m)
	rec := env.do(t, http.MethodPut, "/api/mappings/crm", body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[map[string]string](t, rec); got["file"] != "crm.yaml" {
		t.Errorf("PUT file = %q", got["file"])
	}

	rec = env.do(t, http.MethodGet, "/api/mappings", nil, "")
	list := decodeBody[map[string][]map[string]any](t, rec)
	if len(list["mappings"]) != 1 {
		t.Errorf("GET /api/mappings = %v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/mappings/crm", nil, "")
	got := decodeBody[rules.Mapping](t, rec)
	if got.Keys != m.Keys || len(got.Fields) != 1 || got.Fields[0].Name != "email" {
		t.Errorf("GET mapping = %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/mappings/download/crm", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "email:") {
		t.Errorf("download = %d %s", rec.Code, rec.Body.String())
	}

	bad := []byte(`{"fields":[{"name":"x","normalize":["soundex"]}]}`)
	if rec := env.do(t, http.MethodPut, "/api/mappings/bad", bad, "application/json"); rec.Code != http.StatusBadRequest {
		t.Errorf("PUT invalid mapping status = %d, want 400", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/api/mappings/crm", nil, ""); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/mappings/crm", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET deleted mapping status = %d, want 404", rec.Code)
	}
}

func TestGuessEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/files/columns?left="+env.left+"&right="+env.right, nil, "")
	cols := decodeBody[map[string][]string](t, rec)
	if len(cols["left"]) != 2 || len(cols["right"]) != 2 {
		t.Errorf("columns = %v", cols)
	}

	rec = env.do(t, http.MethodGet, "/api/mapping/guess?left="+env.left+"&right="+env.right, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("guess status = %d, body %s", rec.Code, rec.Body.String())
	}
	guess := decodeBody[map[string][]map[string]any](t, rec)
	if len(guess["suggestions"]) != 2 || guess["suggestions"][0]["best_right"] != "id" {
		t.Errorf("suggestions = %v", guess["suggestions"])
	}

	rec = env.do(t, http.MethodGet, "/api/mapping/guess?left="+env.left, nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("guess without right status = %d, want 400", rec.Code)
	}

	body, _ := json.Marshal(map[string]any{
		"left":  env.left,
		"right": env.right,
		"mapping": rules.Mapping{Fields: []rules.FieldMapping{
			{Name: "email", Left: "email", Right: "email"},
		}},
	})
	rec = env.do(t, http.MethodPost, "/api/mapping/transforms", body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("transforms status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "normalize_email") {
		t.Errorf("transforms = %s", rec.Body.String())
	}

	body, _ = json.Marshal(map[string]any{
		"left":  env.left,
		"right": env.right,
		"apply": true,
		"mapping": rules.Mapping{Fields: []rules.FieldMapping{
			{Name: "email", Left: "email", Right: "email"},
		}},
	})
	rec = env.do(t, http.MethodPost, "/api/mapping/transforms", body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("transforms apply status = %d, body %s", rec.Code, rec.Body.String())
	}
	applied := decodeBody[struct {
		Steps   []string       `json:"steps"`
		Mapping *rules.Mapping `json:"mapping"`
	}](t, rec)
	if len(applied.Steps) != 10 {
		t.Errorf("steps = %v, want the 10 built-in steps", applied.Steps)
	}
	if applied.Mapping == nil {
		t.Fatal("apply response has no mapping")
	}
	if f, ok := applied.Mapping.Field("email"); !ok || !slices.Contains(f.Normalize, "normalize_email") {
		t.Errorf("applied email field = %+v", f)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/rules", nil, "")

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Referrer-Policy", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("header %s not set", h)
		}
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, RunLimit: 1}
	})

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodGet, "/api/rules", nil, ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := env.do(t, http.MethodGet, "/api/rules", nil, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if got := decodeBody[ErrorResponse](t, rec); got.Code != "RATE001" {
		t.Errorf("code = %q, want RATE001", got.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	if rec := env.do(t, http.MethodGet, "/api/rules", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key status = %d, want 200", rec.Code)
	}

	// pages stay public
	if rec := env.do(t, http.MethodGet, "/runs", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("GET /runs status = %d, want 200", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyRuns, http.StatusServiceUnavailable},
		{core.ErrMappingNotFound, http.StatusNotFound},
		{core.ErrNoFile, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
