package web

import (
	"mime"
	"net/http"
	"path/filepath"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/JonMunkholm/reconcile/internal/runstore"
	"github.com/JonMunkholm/reconcile/internal/web/templates"
)

const (
	homeRunLimit   = 20
	issuePageLimit = 5000
)

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns(r.Context(), homeRunLimit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	ruleFiles, err := s.service.ListRules()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	render(w, r, templates.HomePage(runs, ruleFiles))
}

func (s *Server) handleRunsPage(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns(r.Context(), parseIntParam(r, "limit", 0))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	render(w, r, templates.RunsPage(runs))
}

func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.RunDetail(chi.URLParam(r, "runID"), runstore.ReportIssueLimit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	render(w, r, templates.RunPage(detail.Summary, detail.Files, issueTable(detail.Summary.RunID, detail.Issues)))
}

func (s *Server) handleIssuesPage(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	issues, err := s.service.RunIssues(runID, parseIntParam(r, "limit", issuePageLimit))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	render(w, r, templates.IssuesPage(issueTable(runID, issues)))
}

func (s *Server) handleDownloadRunFile(w http.ResponseWriter, r *http.Request) {
	path, err := s.service.RunFile(chi.URLParam(r, "runID"), chi.URLParam(r, "filename"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	serveAttachment(w, r, path)
}

func (s *Server) handleDownloadMapping(w http.ResponseWriter, r *http.Request) {
	path, err := s.service.MappingPath(chi.URLParam(r, "name"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	serveAttachment(w, r, path)
}

// issueTable adapts rows read back from issues.csv.
func issueTable(runID string, page *runstore.IssuePage) templates.IssueTable {
	t := templates.IssueTable{RunID: runID}
	if page != nil {
		t.Columns = page.Columns
		t.Rows = page.Rows
		t.Total = len(page.Rows)
		t.Truncated = page.Truncated
	}
	return t
}

func serveAttachment(w http.ResponseWriter, r *http.Request, path string) {
	name := filepath.Base(path)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeFile(w, r, path)
}

func render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render page", "path", r.URL.Path, "error", err)
	}
}
