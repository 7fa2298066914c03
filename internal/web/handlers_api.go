package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/normalize"
	"github.com/JonMunkholm/reconcile/internal/rules"
	"github.com/JonMunkholm/reconcile/internal/runstore"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.ListRules()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"rules": names})
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	sums, err := s.service.MappingSummaries()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"mappings": sums})
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	m, err := s.service.LoadMapping(chi.URLParam(r, "name"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, r, m)
}

func (s *Server) handleSaveMapping(w http.ResponseWriter, r *http.Request) {
	var m rules.Mapping
	if err := decodeJSON(w, r, &m); err != nil {
		respondError(w, r, fmt.Errorf("%w: mapping body: %v", core.ErrInvalidRequest, err), http.StatusBadRequest)
		return
	}

	file, err := s.service.SaveMapping(r.Context(), chi.URLParam(r, "name"), &m)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]string{"file": file})
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteMapping(r.Context(), chi.URLParam(r, "name")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGuessMapping(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	suggestions, err := s.service.GuessMapping(r.Context(), q.Get("left"), q.Get("right"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"suggestions": suggestions})
}

// transformsRequest names the two files and the mapping to enrich. With
// Apply set, the response also carries the mapping with proposals merged.
type transformsRequest struct {
	Left    string         `json:"left"`
	Right   string         `json:"right"`
	Mapping *rules.Mapping `json:"mapping"`
	Apply   bool           `json:"apply"`
}

func (s *Server) handleGuessTransforms(w http.ResponseWriter, r *http.Request) {
	var req transformsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, fmt.Errorf("%w: transforms body: %v", core.ErrInvalidRequest, err), http.StatusBadRequest)
		return
	}

	transforms, err := s.service.GuessTransforms(r.Context(), req.Left, req.Right, req.Mapping)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	resp := map[string]any{
		"transforms": transforms,
		"steps":      normalize.Steps(),
	}
	if req.Apply {
		resp["mapping"] = core.ApplyTransforms(req.Mapping, transforms)
	}
	writeJSON(w, r, resp)
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	left, right, err := s.service.Columns(q.Get("left"), q.Get("right"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, r, map[string][]string{"left": left, "right": right})
}

// handleCreateRun starts a validation run from a JSON body naming server
// paths, or from a multipart form with left_file/right_file uploads.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var (
		req core.RunRequest
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = s.parseRunForm(w, r)
	} else if err = decodeJSON(w, r, &req); err != nil {
		err = fmt.Errorf("%w: run body: %v", core.ErrInvalidRequest, err)
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out, err := s.service.Validate(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/runs/"+out.Summary.RunID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeBody(w, r, out)
}

// parseRunForm reads a multipart run request. Uploaded files take
// precedence over the path fields of the same side.
func (s *Server) parseRunForm(w http.ResponseWriter, r *http.Request) (core.RunRequest, error) {
	limit := 2*s.cfg.Upload.MaxFileSize + maxJSONBody
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return core.RunRequest{}, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	defer r.MultipartForm.RemoveAll()

	req := core.RunRequest{
		Mode:        rules.Mode(r.FormValue("mode")),
		LeftPath:    r.FormValue("left_path"),
		RightPath:   r.FormValue("right_path"),
		RuleFile:    r.FormValue("rule_file"),
		MappingFile: r.FormValue("mapping_file"),
	}

	for _, side := range []struct {
		field string
		path  *string
	}{
		{"left_file", &req.LeftPath},
		{"right_file", &req.RightPath},
	} {
		file, header, err := r.FormFile(side.field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return req, fmt.Errorf("%w: %s: %v", core.ErrInvalidRequest, side.field, err)
		}
		path, err := s.saveFormFile(file, header)
		if err != nil {
			return req, err
		}
		*side.path = path
	}
	return req, nil
}

func (s *Server) saveFormFile(file multipart.File, header *multipart.FileHeader) (string, error) {
	defer file.Close()
	if header.Size > s.cfg.Upload.MaxFileSize {
		return "", fmt.Errorf("%s: %w", header.Filename, runstore.ErrTooLarge)
	}
	return s.service.SaveUpload(header.Filename, file)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns(r.Context(), parseIntParam(r, "limit", core.DefaultRunListLimit))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.RunDetail(chi.URLParam(r, "runID"), parseIntParam(r, "limit", runstore.ReportIssueLimit))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeJSON(w, r, detail)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{"runs": s.service.LimiterStatus()})
}
