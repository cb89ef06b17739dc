// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pdiddy/slr-engine/internal/ledger"
	"github.com/pdiddy/slr-engine/internal/pipeline"
	"github.com/pdiddy/slr-engine/pkg/types"
)

const (
	maxRequestBodySize = 1 << 20
	uploadField        = "papers"
)

// runRequest carries the form fields of a submission. Zero values keep the
// server's base configuration.
type runRequest struct {
	Subject            string `json:"subject"`
	StartYear          int    `json:"start_year,omitempty"`
	EndYear            int    `json:"end_year,omitempty"`
	PapersPerIteration int    `json:"papers_per_iteration,omitempty"`
	SearchIterations   int    `json:"search_iterations,omitempty"`
	MinRelevantTarget  *int   `json:"min_relevant_target,omitempty"`
	RefinementCycles   *int   `json:"refinement_cycles,omitempty"`
	Snowball           *bool  `json:"snowball,omitempty"`
	EnableArxiv        *bool  `json:"enable_arxiv,omitempty"`
	EnableScopus       *bool  `json:"enable_scopus,omitempty"`
}

// apply overlays the request onto base.
func (req runRequest) apply(base types.PipelineConfig) types.PipelineConfig {
	cfg := base
	cfg.Subject = strings.TrimSpace(req.Subject)
	if req.StartYear != 0 {
		cfg.StartYear = req.StartYear
	}
	if req.EndYear != 0 {
		cfg.EndYear = req.EndYear
	}
	if req.PapersPerIteration != 0 {
		cfg.Fetch.PapersPerIteration = req.PapersPerIteration
	}
	if req.SearchIterations != 0 {
		cfg.Fetch.SearchIterations = req.SearchIterations
	}
	if req.MinRelevantTarget != nil {
		cfg.Supplementary.MinRelevantTarget = *req.MinRelevantTarget
	}
	if req.RefinementCycles != nil {
		cfg.Refinement.Cycles = *req.RefinementCycles
	}
	if req.Snowball != nil {
		cfg.Snowball.Enabled = *req.Snowball
	}
	if req.EnableArxiv != nil {
		cfg.Fetch.EnableArxiv = *req.EnableArxiv
	}
	if req.EnableScopus != nil {
		cfg.Fetch.EnableScopus = *req.EnableScopus
	}
	return cfg
}

// runStatus is the JSON view of a run.
type runStatus struct {
	ID         string       `json:"id"`
	Subject    string       `json:"subject"`
	Status     string       `json:"status"`
	ErrorKind  string       `json:"error_kind,omitempty"`
	Error      string       `json:"error,omitempty"`
	Document   string       `json:"document,omitempty"`
	Files      []string     `json:"files,omitempty"`
	Cycles     int          `json:"cycles"`
	Counts     types.Counts `json:"counts,omitempty"`
	Progress   []string     `json:"progress,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// runRecord tracks a run started by this process.
type runRecord struct {
	mu         sync.Mutex
	status     runStatus
	resultsDir string
	progress   *progressLog
}

func (rec *runRecord) snapshot() runStatus {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	st := rec.status
	st.Files = append([]string(nil), rec.status.Files...)
	st.Progress = rec.progress.Lines()
	return st
}

// hasFile reports whether name is one of the run's result files.
func (rec *runRecord) hasFile(name string) bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, f := range rec.status.Files {
		if f == name {
			return true
		}
	}
	return false
}

// progressLog is an io.Writer collecting the pipeline's progress lines.
type progressLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (p *progressLog) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

// Lines returns the complete lines written so far.
func (p *progressLog) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	text := strings.TrimRight(p.buf.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// startRun handles POST /runs. The body is either JSON or a multipart form
// whose "papers" files become the run's manual uploads.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	id := s.NewRunID()

	var (
		req     runRequest
		uploads []*multipart.FileHeader
		err     error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, uploads, err = s.parseForm(w, r)
	} else {
		req, err = parseJSON(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := req.apply(s.base)
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Each run writes its outputs under its own ID so earlier runs keep
	// serving their own files.
	cfg.Workspace.ResultsDir = filepath.Join(s.base.Workspace.ResultsDir, id)

	var uploadDir string
	if len(uploads) > 0 {
		uploadDir = filepath.Join(s.cfg.UploadDir, id)
		if err := saveUploads(uploadDir, uploads); err != nil {
			s.logger.Error().Err(err).Str("run_id", id).Msg("saving uploads")
			os.RemoveAll(uploadDir)
			writeError(w, http.StatusInternalServerError, "failed to store uploaded papers")
			return
		}
		cfg.Workspace.ManualDir = uploadDir
	}

	rec, err := s.launch(id, cfg)
	if err != nil {
		if uploadDir != "" {
			os.RemoveAll(uploadDir)
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.Header().Set("Location", "/runs/"+id)
	writeJSON(w, http.StatusAccepted, rec.snapshot())
}

func parseJSON(r *http.Request) (runRequest, error) {
	var req runRequest
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		return req, errors.New("failed to read request body")
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, errors.New("invalid JSON request body")
	}
	return req, nil
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) (runRequest, []*multipart.FileHeader, error) {
	var req runRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return req, nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	req.Subject = r.FormValue("subject")
	ints := []struct {
		field string
		dst   *int
	}{
		{"start_year", &req.StartYear},
		{"end_year", &req.EndYear},
		{"papers_per_iteration", &req.PapersPerIteration},
		{"search_iterations", &req.SearchIterations},
	}
	for _, f := range ints {
		if v := r.FormValue(f.field); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return req, nil, fmt.Errorf("%s must be an integer", f.field)
			}
			*f.dst = n
		}
	}
	var err error
	if req.MinRelevantTarget, err = formInt(r, "min_relevant_target"); err != nil {
		return req, nil, err
	}
	if req.RefinementCycles, err = formInt(r, "refinement_cycles"); err != nil {
		return req, nil, err
	}
	for field, dst := range map[string]**bool{
		"snowball":      &req.Snowball,
		"enable_arxiv":  &req.EnableArxiv,
		"enable_scopus": &req.EnableScopus,
	} {
		if v := r.FormValue(field); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return req, nil, fmt.Errorf("%s must be a boolean", field)
			}
			*dst = &b
		}
	}

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File[uploadField]
	}
	return req, files, nil
}

func formInt(r *http.Request, field string) (*int, error) {
	v := r.FormValue(field)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", field)
	}
	return &n, nil
}

// saveUploads writes the PDF parts into dir under their base names.
func saveUploads(dir string, files []*multipart.FileHeader) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		src, err := fh.Open()
		if err != nil {
			return err
		}
		dst, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

// launch registers the run and starts it in the background.
func (s *Server) launch(id string, cfg types.PipelineConfig) (*runRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return nil, ErrBusy
	}

	rec := &runRecord{
		status: runStatus{
			ID:        id,
			Subject:   cfg.Subject,
			Status:    ledger.StatusRunning,
			StartedAt: time.Now().UTC(),
		},
		resultsDir: cfg.Workspace.ResultsDir,
		progress:   &progressLog{},
	}
	s.runs[id] = rec
	s.active = id
	s.wg.Add(1)
	go s.execute(rec, cfg)
	return rec, nil
}

func (s *Server) execute(rec *runRecord, cfg types.PipelineConfig) {
	defer s.wg.Done()
	id := rec.status.ID
	log := s.logger.With().Str("run_id", id).Logger()
	log.Info().Str("subject", cfg.Subject).Msg("run started")

	res, err := s.newRunner(id, rec.progress).Run(s.ctx, cfg)
	files := resultFiles(cfg.Workspace.ResultsDir)
	finished := time.Now().UTC()

	rec.mu.Lock()
	rec.status.Status = ledger.StatusSucceeded
	rec.status.Cycles = res.Cycles
	rec.status.Counts = res.Counts
	rec.status.Files = files
	rec.status.FinishedAt = &finished
	if res.DocumentPath != "" {
		rec.status.Document = filepath.Base(res.DocumentPath)
	}
	if err != nil {
		rec.status.Status = ledger.StatusFailed
		rec.status.Error = err.Error()
		if k, ok := pipeline.KindOf(err); ok {
			rec.status.ErrorKind = k.String()
		}
	}
	rec.mu.Unlock()

	s.mu.Lock()
	s.active = ""
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("run failed")
		return
	}
	log.Info().Str("document", res.DocumentPath).Int("cycles", res.Cycles).Msg("run finished")
}

// resultFiles lists the downloadable files in dir, excluding the ledger.
func resultFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ledger.DBFile) {
			continue
		}
		files = append(files, e.Name())
	}
	return files
}

// getRun handles GET /runs/{runID}. Runs started by an earlier process are
// read from the ledger.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")

	s.mu.Lock()
	rec, ok := s.runs[id]
	s.mu.Unlock()
	if ok {
		writeJSON(w, http.StatusOK, rec.snapshot())
		return
	}

	if s.lookup == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	run, err := s.lookup.GetRun(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", id).Msg("reading ledger")
		writeError(w, http.StatusInternalServerError, "failed to read run")
		return
	}
	st := runStatus{
		ID:        run.ID,
		Subject:   run.Subject,
		Status:    run.Status,
		ErrorKind: run.ErrorKind,
		Cycles:    run.Cycles,
		Counts:    run.Counts,
		StartedAt: run.StartedAt,
	}
	if run.DocumentPath != "" {
		st.Document = filepath.Base(run.DocumentPath)
	}
	if !run.FinishedAt.IsZero() {
		st.FinishedAt = &run.FinishedAt
	}
	writeJSON(w, http.StatusOK, st)
}

// getRunFile handles GET /runs/{runID}/files/{name}. Only files listed in
// the run's status are served.
func (s *Server) getRunFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	s.mu.Lock()
	rec, ok := s.runs[id]
	s.mu.Unlock()
	if !ok || !rec.hasFile(name) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	path := filepath.Join(rec.resultsDir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}
