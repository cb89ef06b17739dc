// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/slr-engine/internal/ledger"
	"github.com/pdiddy/slr-engine/internal/pipeline"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// fakeRunner writes a document into the results directory and reports
// progress. When release is set, Run blocks until it is closed.
type fakeRunner struct {
	id      string
	out     io.Writer
	err     error
	release chan struct{}
	got     *types.PipelineConfig
}

func (f *fakeRunner) Run(ctx context.Context, cfg types.PipelineConfig) (pipeline.Result, error) {
	*f.got = cfg
	fmt.Fprintf(f.out, "search 1 %q: 2 fetched\n", cfg.Subject)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return pipeline.Result{RunID: f.id}, ctx.Err()
		}
	}
	if f.err != nil {
		return pipeline.Result{RunID: f.id}, f.err
	}
	doc := filepath.Join(cfg.Workspace.ResultsDir, "Quiz_Cycle_0.tex")
	if err := os.MkdirAll(cfg.Workspace.ResultsDir, 0o755); err != nil {
		return pipeline.Result{}, err
	}
	if err := os.WriteFile(doc, []byte(`\section{`+cfg.Subject+`}`), 0o644); err != nil {
		return pipeline.Result{}, err
	}
	if err := os.WriteFile(filepath.Join(cfg.Workspace.ResultsDir, ledger.DBFile), []byte("db"), 0o644); err != nil {
		return pipeline.Result{}, err
	}
	fmt.Fprintf(f.out, "cycle 0: %s\n", doc)
	return pipeline.Result{
		RunID:        f.id,
		DocumentPath: doc,
		Cycles:       1,
		Counts:       types.Counts{types.CountIncluded: 2},
	}, nil
}

type fixture struct {
	srv     *Server
	base    types.PipelineConfig
	got     types.PipelineConfig
	err     error
	release chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{}
	f.base = types.DefaultPipelineConfig()
	f.base.Workspace = types.WorkspaceConfig{
		PDFDir:       filepath.Join(root, "pdf_papers"),
		TXTDir:       filepath.Join(root, "txt_papers"),
		SummariesDir: filepath.Join(root, "summaries"),
		ResultsDir:   filepath.Join(root, "Results"),
	}
	cfg := DefaultConfig()
	cfg.UploadDir = filepath.Join(root, "uploads")

	factory := func(runID string, out io.Writer) Runner {
		return &fakeRunner{id: runID, out: out, err: f.err, release: f.release, got: &f.got}
	}
	f.srv = New(cfg, f.base, factory, nil, prometheus.NewRegistry(), zerolog.Nop())
	n := 0
	f.srv.NewRunID = func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func (f *fixture) status(t *testing.T, id string) runStatus {
	t.Helper()
	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/runs/"+id, nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var st runStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	return st
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStartRunJSON(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, postJSON(`{"subject":"  quiz games  ","start_year":2019,"end_year":2023,"refinement_cycles":0}`))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "/runs/run-1", rr.Header().Get("Location"))

	f.srv.Wait()
	st := f.status(t, "run-1")
	assert.Equal(t, ledger.StatusSucceeded, st.Status)
	assert.Equal(t, "quiz games", st.Subject)
	assert.Equal(t, "Quiz_Cycle_0.tex", st.Document)
	assert.Equal(t, []string{"Quiz_Cycle_0.tex"}, st.Files, "ledger files are not listed")
	assert.Equal(t, 2, st.Counts[types.CountIncluded])
	assert.Len(t, st.Progress, 2)
	require.NotNil(t, st.FinishedAt)

	assert.Equal(t, 2019, f.got.StartYear)
	assert.Equal(t, 2023, f.got.EndYear)
	assert.Equal(t, 0, f.got.Refinement.Cycles)
	assert.Equal(t, f.base.Fetch.PapersPerIteration, f.got.Fetch.PapersPerIteration, "unset fields keep the base config")
}

func TestStartRunRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"subject":`},
		{"missing subject", `{"subject":"   "}`},
		{"end before start", `{"subject":"quiz","start_year":2024,"end_year":2020}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rr := f.do(t, postJSON(tt.body))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestStartRunMultipartStoresUploads(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("subject", "quiz games"))
	require.NoError(t, mw.WriteField("papers_per_iteration", "7"))
	require.NoError(t, mw.WriteField("snowball", "false"))
	part, err := mw.CreateFormFile("papers", "My Paper.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	part, err = mw.CreateFormFile("papers", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("ignored"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/runs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := f.do(t, req)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	f.srv.Wait()

	assert.Equal(t, 7, f.got.Fetch.PapersPerIteration)
	assert.False(t, f.got.Snowball.Enabled)
	require.NotEmpty(t, f.got.Workspace.ManualDir)
	assert.FileExists(t, filepath.Join(f.got.Workspace.ManualDir, "My Paper.pdf"))
	assert.NoFileExists(t, filepath.Join(f.got.Workspace.ManualDir, "notes.txt"))
}

func TestStartRunMultipartRejectsBadNumbers(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("subject", "quiz games"))
	require.NoError(t, mw.WriteField("start_year", "last year"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/runs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "start_year")
}

func TestStartRunWhileBusy(t *testing.T) {
	f := newFixture(t)
	f.release = make(chan struct{})

	rr := f.do(t, postJSON(`{"subject":"quiz games"}`))
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, ledger.StatusRunning, f.status(t, "run-1").Status)

	rr = f.do(t, postJSON(`{"subject":"another"}`))
	assert.Equal(t, http.StatusConflict, rr.Code)

	health := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, health.Body.String(), `"busy":true`)

	close(f.release)
	f.srv.Wait()
	assert.Equal(t, ledger.StatusSucceeded, f.status(t, "run-1").Status)

	rr = f.do(t, postJSON(`{"subject":"another"}`))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	f.srv.Wait()
}

func TestRunFailureReportsKind(t *testing.T) {
	f := newFixture(t)
	f.err = &pipeline.Error{Kind: pipeline.KindNoSummaries}

	rr := f.do(t, postJSON(`{"subject":"quiz games"}`))
	require.Equal(t, http.StatusAccepted, rr.Code)
	f.srv.Wait()

	st := f.status(t, "run-1")
	assert.Equal(t, ledger.StatusFailed, st.Status)
	assert.Equal(t, "NO_SUMMARIES_GENERATED", st.ErrorKind)
	assert.Equal(t, "NO_SUMMARIES_GENERATED", st.Error)
}

func TestGetRunFile(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusAccepted, f.do(t, postJSON(`{"subject":"quiz games"}`)).Code)
	f.srv.Wait()

	tests := []struct {
		name string
		path string
		code int
	}{
		{"document", "/runs/run-1/files/Quiz_Cycle_0.tex", http.StatusOK},
		{"ledger hidden", "/runs/run-1/files/" + ledger.DBFile, http.StatusNotFound},
		{"unknown file", "/runs/run-1/files/other.tex", http.StatusNotFound},
		{"unknown run", "/runs/run-9/files/Quiz_Cycle_0.tex", http.StatusNotFound},
		{"traversal", "/runs/run-1/files/..", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
			if tt.code == http.StatusOK {
				assert.Equal(t, `\section{quiz games}`, rr.Body.String())
				assert.Contains(t, rr.Header().Get("Content-Disposition"), "Quiz_Cycle_0.tex")
			}
		})
	}
}

func TestSequentialRunsKeepTheirFiles(t *testing.T) {
	f := newFixture(t)
	for _, subject := range []string{"quiz games", "escape rooms"} {
		require.Equal(t, http.StatusAccepted, f.do(t, postJSON(`{"subject":"`+subject+`"}`)).Code)
		f.srv.Wait()
	}
	assert.Equal(t, filepath.Join(f.base.Workspace.ResultsDir, "run-2"), f.got.Workspace.ResultsDir)

	for id, want := range map[string]string{"run-1": `\section{quiz games}`, "run-2": `\section{escape rooms}`} {
		rr := f.do(t, httptest.NewRequest(http.MethodGet, "/runs/"+id+"/files/Quiz_Cycle_0.tex", nil))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, want, rr.Body.String(), id)
	}
}

func TestStartRunWhileBusyDropsUploads(t *testing.T) {
	f := newFixture(t)
	f.release = make(chan struct{})
	require.Equal(t, http.StatusAccepted, f.do(t, postJSON(`{"subject":"quiz games"}`)).Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("subject", "another"))
	part, err := mw.CreateFormFile("papers", "paper.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/runs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	assert.Equal(t, http.StatusConflict, f.do(t, req).Code)
	assert.NoDirExists(t, filepath.Join(f.srv.cfg.UploadDir, "run-2"))

	close(f.release)
	f.srv.Wait()
}

type ledgerLookup map[string]ledger.Run

func (l ledgerLookup) GetRun(_ context.Context, id string) (ledger.Run, error) {
	r, ok := l[id]
	if !ok {
		return ledger.Run{}, ledger.ErrNotFound
	}
	return r, nil
}

func TestGetRunFallsBackToLedger(t *testing.T) {
	f := newFixture(t)
	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.srv.lookup = ledgerLookup{"old": {
		ID:           "old",
		Subject:      "quiz games",
		Status:       ledger.StatusSucceeded,
		DocumentPath: "Results/quiz_games_Cycle_2.tex",
		Cycles:       3,
		FinishedAt:   finished,
	}}

	st := f.status(t, "old")
	assert.Equal(t, "quiz_games_Cycle_2.tex", st.Document)
	assert.Equal(t, 3, st.Cycles)
	require.NotNil(t, st.FinishedAt)
	assert.True(t, finished.Equal(*st.FinishedAt))

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFormAndMetrics(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), `name="subject"`)
	assert.Contains(t, rr.Body.String(), `value="2022"`)

	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestShutdownCancelsActiveRun(t *testing.T) {
	f := newFixture(t)
	f.release = make(chan struct{})
	require.Equal(t, http.StatusAccepted, f.do(t, postJSON(`{"subject":"quiz games"}`)).Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.srv.Shutdown(ctx))

	st := f.status(t, "run-1")
	assert.Equal(t, ledger.StatusFailed, st.Status)
	assert.Contains(t, st.Error, "context canceled")
}
