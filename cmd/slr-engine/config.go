// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/slr-engine/internal/acquire"
	"github.com/pdiddy/slr-engine/internal/container"
	"github.com/pdiddy/slr-engine/internal/convert"
	"github.com/pdiddy/slr-engine/internal/httputil"
	"github.com/pdiddy/slr-engine/internal/ledger"
	"github.com/pdiddy/slr-engine/internal/llm"
	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/internal/pipeline"
	"github.com/pdiddy/slr-engine/internal/search"
	"github.com/pdiddy/slr-engine/internal/secrets"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// flagKeys maps command flags to viper keys. Flags are bound when the
// command runs so commands sharing a key do not steal each other's binding.
type flagKeys map[string]string

// workspaceFlags are shared by every command that touches the folders.
var workspaceFlags = flagKeys{
	"pdf-dir":       "workspace.pdf_dir",
	"txt-dir":       "workspace.txt_dir",
	"summaries-dir": "workspace.summaries_dir",
	"results-dir":   "workspace.results_dir",
}

// llmFlags configure the Gemini client.
var llmFlags = flagKeys{
	"model":          "llm.model",
	"gemini-api-key": "llm.api_key",
}

func addWorkspaceFlags(fs *pflag.FlagSet) {
	d := types.DefaultPipelineConfig().Workspace
	fs.String("pdf-dir", d.PDFDir, "folder for downloaded and uploaded PDFs")
	fs.String("txt-dir", d.TXTDir, "folder for extracted text")
	fs.String("summaries-dir", d.SummariesDir, "folder for paper summaries")
	fs.String("results-dir", d.ResultsDir, "folder for drafts, reports, and the run ledger")
}

func addLLMFlags(fs *pflag.FlagSet) {
	d := types.DefaultPipelineConfig().LLM
	fs.String("model", d.Model, "Gemini model")
	fs.String("gemini-api-key", "", "Gemini API key (default: GEMINI_API_KEY or .secrets/gemini-api-key)")
}

func addFetchFlags(fs *pflag.FlagSet) {
	d := types.DefaultPipelineConfig()
	fs.Int("start-year", d.StartYear, "first publication year")
	fs.Int("end-year", d.EndYear, "last publication year")
	fs.Int("papers-per-iteration", d.Fetch.PapersPerIteration, "new papers requested per search round")
	fs.Bool("arxiv", d.Fetch.EnableArxiv, "search arXiv")
	fs.Bool("scopus", d.Fetch.EnableScopus, "search Scopus")
	fs.String("scopus-api-key", "", "Scopus API key (default: SCOPUS_API_KEY or .secrets/scopus-api-key)")
	fs.Bool("dedupe-titles", d.Fetch.DedupeTitles, "also drop records whose title was already fetched from another source")
}

var fetchFlags = flagKeys{
	"start-year":           "start_year",
	"end-year":             "end_year",
	"papers-per-iteration": "fetch.papers_per_iteration",
	"arxiv":                "fetch.enable_arxiv",
	"scopus":               "fetch.enable_scopus",
	"scopus-api-key":       "fetch.scopus_api_key",
	"dedupe-titles":        "fetch.dedupe_titles",
}

func bindFlags(cmd *cobra.Command, sets ...flagKeys) error {
	for _, set := range sets {
		for flag, key := range set {
			f := cmd.Flags().Lookup(flag)
			if f == nil {
				continue
			}
			if err := viper.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding --%s: %w", flag, err)
			}
		}
	}
	return nil
}

// loadConfig binds the flag sets, overlays viper onto the defaults, and
// resolves API keys. It does not validate.
func loadConfig(cmd *cobra.Command, sets ...flagKeys) (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if err := bindFlags(cmd, sets...); err != nil {
		return cfg, err
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	cfg.LLM.APIKey = keys.Resolve(secrets.GeminiAPIKey, cfg.LLM.APIKey)
	cfg.Fetch.ScopusAPIKey = keys.Resolve(secrets.ScopusAPIKey, cfg.Fetch.ScopusAPIKey)
	return cfg, nil
}

// newLLM builds the rate-limited Gemini client.
func newLLM(ctx context.Context, cfg types.LLMConfig, log zerolog.Logger, m *observability.Metrics) (*llm.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no Gemini API key: set --gemini-api-key, GEMINI_API_KEY, or .secrets/%s", secrets.GeminiAPIKey)
	}
	backend, err := llm.NewGeminiBackend(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(backend, cfg, log, m), nil
}

// newExtractor returns the PDF text reader, followed by page OCR when the
// OCR tools are on PATH or available through the configured image.
func newExtractor(cfg types.ConvertConfig, log zerolog.Logger) convert.Extractor {
	chain := convert.Chain{convert.NewPDFExtractor(log)}
	if ocr := newOCR(cfg, log); ocr != nil {
		chain = append(chain, ocr)
	}
	return chain
}

func newOCR(cfg types.ConvertConfig, log zerolog.Logger) *convert.OCRExtractor {
	if !cfg.OCR {
		return nil
	}
	tools, err := container.DetectToolchain(convert.OCRTools, cfg.OCRImage)
	if err != nil {
		log.Warn().Err(err).Msg("OCR unavailable, using PDF text only")
		return nil
	}
	log.Debug().Str("toolchain", tools.Name()).Msg("OCR enabled")
	return convert.NewOCRExtractor(tools, cfg.DPI, cfg.Language, log)
}

// newSources returns the enabled search sources in fetch order.
func newSources(cfg types.PipelineConfig, ex convert.Extractor, log zerolog.Logger) []search.Source {
	client := &http.Client{Timeout: cfg.Fetch.Timeout}
	dl := acquire.NewDownloader(client, cfg.Fetch.DownloadTimeout)

	var sources []search.Source
	if cfg.Fetch.EnableArxiv {
		sources = append(sources, &search.ArxivSource{
			Client:     client,
			Downloader: dl,
			Gate:       httputil.NewGate(cfg.Fetch.ArxivDelay),
			PDFDir:     cfg.Workspace.PDFDir,
			UserAgent:  cfg.Fetch.UserAgent,
			Log:        log.With().Str("source", string(types.SourceArxiv)).Logger(),
		})
	}
	if cfg.Fetch.EnableScopus {
		if cfg.Fetch.ScopusAPIKey == "" {
			log.Warn().Msg("no Scopus API key, skipping Scopus")
		} else {
			sources = append(sources, &search.ScopusSource{
				Client:     client,
				Downloader: dl,
				APIKey:     cfg.Fetch.ScopusAPIKey,
				Text:       ex,
				PDFDir:     cfg.Workspace.PDFDir,
				TXTDir:     cfg.Workspace.TXTDir,
				Log:        log.With().Str("source", string(types.SourceScopus)).Logger(),
			})
		}
	}
	return sources
}

// newPipeline wires a pipeline for cfg. The caller owns the ledger.
func newPipeline(ctx context.Context, cfg types.PipelineConfig, log zerolog.Logger, m *observability.Metrics) (*pipeline.Pipeline, error) {
	client, err := newLLM(ctx, cfg.LLM, log, m)
	if err != nil {
		return nil, err
	}
	ex := newExtractor(cfg.Convert, log)
	return pipeline.New(client, newSources(cfg, ex, log), ex, log, m), nil
}

func openLedger(cfg types.PipelineConfig) (*ledger.Store, error) {
	return ledger.Open(cfg.Workspace.ResultsDir)
}

func sidecarDir(cfg types.PipelineConfig) string {
	return filepath.Join(cfg.Workspace.ResultsDir, pipeline.RecordsDir)
}
