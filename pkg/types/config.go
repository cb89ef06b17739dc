package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is sent with API requests. PDF downloads always use a
	// desktop browser agent because publishers reject tool agents.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// WorkspaceConfig names the working folders of a run.
type WorkspaceConfig struct {
	PDFDir       string `json:"pdf_dir" yaml:"pdf_dir" mapstructure:"pdf_dir" validate:"required"`
	TXTDir       string `json:"txt_dir" yaml:"txt_dir" mapstructure:"txt_dir" validate:"required"`
	SummariesDir string `json:"summaries_dir" yaml:"summaries_dir" mapstructure:"summaries_dir" validate:"required"`
	ResultsDir   string `json:"results_dir" yaml:"results_dir" mapstructure:"results_dir" validate:"required"`

	// ManualDir holds user-supplied PDFs copied into PDFDir after the
	// start-of-run clear. Optional.
	ManualDir string `json:"manual_dir,omitempty" yaml:"manual_dir,omitempty" mapstructure:"manual_dir"`

	// Clear empties the working folders at the start of a run.
	Clear bool `json:"clear" yaml:"clear" mapstructure:"clear"`
}

// FetchConfig holds settings for the multi-source fetcher.
type FetchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// PapersPerIteration is the number of new papers requested per search round.
	PapersPerIteration int `json:"papers_per_iteration" yaml:"papers_per_iteration" mapstructure:"papers_per_iteration" validate:"min=1,max=100"`

	// SearchIterations is how many distinct queries the initial phase tries.
	SearchIterations int `json:"search_iterations" yaml:"search_iterations" mapstructure:"search_iterations" validate:"min=1,max=10"`

	EnableArxiv  bool `json:"enable_arxiv" yaml:"enable_arxiv" mapstructure:"enable_arxiv"`
	EnableScopus bool `json:"enable_scopus" yaml:"enable_scopus" mapstructure:"enable_scopus"`

	// ScopusAPIKey is sent as X-ELS-APIKey. Scopus is skipped when empty.
	ScopusAPIKey string `json:"-" yaml:"-" mapstructure:"scopus_api_key"`

	// ArxivDelay is the politeness gap between arXiv API calls (default 3s).
	ArxivDelay time.Duration `json:"arxiv_delay" yaml:"arxiv_delay" mapstructure:"arxiv_delay"`

	// DownloadTimeout bounds a single PDF download (default 60s).
	DownloadTimeout time.Duration `json:"download_timeout" yaml:"download_timeout" mapstructure:"download_timeout"`

	// DedupeTitles additionally suppresses records whose normalized title was
	// already fetched from any source.
	DedupeTitles bool `json:"dedupe_titles" yaml:"dedupe_titles" mapstructure:"dedupe_titles"`
}

// LLMConfig holds settings for the hosted LLM client.
type LLMConfig struct {
	// Model is the Gemini model identifier (e.g. "gemini-2.0-flash").
	Model string `json:"model" yaml:"model" mapstructure:"model" validate:"required"`

	// APIKey is the authentication key for the LLM API.
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"`

	Temperature     float32 `json:"temperature" yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxOutputTokens int32   `json:"max_output_tokens" yaml:"max_output_tokens" mapstructure:"max_output_tokens" validate:"gte=0"`

	// CallsBeforePause and Pause form the soft rate limit: after every
	// CallsBeforePause calls the client sleeps for Pause.
	CallsBeforePause int           `json:"calls_before_pause" yaml:"calls_before_pause" mapstructure:"calls_before_pause" validate:"gte=0"`
	Pause            time.Duration `json:"pause" yaml:"pause" mapstructure:"pause"`

	// MaxRetries is the number of retries on quota errors (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`

	// QuotaBackoff is the fixed delay between quota retries.
	QuotaBackoff time.Duration `json:"quota_backoff" yaml:"quota_backoff" mapstructure:"quota_backoff"`
}

// ConvertConfig holds settings for PDF text extraction.
type ConvertConfig struct {
	// OCR enables the page-image OCR fallback for Scopus PDFs.
	OCR bool `json:"ocr" yaml:"ocr" mapstructure:"ocr"`

	// OCRImage is a container image providing pdftoppm and tesseract, used
	// when the tools are not on PATH. Empty disables the fallback.
	OCRImage string `json:"ocr_image" yaml:"ocr_image" mapstructure:"ocr_image"`

	// DPI is the page render resolution for OCR (default 300).
	DPI int `json:"dpi" yaml:"dpi" mapstructure:"dpi" validate:"gte=0,lte=1200"`

	// Language is the tesseract language code (default "eng").
	Language string `json:"language" yaml:"language" mapstructure:"language"`
}

// RelevanceConfig holds settings for the summarize-and-filter stage.
type RelevanceConfig struct {
	// MaxChars truncates paper text before prompting (default 25000).
	MaxChars int `json:"max_chars" yaml:"max_chars" mapstructure:"max_chars" validate:"gte=0"`

	// UploadPDFFallback summarizes from the uploaded PDF when no text exists.
	UploadPDFFallback bool `json:"upload_pdf_fallback" yaml:"upload_pdf_fallback" mapstructure:"upload_pdf_fallback"`
}

// SnowballConfig bounds reference-based expansion.
type SnowballConfig struct {
	Enabled               bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MaxIterations         int  `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations" validate:"gte=0"`
	MaxReferencesPerPaper int  `json:"max_references_per_paper" yaml:"max_references_per_paper" mapstructure:"max_references_per_paper" validate:"gte=0"`
	MaxPapersToAdd        int  `json:"max_papers_to_add" yaml:"max_papers_to_add" mapstructure:"max_papers_to_add" validate:"gte=0"`
}

// SupplementaryConfig controls the fetch-until-target loop.
type SupplementaryConfig struct {
	MinRelevantTarget int `json:"min_relevant_target" yaml:"min_relevant_target" mapstructure:"min_relevant_target" validate:"gte=0"`
	MaxIterations     int `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations" validate:"gte=0"`
	PerIterationCap   int `json:"per_iteration_cap" yaml:"per_iteration_cap" mapstructure:"per_iteration_cap" validate:"gte=1"`
}

// RefinementConfig controls the critique loop.
type RefinementConfig struct {
	// Cycles is num_refinement_cycles; the loop runs at most Cycles+1 drafts.
	Cycles int `json:"cycles" yaml:"cycles" mapstructure:"cycles" validate:"gte=0,lte=10"`

	// StopRating is the minimum numeric rating for early termination (default 8).
	StopRating float64 `json:"stop_rating" yaml:"stop_rating" mapstructure:"stop_rating" validate:"gte=0"`
}

// PipelineConfig groups all stage configurations for one run.
type PipelineConfig struct {
	// Subject is the natural-language goal; it also titles the document.
	Subject   string `json:"subject" yaml:"subject" mapstructure:"subject" validate:"required"`
	StartYear int    `json:"start_year" yaml:"start_year" mapstructure:"start_year" validate:"gte=1900,lte=2100"`
	EndYear   int    `json:"end_year" yaml:"end_year" mapstructure:"end_year" validate:"gte=1900,lte=2100,gtefield=StartYear"`

	Workspace     WorkspaceConfig     `json:"workspace" yaml:"workspace" mapstructure:"workspace"`
	Fetch         FetchConfig         `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Convert       ConvertConfig       `json:"convert" yaml:"convert" mapstructure:"convert"`
	LLM           LLMConfig           `json:"llm" yaml:"llm" mapstructure:"llm"`
	Relevance     RelevanceConfig     `json:"relevance" yaml:"relevance" mapstructure:"relevance"`
	Snowball      SnowballConfig      `json:"snowball" yaml:"snowball" mapstructure:"snowball"`
	Supplementary SupplementaryConfig `json:"supplementary" yaml:"supplementary" mapstructure:"supplementary"`
	Refinement    RefinementConfig    `json:"refinement" yaml:"refinement" mapstructure:"refinement"`
}

// DefaultPipelineConfig returns the settings used when nothing is configured.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		StartYear: 2022,
		EndYear:   2024,
		Workspace: WorkspaceConfig{
			PDFDir:       "pdf_papers",
			TXTDir:       "txt_papers",
			SummariesDir: "summaries",
			ResultsDir:   "Results",
			Clear:        true,
		},
		Fetch: FetchConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   30 * time.Second,
				UserAgent: "slr-engine/0.1",
			},
			PapersPerIteration: 3,
			SearchIterations:   1,
			EnableArxiv:        true,
			EnableScopus:       true,
			ArxivDelay:         3 * time.Second,
			DownloadTimeout:    60 * time.Second,
		},
		Convert: ConvertConfig{
			OCR:      true,
			OCRImage: "slr-ocr:latest",
			DPI:      300,
			Language: "eng",
		},
		LLM: LLMConfig{
			Model:            "gemini-2.0-flash",
			Temperature:      0.7,
			MaxOutputTokens:  8192,
			CallsBeforePause: 10,
			Pause:            60 * time.Second,
			MaxRetries:       3,
			QuotaBackoff:     60 * time.Second,
		},
		Relevance: RelevanceConfig{
			MaxChars: 25000,
		},
		Snowball: SnowballConfig{
			Enabled:               true,
			MaxIterations:         1,
			MaxReferencesPerPaper: 5,
			MaxPapersToAdd:        5,
		},
		Supplementary: SupplementaryConfig{
			MinRelevantTarget: 5,
			MaxIterations:     2,
			PerIterationCap:   3,
		},
		Refinement: RefinementConfig{
			Cycles:     1,
			StopRating: 8,
		},
	}
}

var validate = validator.New()

// Validate checks field constraints declared in the struct tags.
func (c PipelineConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	return nil
}
