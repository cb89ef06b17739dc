// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/acquire"
	"github.com/pdiddy/slr-engine/internal/llm"
	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// minCachedSize is the smallest summary file reused instead of calling
// the LLM again.
const minCachedSize = 10

// DefaultMaxChars is the paper text budget when none is configured.
const DefaultMaxChars = 25000

// Input is one paper to summarize. Text may be empty when the record has
// only a PDF and the upload fallback is enabled.
type Input struct {
	Record types.PaperRecord
	Text   string
}

// Outcome partitions the summarized records by verdict. Every record has
// SummaryPath and SummaryText set.
type Outcome struct {
	Relevant   []types.PaperRecord
	Irrelevant []types.PaperRecord
	Errored    []types.PaperRecord
}

// Screened returns the number of records that received a verdict.
func (o Outcome) Screened() int {
	return len(o.Relevant) + len(o.Irrelevant) + len(o.Errored)
}

// Merge appends other's partitions to o.
func (o *Outcome) Merge(other Outcome) {
	o.Relevant = append(o.Relevant, other.Relevant...)
	o.Irrelevant = append(o.Irrelevant, other.Irrelevant...)
	o.Errored = append(o.Errored, other.Errored...)
}

// fileGenerator is implemented by generators that can attach an uploaded
// file, such as *llm.Client.
type fileGenerator interface {
	GenerateWithFile(ctx context.Context, prompt, path, mimeType string) string
}

// Summarizer writes one summary file per paper and classifies it.
type Summarizer struct {
	llm     llm.Generator
	dir     string
	cfg     types.RelevanceConfig
	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewSummarizer returns a Summarizer writing into summariesDir.
func NewSummarizer(g llm.Generator, summariesDir string, cfg types.RelevanceConfig, log zerolog.Logger, m *observability.Metrics) *Summarizer {
	if cfg.MaxChars == 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	return &Summarizer{llm: g, dir: summariesDir, cfg: cfg, log: log, metrics: observability.OrDiscard(m)}
}

// SummaryPath returns summaries/<base>_summary.txt for rec.
func (s *Summarizer) SummaryPath(rec types.PaperRecord) string {
	return filepath.Join(s.dir, rec.FileBase()+"_summary.txt")
}

// Summarize summarizes each input and partitions the records. Summaries
// are written to disk whatever the verdict, error texts included.
func (s *Summarizer) Summarize(ctx context.Context, subject string, inputs []Input) Outcome {
	var out Outcome
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.log.Error().Err(err).Str("dir", s.dir).Msg("creating summaries dir")
	}

	for _, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		rec := in.Record
		log := observability.WithPaperContext(s.log, rec.PrimaryID, string(rec.Source))

		rec.SummaryPath = s.SummaryPath(rec)
		rec.SummaryText = s.summary(ctx, log, subject, in, rec.SummaryPath)

		verdict := Classify(rec.SummaryText)
		s.metrics.Verdicts.WithLabelValues(verdict.String()).Inc()
		log.Info().Str("verdict", verdict.String()).Msg("paper screened")

		switch verdict {
		case VerdictRelevant:
			out.Relevant = append(out.Relevant, rec)
		case VerdictIrrelevant:
			out.Irrelevant = append(out.Irrelevant, rec)
		default:
			out.Errored = append(out.Errored, rec)
		}
	}
	return out
}

// summary returns the cached summary or generates and writes a new one.
// Cached error texts are regenerated.
func (s *Summarizer) summary(ctx context.Context, log zerolog.Logger, subject string, in Input, path string) string {
	if cached, ok := readCached(path); ok {
		log.Debug().Str("path", path).Msg("reusing cached summary")
		return cached
	}

	data := promptData{
		Subject:  subject,
		Name:     in.Record.FileBase(),
		Metadata: metadataLines(in),
		Text:     Truncate(in.Text, s.cfg.MaxChars),
	}

	var reply string
	fg, canUpload := s.llm.(fileGenerator)
	switch {
	case strings.TrimSpace(in.Text) != "":
		reply = s.generate(ctx, data, nil)
	case s.cfg.UploadPDFFallback && in.Record.PDFPath != "" && canUpload:
		data.FromFile = true
		reply = s.generate(ctx, data, func(prompt string) string {
			return fg.GenerateWithFile(ctx, prompt, in.Record.PDFPath, "application/pdf")
		})
	default:
		reply = llm.SkippedPrefix + ": no text available for " + data.Name
	}

	if err := os.WriteFile(path, []byte(reply), 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("writing summary")
	}
	return reply
}

func (s *Summarizer) generate(ctx context.Context, d promptData, call func(string) string) string {
	prompt, err := renderPrompt(d)
	if err != nil {
		return fmt.Sprintf("%s: rendering summary prompt: %v", llm.ErrorPrefix, err)
	}
	if call == nil {
		return s.llm.Generate(ctx, prompt)
	}
	return call(prompt)
}

func readCached(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= minCachedSize {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	text := string(data)
	if llm.IsErrorText(text) {
		return "", false
	}
	return text, true
}

// LoadInputs reads the text file of each record. Records whose text file
// is missing get empty text.
func LoadInputs(records []types.PaperRecord, log zerolog.Logger) []Input {
	inputs := make([]Input, 0, len(records))
	for _, rec := range records {
		in := Input{Record: rec}
		if rec.TXTPath != "" {
			data, err := os.ReadFile(rec.TXTPath)
			if err != nil {
				log.Warn().Err(err).Str("primary_id", rec.PrimaryID).Msg("reading paper text")
			} else {
				in.Text = string(data)
			}
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// InputsFromDir builds inputs from every .txt file in txtDir. When a YAML
// sidecar named after the file exists in sidecarDir its metadata is used.
func InputsFromDir(txtDir, sidecarDir string, log zerolog.Logger) ([]Input, error) {
	entries, err := os.ReadDir(txtDir)
	if err != nil {
		return nil, fmt.Errorf("reading text directory %s: %w", txtDir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var records []types.PaperRecord
	for _, name := range names {
		base := strings.TrimSuffix(name, ".txt")
		rec := types.PaperRecord{PrimaryID: base, Title: base}
		if sidecarDir != "" {
			if sc, err := acquire.ReadSidecar(filepath.Join(sidecarDir, base+".yaml")); err == nil {
				rec = sc
			}
		}
		rec.TXTPath = filepath.Join(txtDir, name)
		records = append(records, rec)
	}
	return LoadInputs(records, log), nil
}

// WriteDigest writes the relevant summaries separated by rules, the form
// section prompts consume.
func WriteDigest(w io.Writer, relevant []types.PaperRecord) error {
	for i, rec := range relevant {
		if i > 0 {
			if _, err := io.WriteString(w, "\n\n---\n\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, Body(rec.SummaryText)); err != nil {
			return err
		}
	}
	return nil
}

// Digest returns the relevant summaries joined by WriteDigest.
func Digest(relevant []types.PaperRecord) string {
	var b strings.Builder
	_ = WriteDigest(&b, relevant)
	return b.String()
}
