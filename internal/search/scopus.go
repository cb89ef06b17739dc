// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/acquire"
	"github.com/pdiddy/slr-engine/internal/httputil"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// Scopus endpoints. Declared as vars so tests can substitute an httptest
// server.
var (
	scopusSearchURL  = "https://api.elsevier.com/content/search/scopus"
	scopusArticleURL = "https://api.elsevier.com/content/article/doi/"
)

// ErrNoScopusKey is returned when the Scopus source has no API key.
var ErrNoScopusKey = errors.New("scopus: missing API key")

// TextExtractor turns a downloaded PDF into text. convert.OCRExtractor and
// convert.PDFExtractor both satisfy it.
type TextExtractor interface {
	Extract(ctx context.Context, pdfPath string) (string, error)
}

// ScopusSource runs a single-page Scopus search and keeps each hit for
// which some text can be obtained: full text from the article PDF when
// the key is entitled to it, otherwise the abstract.
type ScopusSource struct {
	Client     *http.Client
	Downloader *acquire.Downloader
	APIKey     string

	// Text converts downloaded article PDFs; nil keeps only abstracts.
	Text TextExtractor

	PDFDir string
	TXTDir string

	Log zerolog.Logger
}

// Name returns the source identifier.
func (s *ScopusSource) Name() types.Source { return types.SourceScopus }

// Fetch searches once with count twice the limit and returns up to
// req.Limit records with text.
func (s *ScopusSource) Fetch(ctx context.Context, req Request, seen *SeenSet) (Batch, error) {
	var out Batch
	if s.APIKey == "" {
		return out, ErrNoScopusKey
	}

	entries, err := s.search(ctx, req)
	if err != nil {
		out.Status = fmt.Sprintf("Scopus search failed: %v", err)
		return out, err
	}

	for _, e := range entries {
		if len(out.Records) >= req.Limit {
			break
		}
		rec, scopusID, ok := s.record(e, req)
		if !ok || !seen.Check(rec) {
			out.Skipped++
			continue
		}
		if !s.obtainText(ctx, &rec, scopusID) {
			s.Log.Debug().Str("primary_id", rec.PrimaryID).Msg("no full text or abstract, skipping")
			out.Skipped++
			continue
		}
		seen.Add(rec)
		out.Records = append(out.Records, rec)
	}

	out.Status = fmt.Sprintf("Scopus: %d kept, %d skipped", len(out.Records), out.Skipped)
	return out, nil
}

// ScopusQuery builds the search expression with the year range embedded.
func ScopusQuery(q string, startYear, endYear int) string {
	expr := fmt.Sprintf("TITLE-ABS-KEY(%s)", q)
	if startYear > 0 {
		expr += fmt.Sprintf(" AND PUBYEAR > %d", startYear-1)
	}
	if endYear > 0 {
		expr += fmt.Sprintf(" AND PUBYEAR < %d", endYear+1)
	}
	return expr
}

func (s *ScopusSource) search(ctx context.Context, req Request) ([]scopusEntry, error) {
	count := 2 * req.Limit
	if count <= 0 {
		count = 2
	}
	params := url.Values{}
	params.Set("query", ScopusQuery(req.Query, req.StartYear, req.EndYear))
	params.Set("start", "0")
	params.Set("count", strconv.Itoa(count))

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, scopusSearchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	hreq.Header.Set("X-ELS-APIKey", s.APIKey)
	hreq.Header.Set("Accept", "application/json")

	resp, err := httputil.DoWithRetry(ctx, s.Client, hreq, 3)
	if err != nil {
		return nil, fmt.Errorf("Scopus API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Scopus API returned HTTP %d", resp.StatusCode)
	}

	var sr scopusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Scopus response: %w", err)
	}
	return sr.Results.Entries, nil
}

func (s *ScopusSource) record(e scopusEntry, req Request) (types.PaperRecord, string, bool) {
	scopusID := acquire.ScopusID(e.Identifier)
	doi := strings.TrimSpace(e.DOI)
	if scopusID == "" && doi == "" {
		return types.PaperRecord{}, "", false
	}
	year, ok := parseYear(e.CoverDate)
	if !ok || !req.InRange(year) {
		return types.PaperRecord{}, "", false
	}

	rec := types.PaperRecord{
		Source:        types.SourceScopus.WithSuffix(req.Origin),
		PrimaryID:     acquire.ScopusPrimaryID(doi, scopusID),
		Title:         collapseSpace(e.Title),
		PublishedYear: year,
		DOI:           doi,
		URL:           e.URL,
		JournalRef:    e.PublicationName,
		Abstract:      strings.TrimSpace(e.Description),
	}
	for _, a := range e.Authors {
		if name := a.name(); name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}
	if len(rec.Authors) == 0 && e.Creator != "" {
		rec.Authors = []string{e.Creator}
	}
	if scopusID == "" {
		scopusID = rec.PrimaryID
	}
	return rec, scopusID, true
}

// obtainText tries the article PDF first and falls back to the abstract.
// It sets PDFPath and TXTPath on success.
func (s *ScopusSource) obtainText(ctx context.Context, rec *types.PaperRecord, scopusID string) bool {
	if rec.DOI != "" && s.Text != nil {
		if s.fullText(ctx, rec) {
			return true
		}
	}

	path, err := acquire.WriteAbstract(s.TXTDir, scopusID, *rec)
	if err != nil {
		s.Log.Warn().Err(err).Str("primary_id", rec.PrimaryID).Msg("writing abstract fallback")
		return false
	}
	if path == "" {
		return false
	}
	rec.TXTPath = path
	return true
}

func (s *ScopusSource) fullText(ctx context.Context, rec *types.PaperRecord) bool {
	pdfPath := filepath.Join(s.PDFDir, rec.PrimaryID+".pdf")
	header := http.Header{"X-ELS-APIKey": []string{s.APIKey}}
	articleURL := scopusArticleURL + rec.DOI + "?httpAccept=application%2Fpdf"

	if err := s.Downloader.DownloadPDF(ctx, articleURL, pdfPath, header); err != nil {
		s.Log.Debug().Err(err).Str("doi", rec.DOI).Msg("Scopus PDF not available")
		return false
	}

	text, err := s.Text.Extract(ctx, pdfPath)
	if err != nil || strings.TrimSpace(text) == "" {
		// A record keeps either its article text or its abstract, not both.
		os.Remove(pdfPath)
		s.Log.Warn().Err(err).Str("doi", rec.DOI).Msg("Scopus PDF text extraction failed")
		return false
	}

	txtPath := filepath.Join(s.TXTDir, rec.PrimaryID+".txt")
	if err := os.MkdirAll(s.TXTDir, 0o755); err != nil {
		return false
	}
	if err := os.WriteFile(txtPath, []byte(text), 0o644); err != nil {
		s.Log.Warn().Err(err).Str("path", txtPath).Msg("writing Scopus text")
		os.Remove(pdfPath)
		return false
	}
	rec.PDFPath = pdfPath
	rec.TXTPath = txtPath
	return true
}

// Scopus Search API JSON structures.
type scopusResponse struct {
	Results struct {
		Entries []scopusEntry `json:"entry"`
	} `json:"search-results"`
}

type scopusEntry struct {
	Identifier      string         `json:"dc:identifier"`
	Title           string         `json:"dc:title"`
	Creator         string         `json:"dc:creator"`
	DOI             string         `json:"prism:doi"`
	CoverDate       string         `json:"prism:coverDate"`
	Description     string         `json:"dc:description"`
	URL             string         `json:"prism:url"`
	PublicationName string         `json:"prism:publicationName"`
	Authors         []scopusAuthor `json:"author"`
}

type scopusAuthor struct {
	Value    string `json:"$"`
	AuthName string `json:"authname"`
}

func (a scopusAuthor) name() string {
	if a.Value != "" {
		return strings.TrimSpace(a.Value)
	}
	return strings.TrimSpace(a.AuthName)
}
