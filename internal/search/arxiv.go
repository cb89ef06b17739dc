// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/acquire"
	"github.com/pdiddy/slr-engine/internal/httputil"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "http://export.arxiv.org/api/query"

const (
	arxivPageSize        = 100
	defaultArxivMaxPages = 5
)

// ArxivSource pages through the arXiv Atom API and downloads matching PDFs.
type ArxivSource struct {
	Client     *http.Client
	Downloader *acquire.Downloader

	// Gate spaces out API calls; nil disables the politeness delay.
	Gate *httputil.Gate

	PDFDir    string
	UserAgent string

	// MaxPages bounds pagination when few entries fall inside the year range.
	MaxPages int

	Log zerolog.Logger
}

// Name returns the source identifier.
func (a *ArxivSource) Name() types.Source { return types.SourceArxiv }

// Fetch pages the API until req.Limit new records are downloaded, the
// feed is exhausted, or MaxPages is reached.
func (a *ArxivSource) Fetch(ctx context.Context, req Request, seen *SeenSet) (Batch, error) {
	var out Batch
	maxPages := a.MaxPages
	if maxPages <= 0 {
		maxPages = defaultArxivMaxPages
	}

	for page := 0; page < maxPages && len(out.Records) < req.Limit; page++ {
		if err := a.Gate.Wait(ctx); err != nil {
			return out, err
		}

		feed, err := a.query(ctx, req.Query, page*arxivPageSize)
		if err != nil {
			out.Status = fmt.Sprintf("arXiv page %d failed: %v", page, err)
			return out, err
		}
		if len(feed.Entries) == 0 {
			break
		}

		for _, entry := range feed.Entries {
			if len(out.Records) >= req.Limit {
				break
			}
			rec, ok := a.record(entry, req)
			if !ok || !seen.Check(rec) {
				out.Skipped++
				continue
			}

			pdfURL := entry.pdfURL()
			rec.PDFPath = filepath.Join(a.PDFDir, rec.PrimaryID+".pdf")
			if err := a.Downloader.DownloadPDF(ctx, pdfURL, rec.PDFPath, nil); err != nil {
				a.Log.Warn().Err(err).Str("primary_id", rec.PrimaryID).Str("url", pdfURL).Msg("arXiv PDF download failed")
				out.Skipped++
				continue
			}

			seen.Add(rec)
			out.Records = append(out.Records, rec)
			a.Log.Debug().Str("primary_id", rec.PrimaryID).Int("year", rec.PublishedYear).Msg("downloaded arXiv paper")
		}

		if len(feed.Entries) < arxivPageSize {
			break
		}
	}

	out.Status = fmt.Sprintf("arXiv: %d downloaded, %d skipped", len(out.Records), out.Skipped)
	return out, nil
}

func (a *ArxivSource) query(ctx context.Context, q string, start int) (*arxivFeed, error) {
	params := url.Values{}
	params.Set("search_query", fmt.Sprintf("ti:%s OR abs:%s", q, q))
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(arxivPageSize))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if a.UserAgent != "" {
		req.Header.Set("User-Agent", a.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, a.Client, req, 3)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}
	return &feed, nil
}

// record maps an entry to a PaperRecord. It rejects entries without an ID,
// without a parseable year, or outside the requested range.
func (a *ArxivSource) record(e arxivEntry, req Request) (types.PaperRecord, bool) {
	id := acquire.ArxivID(e.ID)
	if id == "" {
		return types.PaperRecord{}, false
	}
	year, ok := parseYear(e.Published)
	if !ok || !req.InRange(year) {
		return types.PaperRecord{}, false
	}

	rec := types.PaperRecord{
		Source:        types.SourceArxiv.WithSuffix(req.Origin),
		PrimaryID:     acquire.ArxivPrimaryID(id),
		Title:         collapseSpace(e.Title),
		PublishedYear: year,
		DOI:           strings.TrimSpace(e.DOI),
		URL:           strings.TrimSpace(e.ID),
		JournalRef:    collapseSpace(e.JournalRef),
		Abstract:      collapseSpace(e.Summary),
	}
	for _, au := range e.Authors {
		if name := strings.TrimSpace(au.Name); name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}
	return rec, true
}

// parseYear reads the leading four-digit year of a date string.
func parseYear(date string) (int, bool) {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil || y <= 0 {
		return 0, false
	}
	return y, true
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string        `xml:"id"`
	Title      string        `xml:"title"`
	Summary    string        `xml:"summary"`
	Published  string        `xml:"published"`
	Authors    []arxivAuthor `xml:"author"`
	DOI        string        `xml:"doi"`
	JournalRef string        `xml:"journal_ref"`
	Links      []arxivLink   `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
}

// pdfURL prefers the link titled "pdf" and falls back to the canonical
// arxiv.org/pdf location.
func (e arxivEntry) pdfURL() string {
	for _, l := range e.Links {
		if l.Title == "pdf" && l.Href != "" {
			return l.Href
		}
	}
	return acquire.ArxivPDFURL(acquire.ArxivID(e.ID))
}
