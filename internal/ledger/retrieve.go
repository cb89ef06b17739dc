// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryOptions filters paper lookups.
type QueryOptions struct {
	// Query is an FTS5 search over titles and summaries.
	Query string

	RunID string

	// Verdict is "relevant", "irrelevant" or "error".
	Verdict string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// Paper is one screened record as stored in the ledger.
type Paper struct {
	RunID     string   `json:"run_id" yaml:"run_id"`
	PrimaryID string   `json:"primary_id" yaml:"primary_id"`
	Source    string   `json:"source" yaml:"source"`
	Title     string   `json:"title" yaml:"title"`
	Authors   []string `json:"authors" yaml:"authors"`
	Year      int      `json:"year,omitempty" yaml:"year,omitempty"`
	DOI       string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL       string   `json:"url,omitempty" yaml:"url,omitempty"`
	Verdict   string   `json:"verdict" yaml:"verdict"`
	Summary   string   `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Papers returns stored papers matching opts. Full-text queries are ranked
// by relevance; otherwise results are ordered by run and primary ID.
func (s *Store) Papers(ctx context.Context, opts QueryOptions) ([]Paper, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT p.run_id, p.primary_id, p.source, p.title, p.authors, p.year,
				p.doi, p.url, p.verdict, p.summary
			FROM papers_fts
			JOIN papers p ON p.rowid = papers_fts.rowid
			WHERE papers_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT p.run_id, p.primary_id, p.source, p.title, p.authors, p.year,
				p.doi, p.url, p.verdict, p.summary
			FROM papers p
			WHERE 1=1`)
	}

	if opts.RunID != "" {
		qb.WriteString(` AND p.run_id = ?`)
		args = append(args, opts.RunID)
	}
	if opts.Verdict != "" {
		qb.WriteString(` AND p.verdict = ?`)
		args = append(args, opts.Verdict)
	}

	if useFTS {
		qb.WriteString(` ORDER BY papers_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY p.run_id, p.primary_id`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var papers []Paper
	for rows.Next() {
		var (
			p                 Paper
			title, authors    sql.NullString
			doi, url, summary sql.NullString
			year              sql.NullInt64
		)
		if err := rows.Scan(&p.RunID, &p.PrimaryID, &p.Source, &title, &authors, &year,
			&doi, &url, &p.Verdict, &summary); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		p.Title = title.String
		p.Year = int(year.Int64)
		p.DOI = doi.String
		p.URL = url.String
		p.Summary = summary.String
		if authors.Valid {
			json.Unmarshal([]byte(authors.String), &p.Authors)
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}
