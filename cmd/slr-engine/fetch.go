// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/slr-engine/internal/acquire"
	"github.com/pdiddy/slr-engine/internal/convert"
	"github.com/pdiddy/slr-engine/internal/pipeline"
	"github.com/pdiddy/slr-engine/internal/search"
	"github.com/pdiddy/slr-engine/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch one round of papers for a query",
	Long: `Fetch runs one search round for --query against the enabled sources,
downloads PDFs into the PDF folder, writes Scopus abstracts to the text
folder, and appends each record to metadata.txt in the results folder.
Papers already in the PDF folder are not fetched again.`,
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.String("query", "", "search query")
	f.Int("limit", 0, "papers to fetch (default: --papers-per-iteration)")
	f.Bool("json", false, "output fetched records as JSON")
	addWorkspaceFlags(f)
	addFetchFlags(f)

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		return fmt.Errorf("--query is required")
	}
	cfg, err := loadConfig(cmd, workspaceFlags, fetchFlags)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = cfg.Fetch.PapersPerIteration
	}

	for _, dir := range []string{cfg.Workspace.PDFDir, cfg.Workspace.TXTDir, sidecarDir(cfg)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	metadata, err := acquire.OpenMetadataLog(filepath.Join(cfg.Workspace.ResultsDir, pipeline.MetadataFile))
	if err != nil {
		return err
	}

	ex := newExtractor(cfg.Convert, logger)
	sources := newSources(cfg, ex, logger)
	if len(sources) == 0 {
		return fmt.Errorf("no sources enabled")
	}
	fetcher := search.NewFetcher(sources, logger, nil, metadata)
	fetcher.SidecarDir = sidecarDir(cfg)

	// Existing downloads count as seen so a repeated fetch moves on.
	seen := search.NewSeenSet(cfg.Fetch.DedupeTitles)
	existing, err := convert.ListPDFs(cfg.Workspace.PDFDir)
	if err != nil {
		return err
	}
	for _, pdf := range existing {
		seen.Add(types.PaperRecord{PrimaryID: strings.TrimSuffix(filepath.Base(pdf), filepath.Ext(pdf))})
	}

	b := fetcher.Fetch(context.Background(), search.Request{
		Query:     query,
		StartYear: cfg.StartYear,
		EndYear:   cfg.EndYear,
		Limit:     limit,
	}, seen)

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return search.FormatJSON(b.Records, os.Stdout)
	}
	search.FormatTable(b.Records, os.Stdout)
	fmt.Printf("%s\n", b.Status)
	return nil
}
