// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full review pipeline for a subject",
	Long: `Run generates search queries for --subject, fetches and screens papers,
snowballs references from the relevant ones, fetches more until the
relevant target is met, and drafts the review with critique cycles.

Drafts are written to the results folder as <subject>_Cycle_<n>.tex next
to references.bib, the cycle report, and the run ledger.`,
	RunE: runRun,
}

var runFlags = flagKeys{
	"subject":           "subject",
	"search-iterations": "fetch.search_iterations",
	"manual-dir":        "workspace.manual_dir",
	"clear":             "workspace.clear",
	"snowball":          "snowball.enabled",
	"min-relevant":      "supplementary.min_relevant_target",
	"max-supplementary": "supplementary.max_iterations",
	"cycles":            "refinement.cycles",
	"ocr":               "convert.ocr",
}

func init() {
	d := types.DefaultPipelineConfig()
	f := runCmd.Flags()
	f.String("subject", "", "research subject; also the document title")
	f.Int("search-iterations", d.Fetch.SearchIterations, "distinct queries in the initial search")
	f.String("manual-dir", "", "folder of your own PDFs to include")
	f.Bool("clear", d.Workspace.Clear, "empty the working folders before the run")
	f.Bool("snowball", d.Snowball.Enabled, "expand through references of relevant papers")
	f.Int("min-relevant", d.Supplementary.MinRelevantTarget, "fetch more until this many papers are relevant")
	f.Int("max-supplementary", d.Supplementary.MaxIterations, "maximum supplementary fetch rounds")
	f.Int("cycles", d.Refinement.Cycles, "critique and redraft cycles after the first draft")
	f.Bool("ocr", d.Convert.OCR, "fall back to page OCR for PDFs without a text layer")
	addWorkspaceFlags(f)
	addFetchFlags(f)
	addLLMFlags(f)

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, runFlags, workspaceFlags, fetchFlags, llmFlags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg, logger, observability.Discard())
	if err != nil {
		return err
	}
	store, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	p.Ledger = store
	p.Out = os.Stdout

	res, err := p.Run(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("\nrun %s\n", res.RunID)
	fmt.Printf("relevant papers: %d (supplementary rounds: %d)\n", len(res.Relevant), res.SupplementaryRounds)
	fmt.Printf("document: %s\n", res.DocumentPath)
	fmt.Printf("bibliography: %s\n", res.BibPath)
	fmt.Printf("cycle report: %s\n", res.ReportPath)
	return nil
}
