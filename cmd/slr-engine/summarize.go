// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/slr-engine/internal/relevance"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize text files and screen them for relevance",
	Long: `Summarize asks the LLM for a structured summary of every .txt file in
the text folder, judged against --subject, and writes each summary to the
summaries folder. Existing summaries are reused unless they record an
error. Metadata is taken from the record sidecars that fetch writes.

With --digest the relevant summaries are printed in the form the section
drafts consume.`,
	RunE: runSummarize,
}

func init() {
	f := summarizeCmd.Flags()
	f.String("subject", "", "research subject to judge relevance against")
	f.Bool("digest", false, "print the relevant summaries")
	addWorkspaceFlags(f)
	addLLMFlags(f)

	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, flagKeys{"subject": "subject"}, workspaceFlags, llmFlags)
	if err != nil {
		return err
	}
	if cfg.Subject == "" {
		return fmt.Errorf("--subject is required")
	}

	ctx := context.Background()
	client, err := newLLM(ctx, cfg.LLM, logger, nil)
	if err != nil {
		return err
	}

	inputs, err := relevance.InputsFromDir(cfg.Workspace.TXTDir, sidecarDir(cfg), logger)
	if err != nil {
		return err
	}
	s := relevance.NewSummarizer(client, cfg.Workspace.SummariesDir, cfg.Relevance, logger, nil)
	out := s.Summarize(ctx, cfg.Subject, inputs)

	fmt.Printf("screened %d: %d relevant, %d not relevant, %d errors\n",
		out.Screened(), len(out.Relevant), len(out.Irrelevant), len(out.Errored))

	if digest, _ := cmd.Flags().GetBool("digest"); digest && len(out.Relevant) > 0 {
		fmt.Println()
		if err := relevance.WriteDigest(os.Stdout, out.Relevant); err != nil {
			return err
		}
		fmt.Println()
	}
	return nil
}
