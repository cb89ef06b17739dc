// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/slr-engine/internal/llm"
	"github.com/pdiddy/slr-engine/internal/references"
)

var referencesCmd = &cobra.Command{
	Use:   "references <txt-file>",
	Short: "Print the reference candidates parsed from a paper",
	Long: `References isolates the reference list of a converted paper and parses
it into (title, authors, year) candidates, the same way snowballing does.
The LLM isolates the section unless --no-llm is set, in which case the
section is located by its heading.`,
	Args: cobra.ExactArgs(1),
	RunE: runReferences,
}

func init() {
	f := referencesCmd.Flags()
	f.Bool("no-llm", false, "locate the references section by heading only")
	f.Bool("json", false, "output candidates as JSON")
	addLLMFlags(f)

	rootCmd.AddCommand(referencesCmd)
}

func runReferences(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	var isolator llm.Generator
	if noLLM, _ := cmd.Flags().GetBool("no-llm"); !noLLM {
		cfg, err := loadConfig(cmd, llmFlags)
		if err != nil {
			return err
		}
		client, err := newLLM(ctx, cfg.LLM, logger, nil)
		if err != nil {
			return err
		}
		isolator = client
	}

	candidates := references.NewHeuristicExtractor(isolator, logger).Extract(ctx, string(data))

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(candidates)
	}
	if len(candidates) == 0 {
		fmt.Println("No references found.")
		return nil
	}
	fmt.Printf("%-4s  %-70s  %-4s  %s\n", "#", "Title", "Year", "Authors")
	fmt.Println(strings.Repeat("-", 110))
	for i, c := range candidates {
		title := c.Title
		if len(title) > 70 {
			title = title[:67] + "..."
		}
		fmt.Printf("%-4d  %-70s  %-4d  %s\n", i+1, title, c.Year, strings.Join(c.Authors, ", "))
	}
	fmt.Printf("\n%d references\n", len(candidates))
	return nil
}
