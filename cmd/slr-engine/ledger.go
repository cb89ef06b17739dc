// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/slr-engine/internal/ledger"
	"github.com/pdiddy/slr-engine/pkg/types"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the run ledger (runs, papers, search, export)",
	Long: `Ledger reads the SQLite database in the results folder where every run
records its screened papers, verdicts, PRISMA counts, and final draft.`,
}

// --- runs subcommand ---

var ledgerRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs, newest first",
	RunE:  runLedgerRuns,
}

func runLedgerRuns(cmd *cobra.Command, args []string) error {
	store, err := ledgerStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.Runs(context.Background(), limit)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-10s  %-8s  %-6s  %s\n", "Run", "Started", "Status", "Included", "Cycles", "Subject")
	fmt.Println(strings.Repeat("-", 120))
	for _, r := range runs {
		status := r.Status
		if r.ErrorKind != "" {
			status = r.ErrorKind
		}
		fmt.Printf("%-36s  %-20s  %-10s  %-8d  %-6d  %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), status,
			r.Counts[types.CountIncluded], r.Cycles, truncate(r.Subject, 40))
	}
	fmt.Printf("\n%d runs\n", len(runs))
	return nil
}

// --- papers and search subcommands ---

var ledgerPapersCmd = &cobra.Command{
	Use:   "papers",
	Short: "List the papers a run screened",
	Long: `Papers lists screened papers, optionally filtered to one run and one
verdict (relevant, irrelevant, or error).`,
	RunE: runLedgerPapers,
}

var ledgerSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over paper titles and summaries",
	Long: `Search runs an FTS5 query over the titles and summaries of every
screened paper, ranked by relevance. FTS5 syntax such as AND, OR, and
"quoted phrases" is supported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLedgerPapers,
}

func runLedgerPapers(cmd *cobra.Command, args []string) error {
	store, err := ledgerStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, _ := cmd.Flags().GetString("run")
	verdict, _ := cmd.Flags().GetString("verdict")
	limit, _ := cmd.Flags().GetInt("limit")
	papers, err := store.Papers(context.Background(), ledger.QueryOptions{
		Query:      strings.Join(args, " "),
		RunID:      runID,
		Verdict:    verdict,
		MaxResults: limit,
	})
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(papers)
	}
	if len(papers) == 0 {
		fmt.Println("No papers found.")
		return nil
	}

	fmt.Printf("%-4s  %-10s  %-24s  %-60s  %s\n", "#", "Verdict", "Primary ID", "Title", "Year")
	fmt.Println(strings.Repeat("-", 110))
	for i, p := range papers {
		fmt.Printf("%-4d  %-10s  %-24s  %-60s  %d\n",
			i+1, p.Verdict, truncate(p.PrimaryID, 24), truncate(p.Title, 60), p.Year)
	}
	fmt.Printf("\n%d papers\n", len(papers))
	return nil
}

// --- export subcommand ---

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export runs and their papers to YAML or JSON",
	RunE:  runLedgerExport,
}

func runLedgerExport(cmd *cobra.Command, args []string) error {
	store, err := ledgerStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	format, _ := cmd.Flags().GetString("format")
	runID, _ := cmd.Flags().GetString("run")
	out, _ := cmd.Flags().GetString("output")

	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := store.Export(context.Background(), w, format, runID); err != nil {
		return err
	}
	if out != "" {
		fmt.Printf("Exported to %s\n", out)
	}
	return nil
}

// --- shared helpers ---

func ledgerStore(cmd *cobra.Command) (*ledger.Store, error) {
	cfg, err := loadConfig(cmd, workspaceFlags)
	if err != nil {
		return nil, err
	}
	return openLedger(cfg)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	// The results folder holds the database.
	ledgerCmd.PersistentFlags().String("results-dir", "Results", "folder containing "+ledger.DBFile)
	ledgerCmd.PersistentFlags().Bool("json", false, "output as JSON")

	ledgerRunsCmd.Flags().Int("limit", 20, "maximum runs to list")

	for _, c := range []*cobra.Command{ledgerPapersCmd, ledgerSearchCmd} {
		c.Flags().String("run", "", "filter by run ID")
		c.Flags().String("verdict", "", "filter by verdict: relevant, irrelevant, or error")
		c.Flags().Int("limit", 0, "maximum results (0 = use default)")
	}

	ledgerExportCmd.Flags().String("format", ledger.FormatYAML, "export format: yaml or json")
	ledgerExportCmd.Flags().String("run", "", "export a single run")
	ledgerExportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")

	ledgerCmd.AddCommand(ledgerRunsCmd)
	ledgerCmd.AddCommand(ledgerPapersCmd)
	ledgerCmd.AddCommand(ledgerSearchCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)

	rootCmd.AddCommand(ledgerCmd)
}
