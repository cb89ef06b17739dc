// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the slr-engine CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/internal/pipeline"
	"github.com/pdiddy/slr-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// logger is configured from the logging.* keys before any command runs.
	logger zerolog.Logger

	// keys resolves API keys from flags, the environment, and .secrets/.
	keys *secrets.Store
)

// rootCmd is the base command for the slr-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "slr-engine",
	Short: "Draft systematic literature reviews from arXiv, Scopus, and your own PDFs",
	Long: `slr-engine turns a research subject into a LaTeX systematic literature
review. It generates search queries, fetches papers from arXiv and Scopus,
converts them to text, screens them for relevance, expands the set through
reference snowballing, and drafts the review section by section with a
peer-review critique loop.

Each stage is also available on its own: fetch, convert, summarize, and
references. The ledger subcommands inspect past runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = observability.NewLogger(loggingConfig())

		if err := secrets.LoadDotenv(".env"); err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir, logger)
		if err != nil {
			return err
		}
		keys = secrets.NewStore(s)
		if names := keys.Names(); len(names) > 0 {
			sort.Strings(names)
			logger.Debug().Strs("secrets", names).Msg("loaded secrets")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./slr-engine.yaml or ~/.config/slr-engine/slr-engine.yaml)")
	pf.String("secrets-dir", ".secrets", "directory of API key files")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error")
	pf.String("log-format", "", "log format: console, pretty, or json")

	_ = viper.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", pf.Lookup("log-format"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("slr-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "slr-engine"))
		}
	}

	viper.SetEnvPrefix("SLR_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func loggingConfig() observability.LoggingConfig {
	cfg := observability.DefaultLoggingConfig()
	if v := viper.GetString("logging.level"); v != "" {
		cfg.Level = v
	}
	if v := viper.GetString("logging.format"); v != "" {
		cfg.Format = v
	}
	if v := viper.GetString("logging.output"); v != "" {
		cfg.Output = v
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			fmt.Fprintln(os.Stderr, perr.Kind)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
