// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/internal/pipeline"
	"github.com/pdiddy/slr-engine/internal/server"
	"github.com/pdiddy/slr-engine/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the review form and run API over HTTP",
	Long: `Serve starts an HTTP server with a submission form at /, the run API
(POST /runs, GET /runs/{id}, GET /runs/{id}/files/{name}), Prometheus
metrics at /metrics, and a liveness probe at /healthz.

Runs share the configured workspace and execute one at a time. Every
run is recorded in the ledger, so status survives a restart.`,
	RunE: runServe,
}

var serveFlags = flagKeys{
	"address":    "server.address",
	"upload-dir": "server.upload_dir",
}

func init() {
	d := server.DefaultConfig()
	f := serveCmd.Flags()
	f.String("address", d.Address, "listen address")
	f.String("upload-dir", d.UploadDir, "folder for PDFs attached to submissions")
	addWorkspaceFlags(f)
	addFetchFlags(f)
	addLLMFlags(f)

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd, serveFlags, workspaceFlags, fetchFlags, llmFlags)
	if err != nil {
		return err
	}
	srvCfg := server.DefaultConfig()
	if err := viper.UnmarshalKey("server", &srvCfg); err != nil {
		return fmt.Errorf("reading server config: %w", err)
	}
	srvCfg.Address = viper.GetString("server.address")
	srvCfg.UploadDir = viper.GetString("server.upload_dir")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Fail at startup rather than on the first submission.
	if _, err := newLLM(ctx, base.LLM, logger, metrics); err != nil {
		return err
	}

	store, err := openLedger(base)
	if err != nil {
		return err
	}
	defer store.Close()

	factory := func(runID string, out io.Writer) server.Runner {
		p, err := newPipeline(ctx, base, logger, metrics)
		if err != nil {
			return failedRunner{err}
		}
		p.Ledger = store
		p.Out = out
		p.NewRunID = func() string { return runID }
		return p
	}
	srv := server.New(srvCfg, base, factory, store, reg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// failedRunner reports a pipeline that could not be built.
type failedRunner struct{ err error }

func (f failedRunner) Run(context.Context, types.PipelineConfig) (pipeline.Result, error) {
	return pipeline.Result{}, f.err
}
