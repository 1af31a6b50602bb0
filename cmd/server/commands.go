package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/content-pipeline/internal/config"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/pipeline"
	"github.com/codebuildervaibhav/content-pipeline/internal/queue"
)

const defaultConfigPath = "config/config.yaml"

// newRootCmd builds the CLI. Running it without a subcommand serves the API.
func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "content-pipeline",
		Short:         "Interview to content pipeline server",
		Long:          `Runs the interview, transcript, style profile and content generation API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the YAML config file")

	cmd.AddCommand(newServeCmd(&configPath), newSweepCmd(&configPath))
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func newSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark stages stuck past their deadline as failed",
		Long:  `Fails every processing transcript, profile and content older than pipeline.stage_timeout. Run it while the server is stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(logger.Options{Environment: cfg.Environment, Level: cfg.Log.Level})

			ctx := contextOrBackground(cmd.Context())
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			// an idle pool has no live tasks, so every stale entity is swept
			pool := queue.NewWorkerPool(1, 1, cfg.Pipeline.StageTimeout, log)
			orch := pipeline.New(store, pool, pipeline.Config{StageTimeout: cfg.Pipeline.StageTimeout}, log)

			n, err := orch.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d stuck entities as failed\n", n)
			return nil
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(ctx), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg)
	if err != nil {
		return err
	}
	return srv.run(ctx)
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
