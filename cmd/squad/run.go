package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/squadworks/squad/pkg/server"
)

const defaultTask = "Write a concise PySpark script for 500GB of shipping logs, partitioned by event_date."

var (
	runMaxReviewCycles int
	runOutputDir       string
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run the pipeline once and write its artifacts",
	Long: `Run the pipeline once for a task and write three files to the output
directory: the labelled transcript, infra_config.txt and approved_script.py.

Examples:
  # Use the built-in sample task
  squad run

  # Custom task with no revisions
  squad run --max-review-cycles 0 "Aggregate daily clickstream events"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().IntVar(&runMaxReviewCycles, "max-review-cycles", 0, "revision budget (default from SQUAD_MAX_REVIEW_CYCLES)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "artifact directory (default from SQUAD_OUTPUT_DIR)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-review-cycles") {
		cfg.Pipeline.MaxReviewCycles = runMaxReviewCycles
	}
	if runOutputDir != "" {
		cfg.Pipeline.OutputDir = runOutputDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	task := defaultTask
	if len(args) == 1 {
		task = args[0]
	}

	ctx := cmd.Context()
	srv, err := server.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer srv.ShutdownFunc(ctx)

	run, paths, err := srv.Squad.Execute(ctx, task, cfg.Pipeline.MaxReviewCycles)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(run, paths))
	return nil
}
