// Command squad runs the two-agent PySpark pipeline: a drafting agent writes
// a script, a rule-based quality gate reviews it in a bounded revise loop,
// and a deployment agent turns the result into infrastructure config.
//
//	squad run "Write a PySpark job for clickstream logs"
//	squad serve --port 8080
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/squadworks/squad/internal/config"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "squad",
	Short: "Draft, review and deploy PySpark jobs with two cooperating agents",
	Long: `squad drives a drafting agent and a deployment agent through a fixed
pipeline. Drafts are checked against structural rules and sent back for
revision until they pass or the review budget runs out; the surviving
script is then handed to the deployment agent for Terraform and Databricks
pipeline configuration.`,
	Version:       version,
	SilenceUsage: true,
}

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads configuration and applies its log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Version == config.Default().Version && version != "dev" {
		cfg.Version = version
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}
	return cfg, nil
}
