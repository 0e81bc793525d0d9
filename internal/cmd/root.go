// Package cmd wires the cloudhand CLI.
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudhand/cloudhand/internal/logger"
)

var (
	rootDir   string
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "cloudhand",
		Short: "Declarative cloud infrastructure from scan to deploy",
		Long: `cloudhand manages cloud infrastructure as a pipeline: scan existing
resources into a graph, compile the graph into a desired-state spec,
generate Terraform from the spec, and apply plans that provision servers
and deploy application workloads onto them over SSH.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		logger.Initialize(logger.LogConfig{
			Level:      logLevel,
			Format:     logFormat,
			Output:     "stderr",
			TimeFormat: time.RFC3339,
		})
	})

	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "project root directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
}
