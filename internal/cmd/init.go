package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cloudhand/cloudhand/internal/config"
)

var (
	initProvider string
	initProject  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a cloudhand project in the current directory",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initProvider, "provider", "p", "hetzner", "cloud provider")
	initCmd.Flags().StringVar(&initProject, "project", "default", "project identifier")
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := config.InitProject(rootDir, initProvider, initProject); err != nil {
		return err
	}
	color.Green("Initialized cloudhand project (provider: %s, project: %s)", initProvider, initProject)
	return nil
}
