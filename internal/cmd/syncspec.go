package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cloudhand/cloudhand/internal/config"
	"github.com/cloudhand/cloudhand/internal/spec"
)

var syncProvider string

var syncSpecCmd = &cobra.Command{
	Use:   "sync-spec",
	Short: "Compile the last scan into the desired-state spec",
	Long: `sync-spec projects cloudhand/scan.json into cloudhand/spec.json,
replacing the previous spec wholesale. Workload definitions are never
derived from infrastructure; add them to the spec afterwards.`,
	RunE: runSyncSpec,
}

func init() {
	rootCmd.AddCommand(syncSpecCmd)
	syncSpecCmd.Flags().StringVarP(&syncProvider, "provider", "p", "", "cloud provider (defaults to ch.yaml)")
}

func runSyncSpec(cmd *cobra.Command, args []string) error {
	provider, err := resolveProvider(syncProvider)
	if err != nil {
		return err
	}
	s, err := spec.Sync(rootDir, provider)
	if err != nil {
		return err
	}
	color.Green("Spec synced: %d networks, %d instances -> %s",
		len(s.Networks), len(s.Instances), config.NewPaths(rootDir).SpecFile())
	return nil
}
