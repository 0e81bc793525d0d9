package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cloudhand/cloudhand/internal/config"
	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/graph"
	"github.com/cloudhand/cloudhand/internal/providers"
	"github.com/cloudhand/cloudhand/internal/secrets"
)

var scanProvider string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan cloud infrastructure into a resource graph",
	Long: `Scan queries the provider's API for all supported resource types and
writes the resulting graph to cloudhand/scan.json.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVarP(&scanProvider, "provider", "p", "", "cloud provider (defaults to ch.yaml)")
}

// resolveProvider picks the provider from the flag or ch.yaml
func resolveProvider(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	settings, err := config.LoadSettings(rootDir)
	if err != nil {
		return "", err
	}
	if settings.Provider == "" {
		return "", errors.NewConfiguration("no provider configured; pass --provider or run 'cloudhand init'")
	}
	return settings.Provider, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	provider, err := resolveProvider(scanProvider)
	if err != nil {
		return err
	}

	token := secrets.Open().ProviderToken(cmd.Context(), provider,
		config.ResolveProviderToken(rootDir, provider))

	adapter, err := providers.NewAdapter(provider, providers.Credentials{Token: token})
	if err != nil {
		return err
	}

	color.Cyan("Scanning infrastructure for provider: %s...", provider)
	g, err := adapter.Scan(cmd.Context())
	if err != nil {
		return err
	}

	if err := g.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "scan produced an inconsistent graph")
	}

	scanPath := config.NewPaths(rootDir).ScanFile()
	if err := g.Save(scanPath); err != nil {
		return err
	}

	color.Green("Scan complete. Found %d resources.", len(g.Nodes))
	printScanSummary(g)
	fmt.Printf("Written scan results to %s\n", scanPath)
	return nil
}

// printScanSummary renders node counts per resource type
func printScanSummary(g *graph.CloudGraph) {
	counts := map[graph.NodeType]int{}
	for _, node := range g.Nodes {
		counts[node.Type]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Resource Type", "Count"})
	for _, t := range types {
		table.Append([]string{t, fmt.Sprintf("%d", counts[graph.NodeType(t)])})
	}
	table.Append([]string{"edges", fmt.Sprintf("%d", len(g.Edges))})
	table.Render()
}
