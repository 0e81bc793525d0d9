package cmd

import (
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cloudhand/cloudhand/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan <description>",
	Short: "Generate a change plan from a natural-language description",
	Long: `plan builds a planning payload from the current spec (plus
repo-plan.json when present) and saves the resulting plan artifact under
cloudhand/plans/. Without an external planner configured the plan is a
recorded no-op that keeps the current spec.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	p, path, err := plan.Generate(cmd.Context(), rootDir, description, nil)
	if err != nil {
		return err
	}

	if p.Error != "" {
		color.Yellow("Planning degraded: %s", p.Error)
	}
	if p.Info != "" {
		color.Yellow(p.Info)
	}
	color.Green("Plan %s saved to %s (%d operations)", p.ID, path, len(p.Operations))
	return nil
}
