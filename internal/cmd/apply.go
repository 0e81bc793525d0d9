package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cloudhand/cloudhand/internal/apply"
	"github.com/cloudhand/cloudhand/internal/config"
	"github.com/cloudhand/cloudhand/internal/plan"
)

var (
	applyPlanPath    string
	applyAutoApprove bool
	applyTerraform   string
	applyConcurrency int
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a plan: provision infrastructure and deploy workloads",
	Long: `apply validates the plan's new spec, persists it, regenerates the
Terraform configuration, runs terraform init and apply, and then deploys
each instance's workloads over SSH. Defaults to the latest saved plan.`,
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringVar(&applyPlanPath, "plan", "", "plan file (defaults to the latest plan)")
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "skip the terraform approval prompt")
	applyCmd.Flags().StringVar(&applyTerraform, "terraform-bin", "terraform", "terraform binary to use")
	applyCmd.Flags().IntVar(&applyConcurrency, "concurrency", 1, "servers configured in parallel")
}

func runApply(cmd *cobra.Command, args []string) error {
	paths := config.NewPaths(rootDir)

	planPath := applyPlanPath
	if planPath == "" {
		latest, err := plan.Latest(paths.PlansDir())
		if err != nil {
			return err
		}
		planPath = paths.PlansDir() + "/plan-" + latest.ID + ".json"
		color.Cyan("Using latest plan: %s", latest.ID)
	}

	settings, err := config.LoadSettings(rootDir)
	if err != nil {
		return err
	}

	orch := apply.New(apply.Options{
		Root:          rootDir,
		ProjectID:     settings.Project,
		AutoApprove:   applyAutoApprove,
		TerraformBin:  applyTerraform,
		ProviderToken: config.ResolveProviderToken(rootDir, settings.Provider),
		Concurrency:   applyConcurrency,
	})
	if err := orch.Run(cmd.Context(), planPath); err != nil {
		return err
	}
	color.Green("Apply complete.")
	return nil
}
