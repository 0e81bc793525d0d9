package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const gitignoreContent = `cloudhand/terraform/.terraform/
cloudhand/terraform/terraform.tfstate
cloudhand/terraform/terraform.tfstate.*
cloudhand/terraform/*.tfplan
cloudhand/*.json
cloudhand/*.diff
`

// InitProject bootstraps a project directory: state and terraform dirs, a
// .gitignore covering generated files, and ch.yaml. Existing files are left
// alone so init is safe to re-run.
func InitProject(root, provider, project string) error {
	paths := NewPaths(root)

	for _, dir := range []string{paths.TerraformDir(), paths.PlansDir(), paths.StateDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	gitignore := paths.Root + "/.gitignore"
	if _, err := os.Stat(gitignore); os.IsNotExist(err) {
		if err := os.WriteFile(gitignore, []byte(gitignoreContent), 0644); err != nil {
			return fmt.Errorf("failed to write .gitignore: %w", err)
		}
	}

	settings := paths.SettingsFile()
	if _, err := os.Stat(settings); os.IsNotExist(err) {
		data, err := yaml.Marshal(Settings{Provider: provider, Project: project})
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		if err := os.WriteFile(settings, data, 0644); err != nil {
			return fmt.Errorf("failed to write ch.yaml: %w", err)
		}
	}
	return nil
}
