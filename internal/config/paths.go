// Package config resolves project layout, settings, and provider credentials.
package config

import "path/filepath"

// Well-known file names inside a project's state directory
const (
	StateDirName  = "cloudhand"
	ScanFileName  = "scan.json"
	SpecFileName  = "spec.json"
	PlansDirName  = "plans"
	SecretsName   = "secrets.json"
	SettingsName  = "ch.yaml"
	TerraformName = "terraform"
)

// Paths locates the state files of one project root
type Paths struct {
	Root string
}

// NewPaths returns the path layout rooted at the given project directory
func NewPaths(root string) Paths {
	return Paths{Root: root}
}

// StateDir is the directory holding all generated project state
func (p Paths) StateDir() string {
	return filepath.Join(p.Root, StateDirName)
}

// ScanFile is the persisted resource graph from the last scan
func (p Paths) ScanFile() string {
	return filepath.Join(p.StateDir(), ScanFileName)
}

// SpecFile is the persisted desired-state spec
func (p Paths) SpecFile() string {
	return filepath.Join(p.StateDir(), SpecFileName)
}

// PlansDir holds saved change plans
func (p Paths) PlansDir() string {
	return filepath.Join(p.StateDir(), PlansDirName)
}

// SecretsFile holds provider credentials for this project
func (p Paths) SecretsFile() string {
	return filepath.Join(p.StateDir(), SecretsName)
}

// SettingsFile is the project settings file at the root
func (p Paths) SettingsFile() string {
	return filepath.Join(p.Root, SettingsName)
}

// TerraformDir is where generated Terraform configuration is written
func (p Paths) TerraformDir() string {
	return filepath.Join(p.StateDir(), TerraformName)
}
