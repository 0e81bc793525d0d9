// Package spec defines the provider-agnostic desired-state specification and
// the compiler that projects a resource graph into it.
package spec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/cloudhand/cloudhand/internal/errors"
)

// RuntimeType identifies how a workload is built and run on a host
type RuntimeType string

const (
	RuntimeDocker RuntimeType = "docker"
	RuntimeNodeJS RuntimeType = "nodejs"
	RuntimePython RuntimeType = "python"
	RuntimeStatic RuntimeType = "static"
	RuntimeGo     RuntimeType = "go"
)

// ServiceSpec describes how to run a workload in the background
type ServiceSpec struct {
	Command               string            `json:"command" validate:"required"`
	Environment           map[string]string `json:"environment,omitempty"`
	EnvironmentFile       string            `json:"environment_file,omitempty"`
	EnvironmentFileUpload string            `json:"environment_file_upload,omitempty"`
	Ports                 []int             `json:"ports,omitempty" validate:"dive,gt=0,lte=65535"`
	ServerNames           []string          `json:"server_names,omitempty"`
	HTTPS                 bool              `json:"https,omitempty"`
}

// BuildSpec describes how to build a workload from source
type BuildSpec struct {
	InstallCommand string   `json:"install_command,omitempty"`
	BuildCommand   string   `json:"build_command,omitempty"`
	SystemPackages []string `json:"system_packages,omitempty"`
}

// ApplicationSpec is one workload deployed onto an instance. Name is the
// merge key used by the planning layer and must be unique within an
// instance's workload list.
type ApplicationSpec struct {
	Name            string      `json:"name" validate:"required"`
	RepoURL         string      `json:"repo_url" validate:"required"`
	Branch          string      `json:"branch,omitempty"`
	Runtime         RuntimeType `json:"runtime" validate:"required,oneof=docker nodejs python static go"`
	BuildConfig     BuildSpec   `json:"build_config"`
	ServiceConfig   ServiceSpec `json:"service_config"`
	DestinationPath string      `json:"destination_path,omitempty"`
}

// GitBranch returns the configured branch, defaulting to main
func (a *ApplicationSpec) GitBranch() string {
	if a.Branch == "" {
		return "main"
	}
	return a.Branch
}

// Destination returns the checkout base path, defaulting to /opt/apps
func (a *ApplicationSpec) Destination() string {
	if a.DestinationPath == "" {
		return "/opt/apps"
	}
	return a.DestinationPath
}

// NetworkSpec declares a private network
type NetworkSpec struct {
	Name string `json:"name" validate:"required"`
	CIDR string `json:"cidr" validate:"required,cidr"`
}

// UnattendedUpgradesPolicy tunes the automatic security-update behavior baked
// into each instance's bootstrap. Enabled defaults to true when unset.
type UnattendedUpgradesPolicy struct {
	Enabled        *bool    `json:"enabled,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	AutoReboot     bool     `json:"auto_reboot,omitempty"`
	AutoRebootTime string   `json:"auto_reboot_time,omitempty"`
}

// IsEnabled reports whether unattended upgrades are on (default true)
func (p *UnattendedUpgradesPolicy) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// MaintenancePolicy groups host maintenance settings
type MaintenancePolicy struct {
	UnattendedUpgrades UnattendedUpgradesPolicy `json:"unattended_upgrades"`
}

// InstanceSpec declares one compute instance and the workloads it hosts
type InstanceSpec struct {
	Name        string             `json:"name" validate:"required"`
	Size        string             `json:"size" validate:"required"`
	Network     string             `json:"network" validate:"required"`
	Region      string             `json:"region,omitempty"`
	Labels      map[string]string  `json:"labels,omitempty"`
	Workloads   []ApplicationSpec  `json:"workloads,omitempty" validate:"dive"`
	Maintenance *MaintenancePolicy `json:"maintenance,omitempty"`
}

// LoadBalancerPortSpec is one forwarded port on a load balancer
type LoadBalancerPortSpec struct {
	Port     int    `json:"port" validate:"gt=0,lte=65535"`
	Protocol string `json:"protocol" validate:"required"`
}

// LoadBalancerTargetSpec selects the backends of a load balancer
type LoadBalancerTargetSpec struct {
	Type     string `json:"type" validate:"required"`
	Selector string `json:"selector" validate:"required"`
}

// LoadBalancerSpec declares a load balancer
type LoadBalancerSpec struct {
	Name    string                   `json:"name" validate:"required"`
	Network string                   `json:"network" validate:"required"`
	Ports   []LoadBalancerPortSpec   `json:"ports,omitempty" validate:"dive"`
	Targets []LoadBalancerTargetSpec `json:"targets,omitempty" validate:"dive"`
}

// FirewallRuleSpec is one firewall rule
type FirewallRuleSpec struct {
	Direction string `json:"direction" validate:"required"`
	Protocol  string `json:"protocol" validate:"required"`
	Port      string `json:"port,omitempty"`
	CIDR      string `json:"cidr,omitempty"`
}

// FirewallTargetSpec selects the resources a firewall protects
type FirewallTargetSpec struct {
	Type     string `json:"type" validate:"required"`
	Selector string `json:"selector" validate:"required"`
}

// FirewallSpec declares a firewall
type FirewallSpec struct {
	Name    string               `json:"name" validate:"required"`
	Rules   []FirewallRuleSpec   `json:"rules,omitempty" validate:"dive"`
	Targets []FirewallTargetSpec `json:"targets,omitempty" validate:"dive"`
}

// DNSRecordSpec declares a DNS record
type DNSRecordSpec struct {
	Zone   string `json:"zone" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Type   string `json:"type" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// ContainerPortSpec maps a container port to a host port
type ContainerPortSpec struct {
	ContainerPort int `json:"container_port" validate:"gt=0,lte=65535"`
	HostPort      int `json:"host_port,omitempty"`
}

// ContainerVolumeSpec mounts a host path into a container
type ContainerVolumeSpec struct {
	HostPath      string `json:"host_path" validate:"required"`
	ContainerPath string `json:"container_path" validate:"required"`
}

// ContainerEnvVar is one container environment variable
type ContainerEnvVar struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// ContainerSpec is the legacy container deployment shape; prefer workloads on
// instances.
type ContainerSpec struct {
	Name          string                `json:"name" validate:"required"`
	Image         string                `json:"image" validate:"required"`
	HostSelector  string                `json:"host_selector" validate:"required"`
	Ports         []ContainerPortSpec   `json:"ports,omitempty" validate:"dive"`
	Env           []ContainerEnvVar     `json:"env,omitempty" validate:"dive"`
	Volumes       []ContainerVolumeSpec `json:"volumes,omitempty" validate:"dive"`
	RestartPolicy string                `json:"restart_policy,omitempty"`
}

// DesiredStateSpec is the declarative target configuration for one provider.
// It is compiled from a graph or produced by the planning collaborator, and
// fully replaces its predecessor when persisted.
type DesiredStateSpec struct {
	Provider      string             `json:"provider" validate:"required"`
	Region        string             `json:"region,omitempty"`
	Networks      []NetworkSpec      `json:"networks" validate:"dive"`
	Instances     []InstanceSpec     `json:"instances" validate:"dive"`
	LoadBalancers []LoadBalancerSpec `json:"load_balancers,omitempty" validate:"dive"`
	Firewalls     []FirewallSpec     `json:"firewalls,omitempty" validate:"dive"`
	DNSRecords    []DNSRecordSpec    `json:"dns_records,omitempty" validate:"dive"`
	Containers    []ContainerSpec    `json:"containers,omitempty" validate:"dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the spec against the schema. Violations are reported as
// validation errors with the specific field that failed; they are never
// silently coerced.
func (s *DesiredStateSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			v := verrs[0]
			return errors.NewValidation("spec validation failed: field %q violates %q", v.Namespace(), v.Tag())
		}
		return errors.Wrap(err, errors.ErrorTypeValidation, "spec validation failed")
	}

	// Workload names are the merge key of the planning layer: they must be
	// unique within each instance.
	for _, inst := range s.Instances {
		seen := make(map[string]bool, len(inst.Workloads))
		for _, app := range inst.Workloads {
			if seen[app.Name] {
				return errors.NewValidation("instance %q declares duplicate workload name %q", inst.Name, app.Name)
			}
			seen[app.Name] = true
		}
	}
	return nil
}

// Parse decodes and validates a spec from JSON
func Parse(data []byte) (*DesiredStateSpec, error) {
	var s DesiredStateSpec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to parse spec JSON")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes the spec as indented JSON, fully overwriting any previous spec
func (s *DesiredStateSpec) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal spec: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create spec directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write spec: %w", err)
	}
	return nil
}

// Load reads and validates a previously saved spec
func Load(path string) (*DesiredStateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec: %w", err)
	}
	return Parse(data)
}
