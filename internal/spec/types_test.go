package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudhand/cloudhand/internal/errors"
)

func validSpec() *DesiredStateSpec {
	return &DesiredStateSpec{
		Provider: "hetzner",
		Region:   "nbg1",
		Networks: []NetworkSpec{{Name: "appnet", CIDR: "10.10.0.0/16"}},
		Instances: []InstanceSpec{{
			Name:    "web",
			Size:    "cx31",
			Network: "appnet",
			Workloads: []ApplicationSpec{{
				Name:    "api",
				RepoURL: "https://github.com/acme/api.git",
				Runtime: RuntimeNodeJS,
				ServiceConfig: ServiceSpec{
					Command: "node server.js",
					Ports:   []int{3000},
				},
			}},
		}},
	}
}

func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	assert.NoError(t, validSpec().Validate())
}

func TestValidateRejectsUnknownRuntime(t *testing.T) {
	s := validSpec()
	s.Instances[0].Workloads[0].Runtime = "fortran"
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "Runtime")
}

func TestValidateRejectsDuplicateWorkloadNames(t *testing.T) {
	s := validSpec()
	s.Instances[0].Workloads = append(s.Instances[0].Workloads, s.Instances[0].Workloads[0])
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "duplicate workload")
}

func TestValidateRejectsBadCIDR(t *testing.T) {
	s := validSpec()
	s.Networks[0].CIDR = "not-a-cidr"
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	s := validSpec()
	s.Instances[0].Workloads[0].ServiceConfig.Ports = []int{70000}
	assert.Error(t, s.Validate())
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestApplicationDefaults(t *testing.T) {
	app := &ApplicationSpec{}
	assert.Equal(t, "main", app.GitBranch())
	assert.Equal(t, "/opt/apps", app.Destination())

	app.Branch = "release"
	app.DestinationPath = "/srv"
	assert.Equal(t, "release", app.GitBranch())
	assert.Equal(t, "/srv", app.Destination())
}

func TestUnattendedUpgradesDefaultEnabled(t *testing.T) {
	p := &UnattendedUpgradesPolicy{}
	assert.True(t, p.IsEnabled())

	off := false
	p.Enabled = &off
	assert.False(t, p.IsEnabled())
}
