// Package terraform turns a desired-state spec into Terraform configuration
// and drives the Terraform CLI against it.
package terraform

import (
	"strings"

	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/spec"
)

// Generator emits the full Terraform configuration for one provider. Each
// call rewrites the output directory from scratch; the generated files are
// build artifacts, not state.
type Generator interface {
	ID() string
	Generate(s *spec.DesiredStateSpec, outDir string) error
}

var generators = map[string]Generator{
	"hetzner": &HetznerGenerator{},
}

// GeneratorFor returns the generator registered for a provider
func GeneratorFor(provider string) (Generator, error) {
	g, ok := generators[strings.ToLower(provider)]
	if !ok {
		return nil, errors.NewConfiguration("no terraform generator for provider: %s", provider)
	}
	return g, nil
}

// resourceName maps a cloud resource name onto a Terraform identifier.
// Hyphens are legal in cloud names but not in Terraform addresses.
func resourceName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// checkNameCollisions rejects specs where two distinct resource names map to
// the same Terraform identifier, e.g. "web-a" and "web_a". Generating both
// would silently produce a duplicate resource address.
func checkNameCollisions(s *spec.DesiredStateSpec) error {
	nets := make(map[string]string, len(s.Networks))
	for _, net := range s.Networks {
		res := resourceName(net.Name)
		if prev, ok := nets[res]; ok && prev != net.Name {
			return errors.NewValidation("network names %q and %q collide after sanitization (%q)", prev, net.Name, res)
		}
		nets[res] = net.Name
	}
	insts := make(map[string]string, len(s.Instances))
	for _, inst := range s.Instances {
		res := resourceName(inst.Name)
		if prev, ok := insts[res]; ok && prev != inst.Name {
			return errors.NewValidation("instance names %q and %q collide after sanitization (%q)", prev, inst.Name, res)
		}
		insts[res] = inst.Name
	}
	return nil
}
