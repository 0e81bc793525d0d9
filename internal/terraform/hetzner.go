package terraform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/cloudhand/cloudhand/internal/logger"
	"github.com/cloudhand/cloudhand/internal/spec"
)

// HetznerGenerator emits Terraform for the Hetzner Cloud provider. Networks
// are referenced as data sources (they are managed out of band); servers are
// fully managed, each bootstrapped with a cloud-init document.
type HetznerGenerator struct{}

func (g *HetznerGenerator) ID() string { return "hetzner" }

func (g *HetznerGenerator) Generate(s *spec.DesiredStateSpec, outDir string) error {
	if err := checkNameCollisions(s); err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create terraform directory: %w", err)
	}

	files := map[string]*hclwrite.File{
		"backend.tf":   g.backendFile(),
		"providers.tf": g.providersFile(),
		"variables.tf": g.variablesFile(),
		"network.tf":   g.networkFile(s),
		"servers.tf":   g.serversFile(s),
		"outputs.tf":   g.outputsFile(s),
	}
	for name, f := range files {
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, f.Bytes(), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	logger.New("terraform").Info("generated terraform configuration",
		logger.String("dir", outDir),
		logger.Int("instances", len(s.Instances)),
		logger.Int("networks", len(s.Networks)))
	return nil
}

func (g *HetznerGenerator) backendFile() *hclwrite.File {
	f := hclwrite.NewEmptyFile()
	body := f.Body().AppendNewBlock("terraform", nil).Body()
	body.AppendUnstructuredTokens(hclwrite.Tokens{{
		Type:  hclsyntax.TokenComment,
		Bytes: []byte("# Using local backend for now; swap to remote backend when available.\n"),
	}})
	return f
}

func (g *HetznerGenerator) providersFile() *hclwrite.File {
	f := hclwrite.NewEmptyFile()

	tfBody := f.Body().AppendNewBlock("terraform", nil).Body()
	reqBody := tfBody.AppendNewBlock("required_providers", nil).Body()
	reqBody.SetAttributeValue("hcloud", cty.ObjectVal(map[string]cty.Value{
		"source":  cty.StringVal("hetznercloud/hcloud"),
		"version": cty.StringVal("~> 1.0"),
	}))

	f.Body().AppendNewline()
	provBody := f.Body().AppendNewBlock("provider", []string{"hcloud"}).Body()
	provBody.SetAttributeTraversal("token", hcl.Traversal{
		hcl.TraverseRoot{Name: "var"},
		hcl.TraverseAttr{Name: "hcloud_token"},
	})
	return f
}

func (g *HetznerGenerator) variablesFile() *hclwrite.File {
	f := hclwrite.NewEmptyFile()

	tokBody := f.Body().AppendNewBlock("variable", []string{"hcloud_token"}).Body()
	tokBody.SetAttributeRaw("type", hclwrite.TokensForIdentifier("string"))
	tokBody.SetAttributeValue("sensitive", cty.True)

	f.Body().AppendNewline()
	keyBody := f.Body().AppendNewBlock("variable", []string{"ssh_public_key"}).Body()
	keyBody.SetAttributeRaw("type", hclwrite.TokensForIdentifier("string"))
	return f
}

func (g *HetznerGenerator) networkFile(s *spec.DesiredStateSpec) *hclwrite.File {
	f := hclwrite.NewEmptyFile()
	for i, net := range s.Networks {
		if i > 0 {
			f.Body().AppendNewline()
		}
		body := f.Body().AppendNewBlock("data", []string{"hcloud_network", resourceName(net.Name)}).Body()
		body.SetAttributeValue("name", cty.StringVal(net.Name))
	}
	return f
}

func (g *HetznerGenerator) serversFile(s *spec.DesiredStateSpec) *hclwrite.File {
	f := hclwrite.NewEmptyFile()
	for i := range s.Instances {
		inst := &s.Instances[i]
		if i > 0 {
			f.Body().AppendNewline()
		}
		body := f.Body().AppendNewBlock("resource", []string{"hcloud_server", resourceName(inst.Name)}).Body()
		body.SetAttributeValue("name", cty.StringVal(inst.Name))
		body.SetAttributeValue("server_type", cty.StringVal(inst.Size))
		body.SetAttributeValue("image", cty.StringVal("ubuntu-22.04"))
		if loc := firstNonEmpty(inst.Region, s.Region); loc != "" {
			body.SetAttributeValue("location", cty.StringVal(loc))
		}
		if len(inst.Labels) > 0 {
			labels := make(map[string]cty.Value, len(inst.Labels))
			for k, v := range inst.Labels {
				labels[k] = cty.StringVal(v)
			}
			body.SetAttributeValue("labels", cty.ObjectVal(labels))
		}

		body.AppendNewline()
		netBody := body.AppendNewBlock("network", nil).Body()
		netBody.SetAttributeTraversal("network_id", hcl.Traversal{
			hcl.TraverseRoot{Name: "data"},
			hcl.TraverseAttr{Name: "hcloud_network"},
			hcl.TraverseAttr{Name: resourceName(inst.Network)},
			hcl.TraverseAttr{Name: "id"},
		})

		body.AppendNewline()
		body.SetAttributeRaw("user_data", heredocTokens(userDataForInstance(inst)))

		// Cloud-init only runs on first boot; changing it would force a
		// destructive replace.
		lifecycle := body.AppendNewBlock("lifecycle", nil).Body()
		lifecycle.SetAttributeRaw("ignore_changes", hclwrite.TokensForTuple([]hclwrite.Tokens{
			hclwrite.TokensForIdentifier("user_data"),
		}))
	}
	return f
}

func (g *HetznerGenerator) outputsFile(s *spec.DesiredStateSpec) *hclwrite.File {
	f := hclwrite.NewEmptyFile()
	body := f.Body().AppendNewBlock("output", []string{"server_ips"}).Body()

	attrs := make([]hclwrite.ObjectAttrTokens, 0, len(s.Instances))
	for i := range s.Instances {
		inst := &s.Instances[i]
		attrs = append(attrs, hclwrite.ObjectAttrTokens{
			Name: hclwrite.TokensForValue(cty.StringVal(inst.Name)),
			Value: hclwrite.TokensForTraversal(hcl.Traversal{
				hcl.TraverseRoot{Name: "hcloud_server"},
				hcl.TraverseAttr{Name: resourceName(inst.Name)},
				hcl.TraverseAttr{Name: "ipv4_address"},
			}),
		})
	}
	body.SetAttributeRaw("value", hclwrite.TokensForObject(attrs))
	return f
}

// heredocTokens wraps a pre-rendered document in a heredoc so Terraform
// interpolations inside it survive verbatim.
func heredocTokens(body string) hclwrite.Tokens {
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return hclwrite.Tokens{
		{Type: hclsyntax.TokenOHeredoc, Bytes: []byte("<<-EOF\n")},
		{Type: hclsyntax.TokenStringLit, Bytes: []byte(body)},
		{Type: hclsyntax.TokenCHeredoc, Bytes: []byte("EOF")},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
