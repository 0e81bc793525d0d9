// Package apply orchestrates a plan end to end: persist the new spec,
// regenerate and run Terraform, then configure each server's workloads over
// SSH.
package apply

import (
	"context"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cloudhand/cloudhand/internal/config"
	"github.com/cloudhand/cloudhand/internal/deploy"
	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/logger"
	"github.com/cloudhand/cloudhand/internal/plan"
	"github.com/cloudhand/cloudhand/internal/secrets"
	"github.com/cloudhand/cloudhand/internal/spec"
	"github.com/cloudhand/cloudhand/internal/terraform"
)

// Options configure one apply run
type Options struct {
	Root          string
	ProjectID     string
	AutoApprove   bool
	TerraformBin  string
	ProviderToken string
	// Concurrency bounds how many servers are configured in parallel.
	// Zero or one keeps deploys serial; commands on a single host are
	// always ordered.
	Concurrency int
}

// tfRunner is the slice of terraform.Runner the orchestrator needs
type tfRunner interface {
	Init(ctx context.Context) error
	Apply(ctx context.Context, autoApprove bool) error
	ServerIPs(ctx context.Context) (map[string]string, error)
}

// serverDeployer is the slice of deploy.Deployer the orchestrator needs
type serverDeployer interface {
	Deploy(ctx context.Context, app *spec.ApplicationSpec, configureNginx bool) error
	ConfigureCombinedNginx(ctx context.Context, apps []spec.ApplicationSpec) error
	Close() error
}

// Orchestrator executes plans
type Orchestrator struct {
	opts     Options
	keystore *secrets.Keystore
	log      logger.Logger

	newRunner   func(dir string, env map[string]string) tfRunner
	newDeployer func(ip, privateKey string) (serverDeployer, error)
}

// New builds an orchestrator
func New(opts Options) *Orchestrator {
	if opts.ProjectID == "" {
		opts.ProjectID = "default"
	}
	o := &Orchestrator{
		opts:     opts,
		keystore: secrets.Open(),
		log:      logger.New("apply"),
	}
	o.newRunner = func(dir string, env map[string]string) tfRunner {
		r := terraform.NewRunner(dir)
		if opts.TerraformBin != "" {
			r.Bin = opts.TerraformBin
		}
		r.Env = env
		return r
	}
	o.newDeployer = func(ip, privateKey string) (serverDeployer, error) {
		return deploy.NewDeployer(ip, privateKey, deploy.WithLocalRoot(opts.Root))
	}
	return o
}

// Run applies the plan at planPath. Infrastructure failures surface as
// external errors carrying the provisioning tool's exit code.
func (o *Orchestrator) Run(ctx context.Context, planPath string) error {
	p, err := plan.Load(planPath)
	if err != nil {
		return err
	}
	if len(p.NewSpec) == 0 {
		return errors.NewValidation("plan does not contain 'new_spec'")
	}
	newSpec, err := spec.Parse(p.NewSpec)
	if err != nil {
		return err
	}

	paths := config.NewPaths(o.opts.Root)
	if err := newSpec.Save(paths.SpecFile()); err != nil {
		return err
	}

	gen, err := terraform.GeneratorFor(newSpec.Provider)
	if err != nil {
		return err
	}
	if err := gen.Generate(newSpec, paths.TerraformDir()); err != nil {
		return err
	}

	o.log.Info("fetching SSH identity", logger.String("project", o.opts.ProjectID))
	privKey, pubKey, err := o.keystore.GetOrCreateProjectKey(ctx, o.opts.ProjectID)
	if err != nil {
		return err
	}

	env := map[string]string{"TF_VAR_ssh_public_key": pubKey}
	token := o.opts.ProviderToken
	if token == "" {
		token = os.Getenv("HCLOUD_TOKEN")
	}
	if token != "" && os.Getenv("TF_VAR_hcloud_token") == "" {
		env["TF_VAR_hcloud_token"] = token
	}

	runner := o.newRunner(paths.TerraformDir(), env)
	if err := runner.Init(ctx); err != nil {
		return err
	}
	if err := runner.Apply(ctx, o.opts.AutoApprove); err != nil {
		return err
	}

	serverIPs, err := runner.ServerIPs(ctx)
	if err != nil {
		return err
	}

	return o.deployWorkloads(ctx, newSpec, privKey, serverIPs)
}

// nginxMode resolves the routing mode from the environment: per-app sites by
// default, one combined path-routed site when CLOUDHAND_NGINX_MODE is
// combined, single, or shared.
func nginxMode() string {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("CLOUDHAND_NGINX_MODE")))
	switch mode {
	case "combined", "single", "shared":
		return "combined"
	default:
		return "per-app"
	}
}

func (o *Orchestrator) deployWorkloads(ctx context.Context, s *spec.DesiredStateSpec, privKey string, serverIPs map[string]string) error {
	o.log.Info("deploying applications", logger.String("nginx_mode", nginxMode()))
	combined := nginxMode() == "combined"

	group, ctx := errgroup.WithContext(ctx)
	limit := o.opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	group.SetLimit(limit)

	for i := range s.Instances {
		inst := &s.Instances[i]
		ip := serverIPs[inst.Name]
		if ip == "" || len(inst.Workloads) == 0 {
			continue
		}
		group.Go(func() error {
			return o.deployInstance(ctx, inst, ip, privKey, combined)
		})
	}
	return group.Wait()
}

func (o *Orchestrator) deployInstance(ctx context.Context, inst *spec.InstanceSpec, ip, privKey string, combined bool) error {
	log := o.log.WithFields(logger.String("instance", inst.Name), logger.String("ip", ip))
	log.Info("configuring instance")

	d, err := o.newDeployer(ip, privKey)
	if err != nil {
		return err
	}
	defer d.Close()

	for i := range inst.Workloads {
		app := &inst.Workloads[i]
		log.Info("deploying workload",
			logger.String("app", app.Name),
			logger.String("runtime", string(app.Runtime)))
		if err := d.Deploy(ctx, app, !combined); err != nil {
			return err
		}
	}
	if combined {
		return d.ConfigureCombinedNginx(ctx, inst.Workloads)
	}
	return nil
}
