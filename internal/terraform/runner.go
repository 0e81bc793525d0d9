package terraform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	tfjson "github.com/hashicorp/terraform-json"

	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/logger"
)

// Runner drives the Terraform CLI in a generated configuration directory.
// Extra variables are passed through the environment, never on the command
// line, so credentials stay out of process listings.
type Runner struct {
	Dir    string
	Bin    string            // terraform binary name, defaults to "terraform"
	Env    map[string]string // extra environment, e.g. TF_VAR_hcloud_token
	Stdout io.Writer
	Stderr io.Writer

	log logger.Logger
}

// NewRunner returns a runner for the given configuration directory
func NewRunner(dir string) *Runner {
	return &Runner{
		Dir:    dir,
		Bin:    "terraform",
		Env:    map[string]string{},
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		log:    logger.New("terraform"),
	}
}

func (r *Runner) binary() (string, error) {
	bin := r.Bin
	if bin == "" {
		bin = "terraform"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", errors.NewConfiguration("terraform binary %q not found in PATH", bin)
	}
	return path, nil
}

func (r *Runner) command(ctx context.Context, args ...string) (*exec.Cmd, error) {
	bin, err := r.binary()
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = r.Dir
	cmd.Env = os.Environ()
	for k, v := range r.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return cmd, nil
}

func (r *Runner) run(ctx context.Context, args ...string) error {
	cmd, err := r.command(ctx, args...)
	if err != nil {
		return err
	}
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	r.log.Debug("running terraform", logger.String("args", args[0]))
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return errors.NewExternal(exitErr.ExitCode(), "terraform %s exited with code %d", args[0], exitErr.ExitCode())
		}
		return errors.Wrap(err, errors.ErrorTypeExternal, fmt.Sprintf("terraform %s failed", args[0]))
	}
	return nil
}

// Init prepares the working directory, downloading providers as needed
func (r *Runner) Init(ctx context.Context) error {
	return r.run(ctx, "init", "-input=false", "-upgrade")
}

// Apply executes the plan. Without autoApprove, Terraform prompts on the
// runner's stdio.
func (r *Runner) Apply(ctx context.Context, autoApprove bool) error {
	args := []string{"apply"}
	if autoApprove {
		args = append(args, "-auto-approve")
	}
	return r.run(ctx, args...)
}

// ServerIPs reads the server_ips output from the current state, mapping
// instance names to their public IPv4 addresses.
func (r *Runner) ServerIPs(ctx context.Context) (map[string]string, error) {
	cmd, err := r.command(ctx, "show", "-json")
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExternal, "terraform show failed")
	}

	var state tfjson.State
	if err := json.Unmarshal(out.Bytes(), &state); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExternal, "failed to parse terraform state")
	}

	ips := map[string]string{}
	if state.Values == nil {
		return ips, nil
	}
	output, ok := state.Values.Outputs["server_ips"]
	if !ok || output.Value == nil {
		return ips, nil
	}
	values, ok := output.Value.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.ErrorTypeExternal, "server_ips output has unexpected shape")
	}
	for name, v := range values {
		if ip, ok := v.(string); ok {
			ips[name] = ip
		}
	}
	return ips, nil
}
