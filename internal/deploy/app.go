package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/logger"
	"github.com/cloudhand/cloudhand/internal/spec"
)

const envFileDir = "/etc/cloudhand/env"

// Deploy brings one workload to its desired state: system packages, source
// checkout, build, systemd service, and optionally an nginx site.
func (d *Deployer) Deploy(ctx context.Context, app *spec.ApplicationSpec, configureNginx bool) error {
	appDir := fmt.Sprintf("%s/%s", app.Destination(), app.Name)

	if err := d.installSystemDeps(ctx, app); err != nil {
		return err
	}
	if err := d.syncSource(ctx, app, appDir); err != nil {
		return err
	}
	if err := d.build(ctx, app, appDir); err != nil {
		return err
	}
	if err := d.configureSystemd(ctx, app, appDir); err != nil {
		return err
	}
	if configureNginx {
		return d.configureNginx(ctx, app)
	}
	return nil
}

func (d *Deployer) installSystemDeps(ctx context.Context, app *spec.ApplicationSpec) error {
	if len(app.BuildConfig.SystemPackages) > 0 {
		cmd := fmt.Sprintf(
			"DEBIAN_FRONTEND=noninteractive apt-get update && DEBIAN_FRONTEND=noninteractive apt-get install -y %s",
			strings.Join(app.BuildConfig.SystemPackages, " "))
		if _, err := d.Run(ctx, cmd, runOpts{}); err != nil {
			return err
		}
	}

	if app.Runtime == spec.RuntimeNodeJS {
		// The base image ships a stale Node; replace it with a current LTS.
		steps := []string{
			"DEBIAN_FRONTEND=noninteractive apt-get purge -y nodejs npm libnode-dev libnode72 || true",
			"DEBIAN_FRONTEND=noninteractive apt-get autoremove -y || true",
			`bash -lc "curl -fsSL https://deb.nodesource.com/setup_20.x | bash -"`,
			"DEBIAN_FRONTEND=noninteractive apt-get install -y nodejs",
		}
		for _, step := range steps {
			if _, err := d.Run(ctx, step, runOpts{}); err != nil {
				return err
			}
		}
	}
	return nil
}

// githubToken returns the token used for private repository access, if any
func githubToken() string {
	for _, name := range []string{"GITHUB_TOKEN", "GH_TOKEN", "GITHUB_PAT"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// syncSource fast-forwards an existing checkout to the target branch, falling
// back to a clean clone when the directory is missing or corrupted.
func (d *Deployer) syncSource(ctx context.Context, app *spec.ApplicationSpec, appDir string) error {
	token := githubToken()
	branch := app.GitBranch()

	if _, err := d.Run(ctx, fmt.Sprintf("test -d %s", appDir), runOpts{}); err == nil {
		fetch := fmt.Sprintf("git fetch origin && git reset --hard origin/%s", branch)
		if token != "" {
			header := fmt.Sprintf("http.extraheader=\"Authorization: Bearer %s\"", token)
			fetch = fmt.Sprintf("git -c %s fetch origin && git -c %s reset --hard origin/%s", header, header, branch)
		}
		if _, err := d.Run(ctx, fetch, runOpts{cwd: appDir, mask: []string{token}}); err == nil {
			return nil
		}
		d.log.Warn("fetch failed, recloning", logger.String("app", app.Name))
	}

	if _, err := d.Run(ctx, fmt.Sprintf("rm -rf %s", appDir), runOpts{}); err != nil {
		return err
	}
	if _, err := d.Run(ctx, fmt.Sprintf("mkdir -p %s", app.Destination()), runOpts{}); err != nil {
		return err
	}
	cloneURL := app.RepoURL
	if token != "" {
		cloneURL = strings.Replace(app.RepoURL, "https://", fmt.Sprintf("https://%s@", token), 1)
	}
	_, err := d.Run(ctx, fmt.Sprintf("git clone --branch %s %s %s", branch, cloneURL, appDir),
		runOpts{mask: []string{token}})
	return err
}

func (d *Deployer) build(ctx context.Context, app *spec.ApplicationSpec, appDir string) error {
	if cmd := app.BuildConfig.InstallCommand; cmd != "" {
		if _, err := d.Run(ctx, cmd, runOpts{cwd: appDir}); err != nil {
			return err
		}
	}
	if cmd := app.BuildConfig.BuildCommand; cmd != "" {
		if _, err := d.Run(ctx, cmd, runOpts{cwd: appDir}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployer) configureSystemd(ctx context.Context, app *spec.ApplicationSpec, appDir string) error {
	envDirectives, err := d.envFileDirectives(ctx, app, appDir)
	if err != nil {
		return err
	}

	unit := fmt.Sprintf(`[Unit]
Description=%s
After=network.target

[Service]
Type=simple
User=root
WorkingDirectory=%s
ExecStart=%s
Restart=always
%s

[Install]
WantedBy=multi-user.target
`, app.Name, appDir, app.ServiceConfig.Command, envDirectives)

	if err := d.Upload(ctx, unit, fmt.Sprintf("/etc/systemd/system/%s.service", app.Name)); err != nil {
		return err
	}
	for _, cmd := range []string{
		"systemctl daemon-reload",
		fmt.Sprintf("systemctl enable %s", app.Name),
		fmt.Sprintf("systemctl restart %s", app.Name),
	} {
		if _, err := d.Run(ctx, cmd, runOpts{}); err != nil {
			return err
		}
	}
	return nil
}

// envFileDirectives assembles the EnvironmentFile= lines for a unit. Three
// sources combine: an uploaded local file, a pre-existing remote path, and the
// inline environment map. Inline values are appended to an uploaded file when
// both exist, otherwise written to their own generated file.
func (d *Deployer) envFileDirectives(ctx context.Context, app *spec.ApplicationSpec, appDir string) (string, error) {
	svc := &app.ServiceConfig
	var envFiles []string
	inlineConsumed := false

	switch {
	case svc.EnvironmentFileUpload != "":
		localPath := d.resolveLocalPath(svc.EnvironmentFileUpload)
		data, err := os.ReadFile(localPath)
		if err != nil {
			return "", errors.NewConfiguration("environment file not found at %s", localPath)
		}
		content := string(data)
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if extra := envLines(svc.Environment); len(extra) > 0 {
			content += strings.Join(extra, "\n") + "\n"
			inlineConsumed = true
		}

		targetRaw := svc.EnvironmentFile
		if targetRaw == "" {
			targetRaw = defaultEnvPath(app.Name)
		}
		target, optional := parseEnvPath(targetRaw, appDir)
		if target == "" {
			return "", errors.NewValidation("environment_file_upload set but no target path resolved")
		}
		if err := d.uploadEnvFile(ctx, content, target); err != nil {
			return "", err
		}
		envFiles = append(envFiles, directive(target, optional))

	case svc.EnvironmentFile != "":
		if target, optional := parseEnvPath(svc.EnvironmentFile, appDir); target != "" {
			envFiles = append(envFiles, directive(target, optional))
		}
	}

	if len(svc.Environment) > 0 && !inlineConsumed {
		target := defaultEnvPath(app.Name)
		content := strings.Join(envLines(svc.Environment), "\n") + "\n"
		if err := d.uploadEnvFile(ctx, content, target); err != nil {
			return "", err
		}
		envFiles = append(envFiles, target)
	}

	if len(envFiles) == 0 {
		return "", nil
	}
	lines := make([]string, len(envFiles))
	for i, path := range envFiles {
		lines[i] = "EnvironmentFile=" + path
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Deployer) uploadEnvFile(ctx context.Context, content, remotePath string) error {
	if dir := filepath.Dir(remotePath); dir != "" && dir != "." {
		if _, err := d.Run(ctx, fmt.Sprintf("mkdir -p %s", dir), runOpts{}); err != nil {
			return err
		}
	}
	if err := d.Upload(ctx, content, remotePath); err != nil {
		return err
	}
	_, err := d.Run(ctx, fmt.Sprintf("chmod 600 %s", remotePath), runOpts{})
	return err
}

func (d *Deployer) resolveLocalPath(raw string) string {
	path := raw
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	base := d.localRoot
	if base == "" {
		base, _ = os.Getwd()
	}
	return filepath.Join(base, path)
}

func defaultEnvPath(appName string) string {
	return fmt.Sprintf("%s/%s.env", envFileDir, appName)
}

// parseEnvPath resolves an EnvironmentFile reference. A leading "-" marks the
// file optional, systemd-style; relative paths anchor at the app directory.
func parseEnvPath(raw, appDir string) (path string, optional bool) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return "", false
	}
	if strings.HasPrefix(cleaned, "-") {
		optional = true
		cleaned = cleaned[1:]
	}
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = appDir + "/" + cleaned
	}
	return cleaned, optional
}

func directive(path string, optional bool) string {
	if optional {
		return "-" + path
	}
	return path
}

// envLines renders an environment map as KEY=value lines
func envLines(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%s", k, strings.TrimSpace(env[k])))
	}
	return lines
}
