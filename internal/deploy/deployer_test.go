package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/spec"
)

// fakeTransport records executed commands and uploads, answering from a
// scripted response table.
type fakeTransport struct {
	commands  []string
	uploads   map[string]string
	responses map[string]fakeResponse // matched by substring
	alive     bool
	closed    bool
}

type fakeResponse struct {
	stdout   string
	exitCode int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		uploads:   map[string]string{},
		responses: map[string]fakeResponse{},
		alive:     true,
	}
}

func (f *fakeTransport) Exec(cmd string) (string, string, int, error) {
	f.commands = append(f.commands, cmd)
	for substr, resp := range f.responses {
		if strings.Contains(cmd, substr) {
			return resp.stdout, "", resp.exitCode, nil
		}
	}
	return "", "", 0, nil
}

func (f *fakeTransport) Upload(content, remotePath string) error {
	f.uploads[remotePath] = content
	return nil
}

func (f *fakeTransport) Alive() bool { return f.alive }

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func testDeployer(t *testing.T, ft *fakeTransport) *Deployer {
	t.Helper()
	d, err := NewDeployer("198.51.100.10", "", withTransportDialer(func() (transport, error) {
		return ft, nil
	}))
	require.NoError(t, err)
	return d
}

func (f *fakeTransport) ran(t *testing.T, substr string) bool {
	t.Helper()
	for _, cmd := range f.commands {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}

func nodeApp() *spec.ApplicationSpec {
	return &spec.ApplicationSpec{
		Name:    "api",
		RepoURL: "https://github.com/acme/api.git",
		Runtime: spec.RuntimeNodeJS,
		BuildConfig: spec.BuildSpec{
			InstallCommand: "npm ci",
			BuildCommand:   "npm run build",
		},
		ServiceConfig: spec.ServiceSpec{
			Command: "node dist/server.js",
			Ports:   []int{3000},
		},
	}
}

func TestRunPrependsWorkingDirectory(t *testing.T) {
	ft := newFakeTransport()
	d := testDeployer(t, ft)

	_, err := d.Run(context.Background(), "git status", runOpts{cwd: "/opt/apps/api"})
	require.NoError(t, err)
	assert.Equal(t, "cd /opt/apps/api && git status", ft.commands[0])
}

func TestRunMasksSecretsInErrors(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["git clone"] = fakeResponse{exitCode: 128}
	d := testDeployer(t, ft)

	_, err := d.Run(context.Background(), "git clone https://tok123@github.com/acme/api.git", runOpts{mask: []string{"tok123"}})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "tok123")
	assert.Contains(t, err.Error(), "***")
}

func TestRunPropagatesExitCode(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["false"] = fakeResponse{exitCode: 3}
	d := testDeployer(t, ft)

	_, err := d.Run(context.Background(), "false", runOpts{})
	require.Error(t, err)
	assert.True(t, errors.IsExternal(err))
	assert.Equal(t, 3, errors.ExitCode(err, 0))
}

func TestRunReconnectsDeadTransport(t *testing.T) {
	dead := newFakeTransport()
	dead.alive = false
	fresh := newFakeTransport()

	dials := 0
	d, err := NewDeployer("198.51.100.10", "", withTransportDialer(func() (transport, error) {
		dials++
		return fresh, nil
	}))
	require.NoError(t, err)
	d.conn = dead

	out, err := d.Run(context.Background(), "uptime", runOpts{})
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Equal(t, 1, dials)
	assert.True(t, dead.closed)
	assert.Len(t, fresh.commands, 1)
}

func TestConnectStoresDialedTransport(t *testing.T) {
	ft := newFakeTransport()
	d := testDeployer(t, ft)

	require.NoError(t, d.Connect(context.Background()))
	assert.Equal(t, transport(ft), d.conn)
}

func TestConnectStopsRetryingWhenContextCancelled(t *testing.T) {
	dials := 0
	d, err := NewDeployer("198.51.100.10", "", withTransportDialer(func() (transport, error) {
		dials++
		return nil, fmt.Errorf("connection refused")
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = d.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 1, dials, "cancellation interrupts the retry loop")
}

func TestDeploySequence(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	t.Setenv("GITHUB_PAT", "")
	ft := newFakeTransport()
	ft.responses["test -d"] = fakeResponse{exitCode: 1} // no checkout yet
	d := testDeployer(t, ft)

	require.NoError(t, d.Deploy(context.Background(), nodeApp(), true))

	assert.True(t, ft.ran(t, "deb.nodesource.com/setup_20.x"))
	assert.True(t, ft.ran(t, "git clone --branch main https://github.com/acme/api.git /opt/apps/api"))
	assert.True(t, ft.ran(t, "cd /opt/apps/api && npm ci"))
	assert.True(t, ft.ran(t, "cd /opt/apps/api && npm run build"))
	assert.True(t, ft.ran(t, "systemctl enable api"))
	assert.True(t, ft.ran(t, "systemctl restart api"))
	assert.True(t, ft.ran(t, "systemctl reload nginx"))

	unit := ft.uploads["/etc/systemd/system/api.service"]
	assert.Contains(t, unit, "ExecStart=node dist/server.js")
	assert.Contains(t, unit, "WorkingDirectory=/opt/apps/api")
	assert.Contains(t, unit, "Restart=always")

	site := ft.uploads["/etc/nginx/sites-available/api"]
	assert.Contains(t, site, "proxy_pass http://127.0.0.1:3000;")
	assert.Contains(t, site, "server_name _;")
}

func TestDeployExistingCheckoutFetches(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	t.Setenv("GITHUB_PAT", "")
	ft := newFakeTransport()
	d := testDeployer(t, ft)

	require.NoError(t, d.Deploy(context.Background(), nodeApp(), false))

	assert.True(t, ft.ran(t, "git fetch origin && git reset --hard origin/main"))
	assert.False(t, ft.ran(t, "git clone"))
}

func TestDeployPrivateRepoUsesMaskedToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_secret")
	ft := newFakeTransport()
	ft.responses["test -d"] = fakeResponse{exitCode: 1}
	d := testDeployer(t, ft)

	require.NoError(t, d.Deploy(context.Background(), nodeApp(), false))
	assert.True(t, ft.ran(t, "git clone --branch main https://ghp_secret@github.com/acme/api.git"))
}

func TestEnvFileDirectives(t *testing.T) {
	ft := newFakeTransport()
	d := testDeployer(t, ft)

	app := nodeApp()
	app.ServiceConfig.Environment = map[string]string{"B_KEY": "2", "A_KEY": "1"}
	app.ServiceConfig.EnvironmentFile = "-.env.local"

	directives, err := d.envFileDirectives(context.Background(), app, "/opt/apps/api")
	require.NoError(t, err)
	assert.Contains(t, directives, "EnvironmentFile=-/opt/apps/api/.env.local")
	assert.Contains(t, directives, "EnvironmentFile=/etc/cloudhand/env/api.env")

	content := ft.uploads["/etc/cloudhand/env/api.env"]
	assert.Equal(t, "A_KEY=1\nB_KEY=2\n", content)
	assert.True(t, ft.ran(t, "chmod 600 /etc/cloudhand/env/api.env"))
}

func TestEnvFileUploadMergesInlineValues(t *testing.T) {
	ft := newFakeTransport()
	root := t.TempDir()
	writeLocal(t, root, ".env.production", "PORT=3000")

	d, err := NewDeployer("198.51.100.10", "",
		withTransportDialer(func() (transport, error) { return ft, nil }),
		WithLocalRoot(root))
	require.NoError(t, err)

	app := nodeApp()
	app.ServiceConfig.EnvironmentFileUpload = ".env.production"
	app.ServiceConfig.Environment = map[string]string{"EXTRA": "yes"}

	directives, err := d.envFileDirectives(context.Background(), app, "/opt/apps/api")
	require.NoError(t, err)
	assert.Equal(t, "EnvironmentFile=/etc/cloudhand/env/api.env", directives)

	content := ft.uploads["/etc/cloudhand/env/api.env"]
	assert.Contains(t, content, "PORT=3000\n")
	assert.Contains(t, content, "EXTRA=yes\n")
}

func TestEnvFileUploadMissingLocalFile(t *testing.T) {
	d, err := NewDeployer("198.51.100.10", "",
		withTransportDialer(func() (transport, error) { return newFakeTransport(), nil }),
		WithLocalRoot(t.TempDir()))
	require.NoError(t, err)

	app := nodeApp()
	app.ServiceConfig.EnvironmentFileUpload = ".env.missing"

	_, err = d.envFileDirectives(context.Background(), app, "/opt/apps/api")
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestConfigureNginxSkipsPortlessApps(t *testing.T) {
	ft := newFakeTransport()
	d := testDeployer(t, ft)

	app := nodeApp()
	app.ServiceConfig.Ports = nil
	require.NoError(t, d.configureNginx(context.Background(), app))
	assert.Empty(t, ft.commands)
}

func TestConfigureNginxServerNames(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["command -v nginx"] = fakeResponse{stdout: "/usr/sbin/nginx"}
	d := testDeployer(t, ft)

	app := nodeApp()
	app.ServiceConfig.ServerNames = []string{"api.example.com", " api.example.com ", ""}
	require.NoError(t, d.configureNginx(context.Background(), app))

	site := ft.uploads["/etc/nginx/sites-available/api"]
	assert.Contains(t, site, "server_name api.example.com;")
	assert.True(t, ft.ran(t, "rm -f /etc/nginx/sites-enabled/default"))
}

func TestCombinedNginxRouting(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["command -v nginx"] = fakeResponse{stdout: "/usr/sbin/nginx"}
	d := testDeployer(t, ft)

	apps := []spec.ApplicationSpec{
		{Name: "backend-api", ServiceConfig: spec.ServiceSpec{Command: "x", Ports: []int{8000}}},
		{Name: "web-ui", ServiceConfig: spec.ServiceSpec{Command: "x", Ports: []int{3000}, ServerNames: []string{"app.example.com"}}},
		{Name: "worker", ServiceConfig: spec.ServiceSpec{Command: "x"}}, // no ports
		{Name: "metrics", ServiceConfig: spec.ServiceSpec{Command: "x", Ports: []int{9100}}},
	}
	require.NoError(t, d.ConfigureCombinedNginx(context.Background(), apps))

	site := ft.uploads["/etc/nginx/sites-available/cloudhand"]
	assert.Contains(t, site, "server_name app.example.com;")
	assert.Contains(t, site, "client_max_body_size 25m;")
	// ui app owns the root location
	assert.Contains(t, site, "location / {\n        proxy_pass http://127.0.0.1:3000/;")
	assert.Contains(t, site, "location /api/ {\n        proxy_pass http://127.0.0.1:8000/;")
	assert.Contains(t, site, "location /metrics/ {\n        proxy_pass http://127.0.0.1:9100/;")
	assert.NotContains(t, site, "worker")
}

func TestCombinedNginxNoCandidates(t *testing.T) {
	ft := newFakeTransport()
	d := testDeployer(t, ft)
	require.NoError(t, d.ConfigureCombinedNginx(context.Background(), []spec.ApplicationSpec{
		{Name: "worker", ServiceConfig: spec.ServiceSpec{Command: "x"}},
	}))
	assert.Empty(t, ft.commands)
}

func TestHTTPSWithoutServerNamesSkips(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["command -v nginx"] = fakeResponse{stdout: "/usr/sbin/nginx"}
	d := testDeployer(t, ft)

	app := nodeApp()
	app.ServiceConfig.HTTPS = true
	require.NoError(t, d.configureNginx(context.Background(), app))
	assert.False(t, ft.ran(t, "certbot"))
}

func TestHTTPSRunsCertbot(t *testing.T) {
	t.Setenv("CERTBOT_EMAIL", "ops@example.com")
	ft := newFakeTransport()
	ft.responses["command -v nginx"] = fakeResponse{stdout: "/usr/sbin/nginx"}
	ft.responses["command -v certbox"] = fakeResponse{stdout: "/usr/bin/certbot"}
	d := testDeployer(t, ft)

	app := nodeApp()
	app.ServiceConfig.HTTPS = true
	app.ServiceConfig.ServerNames = []string{"api.example.com"}
	require.NoError(t, d.configureNginx(context.Background(), app))

	assert.True(t, ft.ran(t, "/usr/bin/certbot --nginx -d api.example.com --non-interactive --agree-tos --email ops@example.com --redirect"))
}

func writeLocal(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}
