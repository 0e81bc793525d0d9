package deploy

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/cloudhand/cloudhand/internal/spec"
)

const combinedSiteName = "cloudhand"

// normalizeServerNames trims, drops empties, and dedupes while preserving
// order.
func normalizeServerNames(names []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range names {
		cleaned := strings.TrimSpace(name)
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		out = append(out, cleaned)
	}
	return out
}

// serverNameDirective renders the nginx server_name value, "_" (catch-all)
// when no domains are configured.
func serverNameDirective(names []string) string {
	if len(names) == 0 {
		return "_"
	}
	return strings.Join(names, " ")
}

// configureNginx publishes one workload as its own nginx site, proxying to
// the first configured port. Workloads without ports are not exposed.
func (d *Deployer) configureNginx(ctx context.Context, app *spec.ApplicationSpec) error {
	if len(app.ServiceConfig.Ports) == 0 {
		return nil
	}

	if err := d.ensureNginxInstalled(ctx); err != nil {
		return err
	}

	port := app.ServiceConfig.Ports[0]
	names := normalizeServerNames(app.ServiceConfig.ServerNames)
	conf := fmt.Sprintf(`server {
    listen 80;
    server_name %s;
    location / {
        proxy_pass http://127.0.0.1:%d;
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection 'upgrade';
        proxy_set_header Host $host;
    }
}`, serverNameDirective(names), port)

	if err := d.enableSite(ctx, app.Name, conf); err != nil {
		return err
	}
	if app.ServiceConfig.HTTPS {
		return d.enableHTTPS(ctx, names)
	}
	return nil
}

// ConfigureCombinedNginx publishes several workloads behind a single site on
// one host. The root location goes to the UI-looking workload (name contains
// "ui") or the first one; the rest get path prefixes, /api/ for API-looking
// names.
func (d *Deployer) ConfigureCombinedNginx(ctx context.Context, apps []spec.ApplicationSpec) error {
	var candidates []*spec.ApplicationSpec
	for i := range apps {
		if len(apps[i].ServiceConfig.Ports) > 0 {
			candidates = append(candidates, &apps[i])
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	root := candidates[0]
	for _, app := range candidates {
		if strings.Contains(strings.ToLower(app.Name), "ui") {
			root = app
			break
		}
	}

	var names []string
	https := false
	for _, app := range candidates {
		names = append(names, app.ServiceConfig.ServerNames...)
		https = https || app.ServiceConfig.HTTPS
	}
	names = normalizeServerNames(names)

	var b strings.Builder
	fmt.Fprintf(&b, "server {\n")
	fmt.Fprintf(&b, "    listen 80;\n")
	fmt.Fprintf(&b, "    server_name %s;\n", serverNameDirective(names))
	fmt.Fprintf(&b, "    client_max_body_size 25m;\n")
	writeProxyLocation(&b, "/", root.ServiceConfig.Ports[0])
	for _, app := range candidates {
		if app == root {
			continue
		}
		prefix := "/" + app.Name + "/"
		if strings.Contains(strings.ToLower(app.Name), "api") {
			prefix = "/api/"
		}
		writeProxyLocation(&b, prefix, app.ServiceConfig.Ports[0])
	}
	fmt.Fprintf(&b, "}")

	if err := d.ensureNginxInstalled(ctx); err != nil {
		return err
	}
	if err := d.enableSite(ctx, combinedSiteName, b.String()); err != nil {
		return err
	}
	if https {
		return d.enableHTTPS(ctx, names)
	}
	return nil
}

func writeProxyLocation(b *strings.Builder, prefix string, port int) {
	fmt.Fprintf(b, "    location %s {\n", prefix)
	fmt.Fprintf(b, "        proxy_pass http://127.0.0.1:%d/;\n", port)
	fmt.Fprintf(b, "        proxy_http_version 1.1;\n")
	fmt.Fprintf(b, "        proxy_set_header Upgrade $http_upgrade;\n")
	fmt.Fprintf(b, "        proxy_set_header Connection 'upgrade';\n")
	fmt.Fprintf(b, "        proxy_set_header Host $host;\n")
	fmt.Fprintf(b, "        proxy_set_header X-Real-IP $remote_addr;\n")
	fmt.Fprintf(b, "    }\n")
}

// ensureNginxInstalled installs and starts nginx if the bootstrap somehow
// missed it.
func (d *Deployer) ensureNginxInstalled(ctx context.Context) error {
	out, err := d.Run(ctx, "command -v nginx || true", runOpts{})
	if err != nil {
		return err
	}
	if out == "" {
		if _, err := d.Run(ctx,
			"DEBIAN_FRONTEND=noninteractive apt-get update && DEBIAN_FRONTEND=noninteractive apt-get install -y nginx",
			runOpts{}); err != nil {
			return err
		}
	}
	for _, cmd := range []string{
		"mkdir -p /etc/nginx/sites-available /etc/nginx/sites-enabled",
		"systemctl enable nginx || true",
		"systemctl start nginx || true",
	} {
		if _, err := d.Run(ctx, cmd, runOpts{}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployer) enableSite(ctx context.Context, name, conf string) error {
	if err := d.Upload(ctx, conf, "/etc/nginx/sites-available/"+name); err != nil {
		return err
	}
	for _, cmd := range []string{
		fmt.Sprintf("ln -sf /etc/nginx/sites-available/%s /etc/nginx/sites-enabled/%s", name, name),
		"rm -f /etc/nginx/sites-enabled/default",
		"systemctl reload nginx",
	} {
		if _, err := d.Run(ctx, cmd, runOpts{}); err != nil {
			return err
		}
	}
	return nil
}

// enableHTTPS obtains certificates and switches the site to TLS. Without
// domains there is nothing to certify, so it warns and moves on.
func (d *Deployer) enableHTTPS(ctx context.Context, serverNames []string) error {
	names := normalizeServerNames(serverNames)
	if len(names) == 0 {
		d.log.Warn("HTTPS requested but no server_names configured, skipping certificate setup")
		return nil
	}

	domainArgs := make([]string, len(names))
	for i, name := range names {
		domainArgs[i] = "-d " + name
	}

	certCmd, err := d.Run(ctx, "command -v certbox || command -v certbot || true", runOpts{})
	if err != nil {
		return err
	}
	if certCmd == "" {
		if _, err := d.Run(ctx,
			"DEBIAN_FRONTEND=noninteractive apt-get update && DEBIAN_FRONTEND=noninteractive apt-get install -y certbot python3-certbot-nginx",
			runOpts{}); err != nil {
			return err
		}
		certCmd = "certbot"
	}

	var cmd string
	if path.Base(certCmd) == "certbot" {
		email := os.Getenv("CERTBOT_EMAIL")
		if email == "" {
			email = os.Getenv("LETSENCRYPT_EMAIL")
		}
		emailFlag := "--register-unsafely-without-email"
		if email != "" {
			emailFlag = "--email " + email
		}
		cmd = fmt.Sprintf("%s --nginx %s --non-interactive --agree-tos %s --redirect",
			certCmd, strings.Join(domainArgs, " "), emailFlag)
	} else {
		// certbox takes certbot-compatible flags
		cmd = fmt.Sprintf("%s --nginx %s --non-interactive --agree-tos --redirect --register-unsafely-without-email",
			certCmd, strings.Join(domainArgs, " "))
	}
	_, err = d.Run(ctx, cmd, runOpts{})
	return err
}
