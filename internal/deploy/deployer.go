// Package deploy configures provisioned servers over SSH: source checkout,
// builds, systemd services, nginx routing, and TLS. Servers are mutated in
// place, never replaced.
package deploy

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/logger"
	"github.com/cloudhand/cloudhand/internal/resilience"
)

// Deployer drives one server over SSH
type Deployer struct {
	ip        string
	user      string
	localRoot string

	dial func() (transport, error)
	conn transport
	log  logger.Logger
}

// Option customizes a Deployer
type Option func(*Deployer)

// WithUser overrides the SSH user (default root)
func WithUser(user string) Option {
	return func(d *Deployer) { d.user = user }
}

// WithLocalRoot sets the base directory for resolving relative local file
// references, e.g. environment file uploads.
func WithLocalRoot(root string) Option {
	return func(d *Deployer) { d.localRoot = root }
}

// withTransportDialer substitutes the connection factory, for tests
func withTransportDialer(dial func() (transport, error)) Option {
	return func(d *Deployer) { d.dial = dial }
}

// NewDeployer builds a deployer for the server at ip, authenticating with the
// given PEM-encoded private key.
func NewDeployer(ip, privateKeyPEM string, opts ...Option) (*Deployer, error) {
	d := &Deployer{
		ip:   ip,
		user: "root",
		log:  logger.New("deploy").WithFields(logger.String("server", ip)),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.dial == nil {
		signer, err := ssh.ParsePrivateKey([]byte(privateKeyPEM))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, "failed to parse SSH private key")
		}
		d.dial = func() (transport, error) {
			return dialSSH(ip, d.user, signer)
		}
	}
	return d, nil
}

// Connect establishes the SSH connection, retrying while the server finishes
// booting.
func (d *Deployer) Connect(ctx context.Context) error {
	err := resilience.Retry(ctx, resilience.SSHConnectRetryConfig(), func(context.Context) error {
		conn, err := d.dial()
		if err != nil {
			d.log.Debug("connection attempt failed", logger.Error(err))
			return err
		}
		d.conn = conn
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransient, fmt.Sprintf("could not connect to %s", d.ip))
	}
	return nil
}

// Close releases the SSH connection
func (d *Deployer) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *Deployer) ensureConnected(ctx context.Context) error {
	if d.conn != nil && d.conn.Alive() {
		return nil
	}
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	return d.Connect(ctx)
}

// runOpts adjust a single remote command
type runOpts struct {
	cwd  string
	mask []string
}

// Run executes a command on the server, reconnecting if the session died.
// Strings listed in mask are scrubbed from logs and error messages, so
// commands may embed credentials without leaking them.
func (d *Deployer) Run(ctx context.Context, cmd string, opts runOpts) (string, error) {
	if err := d.ensureConnected(ctx); err != nil {
		return "", err
	}

	final := cmd
	if opts.cwd != "" {
		final = fmt.Sprintf("cd %s && %s", opts.cwd, cmd)
	}
	display := errors.Mask(final, opts.mask...)
	d.log.Info("running", logger.String("cmd", display))

	stdout, stderr, exitCode, err := d.conn.Exec(final)
	if err != nil {
		// Session-level failure: reconnect once and retry.
		d.conn.Close()
		d.conn = nil
		if err := d.ensureConnected(ctx); err != nil {
			return "", err
		}
		stdout, stderr, exitCode, err = d.conn.Exec(final)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeTransient, fmt.Sprintf("ssh exec failed on %s", d.ip))
		}
	}

	if exitCode != 0 {
		return "", errors.NewExternal(exitCode, "command failed on %s: %s\n%s",
			d.ip, display, errors.Mask(strings.TrimSpace(stderr), opts.mask...))
	}
	return strings.TrimSpace(stdout), nil
}

// Upload writes content to a file on the server
func (d *Deployer) Upload(ctx context.Context, content, remotePath string) error {
	if err := d.ensureConnected(ctx); err != nil {
		return err
	}
	if err := d.conn.Upload(content, remotePath); err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransient, fmt.Sprintf("upload to %s failed", remotePath))
	}
	return nil
}
