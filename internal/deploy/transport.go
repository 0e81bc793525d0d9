package deploy

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// transport is the session layer the deployer runs on. Production uses SSH;
// tests substitute an in-memory fake.
type transport interface {
	Exec(cmd string) (stdout, stderr string, exitCode int, err error)
	Upload(content, remotePath string) error
	Alive() bool
	Close() error
}

type sshTransport struct {
	client *ssh.Client
}

func dialSSH(addr, user string, signer ssh.Signer) (transport, error) {
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // fresh hosts, no prior known_hosts entry
		Timeout:         10 * time.Second,
	}
	client, err := ssh.Dial("tcp", net.JoinHostPort(addr, "22"), cfg)
	if err != nil {
		return nil, err
	}
	return &sshTransport{client: client}, nil
}

func (t *sshTransport) Exec(cmd string) (string, string, int, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", "", -1, err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	err = session.Run(cmd)
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
			err = nil
		} else {
			return "", "", -1, err
		}
	}
	return stdout.String(), stderr.String(), exitCode, nil
}

func (t *sshTransport) Upload(content, remotePath string) error {
	client, err := sftp.NewClient(t.client)
	if err != nil {
		return fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer client.Close()

	f, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}
	if _, err := f.Write([]byte(content)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write remote file %s: %w", remotePath, err)
	}
	return f.Close()
}

func (t *sshTransport) Alive() bool {
	if t.client == nil {
		return false
	}
	_, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

func (t *sshTransport) Close() error {
	if t.client == nil {
		return nil
	}
	return t.client.Close()
}
