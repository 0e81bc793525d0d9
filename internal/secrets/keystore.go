// Package secrets manages project credentials: the per-project SSH keypair
// used to reach provisioned servers, and provider API tokens. Secrets live in
// OpenBao/Vault when configured, with a local on-disk fallback so the tool
// works out of the box.
package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudhand/cloudhand/internal/logger"
)

const sshKeyBits = 4096

// Keystore resolves and persists project secrets
type Keystore struct {
	vault   *vaultBackend // nil when OpenBao is not configured
	keysDir string
	log     logger.Logger
}

// Open builds a keystore. OpenBao is used when OPENBAO_TOKEN is set and the
// client authenticates; otherwise keys are stored under CLOUDHAND_KEYS_DIR
// (default ~/.cloudhand/keys).
func Open() *Keystore {
	log := logger.New("secrets")

	ks := &Keystore{log: log}
	if vb, err := newVaultBackend(); err != nil {
		log.Warn("openbao unavailable, falling back to local key storage", logger.Error(err))
	} else {
		ks.vault = vb
	}

	ks.keysDir = os.Getenv("CLOUDHAND_KEYS_DIR")
	if ks.keysDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			ks.keysDir = filepath.Join(home, ".cloudhand", "keys")
		} else {
			ks.keysDir = filepath.Join(".", ".cloudhand", "keys")
		}
	}
	return ks
}

// GetOrCreateProjectKey returns the project's SSH keypair as
// (privatePEM, publicAuthorizedKey), generating and persisting a fresh
// keypair on first use.
func (k *Keystore) GetOrCreateProjectKey(ctx context.Context, projectID string) (string, string, error) {
	if k.vault != nil {
		return k.vaultKey(ctx, projectID)
	}
	return k.localKey(projectID)
}

func (k *Keystore) vaultKey(ctx context.Context, projectID string) (string, string, error) {
	path := fmt.Sprintf("projects/%s/ssh", projectID)

	if priv, pub, ok := k.vault.readKeypair(ctx, path); ok {
		return priv, pub, nil
	}

	priv, pub, err := generateKeypair(sshKeyBits)
	if err != nil {
		return "", "", err
	}
	if err := k.vault.writeKeypair(ctx, path, priv, pub); err != nil {
		return "", "", err
	}
	k.log.Info("generated project SSH keypair", logger.String("project", projectID), logger.String("backend", "openbao"))
	return priv, pub, nil
}

func (k *Keystore) localKey(projectID string) (string, string, error) {
	if err := os.MkdirAll(k.keysDir, 0700); err != nil {
		return "", "", fmt.Errorf("failed to create keys directory: %w", err)
	}

	privPath := filepath.Join(k.keysDir, projectID+"_id_rsa")
	pubPath := privPath + ".pub"

	privData, privErr := os.ReadFile(privPath)
	pubData, pubErr := os.ReadFile(pubPath)
	if privErr == nil && pubErr == nil {
		return string(privData), string(pubData), nil
	}

	priv, pub, err := generateKeypair(sshKeyBits)
	if err != nil {
		return "", "", err
	}

	// O_EXCL so a concurrent run cannot clobber a keypair already written
	f, err := os.OpenFile(privPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			// Lost the race; use the winner's keypair.
			return k.localKey(projectID)
		}
		return "", "", fmt.Errorf("failed to write private key: %w", err)
	}
	if _, err := f.WriteString(priv); err != nil {
		f.Close()
		return "", "", fmt.Errorf("failed to write private key: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(pub+"\n"), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write public key: %w", err)
	}

	k.log.Info("generated project SSH keypair", logger.String("project", projectID), logger.String("backend", "local"))
	return priv, pub, nil
}

// ProviderToken fetches a provider API token from OpenBao at
// <project_path>/providers/<provider>, returning fallback when the secret or
// the backend is unavailable.
func (k *Keystore) ProviderToken(ctx context.Context, provider, fallback string) string {
	if k.vault == nil {
		return fallback
	}
	projectPath := os.Getenv("OPENBAO_PROJECT_PATH")
	if projectPath == "" {
		projectPath = "projects/cloudhand"
	}
	path := fmt.Sprintf("%s/providers/%s", projectPath, provider)
	if token, ok := k.vault.readValue(ctx, path, "token"); ok {
		return token
	}
	return fallback
}
