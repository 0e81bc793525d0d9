package secrets

import (
	"context"
	"os"

	vault "github.com/hashicorp/vault/api"

	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/logger"
)

// vaultBackend stores secrets in an OpenBao/Vault KV v2 mount
type vaultBackend struct {
	client *vault.Client
	mount  string
	log    logger.Logger
}

// newVaultBackend returns an authenticated backend, or an error when OpenBao
// is not configured or unreachable.
func newVaultBackend() (*vaultBackend, error) {
	token := os.Getenv("OPENBAO_TOKEN")
	if token == "" {
		return nil, errors.NewConfiguration("OPENBAO_TOKEN not set")
	}

	addr := os.Getenv("OPENBAO_ADDR")
	if addr == "" {
		addr = "http://localhost:8200"
	}
	mount := os.Getenv("OPENBAO_MOUNT")
	if mount == "" {
		mount = "secret"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = addr
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, "failed to create openbao client")
	}
	client.SetToken(token)

	return &vaultBackend{
		client: client,
		mount:  mount,
		log:    logger.New("secrets"),
	}, nil
}

func (v *vaultBackend) readKeypair(ctx context.Context, path string) (string, string, bool) {
	secret, err := v.client.KVv2(v.mount).Get(ctx, path)
	if err != nil || secret == nil {
		return "", "", false
	}
	priv, _ := secret.Data["private_key"].(string)
	pub, _ := secret.Data["public_key"].(string)
	if priv == "" || pub == "" {
		return "", "", false
	}
	return priv, pub, true
}

func (v *vaultBackend) writeKeypair(ctx context.Context, path, priv, pub string) error {
	_, err := v.client.KVv2(v.mount).Put(ctx, path, map[string]interface{}{
		"private_key": priv,
		"public_key":  pub,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeExternal, "failed to store SSH keypair in openbao")
	}
	return nil
}

func (v *vaultBackend) readValue(ctx context.Context, path, key string) (string, bool) {
	secret, err := v.client.KVv2(v.mount).Get(ctx, path)
	if err != nil || secret == nil {
		v.log.Warn("openbao read failed", logger.String("path", path))
		return "", false
	}
	value, _ := secret.Data[key].(string)
	if value == "" {
		return "", false
	}
	return value, true
}
